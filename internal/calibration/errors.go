// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateGeometry means a point cloud does not determine an ellipsoid
	// (too few points, coplanar or collinear points, or a non-ellipsoidal quadric).
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrDegenerateFrame means the two reference vectors of a frame are zero or parallel.
	ErrDegenerateFrame = errors.New("degenerate frame")

	// ErrDegenerateFit means an affine regression has no unique solution.
	ErrDegenerateFit = errors.New("degenerate fit")

	// ErrInputShapeMismatch means input series disagree in length or hold non-finite values.
	ErrInputShapeMismatch = errors.New("input shape mismatch")

	// ErrInvalidOptions means the run configuration is out of range.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInsufficientSamples means too few (safe) samples are left to solve for the unknowns.
	ErrInsufficientSamples = errors.New("insufficient samples")

	errRankDeficient = errors.New("rank deficient normal equations")
)

// StageError records the pipeline stage a failure aborted.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
