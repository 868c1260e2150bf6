// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// SafetyLimits are the absolute per-axis thresholds for observed and expected rates.
type SafetyLimits struct {
	Observed float64 `json:"observed" yaml:"observed"`
	Expected float64 `json:"expected" yaml:"expected"`
}

// LimitsFor derives the thresholds from the cutoff fraction and full scales.
func LimitsFor(opts Options) SafetyLimits {
	expected := opts.ExpectedFullScale
	if expected <= 0 {
		expected = opts.GyroFullScale
	}
	return SafetyLimits{
		Observed: opts.GyroCutoffFraction * opts.GyroFullScale,
		Expected: opts.GyroCutoffFraction * expected,
	}
}

// SafetyReport counts the outcome of the safety filter.
type SafetyReport struct {
	Total    int          `json:"total" yaml:"total"`
	Safe     int          `json:"safe" yaml:"safe"`
	Excluded int          `json:"excluded" yaml:"excluded"`
	Limits   SafetyLimits `json:"limits" yaml:"limits"`
}

// below reports whether every axis of v is strictly under limit in magnitude.
// NaN components are never below.
func below(v r3.Vector, limit float64) bool {
	return math.Abs(v.X) < limit && math.Abs(v.Y) < limit && math.Abs(v.Z) < limit
}

// SafetyMask marks samples whose observed and expected rates both stay
// strictly inside the limits on every axis. A value exactly at a limit is
// treated as saturated.
func SafetyMask(observed, expected Cloud, limits SafetyLimits) ([]bool, error) {
	if len(observed) != len(expected) {
		return nil, fmt.Errorf("%w: %d observed rates, %d expected rates", ErrInputShapeMismatch, len(observed), len(expected))
	}
	mask := make([]bool, len(observed))
	for i := range observed {
		mask[i] = below(observed[i], limits.Observed) && below(expected[i], limits.Expected)
	}
	return mask, nil
}

// Summarize counts a mask.
func Summarize(mask []bool, limits SafetyLimits) SafetyReport {
	r := SafetyReport{Total: len(mask), Limits: limits}
	for _, ok := range mask {
		if ok {
			r.Safe++
		}
	}
	r.Excluded = r.Total - r.Safe
	return r
}
