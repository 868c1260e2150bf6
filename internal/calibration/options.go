// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Window selects how expected and observed gyro rates are aligned in time.
type Window int

const (
	// WindowForward pairs samples (t, t+1).
	WindowForward Window = iota
	// WindowCentered pairs samples (t−1, t+1) and places the rate at t.
	WindowCentered
)

func (w Window) String() string {
	switch w {
	case WindowForward:
		return "forward"
	case WindowCentered:
		return "centered"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

func (w Window) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Window) UnmarshalText(b []byte) error {
	v, err := ParseWindow(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// ParseWindow accepts "forward" or "centered".
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "":
		return WindowForward, nil
	case "centered", "centred":
		return WindowCentered, nil
	}
	return 0, fmt.Errorf("unknown window %q (want forward or centered)", s)
}

// RotationMethod selects the relative rotation estimator.
type RotationMethod int

const (
	// RotationFrame builds an orthonormal frame per sample and composes them.
	RotationFrame RotationMethod = iota
	// RotationSVD solves the rigid rotation between the vector pairs (Kabsch).
	RotationSVD
)

func (m RotationMethod) String() string {
	switch m {
	case RotationFrame:
		return "frame"
	case RotationSVD:
		return "svd"
	default:
		return fmt.Sprintf("rotation(%d)", int(m))
	}
}

func (m RotationMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *RotationMethod) UnmarshalText(b []byte) error {
	v, err := ParseRotationMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseRotationMethod accepts "frame" or "svd".
func ParseRotationMethod(s string) (RotationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frame", "":
		return RotationFrame, nil
	case "svd", "kabsch":
		return RotationSVD, nil
	}
	return 0, fmt.Errorf("unknown rotation method %q (want frame or svd)", s)
}

// Options configures a calibration run.
type Options struct {
	// PrecisionScale is the power of two applied to expected rates (fixed-point output).
	PrecisionScale int `json:"precision_scale" yaml:"precision_scale"`
	// GyroCutoffFraction of full scale above which samples are left out of the gyro fit.
	GyroCutoffFraction float64 `json:"gyro_cutoff_fraction" yaml:"gyro_cutoff_fraction"`
	VolumePreserving   bool    `json:"volume_preserving" yaml:"volume_preserving"`
	OffsetEstimated    bool    `json:"offset_estimated" yaml:"offset_estimated"`
	InputHz            float64 `json:"input_hz" yaml:"input_hz"`
	GyroTargetHz       float64 `json:"gyro_target_hz" yaml:"gyro_target_hz"`
	// Degrees expresses expected rates in degrees instead of radians.
	Degrees       bool    `json:"degrees" yaml:"degrees"`
	GyroFullScale float64 `json:"gyro_full_scale" yaml:"gyro_full_scale"`
	// ExpectedFullScale is the full scale used for expected rates. Zero means GyroFullScale.
	ExpectedFullScale float64        `json:"expected_full_scale,omitempty" yaml:"expected_full_scale,omitempty"`
	RegularizeDivs    int            `json:"regularize_divs" yaml:"regularize_divs"`
	Window            Window         `json:"window" yaml:"window"`
	RotationMethod    RotationMethod `json:"rotation_method" yaml:"rotation_method"`
	// GyroRateFactor multiplies expected rates. Some firmware builds needed 2
	// here for reasons never established on hardware, so it stays explicit.
	GyroRateFactor float64 `json:"gyro_rate_factor" yaml:"gyro_rate_factor"`
	GyroCrossAxis  bool    `json:"gyro_cross_axis" yaml:"gyro_cross_axis"`
	NormalizeGyro  bool    `json:"normalize_gyro" yaml:"normalize_gyro"`
}

// DefaultOptions expresses expected gyro rates in rad/s for a 100 Hz, 16-bit sensor.
func DefaultOptions() Options {
	return Options{
		PrecisionScale:     0,
		GyroCutoffFraction: 0.9,
		VolumePreserving:   false,
		OffsetEstimated:    true,
		InputHz:            100,
		GyroTargetHz:       1,
		GyroFullScale:      32768,
		RegularizeDivs:     DefaultRegularizeDivs,
		Window:             WindowForward,
		RotationMethod:     RotationFrame,
		GyroRateFactor:     1,
	}
}

// PresetFloat matches the floating point tooling: rad/s, no fixed-point scaling.
func PresetFloat() Options {
	return DefaultOptions()
}

// PresetFixedPoint16 matches the firmware convention: volume preserving
// accel/mag transforms and expected rates in degrees per sample with 16
// fractional bits, checked against a 32-bit full scale.
func PresetFixedPoint16() Options {
	o := DefaultOptions()
	o.PrecisionScale = 16
	o.VolumePreserving = true
	o.Degrees = true
	o.GyroTargetHz = o.InputHz
	o.GyroFullScale = 32768
	o.ExpectedFullScale = 1 << 31
	o.NormalizeGyro = true
	return o
}

// Validate checks ranges and returns every violation at once.
func (o Options) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s must be positive and finite, got %v", name, v))
		}
	}
	positive("input_hz", o.InputHz)
	positive("gyro_target_hz", o.GyroTargetHz)
	positive("gyro_full_scale", o.GyroFullScale)
	positive("gyro_rate_factor", o.GyroRateFactor)
	if o.ExpectedFullScale < 0 || math.IsNaN(o.ExpectedFullScale) || math.IsInf(o.ExpectedFullScale, 0) {
		errs = append(errs, fmt.Errorf("expected_full_scale must be 0 or positive, got %v", o.ExpectedFullScale))
	}
	if !(o.GyroCutoffFraction > 0 && o.GyroCutoffFraction <= 1) {
		errs = append(errs, fmt.Errorf("gyro_cutoff_fraction must be in (0, 1], got %v", o.GyroCutoffFraction))
	}
	if o.PrecisionScale < 0 || o.PrecisionScale > 30 {
		errs = append(errs, fmt.Errorf("precision_scale must be 0-30, got %d", o.PrecisionScale))
	}
	if o.RegularizeDivs < 0 || o.RegularizeDivs > 64 {
		errs = append(errs, fmt.Errorf("regularize_divs must be 0-64, got %d", o.RegularizeDivs))
	}
	if o.Window != WindowForward && o.Window != WindowCentered {
		errs = append(errs, fmt.Errorf("unknown %s", o.Window))
	}
	if o.RotationMethod != RotationFrame && o.RotationMethod != RotationSVD {
		errs = append(errs, fmt.Errorf("unknown %s", o.RotationMethod))
	}
	return errors.Join(errs...)
}
