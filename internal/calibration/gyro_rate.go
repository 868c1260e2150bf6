// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// RateScale converts a per-sample rotation angle (radians) into the expected
// gyro reading: (InputHz / GyroTargetHz) · 2^PrecisionScale · GyroRateFactor,
// and the degree conversion when Degrees is set.
func RateScale(opts Options) float64 {
	s := opts.InputHz / opts.GyroTargetHz * math.Ldexp(1, opts.PrecisionScale) * opts.GyroRateFactor
	if opts.Degrees {
		s *= 180 / math.Pi
	}
	return s
}

func windowSpan(w Window) int {
	if w == WindowCentered {
		return 2
	}
	return 1
}

// ExpectedRates reconstructs the angular rate implied by consecutive fitted
// accel/mag pairs. The forward window yields n−1 rates for the intervals
// (t, t+1); the centered window yields n−2 rates for samples 1..n−2 from the
// rotation between t−1 and t+1, halved.
func ExpectedRates(accel, mag Cloud, opts Options) (Cloud, error) {
	if len(accel) != len(mag) {
		return nil, fmt.Errorf("%w: %d accel samples, %d mag samples", ErrInputShapeMismatch, len(accel), len(mag))
	}
	span := windowSpan(opts.Window)
	if len(accel) < span+1 {
		return nil, fmt.Errorf("%w: %d samples, %s window needs %d", ErrInsufficientSamples, len(accel), opts.Window, span+1)
	}

	scale := RateScale(opts) / float64(span)
	out := make(Cloud, 0, len(accel)-span)
	var axis r3.Vector
	for i := 0; i+span < len(accel); i++ {
		r, err := rotationBetween(accel[i], mag[i], accel[i+span], mag[i+span], opts.RotationMethod)
		if err != nil {
			return nil, fmt.Errorf("samples %d..%d: %w", i, i+span, err)
		}
		a, angle, ok := AxisAngle(r)
		if ok {
			axis = a
		} else {
			angle = 0
		}
		out = append(out, axis.Mul(angle*scale))
	}
	return out, nil
}

// ObservedRates aligns raw gyro samples with the expected rates. The forward
// window combines each pair (t, t+1) into the mean magnitude along the
// direction of their sum; the centered window passes g_t through.
func ObservedRates(gyro Cloud, w Window) (Cloud, error) {
	span := windowSpan(w)
	if len(gyro) < span+1 {
		return nil, fmt.Errorf("%w: %d gyro samples, %s window needs %d", ErrInsufficientSamples, len(gyro), w, span+1)
	}
	if w == WindowCentered {
		return gyro[1 : len(gyro)-1].Clone(), nil
	}
	out := make(Cloud, len(gyro)-1)
	for i := range out {
		out[i] = midpointRate(gyro[i], gyro[i+1])
	}
	return out, nil
}

func midpointRate(a, b r3.Vector) r3.Vector {
	dir, ok := normalizeChecked(a.Add(b), vecEpsilon)
	if !ok {
		return r3.Vector{}
	}
	return dir.Mul((a.Norm() + b.Norm()) / 2)
}
