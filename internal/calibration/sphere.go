// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// SphereTransform maps raw points of a fitted ellipsoid onto the unit sphere:
// Apply(v) = Rescale·(v − Center)·Normalize.
type SphereTransform struct {
	Center    r3.Vector
	Rescale   *mat.Dense
	Normalize float64
}

// NewSphereTransform builds the whitening transform of a fit. With
// volumePreserving the Rescale matrix has unit determinant and Normalize
// carries the overall size; otherwise Normalize is 1.
func NewSphereTransform(fit EllipsoidFit, volumePreserving bool) SphereTransform {
	unit := 1.0
	if volumePreserving {
		unit = math.Cbrt(fit.Radii.X * fit.Radii.Y * fit.Radii.Z)
	}
	d := mat.NewDiagDense(3, []float64{unit / fit.Radii.X, unit / fit.Radii.Y, unit / fit.Radii.Z})

	var tmp, rescale mat.Dense
	tmp.Mul(fit.Axes, d)
	rescale.Mul(&tmp, fit.Axes.T())
	return SphereTransform{Center: fit.Center, Rescale: &rescale, Normalize: 1 / unit}
}

func (s SphereTransform) Apply(v r3.Vector) r3.Vector {
	return mulVec(s.Rescale, v.Sub(s.Center)).Mul(s.Normalize)
}

func (s SphereTransform) ApplyCloud(c Cloud) Cloud {
	out := make(Cloud, len(c))
	for i, v := range c {
		out[i] = s.Apply(v)
	}
	return out
}

// Calibration converts the transform to its serializable form.
func (s SphereTransform) Calibration() SensorCalibration {
	return SensorCalibration{
		Center:    VecFrom(s.Center),
		Rescale:   MatFrom(s.Rescale),
		Normalize: s.Normalize,
	}
}
