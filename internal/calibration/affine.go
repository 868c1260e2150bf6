// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// varianceFloor is the relative variance below which a regressor counts as constant.
	varianceFloor = 1e-20
	// slopeFloor is the magnitude below which a fitted slope counts as zero.
	slopeFloor = 1e-12
)

var axisNames = [3]string{"x", "y", "z"}

// AffineOptions controls the gyro regression.
type AffineOptions struct {
	// OffsetEstimated fits an intercept; otherwise lines pass through the origin.
	OffsetEstimated bool
	// Normalize splits the scale into a unit geometric-mean rescale and a common factor.
	Normalize bool
}

// AffineFit maps observed readings onto expected ones per axis:
// Apply(v) = (v − Offset) ⊙ Rescale · Normalize.
type AffineFit struct {
	Offset    r3.Vector
	Rescale   r3.Vector
	Normalize float64
	// RSquared is the coefficient of determination of each axis regression.
	RSquared r3.Vector
}

// Scale is the effective per-axis slope.
func (f AffineFit) Scale() r3.Vector { return f.Rescale.Mul(f.Normalize) }

func (f AffineFit) Apply(v r3.Vector) r3.Vector {
	d := v.Sub(f.Offset)
	return r3.Vector{X: d.X * f.Rescale.X, Y: d.Y * f.Rescale.Y, Z: d.Z * f.Rescale.Z}.Mul(f.Normalize)
}

func (f AffineFit) Calibration() SensorCalibration {
	return SensorCalibration{
		Center: VecFrom(f.Offset),
		Rescale: Mat3{
			{f.Rescale.X, 0, 0},
			{0, f.Rescale.Y, 0},
			{0, 0, f.Rescale.Z},
		},
		Normalize: f.Normalize,
	}
}

// selectSafe gathers the masked pairs, checking shapes and the sample count
// needed for the given number of unknowns.
func selectSafe(observed, expected Cloud, mask []bool, unknowns int) (Cloud, Cloud, error) {
	if len(observed) != len(expected) {
		return nil, nil, fmt.Errorf("%w: %d observed rates, %d expected rates", ErrInputShapeMismatch, len(observed), len(expected))
	}
	if mask != nil && len(mask) != len(observed) {
		return nil, nil, fmt.Errorf("%w: mask has %d entries for %d samples", ErrInputShapeMismatch, len(mask), len(observed))
	}
	var obs, exp Cloud
	for i := range observed {
		if mask != nil && !mask[i] {
			continue
		}
		obs = append(obs, observed[i])
		exp = append(exp, expected[i])
	}
	if need := 2 * unknowns; len(obs) < need {
		return nil, nil, fmt.Errorf("%w: %d safe samples, need %d for %d unknowns", ErrInsufficientSamples, len(obs), need, unknowns)
	}
	if err := obs.Validate(); err != nil {
		return nil, nil, err
	}
	if err := exp.Validate(); err != nil {
		return nil, nil, err
	}
	return obs, exp, nil
}

// FitAffine regresses each expected axis on the same observed axis over the
// masked samples. A nil mask uses every sample.
func FitAffine(observed, expected Cloud, mask []bool, opts AffineOptions) (AffineFit, error) {
	perAxis := 1
	if opts.OffsetEstimated {
		perAxis = 2
	}
	obs, exp, err := selectSafe(observed, expected, mask, 3*perAxis)
	if err != nil {
		return AffineFit{}, err
	}

	var offset, slope, r2 [3]float64
	for a := 0; a < 3; a++ {
		x := make([]float64, len(obs))
		y := make([]float64, len(obs))
		for i := range obs {
			x[i] = component(obs[i], a)
			y[i] = component(exp[i], a)
		}
		s, b, err := fitLine(x, y, opts.OffsetEstimated)
		if err != nil {
			return AffineFit{}, fmt.Errorf("axis %s: %w", axisNames[a], err)
		}
		slope[a] = s
		offset[a] = -b / s
		r2[a] = stat.RSquared(x, y, nil, b, s)
	}

	fit := AffineFit{
		Offset:    fromComponents(offset),
		Rescale:   fromComponents(slope),
		Normalize: 1,
		RSquared:  fromComponents(r2),
	}
	if opts.Normalize {
		gm := math.Cbrt(math.Abs(slope[0] * slope[1] * slope[2]))
		fit.Rescale = fit.Rescale.Mul(1 / gm)
		fit.Normalize = gm
	}
	return fit, nil
}

// fitLine solves y = slope·x + intercept (or y = slope·x) through the normal
// equations. The regressor is centered first so large raw offsets stay well
// conditioned.
func fitLine(x, y []float64, withIntercept bool) (slope, intercept float64, err error) {
	mean, variance := stat.MeanVariance(x, nil)
	if !(variance > varianceFloor*math.Max(1, mean*mean)) {
		return 0, 0, fmt.Errorf("%w: regressor has zero variance", ErrDegenerateFit)
	}

	if withIntercept {
		ne := newNormalEquations(2)
		for i := range x {
			ne.Add([]float64{x[i] - mean, 1}, y[i])
		}
		sol, err := ne.Solve()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
		}
		slope, intercept = sol[0], sol[1]-sol[0]*mean
	} else {
		ne := newNormalEquations(1)
		for i := range x {
			ne.Add([]float64{x[i]}, y[i])
		}
		sol, err := ne.Solve()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
		}
		slope = sol[0]
	}
	if !(math.Abs(slope) > slopeFloor) || math.IsInf(slope, 0) {
		return 0, 0, fmt.Errorf("%w: slope %v", ErrDegenerateFit, slope)
	}
	return slope, intercept, nil
}

// AffineMatrixFit is the cross-axis gyro model:
// Apply(v) = Matrix·(v − Offset)·Normalize.
type AffineMatrixFit struct {
	Offset    r3.Vector
	Matrix    *mat.Dense
	Normalize float64
}

func (f AffineMatrixFit) Apply(v r3.Vector) r3.Vector {
	return mulVec(f.Matrix, v.Sub(f.Offset)).Mul(f.Normalize)
}

func (f AffineMatrixFit) Calibration() SensorCalibration {
	return SensorCalibration{Center: VecFrom(f.Offset), Rescale: MatFrom(f.Matrix), Normalize: f.Normalize}
}

// FitAffineMatrix regresses every expected axis on all three observed axes,
// which also absorbs axis misalignment and cross coupling.
func FitAffineMatrix(observed, expected Cloud, mask []bool, opts AffineOptions) (AffineMatrixFit, error) {
	perAxis := 3
	if opts.OffsetEstimated {
		perAxis = 4
	}
	obs, exp, err := selectSafe(observed, expected, mask, 3*perAxis)
	if err != nil {
		return AffineMatrixFit{}, err
	}

	var mean r3.Vector
	if opts.OffsetEstimated {
		mean = obs.centroid()
	}
	for a := 0; a < 3; a++ {
		x := make([]float64, len(obs))
		for i := range obs {
			x[i] = component(obs[i], a)
		}
		m, v := stat.MeanVariance(x, nil)
		if !(v > varianceFloor*math.Max(1, m*m)) {
			return AffineMatrixFit{}, fmt.Errorf("axis %s: %w: regressor has zero variance", axisNames[a], ErrDegenerateFit)
		}
	}

	m := mat.NewDense(3, 3, nil)
	var bias [3]float64
	for k := 0; k < 3; k++ {
		ne := newNormalEquations(perAxis)
		row := make([]float64, perAxis)
		for i := range obs {
			d := obs[i].Sub(mean)
			row[0], row[1], row[2] = d.X, d.Y, d.Z
			if opts.OffsetEstimated {
				row[3] = 1
			}
			ne.Add(row, component(exp[i], k))
		}
		sol, err := ne.Solve()
		if err != nil {
			return AffineMatrixFit{}, fmt.Errorf("axis %s: %w: %v", axisNames[k], ErrDegenerateFit, err)
		}
		m.SetRow(k, sol[:3])
		if opts.OffsetEstimated {
			bias[k] = sol[3]
		}
	}

	det := mat.Det(m)
	if !(math.Abs(det) > slopeFloor) || math.IsInf(det, 0) {
		return AffineMatrixFit{}, fmt.Errorf("%w: singular rate matrix (det %v)", ErrDegenerateFit, det)
	}

	// expected = M·(v − mean) + bias = M·(v − offset)  ⇒  offset = mean − M⁻¹·bias.
	offset := mean
	if opts.OffsetEstimated {
		var inv mat.Dense
		if err := inv.Inverse(m); err != nil {
			return AffineMatrixFit{}, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
		}
		offset = mean.Sub(mulVec(&inv, fromComponents(bias)))
	}

	fit := AffineMatrixFit{Offset: offset, Matrix: m, Normalize: 1}
	if opts.Normalize {
		gm := math.Cbrt(math.Abs(det))
		fit.Matrix.Scale(1/gm, fit.Matrix)
		fit.Normalize = gm
	}
	return fit, nil
}
