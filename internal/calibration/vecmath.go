// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Cloud is an ordered set of 3D measurements.
type Cloud []r3.Vector

const vecEpsilon = 1e-12

// Validate rejects clouds holding NaN or infinite components.
func (c Cloud) Validate() error {
	for i, v := range c {
		if !finiteVec(v) {
			return fmt.Errorf("%w: point %d is not finite (%v)", ErrInputShapeMismatch, i, v)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (c Cloud) Clone() Cloud {
	if c == nil {
		return nil
	}
	out := make(Cloud, len(c))
	copy(out, c)
	return out
}

func (c Cloud) centroid() r3.Vector {
	var sum r3.Vector
	for _, v := range c {
		sum = sum.Add(v)
	}
	if len(c) == 0 {
		return sum
	}
	return sum.Mul(1 / float64(len(c)))
}

func (c Cloud) bounds() (lo, hi r3.Vector) {
	if len(c) == 0 {
		return lo, hi
	}
	lo, hi = c[0], c[0]
	for _, v := range c[1:] {
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

func finiteVec(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// normalizeChecked returns v/|v|, refusing vectors whose norm is at or below eps.
func normalizeChecked(v r3.Vector, eps float64) (r3.Vector, bool) {
	n := v.Norm()
	if !(n > eps) || math.IsInf(n, 0) {
		return r3.Vector{}, false
	}
	return v.Mul(1 / n), true
}

func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func fromComponents(c [3]float64) r3.Vector {
	return r3.Vector{X: c[0], Y: c[1], Z: c[2]}
}

// mulVec computes m·v for a 3×3 matrix.
func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// rowsToDense stacks vectors as the rows of a 3×3 matrix.
func rowsToDense(rows ...r3.Vector) *mat.Dense {
	m := mat.NewDense(len(rows), 3, nil)
	for i, r := range rows {
		m.SetRow(i, []float64{r.X, r.Y, r.Z})
	}
	return m
}

// toDense lays a cloud out as an n×3 matrix, one point per row.
func toDense(c Cloud) *mat.Dense {
	if len(c) == 0 {
		return &mat.Dense{}
	}
	return rowsToDense(c...)
}

// nearestRotation projects m onto SO(3) through its SVD. The singular vector
// pair with the smallest singular value is flipped when needed so the result
// is a proper rotation rather than a reflection.
func nearestRotation(m mat.Matrix) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r, true
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
