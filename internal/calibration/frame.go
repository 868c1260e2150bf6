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

// parallelTolerance is the sine of the smallest angle accepted between the
// two reference vectors of a frame. Closer than about a microradian the
// cross product is dominated by rounding and sensor noise.
const parallelTolerance = 1e-6

// axisAngleEpsilon is the rotation angle below which the axis is undefined.
const axisAngleEpsilon = 1e-9

// checkPair validates two reference vectors and returns them normalized.
func checkPair(v0, v1 r3.Vector) (r3.Vector, r3.Vector, error) {
	n0, ok0 := normalizeChecked(v0, vecEpsilon)
	n1, ok1 := normalizeChecked(v1, vecEpsilon)
	if !ok0 || !ok1 {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w: zero or non-finite reference vector", ErrDegenerateFrame)
	}
	if n0.Cross(n1).Norm() <= parallelTolerance {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("%w: reference vectors are parallel", ErrDegenerateFrame)
	}
	return n0, n1, nil
}

// Frame builds an orthonormal basis from two non-parallel reference vectors.
// The rows are the bisector of the normalized inputs, their normal, and the
// third axis completing a right-handed set.
func Frame(v0, v1 r3.Vector) (*mat.Dense, error) {
	n0, n1, err := checkPair(v0, v1)
	if err != nil {
		return nil, err
	}
	first := n0.Add(n1).Normalize()
	second := n0.Cross(n1).Normalize()
	third := first.Cross(second).Normalize()
	return rowsToDense(first, second, third), nil
}

// TwoFrameRotation is the rotation taking the frame of (a0, m0) to the frame
// of (a1, m1), expressed so that its axis-angle is the body rotation between
// the two samples.
func TwoFrameRotation(a0, m0, a1, m1 r3.Vector) (*mat.Dense, error) {
	f0, err := Frame(a0, m0)
	if err != nil {
		return nil, err
	}
	f1, err := Frame(a1, m1)
	if err != nil {
		return nil, err
	}
	var r mat.Dense
	r.Mul(f0.T(), f1)
	return &r, nil
}

// RigidRotation returns the rotation R minimizing Σ|R·src_i − dst_i|²
// (Kabsch). Reflections are corrected so R is always proper.
func RigidRotation(src, dst Cloud) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, fmt.Errorf("%w: %d source points, %d target points", ErrInputShapeMismatch, len(src), len(dst))
	}
	if len(src) < 2 {
		return nil, fmt.Errorf("%w: need at least two point pairs", ErrDegenerateFrame)
	}
	// H = Σ src_i·dst_iᵀ; R = V·Uᵀ is the nearest rotation to Hᵀ.
	var h mat.Dense
	h.Mul(toDense(src).T(), toDense(dst))
	r, ok := nearestRotation(h.T())
	if !ok {
		return nil, fmt.Errorf("%w: SVD did not converge", ErrDegenerateFrame)
	}
	return r, nil
}

// rotationBetween computes the relative body rotation between samples with
// the chosen estimator.
func rotationBetween(a0, m0, a1, m1 r3.Vector, method RotationMethod) (*mat.Dense, error) {
	if method != RotationSVD {
		return TwoFrameRotation(a0, m0, a1, m1)
	}
	n0a, n0m, err := checkPair(a0, m0)
	if err != nil {
		return nil, err
	}
	n1a, n1m, err := checkPair(a1, m1)
	if err != nil {
		return nil, err
	}
	// Vectors at t+1 are mapped onto vectors at t, matching the frame estimator's convention.
	return RigidRotation(Cloud{n1a, n1m}, Cloud{n0a, n0m})
}

// AxisAngle decomposes a rotation matrix. ok is false when the angle is too
// small for the axis to be defined.
func AxisAngle(r mat.Matrix) (axis r3.Vector, angle float64, ok bool) {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	// w = 2·sin(angle)·axis. atan2 keeps small angles accurate where acos would not.
	w := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	angle = math.Atan2(w.Norm()/2, clamp((tr-1)/2, -1, 1))
	if angle < axisAngleEpsilon {
		return r3.Vector{}, 0, false
	}
	if math.Pi-angle > 1e-6 {
		if a, ok := normalizeChecked(w, vecEpsilon); ok {
			return a, angle, true
		}
	}

	// Near π the skew part vanishes; use (R+I)/2 = a·aᵀ instead.
	var b [3][3]float64
	k := 0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i][j] = r.At(i, j) / 2
		}
		b[i][i] += 0.5
		if b[i][i] > b[k][k] {
			k = i
		}
	}
	ak := math.Sqrt(math.Max(b[k][k], 0))
	if ak < vecEpsilon {
		return r3.Vector{}, angle, false
	}
	var c [3]float64
	for i := 0; i < 3; i++ {
		c[i] = b[i][k] / ak
	}
	a, ok := normalizeChecked(fromComponents(c), vecEpsilon)
	if !ok {
		return r3.Vector{}, angle, false
	}
	if a.Dot(w) < 0 {
		a = a.Mul(-1)
	}
	return a, angle, true
}

// AxisAngleMatrix builds the rotation of angle radians about axis (Rodrigues).
func AxisAngleMatrix(axis r3.Vector, angle float64) *mat.Dense {
	a, ok := normalizeChecked(axis, vecEpsilon)
	if !ok || angle == 0 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	s, c := math.Sincos(angle)
	t := 1 - c
	return mat.NewDense(3, 3, []float64{
		t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y,
		t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X,
		t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c,
	})
}
