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

// minEllipsoidPoints is the number of quadric unknowns.
const minEllipsoidPoints = 9

// DefaultRegularizeDivs is the polar division count used to even out sample density.
const DefaultRegularizeDivs = 8

// EllipsoidFit describes the ellipsoid (p−Center)ᵀ·Axes·diag(1/Radii²)·Axesᵀ·(p−Center) = 1.
type EllipsoidFit struct {
	Center r3.Vector
	// Axes holds the unit principal axes as columns. It is orthonormal and right-handed.
	Axes *mat.Dense
	// Radii are the semi-axis lengths, in the column order of Axes.
	Radii r3.Vector
}

// Quadric holds the coefficients of
// Ax² + By² + Cz² + 2Dxy + 2Exz + 2Fyz + 2Gx + 2Hy + 2Iz + J = 0.
type Quadric struct {
	A, B, C, D, E, F, G, H, I, J float64
}

// quadricFromSolution maps the constrained least-squares solution back to
// the general quadric. The constraint A+B+C = −3 is baked into the first two
// design columns.
func quadricFromSolution(u []float64) Quadric {
	return Quadric{
		A: u[0] + u[1] - 1,
		B: u[0] - 2*u[1] - 1,
		C: u[1] - 2*u[0] - 1,
		D: u[2],
		E: u[3],
		F: u[4],
		G: u[5],
		H: u[6],
		I: u[7],
		J: u[8],
	}
}

// FitEllipsoid fits a general ellipsoid to the cloud by linear least squares.
func FitEllipsoid(cloud Cloud) (EllipsoidFit, error) {
	if len(cloud) < minEllipsoidPoints {
		return EllipsoidFit{}, fmt.Errorf("%w: %d points, need at least %d",
			ErrDegenerateGeometry, len(cloud), minEllipsoidPoints)
	}
	if err := cloud.Validate(); err != nil {
		return EllipsoidFit{}, err
	}

	// Work on a centered, unit-RMS copy so raw counts do not wreck the conditioning.
	shift := cloud.centroid()
	var ss float64
	for _, p := range cloud {
		ss += p.Sub(shift).Norm2()
	}
	scale := math.Sqrt(ss / float64(len(cloud)))
	if !(scale > vecEpsilon) {
		return EllipsoidFit{}, fmt.Errorf("%w: all points coincide", ErrDegenerateGeometry)
	}

	ne := newNormalEquations(9)
	row := make([]float64, 9)
	for _, p := range cloud {
		q := p.Sub(shift).Mul(1 / scale)
		x, y, z := q.X, q.Y, q.Z
		row[0] = x*x + y*y - 2*z*z
		row[1] = x*x + z*z - 2*y*y
		row[2] = 2 * x * y
		row[3] = 2 * x * z
		row[4] = 2 * y * z
		row[5] = 2 * x
		row[6] = 2 * y
		row[7] = 2 * z
		row[8] = 1
		ne.Add(row, x*x+y*y+z*z)
	}
	u, err := ne.Solve()
	if err != nil {
		return EllipsoidFit{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	fit, err := quadricFromSolution(u).ellipsoid()
	if err != nil {
		return EllipsoidFit{}, err
	}
	fit.Center = shift.Add(fit.Center.Mul(scale))
	fit.Radii = fit.Radii.Mul(scale)
	return fit, nil
}

// ellipsoid extracts center, axes and radii. It fails when the quadric is
// not an ellipsoid.
func (q Quadric) ellipsoid() (EllipsoidFit, error) {
	a3 := mat.NewSymDense(3, []float64{
		q.A, q.D, q.E,
		q.D, q.B, q.F,
		q.E, q.F, q.C,
	})
	b := mat.NewVecDense(3, []float64{q.G, q.H, q.I})

	var negB, c mat.VecDense
	negB.ScaleVec(-1, b)
	if err := c.SolveVec(a3, &negB); err != nil {
		return EllipsoidFit{}, fmt.Errorf("%w: singular quadric form: %v", ErrDegenerateGeometry, err)
	}
	center := r3.Vector{X: c.AtVec(0), Y: c.AtVec(1), Z: c.AtVec(2)}

	// Constant term after translating to the center.
	r44 := q.J + mat.Dot(b, &c)
	if !(math.Abs(r44) > vecEpsilon) {
		return EllipsoidFit{}, fmt.Errorf("%w: quadric passes through its center", ErrDegenerateGeometry)
	}
	m := mat.NewSymDense(3, nil)
	m.ScaleSym(-1/r44, a3)

	var es mat.EigenSym
	if ok := es.Factorize(m, true); !ok {
		return EllipsoidFit{}, fmt.Errorf("%w: eigen decomposition failed", ErrDegenerateGeometry)
	}
	values := es.Values(nil)
	var radii [3]float64
	for i, l := range values {
		if !(l > 0) || math.IsInf(l, 0) {
			return EllipsoidFit{}, fmt.Errorf("%w: quadric is not an ellipsoid (eigenvalues %v)",
				ErrDegenerateGeometry, values)
		}
		radii[i] = 1 / math.Sqrt(l)
	}

	axes := mat.NewDense(3, 3, nil)
	es.VectorsTo(axes)
	if mat.Det(axes) < 0 {
		for i := 0; i < 3; i++ {
			axes.Set(i, 2, -axes.At(i, 2))
		}
	}
	return EllipsoidFit{Center: center, Axes: axes, Radii: fromComponents(radii)}, nil
}

// Residual is the RMS of |T(p)|−1 over the cloud, with T the non volume
// preserving sphere transform of the fit.
func (f EllipsoidFit) Residual(cloud Cloud) float64 {
	if len(cloud) == 0 {
		return 0
	}
	t := NewSphereTransform(f, false)
	var ss float64
	for _, p := range cloud {
		d := t.Apply(p).Norm() - 1
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(cloud)))
}

// Regularize evens out sample density by binning point directions, seen from
// the middle of the bounding box, into divs polar by 2·divs azimuth cells and
// replacing the points of each cell by their mean. divs <= 0 disables it.
func Regularize(cloud Cloud, divs int) Cloud {
	if divs <= 0 || len(cloud) == 0 {
		return cloud.Clone()
	}
	lo, hi := cloud.bounds()
	mid := lo.Add(hi).Mul(0.5)

	polar, azimuth := divs, 2*divs
	type cell struct {
		sum r3.Vector
		n   int
	}
	cells := make([]cell, polar*azimuth)
	for _, p := range cloud {
		d := p.Sub(mid)
		r := d.Norm()
		if r == 0 {
			continue
		}
		theta := math.Acos(clamp(d.Z/r, -1, 1))
		phi := math.Atan2(d.Y, d.X) + math.Pi
		i := min(int(theta/math.Pi*float64(polar)), polar-1)
		j := min(int(phi/(2*math.Pi)*float64(azimuth)), azimuth-1)
		c := &cells[i*azimuth+j]
		c.sum = c.sum.Add(p)
		c.n++
	}

	out := make(Cloud, 0, len(cells))
	for _, c := range cells {
		if c.n > 0 {
			out = append(out, c.sum.Mul(1/float64(c.n)))
		}
	}
	return out
}
