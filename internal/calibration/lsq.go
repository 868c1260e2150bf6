// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the condition number accepted from the normal equations.
const maxCondition = 1e12

// normalEquations accumulates AᵀA and Aᵀy one design row at a time so a
// solve never needs the full design matrix in memory.
type normalEquations struct {
	n    int
	rows int
	ata  *mat.SymDense
	aty  *mat.VecDense
}

func newNormalEquations(unknowns int) *normalEquations {
	return &normalEquations{
		n:   unknowns,
		ata: mat.NewSymDense(unknowns, nil),
		aty: mat.NewVecDense(unknowns, nil),
	}
}

// Add accumulates one design row and its target value.
func (ne *normalEquations) Add(row []float64, y float64) {
	for i := 0; i < ne.n; i++ {
		ne.aty.SetVec(i, ne.aty.AtVec(i)+row[i]*y)
		for j := i; j < ne.n; j++ {
			ne.ata.SetSym(i, j, ne.ata.At(i, j)+row[i]*row[j])
		}
	}
	ne.rows++
}

// Solve returns the least-squares solution of the accumulated system.
func (ne *normalEquations) Solve() ([]float64, error) {
	if ne.rows < ne.n {
		return nil, fmt.Errorf("%w: %d rows for %d unknowns", errRankDeficient, ne.rows, ne.n)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(ne.ata); !ok {
		return nil, errRankDeficient
	}
	if c := chol.Cond(); c > maxCondition || math.IsNaN(c) {
		return nil, fmt.Errorf("%w: condition number %.3g", errRankDeficient, c)
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, ne.aty); err != nil {
		return nil, fmt.Errorf("%w: %v", errRankDeficient, err)
	}
	out := make([]float64, ne.n)
	for i := range out {
		out[i] = x.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("%w: non-finite solution", errRankDeficient)
		}
	}
	return out, nil
}
