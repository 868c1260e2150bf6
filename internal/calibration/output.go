// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// SchemaVersion is bumped whenever CalibrationOutput changes shape.
const SchemaVersion = 1

// ---------- Serializable types ----------

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func VecFrom(v r3.Vector) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

func (v Vec3) Vector() r3.Vector { return r3.Vector{X: v.X, Y: v.Y, Z: v.Z} }

// Mat3 is a row-major 3×3 matrix.
type Mat3 [3][3]float64

func MatFrom(m mat.Matrix) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func (m Mat3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// SensorCalibration maps a raw reading v to Rescale·(v − Center)·Normalize.
// For the gyro, Center is the zero-rate offset.
type SensorCalibration struct {
	Center    Vec3    `json:"center" yaml:"center"`
	Rescale   Mat3    `json:"rescale" yaml:"rescale"`
	Normalize float64 `json:"normalize" yaml:"normalize"`
}

func (c SensorCalibration) Apply(v r3.Vector) r3.Vector {
	d := v.Sub(c.Center.Vector())
	r := c.Rescale
	return r3.Vector{
		X: r[0][0]*d.X + r[0][1]*d.Y + r[0][2]*d.Z,
		Y: r[1][0]*d.X + r[1][1]*d.Y + r[1][2]*d.Z,
		Z: r[2][0]*d.X + r[2][1]*d.Y + r[2][2]*d.Z,
	}.Mul(c.Normalize)
}

// singularRatio bounds |det(Rescale)| relative to the product of its row
// norms. Below it the rescale cannot be inverted reliably.
const singularRatio = 1e-12

// Validate rejects blocks that cannot be replayed: non-finite entries, a zero
// normalize factor or a singular rescale matrix.
func (c SensorCalibration) Validate() error {
	vals := []float64{c.Center.X, c.Center.Y, c.Center.Z, c.Normalize}
	for _, row := range c.Rescale {
		vals = append(vals, row[:]...)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite parameter", ErrInputShapeMismatch)
		}
	}
	if c.Normalize == 0 {
		return fmt.Errorf("%w: zero normalize factor", ErrDegenerateFit)
	}
	bound := 1.0
	for _, row := range c.Rescale {
		bound *= math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
	}
	if bound == 0 || math.Abs(mat.Det(c.Rescale.Dense())) < singularRatio*bound {
		return fmt.Errorf("%w: singular rescale", ErrDegenerateFit)
	}
	return nil
}

// Validate checks every sensor block.
func (o CalibrationOutput) Validate() error {
	for _, s := range []struct {
		name string
		cal  SensorCalibration
	}{{"accel", o.Accel}, {"mag", o.Mag}, {"gyro", o.Gyro}} {
		if err := s.cal.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Diagnostics summarizes fit quality and data coverage.
type Diagnostics struct {
	Samples       int          `json:"samples" yaml:"samples"`
	AccelPoints   int          `json:"accel_points" yaml:"accel_points"` // after regularization
	MagPoints     int          `json:"mag_points" yaml:"mag_points"`
	AccelRadii    Vec3         `json:"accel_radii" yaml:"accel_radii"`
	MagRadii      Vec3         `json:"mag_radii" yaml:"mag_radii"`
	AccelResidual float64      `json:"accel_residual" yaml:"accel_residual"`
	MagResidual   float64      `json:"mag_residual" yaml:"mag_residual"`
	AccelCoverage float64      `json:"accel_coverage" yaml:"accel_coverage"`
	MagCoverage   float64      `json:"mag_coverage" yaml:"mag_coverage"`
	Safety        SafetyReport `json:"safety" yaml:"safety"`
	GyroRSquared  *Vec3        `json:"gyro_r_squared,omitempty" yaml:"gyro_r_squared,omitempty"`
}

// CalibrationOutput is the persisted result of a run.
type CalibrationOutput struct {
	SchemaVersion int       `json:"schema_version" yaml:"schema_version"`
	RunID         string    `json:"run_id" yaml:"run_id"`
	CalibratedAt  time.Time `json:"calibrated_at" yaml:"calibrated_at"`
	Options       Options   `json:"options" yaml:"options"`

	Accel SensorCalibration `json:"accel" yaml:"accel"`
	Mag   SensorCalibration `json:"mag" yaml:"mag"`
	Gyro  SensorCalibration `json:"gyro" yaml:"gyro"`

	Diagnostics Diagnostics `json:"diagnostics" yaml:"diagnostics"`
}
