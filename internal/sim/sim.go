// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim generates synthetic motion sequences with known sensor
// distortions, used as a mock source and to exercise the fitting pipeline.
package sim

import (
	"io"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// Distortion maps a unit reference vector onto an ellipsoid:
// raw = Center + Axes·diag(Radii)·Axesᵀ·unit.
type Distortion struct {
	Center r3.Vector
	Radii  r3.Vector
	Axes   *mat.Dense // nil means identity
}

func (d Distortion) Apply(unit r3.Vector) r3.Vector {
	v := unit
	if d.Axes != nil {
		v = mulTVec(d.Axes, v)
	}
	v = r3.Vector{X: v.X * d.Radii.X, Y: v.Y * d.Radii.Y, Z: v.Z * d.Radii.Z}
	if d.Axes != nil {
		v = mulVec(d.Axes, v)
	}
	return d.Center.Add(v)
}

// Gyro models a per-axis gyro: rate = (raw − Offset) ⊙ Scale.
type Gyro struct {
	Offset r3.Vector
	Scale  r3.Vector
	// FullScale clips raw readings to ±FullScale when positive.
	FullScale float64
}

func (g Gyro) Raw(rate r3.Vector) r3.Vector {
	raw := r3.Vector{X: rate.X / g.Scale.X, Y: rate.Y / g.Scale.Y, Z: rate.Z / g.Scale.Z}.Add(g.Offset)
	if g.FullScale > 0 {
		raw = r3.Vector{X: clip(raw.X, g.FullScale), Y: clip(raw.Y, g.FullScale), Z: clip(raw.Z, g.FullScale)}
	}
	return raw
}

func clip(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Scenario describes a synthetic recording.
type Scenario struct {
	Samples int
	InputHz float64
	// Gravity and Field are the world-frame reference directions.
	Gravity r3.Vector
	Field   r3.Vector
	Accel   Distortion
	Mag     Distortion
	Gyro    Gyro
	// Rate is the body angular rate in rad/s at time t seconds.
	Rate func(t float64) r3.Vector
	// Noise is the standard deviation added to the unit accel/mag vectors.
	Noise float64
	Seed  int64
}

// Tumble is a smooth body rate that turns the sensor through every orientation
// within half a minute.
func Tumble(t float64) r3.Vector {
	return r3.Vector{
		X: 1.5 * math.Sin(0.9*t),
		Y: 1.2 * math.Sin(0.6*t+1),
		Z: 1.0 * math.Cos(0.4*t),
	}
}

// Default is a 30 s tumble at 100 Hz with hard- and soft-iron style
// distortions on a 16-bit sensor.
func Default() Scenario {
	return Scenario{
		Samples: 3000,
		InputHz: 100,
		Gravity: r3.Vector{X: 0, Y: 0, Z: 1},
		Field:   r3.Vector{X: 0.38, Y: 0, Z: -0.92},
		Accel: Distortion{
			Center: r3.Vector{X: 120, Y: -80, Z: 200},
			Radii:  r3.Vector{X: 16100, Y: 16500, Z: 15800},
		},
		Mag: Distortion{
			Center: r3.Vector{X: 310, Y: -145, Z: 60},
			Radii:  r3.Vector{X: 420, Y: 480, Z: 395},
			Axes:   Rotation(r3.Vector{X: 1, Y: 2, Z: 0.5}, 0.6),
		},
		Gyro: Gyro{
			Offset: r3.Vector{X: 35, Y: -20, Z: 12},
			Scale:  r3.Vector{X: 0.0010, Y: 0.0011, Z: 0.0009},
		},
		Rate: Tumble,
	}
}

// Generate integrates the body rate and produces one sample per step.
func (s Scenario) Generate() []imu.Sample {
	var rng *rand.Rand
	if s.Noise > 0 {
		rng = rand.New(rand.NewSource(s.Seed))
	}
	noisy := func(v r3.Vector) r3.Vector {
		if rng == nil {
			return v
		}
		return v.Add(r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Mul(s.Noise))
	}

	gravity, field := s.Gravity.Normalize(), s.Field.Normalize()
	dt := 1 / s.InputHz
	orient := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}) // body to world
	out := make([]imu.Sample, s.Samples)
	for i := range out {
		t := float64(i) * dt
		out[i] = imu.Sample{
			Accel: s.Accel.Apply(noisy(mulTVec(orient, gravity))),
			Mag:   s.Mag.Apply(noisy(mulTVec(orient, field))),
			Gyro:  s.Gyro.Raw(s.Rate(t)),
		}

		mid := s.Rate(t + dt/2)
		var next mat.Dense
		next.Mul(orient, Rotation(mid, mid.Norm()*dt))
		orient = &next
	}
	return out
}

// Write generates the scenario and encodes it as a sample file.
func (s Scenario) Write(w io.Writer) error {
	return imu.WriteSamples(w, s.Generate())
}

// Rotation is the rotation of angle radians about axis.
func Rotation(axis r3.Vector, angle float64) *mat.Dense {
	n := axis.Norm()
	if n == 0 || angle == 0 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	a := axis.Mul(1 / n)
	s, c := math.Sincos(angle)
	t := 1 - c
	return mat.NewDense(3, 3, []float64{
		t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y,
		t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X,
		t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c,
	})
}

func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func mulTVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return mulVec(m.T(), v)
}
