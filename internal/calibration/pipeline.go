// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// Stage identifies a step of the calibration pipeline.
type Stage int

const (
	StageLoad Stage = iota
	StageFitAccelMag
	StageReconstructGyroExpected
	StageReconstructGyroObserved
	StageFilterSafety
	StageFitGyro
	StageEmit
)

func (s Stage) String() string {
	switch s {
	case StageLoad:
		return "load"
	case StageFitAccelMag:
		return "fit accel/mag"
	case StageReconstructGyroExpected:
		return "reconstruct expected gyro"
	case StageReconstructGyroObserved:
		return "reconstruct observed gyro"
	case StageFilterSafety:
		return "filter safety"
	case StageFitGyro:
		return "fit gyro"
	case StageEmit:
		return "emit"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Observer is told about every completed stage. It must not retain the run.
type Observer func(stage Stage, elapsed time.Duration)

// GyroModel is the fitted gyro correction, per-axis or cross-axis.
type GyroModel interface {
	Apply(v r3.Vector) r3.Vector
	Calibration() SensorCalibration
}

// Result holds everything a run produced. It is not modified after Run returns;
// accessors hand out copies.
type Result struct {
	Output CalibrationOutput

	AccelFit EllipsoidFit
	MagFit   EllipsoidFit
	Accel    SphereTransform
	Mag      SphereTransform
	Gyro     GyroModel

	accelFitted  Cloud
	magFitted    Cloud
	gyroExpected Cloud
	gyroObserved Cloud
	gyroFitted   Cloud
	mask         []bool
}

func (r *Result) AccelFitted() Cloud  { return r.accelFitted.Clone() }
func (r *Result) MagFitted() Cloud    { return r.magFitted.Clone() }
func (r *Result) GyroExpected() Cloud { return r.gyroExpected.Clone() }
func (r *Result) GyroObserved() Cloud { return r.gyroObserved.Clone() }

// GyroFitted is the observed rate series after the gyro correction.
func (r *Result) GyroFitted() Cloud { return r.gyroFitted.Clone() }

// Mask reports, per rate sample, whether it took part in the gyro fit.
func (r *Result) Mask() []bool {
	out := make([]bool, len(r.mask))
	copy(out, r.mask)
	return out
}

type run struct {
	opts    Options
	observe Observer
	res     *Result

	accel, mag, gyro Cloud
}

// Run executes the pipeline over one recorded motion sequence. Stages run in
// order and the first failure aborts with a *StageError.
func Run(samples []imu.Sample, opts Options, observe Observer) (*Result, error) {
	r := &run{opts: opts, observe: observe, res: &Result{}}
	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{StageLoad, func() error { return r.load(samples) }},
		{StageFitAccelMag, r.fitAccelMag},
		{StageReconstructGyroExpected, r.reconstructExpected},
		{StageReconstructGyroObserved, r.reconstructObserved},
		{StageFilterSafety, r.filterSafety},
		{StageFitGyro, r.fitGyro},
		{StageEmit, r.emit},
	}
	for _, s := range steps {
		start := time.Now()
		if err := s.fn(); err != nil {
			return nil, &StageError{Stage: s.stage, Err: err}
		}
		if r.observe != nil {
			r.observe(s.stage, time.Since(start))
		}
	}
	return r.res, nil
}

func (r *run) load(samples []imu.Sample) error {
	if err := r.opts.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if len(samples) < minEllipsoidPoints {
		return fmt.Errorf("%w: %d samples, need at least %d", ErrInsufficientSamples, len(samples), minEllipsoidPoints)
	}
	for i, s := range samples {
		if !s.Finite() {
			return fmt.Errorf("%w: sample %d is not finite", ErrInputShapeMismatch, i)
		}
	}
	a, m, g := imu.Split(samples)
	r.accel, r.mag, r.gyro = a, m, g
	return nil
}

type sphereFit struct {
	fit       EllipsoidFit
	transform SphereTransform
	points    int
}

func (r *run) fitSphere(name string, c Cloud) (sphereFit, error) {
	pts := Regularize(c, r.opts.RegularizeDivs)
	fit, err := FitEllipsoid(pts)
	if err != nil {
		return sphereFit{}, fmt.Errorf("%s: %w", name, err)
	}
	return sphereFit{fit: fit, transform: NewSphereTransform(fit, r.opts.VolumePreserving), points: len(pts)}, nil
}

func (r *run) fitAccelMag() error {
	var accel, mag sphereFit
	var g errgroup.Group
	g.Go(func() (err error) {
		accel, err = r.fitSphere("accel", r.accel)
		return err
	})
	g.Go(func() (err error) {
		mag, err = r.fitSphere("mag", r.mag)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	res := r.res
	res.AccelFit, res.Accel = accel.fit, accel.transform
	res.MagFit, res.Mag = mag.fit, mag.transform
	res.accelFitted = accel.transform.ApplyCloud(r.accel)
	res.magFitted = mag.transform.ApplyCloud(r.mag)

	d := &res.Output.Diagnostics
	d.Samples = len(r.accel)
	d.AccelPoints, d.MagPoints = accel.points, mag.points
	d.AccelRadii, d.MagRadii = VecFrom(accel.fit.Radii), VecFrom(mag.fit.Radii)
	d.AccelResidual = accel.fit.Residual(r.accel)
	d.MagResidual = mag.fit.Residual(r.mag)
	d.AccelCoverage = EstimateRange(r.accel, 0).Coverage()
	d.MagCoverage = EstimateRange(r.mag, 0).Coverage()
	return nil
}

func (r *run) reconstructExpected() error {
	exp, err := ExpectedRates(r.res.accelFitted, r.res.magFitted, r.opts)
	if err != nil {
		return err
	}
	r.res.gyroExpected = exp
	return nil
}

func (r *run) reconstructObserved() error {
	obs, err := ObservedRates(r.gyro, r.opts.Window)
	if err != nil {
		return err
	}
	if len(obs) != len(r.res.gyroExpected) {
		return fmt.Errorf("%w: %d observed rates, %d expected rates", ErrInputShapeMismatch, len(obs), len(r.res.gyroExpected))
	}
	r.res.gyroObserved = obs
	return nil
}

func (r *run) filterSafety() error {
	limits := LimitsFor(r.opts)
	mask, err := SafetyMask(r.res.gyroObserved, r.res.gyroExpected, limits)
	if err != nil {
		return err
	}
	r.res.mask = mask
	r.res.Output.Diagnostics.Safety = Summarize(mask, limits)
	return nil
}

func (r *run) fitGyro() error {
	res := r.res
	ao := AffineOptions{OffsetEstimated: r.opts.OffsetEstimated, Normalize: r.opts.NormalizeGyro}
	if r.opts.GyroCrossAxis {
		fit, err := FitAffineMatrix(res.gyroObserved, res.gyroExpected, res.mask, ao)
		if err != nil {
			return err
		}
		res.Gyro = fit
	} else {
		fit, err := FitAffine(res.gyroObserved, res.gyroExpected, res.mask, ao)
		if err != nil {
			return err
		}
		res.Gyro = fit
		r2 := VecFrom(fit.RSquared)
		res.Output.Diagnostics.GyroRSquared = &r2
	}

	res.gyroFitted = make(Cloud, len(res.gyroObserved))
	for i, v := range res.gyroObserved {
		res.gyroFitted[i] = res.Gyro.Apply(v)
	}
	return nil
}

func (r *run) emit() error {
	out := &r.res.Output
	out.SchemaVersion = SchemaVersion
	out.RunID = uuid.NewString()
	out.CalibratedAt = time.Now().UTC()
	out.Options = r.opts
	out.Accel = r.res.Accel.Calibration()
	out.Mag = r.res.Mag.Calibration()
	out.Gyro = r.res.Gyro.Calibration()
	return nil
}
