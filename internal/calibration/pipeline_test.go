package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/relabs-tech/imu_calibration/internal/imu"
	"github.com/relabs-tech/imu_calibration/internal/sim"
)

func exactOptions() Options {
	o := DefaultOptions()
	o.RegularizeDivs = 0
	return o
}

func TestRunRecoversSimulatedSensor(t *testing.T) {
	scn := sim.Default()
	samples := scn.Generate()

	var stages []Stage
	res, err := Run(samples, exactOptions(), func(s Stage, _ time.Duration) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Stage{StageLoad, StageFitAccelMag, StageReconstructGyroExpected, StageReconstructGyroObserved,
		StageFilterSafety, StageFitGyro, StageEmit}
	if len(stages) != len(want) {
		t.Fatalf("observed stages %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage %d = %v, want %v", i, stages[i], want[i])
		}
	}

	if !vecClose(res.AccelFit.Center, scn.Accel.Center, 1e-3) {
		t.Errorf("accel center = %v, want %v", res.AccelFit.Center, scn.Accel.Center)
	}
	if !vecClose(res.MagFit.Center, scn.Mag.Center, 1e-4) {
		t.Errorf("mag center = %v, want %v", res.MagFit.Center, scn.Mag.Center)
	}
	for i, v := range res.AccelFitted() {
		if !scalar.EqualWithinAbs(v.Norm(), 1, 1e-6) {
			t.Fatalf("accel_fitted[%d] norm = %v", i, v.Norm())
		}
	}

	fit, ok := res.Gyro.(AffineFit)
	if !ok {
		t.Fatalf("gyro model is %T, want AffineFit", res.Gyro)
	}
	for a := 0; a < 3; a++ {
		got, w := component(fit.Scale(), a), component(scn.Gyro.Scale, a)
		if !scalar.EqualWithinRel(got, w, 1e-3) {
			t.Errorf("gyro scale %s = %v, want %v", axisNames[a], got, w)
		}
		got, w = component(fit.Offset, a), component(scn.Gyro.Offset, a)
		if !scalar.EqualWithinAbs(got, w, 0.5) {
			t.Errorf("gyro offset %s = %v, want %v", axisNames[a], got, w)
		}
	}

	n := len(samples) - 1
	if len(res.GyroExpected()) != n || len(res.GyroObserved()) != n || len(res.GyroFitted()) != n || len(res.Mask()) != n {
		t.Errorf("rate series lengths %d/%d/%d/%d, want %d",
			len(res.GyroExpected()), len(res.GyroObserved()), len(res.GyroFitted()), len(res.Mask()), n)
	}

	out := res.Output
	if out.SchemaVersion != SchemaVersion || out.RunID == "" || out.CalibratedAt.IsZero() {
		t.Errorf("output header = %d %q %v", out.SchemaVersion, out.RunID, out.CalibratedAt)
	}
	if out.Diagnostics.Safety.Excluded != 0 || out.Diagnostics.Safety.Total != n {
		t.Errorf("safety = %+v", out.Diagnostics.Safety)
	}
	if out.Diagnostics.GyroRSquared == nil || out.Diagnostics.GyroRSquared.X < 0.999 {
		t.Errorf("gyro R² = %v", out.Diagnostics.GyroRSquared)
	}
	// The persisted parameters reproduce the in-memory transforms.
	if got, want := out.Mag.Apply(samples[42].Mag), res.Mag.Apply(samples[42].Mag); !vecClose(got, want, 1e-12) {
		t.Errorf("mag calibration apply = %v, want %v", got, want)
	}
	if got, want := out.Gyro.Apply(samples[42].Gyro), fit.Apply(samples[42].Gyro); !vecClose(got, want, 1e-12) {
		t.Errorf("gyro calibration apply = %v, want %v", got, want)
	}
}

func TestRunResultIsReadOnly(t *testing.T) {
	res, err := Run(sim.Default().Generate(), exactOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	c := res.AccelFitted()
	c[0] = r3.Vector{X: 99}
	m := res.Mask()
	m[0] = !m[0]
	if res.AccelFitted()[0] == c[0] || res.Mask()[0] == m[0] {
		t.Fatal("accessors expose internal state")
	}
}

func TestRunExcludesSaturatedGyro(t *testing.T) {
	scn := sim.Default()
	scn.Gyro.FullScale = 1200
	opts := exactOptions()
	opts.GyroFullScale = 1200

	res, err := Run(scn.Generate(), opts, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := res.Output.Diagnostics.Safety
	if s.Excluded == 0 {
		t.Fatal("expected clipped samples to be excluded")
	}
	if s.Safe+s.Excluded != s.Total {
		t.Errorf("report = %+v", s)
	}
	fit := res.Gyro.(AffineFit)
	if !scalar.EqualWithinRel(fit.Scale().X, scn.Gyro.Scale.X, 1e-3) {
		t.Errorf("x scale = %v, want %v", fit.Scale().X, scn.Gyro.Scale.X)
	}
	// Excluded samples still receive an adjusted value.
	if len(res.GyroFitted()) != s.Total {
		t.Errorf("gyro_fitted has %d values, want %d", len(res.GyroFitted()), s.Total)
	}
}

func TestRunVariants(t *testing.T) {
	scn := sim.Default()
	samples := scn.Generate()

	centered := exactOptions()
	centered.Window = WindowCentered

	svd := exactOptions()
	svd.RotationMethod = RotationSVD

	cross := exactOptions()
	cross.GyroCrossAxis = true

	regularized := DefaultOptions()

	cases := map[string]struct {
		opts Options
		tol  float64
	}{
		"centered":    {centered, 1e-3},
		"svd":         {svd, 1e-3},
		"cross-axis":  {cross, 1e-3},
		"regularized": {regularized, 2e-2},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := Run(samples, c.opts, nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			raw := r3.Vector{X: 800, Y: -300, Z: 150}
			want := raw.Sub(scn.Gyro.Offset)
			want = r3.Vector{X: want.X * scn.Gyro.Scale.X, Y: want.Y * scn.Gyro.Scale.Y, Z: want.Z * scn.Gyro.Scale.Z}
			got := res.Output.Gyro.Apply(raw)
			if got.Sub(want).Norm() > c.tol*want.Norm() {
				t.Errorf("calibrated %v = %v, want %v", raw, got, want)
			}
		})
	}
}

func TestRunStageErrors(t *testing.T) {
	flat := make([]imu.Sample, 100)
	for i := range flat {
		flat[i] = imu.Sample{Accel: r3.Vector{Z: 1}, Mag: r3.Vector{X: 1}, Gyro: r3.Vector{}}
	}
	bad := DefaultOptions()
	bad.InputHz = 0

	cases := []struct {
		name    string
		samples []imu.Sample
		opts    Options
		stage   Stage
		want    error
	}{
		{"invalid options", sim.Default().Generate()[:100], bad, StageLoad, ErrInvalidOptions},
		{"too short", flat[:5], DefaultOptions(), StageLoad, ErrInsufficientSamples},
		{"stationary", flat, exactOptions(), StageFitAccelMag, ErrDegenerateGeometry},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Run(c.samples, c.opts, nil)
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StageError", err)
			}
			if se.Stage != c.stage {
				t.Errorf("stage = %v, want %v", se.Stage, c.stage)
			}
			if !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if err := PresetFixedPoint16().Validate(); err != nil {
		t.Errorf("fixed point preset invalid: %v", err)
	}
	o := DefaultOptions()
	o.GyroCutoffFraction = 1.5
	o.PrecisionScale = -1
	o.Window = Window(7)
	if err := o.Validate(); err == nil {
		t.Error("expected validation errors")
	}
}

func TestParseEnums(t *testing.T) {
	if w, err := ParseWindow("Centered"); err != nil || w != WindowCentered {
		t.Errorf("ParseWindow = %v, %v", w, err)
	}
	if _, err := ParseWindow("backward"); err == nil {
		t.Error("ParseWindow accepted an unknown window")
	}
	if m, err := ParseRotationMethod("svd"); err != nil || m != RotationSVD {
		t.Errorf("ParseRotationMethod = %v, %v", m, err)
	}
	var w Window
	if err := w.UnmarshalText([]byte("centered")); err != nil || w != WindowCentered {
		t.Errorf("UnmarshalText = %v, %v", w, err)
	}
}

func TestEstimateRange(t *testing.T) {
	c := Cloud{{X: 100, Y: 100, Z: 100}, {X: -1, Y: 2, Z: -3}, {X: 3, Y: -2, Z: 5}, {X: 1, Y: 0, Z: 1}}
	r := EstimateRange(c, 1)
	if r.Count != 3 {
		t.Fatalf("count = %d", r.Count)
	}
	if r.Offset() != (r3.Vector{X: 1, Y: 0, Z: 1}) {
		t.Errorf("offset = %v", r.Offset())
	}
	if r.Size() != (r3.Vector{X: 4, Y: 4, Z: 8}) {
		t.Errorf("size = %v", r.Size())
	}
	if r.Coverage() != 0.5 {
		t.Errorf("coverage = %v", r.Coverage())
	}
}
