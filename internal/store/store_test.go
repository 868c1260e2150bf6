package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
)

func sampleOutput() calibration.CalibrationOutput {
	opts := calibration.DefaultOptions()
	opts.Window = calibration.WindowCentered
	r2 := calibration.Vec3{X: 0.99, Y: 0.98, Z: 0.97}
	return calibration.CalibrationOutput{
		SchemaVersion: calibration.SchemaVersion,
		RunID:         "3f1c2a9e-0000-4000-8000-000000000001",
		CalibratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Options:       opts,
		Accel: calibration.SensorCalibration{
			Center:    calibration.Vec3{X: 120, Y: -80, Z: 200},
			Rescale:   calibration.Mat3{{1.01, 0.002, 0}, {0.002, 0.99, 0}, {0, 0, 1}},
			Normalize: 1.0 / 16000,
		},
		Mag: calibration.SensorCalibration{
			Center:    calibration.Vec3{X: 310, Y: -145, Z: 60},
			Rescale:   calibration.Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			Normalize: 1.0 / 430,
		},
		Gyro: calibration.SensorCalibration{
			Center:    calibration.Vec3{X: 35, Y: -20, Z: 12},
			Rescale:   calibration.Mat3{{0.001, 0, 0}, {0, 0.0011, 0}, {0, 0, 0.0009}},
			Normalize: 1,
		},
		Diagnostics: calibration.Diagnostics{Samples: 3000, GyroRSquared: &r2},
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"out.json":       JSON,
		"out.YAML":       YAML,
		"dir/out.yml":    YAML,
		"no-extension":   JSON,
		"archive.tar.gz": JSON,
	}
	for path, want := range cases {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestSaveLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	want := sampleOutput()
	for _, name := range []string{"cal.json", "cal.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := SaveCalibration(path, want); err != nil {
				t.Fatalf("SaveCalibration: %v", err)
			}
			got, err := LoadCalibration(path)
			if err != nil {
				t.Fatalf("LoadCalibration: %v", err)
			}
			if got.RunID != want.RunID || !got.CalibratedAt.Equal(want.CalibratedAt) {
				t.Errorf("header = %q %v", got.RunID, got.CalibratedAt)
			}
			if got.Accel != want.Accel || got.Mag != want.Mag || got.Gyro != want.Gyro {
				t.Errorf("sensor blocks differ:\n got %+v\nwant %+v", got, want)
			}
			if got.Options != want.Options {
				t.Errorf("options = %+v, want %+v", got.Options, want.Options)
			}
			v := r3.Vector{X: 500, Y: 0, Z: -200}
			if got.Gyro.Apply(v) != want.Gyro.Apply(v) {
				t.Error("loaded gyro calibration applies differently")
			}
		})
	}
}

func TestYAMLUsesReadableEnums(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.yaml")
	if err := SaveCalibration(path, sampleOutput()); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "window: centered") {
		t.Errorf("yaml does not name the window:\n%s", b)
	}
}

func TestLoadCalibrationRejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(empty); err == nil {
		t.Error("accepted a file without schema_version")
	}
	future := filepath.Join(dir, "future.json")
	if err := os.WriteFile(future, []byte(`{"schema_version": 99}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(future); err == nil {
		t.Error("accepted a newer schema")
	}
	if _, err := LoadCalibration(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("accepted a missing file")
	}

	singular := sampleOutput()
	singular.Mag.Rescale = calibration.Mat3{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}
	path := filepath.Join(dir, "singular.json")
	if err := SaveCalibration(path, singular); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(path); !errors.Is(err, calibration.ErrDegenerateFit) {
		t.Errorf("singular mag rescale: err = %v, want ErrDegenerateFit", err)
	}
}
