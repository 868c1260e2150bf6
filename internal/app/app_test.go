package app

import (
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/golang/geo/r3"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
	"github.com/relabs-tech/imu_calibration/internal/config"
	"github.com/relabs-tech/imu_calibration/internal/imu"
	"github.com/relabs-tech/imu_calibration/internal/orientation"
	"github.com/relabs-tech/imu_calibration/internal/sim"
	"github.com/relabs-tech/imu_calibration/internal/store"
	"github.com/relabs-tech/imu_calibration/internal/viewer"
)

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if opts != calibration.DefaultOptions() {
		t.Errorf("options from default config = %+v\nwant %+v", opts, calibration.DefaultOptions())
	}

	cfg := config.Default()
	cfg.Window = "sideways"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("unknown window accepted")
	}
	cfg = config.Default()
	cfg.RotationMethod = "svd"
	cfg.Window = "centered"
	opts, err = OptionsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.RotationMethod != calibration.RotationSVD || opts.Window != calibration.WindowCentered {
		t.Errorf("options = %+v", opts)
	}
}

func TestPresetOptions(t *testing.T) {
	cfg := config.Default()
	cfg.InputRate = 200 * physic.Hertz

	o, err := PresetOptions("fixed16", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if o.InputHz != 200 || o.GyroTargetHz != 200 || o.PrecisionScale != 16 || !o.Degrees {
		t.Errorf("fixed16 = %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Error(err)
	}

	o, err = PresetOptions("float", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if o.InputHz != 200 || o.GyroTargetHz != 1 || o.PrecisionScale != 0 {
		t.Errorf("float = %+v", o)
	}

	if _, err := PresetOptions("q15", cfg); err == nil {
		t.Error("unknown preset accepted")
	}
}

func TestCalibrateWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "samples.json")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Default().Write(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	req := CalibrateRequest{
		In:      in,
		Out:     filepath.Join(dir, "calibration.yaml"),
		Scene:   filepath.Join(dir, "scene.json"),
		Preview: filepath.Join(dir, "preview.png"),
	}
	res, scene, err := Calibrate(config.Default(), req)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	out, err := store.LoadCalibration(req.Out)
	if err != nil {
		t.Fatal(err)
	}
	if out.RunID != res.Output.RunID {
		t.Errorf("stored run id %q, want %q", out.RunID, res.Output.RunID)
	}

	loaded, err := LoadScene(req.Scene)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.AccelFitted) != len(scene.AccelFitted) || len(loaded.Mask) != len(scene.Mask) {
		t.Errorf("scene sizes %d/%d, want %d/%d",
			len(loaded.AccelFitted), len(loaded.Mask), len(scene.AccelFitted), len(scene.Mask))
	}

	pf, err := os.Open(req.Preview)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()
	if _, err := png.Decode(pf); err != nil {
		t.Errorf("preview: %v", err)
	}
}

func TestCalibrateMissingInput(t *testing.T) {
	_, _, err := Calibrate(config.Default(), CalibrateRequest{In: filepath.Join(t.TempDir(), "none.json")})
	if err == nil {
		t.Fatal("missing input accepted")
	}
}

func TestSensorCorrectorPassesThroughUntilCalibrated(t *testing.T) {
	live := &liveCalibration{}
	c := sensorCorrector{cal: live, pick: func(o calibration.CalibrationOutput) calibration.SensorCalibration { return o.Mag }}
	v := r3.Vector{X: 10, Y: 20, Z: 30}
	if got := c.Apply(v); got != v {
		t.Errorf("uncalibrated = %v, want %v", got, v)
	}

	live.set(calibration.CalibrationOutput{Mag: calibration.SensorCalibration{
		Center:    calibration.Vec3{X: 10, Y: 20, Z: 30},
		Rescale:   calibration.Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Normalize: 0.5,
	}})
	if got := c.Apply(r3.Vector{X: 12, Y: 20, Z: 30}); got != (r3.Vector{X: 1}) {
		t.Errorf("calibrated = %v", got)
	}
}

func TestFormatReading(t *testing.T) {
	s := imu.Sample{Accel: r3.Vector{Z: 2}, Mag: r3.Vector{X: 1}, Gyro: r3.Vector{Y: 4}}
	line := FormatReading(s, nil, orientation.Pose{Yaw: 12.5})
	if !strings.HasPrefix(line, "[RAW]") || !strings.Contains(line, "YAW= 12.50") {
		t.Errorf("raw line = %q", line)
	}

	id := calibration.Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	cal := &calibration.CalibrationOutput{
		Accel: calibration.SensorCalibration{Rescale: id, Normalize: 0.5},
		Mag:   calibration.SensorCalibration{Rescale: id, Normalize: 1},
		Gyro:  calibration.SensorCalibration{Rescale: id, Normalize: 1},
	}
	line = FormatReading(s, cal, orientation.Pose{})
	if !strings.HasPrefix(line, "[CAL]") || !strings.Contains(line, "a=(   0.000    0.000    1.000)") {
		t.Errorf("calibrated line = %q", line)
	}
}

func TestSetupLogging(t *testing.T) {
	if err := SetupLogging("debug"); err != nil {
		t.Error(err)
	}
	if err := SetupLogging("loud"); err == nil {
		t.Error("bad level accepted")
	}
	SetupLogging("info")
}

// queuedSource hands out its queue, calls onDrain once it is empty and then
// blocks until closed.
type queuedSource struct {
	queue   []imu.Sample
	onDrain func()
	closed  chan struct{}
}

func (q *queuedSource) Next() (imu.Sample, error) {
	if len(q.queue) > 0 {
		s := q.queue[0]
		q.queue = q.queue[1:]
		return s, nil
	}
	if q.onDrain != nil {
		q.onDrain()
		q.onDrain = nil
	}
	<-q.closed
	return imu.Sample{}, io.EOF
}

func newQueuedSource(n int) *queuedSource {
	q := &queuedSource{closed: make(chan struct{})}
	for i := 0; i < n; i++ {
		q.queue = append(q.queue, imu.Sample{Accel: r3.Vector{X: float64(i)}})
	}
	return q
}

func TestCollectUntilSignalClosesOnce(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	src := newQueuedSource(3)
	src.onDrain = func() { sigCh <- syscall.SIGINT }
	var closes atomic.Int32
	closeSrc := func() {
		closes.Add(1)
		close(src.closed)
	}

	samples, err := collectUntilSignal(src, closeSrc, 10, sigCh)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Errorf("got %d samples, want 3", len(samples))
	}
	if n := closes.Load(); n != 1 {
		t.Errorf("source closed %d times, want 1", n)
	}
}

func TestCollectUntilSignalNormalFinish(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	src := newQueuedSource(5)
	var closes atomic.Int32
	samples, err := collectUntilSignal(src, func() { closes.Add(1) }, 2, sigCh)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || closes.Load() != 1 {
		t.Errorf("samples=%d closes=%d, want 2 and 1", len(samples), closes.Load())
	}

	// The watcher is gone: a later signal stays in the channel.
	sigCh <- syscall.SIGINT
	if len(sigCh) != 1 {
		t.Error("signal consumed after collection finished")
	}
	if closes.Load() != 1 {
		t.Errorf("source closed %d times after finish", closes.Load())
	}
}

func TestReloadScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	write := func(id string) {
		t.Helper()
		sc := viewer.Scene{Calibration: calibration.CalibrationOutput{SchemaVersion: calibration.SchemaVersion, RunID: id}}
		if err := store.Write(path, sc); err != nil {
			t.Fatal(err)
		}
	}
	runID := func(ts *httptest.Server) string {
		t.Helper()
		resp, err := http.Get(ts.URL + "/api/calibration")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out calibration.CalibrationOutput
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out.RunID
	}

	write("first")
	sc, err := LoadScene(path)
	if err != nil {
		t.Fatal(err)
	}
	srv := viewer.NewServer(sc)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	write("second")
	hup := make(chan os.Signal, 1)
	hup <- syscall.SIGHUP
	close(hup)
	reloadScene(hup, path, srv)
	if id := runID(ts); id != "second" {
		t.Errorf("after reload run id = %q, want second", id)
	}

	// A broken file keeps the current scene.
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	hup = make(chan os.Signal, 1)
	hup <- syscall.SIGHUP
	close(hup)
	reloadScene(hup, path, srv)
	if id := runID(ts); id != "second" {
		t.Errorf("after failed reload run id = %q, want second", id)
	}
}
