package viewer

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
	"github.com/relabs-tech/imu_calibration/internal/orientation"
)

// Point is a 3D point in the compact form sent to clients.
type Point [3]float64

func (p Point) vector() r3.Vector { return r3.Vector{X: p[0], Y: p[1], Z: p[2]} }

func points(c calibration.Cloud) []Point {
	out := make([]Point, len(c))
	for i, v := range c {
		out[i] = Point{v.X, v.Y, v.Z}
	}
	return out
}

// Scene is the data a viewer renders: the fitted clouds, the safety mask of
// the rate series and one pose per sample for playback.
type Scene struct {
	Calibration  calibration.CalibrationOutput `json:"calibration"`
	InputHz      float64                       `json:"input_hz"`
	AccelFitted  []Point                       `json:"accel_fitted"`
	MagFitted    []Point                       `json:"mag_fitted"`
	GyroExpected []Point                       `json:"gyro_expected"`
	GyroFitted   []Point                       `json:"gyro_fitted"`
	Mask         []bool                        `json:"mask"`
	Poses        []orientation.Pose            `json:"poses"`
}

// NewScene collects the viewer data of a finished run.
func NewScene(res *calibration.Result) *Scene {
	accel, mag := res.AccelFitted(), res.MagFitted()
	poses := make([]orientation.Pose, len(accel))
	for i := range accel {
		poses[i] = orientation.FromCalibrated(accel[i], mag[i])
	}
	return &Scene{
		Calibration:  res.Output,
		InputHz:      res.Output.Options.InputHz,
		AccelFitted:  points(accel),
		MagFitted:    points(mag),
		GyroExpected: points(res.GyroExpected()),
		GyroFitted:   points(res.GyroFitted()),
		Mask:         res.Mask(),
		Poses:        poses,
	}
}

// rateScale is the factor bringing both rate clouds into the unit cube.
func (sc *Scene) rateScale() float64 {
	var m float64
	for _, set := range [][]Point{sc.GyroExpected, sc.GyroFitted} {
		for _, p := range set {
			m = math.Max(m, p.vector().Norm())
		}
	}
	if m == 0 {
		return 1
	}
	return 1 / m
}

// Frame is what the feed sends after every event.
type Frame struct {
	State ViewerState       `json:"state"`
	Index int               `json:"index"`
	Pose  *orientation.Pose `json:"pose,omitempty"`
}

// FrameAt resolves the playback sample for the state's clock.
func (sc *Scene) FrameAt(s ViewerState) Frame {
	f := Frame{State: s, Index: -1}
	if len(sc.Poses) == 0 {
		return f
	}
	hz := sc.InputHz
	if hz <= 0 {
		hz = 1
	}
	pos := s.Clock * hz
	if !finite(pos) || pos < 0 {
		pos = 0
	}
	f.Index = int(math.Mod(pos, float64(len(sc.Poses))))
	p := sc.Poses[f.Index]
	f.Pose = &p
	return f
}
