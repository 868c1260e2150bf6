package orientation

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is the canonical representation of orientation for your app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is set to 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// FromCalibrated computes a full pose from calibrated accel and mag vectors.
// The magnetometer is projected onto the horizontal plane given by the tilt,
// and yaw is the heading of that projection in [0, 360).
//
// Only directions matter, so unit-sphere outputs of the calibration can be
// passed in as they are.
func FromCalibrated(accel, mag r3.Vector) Pose {
	p := ComputePoseFromAccel(accel.X, accel.Y, accel.Z)
	roll := p.Roll * math.Pi / 180
	pitch := p.Pitch * math.Pi / 180

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	bx := mag.X*cp + mag.Y*sp*sr + mag.Z*sp*cr
	by := mag.Y*cr - mag.Z*sr

	yaw := math.Atan2(-by, bx) * 180 / math.Pi
	if yaw < 0 {
		yaw += 360
	}
	p.Yaw = yaw
	return p
}
