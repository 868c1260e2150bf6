package imu

import "github.com/golang/geo/r3"

// IMURaw represents a single raw IMU+mag sample as published on MQTT.
type IMURaw struct {
	Source string `json:"source"` // "left" or "right"

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// Sample converts the integer counts into a Sample.
func (r IMURaw) Sample() Sample {
	return Sample{
		Accel: r3.Vector{X: float64(r.Ax), Y: float64(r.Ay), Z: float64(r.Az)},
		Mag:   r3.Vector{X: float64(r.Mx), Y: float64(r.My), Z: float64(r.Mz)},
		Gyro:  r3.Vector{X: float64(r.Gx), Y: float64(r.Gy), Z: float64(r.Gz)},
	}
}

// SampleSource yields samples one at a time until it returns io.EOF.
type SampleSource interface {
	Next() (Sample, error)
}
