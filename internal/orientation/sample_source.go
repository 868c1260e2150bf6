// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// Corrector maps a raw sensor vector to its calibrated value.
type Corrector interface {
	Apply(v r3.Vector) r3.Vector
}

type sampleSource struct {
	src        imu.SampleSource
	accel, mag Corrector
}

// NewSampleSource turns raw samples into poses through the given accel and
// mag corrections. It returns whatever error the underlying source returns.
func NewSampleSource(src imu.SampleSource, accel, mag Corrector) Source {
	return &sampleSource{src: src, accel: accel, mag: mag}
}

func (s *sampleSource) Next() (Pose, error) {
	sample, err := s.src.Next()
	if err != nil {
		return Pose{}, err
	}
	return FromCalibrated(s.accel.Apply(sample.Accel), s.mag.Apply(sample.Mag)), nil
}
