// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capture

import (
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

const (
	// TalkerID and TypeIMU form the sentence prefix: $CLIMU,ax,ay,az,mx,my,mz,gx,gy,gz*CS
	TalkerID = "CL"
	TypeIMU  = "IMU"

	imuFields = 9
)

// IMUSentence is one raw sample framed as an NMEA sentence by the logger firmware.
type IMUSentence struct {
	nmea.BaseSentence
	Sample imu.Sample
}

func init() {
	nmea.MustRegisterParser(TypeIMU, parseIMU)
}

func parseIMU(s nmea.BaseSentence) (nmea.Sentence, error) {
	if len(s.Fields) != imuFields {
		return nil, fmt.Errorf("nmea: %s has %d fields, want %d", s.Prefix(), len(s.Fields), imuFields)
	}
	p := nmea.NewParser(s)
	vec := func(i int, name string) r3.Vector {
		return r3.Vector{
			X: p.Float64(i, name+" x"),
			Y: p.Float64(i+1, name+" y"),
			Z: p.Float64(i+2, name+" z"),
		}
	}
	m := IMUSentence{BaseSentence: s}
	m.Sample.Accel = vec(0, "accel")
	m.Sample.Mag = vec(3, "mag")
	m.Sample.Gyro = vec(6, "gyro")
	return m, p.Err()
}

// FormatIMU frames a sample as a checksummed $CLIMU sentence.
func FormatIMU(s imu.Sample) string {
	fields := []float64{
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Mag.X, s.Mag.Y, s.Mag.Z,
		s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
	}
	var b strings.Builder
	b.WriteString(TalkerID + TypeIMU)
	for _, f := range fields {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	body := b.String()
	return "$" + body + "*" + nmea.Checksum(body)
}

// ParseLine parses one $CLIMU sentence. Other sentence types are reported as errors.
func ParseLine(line string) (imu.Sample, error) {
	sentence, err := nmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return imu.Sample{}, err
	}
	m, ok := sentence.(IMUSentence)
	if !ok {
		return imu.Sample{}, fmt.Errorf("nmea: unexpected sentence %s", sentence.Prefix())
	}
	return m.Sample, nil
}
