package capture

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// Collect reads up to max samples from src. It stops early, without error,
// when the source ends or stop is closed. Samples with non-finite values are
// dropped.
func Collect(src imu.SampleSource, max int, stop <-chan struct{}) ([]imu.Sample, error) {
	samples := make([]imu.Sample, 0, max)
	for len(samples) < max {
		select {
		case <-stop:
			return samples, nil
		default:
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return samples, err
		}
		if !s.Finite() {
			log.Debugf("capture: dropping non-finite sample %d", len(samples))
			continue
		}
		samples = append(samples, s)
		if len(samples)%500 == 0 {
			log.Infof("capture: %d/%d samples", len(samples), max)
		}
	}
	return samples, nil
}
