package app

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/capture"
	"github.com/relabs-tech/imu_calibration/internal/config"
	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// RunCapture records a motion sequence from source ("serial" or "mqtt") into
// out. It stops after limit samples (CAPTURE_MAX_SAMPLES when limit <= 0) or on
// Ctrl+C, and saves whatever was collected.
func RunCapture(source, out string, limit int) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if limit <= 0 {
		limit = cfg.CaptureMaxSamples
	}

	var (
		src      imu.SampleSource
		closeSrc func()
	)
	switch source {
	case "serial":
		port, err := capture.OpenSerial(cfg.SerialPort, cfg.SerialBaudRate)
		if err != nil {
			return fmt.Errorf("open serial %s: %w", cfg.SerialPort, err)
		}
		log.Printf("capture: reading %s at %d baud", cfg.SerialPort, cfg.SerialBaudRate)
		ls := capture.NewLineSource(port)
		defer func() {
			if ls.Skipped > 0 {
				log.Warnf("capture: skipped %d unparsable lines", ls.Skipped)
			}
		}()
		src = ls
		closeSrc = func() {
			if err := port.Close(); err != nil {
				log.Warnf("capture: close %s: %v", cfg.SerialPort, err)
			}
		}
	case "mqtt":
		ms, err := capture.SubscribeMQTT(cfg.MQTTBroker, cfg.MQTTClientIDCapture, cfg.TopicIMU, 1024)
		if err != nil {
			return err
		}
		src = ms
		closeSrc = ms.Close
	default:
		return fmt.Errorf("unknown source %q (want serial or mqtt)", source)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	samples, err := collectUntilSignal(src, closeSrc, limit, sigCh)
	if err != nil && len(samples) == 0 {
		return err
	}
	if err != nil {
		log.Warnf("capture: source error after %d samples: %v", len(samples), err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples captured")
	}
	if err := imu.SaveSamples(out, samples); err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": out, "samples": len(samples)}).Info("capture: saved")
	return nil
}

// collectUntilSignal collects from src until limit, end of stream or a
// signal on sigCh. closeSrc runs exactly once before it returns, and a
// signal closes the source early to unblock a pending Next.
func collectUntilSignal(src imu.SampleSource, closeSrc func(), limit int, sigCh <-chan os.Signal) ([]imu.Sample, error) {
	var once sync.Once
	closeOnce := func() { once.Do(closeSrc) }
	defer closeOnce()

	stop := make(chan struct{})
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-sigCh:
			log.Println("capture: stopping")
			close(stop)
			closeOnce()
		case <-done:
		}
	}()

	samples, err := capture.Collect(src, limit, stop)
	close(done)
	<-exited

	// A source closed by the signal may report its own error; the stop was
	// requested, so keep what arrived.
	select {
	case <-stop:
		if err != nil {
			log.Debugf("capture: source after stop: %v", err)
		}
		return samples, nil
	default:
	}
	return samples, err
}
