// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
	"github.com/relabs-tech/imu_calibration/internal/capture"
	"github.com/relabs-tech/imu_calibration/internal/config"
	"github.com/relabs-tech/imu_calibration/internal/imu"
	"github.com/relabs-tech/imu_calibration/internal/orientation"
)

// liveCalibration holds the latest calibration seen on the calibration topic.
type liveCalibration struct {
	mu  sync.RWMutex
	out *calibration.CalibrationOutput
}

func (l *liveCalibration) set(out calibration.CalibrationOutput) {
	l.mu.Lock()
	l.out = &out
	l.mu.Unlock()
}

func (l *liveCalibration) get() (calibration.CalibrationOutput, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.out == nil {
		return calibration.CalibrationOutput{}, false
	}
	return *l.out, true
}

// sensorCorrector applies one sensor's part of the live calibration, or
// passes raw values through until a calibration arrives.
type sensorCorrector struct {
	cal  *liveCalibration
	pick func(calibration.CalibrationOutput) calibration.SensorCalibration
}

func (c sensorCorrector) Apply(v r3.Vector) r3.Vector {
	out, ok := c.cal.get()
	if !ok {
		return v
	}
	return c.pick(out).Apply(v)
}

// lastSample remembers the sample behind the most recent pose.
type lastSample struct {
	src  imu.SampleSource
	last imu.Sample
}

func (t *lastSample) Next() (imu.Sample, error) {
	s, err := t.src.Next()
	if err == nil {
		t.last = s
	}
	return s, err
}

// FormatReading renders one console line. Without a calibration the raw
// vectors are printed.
func FormatReading(s imu.Sample, cal *calibration.CalibrationOutput, p orientation.Pose) string {
	tag := "RAW"
	if cal != nil {
		tag = "CAL"
		s = imu.Sample{
			Accel: cal.Accel.Apply(s.Accel),
			Mag:   cal.Mag.Apply(s.Mag),
			Gyro:  cal.Gyro.Apply(s.Gyro),
		}
	}
	return fmt.Sprintf(
		"[%s] a=(%8.3f %8.3f %8.3f)  m=(%8.3f %8.3f %8.3f)  g=(%9.3f %9.3f %9.3f)  ROLL=%6.2f PITCH=%6.2f YAW=%6.2f",
		tag,
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Mag.X, s.Mag.Y, s.Mag.Z,
		s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
		p.Roll, p.Pitch, p.Yaw,
	)
}

// RunConsole follows the calibration topic and prints every IMU sample with
// the latest calibration applied.
func RunConsole() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	live := &liveCalibration{}
	calToken := client.Subscribe(cfg.TopicCalibration, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var out calibration.CalibrationOutput
		if err := json.Unmarshal(msg.Payload(), &out); err != nil {
			log.Printf("console: calibration unmarshal error: %v", err)
			return
		}
		if out.SchemaVersion != calibration.SchemaVersion {
			log.Printf("console: ignoring calibration with schema version %d", out.SchemaVersion)
			return
		}
		if err := out.Validate(); err != nil {
			log.Printf("console: ignoring calibration %s: %v", out.RunID, err)
			return
		}
		live.set(out)
		fmt.Printf("[CAL ] run=%s at=%s samples=%d\n", out.RunID, out.CalibratedAt.Format("2006-01-02 15:04:05"), out.Diagnostics.Samples)
	})
	calToken.Wait()
	if calToken.Error() != nil {
		return calToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicCalibration)

	src, err := capture.SubscribeMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole+"-imu", cfg.TopicIMU, 64)
	if err != nil {
		return err
	}
	defer src.Close()

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("console: shutting down")
		src.Close()
	}()

	tee := &lastSample{src: src}
	pick := func(f func(calibration.CalibrationOutput) calibration.SensorCalibration) sensorCorrector {
		return sensorCorrector{cal: live, pick: f}
	}
	poses := orientation.NewSampleSource(tee,
		pick(func(o calibration.CalibrationOutput) calibration.SensorCalibration { return o.Accel }),
		pick(func(o calibration.CalibrationOutput) calibration.SensorCalibration { return o.Mag }),
	)
	for {
		p, err := poses.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var calp *calibration.CalibrationOutput
		if out, ok := live.get(); ok {
			calp = &out
		}
		fmt.Println(FormatReading(tee.last, calp, p))
	}
}
