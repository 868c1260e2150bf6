// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
	"github.com/relabs-tech/imu_calibration/internal/config"
	"github.com/relabs-tech/imu_calibration/internal/imu"
	"github.com/relabs-tech/imu_calibration/internal/store"
	"github.com/relabs-tech/imu_calibration/internal/viewer"
)

// CalibrateRequest names the files of one calibrate run. Empty paths are skipped.
type CalibrateRequest struct {
	In      string // samples file
	Preset  string // "", "float" or "fixed16"; see PresetOptions
	Out     string // calibration result, .json or .yaml
	Scene   string // viewer scene
	Preview string // PNG snapshot
	Publish bool   // publish the result on TOPIC_CALIBRATION (retained)
	Serve   bool   // serve the viewer feed after fitting
}

// OptionsFromConfig builds the calibration options from the CAL_* keys.
func OptionsFromConfig(cfg *config.Config) (calibration.Options, error) {
	window, err := calibration.ParseWindow(cfg.Window)
	if err != nil {
		return calibration.Options{}, err
	}
	method, err := calibration.ParseRotationMethod(cfg.RotationMethod)
	if err != nil {
		return calibration.Options{}, err
	}
	return calibration.Options{
		PrecisionScale:     cfg.PrecisionScale,
		GyroCutoffFraction: cfg.GyroCutoffFraction,
		VolumePreserving:   cfg.VolumePreserving,
		OffsetEstimated:    cfg.OffsetEstimated,
		InputHz:            config.Hertz(cfg.InputRate),
		GyroTargetHz:       config.Hertz(cfg.GyroTargetRate),
		Degrees:            cfg.Degrees,
		GyroFullScale:      cfg.GyroFullScale,
		ExpectedFullScale:  cfg.ExpectedFullScale,
		RegularizeDivs:     cfg.RegularizeDivs,
		Window:             window,
		RotationMethod:     method,
		GyroRateFactor:     cfg.GyroRateFactor,
		GyroCrossAxis:      cfg.GyroCrossAxis,
		NormalizeGyro:      cfg.NormalizeGyro,
	}, nil
}

// PresetOptions returns a named option set with the config's input rate and
// gyro full scale. An empty name means OptionsFromConfig.
func PresetOptions(name string, cfg *config.Config) (calibration.Options, error) {
	var o calibration.Options
	switch name {
	case "":
		return OptionsFromConfig(cfg)
	case "float":
		o = calibration.PresetFloat()
	case "fixed16":
		o = calibration.PresetFixedPoint16()
		// Expected rates are per sample.
		o.GyroTargetHz = config.Hertz(cfg.InputRate)
	default:
		return calibration.Options{}, fmt.Errorf("unknown preset %q (want float or fixed16)", name)
	}
	o.InputHz = config.Hertz(cfg.InputRate)
	o.GyroFullScale = cfg.GyroFullScale
	return o, nil
}

// Calibrate fits a calibration to the samples in req.In and writes the
// requested outputs. It does not publish or serve.
func Calibrate(cfg *config.Config, req CalibrateRequest) (*calibration.Result, *viewer.Scene, error) {
	opts, err := PresetOptions(req.Preset, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("calibration options: %w", err)
	}

	samples, err := imu.LoadSamples(req.In)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(log.Fields{"file": req.In, "samples": len(samples)}).Info("calibrate: samples loaded")

	res, err := calibration.Run(samples, opts, func(stage calibration.Stage, elapsed time.Duration) {
		log.WithFields(log.Fields{"stage": stage.String(), "elapsed": elapsed}).Debug("calibrate: stage done")
	})
	if err != nil {
		return nil, nil, err
	}

	d := res.Output.Diagnostics
	fields := log.Fields{
		"run_id":         res.Output.RunID,
		"accel_residual": d.AccelResidual,
		"mag_residual":   d.MagResidual,
		"gyro_safe":      d.Safety.Safe,
		"gyro_excluded":  d.Safety.Excluded,
	}
	if d.GyroRSquared != nil {
		fields["gyro_r2"] = *d.GyroRSquared
	}
	log.WithFields(fields).Info("calibrate: fit complete")

	scene := viewer.NewScene(res)
	if req.Out != "" {
		if err := store.SaveCalibration(req.Out, res.Output); err != nil {
			return nil, nil, err
		}
		log.Printf("calibrate: wrote %s", req.Out)
	}
	if req.Scene != "" {
		if err := store.Write(req.Scene, scene); err != nil {
			return nil, nil, err
		}
		log.Printf("calibrate: wrote %s", req.Scene)
	}
	if req.Preview != "" {
		if err := writePreview(req.Preview, scene); err != nil {
			return nil, nil, err
		}
		log.Printf("calibrate: wrote %s", req.Preview)
	}
	return res, scene, nil
}

// RunCalibrate runs Calibrate with the global config, then publishes and
// serves if requested.
func RunCalibrate(req CalibrateRequest) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	res, scene, err := Calibrate(cfg, req)
	if err != nil {
		return err
	}
	if req.Publish {
		if err := publishCalibration(cfg, res.Output); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	if req.Serve {
		return serveViewer(cfg, viewer.NewServer(scene))
	}
	return nil
}

func writePreview(path string, scene *viewer.Scene) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := viewer.WritePNG(f, scene, viewer.NewViewerState(), 800, 600); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func publishCalibration(cfg *config.Config, out calibration.CalibrationOutput) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCalibrate)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	token := client.Publish(cfg.TopicCalibration, 1, true, payload)
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("calibrate: published run %s to %s", out.RunID, cfg.TopicCalibration)
	return nil
}
