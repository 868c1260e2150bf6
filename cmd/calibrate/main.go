// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibrate/main.go
//
// Fits accelerometer, magnetometer and gyro calibrations to one recorded
// motion sequence.
//
// Run:
//
//	go run ./cmd/calibrate -in samples.json -out calibration.json
//
// Notes:
//   - The sequence must tumble the device through all orientations; the
//     gyro is fitted against the rotation recovered from accel and mag.
//   - Values stay in raw units (counts) on input; see CAL_* keys in the config.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/app"
	"github.com/relabs-tech/imu_calibration/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (KEY=VALUE); defaults apply when empty")
		req        app.CalibrateRequest
	)
	flag.StringVar(&req.In, "in", "samples.json", "recorded samples")
	flag.StringVar(&req.Preset, "preset", "", "option preset: float or fixed16 (empty uses CAL_* keys)")
	flag.StringVar(&req.Out, "out", "calibration.json", "calibration result (.json or .yaml)")
	flag.StringVar(&req.Scene, "scene", "", "write viewer scene to this file")
	flag.StringVar(&req.Preview, "preview", "", "write PNG preview to this file")
	flag.BoolVar(&req.Publish, "publish", false, "publish the result on TOPIC_CALIBRATION")
	flag.BoolVar(&req.Serve, "serve", false, "serve the viewer after fitting")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}
	if err := app.SetupLogging(config.Get().LogLevel); err != nil {
		fatal(err)
	}

	log.Println("calibrate: starting")
	if err := app.RunCalibrate(req); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
