// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/app"
	"github.com/relabs-tech/imu_calibration/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (KEY=VALUE); defaults apply when empty")
	scene := flag.String("scene", "scene.json", "scene written by calibrate -scene")
	flag.Parse()

	log.Println("starting imu-calibration viewer")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.SetupLogging(config.Get().LogLevel); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := app.RunViewer(*scene); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
