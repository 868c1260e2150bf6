package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/app"
	"github.com/relabs-tech/imu_calibration/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (KEY=VALUE); defaults apply when empty")
	flag.Parse()

	log.Println("starting imu-calibration console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.SetupLogging(config.Get().LogLevel); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
