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
	configPath := flag.String("config", "", "config file (KEY=VALUE); defaults apply when empty")
	source := flag.String("source", "serial", "sample source: serial or mqtt")
	out := flag.String("out", "samples.json", "output samples file")
	limit := flag.Int("max", 0, "stop after this many samples (0 = CAPTURE_MAX_SAMPLES)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}
	if err := app.SetupLogging(config.Get().LogLevel); err != nil {
		fatal(err)
	}

	log.Printf("capture: recording from %s, Ctrl+C to stop early", *source)
	if err := app.RunCapture(*source, *out, *limit); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
