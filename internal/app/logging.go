package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SetupLogging sets the global log level from a LOG_LEVEL value.
func SetupLogging(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}
