package app

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
	"github.com/relabs-tech/imu_calibration/internal/config"
	"github.com/relabs-tech/imu_calibration/internal/store"
	"github.com/relabs-tech/imu_calibration/internal/viewer"
)

// LoadScene reads a scene written by the calibrate command.
func LoadScene(path string) (*viewer.Scene, error) {
	var sc viewer.Scene
	if err := store.Read(path, &sc); err != nil {
		return nil, err
	}
	if sc.Calibration.SchemaVersion != 0 && sc.Calibration.SchemaVersion != calibration.SchemaVersion {
		return nil, fmt.Errorf("%s: unsupported schema version %d", path, sc.Calibration.SchemaVersion)
	}
	return &sc, nil
}

// RunViewer serves a stored scene on WEB_SERVER_PORT.
func RunViewer(scenePath string) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	sc, err := LoadScene(scenePath)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": scenePath, "run_id": sc.Calibration.RunID}).Info("viewer: scene loaded")

	srv := viewer.NewServer(sc)
	// SIGHUP re-reads the scene file, so a new calibrate run shows up
	// without restarting the server.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go reloadScene(hup, scenePath, srv)

	return serveViewer(cfg, srv)
}

func reloadScene(hup <-chan os.Signal, path string, srv *viewer.Server) {
	for range hup {
		sc, err := LoadScene(path)
		if err != nil {
			log.Warnf("viewer: reload %s: %v", path, err)
			continue
		}
		srv.SetScene(sc)
		log.WithField("run_id", sc.Calibration.RunID).Info("viewer: scene reloaded")
	}
}

func serveViewer(cfg *config.Config, srv *viewer.Server) error {
	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("viewer: listening on %s (/ws, /api/calibration, /api/scene, /preview.png)", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
