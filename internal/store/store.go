// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store persists calibration results and viewer scenes as JSON or
// YAML, chosen by file extension.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
)

type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "json"
}

// FormatFor picks YAML for .yaml/.yml paths and JSON otherwise.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

func Encode(w io.Writer, f Format, v any) error {
	if f == YAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Decode(r io.Reader, f Format, v any) error {
	if f == YAML {
		return yaml.NewDecoder(r).Decode(v)
	}
	return json.NewDecoder(r).Decode(v)
}

// Write encodes v into path, replacing the file atomically.
func Write(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, FormatFor(path), v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func Read(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Decode(f, FormatFor(path), v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SaveCalibration writes a calibration result.
func SaveCalibration(path string, out calibration.CalibrationOutput) error {
	return Write(path, out)
}

// LoadCalibration reads a calibration result and checks its schema version
// and parameters.
func LoadCalibration(path string) (calibration.CalibrationOutput, error) {
	var out calibration.CalibrationOutput
	if err := Read(path, &out); err != nil {
		return out, err
	}
	if out.SchemaVersion == 0 {
		return out, errors.New("calibration file has no schema_version")
	}
	if out.SchemaVersion > calibration.SchemaVersion {
		return out, fmt.Errorf("calibration schema %d is newer than supported %d", out.SchemaVersion, calibration.SchemaVersion)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
