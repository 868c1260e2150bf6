// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
)

// Sample is one time step of the recorded motion sequence, in raw sensor units.
type Sample struct {
	Accel r3.Vector
	Mag   r3.Vector
	Gyro  r3.Vector
}

// sampleJSON is the on-disk layout: {"accel":[x,y,z],"mag":[x,y,z],"gyro":[x,y,z]}.
type sampleJSON struct {
	Accel []float64 `json:"accel"`
	Mag   []float64 `json:"mag"`
	Gyro  []float64 `json:"gyro"`
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Accel: []float64{s.Accel.X, s.Accel.Y, s.Accel.Z},
		Mag:   []float64{s.Mag.X, s.Mag.Y, s.Mag.Z},
		Gyro:  []float64{s.Gyro.X, s.Gyro.Y, s.Gyro.Z},
	})
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if s.Accel, err = vectorFrom("accel", raw.Accel); err != nil {
		return err
	}
	if s.Mag, err = vectorFrom("mag", raw.Mag); err != nil {
		return err
	}
	if s.Gyro, err = vectorFrom("gyro", raw.Gyro); err != nil {
		return err
	}
	return nil
}

func vectorFrom(name string, v []float64) (r3.Vector, error) {
	if len(v) != 3 {
		return r3.Vector{}, fmt.Errorf("%s: want 3 components, got %d", name, len(v))
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Finite reports whether every component of the sample is a finite number.
func (s Sample) Finite() bool {
	for _, v := range []r3.Vector{s.Accel, s.Mag, s.Gyro} {
		for _, c := range []float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
	}
	return true
}

// Split separates a sequence into its three per-sensor series.
func Split(samples []Sample) (accel, mag, gyro []r3.Vector) {
	accel = make([]r3.Vector, len(samples))
	mag = make([]r3.Vector, len(samples))
	gyro = make([]r3.Vector, len(samples))
	for i, s := range samples {
		accel[i] = s.Accel
		mag[i] = s.Mag
		gyro[i] = s.Gyro
	}
	return accel, mag, gyro
}

// ReadSamples decodes a motion sequence. Two layouts are accepted: a JSON array
// of samples, or a stream of IMURaw JSON objects (one per line, as recorded
// from the MQTT topic).
func ReadSamples(r io.Reader) ([]Sample, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty sample input")
		}
		return nil, err
	}

	switch first {
	case '[':
		var samples []Sample
		if err := json.NewDecoder(br).Decode(&samples); err != nil {
			return nil, fmt.Errorf("decode sample array: %w", err)
		}
		return samples, nil
	case '{':
		return readRawStream(br)
	default:
		return nil, fmt.Errorf("unrecognized sample input, starts with %q", first)
	}
}

func readRawStream(r io.Reader) ([]Sample, error) {
	dec := json.NewDecoder(r)
	var samples []Sample
	for {
		var raw IMURaw
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode raw sample %d: %w", len(samples), err)
		}
		samples = append(samples, raw.Sample())
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// LoadSamples reads a motion sequence from a file.
func LoadSamples(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open samples: %w", err)
	}
	defer f.Close()
	return ReadSamples(f)
}

// WriteSamples encodes samples as an indented JSON array.
func WriteSamples(w io.Writer, samples []Sample) error {
	if samples == nil {
		samples = []Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(samples)
}

// SaveSamples writes samples to a file in the JSON array layout.
func SaveSamples(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create samples: %w", err)
	}
	if err := WriteSamples(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("write samples: %w", err)
	}
	return f.Close()
}
