// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package viewer

import (
	"fmt"
	"math"
)

const (
	// dragScale is degrees of view rotation per pixel of drag.
	dragScale = 1.0 / 3
	zoomStep  = 1.1
	minZoom   = 0.2
	maxZoom   = 10
	// maxTick bounds a single clock advance, in seconds.
	maxTick = 3600
)

// Layers selects which clouds are drawn.
type Layers struct {
	Accel        bool `json:"accel"`
	Mag          bool `json:"mag"`
	GyroExpected bool `json:"gyro_expected"`
	GyroFitted   bool `json:"gyro_fitted"`
}

// ViewerState is everything the interactive view needs between events.
// It is a value: Apply returns the next state and leaves the receiver alone.
type ViewerState struct {
	Yaw      float64 `json:"yaw"`   // degrees, [0, 360)
	Pitch    float64 `json:"pitch"` // degrees, [-90, 90]
	Zoom     float64 `json:"zoom"`
	Dragging bool    `json:"dragging"`
	LastX    float64 `json:"-"`
	LastY    float64 `json:"-"`
	// Clock is the animation time in seconds, advanced by tick events.
	Clock  float64 `json:"clock"`
	Layers Layers  `json:"layers"`
}

func NewViewerState() ViewerState {
	return ViewerState{
		Yaw:    30,
		Pitch:  20,
		Zoom:   1,
		Layers: Layers{Accel: true, Mag: true, GyroExpected: true, GyroFitted: true},
	}
}

type EventKind string

const (
	EventDragStart EventKind = "drag_start"
	EventDragMove  EventKind = "drag_move"
	EventDragEnd   EventKind = "drag_end"
	EventZoom      EventKind = "zoom"
	EventReset     EventKind = "reset"
	EventTick      EventKind = "tick"
	EventToggle    EventKind = "toggle"
)

// Event is one user or timer input, as sent by the viewer client.
type Event struct {
	Kind EventKind `json:"type"`
	X    float64   `json:"x,omitempty"`
	Y    float64   `json:"y,omitempty"`
	// Delta is zoom steps for zoom events and seconds for tick events.
	Delta float64 `json:"delta,omitempty"`
	Layer string  `json:"layer,omitempty"`
}

// Apply returns the state after e.
func (s ViewerState) Apply(e Event) (ViewerState, error) {
	if !finite(e.X) || !finite(e.Y) || !finite(e.Delta) {
		return s, fmt.Errorf("%s event with non-finite value", e.Kind)
	}
	switch e.Kind {
	case EventDragStart:
		s.Dragging = true
		s.LastX, s.LastY = e.X, e.Y
	case EventDragMove:
		if !s.Dragging {
			return s, nil
		}
		s.Yaw = wrapDegrees(s.Yaw + (e.X-s.LastX)*dragScale)
		s.Pitch = math.Max(-90, math.Min(90, s.Pitch+(e.Y-s.LastY)*dragScale))
		s.LastX, s.LastY = e.X, e.Y
	case EventDragEnd:
		s.Dragging = false
	case EventZoom:
		s.Zoom = math.Max(minZoom, math.Min(maxZoom, s.Zoom*math.Pow(zoomStep, e.Delta)))
	case EventReset:
		n := NewViewerState()
		n.Clock = s.Clock
		n.Layers = s.Layers
		return n, nil
	case EventTick:
		if e.Delta < 0 || e.Delta > maxTick {
			return s, fmt.Errorf("tick delta %v out of range [0, %d]", e.Delta, maxTick)
		}
		s.Clock += e.Delta
	case EventToggle:
		switch e.Layer {
		case "accel":
			s.Layers.Accel = !s.Layers.Accel
		case "mag":
			s.Layers.Mag = !s.Layers.Mag
		case "gyro_expected":
			s.Layers.GyroExpected = !s.Layers.GyroExpected
		case "gyro_fitted":
			s.Layers.GyroFitted = !s.Layers.GyroFitted
		default:
			return s, fmt.Errorf("unknown layer %q", e.Layer)
		}
	default:
		return s, fmt.Errorf("unknown event %q", e.Kind)
	}
	return s, nil
}

// clamped brings a state built outside Apply back into the ranges Apply keeps.
func (s ViewerState) clamped() ViewerState {
	if !finite(s.Yaw) {
		s.Yaw = 0
	}
	if !finite(s.Pitch) {
		s.Pitch = 0
	}
	if !finite(s.Zoom) || s.Zoom <= 0 {
		s.Zoom = 1
	}
	s.Yaw = wrapDegrees(s.Yaw)
	s.Pitch = math.Max(-90, math.Min(90, s.Pitch))
	s.Zoom = math.Max(minZoom, math.Min(maxZoom, s.Zoom))
	return s
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
