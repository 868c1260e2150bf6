// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package viewer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/imu_calibration/internal/calibration"
)

var (
	background   = color.RGBA{16, 16, 24, 255}
	cubeColor    = color.RGBA{90, 90, 110, 255}
	textColor    = color.RGBA{220, 220, 220, 255}
	accelColor   = color.RGBA{240, 80, 80, 255}
	magColor     = color.RGBA{80, 200, 240, 255}
	expectColor  = color.RGBA{240, 220, 60, 255}
	fittedColor  = color.RGBA{120, 230, 120, 255}
	excludeColor = color.RGBA{110, 60, 60, 255}
)

type projector struct {
	view   *mat.Dense
	cx, cy float64
	scale  float64
}

func newProjector(s ViewerState, w, h int) projector {
	var view mat.Dense
	pitch := calibration.AxisAngleMatrix(r3.Vector{X: 1}, s.Pitch*math.Pi/180)
	yaw := calibration.AxisAngleMatrix(r3.Vector{Y: 1}, s.Yaw*math.Pi/180)
	view.Mul(pitch, yaw)
	zoom := s.Zoom
	return projector{
		view:  &view,
		cx:    float64(w) / 2,
		cy:    float64(h) / 2,
		scale: 0.35 * math.Min(float64(w), float64(h)) * zoom,
	}
}

// project returns image coordinates, which may lie far outside the image.
func (p projector) project(v r3.Vector) (float64, float64) {
	x := p.view.At(0, 0)*v.X + p.view.At(0, 1)*v.Y + p.view.At(0, 2)*v.Z
	y := p.view.At(1, 0)*v.X + p.view.At(1, 1)*v.Y + p.view.At(1, 2)*v.Z
	return p.cx + x*p.scale, p.cy - y*p.scale
}

// Render draws the scene as seen from the state's camera: a wire cube of
// side 2, the fitted accel and mag clouds, and the rate clouds scaled into
// the cube. Rate samples left out by the safety filter are dimmed.
func Render(sc *Scene, s ViewerState, w, h int) *image.RGBA {
	s = s.clamped()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	p := newProjector(s, w, h)

	corners := [8]r3.Vector{}
	for i := range corners {
		corners[i] = r3.Vector{X: float64(i&1)*2 - 1, Y: float64(i>>1&1)*2 - 1, Z: float64(i>>2&1)*2 - 1}
	}
	for i := range corners {
		for _, bit := range []int{1, 2, 4} {
			if j := i | bit; j != i {
				x0, y0 := p.project(corners[i])
				x1, y1 := p.project(corners[j])
				line(img, x0, y0, x1, y1, cubeColor)
			}
		}
	}

	if s.Layers.Accel {
		for _, pt := range sc.AccelFitted {
			dot(img, p, pt.vector(), accelColor)
		}
	}
	if s.Layers.Mag {
		for _, pt := range sc.MagFitted {
			dot(img, p, pt.vector(), magColor)
		}
	}
	k := sc.rateScale()
	safe := func(i int) bool { return i >= len(sc.Mask) || sc.Mask[i] }
	if s.Layers.GyroExpected {
		for i, pt := range sc.GyroExpected {
			c := expectColor
			if !safe(i) {
				c = excludeColor
			}
			dot(img, p, pt.vector().Mul(k), c)
		}
	}
	if s.Layers.GyroFitted {
		for i, pt := range sc.GyroFitted {
			c := fittedColor
			if !safe(i) {
				c = excludeColor
			}
			dot(img, p, pt.vector().Mul(k), c)
		}
	}

	drawHUD(img, sc, s)
	return img
}

func drawHUD(img *image.RGBA, sc *Scene, s ViewerState) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{textColor},
		Face: basicfont.Face7x13,
	}
	d.Dot = fixed.P(6, 14)
	d.DrawString(fmt.Sprintf("run %s", shortID(sc.Calibration.RunID)))
	d.Dot = fixed.P(6, 28)
	d.DrawString(fmt.Sprintf("yaw %5.1f  pitch %5.1f  zoom %.2f", s.Yaw, s.Pitch, s.Zoom))
	sf := sc.Calibration.Diagnostics.Safety
	d.Dot = fixed.P(6, 42)
	d.DrawString(fmt.Sprintf("gyro samples %d safe / %d", sf.Safe, sf.Total))

	legend := []struct {
		name string
		c    color.RGBA
	}{
		{"accel", accelColor}, {"mag", magColor}, {"expected", expectColor}, {"fitted", fittedColor},
	}
	y := img.Bounds().Dy() - 8
	for i := len(legend) - 1; i >= 0; i-- {
		d.Src = &image.Uniform{legend[i].c}
		d.Dot = fixed.P(6, y)
		d.DrawString(legend[i].name)
		y -= 14
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dot(img *image.RGBA, p projector, v r3.Vector, c color.RGBA) {
	fx, fy := p.project(v)
	b := img.Bounds()
	if !(fx >= float64(b.Min.X)-1 && fx < float64(b.Max.X) && fy >= float64(b.Min.Y)-1 && fy < float64(b.Max.Y)) {
		return
	}
	x, y := int(math.Round(fx)), int(math.Round(fy))
	for dx := 0; dx < 2; dx++ {
		for dy := 0; dy < 2; dy++ {
			if (image.Point{X: x + dx, Y: y + dy}).In(img.Bounds()) {
				img.SetRGBA(x+dx, y+dy, c)
			}
		}
	}
}

// clipSegment clips a segment to the rectangle [0, w-1]×[0, h-1]
// (Liang-Barsky). ok is false when nothing of it is visible.
func clipSegment(x0, y0, x1, y1, w, h float64) (cx0, cy0, cx1, cy1 float64, ok bool) {
	if !finite(x0) || !finite(y0) || !finite(x1) || !finite(y1) {
		return 0, 0, 0, 0, false
	}
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, x0},
		{dx, w - 1 - x0},
		{-dy, y0},
		{dy, h - 1 - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// line draws the visible part of a segment with Bresenham's algorithm.
func line(img *image.RGBA, fx0, fy0, fx1, fy1 float64, c color.RGBA) {
	b := img.Bounds()
	fx0, fy0, fx1, fy1, ok := clipSegment(fx0, fy0, fx1, fy1, float64(b.Dx()), float64(b.Dy()))
	if !ok {
		return
	}
	x0, y0 := int(math.Round(fx0)), int(math.Round(fy0))
	x1, y1 := int(math.Round(fx1)), int(math.Round(fy1))
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(img.Bounds()) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// WritePNG renders the scene and encodes it as PNG.
func WritePNG(w io.Writer, sc *Scene, s ViewerState, width, height int) error {
	return png.Encode(w, Render(sc, s, width, height))
}
