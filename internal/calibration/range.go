package calibration

import (
	"math"

	"github.com/golang/geo/r3"
)

// RangeEstimate is the per-axis min/max envelope of a cloud, the quick
// hard-iron estimate used by firmware before a full fit is available.
type RangeEstimate struct {
	Min r3.Vector
	Max r3.Vector
	// Count is the number of points that contributed.
	Count int
}

// EstimateRange tracks the envelope of the cloud, skipping the first warmup points.
func EstimateRange(c Cloud, warmup int) RangeEstimate {
	var r RangeEstimate
	for i, v := range c {
		if i < warmup || !finiteVec(v) {
			continue
		}
		if r.Count == 0 {
			r.Min, r.Max = v, v
		} else {
			r.Min = r3.Vector{X: math.Min(r.Min.X, v.X), Y: math.Min(r.Min.Y, v.Y), Z: math.Min(r.Min.Z, v.Z)}
			r.Max = r3.Vector{X: math.Max(r.Max.X, v.X), Y: math.Max(r.Max.Y, v.Y), Z: math.Max(r.Max.Z, v.Z)}
		}
		r.Count++
	}
	return r
}

func (r RangeEstimate) Offset() r3.Vector { return r.Min.Add(r.Max).Mul(0.5) }

func (r RangeEstimate) Size() r3.Vector { return r.Max.Sub(r.Min) }

// Coverage is the ratio of the smallest to the largest axis span. Values
// near 1 mean the sensor was turned through every axis.
func (r RangeEstimate) Coverage() float64 {
	s := r.Size()
	hi := math.Max(s.X, math.Max(s.Y, s.Z))
	if r.Count < 2 || hi == 0 {
		return 0
	}
	return math.Min(s.X, math.Min(s.Y, s.Z)) / hi
}
