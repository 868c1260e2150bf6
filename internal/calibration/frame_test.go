package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// step applies a body rotation to sensor-frame reference vectors.
func step(body *mat.Dense, v r3.Vector) r3.Vector {
	return mulVec(body.T(), v)
}

func TestFrameOrthonormal(t *testing.T) {
	f, err := Frame(r3.Vector{X: 0.1, Y: -0.3, Z: 9.8}, r3.Vector{X: 22, Y: 5, Z: -40})
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	var g mat.Dense
	g.Mul(f, f.T())
	if !mat.EqualApprox(&g, identity3(), 1e-12) {
		t.Errorf("frame not orthonormal: %v", mat.Formatted(&g))
	}
	if d := mat.Det(f); !scalar.EqualWithinAbs(d, 1, 1e-12) {
		t.Errorf("det = %v, want 1", d)
	}
}

func TestFrameDegenerate(t *testing.T) {
	cases := map[string][2]r3.Vector{
		"parallel":        {{X: 1, Y: 2, Z: 3}, {X: 2, Y: 4, Z: 6}},
		"anti-parallel":   {{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: -3}},
		"zero":            {{}, {X: 1}},
		"nearly parallel": {{X: 1}, {X: 1, Y: 1e-8}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Frame(c[0], c[1]); !errors.Is(err, ErrDegenerateFrame) {
				t.Fatalf("err = %v, want ErrDegenerateFrame", err)
			}
		})
	}
}

func TestFrameAcceptsSmallSeparation(t *testing.T) {
	if _, err := Frame(r3.Vector{X: 1}, r3.Vector{X: 1, Y: 1e-5}); err != nil {
		t.Errorf("vectors 1e-5 rad apart rejected: %v", err)
	}
}

func TestTwoFrameRotationInverse(t *testing.T) {
	a0, m0 := r3.Vector{X: 0.2, Y: 0.1, Z: 1}, r3.Vector{X: 0.5, Y: -0.2, Z: -0.8}
	body := AxisAngleMatrix(r3.Vector{X: 0.3, Y: 1, Z: -0.4}, 0.9)
	a1, m1 := step(body, a0), step(body, m0)

	fwd, err := TwoFrameRotation(a0, m0, a1, m1)
	if err != nil {
		t.Fatal(err)
	}
	back, err := TwoFrameRotation(a1, m1, a0, m0)
	if err != nil {
		t.Fatal(err)
	}
	var p mat.Dense
	p.Mul(fwd, back)
	if !mat.EqualApprox(&p, identity3(), 1e-12) {
		t.Fatalf("R(t0,t1)·R(t1,t0) = %v", mat.Formatted(&p))
	}
	if !mat.EqualApprox(fwd, body, 1e-12) {
		t.Errorf("rotation = %v, want %v", mat.Formatted(fwd), mat.Formatted(body))
	}
}

func TestQuarterTurnAboutZ(t *testing.T) {
	up := r3.Vector{Z: 1}
	r, err := TwoFrameRotation(up, r3.Vector{X: 1}, up, r3.Vector{Y: -1})
	if err != nil {
		t.Fatal(err)
	}
	axis, angle, ok := AxisAngle(r)
	if !ok {
		t.Fatal("axis undefined")
	}
	if !scalar.EqualWithinAbs(angle, math.Pi/2, 1e-12) {
		t.Errorf("angle = %v, want π/2", angle)
	}
	if !scalar.EqualWithinAbs(math.Abs(axis.Z), 1, 1e-12) {
		t.Errorf("axis = %v, want ±z", axis)
	}
}

func TestRotationMethodsAgree(t *testing.T) {
	a0, m0 := r3.Vector{X: -0.3, Y: 0.4, Z: 0.85}, r3.Vector{X: 0.4, Y: 0.1, Z: -0.9}
	wantAxis := r3.Vector{X: 1, Y: 1, Z: -2}.Normalize()
	body := AxisAngleMatrix(wantAxis, 0.05)
	a1, m1 := step(body, a0), step(body, m0)

	for _, method := range []RotationMethod{RotationFrame, RotationSVD} {
		t.Run(method.String(), func(t *testing.T) {
			r, err := rotationBetween(a0, m0, a1, m1, method)
			if err != nil {
				t.Fatal(err)
			}
			axis, angle, ok := AxisAngle(r)
			if !ok {
				t.Fatal("axis undefined")
			}
			if !scalar.EqualWithinAbs(angle, 0.05, 1e-9) {
				t.Errorf("angle = %v, want 0.05", angle)
			}
			if !vecClose(axis, wantAxis, 1e-7) {
				t.Errorf("axis = %v, want %v", axis, wantAxis)
			}
		})
	}

	if _, err := rotationBetween(a0, a0.Mul(3), a1, m1, RotationSVD); !errors.Is(err, ErrDegenerateFrame) {
		t.Errorf("parallel pair with svd: err = %v, want ErrDegenerateFrame", err)
	}
}

func TestRigidRotation(t *testing.T) {
	want := AxisAngleMatrix(r3.Vector{X: 2, Y: -1, Z: 0.5}, 2.1)
	src := Cloud{{X: 1}, {Y: 1}, {X: 0.3, Y: 0.3, Z: 1}, {X: -2, Y: 0.5, Z: 0.1}}
	dst := make(Cloud, len(src))
	for i, p := range src {
		dst[i] = mulVec(want, p)
	}
	got, err := RigidRotation(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(got, want, 1e-10) {
		t.Fatalf("rotation = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
	if _, err := RigidRotation(src, dst[:2]); !errors.Is(err, ErrInputShapeMismatch) {
		t.Errorf("err = %v, want ErrInputShapeMismatch", err)
	}
}

func TestAxisAngle(t *testing.T) {
	if _, _, ok := AxisAngle(identity3()); ok {
		t.Error("identity should have an undefined axis")
	}

	axis := r3.Vector{X: 0.2, Y: -0.5, Z: 0.7}.Normalize()
	for _, angle := range []float64{1e-4, 0.3, 2, math.Pi - 1e-3, math.Pi} {
		got, a, ok := AxisAngle(AxisAngleMatrix(axis, angle))
		if !ok {
			t.Fatalf("angle %v: axis undefined", angle)
		}
		if !scalar.EqualWithinAbs(a, angle, 1e-7) {
			t.Errorf("angle %v: got %v", angle, a)
		}
		// At π the axis sign is arbitrary.
		if math.Abs(got.Dot(axis)) < 1-1e-6 || (angle < 3 && got.Dot(axis) < 0) {
			t.Errorf("angle %v: axis %v, want %v", angle, got, axis)
		}
	}
}
