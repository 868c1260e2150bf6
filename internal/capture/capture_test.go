package capture

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

var sample = imu.Sample{
	Accel: r3.Vector{X: 120.5, Y: -80, Z: 16200},
	Mag:   r3.Vector{X: 310, Y: -145.25, Z: 60},
	Gyro:  r3.Vector{X: 35, Y: -20, Z: 1e-3},
}

func TestFormatThenParseIMU(t *testing.T) {
	line := FormatIMU(sample)
	if !strings.HasPrefix(line, "$CLIMU,120.5,-80,16200,") {
		t.Fatalf("line = %q", line)
	}
	got, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(%q): %v", line, err)
	}
	if got != sample {
		t.Errorf("got %+v, want %+v", got, sample)
	}
}

func TestParseLineRejects(t *testing.T) {
	good := FormatIMU(sample)
	cases := map[string]string{
		"bad checksum": good[:len(good)-2] + "00",
		"few fields":   "$CLIMU,1,2,3*" + "00",
		"not a number": strings.Replace(good, "16200", "abc", 1),
		"other type":   "$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseLine(line); err == nil {
				t.Fatalf("ParseLine(%q) succeeded", line)
			}
		})
	}
}

func TestLineSourceSkipsNoise(t *testing.T) {
	other := sample
	other.Gyro = r3.Vector{X: -1, Y: -2, Z: -3}
	stream := strings.Join([]string{
		"logger v2 booting",
		FormatIMU(sample),
		"$CLIMU,1,2",
		"",
		FormatIMU(other),
	}, "\r\n")

	src := NewLineSource(strings.NewReader(stream))
	got, err := Collect(src, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != sample || got[1] != other {
		t.Fatalf("got %+v", got)
	}
	if src.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", src.Skipped)
	}
}

type sliceSource []imu.Sample

func (s *sliceSource) Next() (imu.Sample, error) {
	if len(*s) == 0 {
		return imu.Sample{}, io.EOF
	}
	v := (*s)[0]
	*s = (*s)[1:]
	return v, nil
}

func TestCollect(t *testing.T) {
	bad := sample
	bad.Mag.Y = math.Inf(1)
	src := sliceSource{sample, bad, sample, sample, sample}
	got, err := Collect(&src, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("collected %d, want 2", len(got))
	}

	stop := make(chan struct{})
	close(stop)
	src = sliceSource{sample}
	if got, _ := Collect(&src, 5, stop); len(got) != 0 {
		t.Errorf("collected %d after stop", len(got))
	}
}

func TestDecodeIMURaw(t *testing.T) {
	s, err := DecodeIMURaw([]byte(`{"source":"left","ax":1,"ay":2,"az":3,"gx":4,"gy":5,"gz":6,"mx":7,"my":8,"mz":9}`))
	if err != nil {
		t.Fatal(err)
	}
	want := imu.Sample{Accel: r3.Vector{X: 1, Y: 2, Z: 3}, Mag: r3.Vector{X: 7, Y: 8, Z: 9}, Gyro: r3.Vector{X: 4, Y: 5, Z: 6}}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}
	if _, err := DecodeIMURaw([]byte("{")); err == nil {
		t.Error("expected an error")
	}
}

func TestMQTTSourceHandle(t *testing.T) {
	s := &MQTTSource{samples: make(chan imu.Sample, 1), done: make(chan struct{})}
	s.handle([]byte(`{"ax":1,"ay":2,"az":3}`))
	s.handle([]byte(`not json`))
	s.handle([]byte(`{"ax":9}`)) // buffer full, dropped

	got, err := s.Next()
	if err != nil || got.Accel != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("Next = %+v, %v", got, err)
	}
	s.Close()
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("after close err = %v, want io.EOF", err)
	}
}
