package pointer

import (
	"errors"
	"testing"
)

func within(a, b, tol int32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestFitRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		screen [2]Point
		raw    [2]Point
	}{
		{"identity", [2]Point{{80, 60}, {240, 180}}, [2]Point{{80, 60}, {240, 180}}},
		{"12-bit adc", [2]Point{{80, 60}, {240, 180}}, [2]Point{{620, 3400}, {3480, 700}}},
		{"inverted x", [2]Point{{200, 120}, {600, 360}}, [2]Point{{54000, 22000}, {16000, 48000}}},
		{"odd ratio", [2]Point{{1, 1}, {478, 271}}, [2]Point{{333, 91}, {3999, 4001}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := Fit(tt.screen, tt.raw)
			if err != nil {
				t.Fatalf("Fit: %v", err)
			}
			for i := range tt.raw {
				got := cal.Map(tt.raw[i])
				if !within(got.X, tt.screen[i].X, 1) || !within(got.Y, tt.screen[i].Y, 1) {
					t.Errorf("Map(%v) = %v, want %v ±1", tt.raw[i], got, tt.screen[i])
				}
			}
		})
	}
}

func TestFitDegenerate(t *testing.T) {
	_, err := Fit([2]Point{{10, 10}, {20, 20}}, [2]Point{{5, 1}, {5, 9}})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want ErrDegenerate", err)
	}
}

func TestIdentity(t *testing.T) {
	p := Point{X: -17, Y: 4095}
	if got := Identity().Map(p); got != p {
		t.Errorf("Identity().Map(%v) = %v", p, got)
	}
}

func TestValidate(t *testing.T) {
	cal, err := Fit([2]Point{{80, 60}, {240, 180}}, [2]Point{{800, 600}, {2400, 1800}})
	if err != nil {
		t.Fatal(err)
	}
	if err := cal.Validate(Point{1600, 1200}, Point{160, 120}, 8); err != nil {
		t.Errorf("exact point rejected: %v", err)
	}
	if err := cal.Validate(Point{1650, 1200}, Point{160, 120}, 8); err != nil {
		t.Errorf("point 5px off rejected: %v", err)
	}
	if err := cal.Validate(Point{1700, 1260}, Point{160, 120}, 8); !errors.Is(err, ErrCalibrationFailed) {
		t.Errorf("err = %v, want ErrCalibrationFailed", err)
	}
}

func TestCalibrationBinary(t *testing.T) {
	cal, err := Fit([2]Point{{80, 60}, {240, 180}}, [2]Point{{3480, 700}, {620, 3400}})
	if err != nil {
		t.Fatal(err)
	}
	data, err := cal.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var got Calibration
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != cal {
		t.Errorf("got %+v, want %+v", got, cal)
	}

	data[3] = 99
	if err := got.UnmarshalBinary(data); !errors.Is(err, ErrBadCalibrationData) {
		t.Errorf("wrong version: err = %v", err)
	}
	if err := got.UnmarshalBinary([]byte("short")); !errors.Is(err, ErrBadCalibrationData) {
		t.Errorf("short data: err = %v", err)
	}
}
