package calstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/char5742/touchbus/internal/pointer"
)

func testCalibration(t *testing.T) (pointer.Calibration, []byte) {
	t.Helper()
	cal, err := pointer.Fit(
		[2]pointer.Point{{X: 80, Y: 60}, {X: 240, Y: 180}},
		[2]pointer.Point{{X: 3200, Y: 900}, {X: 800, Y: 3100}},
	)
	if err != nil {
		t.Fatal(err)
	}
	data, err := cal.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return cal, data
}

func TestStoreRoundTrip(t *testing.T) {
	for _, name := range []string{"cal.toml", "cal.yaml", "cal.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			s, err := New(path, nil)
			if err != nil {
				t.Fatal(err)
			}

			got, err := s.Load(0)
			if err != nil || got != nil {
				t.Fatalf("Load on missing file = %v, %v", got, err)
			}

			cal, data := testCalibration(t)
			if err := s.Save(0, data); err != nil {
				t.Fatal(err)
			}
			if err := s.Save(3, data); err != nil {
				t.Fatal(err)
			}

			got, err = s.Load(0)
			if err != nil {
				t.Fatal(err)
			}
			var back pointer.Calibration
			if err := back.UnmarshalBinary(got); err != nil {
				t.Fatal(err)
			}
			if back != cal {
				t.Errorf("Load = %+v, want %+v", back, cal)
			}

			if got, _ := s.Load(1); got != nil {
				t.Errorf("Load(1) = %v, want nil", got)
			}

			entries, _ := s.Entries()
			if len(entries) != 2 || entries[0].Instance != 0 || entries[1].Instance != 3 {
				t.Errorf("entries = %+v", entries)
			}
		})
	}
}

func TestStoreFileIsReadable(t *testing.T) {
	dir := t.TempDir()
	_, data := testCalibration(t)

	tests := []struct {
		name string
		want string
	}{
		{"cal.toml", "[[calibration]]"},
		{"cal.yaml", "calibrations:"},
	}
	for _, tt := range tests {
		s, _ := New(filepath.Join(dir, tt.name), nil)
		if err := s.Save(2, data); err != nil {
			t.Fatal(err)
		}
		raw, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(raw), tt.want) || !strings.Contains(string(raw), "scale_x") {
			t.Errorf("%s content:\n%s", tt.name, raw)
		}
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	s, _ := New(filepath.Join(t.TempDir(), "cal.toml"), nil)
	_, data := testCalibration(t)
	_ = s.Save(0, data)

	identity, _ := pointer.Identity().MarshalBinary()
	if err := s.Save(0, identity); err != nil {
		t.Fatal(err)
	}
	entries, _ := s.Entries()
	if len(entries) != 1 || entries[0].calibration() != pointer.Identity() {
		t.Errorf("entries = %+v", entries)
	}
}

func TestStoreDelete(t *testing.T) {
	s, _ := New(filepath.Join(t.TempDir(), "cal.yaml"), nil)
	_, data := testCalibration(t)
	_ = s.Save(0, data)
	_ = s.Save(1, data)

	if err := s.Delete(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(5); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(0); got != nil {
		t.Error("deleted calibration still loads")
	}
	if got, _ := s.Load(1); got == nil {
		t.Error("other calibration lost")
	}
}

func TestStoreRejects(t *testing.T) {
	if _, err := New("cal.json", nil); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("New(json) err = %v", err)
	}

	s, _ := New(filepath.Join(t.TempDir(), "cal.toml"), nil)
	if err := s.Save(0, []byte("garbage")); !errors.Is(err, pointer.ErrBadCalibrationData) {
		t.Errorf("Save(garbage) err = %v", err)
	}

	if err := os.WriteFile(s.Path(), []byte("[[calibration]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(0); err == nil {
		t.Error("broken file loaded without error")
	}
}

func TestStoreAsPointerHooks(t *testing.T) {
	s, _ := New(filepath.Join(t.TempDir(), "cal.toml"), nil)
	var (
		save pointer.SaveFunc = s.Save
		load pointer.LoadFunc = s.Load
	)
	_, data := testCalibration(t)
	if err := save(7, data); err != nil {
		t.Fatal(err)
	}
	if got, err := load(7); err != nil || got == nil {
		t.Errorf("load = %v, %v", got, err)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.toml")
	s, _ := New(path, nil)

	changed := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() { changed <- struct{}{} })
	}()

	// 監視の開始を待つ手段がないので、届くまで書き込みを繰り返す
	_, data := testCalibration(t)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			_ = s.Save(0, data)
		case <-deadline:
			t.Fatal("onChange not called")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
