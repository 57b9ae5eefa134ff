package poller

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	n   atomic.Int64
	err error
}

func (c *counter) Poll() error {
	c.n.Add(1)
	return c.err
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceRunsTasks(t *testing.T) {
	s := NewService(nil)
	fast, slow := &counter{}, &counter{}
	if err := s.Add("fast", fast, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("slow", slow, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning = false after Start")
	}
	eventually(t, func() bool { return fast.n.Load() >= 4 && slow.n.Load() >= 1 })

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}

	// 停止後は呼ばれない
	n := fast.n.Load()
	time.Sleep(30 * time.Millisecond)
	if fast.n.Load() != n {
		t.Error("poller called after Stop")
	}

	stats := s.Stats()
	if len(stats) != 2 || stats[0].Name != "fast" || stats[0].Polls != uint64(n) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestServiceStartStopErrors(t *testing.T) {
	s := NewService(nil)
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start = %v", err)
	}
	if err := s.Add("late", Func(func() error { return nil }), time.Second); !errors.Is(err, ErrRunning) {
		t.Errorf("Add while running = %v", err)
	}
	_ = s.Stop()

	// 停止後は再開できる
	if err := s.Start(); err != nil {
		t.Errorf("restart: %v", err)
	}
	_ = s.Stop()
}

func TestServiceAddRejects(t *testing.T) {
	s := NewService(nil)
	if err := s.Add("nil", nil, time.Second); err == nil {
		t.Error("nil poller accepted")
	}
	if err := s.Add("zero", &counter{}, 0); err == nil {
		t.Error("zero period accepted")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServiceLogsErrorOnce(t *testing.T) {
	var out syncBuffer
	s := NewService(slog.New(slog.NewTextHandler(&out, nil)))
	c := &counter{err: errors.New("bus stuck")}
	_ = s.Add("touch0", c, 2*time.Millisecond)
	_ = s.Start()
	eventually(t, func() bool { return c.n.Load() >= 5 })
	_ = s.Stop()

	if n := strings.Count(out.String(), "bus stuck"); n != 1 {
		t.Errorf("error logged %d times:\n%s", n, out.String())
	}
	if st := s.Stats(); st[0].Errors < 5 {
		t.Errorf("stats = %+v", st)
	}
}
