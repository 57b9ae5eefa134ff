package pointer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(ms int) {
	c.now = c.now.Add(time.Duration(ms) * time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Mouse
}

func (r *recorder) callback(_ any, ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.(event.Mouse))
}

func (r *recorder) take() []event.Mouse {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func newTestPointer(t *testing.T, s Sampler, cfg Config) (*Pointer, *dispatch.Engine, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	cfg.Clock = clk.Now
	if cfg.Gesture == (GestureConfig{}) {
		cfg.Gesture = DefaultGestureConfig()
	}
	e := dispatch.New(dispatch.Config{})
	return New(e, s, cfg), e, clk
}

// waitInBackground は l を別のゴルーチンで Wait させ、ブロックするまで待つ
func waitInBackground(t *testing.T, l *dispatch.Listener) <-chan event.Event {
	t.Helper()
	ch := make(chan event.Event, 1)
	go func() {
		ev, _ := l.Wait(dispatch.Forever)
		ch <- ev
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !l.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("listener never waited")
		}
		time.Sleep(time.Millisecond)
	}
	return ch
}

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	return nil
}

func attachRecorder(t *testing.T, e *dispatch.Engine, src dispatch.Source, flags uint32) *recorder {
	t.Helper()
	rec := &recorder{}
	l := dispatch.NewListener()
	l.RegisterCallback(rec.callback, nil)
	if err := e.Attach(l, src, flags); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestPointerMetaEvents(t *testing.T) {
	s := &scriptSampler{}
	p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true, Instance: 2})
	rec := attachRecorder(t, e, p.Source(), ListenMeta)

	s.push(touch(100, 100), touch(130, 100), release(130, 100))
	if err := p.Poll(); err != nil {
		t.Fatal(err)
	}
	got := rec.take()
	if len(got) != 1 || got[0].Meta != event.MetaDown {
		t.Fatalf("press events = %+v", got)
	}
	if got[0].Type() != event.TypeTouch || got[0].Instance != 2 || got[0].LastButtons != 0 {
		t.Errorf("press event = %+v", got[0])
	}

	// 押したままの移動は ListenMeta だけでは届かない
	clk.advance(100)
	_ = p.Poll()
	if got := rec.take(); len(got) != 0 {
		t.Errorf("down move delivered without ListenDownMoves: %+v", got)
	}

	clk.advance(100)
	_ = p.Poll()
	got = rec.take()
	if len(got) != 1 {
		t.Fatalf("release events = %+v", got)
	}
	if got[0].Meta != event.MetaUp {
		t.Errorf("release meta = %#x, want MetaUp without click (moved)", got[0].Meta)
	}
	if got[0].LastButtons != event.TouchPressed || got[0].Buttons != 0 {
		t.Errorf("release buttons = %#x -> %#x", got[0].LastButtons, got[0].Buttons)
	}
}

func TestPointerClickDelivered(t *testing.T) {
	s := &scriptSampler{}
	p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true})
	rec := attachRecorder(t, e, p.Source(), ListenMeta)

	s.push(touch(50, 50), release(50, 50))
	_ = p.Poll()
	clk.advance(200)
	_ = p.Poll()

	got := rec.take()
	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[1].Meta != event.MetaUp|event.MetaClick {
		t.Errorf("release meta = %#x, want up|click", got[1].Meta)
	}
}

func TestPointerDownMoves(t *testing.T) {
	s := &scriptSampler{}
	p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true})
	rec := attachRecorder(t, e, p.Source(), ListenDownMoves)

	// 2つ目は揺れの範囲内
	s.push(touch(10, 10), touch(11, 10), touch(40, 10))
	for i := 0; i < 3; i++ {
		_ = p.Poll()
		clk.advance(25)
	}

	got := rec.take()
	if len(got) != 2 {
		t.Fatalf("events = %+v, want press and one move", got)
	}
	if got[1].X != 40 || got[1].Meta != 0 {
		t.Errorf("move event = %+v", got[1])
	}
}

func TestPointerUpMovesNeedHardwareSupport(t *testing.T) {
	for _, upMoves := range []bool{false, true} {
		s := &scriptSampler{upMoves: upMoves}
		p, e, _ := newTestPointer(t, s, Config{SkipCalibration: true, Kind: event.TypeMouse})
		rec := attachRecorder(t, e, p.Source(), ListenUpMoves)

		s.push(Reading{X: 5, Y: 5}, Reading{X: 50, Y: 5})
		_ = p.Poll()
		_ = p.Poll()

		got := rec.take()
		if upMoves && len(got) != 2 {
			t.Errorf("upMoves=true: events = %+v", got)
		}
		if !upMoves && len(got) != 0 {
			t.Errorf("upMoves=false: events = %+v", got)
		}
	}
}

func TestPointerMissedEvents(t *testing.T) {
	s := &scriptSampler{}
	p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true})

	l := dispatch.NewListener()
	if err := e.Attach(l, p.Source(), ListenMeta); err != nil {
		t.Fatal(err)
	}

	// 誰も待っていないので押下は取りこぼされる
	s.push(touch(20, 20), release(20, 20))
	_ = p.Poll()

	ch := waitInBackground(t, l)
	clk.advance(100)
	_ = p.Poll()

	ev := receive(t, ch)
	m, ok := ev.(event.Mouse)
	if !ok {
		t.Fatalf("got %#v", ev)
	}
	if !m.Missed() {
		t.Error("missed flag not set")
	}
	want := event.MetaDown | event.MetaUp | event.MetaClick
	if m.Meta != want {
		t.Errorf("meta = %#x, want %#x", m.Meta, want)
	}
}

func TestPointerIdlePollIsNotMissed(t *testing.T) {
	for _, flags := range []uint32{ListenMeta, ListenDownMoves} {
		s := &scriptSampler{}
		p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true})

		l := dispatch.NewListener()
		if err := e.Attach(l, p.Source(), flags); err != nil {
			t.Fatal(err)
		}

		// 待っていない間に何も起きなければ取りこぼしではない
		s.push(release(20, 20), release(20, 20), touch(20, 20))
		_ = p.Poll()
		clk.advance(25)
		_ = p.Poll()

		ch := waitInBackground(t, l)
		clk.advance(25)
		_ = p.Poll()

		m, ok := receive(t, ch).(event.Mouse)
		if !ok {
			t.Fatalf("flags=%#x: no mouse event", flags)
		}
		if m.Missed() {
			t.Errorf("flags=%#x: press reported as missed: buttons=%#x", flags, m.Buttons)
		}
		if m.Meta != event.MetaDown {
			t.Errorf("flags=%#x: meta = %#x, want MetaDown", flags, m.Meta)
		}
	}
}

func TestPointerHeldStillIsNotMissed(t *testing.T) {
	s := &scriptSampler{}
	p, e, clk := newTestPointer(t, s, Config{SkipCalibration: true})

	l := dispatch.NewListener()
	if err := e.Attach(l, p.Source(), ListenDownMoves); err != nil {
		t.Fatal(err)
	}

	// 押下は取りこぼすが、静止中の読み取りは配信対象ではない
	s.push(touch(30, 30), touch(30, 30), touch(60, 30))
	_ = p.Poll()
	clk.advance(25)
	_ = p.Poll()

	ch := waitInBackground(t, l)
	clk.advance(25)
	_ = p.Poll()

	m, ok := receive(t, ch).(event.Mouse)
	if !ok {
		t.Fatal("no mouse event")
	}
	if !m.Missed() || m.Meta != event.MetaDown {
		t.Errorf("move event = buttons %#x meta %#x, want missed press", m.Buttons, m.Meta)
	}
	if m.X != 60 {
		t.Errorf("X = %d, want 60", m.X)
	}
}

func TestPointerLazyLoadsCalibration(t *testing.T) {
	s := &scriptSampler{}
	p, e, _ := newTestPointer(t, s, Config{})
	rec := attachRecorder(t, e, p.Source(), ListenMeta)

	cal, err := Fit([2]Point{{0, 0}, {100, 100}}, [2]Point{{1000, 1000}, {2000, 2000}})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := cal.MarshalBinary()

	loads := 0
	p.SetCalibrationHooks(nil, func(instance int) ([]byte, error) {
		loads++
		return data, nil
	})
	if loads != 0 {
		t.Fatal("calibration loaded before first read")
	}

	s.push(Reading{X: 1500, Y: 1500, Buttons: event.TouchPressed})
	if err := p.Poll(); err != nil {
		t.Fatal(err)
	}
	_ = p.Poll()
	if loads != 1 {
		t.Errorf("load called %d times, want 1", loads)
	}
	got := rec.take()
	if len(got) != 1 || got[0].X != 50 || got[0].Y != 50 {
		t.Errorf("events = %+v, want calibrated press at (50,50)", got)
	}

	p.Invalidate()
	_ = p.Poll()
	if loads != 2 {
		t.Errorf("load after Invalidate called %d times, want 2", loads)
	}
}

func TestPointerNotCalibrated(t *testing.T) {
	s := &scriptSampler{}
	p, _, _ := newTestPointer(t, s, Config{})
	p.SetCalibrationHooks(nil, func(int) ([]byte, error) { return nil, nil })

	if err := p.Poll(); !errors.Is(err, ErrNotCalibrated) {
		t.Errorf("err = %v, want ErrNotCalibrated", err)
	}
}

func TestPointerCalibrateSaves(t *testing.T) {
	target := &fakeTarget{w: 320, h: 240}
	ref, check := ReferencePoints(target.w, target.h)
	s := scriptFor(rawOf(ref[0]), rawOf(ref[1]), rawOf(check))

	p, _, _ := newTestPointer(t, s, Config{
		Instance: 1,
		Target:   target,
		Capture:  CaptureConfig{PollInterval: time.Millisecond},
	})

	var saved []byte
	p.SetCalibrationHooks(func(instance int, data []byte) error {
		if instance != 1 {
			t.Errorf("instance = %d", instance)
		}
		saved = data
		return nil
	}, nil)

	// 読み込み関数がないので最初の読み取りで対話的に取得する
	if err := p.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if saved == nil {
		t.Fatal("calibration not saved")
	}
	var cal Calibration
	if err := cal.UnmarshalBinary(saved); err != nil {
		t.Fatal(err)
	}
	if current, ok := p.Calibration(); !ok || current != cal {
		t.Errorf("current calibration = %+v, %v", current, ok)
	}
}

func TestPointerCalibrateSaveError(t *testing.T) {
	target := &fakeTarget{w: 320, h: 240}
	ref, check := ReferencePoints(target.w, target.h)
	s := scriptFor(rawOf(ref[0]), rawOf(ref[1]), rawOf(check))
	p, _, _ := newTestPointer(t, s, Config{Capture: CaptureConfig{PollInterval: time.Millisecond}})

	boom := errors.New("flash full")
	p.SetCalibrationHooks(func(int, []byte) error { return boom }, nil)
	if err := p.Calibrate(context.Background(), target); !errors.Is(err, boom) {
		t.Errorf("err = %v, want save error", err)
	}
	if _, ok := p.Calibration(); !ok {
		t.Error("calibration discarded after save failure")
	}
}

func TestPointerClipsToScreen(t *testing.T) {
	s := &scriptSampler{}
	p, _, _ := newTestPointer(t, s, Config{SkipCalibration: true, Width: 320, Height: 240})

	s.push(touch(-5, 900))
	_ = p.Poll()
	st := p.Status()
	if st.X != 0 || st.Y != 239 {
		t.Errorf("status = (%d,%d), want (0,239)", st.X, st.Y)
	}
	if !st.Pressed(event.TouchPressed) {
		t.Error("status lost button state")
	}
}

func TestPointerClose(t *testing.T) {
	p, e, _ := newTestPointer(t, &scriptSampler{}, Config{SkipCalibration: true})
	_ = e.Attach(dispatch.NewListener(), p.Source(), ListenMeta)
	p.Close()
	if e.Len() != 0 {
		t.Errorf("Len = %d after Close", e.Len())
	}
}
