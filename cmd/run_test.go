package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPrintEventsStopsOnExit(t *testing.T) {
	e := dispatch.New(dispatch.Config{})
	src := dispatch.NewSource("toggle0")
	l := dispatch.NewListener()
	_ = e.Attach(l, src, 0)

	var out lockedBuffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(context.Background(), &out, l)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "toggle0 on") {
		if time.Now().After(deadline) {
			t.Fatalf("output = %q", out.String())
		}
		e.Deliver(src, func(row *dispatch.Row, buf *event.Event) bool {
			if buf == nil {
				return false
			}
			*buf = event.Toggle{On: true}
			return true
		})
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		e.Detach(l, dispatch.Source{})
		select {
		case <-done:
			return
		case <-ctx.Done():
			t.Fatal("printEvents did not stop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPrintEventsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(ctx, &lockedBuffer{}, dispatch.NewListener())
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("printEvents did not stop after cancel")
	}
}
