// Package toggle はスイッチやキーのようなオン・オフ入力をビットごとの発生元として配信する。
package toggle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
)

// リスナーが Attach 時に指定するフラグ
const (
	// ListenOn はオンになったときに受け取る
	ListenOn uint32 = 0x0001
	// ListenOff はオフになったときに受け取る
	ListenOff uint32 = 0x0002
)

// MaxToggles は1つの Reader で扱えるトグルの最大数
const MaxToggles = 32

// ErrNoSuchToggle は存在しないトグル番号を指定したときのエラー
var ErrNoSuchToggle = errors.New("no such toggle")

// Reader はすべてのトグルの状態をビット列として読み取る
type Reader interface {
	Bits() (uint32, error)
}

// Config はトグル入力の設定
type Config struct {
	// Count はトグルの数。1 から MaxToggles まで
	Count  int
	Logger *slog.Logger
}

// Toggles は Reader のビットごとに発生元を持つトグル入力
type Toggles struct {
	engine *dispatch.Engine
	reader Reader
	srcs   []dispatch.Source
	log    *slog.Logger

	mu     sync.Mutex
	invert uint32
	state  uint32
	primed bool
}

// New は新しいトグル入力を作成する
func New(engine *dispatch.Engine, reader Reader, cfg Config) (*Toggles, error) {
	if cfg.Count <= 0 || cfg.Count > MaxToggles {
		return nil, fmt.Errorf("toggle count %d out of range 1..%d", cfg.Count, MaxToggles)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Toggles{
		engine: engine,
		reader: reader,
		srcs:   make([]dispatch.Source, cfg.Count),
		log:    logger,
	}
	for i := range t.srcs {
		t.srcs[i] = dispatch.NewSource(fmt.Sprintf("toggle%d", i))
	}
	return t, nil
}

// Count はトグルの数を返す
func (t *Toggles) Count() int {
	return len(t.srcs)
}

// Source は i 番目のトグルの発生元を返す
func (t *Toggles) Source(i int) (dispatch.Source, error) {
	if i < 0 || i >= len(t.srcs) {
		return dispatch.Source{}, ErrNoSuchToggle
	}
	return t.srcs[i], nil
}

// Invert は i 番目のトグルの極性を設定する
//
// 論理状態が変わる場合は次の Poll で配信される。
func (t *Toggles) Invert(i int, invert bool) error {
	if i < 0 || i >= len(t.srcs) {
		return ErrNoSuchToggle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if invert {
		t.invert |= 1 << i
	} else {
		t.invert &^= 1 << i
	}
	return nil
}

// Status は最後に読み取った i 番目のトグルの論理状態を返す
func (t *Toggles) Status(i int) bool {
	if i < 0 || i >= len(t.srcs) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state&(1<<i) != 0
}

// Poll は状態を読み取り、変化したトグルをリスナーへ配信する
//
// 最初の Poll は現在の状態を記録するだけで配信しない。
func (t *Toggles) Poll() error {
	bits, err := t.reader.Bits()
	if err != nil {
		return fmt.Errorf("failed to read toggles: %w", err)
	}

	t.mu.Lock()
	bits ^= t.invert
	bits &= uint32(1)<<len(t.srcs) - 1
	changed := bits ^ t.state
	if !t.primed {
		changed = 0
		t.primed = true
	}
	t.state = bits
	t.mu.Unlock()

	for i := range t.srcs {
		if changed&(1<<i) == 0 {
			continue
		}
		on := bits&(1<<i) != 0
		t.log.Debug("トグルが変化しました", "toggle", i, "on", on)
		t.deliver(i, on)
	}
	return nil
}

func (t *Toggles) deliver(i int, on bool) {
	want := ListenOff
	if on {
		want = ListenOn
	}
	t.engine.Deliver(t.srcs[i], func(row *dispatch.Row, buf *event.Event) bool {
		if buf == nil || row.Flags()&want == 0 {
			return false
		}
		*buf = event.Toggle{Instance: uint16(i), On: on}
		return true
	})
}

// Close はすべてのトグルの割り当てを解除する
func (t *Toggles) Close() {
	for _, src := range t.srcs {
		t.engine.DetachSource(src)
	}
}
