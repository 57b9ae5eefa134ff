// Package dial はポテンショメータやアナログ軸のような連続値の入力を配信する。
//
// 生の値は 0..RawMax から各ダイヤルの 0..Max へ丸めて変換し、
// 前回配信した値から感度以上変化したときだけ配信する。
package dial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
)

// DefaultSensitivity は既定の感度
const DefaultSensitivity = 1

var (
	// ErrNoSuchDial は存在しないダイヤル番号を指定したときのエラー
	ErrNoSuchDial = errors.New("no such dial")
	// ErrInvalidRange は範囲や感度が不正なときのエラー
	ErrInvalidRange = errors.New("invalid dial range")
)

// Reader はダイヤルの生の値を読み取る
type Reader interface {
	Read(instance int) (uint16, error)
}

// Config はダイヤル入力の設定
type Config struct {
	Count int
	// RawMax は Reader が返す値の最大値
	RawMax uint16
	Logger *slog.Logger
}

type channel struct {
	max         uint16
	sensitivity uint16
	value       uint16
	primed      bool
}

// Dials は複数のダイヤル入力
type Dials struct {
	engine *dispatch.Engine
	reader Reader
	srcs   []dispatch.Source
	rawMax uint16
	log    *slog.Logger

	mu sync.Mutex
	ch []channel
}

// New は新しいダイヤル入力を作成する。各ダイヤルの範囲は 0..RawMax で始まる
func New(engine *dispatch.Engine, reader Reader, cfg Config) (*Dials, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("dial count must be positive: %d", cfg.Count)
	}
	if cfg.RawMax == 0 {
		return nil, fmt.Errorf("%w: raw max is zero", ErrInvalidRange)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dials{
		engine: engine,
		reader: reader,
		srcs:   make([]dispatch.Source, cfg.Count),
		rawMax: cfg.RawMax,
		log:    logger,
		ch:     make([]channel, cfg.Count),
	}
	for i := range d.srcs {
		d.srcs[i] = dispatch.NewSource(fmt.Sprintf("dial%d", i))
		d.ch[i] = channel{max: cfg.RawMax, sensitivity: DefaultSensitivity}
	}
	return d, nil
}

// Count はダイヤルの数を返す
func (d *Dials) Count() int {
	return len(d.srcs)
}

// Source は i 番目のダイヤルの発生元を返す
func (d *Dials) Source(i int) (dispatch.Source, error) {
	if i < 0 || i >= len(d.srcs) {
		return dispatch.Source{}, ErrNoSuchDial
	}
	return d.srcs[i], nil
}

// SetRange は i 番目のダイヤルの値の範囲を 0..max に設定する
//
// 次の Poll で新しい範囲の値が配信される。
func (d *Dials) SetRange(i int, max uint16) error {
	if i < 0 || i >= len(d.ch) {
		return ErrNoSuchDial
	}
	if max == 0 {
		return fmt.Errorf("%w: max is zero", ErrInvalidRange)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ch[i].max = max
	if d.ch[i].value > max {
		d.ch[i].value = max
	}
	d.ch[i].primed = false
	return nil
}

// SetSensitivity は配信に必要な最小の変化量を設定する
func (d *Dials) SetSensitivity(i int, diff uint16) error {
	if i < 0 || i >= len(d.ch) {
		return ErrNoSuchDial
	}
	if diff == 0 {
		return fmt.Errorf("%w: sensitivity is zero", ErrInvalidRange)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ch[i].sensitivity = diff
	return nil
}

// Value は最後に配信した i 番目のダイヤルの値と範囲を返す
func (d *Dials) Value(i int) (value, max uint16, err error) {
	if i < 0 || i >= len(d.ch) {
		return 0, 0, ErrNoSuchDial
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch[i].value, d.ch[i].max, nil
}

// Poll はすべてのダイヤルを読み取り、変化したものをリスナーへ配信する
//
// 読み取りに失敗したダイヤルは飛ばし、最初のエラーを返す。
func (d *Dials) Poll() error {
	var firstErr error
	for i := range d.ch {
		raw, err := d.reader.Read(i)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to read dial %d: %w", i, err)
			}
			continue
		}

		ev, changed := d.update(i, raw)
		if !changed {
			continue
		}
		d.log.Debug("ダイヤルが変化しました", "dial", i, "value", ev.Value, "max", ev.Max)
		d.engine.Deliver(d.srcs[i], func(row *dispatch.Row, buf *event.Event) bool {
			if buf == nil {
				return false
			}
			*buf = ev
			return true
		})
	}
	return firstErr
}

func (d *Dials) update(i int, raw uint16) (event.Dial, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &d.ch[i]
	v := scale(raw, d.rawMax, c.max)
	if c.primed && diff(v, c.value) < c.sensitivity {
		return event.Dial{}, false
	}
	c.value = v
	c.primed = true
	return event.Dial{Instance: uint16(i), Value: v, Max: c.max}, true
}

// scale は 0..rawMax の値を 0..max へ丸めて変換する
func scale(raw, rawMax, max uint16) uint16 {
	if raw >= rawMax {
		return max
	}
	return uint16((uint32(raw)*uint32(max) + uint32(rawMax)/2) / uint32(rawMax))
}

func diff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// Close はすべてのダイヤルの割り当てを解除する
func (d *Dials) Close() {
	for _, src := range d.srcs {
		d.engine.DetachSource(src)
	}
}
