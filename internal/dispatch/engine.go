// Package dispatch は発生元（Source）とリスナー（Listener）を結び付け、
// リスナーごとに1つのイベントバッファを介してイベントを配信する。
//
// 割り当て（リスナー、発生元、フラグ）は固定容量のテーブルに保持され、
// テーブル全体の構造変更は1つのロックで、各リスナーのバッファは
// それぞれのロックで保護される。発生元は Listeners で配信パスを開始し、
// 割り当てごとに EventBuffer でバッファを取得して Send で配信する。
package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/char5742/touchbus/internal/event"
)

// DefaultCapacity は割り当てテーブルの既定の容量
const DefaultCapacity = 32

// Config はエンジンの設定
type Config struct {
	// Capacity は割り当てテーブルの行数。0 なら DefaultCapacity
	Capacity int
	// HaltOnExhaustion が true ならテーブルが満杯のとき panic する
	HaltOnExhaustion bool
	Logger           *slog.Logger
}

type slot struct {
	listener *Listener
	source   Source
	flags    atomic.Uint32
	// 上位32ビットは割り当てごとに変わる世代、下位32ビットは作業用の値
	state atomic.Uint64
}

// reset は作業用の値を消して世代を進める。テーブルのロックを保持して呼ぶ
func (s *slot) reset() {
	s.state.Store((s.state.Load()>>32 + 1) << 32)
}

func (s *slot) generation() uint32 {
	return uint32(s.state.Load() >> 32)
}

func (s *slot) clear() {
	s.listener = nil
	s.source = Source{}
	s.flags.Store(0)
	s.reset()
}

// Engine はイベント配信エンジン
type Engine struct {
	mu    sync.Mutex
	slots []slot
	halt  bool
	log   *slog.Logger
}

// New は新しいエンジンを作成する
func New(cfg Config) *Engine {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		slots: make([]slot, capacity),
		halt:  cfg.HaltOnExhaustion,
		log:   logger,
	}
}

// Capacity は割り当てテーブルの容量を返す
func (e *Engine) Capacity() int {
	return len(e.slots)
}

// Len は使用中の割り当ての数を返す
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range e.slots {
		if e.slots[i].listener != nil {
			n++
		}
	}
	return n
}

// Attach はリスナーを発生元に割り当てる
//
// 同じ組み合わせが既にあればフラグだけを更新する。
func (e *Engine) Attach(l *Listener, src Source, flags uint32) error {
	if l == nil || src.IsWildcard() {
		return ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var free *slot
	for i := range e.slots {
		s := &e.slots[i]
		if s.listener == l && s.source == src {
			s.flags.Store(flags)
			return nil
		}
		if free == nil && s.listener == nil {
			free = s
		}
	}

	if free == nil {
		if e.halt {
			panic(fmt.Sprintf("dispatch: %v (capacity %d)", ErrTableFull, len(e.slots)))
		}
		e.log.Warn("割り当てテーブルに空きがありません", "source", src.Name(), "capacity", len(e.slots))
		return ErrTableFull
	}

	free.listener = l
	free.source = src
	free.flags.Store(flags)
	free.reset()
	e.log.Debug("リスナーを割り当てました", "source", src.Name(), "flags", flags)
	return nil
}

// Detach はリスナーと発生元の割り当てを解除する
//
// src がワイルドカードならリスナーのすべての割り当てを解除し、
// Wait でブロック中のゴルーチンを event.Exit で起こす。
func (e *Engine) Detach(l *Listener, src Source) {
	if l == nil {
		return
	}

	e.mu.Lock()
	for i := range e.slots {
		s := &e.slots[i]
		if s.listener == l && (src.IsWildcard() || s.source == src) {
			s.clear()
		}
	}
	e.mu.Unlock()

	if src.IsWildcard() {
		l.exit()
	}
}

// DetachSource は発生元のすべての割り当てを解除する
func (e *Engine) DetachSource(src Source) {
	if src.IsWildcard() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.slots {
		if e.slots[i].source == src {
			e.slots[i].clear()
		}
	}
	e.log.Debug("発生元の割り当てをすべて解除しました", "source", src.Name())
}

// Deliver は src の配信パスを最後まで実行する
//
// 割り当てごとに fn が呼ばれる。リスナーが受け取れない状態なら buf は nil で、
// 戻り値は無視される。buf にイベントを書き込んで true を返すと配信される。
func (e *Engine) Deliver(src Source, fn func(row *Row, buf *event.Event) bool) {
	p := e.Listeners(src)
	defer p.Close()

	for p.Next() {
		buf, ok := p.EventBuffer()
		if !ok {
			fn(p.Row(), nil)
			continue
		}
		if fn(p.Row(), buf) {
			p.Send()
		}
	}
}
