package dispatch

import "github.com/char5742/touchbus/internal/event"

// Row は配信パス中の1つの割り当て
//
// 次の Next または Send まで有効。
type Row struct {
	listener *Listener
	flags    uint32
	s        *slot
	gen      uint32
}

// Listener は割り当てられたリスナーを返す
func (r *Row) Listener() *Listener { return r.listener }

// Flags はリスナーが指定した発生元固有のフラグを返す
func (r *Row) Flags() uint32 { return r.flags }

// Scratch は発生元が割り当てごとに保持する作業用の値を返す
//
// パスの途中で割り当てが解除されていれば 0 を返す。
func (r *Row) Scratch() uint32 {
	v := r.s.state.Load()
	if uint32(v>>32) != r.gen {
		return 0
	}
	return uint32(v)
}

// SetScratch は作業用の値を設定する
func (r *Row) SetScratch(v uint32) {
	r.update(func(uint32) uint32 { return v })
}

// OrScratch は作業用の値にビットを立てる
func (r *Row) OrScratch(bits uint32) {
	r.update(func(old uint32) uint32 { return old | bits })
}

// update は割り当てが同じ世代のままなら作業用の値を書き換える
// 解除後に別の割り当てが同じ行を使っていれば何もしない
func (r *Row) update(fn func(uint32) uint32) {
	for {
		old := r.s.state.Load()
		if uint32(old>>32) != r.gen {
			return
		}
		next := old&^0xFFFFFFFF | uint64(fn(uint32(old)))
		if r.s.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Pass は1つの発生元に対する配信パス
//
// Next は前の割り当てのリスナーのバッファロックを解放してから、次の割り当ての
// リスナーのバッファロックを取得する。ロックを保持するのは常に高々1つ。
// 途中で抜ける場合も Close を呼ぶこと。
type Pass struct {
	e      *Engine
	src    Source
	next   int
	row    Row
	held   *Listener
	buf    event.Event
	done   bool
	closed bool
}

// Listeners は src の配信パスを開始する
func (e *Engine) Listeners(src Source) *Pass {
	return &Pass{e: e, src: src}
}

// Next は次の割り当てに進む。残りがなければ false を返す
func (p *Pass) Next() bool {
	p.release()
	if p.closed || p.src.IsWildcard() {
		p.closed = true
		return false
	}

	p.e.mu.Lock()
	for i := p.next; i < len(p.e.slots); i++ {
		s := &p.e.slots[i]
		if s.listener == nil || s.source != p.src {
			continue
		}
		l := s.listener
		p.row = Row{listener: l, flags: s.flags.Load(), s: s, gen: s.generation()}
		p.next = i + 1
		p.e.mu.Unlock()

		// テーブルのロックを解放してからバッファのロックを取得する
		l.mu.Lock()
		p.held = l
		p.buf = nil
		p.done = false
		return true
	}
	p.next = len(p.e.slots)
	p.e.mu.Unlock()

	p.closed = true
	return false
}

// Row は現在の割り当てを返す
func (p *Pass) Row() *Row {
	return &p.row
}

// EventBuffer はリスナーが受け取れる状態ならイベントバッファを返す
//
// 受け取れない場合は (nil, false)。発生元は取りこぼしを Scratch に記録し、
// 次の配信パスで知らせる。同じパスの中で再試行はしない。
func (p *Pass) EventBuffer() (*event.Event, bool) {
	if p.held == nil || p.done || !p.held.eligibleLocked() {
		return nil, false
	}
	return &p.buf, true
}

// Send はバッファに書き込んだイベントを配信し、バッファのロックを解放する
//
// コールバックモードならテーブルのロックの外で同期的にコールバックを呼び、
// そうでなければ Wait 中のゴルーチンを起こす。
func (p *Pass) Send() {
	l := p.held
	if l == nil || p.done {
		return
	}
	p.done = true

	if ev := p.buf; ev != nil {
		switch {
		case l.callback != nil:
			l.callback(l.param, ev)
		case l.waiting:
			l.buf = ev
			l.wakeLocked()
		}
	}
	p.release()
}

// Close はパスを終了し、保持しているロックを解放する
func (p *Pass) Close() {
	p.release()
	p.closed = true
}

func (p *Pass) release() {
	if p.held != nil {
		p.held.mu.Unlock()
		p.held = nil
	}
	p.buf = nil
}
