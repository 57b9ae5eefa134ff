package dispatch

import (
	"sync"
	"time"

	"github.com/char5742/touchbus/internal/event"
)

// Wait のタイムアウトに使う特別な値
const (
	// Forever はイベントが届くまで無期限に待つ
	Forever time.Duration = -1
	// Immediate は待たずにすぐ戻る
	Immediate time.Duration = 0
)

// Callback はコールバックモードのリスナーに配信されるイベントを受け取る関数
//
// 配信元のゴルーチン上で同期的に呼び出される。自分自身のリスナーに対する
// 操作（Wait, RegisterCallback, ワイルドカードの Detach）を呼び出してはならず、
// すぐに戻らなければならない。ev はコピーなので保持してもよい。
type Callback func(param any, ev event.Event)

// Listener はイベントを待つ、または受け取る主体
//
// 1つのイベントバッファを持ち、ブロッキング待機モードかコールバックモードの
// どちらか一方で動作する。
type Listener struct {
	signal chan struct{} // 二値のシグナル（容量1）

	mu       sync.Mutex // バッファのロック
	callback Callback
	param    any
	buf      event.Event
	waiting  bool
}

// NewListener は初期化済みのリスナーを作成する
func NewListener() *Listener {
	l := &Listener{}
	l.Init()
	return l
}

// Init はリスナーを初期状態に戻す
// 他のゴルーチンが使用中のリスナーに対して呼び出してはならない
func (l *Listener) Init() {
	l.signal = make(chan struct{}, 1)
	l.callback = nil
	l.param = nil
	l.buf = nil
	l.waiting = false
}

// Wait はイベントが配信されるか timeout が経過するまで待つ
//
// タイムアウト、コールバックモード、または他のゴルーチンが既に待機中の場合は
// (nil, false) を返す。
func (l *Listener) Wait(timeout time.Duration) (event.Event, bool) {
	l.mu.Lock()
	if l.callback != nil || l.waiting {
		l.mu.Unlock()
		return nil, false
	}
	if timeout == Immediate {
		l.mu.Unlock()
		return nil, false
	}

	// 前回のタイムアウトと配信が競合した場合の残りを捨てる
	select {
	case <-l.signal:
	default:
	}
	l.buf = nil
	l.waiting = true
	l.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-l.signal:
		return l.take(), true
	case <-expired:
	}

	l.mu.Lock()
	if l.waiting {
		l.waiting = false
		l.mu.Unlock()
		return nil, false
	}
	l.mu.Unlock()

	// タイムアウトと同時に配信された
	<-l.signal
	return l.take(), true
}

func (l *Listener) take() event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf
}

// RegisterCallback はコールバック関数を設定する。fn が nil なら解除する
//
// Wait でブロック中のゴルーチンがあれば event.Exit で起こす。
func (l *Listener) RegisterCallback(fn Callback, param any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.param = param
	l.callback = fn
	l.exitLocked()
}

// Waiting はゴルーチンが Wait でブロック中かを返す
func (l *Listener) Waiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiting
}

// exit は待機中のゴルーチンに終了イベントを届ける
func (l *Listener) exit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitLocked()
}

func (l *Listener) exitLocked() {
	if !l.waiting {
		return
	}
	l.buf = event.Exit{}
	l.wakeLocked()
}

// eligibleLocked はイベントを受け取れる状態かを返す。バッファのロックを保持していること
func (l *Listener) eligibleLocked() bool {
	return l.callback != nil || l.waiting
}

func (l *Listener) wakeLocked() {
	l.waiting = false
	select {
	case l.signal <- struct{}{}:
	default:
	}
}
