package pointer

import (
	"time"

	"github.com/char5742/touchbus/internal/event"
)

// State はジェスチャー分類器の状態
type State int

const (
	// Idle はボタンもタッチも押されていない
	Idle State = iota
	// Down は押されているが押した位置からほとんど動いていない
	Down
	// DownMoved は押されたまま揺れの閾値を超えて動いた
	DownMoved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Down:
		return "down"
	case DownMoved:
		return "down-moved"
	}
	return "unknown"
}

// ジェスチャー判定の既定値
const (
	DefaultClickTime   = 700 * time.Millisecond
	DefaultMoveJitter  = 2
	DefaultClickJitter = 10
)

// GestureConfig はジェスチャー判定の閾値
type GestureConfig struct {
	// ClickTime より短く押して離すとクリック、長いとコンテキストクリック
	// 0 以下なら時間で区別しない
	ClickTime time.Duration
	// MoveJitter を超えて動くと移動として扱う
	MoveJitter int32
	// ClickJitter を超えて動くとクリックを取り消す
	ClickJitter int32
}

// DefaultGestureConfig は既定の閾値を返す
func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		ClickTime:   DefaultClickTime,
		MoveJitter:  DefaultMoveJitter,
		ClickJitter: DefaultClickJitter,
	}
}

// Step は1回の読み取りに対する分類結果
type Step struct {
	Reading     Reading
	LastButtons uint16
	Meta        uint16
	// Moved は前回報告した位置から MoveJitter を超えて動いたか
	Moved bool
}

// Classifier は読み取り値の列を押下・解放・クリックなどのメタイベントに分類する
type Classifier struct {
	cfg GestureConfig

	state       State
	lastButtons uint16
	movePos     Point
	pressPos    Point
	clickPos    Point
	clickTime   time.Time
	clickArmed  bool
}

// NewClassifier は新しい分類器を作成する
func NewClassifier(cfg GestureConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// State は現在の状態を返す
func (c *Classifier) State() State {
	return c.state
}

// Reset は分類器を初期状態に戻す
func (c *Classifier) Reset() {
	*c = Classifier{cfg: c.cfg}
}

// Step は読み取り値 r を時刻 now のものとして分類する
func (c *Classifier) Step(r Reading, now time.Time) Step {
	p := Point{X: r.X, Y: r.Y}

	moved := distance(p, c.movePos) > c.cfg.MoveJitter
	if moved {
		c.movePos = p
	}

	// クリック範囲の外に出たらクリックを取り消す
	if c.clickArmed && distance(p, c.clickPos) > c.cfg.ClickJitter {
		c.clickArmed = false
	}

	var meta uint16

	// 押下
	pressed := r.Buttons &^ c.lastButtons
	if pressed&event.ButtonLeft != 0 {
		meta |= event.MetaDown
	}
	if pressed&(event.ButtonLeft|event.ButtonRight) != 0 {
		c.clickPos = p
		c.clickTime = now
		c.clickArmed = true
	}

	// 解放
	released := c.lastButtons &^ r.Buttons
	if released&event.ButtonLeft != 0 {
		meta |= event.MetaUp
	}
	if released&(event.ButtonLeft|event.ButtonRight) != 0 && c.clickArmed {
		if released&event.ButtonLeft != 0 && c.withinClickTime(now) {
			meta |= event.MetaClick
		} else {
			meta |= event.MetaContextClick
		}
		c.clickArmed = false
	}

	switch {
	case r.Buttons&event.ButtonLeft == 0:
		c.state = Idle
	case c.state == Idle:
		c.state = Down
		c.pressPos = p
	case c.state == Down && distance(p, c.pressPos) > c.cfg.MoveJitter:
		c.state = DownMoved
	}

	step := Step{
		Reading:     r,
		LastButtons: c.lastButtons,
		Meta:        meta,
		Moved:       moved,
	}
	c.lastButtons = r.Buttons
	return step
}

func (c *Classifier) withinClickTime(now time.Time) bool {
	if c.cfg.ClickTime <= 0 {
		return true
	}
	return now.Sub(c.clickTime) < c.cfg.ClickTime
}

// distance は2点間のマンハッタン距離を返す
func distance(a, b Point) int32 {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
