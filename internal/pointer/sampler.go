package pointer

import (
	"fmt"

	"github.com/char5742/touchbus/internal/event"
)

// Channel は生の値を読み出すチャネル（軸）
type Channel int

const (
	ChannelX Channel = iota
	ChannelY
	ChannelZ
)

func (c Channel) String() string {
	switch c {
	case ChannelX:
		return "x"
	case ChannelY:
		return "y"
	case ChannelZ:
		return "z"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Bus はタッチパネルのハードウェアへのアクセスを抽象化するインターフェース
type Bus interface {
	// Acquire はバスを専有する。他の周辺機器と共有している場合はブロックする
	Acquire()
	// Release はバスの専有を解除する
	Release()
	// ReadRaw はチャネルの生の値を1回読み出す
	ReadRaw(ch Channel) (int32, error)
	// Touched はタッチ面が押されているかを返す
	Touched() (bool, error)
}

// Reading はサンプラーから得られる1回分の読み取り値
type Reading struct {
	X, Y    int32
	Z       int32 // 圧力
	Buttons uint16
}

// Pressed は左ボタン（タッチ）が押されているかを返す
func (r Reading) Pressed() bool {
	return r.Buttons&event.ButtonLeft != 0
}

// Sampler は位置とボタン状態を読み取るインターフェース
type Sampler interface {
	Reading() (Reading, error)
	// ReportsUpMoves は押されていない間も位置を報告できるかを返す
	ReportsUpMoves() bool
}

// MaxPressure は押されているときに報告する圧力
const MaxPressure = 100

// DefaultSamples は1軸あたりの中央値フィルタのサンプル数
const DefaultSamples = 7

// SamplerConfig はタッチサンプラーの設定
type SamplerConfig struct {
	// Samples は1軸あたりに保持するサンプル数。最初の1回の読み出しは別に捨てる
	Samples int
}

// TouchSampler は抵抗膜式などのタッチパネルから読み取るサンプラー
//
// 押されていない間は位置を報告できないため、最後に読み取った位置を
// 圧力0・ボタンなしで返す。
type TouchSampler struct {
	bus     Bus
	samples []int32
	lastX   int32
	lastY   int32
}

// NewTouchSampler は新しいタッチサンプラーを作成する
func NewTouchSampler(bus Bus, cfg SamplerConfig) *TouchSampler {
	n := cfg.Samples
	if n <= 0 {
		n = DefaultSamples
	}
	return &TouchSampler{
		bus:     bus,
		samples: make([]int32, n),
	}
}

// ReportsUpMoves は常に false を返す
func (s *TouchSampler) ReportsUpMoves() bool {
	return false
}

// Reading は現在の位置を読み取る
func (s *TouchSampler) Reading() (Reading, error) {
	touched, err := s.bus.Touched()
	if err != nil {
		return Reading{}, fmt.Errorf("failed to read touch state: %w", err)
	}
	if !touched {
		return Reading{X: s.lastX, Y: s.lastY}, nil
	}

	s.bus.Acquire()
	defer s.bus.Release()

	x, err := s.sample(ChannelX)
	if err != nil {
		return Reading{}, err
	}
	y, err := s.sample(ChannelY)
	if err != nil {
		return Reading{}, err
	}

	s.lastX, s.lastY = x, y
	return Reading{X: x, Y: y, Z: MaxPressure, Buttons: event.TouchPressed}, nil
}

func (s *TouchSampler) sample(ch Channel) (int32, error) {
	// 最初の1回は値が安定していないので捨てる
	if _, err := s.bus.ReadRaw(ch); err != nil {
		return 0, fmt.Errorf("failed to read %v: %w", ch, err)
	}
	for i := range s.samples {
		v, err := s.bus.ReadRaw(ch)
		if err != nil {
			return 0, fmt.Errorf("failed to read %v: %w", ch, err)
		}
		s.samples[i] = v
	}
	return Median(s.samples), nil
}
