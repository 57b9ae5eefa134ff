package features

import (
	"fmt"

	"github.com/char5742/touchbus/internal/pointer"
)

// AxisMap はサンプラーのチャンネルと evdev の軸の対応
type AxisMap struct {
	X, Y, Z uint16
}

// SingleTouchAxes はシングルタッチの軸
var SingleTouchAxes = AxisMap{X: AbsX, Y: AbsY, Z: AbsPressure}

// MultiTouchAxes はマルチタッチの最初のスロットの軸
var MultiTouchAxes = AxisMap{X: AbsMTPositionX, Y: AbsMTPositionY, Z: AbsMTPressure}

// EvdevBus は evdev デバイスを pointer.Bus として読む
type EvdevBus struct {
	in   Input
	axes AxisMap
}

// NewEvdevBus は新しい EvdevBus を作成する
func NewEvdevBus(in Input, axes AxisMap) *EvdevBus {
	return &EvdevBus{in: in, axes: axes}
}

// Acquire はデバイスを専有する
func (b *EvdevBus) Acquire() { b.in.Lock() }

// Release はデバイスを解放する
func (b *EvdevBus) Release() { b.in.Unlock() }

// ReadRaw は軸の生の値を返す
func (b *EvdevBus) ReadRaw(ch pointer.Channel) (int32, error) {
	var axis uint16
	switch ch {
	case pointer.ChannelX:
		axis = b.axes.X
	case pointer.ChannelY:
		axis = b.axes.Y
	case pointer.ChannelZ:
		axis = b.axes.Z
	default:
		return 0, fmt.Errorf("unknown channel %v", ch)
	}
	info, err := b.in.AbsInfo(axis)
	if err != nil {
		return 0, err
	}
	return info.Value, nil
}

// Touched は BTN_TOUCH が押されているかを返す
func (b *EvdevBus) Touched() (bool, error) {
	b.in.Lock()
	defer b.in.Unlock()

	keys, err := b.in.Keys()
	if err != nil {
		return false, err
	}
	return keys.Pressed(BtnTouch), nil
}

// KeyToggles はキーやボタンを toggle.Reader として読む。i 番目のコードが i 番目のビットになる
type KeyToggles struct {
	in    Input
	codes []uint16
}

// NewKeyToggles は新しい KeyToggles を作成する
func NewKeyToggles(in Input, codes ...uint16) *KeyToggles {
	return &KeyToggles{in: in, codes: codes}
}

// Bits は押されているキーのビット列を返す
func (k *KeyToggles) Bits() (uint32, error) {
	k.in.Lock()
	keys, err := k.in.Keys()
	k.in.Unlock()
	if err != nil {
		return 0, err
	}

	var bits uint32
	for i, code := range k.codes {
		if i >= 32 {
			break
		}
		if keys.Pressed(code) {
			bits |= 1 << i
		}
	}
	return bits, nil
}

// AbsDials は絶対座標の軸を dial.Reader として読む
type AbsDials struct {
	in   Input
	axes []uint16
}

// NewAbsDials は新しい AbsDials を作成する
func NewAbsDials(in Input, axes ...uint16) *AbsDials {
	return &AbsDials{in: in, axes: axes}
}

// Read は軸の値を最小値からの距離として返す
func (a *AbsDials) Read(instance int) (uint16, error) {
	info, err := a.info(instance)
	if err != nil {
		return 0, err
	}
	return clampUint16(int64(info.Value) - int64(info.Minimum)), nil
}

// RawMax は軸の範囲の幅を返す
func (a *AbsDials) RawMax(instance int) (uint16, error) {
	info, err := a.info(instance)
	if err != nil {
		return 0, err
	}
	return clampUint16(int64(info.Maximum) - int64(info.Minimum)), nil
}

func (a *AbsDials) info(instance int) (AbsInfo, error) {
	if instance < 0 || instance >= len(a.axes) {
		return AbsInfo{}, fmt.Errorf("no axis for dial %d", instance)
	}
	a.in.Lock()
	defer a.in.Unlock()
	return a.in.AbsInfo(a.axes[instance])
}

func clampUint16(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
