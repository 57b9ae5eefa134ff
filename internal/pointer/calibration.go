package pointer

import (
	"encoding/binary"
	"fmt"
)

// fracBits はキャリブレーション係数の固定小数点の小数部のビット数
const fracBits = 16

// Point は画面または生の座標
type Point struct {
	X, Y int32
}

// Calibration は生の座標を画面座標へ写す軸ごとのスケールとオフセット
// 値は Q16.16 の固定小数点
type Calibration struct {
	ScaleX, OffsetX int64
	ScaleY, OffsetY int64
}

// Identity は座標を変換しないキャリブレーションを返す
func Identity() Calibration {
	return Calibration{ScaleX: 1 << fracBits, ScaleY: 1 << fracBits}
}

// Map は生の座標を画面座標に変換する
func (c Calibration) Map(p Point) Point {
	return Point{
		X: mapAxis(p.X, c.ScaleX, c.OffsetX),
		Y: mapAxis(p.Y, c.ScaleY, c.OffsetY),
	}
}

// Apply は読み取り値の位置を画面座標に変換する
func (c Calibration) Apply(r Reading) Reading {
	p := c.Map(Point{X: r.X, Y: r.Y})
	r.X, r.Y = p.X, p.Y
	return r
}

func mapAxis(v int32, scale, offset int64) int32 {
	return int32((int64(v)*scale + offset + 1<<(fracBits-1)) >> fracBits)
}

// Fit は2つの基準点から軸ごとのスケールとオフセットを求める
func Fit(screen, raw [2]Point) (Calibration, error) {
	sx, ox, err := fitAxis(raw[0].X, raw[1].X, screen[0].X, screen[1].X)
	if err != nil {
		return Calibration{}, fmt.Errorf("x axis: %w", err)
	}
	sy, oy, err := fitAxis(raw[0].Y, raw[1].Y, screen[0].Y, screen[1].Y)
	if err != nil {
		return Calibration{}, fmt.Errorf("y axis: %w", err)
	}
	return Calibration{ScaleX: sx, OffsetX: ox, ScaleY: sy, OffsetY: oy}, nil
}

func fitAxis(r0, r1, s0, s1 int32) (scale, offset int64, err error) {
	if r0 == r1 {
		return 0, 0, ErrDegenerate
	}
	scale = divRound(int64(s1-s0)<<fracBits, int64(r1-r0))
	offset = int64(s0)<<fracBits - int64(r0)*scale
	return scale, offset, nil
}

// divRound は最も近い整数に丸めた商を返す
func divRound(a, b int64) int64 {
	if b < 0 {
		a, b = -a, -b
	}
	if a >= 0 {
		return (a + b/2) / b
	}
	return (a - b/2) / b
}

// Validate は raw を変換した結果が want から tolerance 画素以内かを確かめる
func (c Calibration) Validate(raw, want Point, tolerance int32) error {
	got := c.Map(raw)
	dx := int64(got.X - want.X)
	dy := int64(got.Y - want.Y)
	if dx*dx+dy*dy > int64(tolerance)*int64(tolerance) {
		return fmt.Errorf("%w: test point %v mapped to %v (tolerance %d)", ErrCalibrationFailed, want, got, tolerance)
	}
	return nil
}

// 保存形式: マジック3バイト + バージョン1バイト + 係数4つ
const (
	calibrationMagic   = "TBC"
	calibrationVersion = 1
	calibrationSize    = 4 + 4*8
)

// MarshalBinary はキャリブレーションを保存用のバイト列に変換する
func (c Calibration) MarshalBinary() ([]byte, error) {
	b := make([]byte, calibrationSize)
	copy(b, calibrationMagic)
	b[3] = calibrationVersion
	binary.LittleEndian.PutUint64(b[4:], uint64(c.ScaleX))
	binary.LittleEndian.PutUint64(b[12:], uint64(c.OffsetX))
	binary.LittleEndian.PutUint64(b[20:], uint64(c.ScaleY))
	binary.LittleEndian.PutUint64(b[28:], uint64(c.OffsetY))
	return b, nil
}

// UnmarshalBinary は MarshalBinary で作られたバイト列を読み込む
func (c *Calibration) UnmarshalBinary(b []byte) error {
	if len(b) != calibrationSize || string(b[:3]) != calibrationMagic {
		return ErrBadCalibrationData
	}
	if b[3] != calibrationVersion {
		return fmt.Errorf("%w: version %d", ErrBadCalibrationData, b[3])
	}
	cal := Calibration{
		ScaleX:  int64(binary.LittleEndian.Uint64(b[4:])),
		OffsetX: int64(binary.LittleEndian.Uint64(b[12:])),
		ScaleY:  int64(binary.LittleEndian.Uint64(b[20:])),
		OffsetY: int64(binary.LittleEndian.Uint64(b[28:])),
	}
	if cal.ScaleX == 0 || cal.ScaleY == 0 {
		return fmt.Errorf("%w: zero scale", ErrBadCalibrationData)
	}
	*c = cal
	return nil
}
