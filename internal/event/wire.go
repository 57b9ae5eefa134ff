package event

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType はワイヤー形式に変換できないイベント種別
	ErrUnknownType = errors.New("unknown event type")
	// ErrTooLarge はイベントが MaxSize を超える
	ErrTooLarge = errors.New("event exceeds maximum size")
)

type mouseWire struct {
	Type        Type
	Instance    uint16
	X, Y, Z     int32
	Buttons     uint16
	LastButtons uint16
	Meta        uint16
}

type toggleWire struct {
	Type     Type
	Instance uint16
	On       bool
}

type dialWire struct {
	Type     Type
	Instance uint16
	Value    uint16
	Max      uint16
}

type userWire struct {
	Type Type
	Data [UserDataSize]byte
}

// Encode はイベントを固定長のリトルエンディアン形式に変換する
// 先頭2バイトは常にタグ
func Encode(ev Event) ([MaxSize]byte, error) {
	var out [MaxSize]byte

	var v interface{}
	switch e := ev.(type) {
	case Exit:
		v = e.Type()
	case Mouse:
		v = mouseWire{
			Type:        e.Type(),
			Instance:    e.Instance,
			X:           e.X,
			Y:           e.Y,
			Z:           e.Z,
			Buttons:     e.Buttons,
			LastButtons: e.LastButtons,
			Meta:        e.Meta,
		}
	case Toggle:
		v = toggleWire{Type: TypeToggle, Instance: e.Instance, On: e.On}
	case Dial:
		v = dialWire{Type: TypeDial, Instance: e.Instance, Value: e.Value, Max: e.Max}
	case User:
		if !e.Tag.IsUser() {
			return out, fmt.Errorf("%w: user tag %#04x", ErrUnknownType, uint16(e.Tag))
		}
		v = userWire{Type: e.Tag, Data: e.Data}
	default:
		return out, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}

	if binary.Size(v) > MaxSize {
		return out, ErrTooLarge
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return out, fmt.Errorf("failed to encode event: %w", err)
	}
	copy(out[:], buf.Bytes())
	return out, nil
}

// Decode は固定長のワイヤー形式からイベントを復元する
// TypeNull は nil を返す
func Decode(b [MaxSize]byte) (Event, error) {
	t := Type(binary.LittleEndian.Uint16(b[0:2]))
	r := bytes.NewReader(b[:])

	switch {
	case t == TypeNull:
		return nil, nil
	case t == TypeExit:
		return Exit{}, nil
	case t == TypeMouse || t == TypeTouch:
		var w mouseWire
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, fmt.Errorf("failed to decode mouse event: %w", err)
		}
		return Mouse{
			Kind:        w.Type,
			Instance:    w.Instance,
			X:           w.X,
			Y:           w.Y,
			Z:           w.Z,
			Buttons:     w.Buttons,
			LastButtons: w.LastButtons,
			Meta:        w.Meta,
		}, nil
	case t == TypeToggle:
		var w toggleWire
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, fmt.Errorf("failed to decode toggle event: %w", err)
		}
		return Toggle{Instance: w.Instance, On: w.On}, nil
	case t == TypeDial:
		var w dialWire
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, fmt.Errorf("failed to decode dial event: %w", err)
		}
		return Dial{Instance: w.Instance, Value: w.Value, Max: w.Max}, nil
	case t.IsUser():
		var w userWire
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, fmt.Errorf("failed to decode user event: %w", err)
		}
		return User{Tag: w.Type, Data: w.Data}, nil
	}

	return nil, fmt.Errorf("%w: %#04x", ErrUnknownType, uint16(t))
}
