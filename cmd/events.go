package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/char5742/touchbus/internal/event"
)

// formatEvent はイベントを1行の文字列にする
func formatEvent(ev event.Event) string {
	switch e := ev.(type) {
	case event.Mouse:
		s := fmt.Sprintf("%s%d x=%d y=%d z=%d buttons=%#x", kindName(e.Type()), e.Instance, e.X, e.Y, e.Z, e.Buttons&^event.ButtonMissed)
		if m := metaNames(e.Meta); m != "" {
			s += " meta=" + m
		}
		if e.Missed() {
			s += " missed"
		}
		return s
	case event.Toggle:
		state := "off"
		if e.On {
			state = "on"
		}
		return fmt.Sprintf("toggle%d %s", e.Instance, state)
	case event.Dial:
		return fmt.Sprintf("dial%d %d/%d", e.Instance, e.Value, e.Max)
	case event.Exit:
		return "exit"
	case nil:
		return "null"
	}
	return fmt.Sprintf("event %#04x", uint16(ev.Type()))
}

// formatWire はイベントの固定長の表現を16進で返す
func formatWire(ev event.Event) (string, error) {
	b, err := event.Encode(ev)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func kindName(t event.Type) string {
	if t == event.TypeMouse {
		return "mouse"
	}
	return "touch"
}

func metaNames(meta uint16) string {
	var names []string
	for _, m := range []struct {
		bit  uint16
		name string
	}{
		{event.MetaDown, "down"},
		{event.MetaUp, "up"},
		{event.MetaClick, "click"},
		{event.MetaContextClick, "context-click"},
	} {
		if meta&m.bit != 0 {
			names = append(names, m.name)
		}
	}
	return strings.Join(names, "|")
}
