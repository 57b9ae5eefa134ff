package event

// Type はイベントの種類を表すタグ
type Type uint16

// 予約済みのタグと各イベント群のタグ範囲
const (
	TypeNull Type = 0x0000 // 空のイベント
	TypeExit Type = 0x0001 // 待機スレッドを終了させるためのイベント

	TypeInputFirst Type = 0x0100 // 入力デバイス系イベントの先頭
	TypeMouse      Type = TypeInputFirst + 0
	TypeTouch      Type = TypeInputFirst + 1
	TypeToggle     Type = TypeInputFirst + 3
	TypeDial       Type = TypeInputFirst + 4
	TypeInputLast  Type = 0x01ff

	TypeWidgetFirst Type = 0x0200 // ウィンドウウィジェット用に予約
	TypeWidgetLast  Type = 0x7fff

	TypeUserFirst Type = 0x8000 // アプリケーション定義のイベント
)

// MaxSize はすべてのイベントで共通のワイヤー形式の最大サイズ（バイト）
const MaxSize = 32

// マウス・タッチのボタンビット
const (
	ButtonLeft   uint16 = 0x0001
	ButtonRight  uint16 = 0x0002
	ButtonMiddle uint16 = 0x0004
	ButtonFour   uint16 = 0x0008

	// ButtonMissed はリスナーが以前のイベントを取りこぼしたことを示す
	// このとき Meta には取りこぼした複数のイベントのメタビットがまとめて入るため、
	// MetaClick と MetaContextClick が同時に立つことがある
	ButtonMissed uint16 = 0x8000

	// TouchPressed はタッチ面が押されていることを示す
	TouchPressed = ButtonLeft
)

// メタイベントのビット
const (
	MetaNone         uint16 = 0x0000
	MetaDown         uint16 = 0x0001
	MetaUp           uint16 = 0x0002
	MetaClick        uint16 = 0x0004
	MetaContextClick uint16 = 0x0008
)

// Event はリスナーに配信されるイベント
type Event interface {
	Type() Type
}

// Exit は待機中のリスナーを解放するためのイベント
type Exit struct{}

func (Exit) Type() Type { return TypeExit }

// Mouse はマウスまたはタッチ入力のイベント
type Mouse struct {
	Kind        Type // TypeMouse または TypeTouch
	Instance    uint16
	X, Y, Z     int32
	Buttons     uint16 // 現在のボタン状態
	LastButtons uint16 // 直前のボタン状態
	Meta        uint16
}

func (m Mouse) Type() Type {
	if m.Kind == TypeTouch {
		return TypeTouch
	}
	return TypeMouse
}

// Pressed は指定ボタンが押されているかを返す
func (m Mouse) Pressed(button uint16) bool {
	return m.Buttons&button != 0
}

// Missed はこのイベントの前にイベントの取りこぼしがあったかを返す
func (m Mouse) Missed() bool {
	return m.Buttons&ButtonMissed != 0
}

// Toggle はトグルスイッチの状態変化イベント
type Toggle struct {
	Instance uint16
	On       bool
}

func (Toggle) Type() Type { return TypeToggle }

// Dial はダイヤル（ボリュームなど）の値変化イベント
type Dial struct {
	Instance uint16
	Value    uint16
	Max      uint16
}

func (Dial) Type() Type { return TypeDial }

// UserDataSize はユーザーイベントに載せられるデータの最大サイズ
const UserDataSize = MaxSize - 2

// User はアプリケーション定義のイベント
type User struct {
	Tag  Type // TypeUserFirst 以上
	Data [UserDataSize]byte
}

func (u User) Type() Type { return u.Tag }

// IsExit はイベントが終了イベントかを返す
func IsExit(ev Event) bool {
	return ev != nil && ev.Type() == TypeExit
}

// IsInput はタグが入力デバイス系の範囲に含まれるかを返す
func (t Type) IsInput() bool {
	return t >= TypeInputFirst && t <= TypeInputLast
}

// IsUser はタグがユーザー定義の範囲に含まれるかを返す
func (t Type) IsUser() bool {
	return t >= TypeUserFirst
}
