package features

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AbsInfo は絶対座標の軸の現在値と範囲
type AbsInfo struct {
	Value   int32
	Minimum int32
	Maximum int32
}

// KeyState は押されているキーのビット列
type KeyState [KeyMax/8 + 1]byte

// Pressed は code のキーが押されているかを返す
func (k *KeyState) Pressed(code uint16) bool {
	if code > KeyMax {
		return false
	}
	return k[code/8]&(1<<(code%8)) != 0
}

// Input は evdev デバイスの状態を読み取るインターフェース
//
// Lock と Unlock は同じデバイスを使うすべての読み取りで共有する。
type Input interface {
	sync.Locker
	AbsInfo(axis uint16) (AbsInfo, error)
	Keys() (*KeyState, error)
}

// Evdev は開いている /dev/input/eventN
type Evdev struct {
	sync.Mutex
	file    *os.File
	path    string
	grabbed bool
}

// OpenEvdev は指定されたパスの evdev デバイスを開く
func OpenEvdev(path string) (*Evdev, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &Evdev{file: f, path: path}, nil
}

// Path はデバイスのパスを返す
func (d *Evdev) Path() string {
	return d.path
}

// Name はデバイス名を返す
func (d *Evdev) Name() (string, error) {
	return deviceName(d.file.Fd())
}

// AbsInfo は軸の現在値と範囲を返す
func (d *Evdev) AbsInfo(axis uint16) (AbsInfo, error) {
	var info absInfo
	if err := ioctl(d.file.Fd(), eviocgabs(axis), unsafe.Pointer(&info)); err != nil {
		return AbsInfo{}, fmt.Errorf("failed to read axis %#x: %w", axis, err)
	}
	return AbsInfo{Value: info.Value, Minimum: info.Minimum, Maximum: info.Maximum}, nil
}

// Keys は押されているキーの一覧を返す
func (d *Evdev) Keys() (*KeyState, error) {
	var keys KeyState
	if err := ioctl(d.file.Fd(), eviocgkey(len(keys)), unsafe.Pointer(&keys[0])); err != nil {
		return nil, fmt.Errorf("failed to read key state: %w", err)
	}
	return &keys, nil
}

// Grab はデバイスを専有し、他のプログラムへイベントが届かないようにする
func (d *Evdev) Grab() error {
	d.Lock()
	defer d.Unlock()

	if d.grabbed {
		return nil
	}
	if err := ioctlInt(d.file.Fd(), eviocgrab, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	d.grabbed = true
	return nil
}

// Ungrab はデバイスの専有を解除する
func (d *Evdev) Ungrab() error {
	d.Lock()
	defer d.Unlock()

	if !d.grabbed {
		return nil
	}
	if err := ioctlInt(d.file.Fd(), eviocgrab, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	d.grabbed = false
	return nil
}

// Close は専有を解除してデバイスを閉じる
func (d *Evdev) Close() error {
	_ = d.Ungrab()
	return d.file.Close()
}

func deviceName(fd uintptr) (string, error) {
	buf := make([]byte, 256)
	if err := ioctl(fd, eviocgname(len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return "", err
	}
	return cString(buf), nil
}

func cString(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

func ioctl(fd, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlInt(fd, req uintptr, value int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(value))
	if errno != 0 {
		return errno
	}
	return nil
}
