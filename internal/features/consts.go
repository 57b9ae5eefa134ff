package features

import "unsafe"

// evdev のイベント種別（input-event-codes.h から）
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
)

// 絶対座標の軸
const (
	AbsX            uint16 = 0x00
	AbsY            uint16 = 0x01
	AbsZ            uint16 = 0x02
	AbsRX           uint16 = 0x03
	AbsRY           uint16 = 0x04
	AbsRZ           uint16 = 0x05
	AbsThrottle     uint16 = 0x06
	AbsWheel        uint16 = 0x08
	AbsPressure     uint16 = 0x18
	AbsMTPositionX  uint16 = 0x35
	AbsMTPositionY  uint16 = 0x36
	AbsMTTrackingID uint16 = 0x39
	AbsMTPressure   uint16 = 0x3a
)

// キーとボタン
const (
	BtnLeft   uint16 = 0x110
	BtnRight  uint16 = 0x111
	BtnMiddle uint16 = 0x112
	BtnTouch  uint16 = 0x14a
	KeyMax    uint16 = 0x2ff
)

// ioctl 番号の組み立て（linux/ioctl.h のマクロ展開）
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// absInfo は struct input_absinfo
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func eviocgname(n int) uintptr { return ioc(iocRead, 'E', 0x06, uintptr(n)) }
func eviocgkey(n int) uintptr  { return ioc(iocRead, 'E', 0x18, uintptr(n)) }
func eviocgabs(axis uint16) uintptr {
	return ioc(iocRead, 'E', 0x40+uintptr(axis), unsafe.Sizeof(absInfo{}))
}

// eviocgrab はデバイスの排他制御用の IOCTL
var eviocgrab = ioc(iocWrite, 'E', 0x90, unsafe.Sizeof(int32(0)))
