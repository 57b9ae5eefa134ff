package features

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ByIDDir はデバイスを名前で引けるディレクトリ
const ByIDDir = "/dev/input/by-id"

// ErrNoTouchscreen はタッチパネルが見つからないときのエラー
var ErrNoTouchscreen = errors.New("no touchscreen found")

type Device struct {
	Name string
	Path string
	Type DeviceType
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
	DeviceTypeTouchscreen
	DeviceTypeJoystick
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeKeyboard:
		return "keyboard"
	case DeviceTypeMouse:
		return "mouse"
	case DeviceTypeTouchscreen:
		return "touchscreen"
	case DeviceTypeJoystick:
		return "joystick"
	}
	return "unknown"
}

// classify は by-id のエントリ名からデバイスタイプを判定する
func classify(name string) (DeviceType, bool) {
	low := strings.ToLower(name)
	switch {
	case strings.Contains(low, "touch"):
		return DeviceTypeTouchscreen, true
	case strings.Contains(low, "kbd"):
		return DeviceTypeKeyboard, true
	case strings.Contains(low, "mouse"):
		return DeviceTypeMouse, true
	case strings.Contains(low, "joystick"):
		return DeviceTypeJoystick, true
	}
	return 0, false
}

// ScanDevices は /dev/input/by-id から現在接続されているデバイスを返す
func ScanDevices() ([]Device, error) {
	return ScanDevicesIn(ByIDDir)
}

// ScanDevicesIn は dir のシンボリックリンクからデバイスを検出する
func ScanDevicesIn(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		typ, ok := classify(entry.Name())
		if !ok {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 絶対パスを構築
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}
		devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: typ})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// FindTouchscreen はタッチパネルのデバイスパスを探す
//
// by-id に見つからなければ /dev/input/event* のデバイス名から探す。
func FindTouchscreen() (string, error) {
	if devices, err := ScanDevices(); err == nil {
		for _, d := range devices {
			if d.Type == DeviceTypeTouchscreen {
				return d.Path, nil
			}
		}
	}

	cands, _ := filepath.Glob("/dev/input/event*")
	for _, p := range cands {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		name, err := deviceName(f.Fd())
		f.Close()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(name), "touch") {
			return p, nil
		}
	}
	return "", ErrNoTouchscreen
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	DeviceChanged
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case DeviceChanged:
		return "changed"
	}
	return "unknown"
}

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// eventDebounceTime は連続したファイルシステムイベントをまとめる時間
const eventDebounceTime = 500 * time.Millisecond

// DeviceMonitor はデバイスの接続状態を監視する構造体
type DeviceMonitor struct {
	dir       string
	watcher   *fsnotify.Watcher
	log       *slog.Logger
	mutex     sync.RWMutex
	callbacks []DeviceCallback
	devices   map[string]Device // 名前をキーにしたデバイスマップ
	stopChan  chan struct{}
	done      chan struct{}
	isRunning bool
}

// NewDeviceMonitor は dir を監視する新しい DeviceMonitor を作成する
func NewDeviceMonitor(dir string, logger *slog.Logger) (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeviceMonitor{
		dir:     dir,
		watcher: watcher,
		log:     logger,
		devices: make(map[string]Device),
	}, nil
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.isRunning {
		return fmt.Errorf("device monitor is already running")
	}
	if err := dm.watcher.Add(dm.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dm.dir, err)
	}

	// 初期デバイス一覧は通知しない
	if devices, err := ScanDevicesIn(dm.dir); err == nil {
		for _, d := range devices {
			dm.devices[d.Name] = d
		}
		dm.log.Info("デバイスモニターを開始します", "dir", dm.dir, "devices", len(devices))
	} else {
		dm.log.Warn("初期デバイス一覧の取得に失敗しました", "error", err)
	}

	dm.stopChan = make(chan struct{})
	dm.done = make(chan struct{})
	dm.isRunning = true
	go dm.watchEvents()
	return nil
}

// Stop はデバイスの監視を停止する
func (dm *DeviceMonitor) Stop() {
	dm.mutex.Lock()
	if !dm.isRunning {
		dm.mutex.Unlock()
		return
	}
	dm.isRunning = false
	close(dm.stopChan)
	dm.mutex.Unlock()

	<-dm.done
	dm.watcher.Close()
	dm.log.Info("デバイスモニターを停止しました")
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, d := range dm.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// watchEvents はfsnotifyのイベントを監視する
func (dm *DeviceMonitor) watchEvents() {
	defer close(dm.done)

	// 一時的なファイルシステムイベントを収集してバッチ処理する
	eventTimer := time.NewTimer(eventDebounceTime)
	eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-dm.stopChan:
			eventTimer.Stop()
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.rescan()
			}

		case ev, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dm.log.Debug("ファイルシステムイベント", "op", ev.Op.String(), "name", ev.Name)
			if !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(eventDebounceTime)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			dm.log.Warn("ファイルシステム監視エラー", "error", err)
		}
	}
}

// rescan はデバイス一覧を再取得し、差分をコールバックへ通知する
func (dm *DeviceMonitor) rescan() {
	devices, err := ScanDevicesIn(dm.dir)
	if err != nil {
		dm.log.Warn("デバイス再スキャンに失敗しました", "error", err)
		return
	}

	var events []DeviceEvent
	dm.mutex.Lock()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d.Name] = true
		old, exists := dm.devices[d.Name]
		switch {
		case !exists:
			events = append(events, DeviceEvent{Type: DeviceAdded, Device: d})
		case old.Path != d.Path:
			events = append(events, DeviceEvent{Type: DeviceChanged, Device: d})
		default:
			continue
		}
		dm.devices[d.Name] = d
	}
	for name, d := range dm.devices {
		if !seen[name] {
			events = append(events, DeviceEvent{Type: DeviceRemoved, Device: d})
			delete(dm.devices, name)
		}
	}
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.Unlock()

	// コールバックはロックを解放した状態で呼び出す
	for _, ev := range events {
		dm.log.Info("デバイスが変化しました", "type", ev.Type, "name", ev.Device.Name, "path", ev.Device.Path)
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}
