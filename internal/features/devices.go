package features

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"

	"github.com/char5742/wheel-ffb/internal/consts"
	"github.com/char5742/wheel-ffb/internal/event"
	"github.com/char5742/wheel-ffb/internal/utils"
)

const byIDDir = "/dev/input/by-id"

// ErrNoWheel はフォースフィードバック付きのハンドルが見つからない
var ErrNoWheel = errors.New("no force feedback wheel found")

// Device は /dev/input/by-id から見つけたジョイスティック
type Device struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ByID          string `json:"by_id"`
	ForceFeedback bool   `json:"force_feedback"`
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
	default:
		return "changed"
	}
}

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// ScanDevices は現在接続されているジョイスティックを直接検出する
// デバイスモニターのキャッシュは使わない
func ScanDevices() ([]Device, error) {
	return scanDir(byIDDir, HasForceFeedback)
}

// scanDir は dir 内の *-event-joystick を列挙する。hasFF でフォースフィードバックの有無を調べる
func scanDir(dir string, hasFF func(path string) bool) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), "-event-joystick") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		absPath := fullPath
		if realPath, err := os.Readlink(fullPath); err == nil {
			if filepath.IsAbs(realPath) {
				absPath = realPath
			} else {
				absPath = filepath.Clean(filepath.Join(dir, realPath))
			}
		}
		devices = append(devices, Device{
			Name:          deviceName(entry.Name()),
			Path:          absPath,
			ByID:          fullPath,
			ForceFeedback: hasFF != nil && hasFF(absPath),
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// deviceName は by-id のファイル名からバス名と末尾を取り除く
func deviceName(entry string) string {
	name := strings.TrimSuffix(entry, "-event-joystick")
	for _, bus := range []string{"usb-", "bluetooth-", "virtual-"} {
		name = strings.TrimPrefix(name, bus)
	}
	return name
}

// HasForceFeedback はデバイスが EV_FF を報告するかどうかを返す
func HasForceFeedback(path string) bool {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return false
	}
	defer f.Close()
	bits := make([]byte, consts.EvCnt/8)
	if err := utils.IOCtlPtr(f, consts.EVIOCGBIT(0, len(bits)), unsafe.Pointer(&bits[0])); err != nil {
		return false
	}
	return utils.TestBit(bits, event.FF)
}

// FindWheel は pref に一致するデバイス、なければ最初のフォースフィードバック対応デバイスを返す
// pref には名前の一部かデバイスパスを指定できる
func FindWheel(pref string) (Device, error) {
	devices, err := ScanDevices()
	if err != nil {
		return Device{}, fmt.Errorf("デバイスの検出に失敗しました: %w", err)
	}
	return pickWheel(devices, pref)
}

func pickWheel(devices []Device, pref string) (Device, error) {
	if pref != "" {
		for _, d := range devices {
			if d.Path == pref || d.ByID == pref || strings.Contains(d.Name, pref) {
				return d, nil
			}
		}
		log.Printf("指定されたデバイス %q が見つかりません。自動で選択します", pref)
	}
	for _, d := range devices {
		if d.ForceFeedback {
			return d, nil
		}
	}
	return Device{}, ErrNoWheel
}

// DeviceMonitor はジョイスティックの接続状態を監視する構造体
type DeviceMonitor struct {
	watcher       *fsnotify.Watcher
	scan          func() ([]Device, error)
	callbacks     []DeviceCallback
	devices       map[string]Device // by-id のパスをキーにしたデバイスマップ
	mutex         sync.RWMutex
	stopChan      chan struct{}
	pollingTicker *time.Ticker
	isRunning     bool
}

// グローバルなDeviceMonitorインスタンス
var (
	globalDeviceMonitor *DeviceMonitor
	deviceMonitorMutex  sync.Mutex
)

// NewDeviceMonitor は新しいDeviceMonitorを作成する
func NewDeviceMonitor() (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DeviceMonitor{
		watcher:  watcher,
		scan:     ScanDevices,
		devices:  make(map[string]Device),
		stopChan: make(chan struct{}),
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	dm.mutex.Lock()
	if dm.isRunning {
		dm.mutex.Unlock()
		return nil
	}
	dm.isRunning = true
	dm.mutex.Unlock()

	log.Println("デバイスモニターを開始します")
	for _, dir := range []string{"/dev/input", byIDDir} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := dm.watcher.Add(dir); err != nil {
			log.Printf("ディレクトリの監視に失敗しました: %s - %v", dir, err)
		} else {
			log.Printf("ディレクトリ監視を開始: %s", dir)
		}
	}

	dm.Rescan()

	go dm.watchEvents()

	// fsnotify が取りこぼした変化はポーリングで拾う
	dm.pollingTicker = time.NewTicker(2 * time.Second)
	go dm.runPolling()
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
	dm.mutex.Unlock()

	log.Println("デバイスモニターを停止します")
	close(dm.stopChan)
	if dm.pollingTicker != nil {
		dm.pollingTicker.Stop()
	}
	dm.watcher.Close()
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

// Rescan はデバイス一覧を再スキャンして差分を通知する
func (dm *DeviceMonitor) Rescan() {
	devices, err := dm.scan()
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("デバイス再スキャンに失敗しました: %v", err)
		}
		devices = nil
	}
	dm.updateDeviceList(devices)
}

func (dm *DeviceMonitor) runPolling() {
	for {
		select {
		case <-dm.stopChan:
			return
		case <-dm.pollingTicker.C:
			dm.Rescan()
		}
	}
}

// updateDeviceList は現在のデバイス一覧を更新し、変更があれば通知する
func (dm *DeviceMonitor) updateDeviceList(newDevices []Device) {
	var events []DeviceEvent

	dm.mutex.Lock()
	seen := make(map[string]bool, len(newDevices))
	for _, device := range newDevices {
		seen[device.ByID] = true
		old, exists := dm.devices[device.ByID]
		switch {
		case !exists:
			log.Printf("新しいデバイスを追加: %s (%s)", device.Name, device.Path)
			events = append(events, DeviceEvent{Type: DeviceAdded, Device: device})
		case old != device:
			log.Printf("デバイス情報が変更: %s: %s → %s", device.Name, old.Path, device.Path)
			events = append(events, DeviceEvent{Type: DeviceChanged, Device: device})
		}
		dm.devices[device.ByID] = device
	}
	for id, device := range dm.devices {
		if !seen[id] {
			log.Printf("デバイスを削除: %s (%s)", device.Name, device.Path)
			events = append(events, DeviceEvent{Type: DeviceRemoved, Device: device})
			delete(dm.devices, id)
		}
	}
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.Unlock()

	for _, ev := range events {
		for _, cb := range callbacks {
			go cb(ev)
		}
	}
}

// watchEvents はfsnotifyのイベントを監視する
func (dm *DeviceMonitor) watchEvents() {
	// 一時的なファイルシステムイベントをまとめて処理する
	eventDebounceTime := 500 * time.Millisecond
	eventTimer := time.NewTimer(eventDebounceTime)
	eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-dm.stopChan:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.Rescan()
			}

		case ev, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 && !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(eventDebounceTime)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ファイルシステム監視エラー: %v", err)
		}
	}
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, device := range dm.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// GetDeviceMonitor はグローバルDeviceMonitorインスタンスを返す（必要に応じて作成）
func GetDeviceMonitor() (*DeviceMonitor, error) {
	deviceMonitorMutex.Lock()
	defer deviceMonitorMutex.Unlock()

	if globalDeviceMonitor != nil {
		return globalDeviceMonitor, nil
	}
	monitor, err := NewDeviceMonitor()
	if err != nil {
		return nil, fmt.Errorf("デバイスモニターの初期化に失敗しました: %w", err)
	}
	if err := monitor.Start(); err != nil {
		return nil, fmt.Errorf("デバイスモニターの起動に失敗しました: %w", err)
	}
	globalDeviceMonitor = monitor
	return monitor, nil
}

// GetDevices はモニターが動いていればそのキャッシュを、なければ直接スキャンした結果を返す
func GetDevices() ([]Device, error) {
	deviceMonitorMutex.Lock()
	monitor := globalDeviceMonitor
	deviceMonitorMutex.Unlock()

	if monitor != nil {
		return monitor.GetConnectedDevices(), nil
	}
	return ScanDevices()
}
