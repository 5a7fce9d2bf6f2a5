package api

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/char5742/wheel-ffb/internal/config"
	"github.com/char5742/wheel-ffb/internal/features"
	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/sim"
	"github.com/char5742/wheel-ffb/internal/telemetry"
	"github.com/char5742/wheel-ffb/internal/wheel"
)

// ErrNotRunning はサービスが起動していない
var ErrNotRunning = errors.New("サービスは実行されていません")

// opener はデバイスを開き、制御に使う時計とデバイスの説明を返す
type opener func(cfg *config.Config) (haptic.Device, wheel.Clock, string, error)

// WheelService はハンドルのセッションを管理し、ハンドルへの操作を1つずつ実行する
type WheelService struct {
	cfg  *config.Config
	pub  telemetry.Publisher
	open opener

	// opMutex は動作シーケンスを直列化する。同時に動くシーケンスは1つだけ
	opMutex     sync.Mutex
	statusMutex sync.RWMutex
	running     bool
	wheel       *wheel.Wheel
	device      string
	monitored   bool
}

// NewWheelService は新しいサービスを作成する
func NewWheelService(cfg *config.Config, pub telemetry.Publisher) *WheelService {
	if pub == nil {
		pub = telemetry.Nop{}
	}
	return &WheelService{
		cfg:  cfg,
		pub:  pub,
		open: openDevice,
	}
}

// openDevice は設定に従ってシミュレータか evdev のハンドルを開く
func openDevice(cfg *config.Config) (haptic.Device, wheel.Clock, string, error) {
	clock := wheel.SystemClock()
	if cfg.Sim.Enabled {
		dev, err := sim.NewWheel(cfg.Sim.Wheel, clock)
		if err != nil {
			return nil, nil, "", err
		}
		return dev, clock, "simulator", nil
	}

	path := cfg.Device.Path
	if path == "" {
		d, err := features.FindWheel(cfg.Device.PreferredName)
		if err != nil {
			return nil, nil, "", err
		}
		log.Printf("使用するハンドル: %s", d.Name)
		path = d.Path
	}
	dev, err := features.OpenWheel(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("ハンドルのオープンに失敗しました[path=%s]: %w", path, err)
	}
	if cfg.Device.Grab {
		if err := dev.Grab(); err != nil {
			log.Printf("ハンドルの専有に失敗しました: %v", err)
		}
	}
	return dev, clock, path, nil
}

// Start はデバイスを開いてセッションを開始する
func (s *WheelService) Start() error {
	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	if s.IsRunning() {
		return fmt.Errorf("サービスは既に実行中です")
	}
	cfg := s.Config()

	dev, clock, name, err := s.open(cfg)
	if err != nil {
		return err
	}
	session := haptic.Open(dev, cfg.Device.GraceWait)
	caps := session.Capabilities()
	log.Printf("デバイス %s の能力: %s", name, caps)

	if cfg.Device.Gain >= 0 && caps.Has(haptic.CapGain) {
		if err := session.SetGain(cfg.Device.Gain); err != nil {
			log.Printf("ゲインの設定に失敗しました: %v", err)
		}
	}
	if cfg.Device.AutoCentre >= 0 && caps.Has(haptic.CapAutoCentre) {
		if err := session.SetAutoCentre(cfg.Device.AutoCentre); err != nil {
			log.Printf("オートセンターの設定に失敗しました: %v", err)
		}
	}

	w := wheel.New(session, cfg.Wheel, wheel.WithClock(clock), wheel.WithPublisher(s.pub))

	s.statusMutex.Lock()
	s.wheel = w
	s.device = name
	s.running = true
	s.statusMutex.Unlock()

	if !cfg.Sim.Enabled {
		s.watchDevice(name)
	}
	log.Println("ハンドル制御サービスを開始しました")
	return nil
}

// watchDevice は使用中のハンドルが外されたらサービスを止める
func (s *WheelService) watchDevice(path string) {
	if s.monitored {
		return
	}
	monitor, err := features.GetDeviceMonitor()
	if err != nil {
		log.Printf("デバイスモニターを利用できません: %v", err)
		return
	}
	s.monitored = true
	monitor.RegisterCallback(func(ev features.DeviceEvent) {
		if ev.Type != features.DeviceRemoved {
			return
		}
		s.statusMutex.RLock()
		current := s.device
		s.statusMutex.RUnlock()
		if ev.Device.Path == current {
			log.Printf("使用中のハンドルが切断されました: %s", ev.Device.Name)
			if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
				log.Printf("サービスの停止に失敗しました: %v", err)
			}
		}
	})
}

// Stop はすべてのエフェクトを止めてセッションを閉じる
// 実行中の動作シーケンスがあれば終わるまで待つ
func (s *WheelService) Stop() error {
	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return ErrNotRunning
	}
	w := s.wheel
	s.wheel = nil
	s.running = false
	s.statusMutex.Unlock()

	err := w.Close()
	log.Println("ハンドル制御サービスを停止しました")
	return err
}

// IsRunning はサービスが実行中かどうかを返す
func (s *WheelService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Device は使用中のデバイスの説明を返す
func (s *WheelService) Device() string {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.device
}

// Config は次回の起動で使う設定を返す
func (s *WheelService) Config() *config.Config {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.cfg
}

// UpdateConfig は設定を更新する。実行中のセッションには次回の起動から反映される
func (s *WheelService) UpdateConfig(cfg *config.Config) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()
	s.cfg = cfg
}

// Do は排他的にハンドルを操作する
func (s *WheelService) Do(fn func(w *wheel.Wheel) error) error {
	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	s.statusMutex.RLock()
	w := s.wheel
	s.statusMutex.RUnlock()
	if w == nil {
		return ErrNotRunning
	}
	return fn(w)
}
