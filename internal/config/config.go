package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/char5742/wheel-ffb/internal/sim"
	"github.com/char5742/wheel-ffb/internal/wheel"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Device    DeviceConfig    `toml:"device"`
	Wheel     wheel.Settings  `toml:"wheel"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	API       APIConfig       `toml:"api"`
	Sim       SimConfig       `toml:"sim"`
}

// DeviceConfig はハンドルのデバイス設定
type DeviceConfig struct {
	// Path が空なら PreferredName、それも空なら最初のフォースフィードバック対応デバイスを使う
	Path          string `toml:"path"`
	PreferredName string `toml:"preferred_name"`
	Grab          bool   `toml:"grab"`
	// GraceWait は閉じる前にエフェクトの停止を待つ時間
	GraceWait time.Duration `toml:"grace_wait"`
	// Gain と AutoCentre は負の値なら設定しない
	Gain       int `toml:"gain"`
	AutoCentre int `toml:"auto_centre"`
}

// TelemetryConfig はイベントの送り先の設定
type TelemetryConfig struct {
	MQTTEnabled  bool   `toml:"mqtt_enabled"`
	MQTTBroker   string `toml:"mqtt_broker"`
	MQTTClientID string `toml:"mqtt_client_id"`
	MQTTPrefix   string `toml:"mqtt_prefix"`
	Metrics      bool   `toml:"metrics"`
}

// APIConfig はHTTP APIの設定
type APIConfig struct {
	Port int `toml:"port"`
}

// SimConfig はシミュレータの設定
type SimConfig struct {
	Enabled bool       `toml:"enabled"`
	Wheel   sim.Config `toml:"wheel"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Grab:       true,
			GraceWait:  100 * time.Millisecond,
			Gain:       100,
			AutoCentre: 0,
		},
		Wheel: wheel.DefaultSettings(),
		Telemetry: TelemetryConfig{
			MQTTBroker:   "tcp://localhost:1883",
			MQTTClientID: "wheel-ffb",
			MQTTPrefix:   "wheel-ffb",
			Metrics:      true,
		},
		API: APIConfig{
			Port: 8080,
		},
		Sim: SimConfig{
			Wheel: sim.DefaultConfig(),
		},
	}
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wheel-ffb")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "wheel-ffb")
}

// GetDefaultConfigPath はデフォルトの設定ファイルのパスを返す
func GetDefaultConfigPath() string {
	return filepath.Join(GetDefaultConfigDir(), "config.toml")
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, err
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
