package haptic

import (
	"os"
	"strconv"
)

// Handle はデバイスにアップロード済みのエフェクトの識別子
type Handle int

// Device はエフェクトの実行基盤。1つのハプティックデバイスを表す
type Device interface {
	// Capabilities は対応するエフェクトの能力ビットを返す
	Capabilities() Capabilities
	// Upload はエフェクトをアップロードして識別子を返す
	Upload(slot Slot, eff Effect) (Handle, error)
	// Run はエフェクトを iterations 回再生する
	Run(h Handle, iterations int) error
	Stop(h Handle) error
	Destroy(h Handle)
	IsRunning(h Handle) bool
	// SetGain はデバイス全体のゲインを設定する（パーセント）
	SetGain(percent int) error
	// MaxGain は環境で指定された最大ゲインを返す。未設定なら false
	MaxGain() (int, bool)
	// Refresh はデバイスの状態を読み直す
	Refresh() error
	// Axis は最後に読み込んだハンドル軸の生の値を返す
	Axis() int
	// NumPlaying は再生中のエフェクト数を返す
	NumPlaying() int
	Close() error
}

// AutoCentrer はオートセンター機能を持つデバイス
type AutoCentrer interface {
	SetAutoCentre(percent int) error
}

// MaxGainEnv は SDL_HAPTIC_GAIN_MAX 環境変数から最大ゲインを読む
func MaxGainEnv() (int, bool) {
	v, ok := os.LookupEnv("SDL_HAPTIC_GAIN_MAX")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
