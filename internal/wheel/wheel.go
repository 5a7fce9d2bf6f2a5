package wheel

import (
	"math"
	"math/rand"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// Clock は制御ループが使う時計。テストでは仮想時計に差し替える
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock は実時間の時計を返す
func SystemClock() Clock {
	return systemClock{}
}

// Settings はハンドル制御の調整値
type Settings struct {
	// Degrees はロックからロックまでの角度
	Degrees int `toml:"degrees"`
	// GeneralTimeout は静止待ちなどの汎用タイムアウト
	GeneralTimeout time.Duration `toml:"general_timeout"`
	// PollInterval は位置を読み直す間隔
	PollInterval time.Duration `toml:"poll_interval"`

	Lock       LockSettings       `toml:"lock"`
	Jitter     JitterSettings     `toml:"jitter"`
	Stationary StationarySettings `toml:"stationary"`
	Seek       SeekSettings       `toml:"seek"`
	Centre     CentreSettings     `toml:"centre"`
	Profile    ProfileSettings    `toml:"profile"`
	Range      RangeSettings      `toml:"range"`
	SelfTest   SelfTestSettings   `toml:"self_test"`
}

type LockSettings struct {
	SafeLevel   int `toml:"safe_level"`
	StrongLevel int `toml:"strong_level"`
	// Settle はロックまで回り切るのを待つ時間
	Settle time.Duration `toml:"settle"`
	// Window はロック位置を採取する時間
	Window time.Duration `toml:"window"`
	// CentreTrim は計算した中心へ加える補正
	CentreTrim int `toml:"centre_trim"`
}

type JitterSettings struct {
	Angles     int           `toml:"angles"`
	AngleLimit int           `toml:"angle_limit"`
	Samples    int           `toml:"samples"`
	Interval   time.Duration `toml:"interval"`
	// Seed が 0 なら時刻から決める
	Seed int64 `toml:"seed"`
}

type StationarySettings struct {
	Samples  int           `toml:"samples"`
	Interval time.Duration `toml:"interval"`
	Margin   int           `toml:"margin"`
}

// 力の強さはすべて 0..65535。evdev では ff_constant の 0..32767 に写される
type SeekSettings struct {
	SlowLevel    int `toml:"slow_level"`
	DefaultLevel int `toml:"default_level"`
	FastLevel    int `toml:"fast_level"`
	FullLevel    int `toml:"full_level"`
	// 到着手前でダンパーを掛け始める角度幅
	SlowBand    int `toml:"slow_band"`
	DefaultBand int `toml:"default_band"`
	FastBand    int `toml:"fast_band"`

	Timeout time.Duration `toml:"timeout"`
	Settle  time.Duration `toml:"settle"`
}

type CentreSettings struct {
	Level     int           `toml:"level"`
	NearLevel int           `toml:"near_level"`
	Pulse     time.Duration `toml:"pulse"`
	Tolerance int           `toml:"tolerance"`
	Far       int           `toml:"far"`
	NearPause time.Duration `toml:"near_pause"`
	Timeout   time.Duration `toml:"timeout"`
}

type ProfileSettings struct {
	BuildUp time.Duration `toml:"build_up"`
	Samples int           `toml:"samples"`
	Window  time.Duration `toml:"window"`
	// BrakeThreshold を超えた段階では停止後に逆向きの力でブレーキを掛ける
	BrakeThreshold haptic.Level  `toml:"brake_threshold"`
	BrakeStep      time.Duration `toml:"brake_step"`
	// RecentreMargin よりロックに近づいたら次の段階の前に中心へ戻す
	RecentreMargin int `toml:"recentre_margin"`
}

type RangeSettings struct {
	Level         int           `toml:"level"`
	Move          time.Duration `toml:"move"`
	OffsetLevel   int           `toml:"offset_level"`
	OffsetStep    time.Duration `toml:"offset_step"`
	EndStopMargin int           `toml:"end_stop_margin"`
	MaxRetries    int           `toml:"max_retries"`
}

// SelfTestSettings は各エフェクトを順に鳴らす自己診断の設定
type SelfTestSettings struct {
	// Play は1つのエフェクトを再生する時間
	Play      time.Duration `toml:"play"`
	Level     int           `toml:"level"`
	Period    int           `toml:"period"`
	Magnitude int           `toml:"magnitude"`
	// Rumble は振動の強さ（パーセント）
	Rumble     int           `toml:"rumble"`
	RumblePlay time.Duration `toml:"rumble_play"`
}

// DefaultSettings は 900 度のハンドル向けの既定値を返す
func DefaultSettings() Settings {
	return Settings{
		Degrees:        900,
		GeneralTimeout: 5 * time.Second,
		PollInterval:   time.Millisecond,
		Lock: LockSettings{
			SafeLevel:   16000,
			StrongLevel: 32000,
			Settle:      4 * time.Second,
			Window:      200 * time.Millisecond,
		},
		Jitter: JitterSettings{
			Angles:     5,
			AngleLimit: 90,
			Samples:    50,
			Interval:   2 * time.Millisecond,
		},
		Stationary: StationarySettings{
			Samples:  10,
			Interval: 8 * time.Millisecond,
			Margin:   20,
		},
		Seek: SeekSettings{
			SlowLevel:    12000,
			DefaultLevel: 20000,
			FastLevel:    40000,
			FullLevel:    math.MaxUint16,
			SlowBand:     5,
			DefaultBand:  10,
			FastBand:     15,
			Timeout:      10 * time.Second,
			Settle:       50 * time.Millisecond,
		},
		Centre: CentreSettings{
			Level:     20000,
			NearLevel: 6000,
			Pulse:     10 * time.Millisecond,
			Tolerance: 20,
			Far:       500,
			NearPause: 100 * time.Millisecond,
			Timeout:   15 * time.Second,
		},
		Profile: ProfileSettings{
			BuildUp:        20 * time.Millisecond,
			Samples:        20,
			Window:         10 * time.Millisecond,
			BrakeThreshold: 8,
			BrakeStep:      time.Millisecond,
			RecentreMargin: 16000,
		},
		Range: RangeSettings{
			Level:         24000,
			Move:          time.Second,
			OffsetLevel:   24000,
			OffsetStep:    50 * time.Millisecond,
			EndStopMargin: 2000,
			MaxRetries:    10,
		},
		SelfTest: SelfTestSettings{
			Play:       5 * time.Second,
			Level:      20000,
			Period:     100,
			Magnitude:  32000,
			Rumble:     50,
			RumblePlay: 2 * time.Second,
		},
	}
}

// Wheel は1台のハンドルの校正状態と制御を持つ
// 呼び出し側の goroutine で同期的に動作し、並行呼び出しには対応しない
type Wheel struct {
	session  *haptic.Session
	clock    Clock
	settings Settings
	pub      telemetry.Publisher
	rng      *rand.Rand

	cal      Calibration
	profile  ProfileTable
	readings []Reading
	offset   time.Duration
}

// Option は Wheel の生成オプション
type Option func(*Wheel)

// WithPublisher はイベントの送り先を設定する
func WithPublisher(p telemetry.Publisher) Option {
	return func(w *Wheel) {
		if p != nil {
			w.pub = p
		}
	}
}

// WithClock は時計を差し替える
func WithClock(c Clock) Option {
	return func(w *Wheel) {
		if c != nil {
			w.clock = c
		}
	}
}

// New はセッションの上にハンドル制御を作成する
func New(session *haptic.Session, settings Settings, opts ...Option) *Wheel {
	w := &Wheel{
		session:  session,
		clock:    SystemClock(),
		settings: settings,
		pub:      telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(w)
	}
	seed := settings.Jitter.Seed
	if seed == 0 {
		seed = w.clock.Now().UnixNano()
	}
	w.rng = rand.New(rand.NewSource(seed))
	return w
}

// Session は下位のデバイスセッションを返す
func (w *Wheel) Session() *haptic.Session {
	return w.session
}

// Settings は調整値を返す
func (w *Wheel) Settings() Settings {
	return w.settings
}

// Calibration は現在の校正状態を返す
func (w *Wheel) Calibration() Calibration {
	return w.cal
}

// SetCalibration は既知の校正値を設定する
func (w *Wheel) SetCalibration(c Calibration) {
	w.cal = c
}

func (w *Wheel) LeftLock() int       { return w.cal.LeftLock }
func (w *Wheel) RightLock() int      { return w.cal.RightLock }
func (w *Wheel) CentrePosition() int { return w.cal.Centre }
func (w *Wheel) Jitter() uint        { return w.cal.Jitter }

// Calibrated は校正がすべて完了しているかどうかを返す
func (w *Wheel) Calibrated() bool {
	return w.cal.State == Calibrated
}

func (w *Wheel) publish(ev telemetry.Event) {
	ev.At = w.clock.Now()
	w.pub.Publish(ev)
}

// ConvertLevelToForce は段階を現在のゲインでの出力に変換する
func (w *Wheel) ConvertLevelToForce(l haptic.Level) int {
	return w.session.ConvertLevelToForce(l)
}

// ConvertForceToLevel は出力に最も近い段階を返す
func (w *Wheel) ConvertForceToLevel(force int) haptic.Level {
	return w.session.ConvertForceToLevel(force)
}

// Close はセッションを閉じてすべてのエフェクトを解放する
func (w *Wheel) Close() error {
	return w.session.Close()
}
