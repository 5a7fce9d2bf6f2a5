package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
)

// step は物理演算の刻み幅
const step = time.Millisecond

// maxCatchUp より長く読み込みが無かった場合は、その分の積分を省略する
const maxCatchUp = 10 * time.Second

// restSpeed 未満の速度は静止とみなす（単位/秒）
const restSpeed = 5.0

var ErrClosed = errors.New("sim: device closed")

// Config はシミュレートするハンドルの物理特性
// 力の単位はすべて「位置単位/秒^2」の加速度で表す
type Config struct {
	Capabilities []string `toml:"capabilities"`
	// Lock は左右のロック位置の絶対値
	Lock int `toml:"lock"`
	// Start は初期位置
	Start int `toml:"start"`
	// MaxAccel はゲイン100%・強度65535のときの加速度
	MaxAccel float64 `toml:"max_accel"`
	// Viscous は粘性抵抗の係数（1/秒）、Drag は速度の2乗に比例する抵抗の係数
	Viscous float64 `toml:"viscous"`
	Drag    float64 `toml:"drag"`
	// Friction は動摩擦、Stiction は静止摩擦
	Friction float64 `toml:"friction"`
	Stiction float64 `toml:"stiction"`
	// DamperRate は最大係数のダンパーが加える粘性係数（1/秒）
	DamperRate float64 `toml:"damper_rate"`
	// SpringRate は最大係数のバネ定数（1/秒^2）
	SpringRate float64 `toml:"spring_rate"`
	// FrictionEffect は最大係数の摩擦エフェクトの強さ
	FrictionEffect float64 `toml:"friction_effect"`
	// InertiaRate は最大係数の慣性エフェクトで増える見かけの質量の割合
	InertiaRate float64 `toml:"inertia_rate"`
	// Noise は位置の読み取り値に加わる一様ノイズの幅（±）
	Noise      int   `toml:"noise"`
	Seed       int64 `toml:"seed"`
	MaxEffects int   `toml:"max_effects"`
	// MaxGain が 0 より大きければ最大ゲインとして報告する
	MaxGain int `toml:"max_gain"`
}

// DefaultConfig はおおよそ 900 度のベルト駆動ハンドルに近い特性を返す
func DefaultConfig() Config {
	return Config{
		Capabilities: []string{
			"constant", "sine", "triangle", "sawtooth-up", "sawtooth-down", "ramp",
			"spring", "damper", "inertia", "friction", "rumble", "gain", "autocentre",
		},
		Lock:           30000,
		MaxAccel:       1.5e6,
		Viscous:        8,
		Drag:           4e-4,
		Friction:       40000,
		Stiction:       45000,
		DamperRate:     120,
		SpringRate:     40,
		FrictionEffect: 30000,
		InertiaRate:    2,
		Noise:          3,
		Seed:           1,
		MaxEffects:     16,
	}
}

// NowFunc は現在時刻を返す時計
type NowFunc interface {
	Now() time.Time
}

type effectState struct {
	eff        haptic.Effect
	running    bool
	start      time.Time
	iterations int
}

// window は再生開始から終了までの時間帯を返す。無期限なら end はゼロ値
func (e *effectState) window() (begin, end time.Time) {
	begin = e.start.Add(time.Duration(e.eff.Delay) * time.Millisecond)
	if e.eff.Infinite() {
		return begin, time.Time{}
	}
	length := time.Duration(e.eff.Length) * time.Millisecond * time.Duration(e.iterations)
	return begin, begin.Add(length)
}

func (e *effectState) playing(t time.Time) bool {
	if !e.running {
		return false
	}
	_, end := e.window()
	return end.IsZero() || t.Before(end)
}

func (e *effectState) active(t time.Time) bool {
	begin, _ := e.window()
	return e.playing(t) && !t.Before(begin)
}

// Stats は Wheel に対して発行された操作の回数
type Stats struct {
	Uploads  int
	Runs     int
	Stops    int
	Destroys int
}

// Wheel は haptic.Device を実装するシミュレーション上のハンドル
// Refresh のたびに前回からの経過時間を 1ms 刻みで積分する
type Wheel struct {
	cfg   Config
	caps  haptic.Capabilities
	clock NowFunc
	rng   *rand.Rand

	pos, vel   float64
	last       time.Time
	axis       int
	gain       int
	autoCentre int

	effects map[haptic.Handle]*effectState
	next    haptic.Handle
	stats   Stats
	closed  bool

	// FailUpload / FailRun / FailStop が設定されていると該当する操作がそのエラーで失敗する
	FailUpload error
	FailRun    error
	FailStop   error
}

// NewWheel はシミュレーションのハンドルを作成する
func NewWheel(cfg Config, clock NowFunc) (*Wheel, error) {
	caps, err := haptic.ParseCapabilities(cfg.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("シミュレータの能力設定: %w", err)
	}
	if cfg.Lock <= 0 || cfg.Lock > math.MaxInt16 {
		return nil, fmt.Errorf("シミュレータのロック位置 %d は 1..%d の範囲外です", cfg.Lock, math.MaxInt16)
	}
	if cfg.MaxEffects <= 0 {
		cfg.MaxEffects = 16
	}
	w := &Wheel{
		cfg:     cfg,
		caps:    caps,
		clock:   clock,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		pos:     float64(cfg.Start),
		last:    clock.Now(),
		gain:    100,
		effects: make(map[haptic.Handle]*effectState),
	}
	w.pos = w.clamp(w.pos)
	w.axis = int(math.Round(w.pos))
	return w, nil
}

func (w *Wheel) Capabilities() haptic.Capabilities {
	return w.caps
}

// Capacity は同時に置けるエフェクト数
func (w *Wheel) Capacity() int {
	return w.cfg.MaxEffects
}

func (w *Wheel) Upload(slot haptic.Slot, eff haptic.Effect) (haptic.Handle, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.FailUpload != nil {
		return 0, w.FailUpload
	}
	if !w.caps.Has(eff.Kind.Capability()) || eff.Kind == haptic.KindInvalid {
		return 0, fmt.Errorf("sim: %s effect not supported", eff.Kind)
	}
	if len(w.effects) >= w.cfg.MaxEffects {
		return 0, fmt.Errorf("sim: effect memory full (%d)", w.cfg.MaxEffects)
	}
	w.advance()
	h := w.next
	w.next++
	w.effects[h] = &effectState{eff: eff}
	w.stats.Uploads++
	return h, nil
}

func (w *Wheel) Run(h haptic.Handle, iterations int) error {
	e, err := w.lookup(h)
	if err != nil {
		return err
	}
	if w.FailRun != nil {
		return w.FailRun
	}
	w.advance()
	e.running = true
	e.start = w.clock.Now()
	e.iterations = iterations
	w.stats.Runs++
	return nil
}

func (w *Wheel) Stop(h haptic.Handle) error {
	e, err := w.lookup(h)
	if err != nil {
		return err
	}
	if w.FailStop != nil {
		return w.FailStop
	}
	w.advance()
	e.running = false
	w.stats.Stops++
	return nil
}

func (w *Wheel) Destroy(h haptic.Handle) {
	if _, ok := w.effects[h]; !ok {
		return
	}
	w.advance()
	delete(w.effects, h)
	w.stats.Destroys++
}

func (w *Wheel) IsRunning(h haptic.Handle) bool {
	e, ok := w.effects[h]
	return ok && e.playing(w.clock.Now())
}

func (w *Wheel) SetGain(percent int) error {
	if w.closed {
		return ErrClosed
	}
	w.advance()
	w.gain = percent
	return nil
}

func (w *Wheel) MaxGain() (int, bool) {
	return w.cfg.MaxGain, w.cfg.MaxGain > 0
}

func (w *Wheel) SetAutoCentre(percent int) error {
	if w.closed {
		return ErrClosed
	}
	w.advance()
	w.autoCentre = percent
	return nil
}

func (w *Wheel) Refresh() error {
	if w.closed {
		return ErrClosed
	}
	w.advance()
	noise := 0
	if w.cfg.Noise > 0 {
		noise = w.rng.Intn(2*w.cfg.Noise+1) - w.cfg.Noise
	}
	v := int(math.Round(w.pos)) + noise
	w.axis = max(math.MinInt16, min(math.MaxInt16, v))
	return nil
}

func (w *Wheel) Axis() int {
	return w.axis
}

func (w *Wheel) NumPlaying() int {
	now := w.clock.Now()
	n := 0
	for _, e := range w.effects {
		if e.playing(now) {
			n++
		}
	}
	return n
}

func (w *Wheel) Close() error {
	w.closed = true
	w.effects = make(map[haptic.Handle]*effectState)
	return nil
}

// Stats は発行された操作の回数を返す
func (w *Wheel) Stats() Stats {
	return w.stats
}

// Resident はアップロード済みのエフェクト数を返す
func (w *Wheel) Resident() int {
	return len(w.effects)
}

// Position はノイズを含まない真の位置を返す
func (w *Wheel) Position() float64 {
	return w.pos
}

// SetPosition はハンドルを静止状態で指定位置に置く
func (w *Wheel) SetPosition(pos int) {
	w.advance()
	w.pos = w.clamp(float64(pos))
	w.vel = 0
	w.axis = int(math.Round(w.pos))
}

func (w *Wheel) lookup(h haptic.Handle) (*effectState, error) {
	if w.closed {
		return nil, ErrClosed
	}
	e, ok := w.effects[h]
	if !ok {
		return nil, fmt.Errorf("sim: unknown effect %d", h)
	}
	return e, nil
}

// advance は前回の積分時刻から現在時刻まで状態を進める
func (w *Wheel) advance() {
	now := w.clock.Now()
	if now.Sub(w.last) > maxCatchUp {
		w.last = now.Add(-maxCatchUp)
	}
	for now.Sub(w.last) >= step {
		w.last = w.last.Add(step)
		w.integrate(w.last, step.Seconds())
	}
}

func (w *Wheel) integrate(t time.Time, dt float64) {
	drive, damping, mass := w.forces(t)
	drive -= float64(w.autoCentre) / 100 * w.cfg.SpringRate * w.pos

	if math.Abs(w.vel) < restSpeed {
		if math.Abs(drive) <= w.cfg.Stiction {
			w.vel = 0
			return
		}
	}

	dirSign := sign(w.vel)
	if dirSign == 0 {
		dirSign = sign(drive)
	}
	resist := dirSign*w.cfg.Friction + damping*w.vel + w.cfg.Drag*w.vel*math.Abs(w.vel)
	a := (drive - resist) / mass
	nv := w.vel + a*dt
	if w.vel != 0 && sign(nv) != sign(w.vel) {
		nv = 0
	}
	w.vel = nv
	w.pos += w.vel * dt

	if p := w.clamp(w.pos); p != w.pos {
		w.pos = p
		w.vel = 0
	}
}

// forces は時刻 t に再生中のエフェクトから駆動力・粘性・見かけの質量を求める
func (w *Wheel) forces(t time.Time) (drive, damping, mass float64) {
	gain := float64(w.gain) / 100
	damping = w.cfg.Viscous
	mass = 1
	for _, e := range w.effects {
		if !e.active(t) {
			continue
		}
		begin, end := e.window()
		elapsed := t.Sub(begin)
		eff := e.eff
		switch {
		case eff.Kind == haptic.KindConstant:
			drive += gain * float64(eff.Direction.Sign()) * float64(eff.Level) / math.MaxUint16 * w.cfg.MaxAccel
		case eff.Kind == haptic.KindRamp:
			frac := 0.0
			if !end.IsZero() && eff.Length > 0 {
				perIter := time.Duration(eff.Length) * time.Millisecond
				frac = float64(elapsed%perIter) / float64(perIter)
			}
			v := float64(eff.Ramp.Start) + (float64(eff.Ramp.End)-float64(eff.Ramp.Start))*frac
			drive += gain * float64(eff.Direction.Sign()) * v / math.MaxInt16 * w.cfg.MaxAccel
		case eff.Kind.IsPeriodic():
			drive += gain * periodic(eff.Kind, eff.Periodic, elapsed) / math.MaxInt16 * w.cfg.MaxAccel
		case eff.Kind == haptic.KindSpring:
			c := eff.Condition
			d := w.pos - float64(c.Centre)
			if math.Abs(d) <= float64(c.Deadband) {
				continue
			}
			coeff, sat := float64(c.RightCoeff), float64(c.RightSat)
			if d < 0 {
				coeff, sat = float64(c.LeftCoeff), float64(c.LeftSat)
			}
			f := coeff / math.MaxInt16 * w.cfg.SpringRate * d
			limit := sat / math.MaxUint16 * w.cfg.MaxAccel
			drive -= gain * math.Max(-limit, math.Min(limit, f))
		case eff.Kind == haptic.KindDamper:
			damping += gain * conditionCoeff(eff.Condition, w.vel) * w.cfg.DamperRate
		case eff.Kind == haptic.KindFriction:
			drive -= gain * sign(w.vel) * conditionCoeff(eff.Condition, w.vel) * w.cfg.FrictionEffect
		case eff.Kind == haptic.KindInertia:
			mass += gain * conditionCoeff(eff.Condition, w.vel) * w.cfg.InertiaRate
		}
	}
	return drive, damping, mass
}

func (w *Wheel) clamp(p float64) float64 {
	l := float64(w.cfg.Lock)
	return math.Max(-l, math.Min(l, p))
}

// conditionCoeff は運動方向に応じた係数を 0..1 に正規化して返す
func conditionCoeff(c haptic.Condition, vel float64) float64 {
	coeff := c.RightCoeff
	if vel < 0 {
		coeff = c.LeftCoeff
	}
	return math.Abs(float64(coeff)) / math.MaxInt16
}

// periodic は周期エフェクトの出力を -32767..32767 で返す
func periodic(kind haptic.Kind, p haptic.Periodic, elapsed time.Duration) float64 {
	if p.Period == 0 {
		return float64(p.Offset)
	}
	x := float64(elapsed.Milliseconds())/float64(p.Period) + float64(p.Phase)/36000
	x -= math.Floor(x)
	var wave float64
	switch kind {
	case haptic.KindSine:
		wave = math.Sin(2 * math.Pi * x)
	case haptic.KindTriangle:
		wave = 1 - 4*math.Abs(x-0.5)
	case haptic.KindSawUp:
		wave = 2*x - 1
	case haptic.KindSawDown:
		wave = 1 - 2*x
	}
	return float64(p.Offset) + float64(p.Magnitude)*wave
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
