package haptic

import "math"

// Infinity は「止めるまで続ける」長さを表す番兵値（ミリ秒）
const Infinity int64 = math.MaxUint32

// Kind はエフェクトの種別
type Kind int

const (
	KindInvalid Kind = iota
	KindConstant
	KindSine
	KindTriangle
	KindSawUp
	KindSawDown
	KindSpring
	KindDamper
	KindInertia
	KindFriction
	KindRamp
	KindRumble
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindSine:
		return "sine"
	case KindTriangle:
		return "triangle"
	case KindSawUp:
		return "sawtooth-up"
	case KindSawDown:
		return "sawtooth-down"
	case KindSpring:
		return "spring"
	case KindDamper:
		return "damper"
	case KindInertia:
		return "inertia"
	case KindFriction:
		return "friction"
	case KindRamp:
		return "ramp"
	case KindRumble:
		return "rumble"
	default:
		return "invalid"
	}
}

// Capability は種別を作成するのに必要な能力ビットを返す
func (k Kind) Capability() Capabilities {
	switch k {
	case KindConstant:
		return CapConstant
	case KindSine:
		return CapSine
	case KindTriangle:
		return CapTriangle
	case KindSawUp:
		return CapSawUp
	case KindSawDown:
		return CapSawDown
	case KindSpring:
		return CapSpring
	case KindDamper:
		return CapDamper
	case KindInertia:
		return CapInertia
	case KindFriction:
		return CapFriction
	case KindRamp:
		return CapRamp
	case KindRumble:
		return CapRumble
	default:
		return 0
	}
}

func (k Kind) IsPeriodic() bool {
	return k >= KindSine && k <= KindSawDown
}

func (k Kind) IsCondition() bool {
	return k >= KindSpring && k <= KindFriction
}

// Envelope はアタック／フェード
type Envelope struct {
	AttackLength uint16
	AttackLevel  uint16
	FadeLength   uint16
	FadeLevel    uint16
}

// Periodic は周期エフェクトのパラメータ
type Periodic struct {
	Period    uint16 // ミリ秒
	Magnitude int16
	Offset    int16
	Phase     uint16 // 1/100 度
}

// Condition は条件エフェクト（バネ・ダンパー・慣性・摩擦）のパラメータ
type Condition struct {
	RightSat   uint16
	LeftSat    uint16
	RightCoeff int16
	LeftCoeff  int16
	Deadband   uint16
	Centre     int16
}

// Ramp はランプエフェクトの開始・終了値
type Ramp struct {
	Start int16
	End   int16
}

// Rumble は振動エフェクトの強弱2つのモーターの強さ
type Rumble struct {
	Strong uint16
	Weak   uint16
}

// Effect はデバイスへアップロードするエフェクト記述子
// Kind に応じて Level / Periodic / Condition / Ramp / Rumble のいずれかを使う
type Effect struct {
	Kind      Kind
	Direction Direction
	Length    uint32 // ミリ秒。Infinity は無期限
	Delay     uint16
	Envelope  Envelope
	Level     uint16
	Periodic  Periodic
	Condition Condition
	Ramp      Ramp
	Rumble    Rumble
}

// Infinite は無期限のエフェクトかどうか
func (e Effect) Infinite() bool {
	return int64(e.Length) == Infinity
}

// EnvelopeParams はアタック／フェードの入力値
type EnvelopeParams struct {
	AttackLength int
	AttackLevel  int
	FadeLength   int
	FadeLevel    int
}

// ConstantParams は一定力エフェクトの入力値
type ConstantParams struct {
	Duration  int64
	Delay     int
	Level     int
	Direction Direction
	Envelope  EnvelopeParams
}

// PeriodicParams は周期エフェクトの入力値
type PeriodicParams struct {
	Duration  int64
	Delay     int
	Period    int
	Magnitude int
	Offset    int
	Phase     int
	Envelope  EnvelopeParams
}

// ConditionParams は条件エフェクトの入力値
type ConditionParams struct {
	Duration   int64
	Delay      int
	RightSat   int
	LeftSat    int
	RightCoeff int
	LeftCoeff  int
	Deadband   int
	Centre     int
}

// RampParams はランプエフェクトの入力値
type RampParams struct {
	Duration  int64
	Delay     int
	Start     int
	End       int
	Direction Direction
	Envelope  EnvelopeParams
}

// RumbleParams は振動エフェクトの入力値
type RumbleParams struct {
	Duration int64
	Delay    int
	Strong   int
	Weak     int
}

// MaxCondition は条件エフェクトを最大強度にしたパラメータを返す
func MaxCondition(duration int64) ConditionParams {
	return ConditionParams{
		Duration:   duration,
		RightSat:   0xFFFF,
		LeftSat:    0xFFFF,
		RightCoeff: math.MaxInt16,
		LeftCoeff:  math.MaxInt16,
	}
}

// NewConstant は能力と入力値から一定力エフェクトを組み立てる
func NewConstant(caps Capabilities, p ConstantParams) (Effect, error) {
	if err := checkCapability(caps, KindConstant); err != nil {
		return Effect{}, err
	}
	if !p.Direction.Valid() {
		return Effect{}, &ParamError{Param: ParamDirection, Value: int64(p.Direction), Reason: "must be left or right"}
	}
	if err := firstError(
		ValidDuration(p.Duration),
		ValidDelay(p.Delay),
		ValidLevel(ParamLevel, p.Level),
		validEnvelope(p.Envelope, p.Duration),
	); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:      KindConstant,
		Direction: p.Direction,
		Length:    uint32(p.Duration),
		Delay:     uint16(p.Delay),
		Envelope:  toEnvelope(p.Envelope),
		Level:     uint16(p.Level),
	}, nil
}

// NewPeriodic は周期エフェクトを組み立てる。kind は正弦波・三角波・のこぎり波のいずれか
func NewPeriodic(caps Capabilities, kind Kind, p PeriodicParams) (Effect, error) {
	if !kind.IsPeriodic() {
		return Effect{}, &ParamError{Param: ParamKind, Value: int64(kind), Reason: "not a periodic effect"}
	}
	if err := checkCapability(caps, kind); err != nil {
		return Effect{}, err
	}
	if err := firstError(
		ValidDuration(p.Duration),
		ValidDelay(p.Delay),
		ValidPeriod(p.Period),
		ValidSigned(ParamMagnitude, p.Magnitude),
		ValidSigned(ParamOffset, p.Offset),
		ValidPhase(p.Phase),
		validEnvelope(p.Envelope, p.Duration),
	); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:     kind,
		Length:   uint32(p.Duration),
		Delay:    uint16(p.Delay),
		Envelope: toEnvelope(p.Envelope),
		Periodic: Periodic{
			Period:    uint16(p.Period),
			Magnitude: int16(p.Magnitude),
			Offset:    int16(p.Offset),
			Phase:     uint16(p.Phase),
		},
	}, nil
}

// NewCondition は条件エフェクトを組み立てる
func NewCondition(caps Capabilities, kind Kind, p ConditionParams) (Effect, error) {
	if !kind.IsCondition() {
		return Effect{}, &ParamError{Param: ParamKind, Value: int64(kind), Reason: "not a condition effect"}
	}
	if err := checkCapability(caps, kind); err != nil {
		return Effect{}, err
	}
	if err := firstError(
		ValidDuration(p.Duration),
		ValidDelay(p.Delay),
		ValidSaturation(p.RightSat),
		ValidSaturation(p.LeftSat),
		ValidCoefficient(p.RightCoeff),
		ValidCoefficient(p.LeftCoeff),
		ValidDeadband(p.Deadband),
		ValidCentre(p.Centre),
	); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:   kind,
		Length: uint32(p.Duration),
		Delay:  uint16(p.Delay),
		Condition: Condition{
			RightSat:   uint16(p.RightSat),
			LeftSat:    uint16(p.LeftSat),
			RightCoeff: int16(p.RightCoeff),
			LeftCoeff:  int16(p.LeftCoeff),
			Deadband:   uint16(p.Deadband),
			Centre:     int16(p.Centre),
		},
	}, nil
}

// NewRamp はランプエフェクトを組み立てる
func NewRamp(caps Capabilities, p RampParams) (Effect, error) {
	if err := checkCapability(caps, KindRamp); err != nil {
		return Effect{}, err
	}
	if !p.Direction.Valid() {
		return Effect{}, &ParamError{Param: ParamDirection, Value: int64(p.Direction), Reason: "must be left or right"}
	}
	if err := firstError(
		ValidDuration(p.Duration),
		ValidDelay(p.Delay),
		ValidSigned(ParamRampStart, p.Start),
		ValidSigned(ParamRampEnd, p.End),
		validEnvelope(p.Envelope, p.Duration),
	); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:      KindRamp,
		Direction: p.Direction,
		Length:    uint32(p.Duration),
		Delay:     uint16(p.Delay),
		Envelope:  toEnvelope(p.Envelope),
		Ramp:      Ramp{Start: int16(p.Start), End: int16(p.End)},
	}, nil
}

// NewRumble は振動エフェクトを組み立てる
func NewRumble(caps Capabilities, p RumbleParams) (Effect, error) {
	if err := checkCapability(caps, KindRumble); err != nil {
		return Effect{}, err
	}
	if err := firstError(
		ValidDuration(p.Duration),
		ValidDelay(p.Delay),
		ValidLevel(ParamMagnitude, p.Strong),
		ValidLevel(ParamMagnitude, p.Weak),
	); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:   KindRumble,
		Length: uint32(p.Duration),
		Delay:  uint16(p.Delay),
		Rumble: Rumble{Strong: uint16(p.Strong), Weak: uint16(p.Weak)},
	}, nil
}

func checkCapability(caps Capabilities, kind Kind) error {
	if !caps.Has(kind.Capability()) {
		return &UnsupportedError{Kind: kind}
	}
	return nil
}

func validEnvelope(e EnvelopeParams, duration int64) error {
	return firstError(
		ValidEnvelope(e.AttackLength, e.FadeLength, duration),
		ValidLevel(ParamAttackLevel, e.AttackLevel),
		ValidLevel(ParamFadeLevel, e.FadeLevel),
	)
}

func toEnvelope(e EnvelopeParams) Envelope {
	return Envelope{
		AttackLength: uint16(e.AttackLength),
		AttackLevel:  uint16(e.AttackLevel),
		FadeLength:   uint16(e.FadeLength),
		FadeLevel:    uint16(e.FadeLevel),
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
