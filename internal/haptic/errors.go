package haptic

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported はデバイスが要求されたエフェクト種別に対応していない
	ErrUnsupported = errors.New("effect not supported by device")
	// ErrOutOfRange はパラメータが許容範囲外
	ErrOutOfRange = errors.New("parameter out of range")
	// ErrDevice はドライバ呼び出し自体が失敗した
	ErrDevice = errors.New("device error")
	// ErrNoEffect はスロットにエフェクトが置かれていない
	ErrNoEffect = errors.New("no effect in slot")
	// ErrClosed はセッションが既に閉じられている
	ErrClosed = errors.New("session closed")
)

// Param は検証対象のパラメータ名
type Param string

const (
	ParamDuration    Param = "duration"
	ParamDelay       Param = "delay"
	ParamAttack      Param = "attack length"
	ParamFade        Param = "fade length"
	ParamEnvelope    Param = "attack+fade length"
	ParamLevel       Param = "level"
	ParamAttackLevel Param = "attack level"
	ParamFadeLevel   Param = "fade level"
	ParamSaturation  Param = "saturation"
	ParamCoefficient Param = "coefficient"
	ParamDeadband    Param = "deadband"
	ParamCentre      Param = "centre"
	ParamPeriod      Param = "period"
	ParamMagnitude   Param = "magnitude"
	ParamOffset      Param = "offset"
	ParamPhase       Param = "phase"
	ParamRampStart   Param = "ramp start"
	ParamRampEnd     Param = "ramp end"
	ParamIterations  Param = "iterations"
	ParamGain        Param = "gain"
	ParamSlot        Param = "slot"
	ParamDirection   Param = "direction"
	ParamKind        Param = "kind"
)

// ParamError はどのパラメータがなぜ不正なのかを示す
type ParamError struct {
	Param  Param
	Value  int64
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s %d out of bounds: %s", e.Param, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrOutOfRange }

// UnsupportedError は能力ビットが無いために作れなかったエフェクト
type UnsupportedError struct {
	Kind Kind
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s effect not supported by device", e.Kind)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// DeviceError はドライバ層のエラーをスロット名付きで包む
type DeviceError struct {
	Op   string
	Slot Slot
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Slot, e.Err)
}

func (e *DeviceError) Unwrap() []error { return []error{ErrDevice, e.Err} }
