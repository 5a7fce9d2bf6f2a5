package haptic

import "math"

// MinDuration はこれより短いエフェクトを拒否する下限（ミリ秒）
const MinDuration = 10

// 以下はエフェクトのパラメータ範囲を確認する純粋関数。デバイスには一切触れない

// ValidDuration は長さを確認する。Infinity は上限確認を行わない
func ValidDuration(ms int64) error {
	if ms == Infinity {
		return nil
	}
	if ms < MinDuration {
		return &ParamError{Param: ParamDuration, Value: ms, Reason: "shorter than minimum duration"}
	}
	if ms > math.MaxUint32 {
		return &ParamError{Param: ParamDuration, Value: ms, Reason: "longer than maximum duration"}
	}
	return nil
}

// ValidDelay は開始遅延を確認する
func ValidDelay(ms int) error {
	return inRange(ParamDelay, int64(ms), 0, math.MaxUint16)
}

// ValidEnvelope はアタックとフェードの長さを確認する
// 両者の合計がエフェクトの長さを超えてはならない（無期限の場合を除く）
func ValidEnvelope(attack, fade int, duration int64) error {
	if err := inRange(ParamAttack, int64(attack), 0, math.MaxUint16); err != nil {
		return err
	}
	if err := inRange(ParamFade, int64(fade), 0, math.MaxUint16); err != nil {
		return err
	}
	if duration != Infinity && int64(attack)+int64(fade) > duration {
		return &ParamError{Param: ParamEnvelope, Value: int64(attack) + int64(fade), Reason: "exceeds effect duration"}
	}
	return nil
}

// ValidLevel は16ビット符号なしの力の値を確認する
func ValidLevel(p Param, level int) error {
	return inRange(p, int64(level), 0, math.MaxUint16)
}

// ValidSaturation は条件エフェクトの飽和値を確認する
func ValidSaturation(v int) error {
	return inRange(ParamSaturation, int64(v), 0, math.MaxUint16)
}

// ValidCoefficient は条件エフェクトの係数を確認する
func ValidCoefficient(v int) error {
	return inRange(ParamCoefficient, int64(v), math.MinInt16, math.MaxInt16)
}

// ValidDeadband は不感帯を確認する
func ValidDeadband(v int) error {
	return inRange(ParamDeadband, int64(v), 0, math.MaxUint16)
}

// ValidCentre は条件エフェクトの中心を確認する
func ValidCentre(v int) error {
	return inRange(ParamCentre, int64(v), math.MinInt16, math.MaxInt16)
}

// ValidPeriod は周期（ミリ秒）を確認する
func ValidPeriod(v int) error {
	return inRange(ParamPeriod, int64(v), 0, math.MaxUint16)
}

// ValidPhase は位相（1/100度）を確認する
func ValidPhase(v int) error {
	return inRange(ParamPhase, int64(v), 0, 35999)
}

// ValidSigned は16ビット符号付きの値を確認する
func ValidSigned(p Param, v int) error {
	return inRange(p, int64(v), math.MinInt16, math.MaxInt16)
}

// ValidIterations は繰り返し回数を確認する
func ValidIterations(n int) error {
	return inRange(ParamIterations, int64(n), 1, math.MaxUint32)
}

// ValidGain はゲイン（パーセント）を確認する
func ValidGain(percent int) error {
	return inRange(ParamGain, int64(percent), 0, 100)
}

// ValidSlot はスロット番号が列挙の範囲内か確認する
func ValidSlot(s Slot) error {
	if !s.Valid() {
		return &ParamError{Param: ParamSlot, Value: int64(s), Reason: "unknown effect slot"}
	}
	return nil
}

func inRange(p Param, v, min, max int64) error {
	if v < min {
		return &ParamError{Param: p, Value: v, Reason: "below minimum"}
	}
	if v > max {
		return &ParamError{Param: p, Value: v, Reason: "above maximum"}
	}
	return nil
}
