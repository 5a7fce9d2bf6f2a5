package types

// AbsInfo は input_absinfo 構造体（EVIOCGABS の結果）
type AbsInfo struct {
	Value      int32 // 現在値
	Minimum    int32 // 最小値
	Maximum    int32 // 最大値
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// FFTrigger はボタンによるエフェクト起動の設定
type FFTrigger struct {
	Button   uint16
	Interval uint16
}

// FFReplay はエフェクトの再生時間と開始遅延（ミリ秒）
type FFReplay struct {
	Length uint16
	Delay  uint16
}

// FFEffect は ff_effect 構造体。共用体部分は種別ごとの構造体をリトルエンディアンで書き込む
type FFEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Trigger   FFTrigger
	Replay    FFReplay
	_         [2]byte
	Union     [32]byte
}

// FFEnvelope はアタック／フェードの設定
type FFEnvelope struct {
	AttackLength uint16
	AttackLevel  uint16
	FadeLength   uint16
	FadeLevel    uint16
}

// FFConstantEffect は一定の力のエフェクト
type FFConstantEffect struct {
	Level    int16
	Envelope FFEnvelope
}

// FFRampEffect は開始値から終了値へ変化するエフェクト
type FFRampEffect struct {
	StartLevel int16
	EndLevel   int16
	Envelope   FFEnvelope
}

// FFConditionEffect はバネ・ダンパーなどの1軸分の条件エフェクト
type FFConditionEffect struct {
	RightSaturation uint16
	LeftSaturation  uint16
	RightCoeff      int16
	LeftCoeff       int16
	Deadband        uint16
	Center          int16
}

// FFRumbleEffect は強弱2つのモーターによる振動エフェクト
type FFRumbleEffect struct {
	StrongMagnitude uint16
	WeakMagnitude   uint16
}

// FFPeriodicEffect は周期エフェクト。カスタム波形は使わないので長さとポインタは0のまま
type FFPeriodicEffect struct {
	Waveform  uint16
	Period    uint16
	Magnitude int16
	Offset    int16
	Phase     uint16
	Envelope  FFEnvelope
}
