package event

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Abs = 0x03 // 絶対座標イベント
	FF  = 0x15 // フォースフィードバックイベント

	AbsX = 0x00 // ハンドルの回転軸

	SynReport = 0 // イベント報告の同期
)

// フォースフィードバックのエフェクト種別（input.hより）
const (
	FFRumble   = 0x50
	FFPeriodic = 0x51
	FFConstant = 0x52
	FFSpring   = 0x53
	FFFriction = 0x54
	FFDamper   = 0x55
	FFInertia  = 0x56
	FFRamp     = 0x57

	FFSquare   = 0x58
	FFTriangle = 0x59
	FFSine     = 0x5a
	FFSawUp    = 0x5b
	FFSawDown  = 0x5c
	FFCustom   = 0x5d

	FFGain       = 0x60
	FFAutocenter = 0x61
)

// ff_effect.direction の値。0x4000 が左、0xC000 が右
const (
	DirLeft  = 0x4000
	DirRight = 0xC000
)
