package haptic

// Direction はハンドルを回す向き。ProfileTable などの添字にも使う
type Direction int

const (
	Left Direction = iota
	Right
)

// Sign は位置の増減方向（左が負）を返す
func (d Direction) Sign() int {
	if d == Left {
		return -1
	}
	return 1
}

// Opposite は逆向きを返す
func (d Direction) Opposite() Direction {
	if d == Left {
		return Right
	}
	return Left
}

func (d Direction) Valid() bool {
	return d == Left || d == Right
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "invalid"
	}
}

// Slot はエフェクトを1つだけ保持できる論理チャネル
type Slot int

const (
	SlotLeft Slot = iota
	SlotRight
	SlotSine
	SlotTriangle
	SlotSawUp
	SlotSawDown
	SlotSpring
	SlotDamper
	SlotInertia
	SlotFriction
	SlotRampLeft
	SlotRampRight
	SlotRumble

	NumSlots = int(SlotRumble) + 1
)

var slotNames = [NumSlots]string{
	"LEFT", "RIGHT", "SINE", "TRIANGLE", "SAWUP", "SAWDOWN",
	"SPRING", "DAMPER", "INERTIA", "FRICTION", "RAMP_LEFT", "RAMP_RIGHT", "RUMBLE",
}

// ConditionSlots は位置や速度に応じて抵抗する条件エフェクトのスロット
var ConditionSlots = []Slot{SlotDamper, SlotFriction, SlotInertia, SlotSpring}

func (s Slot) Valid() bool {
	return s >= 0 && int(s) < NumSlots
}

func (s Slot) String() string {
	if !s.Valid() {
		return "INVALID"
	}
	return slotNames[s]
}

// Kind はスロットに置けるエフェクト種別を返す
func (s Slot) Kind() Kind {
	switch s {
	case SlotLeft, SlotRight:
		return KindConstant
	case SlotSine:
		return KindSine
	case SlotTriangle:
		return KindTriangle
	case SlotSawUp:
		return KindSawUp
	case SlotSawDown:
		return KindSawDown
	case SlotSpring:
		return KindSpring
	case SlotDamper:
		return KindDamper
	case SlotInertia:
		return KindInertia
	case SlotFriction:
		return KindFriction
	case SlotRampLeft, SlotRampRight:
		return KindRamp
	case SlotRumble:
		return KindRumble
	default:
		return KindInvalid
	}
}

// ConstantSlot は向きに対応する一定力のスロットを返す
func ConstantSlot(dir Direction) Slot {
	if dir == Left {
		return SlotLeft
	}
	return SlotRight
}

// RampSlot は向きに対応するランプのスロットを返す
func RampSlot(dir Direction) Slot {
	if dir == Left {
		return SlotRampLeft
	}
	return SlotRampRight
}
