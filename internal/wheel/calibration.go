package wheel

import "math"

// State は校正の進行状態
type State int

const (
	Uncalibrated State = iota
	LeftLocked
	RightLocked
	Centred
	Calibrated
)

func (s State) String() string {
	switch s {
	case Uncalibrated:
		return "uncalibrated"
	case LeftLocked:
		return "left-locked"
	case RightLocked:
		return "right-locked"
	case Centred:
		return "centred"
	case Calibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// Calibration はロック位置・中心・ノイズ幅
// 校正後は LeftLock <= Centre <= RightLock を満たす
type Calibration struct {
	LeftLock  int   `json:"left_lock"`
	RightLock int   `json:"right_lock"`
	Centre    int   `json:"centre"`
	Jitter    uint  `json:"jitter"`
	State     State `json:"state"`
}

// TravelRange はロック間の距離
func (c Calibration) TravelRange() int {
	return abs(c.LeftLock) + abs(c.RightLock)
}

// RangeKnown は角度変換に必要な値がそろっているかどうか
func (c Calibration) RangeKnown() bool {
	return c.State >= Centred && c.TravelRange() > 0
}

// Angle は生の位置を角度に変換する
func (c Calibration) Angle(pos, degrees int) int {
	unit := float64(c.TravelRange()) / float64(degrees)
	return int(math.Round(float64(pos-c.Centre) / unit))
}

// Position は角度を生の位置に変換する
func (c Calibration) Position(angle, degrees int) int {
	unit := float64(c.TravelRange()) / float64(degrees)
	return int(math.Round(float64(angle)*unit)) + c.Centre
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
