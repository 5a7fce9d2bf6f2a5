package telemetry

import "time"

// イベント種別
const (
	TypeCalibrated   = "calibrated"
	TypeSeek         = "seek"
	TypeCentred      = "centred"
	TypeProfileLevel = "profile_level"
	TypeRangeOffset  = "range_offset"
	TypeSelfTest     = "self_test"
)

// Event はハンドル制御の結果を外部へ通知するためのレコード
type Event struct {
	Type      string        `json:"type"`
	At        time.Time     `json:"at"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Position  int           `json:"position"`
	Angle     int           `json:"angle"`
	Target    int           `json:"target,omitempty"`
	LeftLock  int           `json:"left_lock,omitempty"`
	RightLock int           `json:"right_lock,omitempty"`
	Centre    int           `json:"centre,omitempty"`
	Jitter    uint          `json:"jitter,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Step      string        `json:"step,omitempty"`
	Level     int           `json:"level,omitempty"`
	Distance  int           `json:"distance,omitempty"`
	Offset    time.Duration `json:"offset_ns,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns,omitempty"`
}

// Publisher はイベントの送り先
// Publish は制御ループから同期的に呼ばれるため、長時間ブロックしてはならない
type Publisher interface {
	Publish(ev Event)
}

// Nop は何もしない Publisher
type Nop struct{}

func (Nop) Publish(Event) {}

// Fanout は複数の Publisher へ同じイベントを配る
type Fanout []Publisher

func (f Fanout) Publish(ev Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}
