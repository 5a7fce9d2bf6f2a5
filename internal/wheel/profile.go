package wheel

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// Reading はプロファイル中の1回分の測定値
type Reading struct {
	Direction haptic.Direction `json:"direction"`
	Index     int              `json:"index"`
	// Rate は1ミリ秒あたりの位置の変化
	Rate     float64      `json:"rate"`
	From     int          `json:"from"`
	To       int          `json:"to"`
	Level    haptic.Level `json:"level"`
	Distance int          `json:"distance"`
	At       time.Time    `json:"at"`
}

// ProfileTable は向きと強さの段階ごとの、測定窓あたりの平均移動距離（絶対値）
type ProfileTable [2][haptic.MaxLevel + 1]int

// Monotonic は dir の距離が段階に対して減少していないかどうかを返す
func (t *ProfileTable) Monotonic(dir haptic.Direction) bool {
	for l := 1; l <= int(haptic.MaxLevel); l++ {
		if t[dir][l] < t[dir][l-1] {
			return false
		}
	}
	return true
}

// ClosestLevel は記録された距離が distance 以下となる最も高い段階を返す
func (t *ProfileTable) ClosestLevel(distance int, dir haptic.Direction) haptic.Level {
	var best haptic.Level
	for _, l := range haptic.Levels() {
		if t[dir][l] <= distance {
			best = l
		}
	}
	return best
}

// ProfileTable は最後に作成したプロファイルを返す
func (w *Wheel) ProfileTable() ProfileTable {
	return w.profile
}

// SetProfileTable は既知のプロファイルを設定する
func (w *Wheel) SetProfileTable(t ProfileTable) {
	w.profile = t
}

// Readings は最後のプロファイルで得た測定値を返す
func (w *Wheel) Readings() []Reading {
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// ClosestEffectLevel は指定した距離に最も近い強さの段階を返す
func (w *Wheel) ClosestEffectLevel(distance int, dir haptic.Direction) haptic.Level {
	return w.profile.ClosestLevel(abs(distance), dir)
}

// Profile は両方向について全段階の力で動かし、段階ごとの移動量を測定する
func (w *Wheel) Profile() (ProfileTable, error) {
	if !w.cal.RangeKnown() {
		return ProfileTable{}, fmt.Errorf("プロファイル: %w", ErrNotCalibrated)
	}
	w.readings = w.readings[:0]
	var table ProfileTable
	for _, dir := range []haptic.Direction{haptic.Left, haptic.Right} {
		if err := w.Centre(); err != nil {
			return table, fmt.Errorf("プロファイル: %w", err)
		}
		for _, level := range haptic.Levels() {
			near, err := w.nearLock(dir)
			if err != nil {
				return table, err
			}
			if near {
				if err := w.Centre(); err != nil {
					return table, fmt.Errorf("プロファイル: %w", err)
				}
			}
			dist, err := w.profileLevel(dir, level)
			if err != nil {
				return table, fmt.Errorf("プロファイル (%s, 段階 %d): %w", label(dir), level, err)
			}
			table[dir][level] = dist
		}
		if !table.Monotonic(dir) {
			log.Printf("注意: %s方向のプロファイルが段階に対して単調ではありません", label(dir))
		}
	}
	w.profile = table
	return table, nil
}

func (w *Wheel) profileLevel(dir haptic.Direction, level haptic.Level) (int, error) {
	ps := w.settings.Profile
	slot := haptic.ConstantSlot(dir)
	force := level.Force()

	duration := (ps.BuildUp + time.Duration(ps.Samples)*ps.Window).Milliseconds() + 1000
	if err := w.session.SetConstantForce(duration, force, dir); err != nil {
		return 0, err
	}
	if err := w.session.Run(slot, 1); err != nil {
		return 0, err
	}
	w.clock.Sleep(ps.BuildUp)

	total := 0
	for i := 0; i < ps.Samples; i++ {
		from, to, err := w.travel(ps.Window)
		if err != nil {
			w.stop(slot)
			return 0, err
		}
		d := abs(to - from)
		total += d
		w.readings = append(w.readings, Reading{
			Direction: dir,
			Index:     i,
			Rate:      float64(to-from) / float64(ps.Window.Milliseconds()),
			From:      from,
			To:        to,
			Level:     level,
			Distance:  d,
			At:        w.clock.Now(),
		})
	}
	w.stop(slot)
	avg := 0
	if ps.Samples > 0 {
		avg = int(math.Round(float64(total) / float64(ps.Samples)))
	}

	if level > ps.BrakeThreshold {
		if err := w.brake(dir.Opposite(), force, time.Duration(level-ps.BrakeThreshold)*ps.BrakeStep); err != nil {
			return 0, err
		}
	}
	if err := w.WaitForNoMovement(w.settings.GeneralTimeout); err != nil {
		return 0, err
	}

	w.publish(telemetry.Event{
		Type:      telemetry.TypeProfileLevel,
		OK:        true,
		Direction: dir.String(),
		Level:     int(level),
		Distance:  avg,
	})
	return avg, nil
}

// brake は逆向きの力を短時間掛けて惰性を止める
func (w *Wheel) brake(dir haptic.Direction, force int, d time.Duration) error {
	slot := haptic.ConstantSlot(dir)
	ms := max(d.Milliseconds(), haptic.MinDuration)
	if err := w.session.SetConstantForce(ms, force, dir); err != nil {
		return fmt.Errorf("ブレーキ: %w", err)
	}
	if err := w.session.Run(slot, 1); err != nil {
		return fmt.Errorf("ブレーキ: %w", err)
	}
	w.clock.Sleep(d)
	w.stop(slot)
	return nil
}

// nearLock は dir 側のロックまでの距離が余裕より小さいかどうかを返す
func (w *Wheel) nearLock(dir haptic.Direction) (bool, error) {
	pos, err := w.Position()
	if err != nil {
		return false, err
	}
	margin := w.settings.Profile.RecentreMargin
	if dir == haptic.Left {
		return pos-w.cal.LeftLock < margin, nil
	}
	return w.cal.RightLock-pos < margin, nil
}

// FindRangeOffset は1秒間の左移動がロックに当たらなくなるまで、
// 事前に掛ける右向きの力の時間を増やしていく
func (w *Wheel) FindRangeOffset() (time.Duration, error) {
	if !w.cal.RangeKnown() {
		return 0, fmt.Errorf("オフセット探索: %w", ErrNotCalibrated)
	}
	rs := w.settings.Range
	var offset time.Duration
	for attempt := 0; attempt <= rs.MaxRetries; attempt++ {
		lowest, err := w.rangeMove(offset)
		if err != nil {
			return 0, fmt.Errorf("オフセット探索: %w", err)
		}
		if lowest-w.cal.LeftLock > rs.EndStopMargin {
			w.offset = offset
			log.Printf("オフセット探索完了: %v (最小位置 %d)", offset, lowest)
			w.publish(telemetry.Event{Type: telemetry.TypeRangeOffset, OK: true, Position: lowest, Offset: offset})
			return offset, nil
		}
		log.Printf("ロックに近すぎます (最小位置 %d, オフセット %v)", lowest, offset)
		offset += rs.OffsetStep
	}
	err := fmt.Errorf("オフセット探索 (%d 回): %w", rs.MaxRetries+1, ErrEndStop)
	w.publish(telemetry.Event{Type: telemetry.TypeRangeOffset, OK: false, Offset: offset, Error: err.Error()})
	return 0, err
}

// RangeOffset は最後に見つけたオフセットを返す
func (w *Wheel) RangeOffset() time.Duration {
	return w.offset
}

// rangeMove は中心から事前オフセットを掛けてから左へ動かし、到達した最小位置を返す
func (w *Wheel) rangeMove(offset time.Duration) (int, error) {
	rs := w.settings.Range
	if err := w.Centre(); err != nil {
		return 0, err
	}
	if offset > 0 {
		ms := max(offset.Milliseconds(), haptic.MinDuration)
		if err := w.session.SetConstantForce(ms, rs.OffsetLevel, haptic.Right); err != nil {
			return 0, err
		}
		if err := w.session.Run(haptic.SlotRight, 1); err != nil {
			return 0, err
		}
		w.clock.Sleep(offset)
		w.stop(haptic.SlotRight)
	}

	if err := w.session.SetConstantForce(rs.Move.Milliseconds(), rs.Level, haptic.Left); err != nil {
		return 0, err
	}
	if err := w.session.Run(haptic.SlotLeft, 1); err != nil {
		return 0, err
	}
	lowest := math.MaxInt
	start := w.clock.Now()
	for w.clock.Now().Sub(start) < rs.Move {
		pos, err := w.Position()
		if err != nil {
			w.stop(haptic.SlotLeft)
			return 0, err
		}
		lowest = min(lowest, pos)
		w.clock.Sleep(w.pollInterval())
	}
	w.stop(haptic.SlotLeft)

	if err := w.WaitForNoMovement(w.settings.GeneralTimeout); err != nil {
		return 0, err
	}
	pos, err := w.Position()
	if err != nil {
		return 0, err
	}
	return min(lowest, pos), nil
}
