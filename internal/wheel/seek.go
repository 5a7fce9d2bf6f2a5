package wheel

import (
	"errors"
	"fmt"
	"log"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// GotoAngle は既定の強さで目標角度へ移動する
func (w *Wheel) GotoAngle(target int) error {
	return w.GotoAngleLevel(target, w.settings.Seek.DefaultLevel)
}

func (w *Wheel) GotoAngleSlow(target int) error {
	return w.GotoAngleLevel(target, w.settings.Seek.SlowLevel)
}

func (w *Wheel) GotoAngleFast(target int) error {
	return w.GotoAngleLevel(target, w.settings.Seek.FastLevel)
}

func (w *Wheel) GotoAngleFull(target int) error {
	return w.GotoAngleLevel(target, w.settings.Seek.FullLevel)
}

// GotoAngleLevel は一定力とダンパーを組み合わせて目標角度へ移動する
// 目標手前の帯に入ったらダンパーを掛け、目標に達したら力を止める
// 最終角度が目標と異なれば *MismatchError を返す（動作は完了しており再試行はしない）
func (w *Wheel) GotoAngleLevel(target, level int) error {
	if half := w.settings.Degrees / 2; target > half || target < -half {
		return fmt.Errorf("%d°: %w", target, ErrAngleRange)
	}
	current, err := w.Angle()
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}

	start := w.clock.Now()
	err = w.seek(current, target, level)

	ev := telemetry.Event{
		Type:    telemetry.TypeSeek,
		OK:      err == nil,
		Target:  target,
		Level:   level,
		Elapsed: w.clock.Now().Sub(start),
	}
	if pos, perr := w.Position(); perr == nil {
		ev.Position = pos
		ev.Angle = w.CalculateAngle(pos)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	w.publish(ev)
	return err
}

func (w *Wheel) seek(current, target, level int) error {
	for _, slot := range haptic.ConditionSlots {
		if w.session.IsRunning(slot) {
			w.stop(slot)
		}
	}

	braked := true
	if err := w.session.SetCondition(haptic.SlotDamper, haptic.MaxCondition(haptic.Infinity)); err != nil {
		if !errors.Is(err, haptic.ErrUnsupported) {
			return fmt.Errorf("ダンパーの準備: %w", err)
		}
		log.Printf("ダンパー非対応のためブレーキなしで移動します")
		braked = false
	}

	dir := haptic.Left
	if target > current {
		dir = haptic.Right
	}
	slot := haptic.ConstantSlot(dir)
	if err := w.session.SetConstantForce(haptic.Infinity, level, dir); err != nil {
		return fmt.Errorf("%d°への移動: %w", target, err)
	}
	if err := w.session.Run(slot, 1); err != nil {
		return fmt.Errorf("%d°への移動: %w", target, err)
	}

	band := w.nearBand(level)
	deadline := w.clock.Now().Add(w.settings.Seek.Timeout)
	braking := false
	for {
		angle, err := w.Angle()
		if err != nil {
			w.stopSeek(slot, braked)
			return err
		}
		if braked && !braking && within(dir, angle, target, band) {
			if err := w.session.Run(haptic.SlotDamper, 1); err != nil {
				w.stopSeek(slot, false)
				return fmt.Errorf("ダンパーの開始: %w", err)
			}
			braking = true
		}
		if within(dir, angle, target, 0) {
			break
		}
		if !w.clock.Now().Before(deadline) {
			w.stopSeek(slot, braked)
			return fmt.Errorf("%d°への移動 (現在 %d°): %w", target, angle, ErrTimeout)
		}
		w.clock.Sleep(w.pollInterval())
	}

	w.stop(slot)
	w.clock.Sleep(w.settings.Seek.Settle)
	if braked {
		w.stop(haptic.SlotDamper)
	}

	final, err := w.Angle()
	if err != nil {
		return err
	}
	if final != target {
		return &MismatchError{Target: target, Final: final}
	}
	return nil
}

func (w *Wheel) stopSeek(slot haptic.Slot, braked bool) {
	w.stop(slot)
	if braked {
		w.stop(haptic.SlotDamper)
	}
}

// nearBand は強さに応じたブレーキ開始の角度幅を返す
func (w *Wheel) nearBand(level int) int {
	s := w.settings.Seek
	switch {
	case level >= s.FastLevel:
		return s.FastBand
	case level <= s.SlowLevel:
		return s.SlowBand
	default:
		return s.DefaultBand
	}
}

// within は進行方向に対して angle が target の band 手前まで来ているかどうかを返す
func within(dir haptic.Direction, angle, target, band int) bool {
	if dir == haptic.Right {
		return angle >= target-band
	}
	return angle <= target+band
}
