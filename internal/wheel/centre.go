package wheel

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// Centre は短いパルスを繰り返してハンドルを中心へ戻す
// 校正前は生の位置 0 を中心とみなす
func (w *Wheel) Centre() error {
	start := w.clock.Now()
	err := w.centre()

	ev := telemetry.Event{
		Type:    telemetry.TypeCentred,
		OK:      err == nil,
		Elapsed: w.clock.Now().Sub(start),
	}
	if pos, perr := w.Position(); perr == nil {
		ev.Position = pos
		if w.cal.RangeKnown() {
			ev.Angle = w.CalculateAngle(pos)
		}
		log.Printf("センタリング完了 (pos=%d)", pos)
	}
	if err != nil {
		ev.Error = err.Error()
		log.Printf("エラー: センタリング: %v", err)
	}
	w.publish(ev)
	return err
}

func (w *Wheel) centre() error {
	cs := w.settings.Centre
	target := 0
	if w.cal.RangeKnown() {
		target = w.cal.Centre
	}
	deadline := w.clock.Now().Add(cs.Timeout)

	pos, err := w.Position()
	if err != nil {
		return err
	}
	// 校正済みなら遠い位置からはまず角度制御で近づける
	if w.cal.RangeKnown() && abs(pos-target) > cs.Far {
		if err := w.GotoAngleSlow(0); err != nil && !errors.Is(err, ErrMismatch) {
			return fmt.Errorf("センタリング: %w", err)
		}
		if pos, err = w.Position(); err != nil {
			return err
		}
	}

	farPause := max(cs.Pulse-2*time.Millisecond, w.pollInterval())
	uploaded := -1
	for abs(pos-target) > cs.Tolerance {
		if !w.clock.Now().Before(deadline) {
			return fmt.Errorf("センタリング (pos=%d): %w", pos, ErrTimeout)
		}
		d := pos - target
		far := abs(d) > cs.Far
		level := cs.NearLevel
		if far {
			level = cs.Level
		}
		if level != uploaded {
			if err := w.setPulses(level); err != nil {
				return err
			}
			uploaded = level
		}

		dir := haptic.Right
		if d > 0 {
			dir = haptic.Left
		}
		if err := w.session.Run(haptic.ConstantSlot(dir), 1); err != nil {
			return fmt.Errorf("センタリング: %w", err)
		}
		if far {
			// 振動を避けるため最後まで待たずに次のパルスを出す
			w.clock.Sleep(farPause)
		} else {
			if err := w.WaitForNoMovement(w.settings.GeneralTimeout); err != nil && !errors.Is(err, ErrTimeout) {
				return err
			}
			w.clock.Sleep(cs.NearPause)
		}

		if pos, err = w.Position(); err != nil {
			return err
		}
	}
	return w.WaitForNoMovement(w.settings.GeneralTimeout)
}

// setPulses は左右のスロットに同じ強さの短いパルスを置く
func (w *Wheel) setPulses(level int) error {
	ms := w.settings.Centre.Pulse.Milliseconds()
	for _, dir := range []haptic.Direction{haptic.Left, haptic.Right} {
		if err := w.session.SetConstantForce(ms, level, dir); err != nil {
			return fmt.Errorf("センタリングのパルス: %w", err)
		}
	}
	return nil
}
