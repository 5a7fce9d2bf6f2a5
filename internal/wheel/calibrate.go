package wheel

import (
	"errors"
	"fmt"
	"log"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// Calibrate は左右のロック、中心、ノイズ幅を順に求める
// 校正済みなら何もしない。失敗した場合は状態をそこで止めてエラーを返す（自動再試行はしない）
func (w *Wheel) Calibrate() error {
	if w.cal.State == Calibrated {
		return nil
	}
	start := w.clock.Now()
	err := w.calibrate()

	ev := telemetry.Event{
		Type:      telemetry.TypeCalibrated,
		OK:        err == nil,
		LeftLock:  w.cal.LeftLock,
		RightLock: w.cal.RightLock,
		Centre:    w.cal.Centre,
		Jitter:    w.cal.Jitter,
		Elapsed:   w.clock.Now().Sub(start),
	}
	if err != nil {
		ev.Error = err.Error()
		log.Printf("エラー: 校正に失敗しました (%s): %v", w.cal.State, err)
	} else {
		log.Printf("校正完了: 左=%d 右=%d 中心=%d ジッター=%d", w.cal.LeftLock, w.cal.RightLock, w.cal.Centre, w.cal.Jitter)
	}
	w.publish(ev)
	return err
}

func (w *Wheel) calibrate() error {
	w.cal = Calibration{}
	if _, err := w.FindLock(haptic.Left); err != nil {
		return err
	}
	if _, err := w.FindLock(haptic.Right); err != nil {
		return err
	}
	if _, err := w.ComputeCentre(); err != nil {
		return err
	}
	if _, err := w.FindJitter(); err != nil {
		return err
	}
	w.cal.State = Calibrated
	return nil
}

// FindLock は一定力で dir 側へ回し切り、その端の位置をロックとして記録する
// 条件エフェクトが動作中なら抵抗に負けないよう強い力を使う
func (w *Wheel) FindLock(dir haptic.Direction) (int, error) {
	lk := w.settings.Lock
	level := lk.SafeLevel
	if w.session.AnyConditionRunning() {
		level = lk.StrongLevel
	}
	slot := haptic.ConstantSlot(dir)
	duration := (lk.Settle + lk.Window).Milliseconds() + 1000
	if err := w.session.SetConstantForce(duration, level, dir); err != nil {
		return 0, fmt.Errorf("%sロック探索: %w", label(dir), err)
	}
	if err := w.session.Run(slot, 1); err != nil {
		return 0, fmt.Errorf("%sロック探索: %w", label(dir), err)
	}
	defer w.stop(slot)

	w.clock.Sleep(lk.Settle)

	lock := 0
	start := w.clock.Now()
	for first := true; ; first = false {
		pos, err := w.Position()
		if err != nil {
			return 0, err
		}
		// 最初の読み取りも含め、中心の値はロックとして扱わない
		if pos == 0 {
			return 0, fmt.Errorf("%sロック探索: %w", label(dir), ErrCentreImpossible)
		}
		if first || (dir == haptic.Left && pos < lock) || (dir == haptic.Right && pos > lock) {
			lock = pos
		}
		if w.clock.Now().Sub(start) >= lk.Window {
			break
		}
		w.clock.Sleep(w.pollInterval())
	}

	if dir == haptic.Left {
		w.cal.LeftLock = lock
		w.cal.State = LeftLocked
	} else {
		w.cal.RightLock = lock
		if w.cal.State >= LeftLocked {
			w.cal.State = RightLocked
		}
	}
	log.Printf("%sロック: %d", label(dir), lock)
	return lock, nil
}

// ComputeCentre は左右のロックの中点に補正を加えて中心とする
func (w *Wheel) ComputeCentre() (int, error) {
	if w.cal.State < RightLocked {
		return 0, fmt.Errorf("中心の計算: %w", ErrNotCalibrated)
	}
	left, right := w.cal.LeftLock, w.cal.RightLock
	centre := (left+right)/2 + w.settings.Lock.CentreTrim
	if left > right || centre < left || centre > right {
		return 0, fmt.Errorf("中心の計算 (左=%d 右=%d 中心=%d): %w", left, right, centre, ErrLockOrder)
	}
	w.cal.Centre = centre
	w.cal.State = Centred
	return centre, nil
}

// FindJitter はランダムな角度へゆっくり移動し、静止中の位置のばらつきの最大値を求める
func (w *Wheel) FindJitter() (uint, error) {
	if !w.cal.RangeKnown() {
		return 0, fmt.Errorf("ジッター測定: %w", ErrNotCalibrated)
	}
	js := w.settings.Jitter
	limit := min(js.AngleLimit, w.settings.Degrees/2-1)

	var jitter uint
	for i := 0; i < js.Angles; i++ {
		target := w.rng.Intn(2*limit+1) - limit
		if err := w.GotoAngleSlow(target); err != nil && !errors.Is(err, ErrMismatch) {
			return 0, fmt.Errorf("ジッター測定 (%d°): %w", target, err)
		}
		if err := w.WaitForNoMovement(w.settings.GeneralTimeout); err != nil {
			return 0, fmt.Errorf("ジッター測定 (%d°): %w", target, err)
		}

		lo, hi := 0, 0
		for s := 0; s < js.Samples; s++ {
			pos, err := w.Position()
			if err != nil {
				return 0, err
			}
			if s == 0 || pos < lo {
				lo = pos
			}
			if s == 0 || pos > hi {
				hi = pos
			}
			w.clock.Sleep(js.Interval)
		}
		if spread := uint(hi - lo); spread > jitter {
			jitter = spread
		}
	}
	w.cal.Jitter = jitter
	return jitter, nil
}

// stop はスロットのエフェクトを止める。失敗はログに残すだけ
func (w *Wheel) stop(slot haptic.Slot) {
	if err := w.session.Stop(slot); err != nil {
		log.Printf("エラー: %s の停止に失敗しました: %v", slot, err)
	}
}

func label(dir haptic.Direction) string {
	if dir == haptic.Left {
		return "左"
	}
	return "右"
}
