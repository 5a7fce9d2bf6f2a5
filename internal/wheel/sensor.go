package wheel

import (
	"fmt"
	"time"
)

// Position はデバイスを読み直して生の軸の値を返す。値はキャッシュしない
func (w *Wheel) Position() (int, error) {
	dev := w.session.Device()
	if err := dev.Refresh(); err != nil {
		return 0, fmt.Errorf("位置の読み込みに失敗しました: %w", err)
	}
	return dev.Axis(), nil
}

// CalculateAngle は生の位置を角度に変換する。校正前の結果は意味を持たない
func (w *Wheel) CalculateAngle(pos int) int {
	return w.cal.Angle(pos, w.settings.Degrees)
}

// CalculatePosition は角度を生の位置に変換する
func (w *Wheel) CalculatePosition(angle int) int {
	return w.cal.Position(angle, w.settings.Degrees)
}

// Angle は現在の角度を返す
func (w *Wheel) Angle() (int, error) {
	if !w.cal.RangeKnown() {
		return 0, ErrNotCalibrated
	}
	pos, err := w.Position()
	if err != nil {
		return 0, err
	}
	return w.CalculateAngle(pos), nil
}

// Distance は window の間に動いた距離（終了位置 - 開始位置）を返す
// 呼び出し側はその間ブロックされる
func (w *Wheel) Distance(window time.Duration) (int, error) {
	from, to, err := w.travel(window)
	if err != nil {
		return 0, err
	}
	return to - from, nil
}

func (w *Wheel) travel(window time.Duration) (from, to int, err error) {
	from, err = w.Position()
	if err != nil {
		return 0, 0, err
	}
	start := w.clock.Now()
	for w.clock.Now().Sub(start) < window {
		w.clock.Sleep(w.pollInterval())
	}
	to, err = w.Position()
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

// IsStationary は一定間隔で位置を読み、連続する差がすべてノイズ幅以内なら true を返す
// 一度でも超えたらその時点で false を返す
func (w *Wheel) IsStationary() (bool, error) {
	st := w.settings.Stationary
	limit := int(w.cal.Jitter) + st.Margin

	prev, err := w.Position()
	if err != nil {
		return false, err
	}
	for i := 1; i < st.Samples; i++ {
		w.clock.Sleep(st.Interval)
		cur, err := w.Position()
		if err != nil {
			return false, err
		}
		if abs(cur-prev) > limit {
			return false, nil
		}
		prev = cur
	}
	return true, nil
}

// WaitForNoMovement はハンドルが止まるまで待つ
func (w *Wheel) WaitForNoMovement(timeout time.Duration) error {
	deadline := w.clock.Now().Add(timeout)
	for {
		still, err := w.IsStationary()
		if err != nil {
			return err
		}
		if still {
			return nil
		}
		if !w.clock.Now().Before(deadline) {
			return fmt.Errorf("静止待ち (%v): %w", timeout, ErrTimeout)
		}
		w.clock.Sleep(w.pollInterval())
	}
}

func (w *Wheel) pollInterval() time.Duration {
	if w.settings.PollInterval <= 0 {
		return time.Millisecond
	}
	return w.settings.PollInterval
}
