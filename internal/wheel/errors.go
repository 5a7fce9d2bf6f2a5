package wheel

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout は待ち時間の上限を超えた
	ErrTimeout = errors.New("timed out")
	// ErrMismatch は移動後の角度が目標と一致しない
	ErrMismatch = errors.New("final angle does not match target")
	// ErrNotCalibrated は校正前に角度を求めようとした
	ErrNotCalibrated = errors.New("wheel not calibrated")
	// ErrCentreImpossible はロック探索中に位置 0 が読まれた
	ErrCentreImpossible = errors.New("lock search read centre position")
	// ErrAngleRange は角度がロック間の範囲を超えている
	ErrAngleRange = errors.New("angle out of range")
	// ErrEndStop はオフセットを増やしてもロックを避けられなかった
	ErrEndStop = errors.New("could not keep move away from end stop")
	// ErrLockOrder は左ロックが右ロックより大きい
	ErrLockOrder = errors.New("left lock is beyond right lock")
)

// MismatchError は目標角度と実際の角度の差を示す
// 動作自体は完了しているので、再試行するかどうかは呼び出し側が決める
type MismatchError struct {
	Target int
	Final  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("target %d°, stopped at %d°", e.Target, e.Final)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }
