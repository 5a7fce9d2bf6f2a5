package sim

import "time"

// Clock は Sleep で時間が進む仮想時計。テストでは実時間を待たずに制御ループを回せる
type Clock struct {
	now time.Time
}

// NewClock は Unix 時刻 0 から始まる仮想時計を作成する
func NewClock() *Clock {
	return &Clock{now: time.Unix(0, 0)}
}

func (c *Clock) Now() time.Time {
	return c.now
}

// Sleep は仮想時刻を d だけ進める
func (c *Clock) Sleep(d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}
