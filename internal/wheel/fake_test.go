package wheel

import (
	"fmt"

	"github.com/char5742/wheel-ffb/internal/haptic"
)

// scriptDevice は read が返す位置を報告するだけのデバイス
type scriptDevice struct {
	caps haptic.Capabilities
	read func(n int) int

	axis      int
	refreshes int
	effects   map[haptic.Handle]haptic.Effect
	running   map[haptic.Handle]bool
	next      haptic.Handle
	uploads   int
	runs      int
}

func newScriptDevice(caps haptic.Capabilities, read func(n int) int) *scriptDevice {
	return &scriptDevice{
		caps:    caps,
		read:    read,
		effects: map[haptic.Handle]haptic.Effect{},
		running: map[haptic.Handle]bool{},
	}
}

// pushing は再生中の一定力エフェクトの向きを返す
func (d *scriptDevice) pushing() (haptic.Direction, bool) {
	for h, r := range d.running {
		if eff := d.effects[h]; r && eff.Kind == haptic.KindConstant {
			return eff.Direction, true
		}
	}
	return 0, false
}

func (d *scriptDevice) Capabilities() haptic.Capabilities { return d.caps }

func (d *scriptDevice) Upload(_ haptic.Slot, eff haptic.Effect) (haptic.Handle, error) {
	d.uploads++
	h := d.next
	d.next++
	d.effects[h] = eff
	return h, nil
}

func (d *scriptDevice) Run(h haptic.Handle, _ int) error {
	if _, ok := d.effects[h]; !ok {
		return fmt.Errorf("unknown handle %d", h)
	}
	d.runs++
	d.running[h] = true
	return nil
}

func (d *scriptDevice) Stop(h haptic.Handle) error {
	d.running[h] = false
	return nil
}

func (d *scriptDevice) Destroy(h haptic.Handle) {
	delete(d.effects, h)
	delete(d.running, h)
}

func (d *scriptDevice) IsRunning(h haptic.Handle) bool { return d.running[h] }
func (d *scriptDevice) SetGain(int) error              { return nil }
func (d *scriptDevice) MaxGain() (int, bool)           { return 0, false }

func (d *scriptDevice) Refresh() error {
	d.axis = d.read(d.refreshes)
	d.refreshes++
	return nil
}

func (d *scriptDevice) Axis() int { return d.axis }

func (d *scriptDevice) NumPlaying() int {
	n := 0
	for _, r := range d.running {
		if r {
			n++
		}
	}
	return n
}

func (d *scriptDevice) Close() error { return nil }
