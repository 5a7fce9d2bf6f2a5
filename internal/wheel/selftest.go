package wheel

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// TestStep は自己診断の1項目の結果
type TestStep struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type selfTestStep struct {
	name string
	need haptic.Capabilities
	run  func() error
}

// SelfTest はバネ、左右の一定力、包絡線付きの一定力、ランプ、周期波形、振動を順に再生する
// 正弦波に対応しないデバイスでは何も再生せずに ErrUnsupported を返す
// 失敗した項目があっても残りを続け、失敗はまとめて返す
func (w *Wheel) SelfTest() ([]TestStep, error) {
	caps := w.session.Capabilities()
	if !caps.Has(haptic.CapSine) {
		return nil, fmt.Errorf("自己診断: %w", &haptic.UnsupportedError{Kind: haptic.KindSine})
	}

	ts := w.settings.SelfTest
	ms := ts.Play.Milliseconds()
	edge := int(ms / 4)
	rumble := ts.Rumble * math.MaxUint16 / 100
	s := w.session

	periodic := func(slot haptic.Slot) func() error {
		return func() error {
			return w.playSlot(slot, ts.Play, func() error {
				return s.SetPeriod(slot, haptic.PeriodicParams{Duration: ms, Period: ts.Period, Magnitude: ts.Magnitude})
			})
		}
	}
	steps := []selfTestStep{
		{"spring", haptic.CapSpring, func() error {
			return w.playSlot(haptic.SlotSpring, ts.Play, func() error {
				return s.SetCondition(haptic.SlotSpring, haptic.ConditionParams{
					Duration:   ms,
					RightSat:   0xFFFF,
					LeftSat:    0xFFFF,
					RightCoeff: 0x2000,
					LeftCoeff:  0x2000,
					Deadband:   0x100,
					Centre:     0x1000,
				})
			})
		}},
		{"centre", haptic.CapConstant, w.Centre},
		{"constant right", haptic.CapConstant, func() error {
			return w.playSlot(haptic.SlotRight, ts.Play, func() error { return s.SetRight(ms, ts.Level) })
		}},
		{"constant left", haptic.CapConstant, func() error {
			return w.playSlot(haptic.SlotLeft, ts.Play, func() error { return s.SetLeft(ms, ts.Level) })
		}},
		{"constant envelope", haptic.CapConstant, func() error {
			return w.playSlot(haptic.SlotRight, ts.Play, func() error {
				return s.SetConstant(haptic.ConstantParams{
					Duration:  ms,
					Level:     ts.Level,
					Direction: haptic.Right,
					Envelope:  haptic.EnvelopeParams{AttackLength: edge, FadeLength: edge},
				})
			})
		}},
		{"ramp", haptic.CapRamp, func() error {
			return w.playSlot(haptic.SlotRampLeft, ts.Play, func() error {
				return s.SetRamp(haptic.RampParams{Duration: ms, End: ts.Magnitude, Direction: haptic.Left})
			})
		}},
		{"sine", haptic.CapSine, periodic(haptic.SlotSine)},
		{"triangle", haptic.CapTriangle, periodic(haptic.SlotTriangle)},
		{"sawtooth up", haptic.CapSawUp, periodic(haptic.SlotSawUp)},
		{"rumble", haptic.CapRumble, func() error {
			return w.playSlot(haptic.SlotRumble, ts.RumblePlay, func() error {
				return s.SetRumble(haptic.RumbleParams{Duration: ts.RumblePlay.Milliseconds(), Strong: rumble, Weak: rumble})
			})
		}},
	}

	results := make([]TestStep, 0, len(steps))
	var errs []error
	for _, st := range steps {
		res := TestStep{Name: st.name}
		if !caps.Has(st.need) {
			res.Skipped = true
			log.Printf("自己診断 %s: 非対応のため省略", st.name)
			results = append(results, res)
			continue
		}
		if err := st.run(); err != nil {
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			log.Printf("自己診断 %s: 失敗 %v", st.name, err)
		} else {
			res.OK = true
			log.Printf("自己診断 %s: OK", st.name)
		}
		w.publish(telemetry.Event{Type: telemetry.TypeSelfTest, OK: res.OK, Step: st.name, Error: res.Error})
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// playSlot は set で置いたエフェクトを d の間再生し、止めて破棄する
func (w *Wheel) playSlot(slot haptic.Slot, d time.Duration, set func() error) error {
	if err := set(); err != nil {
		return err
	}
	defer w.session.Destroy(slot)
	if err := w.session.Run(slot, 1); err != nil {
		return err
	}
	w.clock.Sleep(d)
	return w.session.Stop(slot)
}
