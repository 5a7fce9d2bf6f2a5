package wheel

import (
	"errors"
	"testing"
	"time"

	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/sim"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

type recorder struct {
	events []telemetry.Event
}

func (r *recorder) Publish(ev telemetry.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newSimWheel(t *testing.T, cfg sim.Config) (*Wheel, *sim.Wheel, *recorder) {
	t.Helper()
	clock := sim.NewClock()
	dev, err := sim.NewWheel(cfg, clock)
	if err != nil {
		t.Fatal(err)
	}
	settings := DefaultSettings()
	settings.Jitter.Seed = 7
	rec := &recorder{}
	w := New(haptic.Open(dev, 0), settings, WithClock(clock), WithPublisher(rec))
	return w, dev, rec
}

func calibratedSimWheel(t *testing.T) (*Wheel, *sim.Wheel, *recorder) {
	t.Helper()
	w, dev, rec := newSimWheel(t, sim.DefaultConfig())
	if err := w.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	return w, dev, rec
}

func TestCalibrateSimulatedWheel(t *testing.T) {
	w, dev, rec := calibratedSimWheel(t)
	cal := w.Calibration()
	lock := sim.DefaultConfig().Lock

	if !(cal.LeftLock < cal.Centre && cal.Centre < cal.RightLock) {
		t.Fatalf("lock order broken: %+v", cal)
	}
	if cal.LeftLock > -lock+10 || cal.RightLock < lock-10 {
		t.Fatalf("locks %d/%d not at the end stops ±%d", cal.LeftLock, cal.RightLock, lock)
	}
	if abs(cal.Centre) > 20 {
		t.Fatalf("centre = %d", cal.Centre)
	}
	if cal.Jitter > uint(2*sim.DefaultConfig().Noise) {
		t.Fatalf("jitter = %d exceeds sensor noise", cal.Jitter)
	}
	if !w.Calibrated() {
		t.Fatal("not calibrated")
	}
	if rec.count(telemetry.TypeCalibrated) != 1 {
		t.Fatalf("calibrated events = %d", rec.count(telemetry.TypeCalibrated))
	}

	before := dev.Stats()
	if err := w.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if dev.Stats() != before {
		t.Fatal("second Calibrate touched the device")
	}
}

func TestGotoAngleSimulatedWheel(t *testing.T) {
	w, dev, rec := calibratedSimWheel(t)

	for _, target := range []int{45, -120, -110, 200, 0} {
		err := w.GotoAngle(target)
		if err != nil && !errors.Is(err, ErrMismatch) {
			t.Fatalf("GotoAngle(%d): %v", target, err)
		}
		got, err := w.Angle()
		if err != nil {
			t.Fatal(err)
		}
		if got < target-2 || got > target+2 {
			t.Fatalf("GotoAngle(%d) stopped at %d", target, got)
		}
		if dev.NumPlaying() != 0 {
			t.Fatalf("GotoAngle(%d) left %d effects playing", target, dev.NumPlaying())
		}
	}
	if rec.count(telemetry.TypeSeek) == 0 {
		t.Fatal("no seek events published")
	}
}

func TestGotoAngleSpeedVariants(t *testing.T) {
	w, _, _ := calibratedSimWheel(t)
	for _, seek := range []func(int) error{w.GotoAngleSlow, w.GotoAngleFast, w.GotoAngleFull} {
		for _, target := range []int{150, -150} {
			if err := seek(target); err != nil && !errors.Is(err, ErrMismatch) {
				t.Fatalf("seek to %d: %v", target, err)
			}
			got, err := w.Angle()
			if err != nil {
				t.Fatal(err)
			}
			if got < target-15 || got > target+15 {
				t.Fatalf("seek to %d stopped at %d", target, got)
			}
		}
	}
}

func TestGotoAngleTimesOutWhenWheelCannotMove(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.MaxAccel = 1000
	w, dev, _ := newSimWheel(t, cfg)
	w.SetCalibration(Calibration{LeftLock: -30000, RightLock: 30000, Jitter: 6, State: Calibrated})

	err := w.GotoAngle(90)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if dev.NumPlaying() != 0 {
		t.Fatal("effects still playing after timeout")
	}
}

func TestCentreSimulatedWheel(t *testing.T) {
	w, dev, rec := calibratedSimWheel(t)
	if err := w.GotoAngle(-200); err != nil && !errors.Is(err, ErrMismatch) {
		t.Fatal(err)
	}
	if err := w.Centre(); err != nil {
		t.Fatal(err)
	}
	tol := DefaultSettings().Centre.Tolerance + sim.DefaultConfig().Noise
	if d := int(dev.Position()) - w.CentrePosition(); d < -tol || d > tol {
		t.Fatalf("centred %d away from centre", d)
	}
	if rec.count(telemetry.TypeCentred) == 0 {
		t.Fatal("no centred event")
	}
}

func TestCentreUncalibratedUsesRawZero(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Start = 6000
	w, dev, _ := newSimWheel(t, cfg)
	if err := w.Centre(); err != nil {
		t.Fatal(err)
	}
	tol := DefaultSettings().Centre.Tolerance + cfg.Noise
	if p := int(dev.Position()); p < -tol || p > tol {
		t.Fatalf("position %d after centring", p)
	}
}

func TestProfileSimulatedWheel(t *testing.T) {
	w, dev, rec := calibratedSimWheel(t)
	table, err := w.Profile()
	if err != nil {
		t.Fatal(err)
	}
	noise := 2 * sim.DefaultConfig().Noise
	for _, dir := range []haptic.Direction{haptic.Left, haptic.Right} {
		if table[dir][0] > noise {
			t.Errorf("%s level 0 moved %d", dir, table[dir][0])
		}
		if table[dir][haptic.MaxLevel] <= table[dir][4] {
			t.Errorf("%s: full force %d not faster than level 4 %d", dir, table[dir][haptic.MaxLevel], table[dir][4])
		}
		if got := w.ClosestEffectLevel(table[dir][16], dir); got < 16 {
			t.Errorf("%s: closest level for level 16 distance = %d", dir, got)
		}
	}
	wantReadings := 2 * (int(haptic.MaxLevel) + 1) * DefaultSettings().Profile.Samples
	if n := len(w.Readings()); n != wantReadings {
		t.Fatalf("readings = %d, want %d", n, wantReadings)
	}
	if rec.count(telemetry.TypeProfileLevel) != 2*(int(haptic.MaxLevel)+1) {
		t.Fatalf("profile events = %d", rec.count(telemetry.TypeProfileLevel))
	}
	if dev.NumPlaying() != 0 {
		t.Fatal("effects still playing after profile")
	}
}

func TestFindRangeOffsetGivesUp(t *testing.T) {
	w, _, rec := calibratedSimWheel(t)
	w.settings.Range.EndStopMargin = 29000
	w.settings.Range.MaxRetries = 1

	if _, err := w.FindRangeOffset(); !errors.Is(err, ErrEndStop) {
		t.Fatalf("err = %v, want ErrEndStop", err)
	}
	if rec.count(telemetry.TypeRangeOffset) != 1 {
		t.Fatal("no range offset event")
	}
}

func TestFindRangeOffsetKeepsAwayFromLock(t *testing.T) {
	w, _, _ := calibratedSimWheel(t)
	offset, err := w.FindRangeOffset()
	if err != nil {
		t.Fatal(err)
	}
	if offset%w.settings.Range.OffsetStep != 0 {
		t.Fatalf("offset %v is not a multiple of the step", offset)
	}
	if w.RangeOffset() != offset {
		t.Fatal("offset not stored")
	}
}

func shortSelfTest(w *Wheel) {
	w.settings.SelfTest.Play = 200 * time.Millisecond
	w.settings.SelfTest.RumblePlay = 100 * time.Millisecond
}

func TestSelfTestSimulatedWheel(t *testing.T) {
	w, dev, rec := newSimWheel(t, sim.DefaultConfig())
	shortSelfTest(w)

	steps, err := w.SelfTest()
	if err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	want := []string{
		"spring", "centre", "constant right", "constant left", "constant envelope",
		"ramp", "sine", "triangle", "sawtooth up", "rumble",
	}
	if len(steps) != len(want) {
		t.Fatalf("steps = %+v", steps)
	}
	for i, st := range steps {
		if st.Name != want[i] || !st.OK || st.Skipped || st.Error != "" {
			t.Errorf("step %d = %+v, want %q ok", i, st, want[i])
		}
	}
	if rec.count(telemetry.TypeSelfTest) != len(want) {
		t.Fatalf("self test events = %d", rec.count(telemetry.TypeSelfTest))
	}
	if w.Session().NumPlaying() != 0 {
		t.Fatalf("%d effects still playing", w.Session().NumPlaying())
	}
	for _, slot := range []haptic.Slot{haptic.SlotSpring, haptic.SlotRampLeft, haptic.SlotSine, haptic.SlotTriangle, haptic.SlotSawUp, haptic.SlotRumble} {
		if _, ok := w.Session().Handle(slot); ok {
			t.Errorf("%s still resident", slot)
		}
	}
	if s := dev.Stats(); s.Runs < len(want) {
		t.Fatalf("runs = %d", s.Runs)
	}
}

func TestSelfTestSkipsRumbleWithoutCapability(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Capabilities = []string{"constant", "sine", "ramp", "gain"}
	w, _, rec := newSimWheel(t, cfg)
	shortSelfTest(w)

	steps, err := w.SelfTest()
	if err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	skipped := map[string]bool{}
	for _, st := range steps {
		if st.Skipped {
			skipped[st.Name] = true
		} else if !st.OK {
			t.Errorf("step %+v failed", st)
		}
	}
	for _, name := range []string{"spring", "triangle", "sawtooth up", "rumble"} {
		if !skipped[name] {
			t.Errorf("%s not skipped", name)
		}
	}
	if skipped["sine"] || skipped["constant envelope"] {
		t.Fatalf("supported steps skipped: %v", skipped)
	}
	if n := rec.count(telemetry.TypeSelfTest); n != len(steps)-len(skipped) {
		t.Fatalf("self test events = %d", n)
	}
}

func TestSelfTestNeedsSine(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Capabilities = []string{"constant", "rumble"}
	w, dev, _ := newSimWheel(t, cfg)

	steps, err := w.SelfTest()
	var unsupported *haptic.UnsupportedError
	if !errors.Is(err, haptic.ErrUnsupported) || !errors.As(err, &unsupported) || unsupported.Kind != haptic.KindSine {
		t.Fatalf("SelfTest error = %v", err)
	}
	if steps != nil || dev.Stats().Uploads != 0 {
		t.Fatalf("steps = %v, uploads = %d", steps, dev.Stats().Uploads)
	}
}

func TestSelfTestContinuesAfterFailure(t *testing.T) {
	w, dev, _ := newSimWheel(t, sim.DefaultConfig())
	shortSelfTest(w)
	dev.FailRun = errors.New("run rejected")

	steps, err := w.SelfTest()
	if err == nil || !errors.Is(err, dev.FailRun) {
		t.Fatalf("SelfTest error = %v", err)
	}
	if len(steps) != 10 {
		t.Fatalf("steps = %+v", steps)
	}
	for _, st := range steps {
		// 静止したまま中心にあればセンタリングはパルスを出さずに終わる
		if st.Name == "centre" {
			continue
		}
		if st.OK || st.Error == "" {
			t.Errorf("step %+v should have failed", st)
		}
	}
	for _, slot := range []haptic.Slot{haptic.SlotSpring, haptic.SlotRampLeft, haptic.SlotSine, haptic.SlotRumble} {
		if _, ok := w.Session().Handle(slot); ok {
			t.Errorf("%s still resident", slot)
		}
	}
}
