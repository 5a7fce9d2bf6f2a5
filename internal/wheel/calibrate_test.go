package wheel

import (
	"errors"
	"testing"

	"github.com/char5742/wheel-ffb/internal/haptic"
)

// travellingWheel は一定力が掛かっている間、読み込みごとに step ずつ ±limit まで動く
func travellingWheel(step, limit int) (*Wheel, *scriptDevice) {
	pos := 0
	var dev *scriptDevice
	w, dev, _ := newScriptedWheel(func(int) int {
		if dir, ok := dev.pushing(); ok {
			if dir == haptic.Left {
				pos = max(pos-step, -limit)
			} else {
				pos = min(pos+step, limit)
			}
		}
		return pos
	})
	return w, dev
}

func TestFindLockThenComputeCentre(t *testing.T) {
	w, dev := travellingWheel(700, 16000)

	left, err := w.FindLock(haptic.Left)
	if err != nil {
		t.Fatal(err)
	}
	right, err := w.FindLock(haptic.Right)
	if err != nil {
		t.Fatal(err)
	}
	centre, err := w.ComputeCentre()
	if err != nil {
		t.Fatal(err)
	}
	if !(left < centre && centre < right) {
		t.Fatalf("left=%d centre=%d right=%d", left, centre, right)
	}
	if left != -16000 || right != 16000 || centre != 0 {
		t.Fatalf("left=%d centre=%d right=%d, want -16000/0/16000", left, centre, right)
	}
	if w.Calibration().State != Centred {
		t.Fatalf("state = %s, want centred", w.Calibration().State)
	}
	if dev.NumPlaying() != 0 {
		t.Fatal("lock search left an effect playing")
	}
}

func TestFindLockUsesStrongLevelAgainstConditions(t *testing.T) {
	w, dev := travellingWheel(700, 16000)
	s := w.Session()
	if err := s.SetCondition(haptic.SlotDamper, haptic.MaxCondition(haptic.Infinity)); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(haptic.SlotDamper, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := w.FindLock(haptic.Right); err != nil {
		t.Fatal(err)
	}
	h, _ := s.Handle(haptic.SlotRight)
	if got := dev.effects[h].Level; int(got) != DefaultSettings().Lock.StrongLevel {
		t.Fatalf("level = %d, want strong level", got)
	}
}

func TestFindLockAbortsOnCentreReading(t *testing.T) {
	w, dev, _ := newScriptedWheel(func(int) int { return 0 })
	_, err := w.FindLock(haptic.Left)
	if !errors.Is(err, ErrCentreImpossible) {
		t.Fatalf("err = %v, want ErrCentreImpossible", err)
	}
	if dev.NumPlaying() != 0 {
		t.Fatal("effect still playing after abort")
	}
	if w.Calibration().State != Uncalibrated {
		t.Fatalf("state = %s", w.Calibration().State)
	}
}

func TestFindLockChecksFirstReading(t *testing.T) {
	w, dev, _ := newScriptedWheel(func(n int) int {
		if n == 0 {
			return 0
		}
		return -16000
	})
	if _, err := w.FindLock(haptic.Left); !errors.Is(err, ErrCentreImpossible) {
		t.Fatalf("err = %v, want ErrCentreImpossible", err)
	}
	if dev.NumPlaying() != 0 {
		t.Fatal("effect still playing after abort")
	}
	if w.Calibration().LeftLock != 0 {
		t.Fatalf("left lock = %d recorded", w.Calibration().LeftLock)
	}
}

func TestComputeCentreNeedsBothLocks(t *testing.T) {
	w, _ := travellingWheel(700, 16000)
	if _, err := w.FindLock(haptic.Left); err != nil {
		t.Fatal(err)
	}
	if _, err := w.ComputeCentre(); !errors.Is(err, ErrNotCalibrated) {
		t.Fatalf("err = %v, want ErrNotCalibrated", err)
	}
}

func TestComputeCentreRejectsInvertedLocks(t *testing.T) {
	w, _, _ := newScriptedWheel(func(int) int { return 0 })
	w.SetCalibration(Calibration{LeftLock: 16000, RightLock: -16000, State: RightLocked})
	if _, err := w.ComputeCentre(); !errors.Is(err, ErrLockOrder) {
		t.Fatalf("err = %v, want ErrLockOrder", err)
	}
}

func TestFindJitterKeepsLargestSpread(t *testing.T) {
	// 角度ごとに 角度1回 + 静止判定2回 + サンプル4回 を読む
	amplitudes := []int{2, 15, 3}
	w, _, _ := newScriptedWheel(func(n int) int {
		block, off := n/7, n%7
		if block >= len(amplitudes) {
			return 0
		}
		a := amplitudes[block]
		switch off {
		case 4:
			return a
		case 5:
			return -a
		}
		return 0
	})
	w.settings.Jitter.AngleLimit = 0
	w.settings.Jitter.Angles = len(amplitudes)
	w.settings.Jitter.Samples = 4
	w.settings.Stationary.Samples = 2
	w.SetCalibration(symmetric())

	jitter, err := w.FindJitter()
	if err != nil {
		t.Fatal(err)
	}
	if jitter != 30 || w.Jitter() != 30 {
		t.Fatalf("jitter = %d (stored %d), want 30", jitter, w.Jitter())
	}
}

func TestCalibrateReportsUnsupportedDevice(t *testing.T) {
	dev := newScriptDevice(haptic.CapDamper, func(int) int { return 500 })
	w := New(haptic.Open(dev, 0), DefaultSettings())
	err := w.Calibrate()
	if !errors.Is(err, haptic.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if w.Calibrated() {
		t.Fatal("calibrated without constant force")
	}
	if dev.uploads != 0 {
		t.Fatal("unsupported effect reached the device")
	}
}
