package wheel

import (
	"errors"
	"testing"
)

func TestGotoAngleAlreadyThereIssuesNoCommands(t *testing.T) {
	w, dev, _ := newScriptedWheel(func(int) int { return 0 })
	w.SetCalibration(symmetric())

	if err := w.GotoAngle(0); err != nil {
		t.Fatal(err)
	}
	if dev.uploads != 0 || dev.runs != 0 {
		t.Fatalf("uploads=%d runs=%d, want none", dev.uploads, dev.runs)
	}
}

func TestGotoAngleRejectsOutOfRange(t *testing.T) {
	w, dev, _ := newScriptedWheel(func(int) int { return 0 })
	w.SetCalibration(symmetric())

	for _, a := range []int{451, -451, 900} {
		if err := w.GotoAngle(a); !errors.Is(err, ErrAngleRange) {
			t.Errorf("GotoAngle(%d) = %v, want ErrAngleRange", a, err)
		}
	}
	if dev.refreshes != 0 || dev.uploads != 0 {
		t.Fatal("out of range request touched the device")
	}
}

func TestGotoAngleNeedsCalibration(t *testing.T) {
	w, _, _ := newScriptedWheel(func(int) int { return 0 })
	if err := w.GotoAngle(10); !errors.Is(err, ErrNotCalibrated) {
		t.Fatalf("err = %v, want ErrNotCalibrated", err)
	}
}

func TestNearBand(t *testing.T) {
	w, _, _ := newScriptedWheel(func(int) int { return 0 })
	s := DefaultSettings().Seek
	tests := []struct {
		level, want int
	}{
		{s.SlowLevel, s.SlowBand},
		{s.SlowLevel - 1, s.SlowBand},
		{s.DefaultLevel, s.DefaultBand},
		{s.FastLevel, s.FastBand},
		{s.FullLevel, s.FastBand},
	}
	for _, tt := range tests {
		if got := w.nearBand(tt.level); got != tt.want {
			t.Errorf("nearBand(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestMismatchErrorWrapsSentinel(t *testing.T) {
	var err error = &MismatchError{Target: 30, Final: 31}
	if !errors.Is(err, ErrMismatch) {
		t.Fatal("MismatchError does not wrap ErrMismatch")
	}
	var me *MismatchError
	if !errors.As(err, &me) || me.Final != 31 {
		t.Fatalf("errors.As failed: %v", err)
	}
}
