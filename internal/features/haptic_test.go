package features

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/char5742/wheel-ffb/internal/event"
	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/types"
	"github.com/char5742/wheel-ffb/internal/wheel"
)

func setBits(bits ...int) []byte {
	buf := make([]byte, 16)
	for _, b := range bits {
		buf[b/8] |= 1 << (b % 8)
	}
	return buf
}

func TestFFEffectLayout(t *testing.T) {
	if n := binary.Size(types.FFEffect{}); n != 48 {
		t.Fatalf("ff_effect size = %d, want 48", n)
	}
}

func TestCapabilitiesFromBits(t *testing.T) {
	tests := []struct {
		name string
		bits []byte
		want haptic.Capabilities
	}{
		{"empty", setBits(), 0},
		{"constant and gain", setBits(event.FFConstant, event.FFGain), haptic.CapConstant | haptic.CapGain},
		{"waveform without periodic", setBits(event.FFSine), 0},
		{"periodic sine", setBits(event.FFPeriodic, event.FFSine), haptic.CapSine},
		{"conditions", setBits(event.FFSpring, event.FFDamper, event.FFFriction, event.FFInertia),
			haptic.CapSpring | haptic.CapDamper | haptic.CapFriction | haptic.CapInertia},
		{"autocenter", setBits(event.FFAutocenter), haptic.CapAutoCentre},
		{"rumble", setBits(event.FFRumble), haptic.CapRumble},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := capabilitiesFromBits(tt.bits); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeConstantEffect(t *testing.T) {
	ff, err := encodeEffect(haptic.Effect{
		Kind:      haptic.KindConstant,
		Direction: haptic.Right,
		Length:    250,
		Delay:     5,
		Level:     20000,
		Envelope:  haptic.Envelope{AttackLength: 10, FadeLength: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ff.Type != event.FFConstant || ff.Direction != event.DirRight {
		t.Fatalf("type/direction = %#x/%#x", ff.Type, ff.Direction)
	}
	if ff.Replay.Length != 250 || ff.Replay.Delay != 5 {
		t.Fatalf("replay = %+v", ff.Replay)
	}
	if level := int16(binary.LittleEndian.Uint16(ff.Union[0:2])); level != 10000 {
		t.Fatalf("level = %d, want 10000", level)
	}
	if attack := binary.LittleEndian.Uint16(ff.Union[2:4]); attack != 10 {
		t.Fatalf("attack length = %d", attack)
	}
	if fade := binary.LittleEndian.Uint16(ff.Union[6:8]); fade != 20 {
		t.Fatalf("fade length = %d", fade)
	}
}

func TestEncodeReplayLength(t *testing.T) {
	tests := []struct {
		length uint32
		want   uint16
	}{
		{uint32(haptic.Infinity), 0},
		{100, 100},
		{0x7fff, 0x7fff},
	}
	for _, tt := range tests {
		ff, err := encodeEffect(haptic.Effect{Kind: haptic.KindConstant, Length: tt.length})
		if err != nil {
			t.Fatal(err)
		}
		if ff.Replay.Length != tt.want {
			t.Errorf("length %d encoded as %d, want %d", tt.length, ff.Replay.Length, tt.want)
		}
	}
}

func TestEncodeRejectsLengthBeyondReplayLimit(t *testing.T) {
	_, err := encodeEffect(haptic.Effect{Kind: haptic.KindConstant, Length: 100000})
	if !errors.Is(err, haptic.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	var perr *haptic.ParamError
	if !errors.As(err, &perr) || perr.Param != haptic.ParamDuration {
		t.Fatalf("err = %v, want duration error", err)
	}
}

func TestEncodeDefaultLevelsReachKernelRange(t *testing.T) {
	s := wheel.DefaultSettings()
	tests := []struct {
		name  string
		level int
		min   int16
	}{
		{"full", s.Seek.FullLevel, 32000},
		{"fast", s.Seek.FastLevel, 19000},
		{"centre", s.Centre.Level, 9500},
		{"lock", s.Lock.SafeLevel, 7500},
	}
	for _, tt := range tests {
		ff, err := encodeEffect(haptic.Effect{Kind: haptic.KindConstant, Length: 100, Level: uint16(tt.level)})
		if err != nil {
			t.Fatal(err)
		}
		if got := int16(binary.LittleEndian.Uint16(ff.Union[0:2])); got < tt.min {
			t.Errorf("%s: level %d encoded as %d, want at least %d", tt.name, tt.level, got, tt.min)
		}
	}
	ff, _ := encodeEffect(haptic.Effect{Kind: haptic.KindConstant, Length: 100, Level: 0xFFFF})
	if got := int16(binary.LittleEndian.Uint16(ff.Union[0:2])); got != 32767 {
		t.Fatalf("max level encoded as %d, want 32767", got)
	}
}

func TestEncodeRumble(t *testing.T) {
	ff, err := encodeEffect(haptic.Effect{
		Kind:   haptic.KindRumble,
		Length: 2000,
		Rumble: haptic.Rumble{Strong: 0x8000, Weak: 0x4000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ff.Type != event.FFRumble || ff.Replay.Length != 2000 {
		t.Fatalf("type/length = %#x/%d", ff.Type, ff.Replay.Length)
	}
	if strong := binary.LittleEndian.Uint16(ff.Union[0:2]); strong != 0x8000 {
		t.Fatalf("strong = %#x", strong)
	}
	if weak := binary.LittleEndian.Uint16(ff.Union[2:4]); weak != 0x4000 {
		t.Fatalf("weak = %#x", weak)
	}
}

func TestEncodeConditionFillsBothAxes(t *testing.T) {
	ff, err := encodeEffect(haptic.Effect{
		Kind:      haptic.KindDamper,
		Length:    uint32(haptic.Infinity),
		Condition: haptic.Condition{RightSat: 0xFFFF, LeftSat: 0xFFFF, RightCoeff: 32767, LeftCoeff: -100, Centre: -5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ff.Type != event.FFDamper {
		t.Fatalf("type = %#x", ff.Type)
	}
	for axis := 0; axis < 2; axis++ {
		b := ff.Union[axis*12:]
		if coeff := int16(binary.LittleEndian.Uint16(b[4:6])); coeff != 32767 {
			t.Errorf("axis %d right coeff = %d", axis, coeff)
		}
		if coeff := int16(binary.LittleEndian.Uint16(b[6:8])); coeff != -100 {
			t.Errorf("axis %d left coeff = %d", axis, coeff)
		}
		if centre := int16(binary.LittleEndian.Uint16(b[10:12])); centre != -5 {
			t.Errorf("axis %d centre = %d", axis, centre)
		}
	}
}

func TestEncodePeriodicWaveform(t *testing.T) {
	ff, err := encodeEffect(haptic.Effect{
		Kind:     haptic.KindTriangle,
		Length:   1000,
		Periodic: haptic.Periodic{Period: 50, Magnitude: 3000, Phase: 9000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ff.Type != event.FFPeriodic {
		t.Fatalf("type = %#x", ff.Type)
	}
	if wf := binary.LittleEndian.Uint16(ff.Union[0:2]); wf != event.FFTriangle {
		t.Fatalf("waveform = %#x", wf)
	}
	if period := binary.LittleEndian.Uint16(ff.Union[2:4]); period != 50 {
		t.Fatalf("period = %d", period)
	}
	if phase := binary.LittleEndian.Uint16(ff.Union[8:10]); phase != 9000 {
		t.Fatalf("phase = %d", phase)
	}
}

func TestEncodeRejectsInvalidKind(t *testing.T) {
	if _, err := encodeEffect(haptic.Effect{}); !errors.Is(err, haptic.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestPercentToFF(t *testing.T) {
	for percent, want := range map[int]int32{-5: 0, 0: 0, 50: 32767, 100: 65535, 120: 65535} {
		if got := percentToFF(percent); got != want {
			t.Errorf("percentToFF(%d) = %d, want %d", percent, got, want)
		}
	}
}

func TestNormaliseAxis(t *testing.T) {
	tests := []struct {
		abs  types.AbsInfo
		want int
	}{
		{types.AbsInfo{Value: 0, Minimum: 0, Maximum: 65535}, -32768},
		{types.AbsInfo{Value: 65535, Minimum: 0, Maximum: 65535}, 32767},
		{types.AbsInfo{Value: 32768, Minimum: 0, Maximum: 65535}, 0},
		{types.AbsInfo{Value: -32768, Minimum: -32768, Maximum: 32767}, -32768},
		{types.AbsInfo{Value: 123}, 123},
	}
	for _, tt := range tests {
		if got := normaliseAxis(tt.abs); got != tt.want {
			t.Errorf("normaliseAxis(%+v) = %d, want %d", tt.abs, got, tt.want)
		}
	}
}

func TestPlaybackTracksReplayLength(t *testing.T) {
	start := time.Unix(100, 0)
	p := &playback{running: true, until: start.Add(200 * time.Millisecond)}
	if !p.playing(start.Add(199 * time.Millisecond)) {
		t.Fatal("should still be playing")
	}
	if p.playing(start.Add(200 * time.Millisecond)) {
		t.Fatal("should have finished")
	}
	p.infinite = true
	if !p.playing(start.Add(time.Hour)) {
		t.Fatal("infinite effect finished")
	}
	p.running = false
	if p.playing(start) {
		t.Fatal("stopped effect reported playing")
	}
}
