package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/char5742/wheel-ffb/internal/consts"
	"github.com/char5742/wheel-ffb/internal/event"
	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/types"
	"github.com/char5742/wheel-ffb/internal/utils"
)

// ErrEffectMemoryFull はデバイスのエフェクト領域が埋まっている
var ErrEffectMemoryFull = errors.New("effect memory full")

// ffBits と能力ビットの対応。周期エフェクトは FF_PERIODIC と波形の両方が必要
var ffCapabilities = []struct {
	bits []int
	cap  haptic.Capabilities
}{
	{[]int{event.FFConstant}, haptic.CapConstant},
	{[]int{event.FFPeriodic, event.FFSine}, haptic.CapSine},
	{[]int{event.FFPeriodic, event.FFTriangle}, haptic.CapTriangle},
	{[]int{event.FFPeriodic, event.FFSawUp}, haptic.CapSawUp},
	{[]int{event.FFPeriodic, event.FFSawDown}, haptic.CapSawDown},
	{[]int{event.FFPeriodic, event.FFCustom}, haptic.CapCustom},
	{[]int{event.FFRamp}, haptic.CapRamp},
	{[]int{event.FFSpring}, haptic.CapSpring},
	{[]int{event.FFDamper}, haptic.CapDamper},
	{[]int{event.FFInertia}, haptic.CapInertia},
	{[]int{event.FFFriction}, haptic.CapFriction},
	{[]int{event.FFGain}, haptic.CapGain},
	{[]int{event.FFAutocenter}, haptic.CapAutoCentre},
	{[]int{event.FFRumble}, haptic.CapRumble},
}

// capabilitiesFromBits は EVIOCGBIT(EV_FF) のビットマップを能力ビットに変換する
func capabilitiesFromBits(bits []byte) haptic.Capabilities {
	var caps haptic.Capabilities
	for _, fc := range ffCapabilities {
		ok := true
		for _, b := range fc.bits {
			if !utils.TestBit(bits, b) {
				ok = false
				break
			}
		}
		if ok {
			caps |= fc.cap
		}
	}
	return caps
}

// playback は再生中のエフェクトの終了予定。evdev は再生状態を返さないため自前で追う
type playback struct {
	replay   types.FFReplay
	running  bool
	infinite bool
	until    time.Time
}

// EvdevWheel は /dev/input/eventN 上のフォースフィードバック付きハンドル
type EvdevWheel struct {
	file     *os.File
	path     string
	caps     haptic.Capabilities
	capacity int
	abs      types.AbsInfo
	axis     int
	grabbed  bool
	effects  map[haptic.Handle]*playback
	now      func() time.Time
}

// OpenWheel は指定されたパスのハンドルを開き、能力とエフェクト数を問い合わせる
func OpenWheel(path string) (*EvdevWheel, error) {
	f, err := os.OpenFile(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	w := &EvdevWheel{
		file:    f,
		path:    path,
		effects: make(map[haptic.Handle]*playback),
		now:     time.Now,
	}

	bits := make([]byte, consts.FFCnt/8)
	if err := utils.IOCtlPtr(f, consts.EVIOCGBIT(event.FF, len(bits)), unsafe.Pointer(&bits[0])); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("フォースフィードバック能力の取得に失敗しました: %w", err)
	}
	w.caps = capabilitiesFromBits(bits)
	if w.caps == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%s はフォースフィードバックに対応していません: %w", path, haptic.ErrUnsupported)
	}

	var n int32
	if err := utils.IOCtlPtr(f, consts.EVIOCGEFFECTS, unsafe.Pointer(&n)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("エフェクト数の取得に失敗しました: %w", err)
	}
	w.capacity = int(n)

	if err := w.Refresh(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *EvdevWheel) Path() string {
	return w.path
}

func (w *EvdevWheel) Capabilities() haptic.Capabilities {
	return w.caps
}

// Capacity は同時にアップロードできるエフェクト数を返す
func (w *EvdevWheel) Capacity() int {
	return w.capacity
}

func (w *EvdevWheel) Upload(slot haptic.Slot, eff haptic.Effect) (haptic.Handle, error) {
	if w.capacity > 0 && len(w.effects) >= w.capacity {
		return 0, fmt.Errorf("%s: %w (%d)", slot, ErrEffectMemoryFull, w.capacity)
	}
	ff, err := encodeEffect(eff)
	if err != nil {
		return 0, err
	}
	ff.ID = -1
	if err := utils.IOCtlPtr(w.file, consts.EVIOCSFF, unsafe.Pointer(&ff)); err != nil {
		return 0, fmt.Errorf("エフェクトのアップロードに失敗しました: %w", err)
	}
	h := haptic.Handle(ff.ID)
	w.effects[h] = &playback{replay: ff.Replay, infinite: ff.Replay.Length == 0}
	return h, nil
}

func (w *EvdevWheel) Run(h haptic.Handle, iterations int) error {
	p, ok := w.effects[h]
	if !ok {
		return fmt.Errorf("エフェクト %d: %w", h, haptic.ErrNoEffect)
	}
	if err := w.writeFF(uint16(h), int32(min(iterations, math.MaxInt32))); err != nil {
		return err
	}
	p.running = true
	length := time.Duration(p.replay.Length) * time.Millisecond * time.Duration(iterations)
	p.until = w.now().Add(time.Duration(p.replay.Delay)*time.Millisecond + length)
	return nil
}

func (w *EvdevWheel) Stop(h haptic.Handle) error {
	p, ok := w.effects[h]
	if !ok {
		return fmt.Errorf("エフェクト %d: %w", h, haptic.ErrNoEffect)
	}
	if err := w.writeFF(uint16(h), 0); err != nil {
		return err
	}
	p.running = false
	return nil
}

func (w *EvdevWheel) Destroy(h haptic.Handle) {
	if _, ok := w.effects[h]; !ok {
		return
	}
	delete(w.effects, h)
	_ = utils.IOCtl(w.file, consts.EVIOCRMFF, uintptr(h))
}

func (w *EvdevWheel) IsRunning(h haptic.Handle) bool {
	p, ok := w.effects[h]
	return ok && p.playing(w.now())
}

func (p *playback) playing(t time.Time) bool {
	return p.running && (p.infinite || t.Before(p.until))
}

// SetGain は FF_GAIN を書き込む
func (w *EvdevWheel) SetGain(percent int) error {
	return w.writeFF(event.FFGain, percentToFF(percent))
}

// SetAutoCentre は FF_AUTOCENTER を書き込む。0 で無効
func (w *EvdevWheel) SetAutoCentre(percent int) error {
	return w.writeFF(event.FFAutocenter, percentToFF(percent))
}

func (w *EvdevWheel) MaxGain() (int, bool) {
	return haptic.MaxGainEnv()
}

// Refresh は EVIOCGABS(ABS_X) で軸の状態を読み直す
func (w *EvdevWheel) Refresh() error {
	if err := utils.IOCtlPtr(w.file, consts.EVIOCGABS(event.AbsX), unsafe.Pointer(&w.abs)); err != nil {
		return fmt.Errorf("軸の読み込みに失敗しました: %w", err)
	}
	w.axis = normaliseAxis(w.abs)
	return nil
}

func (w *EvdevWheel) Axis() int {
	return w.axis
}

func (w *EvdevWheel) NumPlaying() int {
	now := w.now()
	n := 0
	for _, p := range w.effects {
		if p.playing(now) {
			n++
		}
	}
	return n
}

// Grab は他のプロセスへの入力を止めてハンドルを専有する
func (w *EvdevWheel) Grab() error {
	if w.grabbed {
		return nil
	}
	if err := utils.IOCtl(w.file, consts.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	w.grabbed = true
	return nil
}

func (w *EvdevWheel) Release() error {
	if !w.grabbed {
		return nil
	}
	if err := utils.IOCtl(w.file, consts.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	w.grabbed = false
	return nil
}

func (w *EvdevWheel) Close() error {
	for h := range w.effects {
		w.Destroy(h)
	}
	_ = w.Release()
	return w.file.Close()
}

// writeFF は EV_FF イベントを1つ書き込む
func (w *EvdevWheel) writeFF(code uint16, value int32) error {
	buf := new(bytes.Buffer)
	ev := types.Event{Type: event.FF, Code: code, Value: value}
	if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
		return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %w", err)
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}

// encodeEffect はエフェクト記述子をカーネルの ff_effect に変換する
// replay.length は 0x7fff ミリ秒までなので、それより長い有限のエフェクトは拒否する
func encodeEffect(eff haptic.Effect) (types.FFEffect, error) {
	if !eff.Infinite() && eff.Length > consts.MaxLength {
		return types.FFEffect{}, &haptic.ParamError{
			Param:  haptic.ParamDuration,
			Value:  int64(eff.Length),
			Reason: "longer than evdev replay length",
		}
	}
	ff := types.FFEffect{
		Direction: event.DirLeft,
		Replay: types.FFReplay{
			Length: replayLength(eff),
			Delay:  eff.Delay,
		},
	}
	if eff.Direction == haptic.Right {
		ff.Direction = event.DirRight
	}
	env := types.FFEnvelope{
		AttackLength: eff.Envelope.AttackLength,
		AttackLevel:  eff.Envelope.AttackLevel,
		FadeLength:   eff.Envelope.FadeLength,
		FadeLevel:    eff.Envelope.FadeLevel,
	}

	var union any
	switch {
	case eff.Kind == haptic.KindConstant:
		ff.Type = event.FFConstant
		// 0..65535 を符号付きの 0..32767 へ
		union = types.FFConstantEffect{Level: int16(eff.Level >> 1), Envelope: env}
	case eff.Kind == haptic.KindRamp:
		ff.Type = event.FFRamp
		union = types.FFRampEffect{StartLevel: eff.Ramp.Start, EndLevel: eff.Ramp.End, Envelope: env}
	case eff.Kind.IsPeriodic():
		ff.Type = event.FFPeriodic
		union = types.FFPeriodicEffect{
			Waveform:  waveform(eff.Kind),
			Period:    eff.Periodic.Period,
			Magnitude: eff.Periodic.Magnitude,
			Offset:    eff.Periodic.Offset,
			Phase:     eff.Periodic.Phase,
			Envelope:  env,
		}
	case eff.Kind == haptic.KindRumble:
		ff.Type = event.FFRumble
		union = types.FFRumbleEffect{StrongMagnitude: eff.Rumble.Strong, WeakMagnitude: eff.Rumble.Weak}
	case eff.Kind.IsCondition():
		ff.Type = conditionType(eff.Kind)
		c := types.FFConditionEffect{
			RightSaturation: eff.Condition.RightSat,
			LeftSaturation:  eff.Condition.LeftSat,
			RightCoeff:      eff.Condition.RightCoeff,
			LeftCoeff:       eff.Condition.LeftCoeff,
			Deadband:        eff.Condition.Deadband,
			Center:          eff.Condition.Centre,
		}
		// ハンドルは X 軸のみだが、2軸分とも同じ値を入れておく
		union = [2]types.FFConditionEffect{c, c}
	default:
		return ff, fmt.Errorf("%s: %w", eff.Kind, haptic.ErrUnsupported)
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, union); err != nil {
		return ff, fmt.Errorf("エフェクトをバッファに書き込むのに失敗しました: %w", err)
	}
	copy(ff.Union[:], buf.Bytes())
	return ff, nil
}

// replayLength は長さをカーネルの replay.length に変換する。無期限は 0
func replayLength(eff haptic.Effect) uint16 {
	if eff.Infinite() {
		return 0
	}
	return uint16(eff.Length)
}

func waveform(k haptic.Kind) uint16 {
	switch k {
	case haptic.KindTriangle:
		return event.FFTriangle
	case haptic.KindSawUp:
		return event.FFSawUp
	case haptic.KindSawDown:
		return event.FFSawDown
	default:
		return event.FFSine
	}
}

func conditionType(k haptic.Kind) uint16 {
	switch k {
	case haptic.KindDamper:
		return event.FFDamper
	case haptic.KindInertia:
		return event.FFInertia
	case haptic.KindFriction:
		return event.FFFriction
	default:
		return event.FFSpring
	}
}

// percentToFF はパーセントを FF_GAIN / FF_AUTOCENTER の 0..0xFFFF に変換する
func percentToFF(percent int) int32 {
	percent = max(0, min(100, percent))
	return int32(math.MaxUint16 * percent / 100)
}

// normaliseAxis は軸の値を -32768..32767 に揃える
func normaliseAxis(abs types.AbsInfo) int {
	span := int64(abs.Maximum) - int64(abs.Minimum)
	if span <= 0 {
		return int(abs.Value)
	}
	outSpan := int64(consts.AxisMaxOut - consts.AxisMinOut)
	v := (int64(abs.Value)-int64(abs.Minimum))*outSpan/span + consts.AxisMinOut
	return int(max(consts.AxisMinOut, min(consts.AxisMaxOut, v)))
}
