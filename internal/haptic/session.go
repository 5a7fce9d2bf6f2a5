package haptic

import (
	"errors"
	"log"
	"time"
)

// GainUnset は SetGain が一度も呼ばれていないことを表す
const GainUnset = -1

type slotStatus int

const (
	slotUnset slotStatus = iota
	slotResident
	slotFailed
)

// slotEntry は1スロットの状態。resident のときだけ handle が有効
type slotEntry struct {
	status slotStatus
	handle Handle
}

// Session は1台のデバイスと、そのスロットごとのエフェクトを所有する
// Close ですべてのスロットを確実に解放する
type Session struct {
	dev        Device
	caps       Capabilities
	slots      [NumSlots]slotEntry
	gain       int
	maxGain    int
	hasMaxGain bool
	graceWait  time.Duration
	closed     bool
}

// Open はデバイスの能力を問い合わせてセッションを開始する
// graceWait は終了時にドライバへ与える猶予時間
func Open(dev Device, graceWait time.Duration) *Session {
	s := &Session{
		dev:       dev,
		caps:      dev.Capabilities(),
		gain:      GainUnset,
		graceWait: graceWait,
	}
	s.maxGain, s.hasMaxGain = dev.MaxGain()
	log.Printf("ハプティック能力: %s", s.caps)
	return s
}

// Capabilities はセッション開始時に取得した能力を返す
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Device は下位のデバイスを返す
func (s *Session) Device() Device {
	return s.dev
}

// Capacity は同時に置けるエフェクト数を返す。デバイスが報告しなければ ok は false
func (s *Session) Capacity() (int, bool) {
	c, ok := s.dev.(interface{ Capacity() int })
	if !ok {
		return 0, false
	}
	return c.Capacity(), true
}

// SetConstantForce は向きに対応するスロットへ一定力エフェクトを置く
func (s *Session) SetConstantForce(duration int64, level int, dir Direction) error {
	if !dir.Valid() {
		err := &ParamError{Param: ParamDirection, Value: int64(dir), Reason: "must be left or right"}
		log.Printf("エラー: (SetConstantForce) %v", err)
		return err
	}
	eff, err := NewConstant(s.caps, ConstantParams{Duration: duration, Level: level, Direction: dir})
	return s.install("SetConstantForce", ConstantSlot(dir), eff, err)
}

// SetLeft は左向きの一定力を設定する
func (s *Session) SetLeft(duration int64, level int) error {
	return s.SetConstantForce(duration, level, Left)
}

// SetRight は右向きの一定力を設定する
func (s *Session) SetRight(duration int64, level int) error {
	return s.SetConstantForce(duration, level, Right)
}

// SetConstant は包絡線や遅延を含めた一定力エフェクトを設定する
func (s *Session) SetConstant(p ConstantParams) error {
	if !p.Direction.Valid() {
		err := &ParamError{Param: ParamDirection, Value: int64(p.Direction), Reason: "must be left or right"}
		log.Printf("エラー: (SetConstant) %v", err)
		return err
	}
	eff, err := NewConstant(s.caps, p)
	return s.install("SetConstant", ConstantSlot(p.Direction), eff, err)
}

// SetPeriod は周期エフェクトのスロットへエフェクトを置く
func (s *Session) SetPeriod(slot Slot, p PeriodicParams) error {
	if err := s.checkSlot("SetPeriod", slot); err != nil {
		return err
	}
	eff, err := NewPeriodic(s.caps, slot.Kind(), p)
	return s.install("SetPeriod", slot, eff, err)
}

// SetCondition は条件エフェクトのスロットへエフェクトを置く
func (s *Session) SetCondition(slot Slot, p ConditionParams) error {
	if err := s.checkSlot("SetCondition", slot); err != nil {
		return err
	}
	eff, err := NewCondition(s.caps, slot.Kind(), p)
	return s.install("SetCondition", slot, eff, err)
}

// SetRamp はランプエフェクトを向きに対応するスロットへ置く
func (s *Session) SetRamp(p RampParams) error {
	if !p.Direction.Valid() {
		err := &ParamError{Param: ParamDirection, Value: int64(p.Direction), Reason: "must be left or right"}
		log.Printf("エラー: (SetRamp) %v", err)
		return err
	}
	eff, err := NewRamp(s.caps, p)
	return s.install("SetRamp", RampSlot(p.Direction), eff, err)
}

// SetRumble は振動エフェクトを置く
func (s *Session) SetRumble(p RumbleParams) error {
	eff, err := NewRumble(s.caps, p)
	return s.install("SetRumble", SlotRumble, eff, err)
}

// install は既存のエフェクトを破棄してから新しいエフェクトをアップロードする
// 検証に失敗した場合はスロットを空のまま返す
func (s *Session) install(op string, slot Slot, eff Effect, buildErr error) error {
	if s.closed {
		return ErrClosed
	}
	s.release(slot)

	if buildErr != nil {
		log.Printf("エラー: (%s) %s: %v", op, slot, buildErr)
		return buildErr
	}

	h, err := s.dev.Upload(slot, eff)
	if err != nil {
		s.slots[slot] = slotEntry{status: slotFailed}
		log.Printf("エラー: (%s) %s のアップロードに失敗しました: %v", op, slot, err)
		return &DeviceError{Op: "upload", Slot: slot, Err: err}
	}
	s.slots[slot] = slotEntry{status: slotResident, handle: h}
	return nil
}

// Run はスロットのエフェクトを iterations 回再生する
func (s *Session) Run(slot Slot, iterations int) error {
	if err := s.checkSlot("Run", slot); err != nil {
		return err
	}
	if err := ValidIterations(iterations); err != nil {
		log.Printf("エラー: (Run) %s: %v", slot, err)
		return err
	}
	h, ok := s.Handle(slot)
	if !ok {
		return &DeviceError{Op: "run", Slot: slot, Err: ErrNoEffect}
	}
	if err := s.dev.Run(h, iterations); err != nil {
		s.fail(slot)
		log.Printf("エラー: (Run) %s: %v", slot, err)
		return &DeviceError{Op: "run", Slot: slot, Err: err}
	}
	return nil
}

// Stop はスロットのエフェクトを停止する。エフェクトが無ければ何もしない
func (s *Session) Stop(slot Slot) error {
	if err := s.checkSlot("Stop", slot); err != nil {
		return err
	}
	h, ok := s.Handle(slot)
	if !ok {
		return nil
	}
	if err := s.dev.Stop(h); err != nil {
		s.fail(slot)
		log.Printf("エラー: (Stop) %s: %v", slot, err)
		return &DeviceError{Op: "stop", Slot: slot, Err: err}
	}
	return nil
}

// IsRunning はスロットのエフェクトが再生中かどうかを返す
func (s *Session) IsRunning(slot Slot) bool {
	h, ok := s.Handle(slot)
	return ok && s.dev.IsRunning(h)
}

// AnyConditionRunning は条件エフェクトのどれかが再生中かどうかを返す
func (s *Session) AnyConditionRunning() bool {
	for _, slot := range ConditionSlots {
		if s.IsRunning(slot) {
			return true
		}
	}
	return false
}

// Handle はスロットに置かれたエフェクトの識別子を返す
func (s *Session) Handle(slot Slot) (Handle, bool) {
	if !slot.Valid() {
		return 0, false
	}
	e := s.slots[slot]
	return e.handle, e.status == slotResident
}

// Failed はスロットが直前のドライバエラーで失敗状態かどうかを返す
func (s *Session) Failed(slot Slot) bool {
	return slot.Valid() && s.slots[slot].status == slotFailed
}

// Resident はエフェクトが置かれているスロットの数を返す
func (s *Session) Resident() int {
	n := 0
	for _, e := range s.slots {
		if e.status == slotResident {
			n++
		}
	}
	return n
}

// Destroy はスロットのエフェクトを停止・破棄して空にする
func (s *Session) Destroy(slot Slot) {
	if slot.Valid() {
		s.release(slot)
	}
}

// NumPlaying は再生中のエフェクト数を返す
func (s *Session) NumPlaying() int {
	return s.dev.NumPlaying()
}

// SetGain はゲインを設定する。最大ゲインが環境で指定されていればその割合に縮める
func (s *Session) SetGain(percent int) error {
	if err := ValidGain(percent); err != nil {
		log.Printf("エラー: (SetGain) %v", err)
		return err
	}
	if !s.caps.Has(CapGain) {
		return ErrUnsupported
	}
	applied := percent
	if s.hasMaxGain {
		applied = percent * s.maxGain / 100
	}
	if err := s.dev.SetGain(applied); err != nil {
		log.Printf("エラー: (SetGain) %v", err)
		return errors.Join(ErrDevice, err)
	}
	s.gain = percent
	return nil
}

// Gain は最後に設定したゲインを返す。未設定なら GainUnset
func (s *Session) Gain() int {
	return s.gain
}

// MaxGain は環境で指定された最大ゲインを返す
func (s *Session) MaxGain() (int, bool) {
	return s.maxGain, s.hasMaxGain
}

// SetAutoCentre はオートセンターの強さを設定する
func (s *Session) SetAutoCentre(percent int) error {
	if err := ValidGain(percent); err != nil {
		return err
	}
	ac, ok := s.dev.(AutoCentrer)
	if !ok || !s.caps.Has(CapAutoCentre) {
		return ErrUnsupported
	}
	if err := ac.SetAutoCentre(percent); err != nil {
		return errors.Join(ErrDevice, err)
	}
	return nil
}

// Close はすべてのスロットを解放し、猶予時間を置いてからデバイスを閉じる
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	for i := range s.slots {
		s.release(Slot(i))
	}
	s.closed = true
	time.Sleep(s.graceWait)
	return s.dev.Close()
}

func (s *Session) checkSlot(op string, slot Slot) error {
	if s.closed {
		return ErrClosed
	}
	if err := ValidSlot(slot); err != nil {
		log.Printf("エラー: (%s) %v", op, err)
		return err
	}
	return nil
}

// release はスロットのエフェクトを停止・破棄して空にする
func (s *Session) release(slot Slot) {
	e := s.slots[slot]
	if e.status == slotResident {
		if s.dev.IsRunning(e.handle) {
			_ = s.dev.Stop(e.handle)
		}
		s.dev.Destroy(e.handle)
	}
	s.slots[slot] = slotEntry{}
}

// fail はドライバエラー後にエフェクトを破棄し、スロットを失敗状態にする
func (s *Session) fail(slot Slot) {
	e := s.slots[slot]
	if e.status == slotResident {
		s.dev.Destroy(e.handle)
	}
	s.slots[slot] = slotEntry{status: slotFailed}
}
