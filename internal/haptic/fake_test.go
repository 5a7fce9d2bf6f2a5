package haptic

import "fmt"

// fakeDevice は呼び出しを記録するだけのデバイス
type fakeDevice struct {
	caps    Capabilities
	next    Handle
	live    map[Handle]Effect
	running map[Handle]bool

	uploads   []Slot
	runs      []Handle
	stops     []Handle
	destroyed []Handle
	gains     []int
	closed    int

	uploadErr error
	runErr    error
	maxGain   int
	hasMax    bool
}

func newFakeDevice(caps Capabilities) *fakeDevice {
	return &fakeDevice{
		caps:    caps,
		next:    1,
		live:    map[Handle]Effect{},
		running: map[Handle]bool{},
	}
}

func (f *fakeDevice) Capabilities() Capabilities { return f.caps }

func (f *fakeDevice) Upload(slot Slot, eff Effect) (Handle, error) {
	f.uploads = append(f.uploads, slot)
	if f.uploadErr != nil {
		return 0, f.uploadErr
	}
	h := f.next
	f.next++
	f.live[h] = eff
	return h, nil
}

func (f *fakeDevice) Run(h Handle, iterations int) error {
	if _, ok := f.live[h]; !ok {
		return fmt.Errorf("run of unknown handle %d", h)
	}
	if f.runErr != nil {
		return f.runErr
	}
	f.runs = append(f.runs, h)
	f.running[h] = true
	return nil
}

func (f *fakeDevice) Stop(h Handle) error {
	f.stops = append(f.stops, h)
	f.running[h] = false
	return nil
}

func (f *fakeDevice) Destroy(h Handle) {
	f.destroyed = append(f.destroyed, h)
	delete(f.live, h)
	delete(f.running, h)
}

func (f *fakeDevice) IsRunning(h Handle) bool { return f.running[h] }

func (f *fakeDevice) SetGain(percent int) error {
	f.gains = append(f.gains, percent)
	return nil
}

func (f *fakeDevice) MaxGain() (int, bool) { return f.maxGain, f.hasMax }
func (f *fakeDevice) Refresh() error       { return nil }
func (f *fakeDevice) Axis() int            { return 0 }

func (f *fakeDevice) NumPlaying() int {
	n := 0
	for _, r := range f.running {
		if r {
			n++
		}
	}
	return n
}

func (f *fakeDevice) Close() error {
	f.closed++
	return nil
}
