package haptic

import (
	"fmt"
	"strings"
)

// Capabilities は接続中のデバイスが対応するエフェクトのビット集合
// セッション開始時に一度だけ問い合わせ、以後は変更しない
type Capabilities uint32

const (
	CapSine Capabilities = 1 << iota
	CapConstant
	CapLeftRight
	CapTriangle
	CapSawUp
	CapSawDown
	CapRamp
	CapSpring
	CapDamper
	CapInertia
	CapFriction
	CapCustom
	CapGain
	CapAutoCentre
	CapPause
	CapStatus
	CapRumble
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapSine, "sine"},
	{CapConstant, "constant"},
	{CapLeftRight, "leftright"},
	{CapTriangle, "triangle"},
	{CapSawUp, "sawtooth-up"},
	{CapSawDown, "sawtooth-down"},
	{CapRamp, "ramp"},
	{CapSpring, "spring"},
	{CapDamper, "damper"},
	{CapInertia, "inertia"},
	{CapFriction, "friction"},
	{CapCustom, "custom"},
	{CapGain, "gain"},
	{CapAutoCentre, "autocentre"},
	{CapPause, "pause"},
	{CapStatus, "status"},
	{CapRumble, "rumble"},
}

// Has は指定したすべての能力を持つかどうかを返す
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// Names は対応している能力の名前一覧を返す
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, cn := range capabilityNames {
		if c.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	return names
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ",")
}

// ParseCapabilities は能力名の一覧をビット集合に変換する
func ParseCapabilities(names []string) (Capabilities, error) {
	var c Capabilities
	for _, n := range names {
		found := false
		for _, cn := range capabilityNames {
			if strings.EqualFold(strings.TrimSpace(n), cn.name) {
				c |= cn.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", n)
		}
	}
	return c, nil
}
