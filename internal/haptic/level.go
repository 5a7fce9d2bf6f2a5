package haptic

import (
	"fmt"
	"math"
)

// Level はプロファイルで使う離散的な力の段階 (0..MaxLevel)
type Level uint8

const (
	MaxLevel  Level = 32
	LevelStep       = 2048
)

// Levels は 0..MaxLevel のすべての段階を返す
func Levels() []Level {
	levels := make([]Level, 0, MaxLevel+1)
	for l := Level(0); l <= MaxLevel; l++ {
		levels = append(levels, l)
	}
	return levels
}

// ParseLevel は整数を範囲内の段階に変換する
func ParseLevel(n int) (Level, error) {
	if n < 0 || n > int(MaxLevel) {
		return 0, fmt.Errorf("level %d: %w", n, ErrOutOfRange)
	}
	return Level(n), nil
}

// Force はゲインを考慮しない生のエフェクト強度を返す
func (l Level) Force() int {
	f := int(l) * LevelStep
	if f > math.MaxUint16 {
		return math.MaxUint16
	}
	return f
}

// ConvertLevelToForce は現在のゲインで実際に出力される力を返す
func (s *Session) ConvertLevelToForce(l Level) int {
	if l > MaxLevel {
		l = MaxLevel
	}
	return int(math.Round(float64(l.Force()) * s.effectiveGain() / 100))
}

// ConvertForceToLevel は出力したい力に最も近い段階を返す
func (s *Session) ConvertForceToLevel(force int) Level {
	g := s.effectiveGain()
	if g <= 0 || force <= 0 {
		return 0
	}
	raw := float64(force) * 100 / g
	l := math.Round(raw / LevelStep)
	if l > float64(MaxLevel) {
		return MaxLevel
	}
	return Level(l)
}

// effectiveGain はデバイスが適用する実効ゲイン（パーセント）
func (s *Session) effectiveGain() float64 {
	g := 100.0
	if s.gain != GainUnset {
		g = float64(s.gain)
	}
	if s.hasMaxGain {
		g = g * float64(s.maxGain) / 100
	}
	return g
}
