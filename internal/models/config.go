package models

import "time"

// AnimationEffect names one of the rolling animation presets.
type AnimationEffect string

const (
	EffectDefault AnimationEffect = "default"
	EffectFast    AnimationEffect = "fast"
	EffectSlow    AnimationEffect = "slow"
	EffectCrazy   AnimationEffect = "crazy"
)

// SystemConfig is display metadata for the event screen. It plays no part in draws.
type SystemConfig struct {
	Title           string          `json:"title"`
	Subtitle        string          `json:"subtitle"`
	Footer          string          `json:"footer"`
	AnimationSpeed  float64         `json:"animationSpeed"`
	AnimationEffect AnimationEffect `json:"animationEffect"`
}

// DefaultSystemConfig is used until an operator saves their own.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Title:           "2026 AI 年会抽奖",
		Subtitle:        "新春快乐 · 万事如意",
		Footer:          "© 2026 公司年会抽奖系统",
		AnimationSpeed:  1,
		AnimationEffect: EffectDefault,
	}
}

// Merge overlays the non-zero fields of update onto c.
func (c SystemConfig) Merge(update SystemConfig) SystemConfig {
	if update.Title != "" {
		c.Title = update.Title
	}
	if update.Subtitle != "" {
		c.Subtitle = update.Subtitle
	}
	if update.Footer != "" {
		c.Footer = update.Footer
	}
	if update.AnimationSpeed > 0 {
		c.AnimationSpeed = update.AnimationSpeed
	}
	if _, ok := animations[update.AnimationEffect]; ok {
		c.AnimationEffect = update.AnimationEffect
	}
	return c
}

// Animation is the timing of one rolling preset.
type Animation struct {
	Tick     time.Duration `json:"tick"`
	Duration time.Duration `json:"duration"`
	EaseOut  bool          `json:"easeOut"`
}

var animations = map[AnimationEffect]Animation{
	EffectDefault: {Tick: 100 * time.Millisecond, Duration: 3 * time.Second, EaseOut: true},
	EffectFast:    {Tick: 50 * time.Millisecond, Duration: 2 * time.Second, EaseOut: true},
	EffectSlow:    {Tick: 200 * time.Millisecond, Duration: 5 * time.Second, EaseOut: true},
	EffectCrazy:   {Tick: 30 * time.Millisecond, Duration: 4 * time.Second, EaseOut: false},
}

// AnimationFor returns the preset for effect, falling back to the default one.
func AnimationFor(effect AnimationEffect) Animation {
	if a, ok := animations[effect]; ok {
		return a
	}
	return animations[EffectDefault]
}

// RollTick is how often the rolling display should change names: the preset
// tick divided by the speed multiplier.
func (c SystemConfig) RollTick() time.Duration {
	tick := AnimationFor(c.AnimationEffect).Tick
	if c.AnimationSpeed <= 0 {
		return tick
	}
	return time.Duration(float64(tick) / c.AnimationSpeed)
}
