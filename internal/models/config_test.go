package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemConfig_Merge(t *testing.T) {
	base := DefaultSystemConfig()

	got := base.Merge(SystemConfig{Title: "年会", AnimationEffect: "bogus", AnimationSpeed: -1})
	assert.Equal(t, "年会", got.Title)
	assert.Equal(t, base.Subtitle, got.Subtitle)
	assert.Equal(t, EffectDefault, got.AnimationEffect)
	assert.Equal(t, 1.0, got.AnimationSpeed)

	got = got.Merge(SystemConfig{AnimationEffect: EffectCrazy, AnimationSpeed: 2})
	assert.Equal(t, EffectCrazy, got.AnimationEffect)
	assert.Equal(t, 2.0, got.AnimationSpeed)
}

func TestSystemConfig_RollTick(t *testing.T) {
	tests := []struct {
		cfg  SystemConfig
		want time.Duration
	}{
		{SystemConfig{AnimationEffect: EffectDefault, AnimationSpeed: 1}, 100 * time.Millisecond},
		{SystemConfig{AnimationEffect: EffectSlow, AnimationSpeed: 2}, 100 * time.Millisecond},
		{SystemConfig{AnimationEffect: EffectFast, AnimationSpeed: 0.5}, 100 * time.Millisecond},
		{SystemConfig{AnimationEffect: EffectCrazy}, 30 * time.Millisecond},
		{SystemConfig{AnimationEffect: "unknown", AnimationSpeed: 1}, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.RollTick(), "%+v", tt.cfg)
	}
}

func TestAnimationFor(t *testing.T) {
	assert.False(t, AnimationFor(EffectCrazy).EaseOut)
	assert.Equal(t, 5*time.Second, AnimationFor(EffectSlow).Duration)
	assert.Equal(t, AnimationFor(EffectDefault), AnimationFor(""))
}

func TestPrize_Validate(t *testing.T) {
	assert.NoError(t, Prize{Name: "一等奖", Quota: 1}.Validate())
	assert.Error(t, Prize{Name: " ", Quota: 1}.Validate())
	assert.Error(t, Prize{Name: "一等奖"}.Validate())
}
