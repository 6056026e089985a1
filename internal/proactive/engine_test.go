package proactive

import (
	"testing"
	"time"

	"persona_engine/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func names(hooks []pkg.ProactiveHook) []string {
	out := []string{}
	for _, h := range hooks {
		out = append(out, h.Name)
	}
	return out
}

func TestCheckFreshStateFiresNothing(t *testing.T) {
	e := NewEngine(DefaultTriggers(), fixedClock)
	hooks := e.Check(pkg.NewConversationState("c", now))
	assert.Empty(t, hooks)
	assert.NotNil(t, hooks)
}

func TestLongSilence(t *testing.T) {
	e := NewEngine(DefaultTriggers(), fixedClock)
	s := pkg.NewConversationState("c", now)
	s.UserProfile.EngagementLevel = 40

	s.LastInteraction = now.Add(-23 * time.Hour)
	assert.Empty(t, e.Check(s))

	s.LastInteraction = now.Add(-25 * time.Hour)
	hooks := e.Check(s)
	require.Len(t, hooks, 1)
	assert.Equal(t, "send_checkin", hooks[0].Action)
	assert.Equal(t, "E aí, sumiu! Tudo bem por aí?", hooks[0].Message)

	s.UserProfile.EngagementLevel = 30
	assert.Empty(t, e.Check(s))
}

func TestHighEngagementNoAction(t *testing.T) {
	e := NewEngine(DefaultTriggers(), fixedClock)
	s := pkg.NewConversationState("c", now)
	s.Metrics.MessageCount = 16
	s.UserProfile.EngagementLevel = 61
	s.Phase = pkg.PhaseEngagement
	assert.Equal(t, []string{"high_engagement_no_action"}, names(e.Check(s)))

	s.Phase = pkg.PhasePitch
	assert.Empty(t, e.Check(s))
}

func TestFrustrationAndAchievementCoFire(t *testing.T) {
	e := NewEngine(DefaultTriggers(), fixedClock)
	s := pkg.NewConversationState("c", now)
	s.EmotionalState.Primary = "frustrated"
	s.EmotionalState.Intensity = 0.65
	s.CurrentIntent.Primary.Label = "share_achievement"

	hooks := e.Check(s)
	assert.Equal(t, []string{"frustration_detected", "achievement_celebration"}, names(hooks))
	assert.Equal(t, "🎉", hooks[1].Reaction)

	s.EmotionalState.Intensity = 0.56
	assert.Equal(t, []string{"achievement_celebration"}, names(e.Check(s)))
}

func TestSelect(t *testing.T) {
	_, ok := Select(nil)
	assert.False(t, ok)

	h, ok := Select([]pkg.ProactiveHook{{Name: "a"}, {Name: "b"}})
	assert.True(t, ok)
	assert.Equal(t, "a", h.Name)
}

func TestCustomTrigger(t *testing.T) {
	e := NewEngine([]Trigger{{
		Name:      "always",
		Action:    "noop",
		Condition: func(*pkg.ConversationState, time.Time) bool { return true },
	}}, nil)
	assert.Equal(t, []string{"always"}, names(e.Check(pkg.NewConversationState("c", now))))
	assert.Empty(t, e.Check(nil))
}
