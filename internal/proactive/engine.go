package proactive

import (
	"time"

	"persona_engine/pkg"
)

// Trigger is a named predicate over conversation state with the action it suggests
type Trigger struct {
	Name      string
	Action    string
	Message   string
	Reaction  string
	Condition func(state *pkg.ConversationState, now time.Time) bool
}

// Engine evaluates every trigger against a state
type Engine struct {
	triggers []Trigger
	now      func() time.Time
}

// NewEngine creates an engine over the given triggers
func NewEngine(triggers []Trigger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{triggers: triggers, now: now}
}

// NewDefault creates an engine with the built-in triggers and the wall clock
func NewDefault() *Engine {
	return NewEngine(DefaultTriggers(), time.Now)
}

// Check returns every trigger whose condition currently holds, in table order
func (e *Engine) Check(state *pkg.ConversationState) []pkg.ProactiveHook {
	hooks := []pkg.ProactiveHook{}
	if state == nil {
		return hooks
	}
	now := e.now()
	for _, t := range e.triggers {
		if t.Condition(state, now) {
			hooks = append(hooks, pkg.ProactiveHook{
				Name:     t.Name,
				Action:   t.Action,
				Message:  t.Message,
				Reaction: t.Reaction,
			})
		}
	}
	return hooks
}

// Select picks the single hook surfaced to the user this turn, if any
func Select(hooks []pkg.ProactiveHook) (pkg.ProactiveHook, bool) {
	if len(hooks) == 0 {
		return pkg.ProactiveHook{}, false
	}
	return hooks[0], true
}

// DefaultTriggers returns the built-in trigger table
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			Name:    "long_silence",
			Action:  "send_checkin",
			Message: "E aí, sumiu! Tudo bem por aí?",
			Condition: func(s *pkg.ConversationState, now time.Time) bool {
				if s.LastInteraction.IsZero() {
					return false
				}
				return now.Sub(s.LastInteraction) > 24*time.Hour && s.UserProfile.EngagementLevel > 30
			},
		},
		{
			Name:   "high_engagement_no_action",
			Action: "soft_pitch",
			Condition: func(s *pkg.ConversationState, _ time.Time) bool {
				return s.Metrics.MessageCount > 15 &&
					s.Phase != pkg.PhasePitch &&
					s.UserProfile.EngagementLevel > 60
			},
		},
		{
			Name:   "frustration_detected",
			Action: "offer_help",
			Condition: func(s *pkg.ConversationState, _ time.Time) bool {
				return s.EmotionalState.Primary == "frustrated" && s.EmotionalState.Intensity > 0.6
			},
		},
		{
			Name:     "achievement_celebration",
			Action:   "celebrate",
			Reaction: "🎉",
			Condition: func(s *pkg.ConversationState, _ time.Time) bool {
				return s.CurrentIntent.Primary.Label == "share_achievement"
			},
		},
	}
}
