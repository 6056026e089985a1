package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"persona_engine/internal/emotion"
	"persona_engine/internal/intent"
	"persona_engine/internal/logger"
	"persona_engine/internal/persona"
	"persona_engine/internal/proactive"
	"persona_engine/internal/storage"
	"persona_engine/pkg"
)

// ErrTurnInProgress is returned when a conversation already has a turn running
var ErrTurnInProgress = errors.New("turn already in progress for conversation")

// Config bounds the per-conversation logs and the phase machine
type Config struct {
	MaxMessages         int
	MaxSentimentHistory int
	CloseAfterMessages  int
	PromptHistory       int
}

// DefaultConfig returns the standard engine bounds
func DefaultConfig() Config {
	return Config{
		MaxMessages:         50,
		MaxSentimentHistory: 20,
		CloseAfterMessages:  DefaultCloseAfterMessages,
		PromptHistory:       10,
	}
}

// Stats is the externally visible summary of a conversation
type Stats struct {
	MessageCount    int                `json:"message_count"`
	EngagementLevel int                `json:"engagement_level"`
	CurrentPhase    pkg.Phase          `json:"current_phase"`
	EmotionalState  pkg.EmotionalState `json:"emotional_state"`
	PersonaBlend    pkg.PersonaBlend   `json:"persona_blend"`
	ActivePersona   string             `json:"active_persona"`
	UserProfile     pkg.UserProfile    `json:"user_profile"`
}

// Engine owns conversation state and derives it turn by turn
type Engine struct {
	cfg        Config
	states     storage.StateStore
	classifier *intent.Classifier
	analyzer   *emotion.Analyzer
	blender    *persona.Blender
	triggers   *proactive.Engine
	history    ContextStrategy
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Engine
type Option func(*Engine)

func WithClassifier(c *intent.Classifier) Option { return func(e *Engine) { e.classifier = c } }
func WithAnalyzer(a *emotion.Analyzer) Option    { return func(e *Engine) { e.analyzer = a } }
func WithBlender(b *persona.Blender) Option      { return func(e *Engine) { e.blender = b } }
func WithTriggers(t *proactive.Engine) Option    { return func(e *Engine) { e.triggers = t } }
func WithClock(now func() time.Time) Option      { return func(e *Engine) { e.now = now } }

// New creates an engine over a state store; unset collaborators use the built-in tables
func New(states storage.StateStore, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.MaxSentimentHistory <= 0 {
		cfg.MaxSentimentHistory = def.MaxSentimentHistory
	}
	if cfg.CloseAfterMessages <= 0 {
		cfg.CloseAfterMessages = def.CloseAfterMessages
	}
	if cfg.PromptHistory <= 0 {
		cfg.PromptHistory = def.PromptHistory
	}
	if states == nil {
		states = storage.NewMemoryStateStore()
	}

	e := &Engine{
		cfg:      cfg,
		states:   states,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = intent.NewDefault()
	}
	if e.analyzer == nil {
		e.analyzer = emotion.NewDefault(emotion.WithClock(e.now))
	}
	if e.blender == nil {
		e.blender = persona.NewDefaultBlender()
	}
	if e.triggers == nil {
		e.triggers = proactive.NewEngine(proactive.DefaultTriggers(), e.now)
	}
	e.history = NewResponseContextStrategy(cfg.PromptHistory)
	return e
}

// RunTurn runs fn while holding the conversation's in-flight marker.
// A second turn for the same id fails fast with ErrTurnInProgress.
func (e *Engine) RunTurn(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	if _, busy := e.inflight[id]; busy {
		e.mu.Unlock()
		return ErrTurnInProgress
	}
	e.inflight[id] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, id)
		e.mu.Unlock()
	}()
	return fn(ctx)
}

// GetState returns the conversation state, creating it on first access
func (e *Engine) GetState(ctx context.Context, id string) (*pkg.ConversationState, error) {
	state, err := e.states.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return pkg.NewConversationState(id, e.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", id, err)
	}
	return state, nil
}

// UpdateState folds one user message into the conversation and persists the result
func (e *Engine) UpdateState(ctx context.Context, id, message string, voice *pkg.VoiceContext, contactName string) (*pkg.ConversationState, error) {
	state, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.now()

	state.Messages = append(state.Messages, pkg.ConversationMessage{
		Role: pkg.RoleUser, Content: message, Timestamp: now, Voice: voice,
	})
	state.Messages = capTail(state.Messages, e.cfg.MaxMessages)

	state.CurrentIntent = e.classifier.Classify(message)

	emo := e.analyzer.Analyze(message, id)
	state.EmotionalState = pkg.EmotionalState{
		Primary:           emo.Primary,
		Intensity:         emo.Intensity,
		Valence:           emo.Valence,
		Arousal:           emo.Arousal,
		Trend:             emo.Trend,
		SuggestedReaction: emo.SuggestedReaction,
	}

	state.Metrics.MessageCount++
	state.Metrics.SentimentTrend = capTail(append(state.Metrics.SentimentTrend, emo.Valence), e.cfg.MaxSentimentHistory)

	if extracted := ExtractUserData(message, state); !extracted.Empty() {
		ApplyExtracted(&state.UserProfile, extracted)
		logger.Debug().Str("conversation_id", id).Interface("extracted", extracted).Msg("user data extracted")
	}
	if contactName != "" {
		state.UserProfile.ContactName = contactName
	}

	state.PersonaBlendRatio = e.blender.CalculateBlend(state)
	state.Phase = NextPhase(state, e.cfg.CloseAfterMessages)
	state.ActivePersona = persona.ActivePersona(state.PersonaBlendRatio)
	state.ProactiveHooks = e.triggers.Check(state)

	if voice != nil {
		if voice.ShouldRespondWithAudio {
			state.UserProfile.ResponsePreference = pkg.ResponseAudio
		} else {
			state.UserProfile.ResponsePreference = pkg.ResponseText
		}
	}

	state.LastInteraction = now
	state.UserProfile.EngagementLevel = Engagement(state)

	if err := e.states.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("save state %s: %w", id, err)
	}

	logger.Info().
		Str("conversation_id", id).
		Str("phase", string(state.Phase)).
		Str("intent", state.CurrentIntent.Primary.Label).
		Str("emotion", state.EmotionalState.Primary).
		Int("engagement", state.UserProfile.EngagementLevel).
		Msg("state updated")

	return state, nil
}

// RecordAgentMessage appends the agent's reply to the conversation log
func (e *Engine) RecordAgentMessage(ctx context.Context, id, content string) error {
	return e.mutate(ctx, id, func(s *pkg.ConversationState) {
		s.Messages = capTail(append(s.Messages, pkg.ConversationMessage{
			Role: pkg.RoleAgent, Content: content, Timestamp: e.now(),
		}), e.cfg.MaxMessages)
	})
}

// MergeProfile applies SAVE directive data to the conversation's profile
func (e *Engine) MergeProfile(ctx context.Context, id string, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return e.mutate(ctx, id, func(s *pkg.ConversationState) {
		MergeProfile(&s.UserProfile, data)
	})
}

// BuildPrompt assembles the reply prompt for a state
func (e *Engine) BuildPrompt(state *pkg.ConversationState, knowledgeContext, memoryContext string) string {
	return BuildPrompt(state, knowledgeContext, memoryContext)
}

// History returns the recent messages fed to the model, excluding the current user message
func (e *Engine) History(state *pkg.ConversationState) []pkg.ConversationMessage {
	msgs := state.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == pkg.RoleUser {
		msgs = msgs[:n-1]
	}
	return trimTail(msgs, e.history.GetMaxTurns())
}

// Strategy exposes the history strategy used for generation
func (e *Engine) Strategy() ContextStrategy {
	return e.history
}

// GetStats summarizes a conversation
func (e *Engine) GetStats(ctx context.Context, id string) (Stats, error) {
	state, err := e.GetState(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MessageCount:    state.Metrics.MessageCount,
		EngagementLevel: state.UserProfile.EngagementLevel,
		CurrentPhase:    state.Phase,
		EmotionalState:  state.EmotionalState,
		PersonaBlend:    state.PersonaBlendRatio,
		ActivePersona:   state.ActivePersona,
		UserProfile:     state.UserProfile,
	}, nil
}

// ResetChat drops the conversation state and its emotion history.
// Callers racing a turn should run it inside RunTurn.
func (e *Engine) ResetChat(ctx context.Context, id string) error {
	e.analyzer.Reset(id)
	if err := e.states.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete state %s: %w", id, err)
	}
	logger.Info().Str("conversation_id", id).Msg("conversation reset")
	return nil
}

func (e *Engine) mutate(ctx context.Context, id string, fn func(*pkg.ConversationState)) error {
	state, err := e.GetState(ctx, id)
	if err != nil {
		return err
	}
	fn(state)
	if err := e.states.Put(ctx, state); err != nil {
		return fmt.Errorf("save state %s: %w", id, err)
	}
	return nil
}

func capTail[T any](s []T, limit int) []T {
	if len(s) <= limit {
		return s
	}
	return append(s[:0:0], s[len(s)-limit:]...)
}
