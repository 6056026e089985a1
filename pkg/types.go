package pkg

import (
	"maps"
	"slices"
	"time"
)

// Conversation Types for the persona-driven conversational agent

// Role identifies who authored a message in the conversation log
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ConversationMessage represents a message in conversation history
type ConversationMessage struct {
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Voice     *VoiceContext `json:"voice,omitempty"`
}

// VoiceContext carries what the transcription layer learned about an audio message
type VoiceContext struct {
	Transcript             string  `json:"transcript"`
	ShouldRespondWithAudio bool    `json:"should_respond_with_audio"`
	Emotion                string  `json:"emotion,omitempty"`
	DurationSeconds        float64 `json:"duration_seconds,omitempty"`
}

// IntentMatch represents a detected user intent
type IntentMatch struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Trigger    string  `json:"trigger,omitempty"`
}

// CompositeIntent is a higher-level intent inferred from co-occurring labels
type CompositeIntent struct {
	Label            string   `json:"label"`
	Confidence       float64  `json:"confidence"`
	SupportingLabels []string `json:"supporting_labels"`
}

// IntentResult is the output of one classification call
type IntentResult struct {
	Primary   IntentMatch       `json:"primary"`
	All       []IntentMatch     `json:"all"`
	Composite []CompositeIntent `json:"composite"`
	RawText   string            `json:"raw_text"`
}

// Trend describes the direction of recent emotional valence
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// EmotionMatch is a single emotion label detected in a message
type EmotionMatch struct {
	Label      string  `json:"label"`
	Valence    float64 `json:"valence"`
	Arousal    float64 `json:"arousal"`
	Confidence float64 `json:"confidence"`
}

// EmotionResult is the output of one emotion analysis call
type EmotionResult struct {
	Primary           string         `json:"primary"`
	Valence           float64        `json:"valence"`
	Arousal           float64        `json:"arousal"`
	Intensity         float64        `json:"intensity"`
	Trend             Trend          `json:"trend"`
	All               []EmotionMatch `json:"all"`
	SuggestedReaction string         `json:"suggested_reaction,omitempty"`
}

// EmotionalState is the emotional snapshot kept on the conversation
type EmotionalState struct {
	Primary           string  `json:"primary"`
	Intensity         float64 `json:"intensity"`
	Valence           float64 `json:"valence"`
	Arousal           float64 `json:"arousal"`
	Trend             Trend   `json:"trend"`
	SuggestedReaction string  `json:"suggested_reaction,omitempty"`
}

// Phase is the stage of the conversation state machine
type Phase string

const (
	PhaseGreeting   Phase = "greeting"
	PhaseDiscovery  Phase = "discovery"
	PhaseEngagement Phase = "engagement"
	PhasePitch      Phase = "pitch"
	PhaseClose      Phase = "close"
)

// Persona identifiers
const (
	PersonaSocialMedia = "social_media"
	PersonaConsultant  = "consultant"
)

// PersonaBlend holds the normalized weights of the two personas
type PersonaBlend struct {
	SocialMedia float64 `json:"social_media"`
	Consultant  float64 `json:"consultant"`
}

// Sum returns the total weight of the blend
func (b PersonaBlend) Sum() float64 {
	return b.SocialMedia + b.Consultant
}

// Response preferences
const (
	ResponseText   = "text"
	ResponseAudio  = "audio"
	ResponseHybrid = "hybrid"
)

// UserProfile holds the facts learned about the user; fields are merged, never replaced wholesale
type UserProfile struct {
	Name               string         `json:"name,omitempty"`
	Business           string         `json:"business,omitempty"`
	BusinessName       string         `json:"business_name,omitempty"`
	Niche              string         `json:"niche,omitempty"`
	Location           string         `json:"location,omitempty"`
	ContactName        string         `json:"contact_name,omitempty"`
	CommunicationStyle string         `json:"communication_style"`
	ResponsePreference string         `json:"response_preference"`
	EngagementLevel    int            `json:"engagement_level"`
	TopicsOfInterest   []string       `json:"topics_of_interest,omitempty"`
	PainPoints         []string       `json:"pain_points,omitempty"`
	Goals              []string       `json:"goals,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// ConversationMetrics tracks volume and sentiment of the current conversation
type ConversationMetrics struct {
	MessageCount    int       `json:"message_count"`
	SentimentTrend  []float64 `json:"sentiment_trend"`
	EngagementScore int       `json:"engagement_score"`
}

// ProactiveHook is a trigger that fired for the current turn
type ProactiveHook struct {
	Name     string `json:"name"`
	Action   string `json:"action"`
	Message  string `json:"message,omitempty"`
	Reaction string `json:"reaction,omitempty"`
}

// ConversationState is everything the engine knows about one conversation
type ConversationState struct {
	ID                string                `json:"id"`
	Messages          []ConversationMessage `json:"messages"`
	CurrentIntent     IntentResult          `json:"current_intent"`
	EmotionalState    EmotionalState        `json:"emotional_state"`
	UserProfile       UserProfile           `json:"user_profile"`
	Metrics           ConversationMetrics   `json:"conversation_metrics"`
	PersonaBlendRatio PersonaBlend          `json:"persona_blend_ratio"`
	ActivePersona     string                `json:"active_persona"`
	Phase             Phase                 `json:"conversation_phase"`
	ProactiveHooks    []ProactiveHook       `json:"proactive_hooks"`
	LastInteraction   time.Time             `json:"last_interaction"`
	SessionStarted    time.Time             `json:"session_started"`
}

// NewConversationState creates the initial state for a conversation id
func NewConversationState(id string, now time.Time) *ConversationState {
	return &ConversationState{
		ID:       id,
		Messages: []ConversationMessage{},
		CurrentIntent: IntentResult{
			Primary: IntentMatch{Label: "general", Confidence: 0.5},
		},
		EmotionalState: EmotionalState{
			Primary:   "neutral",
			Intensity: 0.5,
			Arousal:   0.5,
			Trend:     TrendStable,
		},
		UserProfile: UserProfile{
			CommunicationStyle: "neutral",
			ResponsePreference: ResponseText,
		},
		Metrics:           ConversationMetrics{SentimentTrend: []float64{}},
		PersonaBlendRatio: PersonaBlend{SocialMedia: 1.0, Consultant: 0.0},
		ActivePersona:     PersonaSocialMedia,
		Phase:             PhaseGreeting,
		SessionStarted:    now,
	}
}

// LastAgentMessage returns the most recent agent message, or "" when the agent has not spoken
func (s *ConversationState) LastAgentMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAgent {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy of the state
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = slices.Clone(s.Messages)
	for i := range out.Messages {
		if v := out.Messages[i].Voice; v != nil {
			vc := *v
			out.Messages[i].Voice = &vc
		}
	}
	out.CurrentIntent.All = slices.Clone(s.CurrentIntent.All)
	out.CurrentIntent.Composite = make([]CompositeIntent, len(s.CurrentIntent.Composite))
	for i, c := range s.CurrentIntent.Composite {
		c.SupportingLabels = slices.Clone(c.SupportingLabels)
		out.CurrentIntent.Composite[i] = c
	}
	out.UserProfile.TopicsOfInterest = slices.Clone(s.UserProfile.TopicsOfInterest)
	out.UserProfile.PainPoints = slices.Clone(s.UserProfile.PainPoints)
	out.UserProfile.Goals = slices.Clone(s.UserProfile.Goals)
	out.UserProfile.Extra = maps.Clone(s.UserProfile.Extra)
	out.Metrics.SentimentTrend = slices.Clone(s.Metrics.SentimentTrend)
	out.ProactiveHooks = slices.Clone(s.ProactiveHooks)
	return &out
}

// Memory Types for the semantic memory store

// MemoryKind classifies a memory entry
type MemoryKind string

const (
	MemoryEpisodic   MemoryKind = "episodic"
	MemorySemantic   MemoryKind = "semantic"
	MemoryProcedural MemoryKind = "procedural"
	MemoryEmotional  MemoryKind = "emotional"
)

// Canonical importance levels
const (
	ImportanceLow      = 0.3
	ImportanceMedium   = 0.5
	ImportanceHigh     = 0.8
	ImportanceCritical = 1.0
)

// MemoryEntry is one remembered fact or episode about a user
type MemoryEntry struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Kind           MemoryKind     `json:"kind"`
	Content        string         `json:"content"`
	Embedding      []float64      `json:"embedding"`
	Importance     float64        `json:"importance"`
	Emotion        string         `json:"emotion"`
	AccessCount    int            `json:"access_count"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the entry
func (m MemoryEntry) Clone() MemoryEntry {
	m.Embedding = slices.Clone(m.Embedding)
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// RecalledMemory is a memory returned by recall with its ranking data
type RecalledMemory struct {
	MemoryEntry
	RelevanceScore float64 `json:"relevance_score"`
	Similarity     float64 `json:"similarity"`
}
