package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"persona_engine/internal/buffer"
	"persona_engine/internal/core"
	"persona_engine/internal/directive"
	"persona_engine/internal/emotion"
	"persona_engine/internal/engine"
	"persona_engine/internal/formatter"
	"persona_engine/internal/generation"
	"persona_engine/internal/knowledge"
	"persona_engine/internal/logger"
	"persona_engine/internal/memory"
	"persona_engine/internal/nodes"
	"persona_engine/internal/proactive"
	"persona_engine/internal/storage"
	"persona_engine/pkg"
)

// ErrEmptyMessage is returned when a turn carries neither text nor a transcript
var ErrEmptyMessage = errors.New("message has no text")

// Response types
const (
	TypeText   = "text"
	TypeHybrid = "hybrid"
)

// Media action types
const (
	MediaImage = "image"
	MediaAudio = "audio"
)

// ImageCaption accompanies every generated image
const ImageCaption = "tá na mão 🍌"

// Delivery pauses used by the messaging layer
const (
	AudioDelay = 800 * time.Millisecond
	MediaDelay = 500 * time.Millisecond
)

const empathyIntensity = 0.6

// Input is one inbound user message
type Input struct {
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	Voice          *pkg.VoiceContext `json:"voice,omitempty"`
	ContactName    string            `json:"contact_name,omitempty"`
}

// AudioResponse asks the messaging layer to speak the reply
type AudioResponse struct {
	Text    string        `json:"text"`
	Emotion string        `json:"emotion"`
	Persona string        `json:"persona"`
	Delay   time.Duration `json:"delay"`
}

// MediaAction is media the reply asked for
type MediaAction struct {
	Type    string        `json:"type"`
	Prompt  string        `json:"prompt,omitempty"`
	Text    string        `json:"text,omitempty"`
	Caption string        `json:"caption,omitempty"`
	Delay   time.Duration `json:"delay"`
}

// Metadata describes how the turn was handled
type Metadata struct {
	Intent              string             `json:"intent"`
	Emotion             string             `json:"emotion"`
	Phase               pkg.Phase          `json:"phase"`
	Engagement          int                `json:"engagement"`
	PersonaBlend        pkg.PersonaBlend   `json:"persona_blend"`
	ActivePersona       string             `json:"active_persona"`
	ProactiveHook       *pkg.ProactiveHook `json:"proactive_hook,omitempty"`
	ProfileUpdates      map[string]any     `json:"profile_updates,omitempty"`
	ShouldSendTyping    bool               `json:"should_send_typing"`
	ShouldSendRecording bool               `json:"should_send_recording"`
	ExecutionPath       []string           `json:"execution_path"`
	Errors              []string           `json:"errors,omitempty"`
	ProcessingTimeMs    int64              `json:"processing_time_ms"`
}

// Response is everything the messaging layer needs to deliver one reply
type Response struct {
	ConversationID string              `json:"conversation_id"`
	Type           string              `json:"type"`
	Fragments      []formatter.Message `json:"fragments"`
	Audio          *AudioResponse      `json:"audio,omitempty"`
	Reaction       string              `json:"reaction,omitempty"`
	MediaActions   []MediaAction       `json:"media_actions"`
	Metadata       Metadata            `json:"metadata"`
}

// Stats merges conversation stats with the memory summary
type Stats struct {
	engine.Stats
	Memory memory.Summary `json:"memory"`
}

// Sink receives the responses of buffered turns
type Sink func(ctx context.Context, id string, resp *Response, err error)

// Deps are the orchestrator's collaborators; Memory, Knowledge and Clients are optional
type Deps struct {
	Engine      *engine.Engine
	Memory      *memory.Store
	Knowledge   *knowledge.Index
	Generator   generation.Generator
	Formatter   *formatter.Formatter
	Clients     storage.ClientStore
	RecallLimit int
	KnowledgeK  int
}

// Config tunes the orchestrator
type Config struct {
	// AudioAvailable allows empathetic voice replies without a user request
	AudioAvailable bool
	BufferWindow   time.Duration
	Sink           Sink
}

// Orchestrator runs full conversational turns
type Orchestrator struct {
	engine    *engine.Engine
	memory    *memory.Store
	formatter *formatter.Formatter
	processor core.GraphProcessor
	buffer    *buffer.Buffer
	audio     bool
	sink      Sink

	contacts sync.Map
}

// New wires the turn graph and the debounce buffer
func New(ctx context.Context, d Deps, cfg Config) (*Orchestrator, error) {
	if d.Formatter == nil {
		return nil, fmt.Errorf("orchestrator requires a formatter")
	}
	graph, err := nodes.NewTurnGraph(nodes.Deps{
		Engine:      d.Engine,
		Memory:      d.Memory,
		Knowledge:   d.Knowledge,
		Generator:   d.Generator,
		Clients:     d.Clients,
		RecallLimit: d.RecallLimit,
		KnowledgeK:  d.KnowledgeK,
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		engine:    d.Engine,
		memory:    d.Memory,
		formatter: d.Formatter,
		processor: graph,
		audio:     cfg.AudioAvailable,
		sink:      cfg.Sink,
	}
	if o.sink == nil {
		o.sink = logSink
	}
	o.buffer = buffer.New(ctx, cfg.BufferWindow, o.flush)
	return o, nil
}

// ProcessMessage runs one turn. A second concurrent turn for the same
// conversation fails with engine.ErrTurnInProgress.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in Input) (*Response, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Voice != nil {
		text = strings.TrimSpace(in.Voice.Transcript)
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	var resp *Response
	err := o.engine.RunTurn(ctx, in.ConversationID, func(ctx context.Context) error {
		out, err := o.processor.Execute(ctx, core.ProcessorInput{
			ConversationID: in.ConversationID,
			UserMessage:    text,
			Voice:          in.Voice,
			ContactName:    in.ContactName,
		})
		if err != nil {
			return err
		}
		resp = o.prepareResponse(in, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("conversation_id", in.ConversationID).
		Str("type", resp.Type).
		Int("fragments", len(resp.Fragments)).
		Int("media_actions", len(resp.MediaActions)).
		Int64("duration_ms", resp.Metadata.ProcessingTimeMs).
		Msg("turn completed")
	return resp, nil
}

// Enqueue buffers a message; the joined burst is processed once the window
// passes and the result is handed to the sink
func (o *Orchestrator) Enqueue(in Input) {
	if in.ContactName != "" {
		o.contacts.Store(in.ConversationID, in.ContactName)
	}
	text := in.Text
	if strings.TrimSpace(text) == "" && in.Voice != nil {
		text = in.Voice.Transcript
	}
	o.buffer.Add(in.ConversationID, text, in.Voice)
}

// Pending returns the buffered burst for a conversation, if any
func (o *Orchestrator) Pending(id string) (buffer.Pending, bool) {
	return o.buffer.Peek(id)
}

func (o *Orchestrator) flush(ctx context.Context, id, text string, voice *pkg.VoiceContext) {
	in := Input{ConversationID: id, Text: text, Voice: voice}
	if name, ok := o.contacts.Load(id); ok {
		in.ContactName = name.(string)
	}
	resp, err := o.ProcessMessage(ctx, in)
	o.sink(ctx, id, resp, err)
}

// GetStats returns the conversation stats with its memory summary
func (o *Orchestrator) GetStats(ctx context.Context, id string) (Stats, error) {
	st, err := o.engine.GetStats(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Stats: st}
	if o.memory != nil {
		out.Memory = o.memory.Summarize(id)
	} else {
		out.Memory = memory.Summary{Text: "Nenhuma memória armazenada", ByKind: map[pkg.MemoryKind]int{}, Top: []string{}}
	}
	return out, nil
}

// ResetChat drops the conversation state, its memories and any buffered messages.
// It holds the same in-flight marker as a turn, so resetting a conversation whose
// turn is still running fails with engine.ErrTurnInProgress.
func (o *Orchestrator) ResetChat(ctx context.Context, id string) error {
	forgotten := 0
	err := o.engine.RunTurn(ctx, id, func(ctx context.Context) error {
		if err := o.engine.ResetChat(ctx, id); err != nil {
			return err
		}
		if o.memory != nil {
			forgotten = o.memory.ForgetAll(id)
		}
		o.buffer.Clear(id)
		o.contacts.Delete(id)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info().Str("conversation_id", id).Int("memories_forgotten", forgotten).Msg("chat reset")
	return nil
}

// Close stops the buffer, discarding bursts that have not been delivered
func (o *Orchestrator) Close() {
	o.buffer.Close()
}

func (o *Orchestrator) prepareResponse(in Input, out *core.ProcessorOutput) *Response {
	state, reply := out.State, out.Reply

	resp := &Response{
		ConversationID: in.ConversationID,
		Type:           TypeText,
		Fragments:      o.formatter.Messages(reply.Text),
		MediaActions:   mediaActions(reply),
		Metadata: Metadata{
			Intent:           state.CurrentIntent.Primary.Label,
			Emotion:          state.EmotionalState.Primary,
			Phase:            state.Phase,
			Engagement:       state.UserProfile.EngagementLevel,
			PersonaBlend:     state.PersonaBlendRatio,
			ActivePersona:    state.ActivePersona,
			ProfileUpdates:   reply.SaveData(),
			ShouldSendTyping: true,
			ExecutionPath:    slices.Clone(out.ExecutionPath),
			Errors:           slices.Clone(out.Errors),
			ProcessingTimeMs: out.ProcessingTime,
		},
	}

	hook, hasHook := proactive.Select(state.ProactiveHooks)
	if hasHook {
		resp.Metadata.ProactiveHook = &hook
	}
	resp.Reaction = pickReaction(reply, hook, state)

	if o.shouldRespondWithAudio(in.Voice, state) {
		resp.Type = TypeHybrid
		resp.Metadata.ShouldSendRecording = true
		resp.Audio = &AudioResponse{
			Text:    o.formatter.PrepareForTTS(reply.Text),
			Emotion: state.EmotionalState.Primary,
			Persona: state.ActivePersona,
			Delay:   AudioDelay,
		}
	}
	return resp
}

// shouldRespondWithAudio answers in voice when the voice message asked for it,
// the user prefers audio, or audio is available and the user is strongly sad or frustrated
func (o *Orchestrator) shouldRespondWithAudio(voice *pkg.VoiceContext, state *pkg.ConversationState) bool {
	if voice != nil && voice.ShouldRespondWithAudio {
		return true
	}
	if state.UserProfile.ResponsePreference == pkg.ResponseAudio {
		return true
	}
	if !o.audio {
		return false
	}
	switch state.EmotionalState.Primary {
	case emotion.Sad, emotion.Frustrated:
		return state.EmotionalState.Intensity > empathyIntensity
	}
	return false
}

// pickReaction prefers an explicit REACT directive, then the proactive hook's reaction,
// then the emotion analyzer's suggestion
func pickReaction(reply *directive.Result, hook pkg.ProactiveHook, state *pkg.ConversationState) string {
	if r, ok := reply.Reaction(); ok {
		return r
	}
	if hook.Reaction != "" {
		return hook.Reaction
	}
	return state.EmotionalState.SuggestedReaction
}

func mediaActions(reply *directive.Result) []MediaAction {
	out := []MediaAction{}
	for _, d := range reply.Directives {
		switch v := d.(type) {
		case directive.GenerateImage:
			out = append(out, MediaAction{Type: MediaImage, Prompt: v.Prompt, Caption: ImageCaption, Delay: MediaDelay})
		case directive.SendAudio:
			out = append(out, MediaAction{Type: MediaAudio, Text: v.Text, Delay: MediaDelay})
		}
	}
	return out
}

func logSink(_ context.Context, id string, resp *Response, err error) {
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", id).Msg("buffered turn failed")
		return
	}
	logger.Info().Str("conversation_id", id).Int("fragments", len(resp.Fragments)).Msg("buffered turn ready")
}
