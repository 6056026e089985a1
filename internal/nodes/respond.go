package nodes

import (
	"context"
	"errors"
	"time"

	"persona_engine/internal/core"
	"persona_engine/internal/directive"
	"persona_engine/internal/engine"
	"persona_engine/internal/generation"
	"persona_engine/internal/logger"
)

// RespondNode generates the agent reply and parses its directives
type RespondNode struct {
	engine    *engine.Engine
	generator generation.Generator
}

// NewRespondNode creates the respond node
func NewRespondNode(eng *engine.Engine, generator generation.Generator) *RespondNode {
	return &RespondNode{engine: eng, generator: generator}
}

// Execute builds the prompt, calls the generator and parses the reply.
// A generation failure answers with the fallback reply instead of failing the turn.
func (n *RespondNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	if input.State == nil {
		return core.NodeOutput{}, errors.New("respond node requires conversation state")
	}

	req := generation.Request{
		SystemPrompt: n.engine.BuildPrompt(input.State, input.Knowledge, input.MemoryContext),
		History:      n.engine.Strategy().BuildHistory(n.engine.History(input.State)),
		Message:      input.UserMessage,
	}

	start := time.Now()
	raw, genErr := n.generator.Generate(ctx, req)
	if genErr != nil {
		raw = generation.FallbackReply
	}
	reply := directive.Parse(raw)

	logger.Debug().
		Str("conversation_id", input.ConversationID).
		Str("generator", n.generator.Name()).
		Int("directives", len(reply.Directives)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("reply generated")

	return core.NodeOutput{
		Data: map[string]any{
			core.KeyReply:       reply,
			"generator":         n.generator.Name(),
			"generation_failed": genErr != nil,
		},
		Error: genErr,
	}, nil
}

// GetName returns the node name
func (n *RespondNode) GetName() string {
	return string(core.NodeTypeRespond)
}

// GetType returns the node type
func (n *RespondNode) GetType() core.NodeType {
	return core.NodeTypeRespond
}
