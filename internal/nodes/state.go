package nodes

import (
	"context"

	"persona_engine/internal/core"
	"persona_engine/internal/engine"
	"persona_engine/internal/logger"
)

// StateNode folds the user message into the conversation state
type StateNode struct {
	engine        *engine.Engine
	recallEnabled bool
}

// NewStateNode creates the state node. recallEnabled routes the turn through the recall node.
func NewStateNode(eng *engine.Engine, recallEnabled bool) *StateNode {
	return &StateNode{engine: eng, recallEnabled: recallEnabled}
}

// Execute updates the conversation state; a storage failure aborts the turn
func (n *StateNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	state, err := n.engine.UpdateState(ctx, input.ConversationID, input.UserMessage, input.Voice, input.ContactName)
	if err != nil {
		return core.NodeOutput{}, err
	}

	logger.Debug().
		Str("conversation_id", input.ConversationID).
		Str("phase", string(state.Phase)).
		Msg("state node done")

	return core.NodeOutput{
		Data: map[string]any{
			core.KeyState:    state,
			"recall_enabled": n.recallEnabled,
			"phase":          string(state.Phase),
			"intent":         state.CurrentIntent.Primary.Label,
		},
	}, nil
}

// GetName returns the node name
func (n *StateNode) GetName() string {
	return string(core.NodeTypeState)
}

// GetType returns the node type
func (n *StateNode) GetType() core.NodeType {
	return core.NodeTypeState
}
