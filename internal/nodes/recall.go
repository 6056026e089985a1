package nodes

import (
	"context"
	"errors"

	"persona_engine/internal/core"
	"persona_engine/internal/knowledge"
	"persona_engine/internal/memory"
	"persona_engine/pkg"
)

// RecallNode fetches the memories and the persona knowledge relevant to the user message
type RecallNode struct {
	memory    *memory.Store
	knowledge *knowledge.Index
	limit     int
	topK      int
}

// NewRecallNode creates the recall node. Either source may be nil; limit and topK <= 0 use defaults.
func NewRecallNode(store *memory.Store, index *knowledge.Index, limit, topK int) *RecallNode {
	return &RecallNode{memory: store, knowledge: index, limit: limit, topK: topK}
}

// Execute recalls from both sources. A failing source leaves its prompt section empty.
func (n *RecallNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	var errs []error
	data := map[string]any{"recalled_count": 0, "knowledge_hits": 0}

	if n.memory != nil {
		recalled, err := n.memory.Recall(ctx, input.ConversationID, input.UserMessage, n.limit)
		if err != nil {
			errs = append(errs, err)
		} else {
			data[core.KeyRecalled] = recalled
			data[core.KeyMemoryContext] = memory.FormatRecalled(recalled)
			data["recalled_count"] = len(recalled)
		}
	}

	if n.knowledge != nil {
		personaID := pkg.PersonaSocialMedia
		if input.State != nil {
			personaID = input.State.ActivePersona
		}
		hits, err := n.knowledge.Search(ctx, personaID, input.UserMessage, n.topK)
		if err != nil {
			errs = append(errs, err)
		} else {
			data[core.KeyKnowledge] = knowledge.Format(hits)
			data["knowledge_hits"] = len(hits)
		}
	}

	return core.NodeOutput{Data: data, Error: errors.Join(errs...)}, nil
}

// GetName returns the node name
func (n *RecallNode) GetName() string {
	return string(core.NodeTypeRecall)
}

// GetType returns the node type
func (n *RecallNode) GetType() core.NodeType {
	return core.NodeTypeRecall
}
