package nodes

import (
	"fmt"

	"persona_engine/internal/core"
	"persona_engine/internal/engine"
	"persona_engine/internal/generation"
	"persona_engine/internal/knowledge"
	"persona_engine/internal/memory"
	"persona_engine/internal/storage"
)

// Deps are the collaborators of the turn nodes. Memory, Knowledge and Clients are optional.
type Deps struct {
	Engine      *engine.Engine
	Memory      *memory.Store
	Knowledge   *knowledge.Index
	Generator   generation.Generator
	Clients     storage.ClientStore
	RecallLimit int
	KnowledgeK  int
}

// NewTurnGraph builds the processor for one conversational turn
func NewTurnGraph(d Deps) (*core.DefaultGraphProcessor, error) {
	if d.Engine == nil || d.Generator == nil {
		return nil, fmt.Errorf("turn graph requires an engine and a generator")
	}

	recall := d.Memory != nil || d.Knowledge != nil
	g := core.NewGraphProcessor(core.DefaultFlow())
	turnNodes := []core.Node{
		NewStateNode(d.Engine, recall),
		NewRespondNode(d.Engine, d.Generator),
		NewLearnNode(d.Engine, d.Memory, d.Clients),
	}
	if recall {
		turnNodes = append(turnNodes, NewRecallNode(d.Memory, d.Knowledge, d.RecallLimit, d.KnowledgeK))
	}
	for _, n := range turnNodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}
