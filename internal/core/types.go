package core

import (
	"context"

	"persona_engine/internal/directive"
	"persona_engine/pkg"
)

// Node represents a single processing unit in the turn graph
type Node interface {
	Execute(ctx context.Context, input NodeInput) (NodeOutput, error)
	GetName() string
	GetType() NodeType
}

// NodeType defines the different types of nodes in the graph
type NodeType string

const (
	NodeTypeState   NodeType = "state"
	NodeTypeRecall  NodeType = "recall"
	NodeTypeRespond NodeType = "respond"
	NodeTypeLearn   NodeType = "learn"
)

// Terminal node name
const Complete = "complete"

// Well-known data keys merged into the turn by the processor
const (
	KeyState         = "state"
	KeyMemoryContext = "memory_context"
	KeyKnowledge     = "knowledge_context"
	KeyRecalled      = "recalled"
	KeyReply         = "reply"
)

// NodeInput is the turn as seen by a node; it accumulates the outputs of earlier nodes
type NodeInput struct {
	ConversationID string                 `json:"conversation_id"`
	UserMessage    string                 `json:"user_message"`
	Voice          *pkg.VoiceContext      `json:"voice,omitempty"`
	ContactName    string                 `json:"contact_name,omitempty"`
	State          *pkg.ConversationState `json:"state,omitempty"`
	MemoryContext  string                 `json:"memory_context,omitempty"`
	Knowledge      string                 `json:"knowledge_context,omitempty"`
	Recalled       []pkg.RecalledMemory   `json:"recalled,omitempty"`
	Reply          *directive.Result      `json:"reply,omitempty"`
	Metadata       map[string]any         `json:"metadata"`
}

// NodeOutput contains the output data from a node
type NodeOutput struct {
	Data     map[string]any `json:"data"`
	NextNode string         `json:"next_node,omitempty"`
	Error    error          `json:"error,omitempty"`
	Complete bool           `json:"complete"`
}

// GraphProcessor orchestrates the execution of nodes in a graph flow
type GraphProcessor interface {
	Execute(ctx context.Context, input ProcessorInput) (*ProcessorOutput, error)
	AddNode(node Node) error
	GetNode(name string) (Node, error)
	SetFlow(flow GraphFlow) error
}

// ProcessorInput is one user turn
type ProcessorInput struct {
	ConversationID string            `json:"conversation_id"`
	UserMessage    string            `json:"user_message"`
	Voice          *pkg.VoiceContext `json:"voice,omitempty"`
	ContactName    string            `json:"contact_name,omitempty"`
}

// ProcessorOutput is what a turn produced
type ProcessorOutput struct {
	State          *pkg.ConversationState `json:"state"`
	Reply          *directive.Result      `json:"reply"`
	Recalled       []pkg.RecalledMemory   `json:"recalled,omitempty"`
	ExecutionPath  []string               `json:"execution_path"`
	Errors         []string               `json:"errors,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
	Metadata       map[string]any         `json:"metadata"`
}

// GraphFlow defines the execution flow between nodes
type GraphFlow struct {
	StartNode string                 `json:"start_node"`
	Edges     map[string][]GraphEdge `json:"edges"` // node_name -> possible next nodes
}

// GraphEdge represents a connection between two nodes with conditions
type GraphEdge struct {
	To        string         `json:"to"`
	Condition map[string]any `json:"condition,omitempty"`
	Priority  int            `json:"priority"`
}

// DefaultFlow wires state -> recall -> respond -> learn. Recall is skipped when
// the state node reports it disabled.
func DefaultFlow() GraphFlow {
	return GraphFlow{
		StartNode: string(NodeTypeState),
		Edges: map[string][]GraphEdge{
			string(NodeTypeState): {
				{To: string(NodeTypeRecall), Condition: map[string]any{"recall_enabled": true}, Priority: 1},
				{To: string(NodeTypeRespond), Priority: 2},
			},
			string(NodeTypeRecall):  {{To: string(NodeTypeRespond), Priority: 1}},
			string(NodeTypeRespond): {{To: string(NodeTypeLearn), Priority: 1}},
		},
	}
}
