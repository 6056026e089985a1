package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"persona_engine/internal/directive"
	"persona_engine/internal/logger"
	"persona_engine/pkg"
)

// ErrMaxSteps is returned when a flow keeps running past its step budget
var ErrMaxSteps = errors.New("graph exceeded maximum steps")

const defaultMaxSteps = 32

// DefaultGraphProcessor implements the GraphProcessor interface
type DefaultGraphProcessor struct {
	nodes    map[string]Node
	flow     GraphFlow
	maxSteps int
}

// NewGraphProcessor creates a new graph processor running flow
func NewGraphProcessor(flow GraphFlow) *DefaultGraphProcessor {
	return &DefaultGraphProcessor{
		nodes:    make(map[string]Node),
		flow:     flow,
		maxSteps: defaultMaxSteps,
	}
}

// Execute runs the graph flow with the given input
func (g *DefaultGraphProcessor) Execute(ctx context.Context, input ProcessorInput) (*ProcessorOutput, error) {
	startTime := time.Now()
	log := logger.Logger.With().Str("conversation_id", input.ConversationID).Logger()

	nodeInput := NodeInput{
		ConversationID: input.ConversationID,
		UserMessage:    input.UserMessage,
		Voice:          input.Voice,
		ContactName:    input.ContactName,
		Metadata:       make(map[string]any),
	}
	output := &ProcessorOutput{Metadata: make(map[string]any)}

	currentNode := g.flow.StartNode
	for currentNode != "" && currentNode != Complete {
		if len(output.ExecutionPath) >= g.maxSteps {
			return nil, fmt.Errorf("%w: %d", ErrMaxSteps, g.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		output.ExecutionPath = append(output.ExecutionPath, currentNode)

		node, exists := g.nodes[currentNode]
		if !exists {
			return nil, fmt.Errorf("node not found: %s", currentNode)
		}

		nodeOutput, err := node.Execute(ctx, nodeInput)
		if err != nil {
			log.Error().Err(err).Str("node", currentNode).Msg("node failed")
			return nil, fmt.Errorf("error executing node %s: %w", currentNode, err)
		}

		// Non-fatal node errors are recorded and the flow continues
		if nodeOutput.Error != nil {
			log.Warn().Err(nodeOutput.Error).Str("node", currentNode).Msg("node reported error")
			output.Errors = append(output.Errors, fmt.Sprintf("%s: %v", currentNode, nodeOutput.Error))
		}

		g.processNodeOutput(currentNode, nodeOutput, output, &nodeInput)

		if nodeOutput.Complete {
			break
		}

		nextNode := nodeOutput.NextNode
		if nextNode == "" {
			nextNode = g.getNextNode(currentNode, nodeOutput)
		}
		currentNode = nextNode
	}

	processingTime := time.Since(startTime)
	output.State = nodeInput.State
	output.Reply = nodeInput.Reply
	output.Recalled = nodeInput.Recalled
	output.ProcessingTime = processingTime.Milliseconds()

	log.Debug().
		Strs("path", output.ExecutionPath).
		Int64("duration_ms", output.ProcessingTime).
		Msg("turn graph completed")

	return output, nil
}

// AddNode adds a node to the processor
func (g *DefaultGraphProcessor) AddNode(node Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	nodeName := node.GetName()
	if nodeName == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	g.nodes[nodeName] = node
	logger.Debug().Str("node", nodeName).Str("type", string(node.GetType())).Msg("node added")
	return nil
}

// GetNode retrieves a node by name
func (g *DefaultGraphProcessor) GetNode(name string) (Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", name)
	}
	return node, nil
}

// SetFlow sets the execution flow
func (g *DefaultGraphProcessor) SetFlow(flow GraphFlow) error {
	if flow.StartNode == "" {
		return fmt.Errorf("start node cannot be empty")
	}
	g.flow = flow
	return nil
}

// processNodeOutput merges node data into the next node's input and the turn output
func (g *DefaultGraphProcessor) processNodeOutput(nodeName string, nodeOutput NodeOutput, out *ProcessorOutput, in *NodeInput) {
	for key, value := range nodeOutput.Data {
		switch key {
		case KeyState:
			if state, ok := value.(*pkg.ConversationState); ok {
				in.State = state
			}
		case KeyMemoryContext:
			if s, ok := value.(string); ok {
				in.MemoryContext = s
			}
		case KeyKnowledge:
			if s, ok := value.(string); ok {
				in.Knowledge = s
			}
		case KeyRecalled:
			if recalled, ok := value.([]pkg.RecalledMemory); ok {
				in.Recalled = recalled
			}
		case KeyReply:
			if reply, ok := value.(*directive.Result); ok {
				in.Reply = reply
			}
		default:
			out.Metadata[fmt.Sprintf("%s_%s", nodeName, key)] = value
			in.Metadata[key] = value
		}
	}
}

// getNextNode picks the first edge, by priority, whose condition holds
func (g *DefaultGraphProcessor) getNextNode(currentNode string, nodeOutput NodeOutput) string {
	edges := g.flow.Edges[currentNode]
	if len(edges) == 0 {
		return Complete
	}

	sorted := slices.Clone(edges)
	slices.SortStableFunc(sorted, func(a, b GraphEdge) int { return cmp.Compare(a.Priority, b.Priority) })
	for _, edge := range sorted {
		if evaluateCondition(edge.Condition, nodeOutput) {
			return edge.To
		}
	}
	return Complete
}

// evaluateCondition reports whether every condition key equals the node's output value
func evaluateCondition(condition map[string]any, nodeOutput NodeOutput) bool {
	for key, expectedValue := range condition {
		actualValue, exists := nodeOutput.Data[key]
		if !exists || actualValue != expectedValue {
			return false
		}
	}
	return true
}
