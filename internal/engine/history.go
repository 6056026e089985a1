package engine

import (
	"persona_engine/pkg"

	"github.com/cloudwego/eino/schema"
)

// ContextStrategy selects and converts conversation messages for a model call
type ContextStrategy interface {
	BuildHistory(messages []pkg.ConversationMessage) []*schema.Message
	GetMaxTurns() int
}

// ResponseContextStrategy feeds the last maxTurns messages to reply generation
type ResponseContextStrategy struct {
	maxTurns int
}

func NewResponseContextStrategy(maxTurns int) *ResponseContextStrategy {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &ResponseContextStrategy{maxTurns: maxTurns}
}

func (s *ResponseContextStrategy) GetMaxTurns() int {
	return s.maxTurns
}

func (s *ResponseContextStrategy) BuildHistory(messages []pkg.ConversationMessage) []*schema.Message {
	recent := trimTail(messages, s.maxTurns)
	out := make([]*schema.Message, 0, len(recent))
	for _, m := range recent {
		switch m.Role {
		case pkg.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case pkg.RoleAgent:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

func trimTail(messages []pkg.ConversationMessage, maxTurns int) []pkg.ConversationMessage {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
