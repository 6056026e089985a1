package engine

import (
	"persona_engine/internal/intent"
	"persona_engine/pkg"
)

// DefaultCloseAfterMessages is the message count past which a pitch closes
const DefaultCloseAfterMessages = 30

var buyingIntents = map[string]bool{
	intent.BuyingSignal:        true,
	intent.RequestConsultation: true,
}

var objectionIntents = map[string]bool{
	intent.Objection: true,
}

// NextPhase advances the conversation phase by at most one step.
// Close is terminal.
func NextPhase(state *pkg.ConversationState, closeAfter int) pkg.Phase {
	if closeAfter <= 0 {
		closeAfter = DefaultCloseAfterMessages
	}
	label := state.CurrentIntent.Primary.Label
	profile := state.UserProfile

	switch state.Phase {
	case pkg.PhaseGreeting:
		if state.Metrics.MessageCount >= 1 {
			return pkg.PhaseDiscovery
		}
	case pkg.PhaseDiscovery:
		if buyingIntents[label] {
			return pkg.PhasePitch
		}
		if profile.Name != "" && (profile.Business != "" || profile.Niche != "") {
			return pkg.PhaseEngagement
		}
	case pkg.PhaseEngagement:
		if buyingIntents[label] {
			return pkg.PhasePitch
		}
	case pkg.PhasePitch:
		if objectionIntents[label] || state.Metrics.MessageCount > closeAfter {
			return pkg.PhaseClose
		}
	case pkg.PhaseClose:
		return pkg.PhaseClose
	default:
		return pkg.PhaseGreeting
	}
	return state.Phase
}
