package engine

import (
	"math"

	"persona_engine/pkg"
)

var positiveIntents = map[string]bool{
	"question":        true,
	"request_content": true,
	"buying_signal":   true,
	"curious":         true,
}

// Engagement scores a conversation from 0 to 100 out of volume, mean sentiment,
// the current intent and how much the user has shared
func Engagement(state *pkg.ConversationState) int {
	score := math.Min(float64(state.Metrics.MessageCount*2), 30)

	if trend := state.Metrics.SentimentTrend; len(trend) > 0 {
		var sum float64
		for _, v := range trend {
			sum += v
		}
		score += (sum/float64(len(trend)) + 1) * 15
	}

	if positiveIntents[state.CurrentIntent.Primary.Label] {
		score += 20
	}

	p := state.UserProfile
	for _, known := range []bool{p.Name != "", p.Business != "", p.Niche != ""} {
		if known {
			score += 5
		}
	}

	return int(math.Min(math.Round(score), 100))
}
