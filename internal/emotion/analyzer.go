package emotion

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"persona_engine/pkg"
)

const (
	trendWindow    = 3
	trendThreshold = 0.2
)

// Analyzer detects emotions lexically and tracks valence trend per conversation
type Analyzer struct {
	rules   []Rule
	neutral Rule
	history HistoryStore
	intn    func(n int) int
	now     func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithRand sets the source used to pick suggested reactions
func WithRand(intn func(n int) int) Option {
	return func(a *Analyzer) { a.intn = intn }
}

// WithClock sets the clock used to timestamp history entries
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer over rules backed by history
func NewAnalyzer(rules []Rule, history HistoryStore, opts ...Option) *Analyzer {
	if history == nil {
		history = NewMemoryHistory(10)
	}
	a := &Analyzer{
		rules:   rules,
		neutral: NeutralRule(),
		history: history,
		intn:    rand.IntN,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDefault creates an analyzer over the built-in table with a 10-entry history
func NewDefault(opts ...Option) *Analyzer {
	return NewAnalyzer(DefaultRules(), NewMemoryHistory(10), opts...)
}

// Analyze detects the emotions in text and records the primary one in the conversation history
func (a *Analyzer) Analyze(text, conversationID string) pkg.EmotionResult {
	lower := strings.ToLower(text)

	type hit struct {
		rule  Rule
		score float64
	}
	var hits []hit
	for _, r := range a.rules {
		for _, p := range r.Patterns {
			if p.MatchString(lower) {
				hits = append(hits, hit{rule: r, score: math.Abs(r.Valence) * r.Arousal})
				break
			}
		}
	}
	if len(hits) == 0 {
		hits = append(hits, hit{rule: a.neutral, score: 0})
	}

	primary := hits[0]
	for _, h := range hits[1:] {
		if h.score > primary.score {
			primary = h
		}
	}

	all := make([]pkg.EmotionMatch, 0, len(hits))
	for _, h := range hits {
		all = append(all, pkg.EmotionMatch{
			Label:      h.rule.Label,
			Valence:    h.rule.Valence,
			Arousal:    h.rule.Arousal,
			Confidence: h.score,
		})
	}
	slices.SortStableFunc(all, func(x, y pkg.EmotionMatch) int {
		switch {
		case x.Confidence > y.Confidence:
			return -1
		case x.Confidence < y.Confidence:
			return 1
		}
		return 0
	})

	window := a.history.Append(conversationID, HistoryEntry{
		Label:   primary.rule.Label,
		Valence: primary.rule.Valence,
		At:      a.now(),
	})

	return pkg.EmotionResult{
		Primary:           primary.rule.Label,
		Valence:           primary.rule.Valence,
		Arousal:           primary.rule.Arousal,
		Intensity:         primary.score,
		Trend:             Trend(window),
		All:               all,
		SuggestedReaction: a.pick(primary.rule.Reactions),
	}
}

// Reset clears the emotion history of a conversation
func (a *Analyzer) Reset(conversationID string) {
	a.history.Reset(conversationID)
}

// History returns the retained emotion history of a conversation
func (a *Analyzer) History(conversationID string) []HistoryEntry {
	return a.history.Entries(conversationID)
}

func (a *Analyzer) pick(reactions []string) string {
	if len(reactions) == 0 {
		return ""
	}
	return reactions[a.intn(len(reactions))]
}

// Trend compares the mean valence of the last three entries with the mean of the older ones
func Trend(history []HistoryEntry) pkg.Trend {
	if len(history) < trendWindow {
		return pkg.TrendStable
	}
	split := len(history) - trendWindow
	recent := meanValence(history[split:])
	older := meanValence(history[:split])

	switch {
	case recent > older+trendThreshold:
		return pkg.TrendRising
	case recent < older-trendThreshold:
		return pkg.TrendFalling
	}
	return pkg.TrendStable
}

func meanValence(entries []HistoryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Valence
	}
	return sum / float64(len(entries))
}
