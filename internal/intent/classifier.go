package intent

import (
	"regexp"
	"slices"
	"strings"

	"persona_engine/pkg"
)

// Fallback is reported when no rule matches
var Fallback = pkg.IntentMatch{Label: "general", Confidence: 0.5}

// Rule maps an intent label to its patterns; the first matching pattern wins
type Rule struct {
	Label      string
	Patterns   []*regexp.Regexp
	Confidence float64
}

// Composite is a higher-level intent built from component labels
type Composite struct {
	Label    string
	Requires []string
}

// Classifier is a deterministic, table-driven intent detector
type Classifier struct {
	rules      []Rule
	composites []Composite
}

// New creates a classifier over the given tables
func New(rules []Rule, composites []Composite) *Classifier {
	return &Classifier{rules: rules, composites: composites}
}

// NewDefault creates a classifier over the built-in Portuguese tables
func NewDefault() *Classifier {
	return New(DefaultRules(), DefaultComposites())
}

// Classify detects every matching intent in text
func (c *Classifier) Classify(text string) pkg.IntentResult {
	lower := strings.ToLower(text)

	all := make([]pkg.IntentMatch, 0, 4)
	for _, rule := range c.rules {
		for _, p := range rule.Patterns {
			if loc := p.FindStringIndex(lower); loc != nil {
				all = append(all, pkg.IntentMatch{
					Label:      rule.Label,
					Confidence: rule.Confidence,
					Trigger:    lower[loc[0]:loc[1]],
				})
				break
			}
		}
	}

	slices.SortStableFunc(all, func(a, b pkg.IntentMatch) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	primary := Fallback
	if len(all) > 0 {
		primary = all[0]
	}

	return pkg.IntentResult{
		Primary:   primary,
		All:       all,
		Composite: c.detectComposites(all),
		RawText:   text,
	}
}

func (c *Classifier) detectComposites(all []pkg.IntentMatch) []pkg.CompositeIntent {
	detected := make(map[string]bool, len(all))
	for _, m := range all {
		detected[m.Label] = true
	}

	out := []pkg.CompositeIntent{}
	for _, comp := range c.composites {
		if len(comp.Requires) == 0 {
			continue
		}
		var matched []string
		for _, label := range comp.Requires {
			if detected[label] {
				matched = append(matched, label)
			}
		}
		if len(matched) > 0 {
			out = append(out, pkg.CompositeIntent{
				Label:            comp.Label,
				Confidence:       float64(len(matched)) / float64(len(comp.Requires)),
				SupportingLabels: matched,
			})
		}
	}
	return out
}
