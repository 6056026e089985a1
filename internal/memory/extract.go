package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"persona_engine/pkg"
)

// ExtractContext carries the emotional reading of the message being mined
type ExtractContext struct {
	Emotion   string
	Intensity float64
}

// Extracted is a memory created from a user message
type Extracted struct {
	ID         string
	Kind       pkg.MemoryKind
	Content    string
	Importance float64
	Emotion    string
}

type template struct {
	name       string
	patterns   []*regexp.Regexp
	group      int
	format     string
	kind       pkg.MemoryKind
	importance float64
	emotion    string
	skip       func(string) bool
}

var articlePrefixes = []string{"o ", "a ", "de ", "da ", "do "}

func skipArticle(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range articlePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

var templates = []template{
	{
		name: "name",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)me chamo (\p{L}+)`),
			regexp.MustCompile(`(?i)meu nome é (\p{L}+)`),
			regexp.MustCompile(`(?i)sou o (\p{L}+)`),
		},
		group: 1, format: "O nome do usuário é %s",
		kind: pkg.MemorySemantic, importance: pkg.ImportanceHigh,
	},
	{
		name: "work",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)trabalho com (.+?)(?:[.,!]|$)`),
			regexp.MustCompile(`(?i)\bsou (.+?)(?:[.,!]|$)`),
		},
		group: 1, format: "O usuário trabalha com %s",
		kind: pkg.MemorySemantic, importance: pkg.ImportanceHigh,
		skip: skipArticle,
	},
	{
		name: "business",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:tenho|abri) uma? (.+?)(?:\s+em\s+|[.,!]|$)`),
		},
		group: 1, format: "O usuário tem um negócio: %s",
		kind: pkg.MemorySemantic, importance: pkg.ImportanceHigh,
	},
	{
		name: "location",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)moro em (.+?)(?:[.,!]|$)`),
			regexp.MustCompile(`(?i)sou de (.+?)(?:[.,!]|$)`),
			regexp.MustCompile(`(?:^|\s)(?i:em)\s+(\p{Lu}\p{L}+(?:\s+(?:d[aoe]s?\s+)?\p{Lu}\p{L}+)*)`),
		},
		group: 1, format: "O usuário mora em %s",
		kind: pkg.MemorySemantic, importance: pkg.ImportanceMedium,
	},
	{
		name: "goal",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)meu objetivo é (.+?)(?:[.,!]|$)`),
			regexp.MustCompile(`(?i)quero (.+?)(?:[.,!]|$)`),
		},
		group: 1, format: "O objetivo do usuário é %s",
		kind: pkg.MemorySemantic, importance: pkg.ImportanceHigh,
	},
	{
		name: "achievement",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)consegui (.+?)(?:!|$)`),
			regexp.MustCompile(`(?i)finalmente (.+?)(?:!|$)`),
		},
		group: 1, format: "O usuário teve uma conquista: %s",
		kind: pkg.MemoryEpisodic, importance: pkg.ImportanceHigh, emotion: "excited",
	},
	{
		name: "difficulty",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)estou com (problema|dificuldade) (.+?)(?:[.!]|$)`),
		},
		group: 2, format: "O usuário está com dificuldade: %s",
		kind: pkg.MemoryEmotional, importance: pkg.ImportanceHigh, emotion: "frustrated",
	},
}

// emotionalMomentThreshold is the intensity above which the raw message is kept as an emotional memory
const emotionalMomentThreshold = 0.7

// ExtractAndStore mines a user message for facts and stores each one it finds.
// A strongly emotional message is additionally kept verbatim as an emotional moment,
// which is not part of the returned list.
func (s *Store) ExtractAndStore(ctx context.Context, ownerID, message string, ec ExtractContext) ([]Extracted, error) {
	found := extract(message)
	out := make([]Extracted, 0, len(found))
	for _, f := range found {
		emotion := f.Emotion
		if emotion == "" {
			emotion = ec.Emotion
		}
		if emotion == "" {
			emotion = "neutral"
		}
		id, err := s.Store(ctx, ownerID, f.Content, StoreOptions{
			Kind:       f.Kind,
			Importance: f.Importance,
			Emotion:    emotion,
			Metadata:   map[string]any{"source": "extraction"},
		})
		if err != nil {
			return out, err
		}
		f.ID = id
		f.Emotion = emotion
		out = append(out, f)
	}

	if ec.Emotion != "" && ec.Intensity > emotionalMomentThreshold {
		moment := fmt.Sprintf("Momento emocional (%s): \"%s\"", ec.Emotion, truncateRunes(message, 100))
		if _, err := s.Store(ctx, ownerID, moment, StoreOptions{
			Kind:       pkg.MemoryEmotional,
			Importance: pkg.ImportanceHigh,
			Emotion:    ec.Emotion,
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

// extract applies every template to message, taking the first matching pattern of each
func extract(message string) []Extracted {
	var out []Extracted
	for _, t := range templates {
		for _, re := range t.patterns {
			m := re.FindStringSubmatch(message)
			if m == nil || len(m) <= t.group {
				continue
			}
			value := strings.TrimSpace(m[t.group])
			if value == "" || (t.skip != nil && t.skip(value)) {
				continue
			}
			out = append(out, Extracted{
				Kind:       t.kind,
				Content:    fmt.Sprintf(t.format, value),
				Importance: t.importance,
				Emotion:    t.emotion,
			})
			break
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
