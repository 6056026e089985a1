package emotion

import "regexp"

// Emotion labels
const (
	Excited    = "excited"
	Happy      = "happy"
	Grateful   = "grateful"
	Frustrated = "frustrated"
	Sad        = "sad"
	Confused   = "confused"
	Anxious    = "anxious"
	Curious    = "curious"
	Neutral    = "neutral"
)

// Rule is one emotion with its lexical patterns and static coordinates
type Rule struct {
	Label     string
	Patterns  []*regexp.Regexp
	Valence   float64
	Arousal   float64
	Reactions []string
}

func rule(label string, valence, arousal float64, reactions []string, patterns ...string) Rule {
	r := Rule{Label: label, Valence: valence, Arousal: arousal, Reactions: reactions}
	for _, p := range patterns {
		r.Patterns = append(r.Patterns, regexp.MustCompile(p))
	}
	return r
}

// DefaultRules returns a fresh copy of the built-in emotion table.
// An empty reaction means "no reaction".
func DefaultRules() []Rule {
	return []Rule{
		rule(Excited, 1.0, 0.9, []string{"🔥", "🚀", "💪"},
			`!{2,}`, `incrível|demais|top|show|massa|sensacional|animal`),
		rule(Happy, 0.8, 0.6, []string{"😊", "✨", "🎉"},
			`feliz|contente|alegre|ótimo|maravilhoso|adorei`),
		rule(Grateful, 0.9, 0.5, []string{"🙏", "❤️", "💜"},
			`obrigad[oa]|valeu|agradeço|gratidão|você é demais`),
		rule(Frustrated, -0.7, 0.8, []string{"😤", "💪", ""},
			`pqp|caramba|putz|droga|merda|não consigo|difícil`),
		rule(Sad, -0.8, 0.3, []string{"🤗", "💜", ""},
			`triste|desanimado|desistir|sozinho|perdido|fracasso`),
		rule(Confused, -0.2, 0.4, []string{"🤔", "💭", ""},
			`não entendi|como assim|pode explicar|confuso|perdido`),
		rule(Anxious, -0.3, 0.9, []string{"⚡", "💪", ""},
			`urgente|agora|rápido|preciso|ansioso|nervoso`),
		rule(Curious, 0.4, 0.6, []string{"👀", "🤔", "💡"},
			`interessante|conta mais|quero saber|como funciona`),
	}
}

// NeutralRule is the fallback when nothing else matches
func NeutralRule() Rule {
	return Rule{Label: Neutral, Valence: 0, Arousal: 0.5, Reactions: []string{""}}
}
