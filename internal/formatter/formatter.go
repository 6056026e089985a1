package formatter

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// SplitMarker separates explicit fragments in generated text
const SplitMarker = "<SPLIT>"

// Typing paces in milliseconds per character
var paceMillis = map[string]float64{
	"fast":   20,
	"normal": 35,
	"slow":   50,
}

const (
	minTyping     = 800 * time.Millisecond
	maxTyping     = 4000 * time.Millisecond
	minInterDelay = 300 * time.Millisecond
	interJitter   = 500 * time.Millisecond
)

// Emoji removed before speech synthesis. The bare variation selector catches
// leftovers of sequences such as ✌️ and ❤️.
var ttsEmoji = []string{
	"🔥", "💪", "🚀", "🎉", "👏", "✌️", "✌", "👋", "😤", "💭", "🤔", "💜",
	"❤️", "❤", "🙏", "⚡", "💡", "👀", "✨", "😊", "🤗", "️",
}

var (
	reactTag   = regexp.MustCompile(`<REACT:.*?>`)
	pipeTag    = regexp.MustCompile(`\|\|.*?\|\|`)
	newlines   = regexp.MustCompile(`\n+`)
	extraSpace = regexp.MustCompile(`[ \t]{2,}`)
)

// Config controls fragmentation and typing simulation
type Config struct {
	MaxFragments     int
	MaxFragmentChars int
	TypingPace       string
}

// DefaultConfig returns the standard formatter settings
func DefaultConfig() Config {
	return Config{MaxFragments: 4, MaxFragmentChars: 200, TypingPace: "normal"}
}

// Message is one outgoing chat message with its simulated timing
type Message struct {
	Text        string        `json:"text"`
	TypingTime  time.Duration `json:"typing_time"`
	DelayBefore time.Duration `json:"delay_before"`
}

// Formatter turns a reply into humanized chat messages
type Formatter struct {
	cfg   Config
	rand  func() float64
	emoji *ahocorasick.Automaton
}

// Option configures a Formatter
type Option func(*Formatter)

// WithRand sets the source of timing jitter, returning values in [0, 1)
func WithRand(r func() float64) Option {
	return func(f *Formatter) { f.rand = r }
}

// New creates a formatter
func New(cfg Config, opts ...Option) (*Formatter, error) {
	def := DefaultConfig()
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = def.MaxFragments
	}
	if cfg.MaxFragmentChars <= 0 {
		cfg.MaxFragmentChars = def.MaxFragmentChars
	}
	if _, ok := paceMillis[cfg.TypingPace]; !ok {
		cfg.TypingPace = def.TypingPace
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(ttsEmoji).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build emoji matcher: %w", err)
	}

	f := &Formatter{cfg: cfg, rand: rand.Float64, emoji: automaton}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fragment breaks text into at most MaxFragments messages. Explicit split markers win;
// otherwise sentences are grouped up to MaxFragmentChars, and text of one or two
// sentences is kept whole.
func (f *Formatter) Fragment(text string) []string {
	limit := f.cfg.MaxFragments

	if strings.Contains(text, SplitMarker) {
		out := make([]string, 0, limit)
		for _, part := range strings.Split(text, SplitMarker) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
			if len(out) == limit {
				break
			}
		}
		return out
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	sentences := splitSentences(text)
	if len(sentences) <= 2 {
		return []string{text}
	}

	var fragments []string
	current := ""
	for i, s := range sentences {
		if len(fragments) == limit-1 {
			current = joinSentence(current, strings.Join(sentences[i:], " "))
			break
		}
		if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(s) > f.cfg.MaxFragmentChars {
			fragments = append(fragments, current)
			current = s
			continue
		}
		current = joinSentence(current, s)
	}
	if current != "" {
		fragments = append(fragments, current)
	}
	return fragments
}

// Messages fragments text and attaches typing and pause timings to each part
func (f *Formatter) Messages(text string) []Message {
	parts := f.Fragment(text)
	out := make([]Message, len(parts))
	for i, p := range parts {
		out[i] = Message{Text: p, TypingTime: f.TypingTime(p, "")}
		if i > 0 {
			out[i].DelayBefore = f.InterMessageDelay()
		}
	}
	return out
}

// TypingTime simulates how long typing text takes, with ±10% jitter.
// An empty or unknown pace uses the configured one.
func (f *Formatter) TypingTime(text, pace string) time.Duration {
	perChar, ok := paceMillis[pace]
	if !ok {
		perChar = paceMillis[f.cfg.TypingPace]
	}
	base := float64(utf8.RuneCountInString(text)) * perChar
	ms := base + base*0.2*(f.rand()-0.5)
	d := time.Duration(math.Round(ms)) * time.Millisecond
	return min(max(d, minTyping), maxTyping)
}

// InterMessageDelay returns the pause between two fragments, in [300ms, 800ms)
func (f *Formatter) InterMessageDelay() time.Duration {
	return minInterDelay + time.Duration(f.rand()*float64(interJitter))
}

// PrepareForTTS strips markup and emoji so text can be read aloud
func (f *Formatter) PrepareForTTS(text string) string {
	text = strings.ReplaceAll(text, SplitMarker, "... ")
	text = reactTag.ReplaceAllString(text, "")
	text = pipeTag.ReplaceAllString(text, "")
	text = f.stripEmoji(text)
	text = strings.ReplaceAll(text, "**", "")
	text = newlines.ReplaceAllString(text, ". ")
	text = extraSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (f *Formatter) stripEmoji(text string) string {
	haystack := []byte(text)
	matches := f.emoji.FindAllOverlapping(haystack)
	if len(matches) == 0 {
		return text
	}
	drop := make([]bool, len(haystack))
	for _, m := range matches {
		for i := m.Start; i < m.End && i < len(drop); i++ {
			drop[i] = true
		}
	}
	var sb strings.Builder
	sb.Grow(len(haystack))
	for i, b := range haystack {
		if !drop[i] {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// splitSentences cuts after '.', '!' or '?' when whitespace follows
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	startIdx := 0
	for i := 0; i < len(runes)-1; i++ {
		if !strings.ContainsRune(".!?", runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[startIdx:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		startIdx = j
		i = j - 1
	}
	if startIdx < len(runes) {
		out = append(out, string(runes[startIdx:]))
	}
	return out
}

func joinSentence(current, s string) string {
	if current == "" {
		return s
	}
	return current + " " + s
}
