package directive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"persona_engine/internal/logger"

	"github.com/bytedance/sonic"
)

// Tag delimiters of the directive wire format
const (
	SaveOpener    = "||SAVE||"
	ImageOpener   = "||GENERATE_IMAGE:"
	AudioOpener   = "||SEND_AUDIO:"
	ReactOpener   = "<REACT:"
	PipeCloser    = "||"
	ReactCloser   = ">"
	MaxPayloadLen = 5000
	MaxSaveFields = 50
)

var (
	ErrEmptyPayload   = errors.New("directive payload is empty")
	ErrPayloadTooLong = errors.New("directive payload too long")
	ErrInvalidSave    = errors.New("invalid save payload")
)

// tagParser decodes the payload of one tag type
type tagParser interface {
	Parse(payload string) error
	AddToResult(result *Result)
}

type saveParser struct{ Save }
type imageParser struct{ GenerateImage }
type audioParser struct{ SendAudio }
type reactParser struct{ React }

func validatePayload(s string, maxLength int, field string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s: %w", field, ErrEmptyPayload)
	}
	if len(s) > maxLength {
		return fmt.Errorf("%s: %w: %d bytes (max: %d)", field, ErrPayloadTooLong, len(s), maxLength)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid UTF-8", field)
	}
	return nil
}

func (p *saveParser) Parse(payload string) error {
	if err := validatePayload(payload, MaxPayloadLen, "save"); err != nil {
		return err
	}
	var data map[string]any
	if err := sonic.UnmarshalString(payload, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if data == nil {
		return fmt.Errorf("%w: not an object", ErrInvalidSave)
	}
	if len(data) > MaxSaveFields {
		return fmt.Errorf("%w: too many fields: %d (max: %d)", ErrInvalidSave, len(data), MaxSaveFields)
	}
	p.Data = data
	return nil
}

func (p *saveParser) AddToResult(r *Result) { r.Directives = append(r.Directives, p.Save) }

func (p *imageParser) Parse(payload string) error {
	p.Prompt = strings.TrimSpace(payload)
	return validatePayload(p.Prompt, MaxPayloadLen, "image prompt")
}

func (p *imageParser) AddToResult(r *Result) { r.Directives = append(r.Directives, p.GenerateImage) }

func (p *audioParser) Parse(payload string) error {
	p.Text = strings.TrimSpace(payload)
	return validatePayload(p.Text, MaxPayloadLen, "audio text")
}

func (p *audioParser) AddToResult(r *Result) { r.Directives = append(r.Directives, p.SendAudio) }

func (p *reactParser) Parse(payload string) error {
	p.Emoji = strings.TrimSpace(payload)
	return validatePayload(p.Emoji, 64, "reaction")
}

func (p *reactParser) AddToResult(r *Result) { r.Directives = append(r.Directives, p.React) }

func createParser(kind Kind) tagParser {
	switch kind {
	case KindSave:
		return &saveParser{}
	case KindGenerateImage:
		return &imageParser{}
	case KindSendAudio:
		return &audioParser{}
	default:
		return &reactParser{}
	}
}

var openers = []struct {
	kind   Kind
	opener string
}{
	{KindSave, SaveOpener},
	{KindGenerateImage, ImageOpener},
	{KindSendAudio, AudioOpener},
	{KindReact, ReactOpener},
}

var (
	inlineSpace = regexp.MustCompile(`[ \t]+`)
	lineEdges   = regexp.MustCompile(` ?\n ?`)
)

// Parse extracts every directive from text in order of appearance and returns the
// text with their markup removed. A malformed payload drops the directive but still
// removes its markup; an unterminated tag is left in the text as is.
func Parse(text string) *Result {
	result := &Result{Directives: []Directive{}}
	var out strings.Builder
	out.Grow(len(text))

	i := 0
	for i < len(text) {
		start, kind, opener := nextTag(text, i)
		if start < 0 {
			out.WriteString(text[i:])
			break
		}
		out.WriteString(text[i:start])

		payload, end, ok := scanPayload(text, start+len(opener), kind)
		if !ok {
			out.WriteString(opener)
			i = start + len(opener)
			continue
		}

		parser := createParser(kind)
		if err := parser.Parse(payload); err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("dropping malformed directive")
			result.Errors = append(result.Errors, err)
		} else {
			parser.AddToResult(result)
		}
		out.WriteString(" ")
		i = end
	}

	result.Text = cleanText(out.String())
	return result
}

// Strip removes directive markup without collecting the directives
func Strip(text string) string {
	return Parse(text).Text
}

// nextTag finds the earliest tag opener at or after from
func nextTag(text string, from int) (int, Kind, string) {
	best, bestKind, bestOpener := -1, Kind(""), ""
	for _, o := range openers {
		idx := strings.Index(text[from:], o.opener)
		if idx < 0 {
			continue
		}
		idx += from
		if best < 0 || idx < best {
			best, bestKind, bestOpener = idx, o.kind, o.opener
		}
	}
	return best, bestKind, bestOpener
}

// scanPayload returns the payload following an opener and the index just past the tag
func scanPayload(text string, from int, kind Kind) (string, int, bool) {
	switch kind {
	case KindSave:
		return scanObject(text, from)
	case KindReact:
		idx := strings.Index(text[from:], ReactCloser)
		if idx < 0 {
			return "", 0, false
		}
		return text[from : from+idx], from + idx + len(ReactCloser), true
	default:
		idx := strings.Index(text[from:], PipeCloser)
		if idx < 0 {
			return "", 0, false
		}
		return text[from : from+idx], from + idx + len(PipeCloser), true
	}
}

// scanObject reads a brace-balanced JSON object after optional whitespace.
// Braces inside string literals do not count. A SAVE marker with no object
// yields an empty payload so that the marker is still removed.
func scanObject(text string, from int) (string, int, bool) {
	i := from
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	if i >= len(text) || text[i] != '{' {
		return "", from, true
	}

	depth, inString, escaped := 0, false, false
	for j := i; j < len(text); j++ {
		c := text[j]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[i : j+1], j + 1, true
			}
		}
	}
	return "", 0, false
}

func cleanText(s string) string {
	s = inlineSpace.ReplaceAllString(s, " ")
	s = lineEdges.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
