package engine

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"persona_engine/pkg"
)

// ExtractedData holds the profile fields found in one user message
type ExtractedData struct {
	Name         string `json:"name,omitempty"`
	Business     string `json:"business,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Empty reports whether nothing was found
func (d ExtractedData) Empty() bool {
	return d == ExtractedData{}
}

const shortAnswerWords = 10

var (
	askLocation = regexp.MustCompile(`onde.*?você|sua.*?cidade|qual.*?estado|fica.*?aonde`)
	askBusiness = regexp.MustCompile(`nome.*?loja|nome.*?negócio|chama.*?sua.*?empresa`)
	askName     = regexp.MustCompile(`seu.*?nome|como.*?chamo|quem.*?é.*?você|como.*?se chama`)

	trivialAnswers = []string{"não", "sim", "ainda não", "no", "not yet", "nao", "nada"}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:me chamo|meu nome é|sou o|sou a|pode me chamar de)\s+(\p{Lu}\p{L}*(?:\s+\p{Lu}\p{L}*)*)`),
		regexp.MustCompile(`(?i)^eu sou o\s+(\p{L}+)`),
	}
	businessPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:trabalho com|sou|meu negócio é|atuo com|faço)\s+(.+?)(?:[.,!?]|$)`),
		regexp.MustCompile(`(?i)\b(?:tenho uma?|abri uma?)\s+(.+?)(?:\s+em\s+|[.,!?]|$)`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:moro em|sou de|fico em|estou em)\s+(.+?)(?:[.,!?]|$)`),
		regexp.MustCompile(`(?:^|\s)(?i:em)\s+(\p{Lu}\p{L}+(?:\s+(?:d[aoe]s?\s+)?\p{Lu}\p{L}+)*)`),
	}

	articlePrefixes = []string{"o ", "a ", "de ", "da ", "do "}
)

// ExtractUserData finds profile facts in message. A short reply to an agent question
// about location, business name or person name is taken as the answer to it; generic
// patterns then fill what is still missing. Fields already on the profile are never
// reported.
func ExtractUserData(message string, state *pkg.ConversationState) ExtractedData {
	var out ExtractedData
	text := strings.TrimSpace(message)
	if text == "" {
		return out
	}
	profile := state.UserProfile

	if question := previousAgentMessage(state); question != "" && len(strings.Fields(text)) < shortAnswerWords {
		answer := strings.TrimRight(text, ".!?, ")
		if answer != "" && !slices.Contains(trivialAnswers, strings.ToLower(answer)) {
			switch {
			case askLocation.MatchString(question):
				if profile.Location == "" {
					out.Location = answer
				}
			case askBusiness.MatchString(question):
				if profile.Business == "" {
					out.Business = answer
					out.BusinessName = answer
				}
			case askName.MatchString(question):
				if profile.Name == "" {
					out.Name = answer
				}
			}
		}
	}

	if profile.Name == "" && out.Name == "" {
		out.Name = firstCapture(namePatterns, text, nil)
	}
	if profile.Business == "" && out.Business == "" {
		out.Business = firstCapture(businessPatterns, text, func(v string) bool {
			n := utf8.RuneCountInString(v)
			return n > 3 && n < 50 && !hasArticlePrefix(v)
		})
	}
	if profile.Location == "" && out.Location == "" {
		out.Location = firstCapture(locationPatterns, text, nil)
	}
	return out
}

// ApplyExtracted copies extracted facts onto the profile; a business also seeds an empty niche
func ApplyExtracted(profile *pkg.UserProfile, d ExtractedData) {
	if d.Name != "" {
		profile.Name = d.Name
	}
	if d.Business != "" {
		profile.Business = d.Business
		if profile.Niche == "" {
			profile.Niche = d.Business
		}
	}
	if d.BusinessName != "" {
		profile.BusinessName = d.BusinessName
	}
	if d.Location != "" {
		profile.Location = d.Location
	}
}

// MergeProfile applies SAVE directive data. Known scalar keys overwrite, list keys
// append values not yet present, anything else lands in Extra.
func MergeProfile(profile *pkg.UserProfile, data map[string]any) {
	for key, value := range data {
		switch key {
		case "name":
			setString(&profile.Name, value)
		case "business":
			setString(&profile.Business, value)
		case "businessName", "business_name":
			setString(&profile.BusinessName, value)
		case "niche":
			setString(&profile.Niche, value)
		case "location":
			setString(&profile.Location, value)
		case "communicationStyle", "communication_style":
			setString(&profile.CommunicationStyle, value)
		case "responsePreference", "response_preference":
			setString(&profile.ResponsePreference, value)
		case "topics", "topicsOfInterest", "topics_of_interest":
			profile.TopicsOfInterest = appendUnique(profile.TopicsOfInterest, value)
		case "painPoints", "pain_points":
			profile.PainPoints = appendUnique(profile.PainPoints, value)
		case "goals":
			profile.Goals = appendUnique(profile.Goals, value)
		default:
			if profile.Extra == nil {
				profile.Extra = make(map[string]any)
			}
			profile.Extra[key] = value
		}
	}
}

// previousAgentMessage returns the lower-cased message right before the current user
// message when the agent wrote it
func previousAgentMessage(state *pkg.ConversationState) string {
	n := len(state.Messages)
	if n < 2 || state.Messages[n-2].Role != pkg.RoleAgent {
		return ""
	}
	return strings.ToLower(state.Messages[n-2].Content)
}

func firstCapture(patterns []*regexp.Regexp, text string, accept func(string) bool) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[1])
		if v == "" || (accept != nil && !accept(v)) {
			continue
		}
		return v
	}
	return ""
}

func hasArticlePrefix(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range articlePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func setString(dst *string, value any) {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			*dst = s
		}
	case nil:
	default:
		*dst = fmt.Sprint(v)
	}
}

func appendUnique(list []string, value any) []string {
	var items []string
	switch v := value.(type) {
	case string:
		items = []string{v}
	case []string:
		items = v
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				items = append(items, s)
			}
		}
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" && !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
