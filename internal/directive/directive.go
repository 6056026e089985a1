package directive

// Kind names a directive variant
type Kind string

const (
	KindSave          Kind = "save"
	KindGenerateImage Kind = "generate_image"
	KindSendAudio     Kind = "send_audio"
	KindReact         Kind = "react"
)

// Directive is an action embedded in generated text. The variants are
// Save, GenerateImage, SendAudio and React.
type Directive interface {
	Kind() Kind
	isDirective()
}

// Save carries profile data to merge, from ||SAVE|| {json}
type Save struct {
	Data map[string]any `json:"data"`
}

// GenerateImage requests an image, from ||GENERATE_IMAGE: prompt||
type GenerateImage struct {
	Prompt string `json:"prompt"`
}

// SendAudio requests a voice reply, from ||SEND_AUDIO: text||
type SendAudio struct {
	Text string `json:"text"`
}

// React requests an emoji reaction on the user's message, from <REACT:emoji>
type React struct {
	Emoji string `json:"emoji"`
}

func (Save) Kind() Kind          { return KindSave }
func (GenerateImage) Kind() Kind { return KindGenerateImage }
func (SendAudio) Kind() Kind     { return KindSendAudio }
func (React) Kind() Kind         { return KindReact }

func (Save) isDirective()          {}
func (GenerateImage) isDirective() {}
func (SendAudio) isDirective()     {}
func (React) isDirective()         {}

// Result is the outcome of parsing one generated reply
type Result struct {
	Text       string      `json:"text"`
	Directives []Directive `json:"directives"`
	Errors     []error     `json:"-"`
}

// SaveData merges the payloads of every Save directive, later keys winning
func (r *Result) SaveData() map[string]any {
	var out map[string]any
	for _, d := range r.Directives {
		if s, ok := d.(Save); ok {
			if out == nil {
				out = make(map[string]any, len(s.Data))
			}
			for k, v := range s.Data {
				out[k] = v
			}
		}
	}
	return out
}

// ImagePrompt returns the first image request
func (r *Result) ImagePrompt() (string, bool) {
	for _, d := range r.Directives {
		if g, ok := d.(GenerateImage); ok {
			return g.Prompt, true
		}
	}
	return "", false
}

// AudioText returns the first audio request
func (r *Result) AudioText() (string, bool) {
	for _, d := range r.Directives {
		if a, ok := d.(SendAudio); ok {
			return a.Text, true
		}
	}
	return "", false
}

// Reaction returns the first reaction
func (r *Result) Reaction() (string, bool) {
	for _, d := range r.Directives {
		if re, ok := d.(React); ok {
			return re.Emoji, true
		}
	}
	return "", false
}
