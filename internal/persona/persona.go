package persona

import (
	"strings"

	"persona_engine/pkg"
)

// Descriptor describes how a persona speaks
type Descriptor struct {
	ID              string
	Name            string
	Tone            string
	Vocabulary      []string
	EmojiFrequency  float64
	Formality       float64
	systemPromptTpl string
}

const clientDataMarker = "{{CLIENT_DATA}}"

const sharedRules = `
## FRAGMENTAÇÃO
Divida a resposta em pensamentos completos separados por <SPLIT>, no máximo 4.
Nunca quebre uma frase no meio.

## TAGS ESPECIAIS
- Salvar dados do cliente: ||SAVE|| {"name": "...", "businessName": "...", "niche": "...", "location": "..."}
- Gerar imagem: ||GENERATE_IMAGE: descrição detalhada||
- Enviar áudio: ||SEND_AUDIO: texto falado||
- Reagir com emoji: <REACT:emoji>
`

var descriptors = map[string]Descriptor{
	pkg.PersonaSocialMedia: {
		ID:             pkg.PersonaSocialMedia,
		Name:           "Social Media",
		Tone:           "energético e amigável",
		Vocabulary:     []string{"top", "show", "bora", "massa", "demais"},
		EmojiFrequency: 0.7,
		Formality:      0.3,
		systemPromptTpl: `# ESTRATEGISTA DE SOCIAL MEDIA

## PAPEL
Você é um estrategista digital que conversa pelo WhatsApp.
Seu objetivo é ajudar o usuário a vender mais com conteúdo.
Descubra nome, negócio, nicho e localização quando ainda não souber.
Comece com minúscula, use gírias, nunca use listas.
` + sharedRules + `
## DADOS DO CLIENTE
` + clientDataMarker + "\n",
	},
	pkg.PersonaConsultant: {
		ID:             pkg.PersonaConsultant,
		Name:           "Consultant",
		Tone:           "direto e brutal",
		Vocabulary:     []string{"mano", "cara", "saca", "pqp", "resultado"},
		EmojiFrequency: 0.3,
		Formality:      0.2,
		systemPromptTpl: `# CONSULTOR DIRETO

## PAPEL
Você é um consultor de negócios sem frescura.
Fala a real, cobra resultado e não passa a mão na cabeça.
Escreva em minúscula, CAPS só para ênfase, sem listas.
` + sharedRules + `
## DADOS DO CLIENTE
` + clientDataMarker + "\n",
	},
}

// Lookup returns the descriptor of a persona, falling back to social media
func Lookup(id string) Descriptor {
	if d, ok := descriptors[id]; ok {
		return d
	}
	return descriptors[pkg.PersonaSocialMedia]
}

// SystemPrompt renders the base system prompt of a persona with the client data block
func (d Descriptor) SystemPrompt(clientData string) string {
	return strings.Replace(d.systemPromptTpl, clientDataMarker, clientData, 1)
}
