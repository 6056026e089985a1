package intent

import "regexp"

// Intent labels used by the engine
const (
	Greeting            = "greeting"
	Farewell            = "farewell"
	Question            = "question"
	RequestHelp         = "request_help"
	RequestContent      = "request_content"
	RequestImage        = "request_image"
	RequestAudio        = "request_audio"
	ShareAchievement    = "share_achievement"
	ExpressFrustration  = "express_frustration"
	SeekValidation      = "seek_validation"
	RequestConsultation = "request_consultation"
	SmallTalk           = "small_talk"
	Objection           = "objection"
	BuyingSignal        = "buying_signal"
	General             = "general"
)

func rule(label string, confidence float64, patterns ...string) Rule {
	r := Rule{Label: label, Confidence: confidence}
	for _, p := range patterns {
		r.Patterns = append(r.Patterns, regexp.MustCompile(p))
	}
	return r
}

// DefaultRules returns a fresh copy of the built-in intent table.
// Patterns run against lower-cased text.
func DefaultRules() []Rule {
	return []Rule{
		rule(Greeting, 0.9, `^(oi|olá|eai|e aí|opa|fala|salve|bom dia|boa tarde|boa noite|hey|hello)`),
		rule(Farewell, 0.9, `^(tchau|até|flw|valeu|obrigad[oa]|vlw|bye|xau)`),
		rule(Question, 0.8, `\?$`, `^(como|o que|qual|quando|onde|por que|quem)`),
		rule(RequestHelp, 0.85, `ajuda|socorro|não consigo|preciso de|como faço`),
		rule(RequestContent, 0.9, `post|conteúdo|legenda|copy|texto|stories|reels|feed`),
		rule(RequestImage, 0.9, `imagem|foto|visual|design|criar.*imagem|gera.*imagem`),
		rule(RequestAudio, 0.9, `áudio|audio|manda.*voz|fala.*comigo|grava`),
		rule(ShareAchievement, 0.85, `consegui|vendi|fechei|ganhei|bateu|sucesso|deu certo`),
		rule(ExpressFrustration, 0.85, `não consigo|difícil|complicado|travado|desistir|cansado`),
		rule(SeekValidation, 0.8, `o que (você )?acha|tá bom|ficou legal|pode ver`),
		rule(RequestConsultation, 0.95, `quero.*ajuda.*profissional`),
		rule(SmallTalk, 0.7, `tudo bem|como vai|como (você )?está|beleza`),
		rule(Objection, 0.8, `caro|não tenho (tempo|dinheiro)|depois|agora não|vou pensar`),
		rule(BuyingSignal, 0.9, `quanto custa|como funciona|quero começar|me conta mais|interessado`),
	}
}

// DefaultComposites returns a fresh copy of the built-in composite table
func DefaultComposites() []Composite {
	return []Composite{
		{Label: "ready_to_buy", Requires: []string{BuyingSignal, RequestConsultation}},
		{Label: "needs_nurturing", Requires: []string{ExpressFrustration, Objection}},
		{Label: "highly_engaged", Requires: []string{ShareAchievement, RequestContent, Question}},
	}
}
