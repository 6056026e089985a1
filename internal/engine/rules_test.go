package engine

import (
	"testing"

	"persona_engine/pkg"

	"github.com/stretchr/testify/assert"
)

func stateWith(phase pkg.Phase, label string, count int) *pkg.ConversationState {
	s := pkg.NewConversationState("c", start)
	s.Phase = phase
	s.CurrentIntent.Primary.Label = label
	s.Metrics.MessageCount = count
	return s
}

func TestNextPhase(t *testing.T) {
	known := func(s *pkg.ConversationState) *pkg.ConversationState {
		s.UserProfile.Name = "Ana"
		s.UserProfile.Niche = "moda"
		return s
	}
	tests := []struct {
		name  string
		state *pkg.ConversationState
		want  pkg.Phase
	}{
		{"greeting waits for a message", stateWith(pkg.PhaseGreeting, "general", 0), pkg.PhaseGreeting},
		{"greeting to discovery", stateWith(pkg.PhaseGreeting, "buying_signal", 1), pkg.PhaseDiscovery},
		{"discovery without profile", stateWith(pkg.PhaseDiscovery, "general", 3), pkg.PhaseDiscovery},
		{"discovery with name only", func() *pkg.ConversationState {
			s := stateWith(pkg.PhaseDiscovery, "general", 3)
			s.UserProfile.Name = "Ana"
			return s
		}(), pkg.PhaseDiscovery},
		{"discovery to engagement", known(stateWith(pkg.PhaseDiscovery, "general", 3)), pkg.PhaseEngagement},
		{"discovery to pitch", stateWith(pkg.PhaseDiscovery, "request_consultation", 3), pkg.PhasePitch},
		{"engagement to pitch", stateWith(pkg.PhaseEngagement, "buying_signal", 5), pkg.PhasePitch},
		{"engagement stays", stateWith(pkg.PhaseEngagement, "objection", 40), pkg.PhaseEngagement},
		{"pitch on objection", stateWith(pkg.PhasePitch, "objection", 5), pkg.PhaseClose},
		{"pitch at ceiling", stateWith(pkg.PhasePitch, "general", 30), pkg.PhasePitch},
		{"pitch past ceiling", stateWith(pkg.PhasePitch, "general", 31), pkg.PhaseClose},
		{"close is terminal", stateWith(pkg.PhaseClose, "greeting", 2), pkg.PhaseClose},
		{"unknown phase resets", stateWith("weird", "general", 2), pkg.PhaseGreeting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPhase(tt.state, 30))
		})
	}
}

func TestEngagement(t *testing.T) {
	empty := stateWith(pkg.PhaseGreeting, "general", 0)
	assert.Equal(t, 0, Engagement(empty))

	full := stateWith(pkg.PhaseEngagement, "question", 20)
	full.Metrics.SentimentTrend = []float64{1, 1}
	full.UserProfile.Name = "Ana"
	full.UserProfile.Business = "doceria"
	full.UserProfile.Niche = "doces"
	assert.Equal(t, 95, Engagement(full))

	negative := stateWith(pkg.PhaseDiscovery, "general", 3)
	negative.Metrics.SentimentTrend = []float64{-0.7, -0.8}
	assert.Equal(t, 10, Engagement(negative))
}

func conversation(agent, user string) *pkg.ConversationState {
	s := pkg.NewConversationState("c", start)
	s.Messages = []pkg.ConversationMessage{
		{Role: pkg.RoleAgent, Content: agent},
		{Role: pkg.RoleUser, Content: user},
	}
	return s
}

func TestExtractUserData_ContextAnswers(t *testing.T) {
	tests := []struct {
		name  string
		agent string
		user  string
		want  ExtractedData
	}{
		{"business name", "Qual o nome da sua loja?", "Pizzaria do Zé", ExtractedData{Business: "Pizzaria do Zé", BusinessName: "Pizzaria do Zé"}},
		{"person name", "E como você se chama?", "Ana", ExtractedData{Name: "Ana"}},
		{"location", "Onde você mora?", "Curitiba.", ExtractedData{Location: "Curitiba"}},
		{"stoplist", "Qual é o seu nome?", "não", ExtractedData{}},
		{"long answer ignored", "Qual é o seu nome?", "olha eu prefiro não dizer isso agora porque estou meio ocupado", ExtractedData{}},
		{"no question", "Que legal!", "Ana", ExtractedData{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractUserData(tt.user, conversation(tt.agent, tt.user)))
		})
	}
}

func TestExtractUserData_GenericPatterns(t *testing.T) {
	tests := []struct {
		message string
		want    ExtractedData
	}{
		{"me chamo João, tenho uma pizzaria em São Paulo", ExtractedData{Name: "João", Business: "pizzaria", Location: "São Paulo"}},
		{"eu sou o carlos", ExtractedData{Name: "carlos"}},
		{"trabalho com marketing digital", ExtractedData{Business: "marketing digital"}},
		{"sou de Recife", ExtractedData{Location: "Recife"}},
		{"moro em Belo Horizonte, e você?", ExtractedData{Location: "Belo Horizonte"}},
		{"faço sim", ExtractedData{}},
		{"bom dia", ExtractedData{}},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			s := pkg.NewConversationState("c", start)
			s.Messages = []pkg.ConversationMessage{{Role: pkg.RoleUser, Content: tt.message}}
			assert.Equal(t, tt.want, ExtractUserData(tt.message, s))
		})
	}
}

func TestExtractUserData_NeverOverwrites(t *testing.T) {
	s := conversation("Como você se chama?", "Beatriz")
	s.UserProfile.Name = "Ana"
	assert.True(t, ExtractUserData("Beatriz", s).Empty())

	s = pkg.NewConversationState("c", start)
	s.UserProfile.Location = "Natal"
	assert.Equal(t, "", ExtractUserData("moro em Recife", s).Location)
}

func TestApplyExtracted_SeedsNiche(t *testing.T) {
	var p pkg.UserProfile
	ApplyExtracted(&p, ExtractedData{Business: "pizzaria"})
	assert.Equal(t, "pizzaria", p.Niche)

	p.Niche = "delivery"
	ApplyExtracted(&p, ExtractedData{Business: "hamburgueria"})
	assert.Equal(t, "delivery", p.Niche)
	assert.Equal(t, "hamburgueria", p.Business)
}

func TestMergeProfile(t *testing.T) {
	p := pkg.UserProfile{Goals: []string{"crescer"}}
	MergeProfile(&p, map[string]any{
		"name":               "Ana",
		"niche":              "confeitaria",
		"responsePreference": "audio",
		"goals":              "vender mais",
		"painPoints":         []any{"tempo", 3, "tempo"},
		"topics":             []string{"reels"},
		"age":                float64(30),
	})
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, "confeitaria", p.Niche)
	assert.Equal(t, "audio", p.ResponsePreference)
	assert.Equal(t, []string{"crescer", "vender mais"}, p.Goals)
	assert.Equal(t, []string{"tempo"}, p.PainPoints)
	assert.Equal(t, []string{"reels"}, p.TopicsOfInterest)
	assert.Equal(t, float64(30), p.Extra["age"])
}
