package engine

import (
	"fmt"
	"math"
	"strings"

	"persona_engine/internal/persona"
	"persona_engine/pkg"

	"github.com/bytedance/sonic"
)

var phaseInstructions = map[pkg.Phase]string{
	pkg.PhaseGreeting: `## FASE: SAUDAÇÃO
- Seja caloroso e energético
- Tente descobrir o nome do usuário naturalmente
- Mostre que está pronto para ajudar
- NÃO faça muitas perguntas de uma vez`,
	pkg.PhaseDiscovery: `## FASE: DESCOBERTA
- PRIORIDADE: Descobrir nome, negócio, nicho
- Faça perguntas naturais, não interrogatório
- Demonstre interesse genuíno
- Use ||SAVE|| quando descobrir algo novo
- Dados atuais: nome=%s, negócio=%s`,
	pkg.PhaseEngagement: `## FASE: ENGAJAMENTO
- Já conhece o básico do cliente
- Foque em entregar valor e dicas práticas
- Sugira conteúdos e estratégias
- Use ||GENERATE_IMAGE|| quando fizer sentido
- Construa rapport e confiança`,
	pkg.PhasePitch: `## FASE: PITCH
- O usuário demonstrou interesse!
- Apresente a proposta de valor
- Seja direto mas não agressivo
- Responda objeções com empatia
- Use cases e resultados`,
	pkg.PhaseClose: `## FASE: FECHAMENTO
- Confirme próximos passos
- Ofereça link ou agendamento
- Mantenha porta aberta se não fechar
- Agradeça e reforce o valor`,
}

// PhaseInstructions returns the guidance block for the state's phase
func PhaseInstructions(state *pkg.ConversationState) string {
	if state.Phase == pkg.PhaseDiscovery {
		return fmt.Sprintf(phaseInstructions[pkg.PhaseDiscovery],
			orUnknown(state.UserProfile.Name), orUnknown(state.UserProfile.Business))
	}
	if text, ok := phaseInstructions[state.Phase]; ok {
		return text
	}
	return phaseInstructions[pkg.PhaseEngagement]
}

// BuildPrompt assembles the system prompt for the next reply: persona, tone,
// emotional and intent context, phase guidance, fired hooks, metrics, persona knowledge and memories
func BuildPrompt(state *pkg.ConversationState, knowledgeContext, memoryContext string) string {
	clientData, err := sonic.ConfigStd.MarshalIndent(state.UserProfile, "", "  ")
	if err != nil {
		clientData = []byte("{}")
	}

	sections := []string{
		strings.TrimSpace(persona.Lookup(state.ActivePersona).SystemPrompt(string(clientData))),
		persona.ToneInstructions(state.PersonaBlendRatio),
		emotionalContext(state.EmotionalState),
		intentContext(state.CurrentIntent),
		PhaseInstructions(state),
	}
	if hooks := proactiveContext(state.ProactiveHooks); hooks != "" {
		sections = append(sections, hooks)
	}
	sections = append(sections, fmt.Sprintf("## MÉTRICAS DA CONVERSA\n- Mensagens trocadas: %d\n- Engajamento: %d%%\n- Fase: %s",
		state.Metrics.MessageCount, state.UserProfile.EngagementLevel, state.Phase))
	if kc := strings.TrimSpace(knowledgeContext); kc != "" {
		sections = append(sections, kc)
	}
	if mc := strings.TrimSpace(memoryContext); mc != "" {
		sections = append(sections, mc)
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func emotionalContext(e pkg.EmotionalState) string {
	var sb strings.Builder
	sb.WriteString("## CONTEXTO EMOCIONAL\n")
	fmt.Fprintf(&sb, "- Emoção detectada: %s\n", e.Primary)
	fmt.Fprintf(&sb, "- Intensidade: %d%%\n", percent(e.Intensity))
	fmt.Fprintf(&sb, "- Tendência: %s", e.Trend)
	if e.SuggestedReaction != "" {
		fmt.Fprintf(&sb, "\n- Considere reagir com: %s", e.SuggestedReaction)
	}
	return sb.String()
}

func intentContext(r pkg.IntentResult) string {
	var sb strings.Builder
	sb.WriteString("## INTENÇÃO DO USUÁRIO\n")
	fmt.Fprintf(&sb, "- Intenção primária: %s\n", r.Primary.Label)
	fmt.Fprintf(&sb, "- Confiança: %d%%", percent(r.Primary.Confidence))
	if len(r.Composite) > 0 {
		labels := make([]string, len(r.Composite))
		for i, c := range r.Composite {
			labels[i] = c.Label
		}
		fmt.Fprintf(&sb, "\n- Sinais compostos: %s", strings.Join(labels, ", "))
	}
	return sb.String()
}

func proactiveContext(hooks []pkg.ProactiveHook) string {
	if len(hooks) == 0 {
		return ""
	}
	lines := make([]string, 0, len(hooks)+1)
	lines = append(lines, "## GATILHOS PROATIVOS ATIVADOS")
	for _, h := range hooks {
		lines = append(lines, fmt.Sprintf("- %s: %s", h.Name, h.Action))
	}
	return strings.Join(lines, "\n")
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

func orUnknown(s string) string {
	if s == "" {
		return "desconhecido"
	}
	return s
}
