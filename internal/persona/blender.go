package persona

import (
	"fmt"
	"math"
	"strings"

	"persona_engine/pkg"
)

// BlendConfig holds the prior and the additive adjustments of the blender
type BlendConfig struct {
	DefaultSocial       float64
	EmotionShift        float64
	PhaseShift          float64
	EngagementShift     float64
	EngagementThreshold int
	// Overrides force a weighting when the primary intent matches
	Overrides map[string]pkg.PersonaBlend
	// ConsultantEmotions shift weight toward the consultant when detected
	ConsultantEmotions map[string]bool
	ConsultantPhases   map[pkg.Phase]bool
}

// DefaultBlendConfig returns the built-in blending rules
func DefaultBlendConfig() BlendConfig {
	return BlendConfig{
		DefaultSocial:       0.7,
		EmotionShift:        0.2,
		PhaseShift:          0.3,
		EngagementShift:     0.1,
		EngagementThreshold: 70,
		Overrides: map[string]pkg.PersonaBlend{
			"request_consultation": {SocialMedia: 0.1, Consultant: 0.9},
			"request_content":      {SocialMedia: 0.9, Consultant: 0.1},
		},
		ConsultantEmotions: map[string]bool{"frustrated": true, "sad": true},
		ConsultantPhases:   map[pkg.Phase]bool{pkg.PhasePitch: true, pkg.PhaseClose: true},
	}
}

// Blender computes the persona weighting for a conversation
type Blender struct {
	config BlendConfig
}

// NewBlender creates a blender with the given rules
func NewBlender(config BlendConfig) *Blender {
	return &Blender{config: config}
}

// NewDefaultBlender creates a blender with the built-in rules
func NewDefaultBlender() *Blender {
	return NewBlender(DefaultBlendConfig())
}

// CalculateBlend derives the persona weights from intent, emotion, phase and engagement
func (b *Blender) CalculateBlend(state *pkg.ConversationState) pkg.PersonaBlend {
	cfg := b.config
	blend := pkg.PersonaBlend{SocialMedia: cfg.DefaultSocial, Consultant: 1 - cfg.DefaultSocial}
	if state == nil {
		return normalize(blend)
	}

	if o, ok := cfg.Overrides[state.CurrentIntent.Primary.Label]; ok {
		blend = o
	}

	if cfg.ConsultantEmotions[state.EmotionalState.Primary] {
		blend = shift(blend, cfg.EmotionShift)
	}
	if cfg.ConsultantPhases[state.Phase] {
		blend = shift(blend, cfg.PhaseShift)
	}
	if state.UserProfile.EngagementLevel > cfg.EngagementThreshold {
		blend = shift(blend, cfg.EngagementShift)
	}

	return normalize(blend)
}

// ActivePersona picks the consultant only when it clearly dominates
func ActivePersona(blend pkg.PersonaBlend) string {
	if blend.Consultant > 0.7 {
		return pkg.PersonaConsultant
	}
	return pkg.PersonaSocialMedia
}

// ToneInstructions renders tone guidance for the blend
func ToneInstructions(blend pkg.PersonaBlend) string {
	var sb strings.Builder
	sb.WriteString("## TOM DA RESPOSTA\n")

	switch {
	case blend.SocialMedia > 0.7:
		sb.WriteString("Seja energético, amigável e use gírias como 'top', 'show', 'bora'.\n")
		sb.WriteString("Use emojis moderadamente. Mantenha tom de parceiro de crescimento.\n")
	case blend.Consultant > 0.7:
		sb.WriteString("Seja direto, brutal honesto, sem enrolação.\n")
		sb.WriteString("Use gírias como 'mano', 'cara', 'saca'. Foque em resultado.\n")
	default:
		sb.WriteString("Misture energia com objetividade.\n")
		sb.WriteString("Seja amigável mas direto. Use gírias naturalmente.\n")
	}

	fmt.Fprintf(&sb, "\nPesos: Social Media %d%% | Consultant %d%%",
		int(math.Round(blend.SocialMedia*100)),
		int(math.Round(blend.Consultant*100)))
	return sb.String()
}

func shift(b pkg.PersonaBlend, delta float64) pkg.PersonaBlend {
	c := math.Min(b.Consultant+delta, 1)
	return pkg.PersonaBlend{SocialMedia: 1 - c, Consultant: c}
}

func normalize(b pkg.PersonaBlend) pkg.PersonaBlend {
	s := clamp01(round2(b.SocialMedia))
	c := clamp01(round2(b.Consultant))
	total := s + c
	if total == 0 {
		return pkg.PersonaBlend{SocialMedia: 0.5, Consultant: 0.5}
	}
	return pkg.PersonaBlend{SocialMedia: s / total, Consultant: c / total}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
