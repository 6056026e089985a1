package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(v float64) Option {
	return WithRand(func() float64 { return v })
}

func newFormatter(t *testing.T, cfg Config, opts ...Option) *Formatter {
	t.Helper()
	f, err := New(cfg, opts...)
	require.NoError(t, err)
	return f
}

func TestFragmentSplitMarker(t *testing.T) {
	f := newFormatter(t, DefaultConfig())

	got := f.Fragment("Oi João! <SPLIT> Bora criar um post?<SPLIT><SPLIT>  Me conta do negócio ")
	assert.Equal(t, []string{"Oi João!", "Bora criar um post?", "Me conta do negócio"}, got)

	got = f.Fragment("a<SPLIT>b<SPLIT>c<SPLIT>d<SPLIT>e<SPLIT>f")
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestFragmentShortTextStaysWhole(t *testing.T) {
	f := newFormatter(t, DefaultConfig())

	assert.Equal(t, []string{"Fala! Tudo certo?"}, f.Fragment("Fala! Tudo certo?"))
	assert.Equal(t, []string{"Só uma frase"}, f.Fragment("  Só uma frase  "))
	assert.Empty(t, f.Fragment("   "))
}

func TestFragmentGroupsSentences(t *testing.T) {
	f := newFormatter(t, Config{MaxFragments: 4, MaxFragmentChars: 30})

	text := "Primeira frase aqui. Segunda frase aqui! Terceira frase aqui? Quarta."
	got := f.Fragment(text)

	assert.Equal(t, []string{
		"Primeira frase aqui.",
		"Segunda frase aqui!",
		"Terceira frase aqui? Quarta.",
	}, got)
}

func TestFragmentKeepsRemainderInLastFragment(t *testing.T) {
	f := newFormatter(t, Config{MaxFragments: 2, MaxFragmentChars: 10})

	got := f.Fragment("Frase um aqui. Frase dois aqui. Frase três aqui. Frase quatro.")

	require.Len(t, got, 2)
	assert.Equal(t, "Frase um aqui.", got[0])
	assert.Equal(t, "Frase dois aqui. Frase três aqui. Frase quatro.", got[1])
}

func TestFragmentDoesNotSplitWithoutWhitespace(t *testing.T) {
	f := newFormatter(t, Config{MaxFragments: 4, MaxFragmentChars: 5})

	got := f.Fragment("Visite site.com.br agora. Sério! Vale a pena.")
	assert.Equal(t, []string{"Visite site.com.br agora.", "Sério!", "Vale a pena."}, got)
}

func TestTypingTime(t *testing.T) {
	f := newFormatter(t, DefaultConfig(), fixedRand(0.5))

	text := strings.Repeat("a", 40)
	assert.Equal(t, 1400*time.Millisecond, f.TypingTime(text, ""))
	assert.Equal(t, 800*time.Millisecond, f.TypingTime(text, "fast"))
	assert.Equal(t, 2000*time.Millisecond, f.TypingTime(text, "slow"))
	assert.Equal(t, 1400*time.Millisecond, f.TypingTime(text, "turbo"))

	assert.Equal(t, 800*time.Millisecond, f.TypingTime("oi", ""))
	assert.Equal(t, 4000*time.Millisecond, f.TypingTime(strings.Repeat("a", 500), ""))
}

func TestTypingTimeJitter(t *testing.T) {
	text := strings.Repeat("a", 40)

	low := newFormatter(t, DefaultConfig(), fixedRand(0))
	high := newFormatter(t, DefaultConfig(), fixedRand(0.999999))

	assert.Equal(t, 1260*time.Millisecond, low.TypingTime(text, ""))
	assert.Equal(t, 1540*time.Millisecond, high.TypingTime(text, ""))
}

func TestTypingTimeMultibyte(t *testing.T) {
	f := newFormatter(t, DefaultConfig(), fixedRand(0.5))

	assert.Equal(t, f.TypingTime(strings.Repeat("a", 30), ""), f.TypingTime(strings.Repeat("ã", 30), ""))
}

func TestInterMessageDelay(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, newFormatter(t, DefaultConfig(), fixedRand(0)).InterMessageDelay())
	assert.Equal(t, 550*time.Millisecond, newFormatter(t, DefaultConfig(), fixedRand(0.5)).InterMessageDelay())

	f := newFormatter(t, DefaultConfig())
	for range 50 {
		d := f.InterMessageDelay()
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.Less(t, d, 800*time.Millisecond)
	}
}

func TestMessages(t *testing.T) {
	f := newFormatter(t, DefaultConfig(), fixedRand(0.5))

	msgs := f.Messages("Oi!<SPLIT>Tudo bem?")
	require.Len(t, msgs, 2)
	assert.Equal(t, "Oi!", msgs[0].Text)
	assert.Zero(t, msgs[0].DelayBefore)
	assert.Equal(t, 800*time.Millisecond, msgs[0].TypingTime)
	assert.Equal(t, 550*time.Millisecond, msgs[1].DelayBefore)
}

func TestPrepareForTTS(t *testing.T) {
	f := newFormatter(t, DefaultConfig())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"split marker", "Oi João<SPLIT>tudo bem?", "Oi João... tudo bem?"},
		{"react tag", "Boa! <REACT:🔥> Bora", "Boa! Bora"},
		{"pipe directives", "Anotado ||SEND_AUDIO: oi|| valeu", "Anotado valeu"},
		{"image directive", "Saindo ||GENERATE_IMAGE: um banner|| agora", "Saindo agora"},
		{"emoji", "Mandou bem 🔥🚀 demais ✌️ e ❤️", "Mandou bem demais e"},
		{"bold", "Isso é **muito** importante", "Isso é muito importante"},
		{"newlines", "Linha um\n\nLinha dois\nLinha três", "Linha um. Linha dois. Linha três"},
		{"untouched", "Texto simples", "Texto simples"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.PrepareForTTS(tt.in))
		})
	}
}

func TestNewDefaults(t *testing.T) {
	f := newFormatter(t, Config{TypingPace: "warp"})
	assert.Equal(t, DefaultConfig(), f.cfg)
}
