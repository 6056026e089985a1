package memory

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"persona_engine/pkg"
)

// Summary describes an owner's collection
type Summary struct {
	Text   string                 `json:"summary"`
	Total  int                    `json:"total_memories"`
	ByKind map[pkg.MemoryKind]int `json:"by_kind"`
	Top    []string               `json:"top_memories"`
}

// Stats describes the whole store
type Stats struct {
	TotalChats    int                    `json:"total_chats"`
	TotalMemories int                    `json:"total_memories"`
	ByKind        map[pkg.MemoryKind]int `json:"by_kind"`
}

// Summarize counts an owner's memories per kind and lists the five most important
func (s *Store) Summarize(ownerID string) Summary {
	entries := s.Entries(ownerID)
	sum := Summary{ByKind: map[pkg.MemoryKind]int{}, Top: []string{}}
	if len(entries) == 0 {
		sum.Text = "Nenhuma memória armazenada"
		return sum
	}
	sum.Total = len(entries)
	for _, e := range entries {
		sum.ByKind[e.Kind]++
	}

	var parts []string
	if n := sum.ByKind[pkg.MemorySemantic]; n > 0 {
		parts = append(parts, fmt.Sprintf("Fatos conhecidos: %d", n))
	}
	if n := sum.ByKind[pkg.MemoryEpisodic]; n > 0 {
		parts = append(parts, fmt.Sprintf("Eventos registrados: %d", n))
	}
	if n := sum.ByKind[pkg.MemoryEmotional]; n > 0 {
		parts = append(parts, fmt.Sprintf("Momentos emocionais: %d", n))
	}
	sum.Text = strings.Join(parts, ", ")

	slices.SortStableFunc(entries, func(a, b pkg.MemoryEntry) int { return cmpDesc(a.Importance, b.Importance) })
	for i := 0; i < len(entries) && i < 5; i++ {
		sum.Top = append(sum.Top, entries[i].Content)
	}
	return sum
}

// Stats aggregates counts over every owner
func (s *Store) Stats() Stats {
	st := Stats{ByKind: map[pkg.MemoryKind]int{}}
	for _, owner := range s.Owners() {
		entries := s.Entries(owner)
		if len(entries) == 0 {
			continue
		}
		st.TotalChats++
		st.TotalMemories += len(entries)
		for _, e := range entries {
			st.ByKind[e.Kind]++
		}
	}
	return st
}

var kindIcons = map[pkg.MemoryKind]string{
	pkg.MemorySemantic:   "📚",
	pkg.MemoryEpisodic:   "📅",
	pkg.MemoryEmotional:  "💭",
	pkg.MemoryProcedural: "⚙️",
}

// FormatRecalled renders recalled memories; empty input renders as ""
func FormatRecalled(recalled []pkg.RecalledMemory) string {
	if len(recalled) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## MEMÓRIAS RELEVANTES\n")
	for i, m := range recalled {
		icon, ok := kindIcons[m.Kind]
		if !ok {
			icon = "📝"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s (relevância: %d%%)", icon, m.Content, int(math.Round(m.RelevanceScore*100)))
	}
	b.WriteString("\n")
	return b.String()
}
