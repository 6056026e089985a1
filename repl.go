package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"persona_engine/internal/memory"
	"persona_engine/internal/orchestrator"
)

const replHelp = `Commands:
  /chat <id>         - Switch conversation
  /stats             - Show conversation stats
  /memories [query]  - List memories, or search them
  /reset             - Reset the conversation
  /quit              - Exit`

// runREPL reads user messages line by line and prints the formatted replies
func runREPL(ctx context.Context, orch *orchestrator.Orchestrator, mem *memory.Store, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "💬 Persona Engine")
	fmt.Fprintln(out, replHelp)
	fmt.Fprintln(out)

	chatID := "local"
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "[%s] >> ", chatID)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		command, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)

		switch command {
		case "/quit", "/exit":
			return nil

		case "/help":
			fmt.Fprintln(out, replHelp)

		case "/chat":
			if arg == "" {
				fmt.Fprintln(out, "Usage: /chat <conversation id>")
				continue
			}
			chatID = arg
			fmt.Fprintf(out, "Switched to conversation: %s\n", chatID)

		case "/stats":
			stats, err := orch.GetStats(ctx, chatID)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "📊 Phase: %s | Messages: %d | Engagement: %d | Persona: %s\n",
				stats.CurrentPhase, stats.MessageCount, stats.EngagementLevel, stats.ActivePersona)
			fmt.Fprintf(out, "   Emotion: %s (%.2f) | Blend: %.0f%% social media / %.0f%% consultant\n",
				stats.EmotionalState.Primary, stats.EmotionalState.Intensity,
				stats.PersonaBlend.SocialMedia*100, stats.PersonaBlend.Consultant*100)
			fmt.Fprintf(out, "   %s\n", stats.Memory.Text)

		case "/memories":
			printMemories(ctx, out, mem, chatID, arg)

		case "/reset":
			if err := orch.ResetChat(ctx, chatID); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Conversation %s reset\n", chatID)

		default:
			if strings.HasPrefix(command, "/") {
				fmt.Fprintf(out, "Unknown command: %s\n", command)
				continue
			}
			resp, err := orch.ProcessMessage(ctx, orchestrator.Input{ConversationID: chatID, Text: input})
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			printResponse(out, resp)
		}
	}
}

func printResponse(out io.Writer, resp *orchestrator.Response) {
	if resp.Reaction != "" {
		fmt.Fprintf(out, "   (reação: %s)\n", resp.Reaction)
	}
	for _, frag := range resp.Fragments {
		fmt.Fprintf(out, "🤖 %s\n", frag.Text)
	}
	if resp.Audio != nil {
		fmt.Fprintf(out, "🎙️ %s\n", resp.Audio.Text)
	}
	for _, action := range resp.MediaActions {
		switch action.Type {
		case orchestrator.MediaImage:
			fmt.Fprintf(out, "🖼️ %s (%s)\n", action.Prompt, action.Caption)
		case orchestrator.MediaAudio:
			fmt.Fprintf(out, "🔊 %s\n", action.Text)
		}
	}
	md := resp.Metadata
	fmt.Fprintf(out, "   [%s | %s | %s | %dms]\n", md.Intent, md.Emotion, md.Phase, md.ProcessingTimeMs)
	fmt.Fprintln(out)
}

func printMemories(ctx context.Context, out io.Writer, mem *memory.Store, chatID, query string) {
	if query == "" {
		entries := mem.Entries(chatID)
		if len(entries) == 0 {
			fmt.Fprintln(out, "Nenhuma memória armazenada")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(out, "  - [%s] %s (importância %.1f)\n", e.Kind, e.Content, e.Importance)
		}
		return
	}

	found, err := mem.FindSimilar(ctx, chatID, query, 0)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "Nenhuma memória encontrada")
		return
	}
	for _, m := range found {
		fmt.Fprintf(out, "  - [%s] %s (%.0f%%)\n", m.Kind, m.Content, m.Similarity*100)
	}
}
