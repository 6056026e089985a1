package nodes

import (
	"context"
	"errors"
	"fmt"

	"persona_engine/internal/core"
	"persona_engine/internal/engine"
	"persona_engine/internal/intent"
	"persona_engine/internal/logger"
	"persona_engine/internal/memory"
	"persona_engine/internal/storage"
	"persona_engine/pkg"
)

const achievementPrefix = "Conquista compartilhada: "

// LearnNode persists what the turn taught: profile data from SAVE directives,
// the agent reply, extracted memories and the client record
type LearnNode struct {
	engine  *engine.Engine
	memory  *memory.Store
	clients storage.ClientStore
}

// NewLearnNode creates the learn node; store and clients may be nil
func NewLearnNode(eng *engine.Engine, store *memory.Store, clients storage.ClientStore) *LearnNode {
	return &LearnNode{engine: eng, memory: store, clients: clients}
}

// Execute applies the turn's side effects. Only state persistence failures abort the turn;
// memory and client sync failures are reported and skipped.
func (n *LearnNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	if input.State == nil || input.Reply == nil {
		return core.NodeOutput{}, errors.New("learn node requires state and reply")
	}
	id := input.ConversationID

	saved := input.Reply.SaveData()
	if err := n.engine.MergeProfile(ctx, id, saved); err != nil {
		return core.NodeOutput{}, err
	}
	if input.Reply.Text != "" {
		if err := n.engine.RecordAgentMessage(ctx, id, input.Reply.Text); err != nil {
			return core.NodeOutput{}, err
		}
	}

	state, err := n.engine.GetState(ctx, id)
	if err != nil {
		return core.NodeOutput{}, err
	}

	var errs []error
	stored, err := n.storeMemories(ctx, id, input.UserMessage, state)
	if err != nil {
		errs = append(errs, err)
	}
	synced, err := SyncClientData(ctx, n.clients, id, state.UserProfile)
	if err != nil {
		errs = append(errs, err)
	}

	return core.NodeOutput{
		Data: map[string]any{
			core.KeyState:     state,
			"profile_saved":   len(saved) > 0,
			"memories_stored": stored,
			"client_synced":   synced,
		},
		Error:    errors.Join(errs...),
		Complete: true,
	}, nil
}

func (n *LearnNode) storeMemories(ctx context.Context, id, message string, state *pkg.ConversationState) (int, error) {
	if n.memory == nil {
		return 0, nil
	}

	extracted, err := n.memory.ExtractAndStore(ctx, id, message, memory.ExtractContext{
		Emotion:   state.EmotionalState.Primary,
		Intensity: state.EmotionalState.Intensity,
	})
	if err != nil {
		return len(extracted), fmt.Errorf("store extracted memories: %w", err)
	}
	stored := len(extracted)

	if state.CurrentIntent.Primary.Label == intent.ShareAchievement {
		_, err := n.memory.Store(ctx, id, achievementPrefix+truncate(message, 100), memory.StoreOptions{
			Kind:       pkg.MemoryEpisodic,
			Importance: pkg.ImportanceHigh,
			Emotion:    "excited",
		})
		if err != nil {
			return stored, fmt.Errorf("store achievement: %w", err)
		}
		stored++
	}

	logger.Debug().Str("owner_id", id).Int("stored", stored).Msg("memories stored")
	return stored, nil
}

// SyncClientData pushes the known profile facts into the client store.
// It reports whether anything was written.
func SyncClientData(ctx context.Context, clients storage.ClientStore, id string, profile pkg.UserProfile) (bool, error) {
	if clients == nil {
		return false, nil
	}
	business := profile.BusinessName
	if business == "" {
		business = profile.Business
	}
	update := storage.ClientRecord{
		Name:         profile.Name,
		BusinessName: business,
		Niche:        profile.Niche,
		Location:     profile.Location,
	}
	if update == (storage.ClientRecord{}) {
		return false, nil
	}
	if err := clients.UpdateClient(ctx, id, update); err != nil {
		return false, fmt.Errorf("sync client %s: %w", id, err)
	}
	return true, nil
}

// GetName returns the node name
func (n *LearnNode) GetName() string {
	return string(core.NodeTypeLearn)
}

// GetType returns the node type
func (n *LearnNode) GetType() core.NodeType {
	return core.NodeTypeLearn
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
