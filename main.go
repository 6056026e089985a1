package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"persona_engine/internal/config"
	"persona_engine/internal/embedding"
	"persona_engine/internal/emotion"
	"persona_engine/internal/engine"
	"persona_engine/internal/formatter"
	"persona_engine/internal/generation"
	"persona_engine/internal/httpapi"
	"persona_engine/internal/knowledge"
	"persona_engine/internal/logger"
	"persona_engine/internal/memory"
	"persona_engine/internal/orchestrator"
	"persona_engine/internal/storage"

	"github.com/joho/godotenv"
)

// backends groups the stores selected by storage.backend
type backends struct {
	states    storage.StateStore
	snapshots storage.SnapshotStore
	clients   storage.ClientStore
	close     func() error
}

func openBackends(ctx context.Context, cfg config.StorageConfig) (*backends, error) {
	b := &backends{
		states:  storage.NewMemoryStateStore(),
		clients: storage.NewMemoryClientStore(),
		close:   func() error { return nil },
	}

	switch cfg.Backend {
	case "memory":
	case "redis":
		rs, err := storage.NewRedisStorage(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.states = rs.States(cfg.StateTTL)
		b.snapshots = rs.Snapshots()
		b.clients = rs.Clients()
		b.close = rs.Close
	case "file":
		b.snapshots = storage.NewFileSnapshotStore(cfg.SnapshotDir)
	case "sqlite":
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.snapshots = db
		b.clients = db
		b.close = db.Close
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return b, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", configPath, err)
		os.Exit(1)
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("persona engine stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	stores, err := openBackends(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := stores.close(); err != nil {
			logger.Warn().Err(err).Msg("close storage")
		}
	}()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	var memOpts []memory.Option
	var persister *memory.Persister
	if stores.snapshots != nil {
		persister = memory.NewPersister(stores.snapshots, cfg.Memory.FlushInterval, func(err error) {
			logger.Error().Err(err).Str("backend", cfg.Storage.Backend).Msg("memory snapshots failing, continuing in memory")
		})
		memOpts = append(memOpts, memory.WithPersister(persister))
	}
	mem := memory.NewStore(embedder, memory.Config{
		MaxPerOwner:            cfg.Memory.MaxPerOwner,
		ConsolidationThreshold: cfg.Memory.ConsolidationThreshold,
		DecayRate:              cfg.Memory.DecayRate,
		RecallLimit:            cfg.Memory.RecallLimit,
	}, memOpts...)

	if persister != nil {
		if _, err := mem.Restore(ctx, stores.snapshots); err != nil {
			logger.Warn().Err(err).Msg("starting with an empty memory store")
		}
		persister.Start(ctx)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := persister.Close(closeCtx); err != nil {
				logger.Error().Err(err).Msg("final memory flush")
			}
		}()
	}

	var index *knowledge.Index
	if cfg.Knowledge.Enabled {
		index, err = knowledge.Build(ctx, embedder, knowledge.DefaultCorpus())
		if err != nil {
			logger.Warn().Err(err).Msg("continuing without persona knowledge")
		}
	}

	eng := engine.New(stores.states, engine.Config{
		MaxMessages:         cfg.Engine.MaxMessages,
		MaxSentimentHistory: cfg.Engine.MaxSentimentHistory,
		CloseAfterMessages:  cfg.Engine.CloseAfterMessages,
		PromptHistory:       cfg.Engine.PromptHistory,
	}, engine.WithAnalyzer(emotion.NewAnalyzer(emotion.DefaultRules(), emotion.NewMemoryHistory(cfg.Emotion.HistorySize))))

	generator, err := generation.New(ctx, cfg.Generation)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	fmtr, err := formatter.New(formatter.Config{
		MaxFragments:     cfg.Formatter.MaxFragments,
		MaxFragmentChars: cfg.Formatter.MaxFragmentChars,
		TypingPace:       cfg.Formatter.TypingPace,
	})
	if err != nil {
		return fmt.Errorf("create formatter: %w", err)
	}

	orch, err := orchestrator.New(ctx, orchestrator.Deps{
		Engine:      eng,
		Memory:      mem,
		Knowledge:   index,
		Generator:   generator,
		Formatter:   fmtr,
		Clients:     stores.clients,
		RecallLimit: cfg.Memory.RecallLimit,
		KnowledgeK:  cfg.Knowledge.TopK,
	}, orchestrator.Config{
		AudioAvailable: cfg.Audio.Enabled,
		BufferWindow:   cfg.Buffer.Window,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	defer orch.Close()

	logger.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Backend).
		Str("embedding", cfg.Embedding.Provider).
		Bool("knowledge", index != nil).
		Str("generator", generator.Name()).
		Msg("persona engine ready")

	if cfg.Server.Mode == "repl" {
		return runREPL(ctx, orch, mem, os.Stdin, os.Stdout)
	}
	return serve(ctx, cfg.Server, httpapi.NewRouter(orch, mem, cfg.Server.APIKey))
}

func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
