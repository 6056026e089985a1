package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"persona_engine/internal/logger"
	"persona_engine/internal/storage"
)

// Persister writes changed owner collections to a snapshot store in the background.
// A failed write leaves the owner dirty so the next flush retries it.
type Persister struct {
	snapshots storage.SnapshotStore
	interval  time.Duration
	onFailure func(error)
	store     *Store

	mu      sync.Mutex
	dirty   map[string]struct{}
	failing bool

	flushMu   sync.Mutex
	done      chan struct{}
	stopped   chan struct{}
	running   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPersister creates a persister; onFailure is called once per run of consecutive failed flushes
func NewPersister(snapshots storage.SnapshotStore, interval time.Duration, onFailure func(error)) *Persister {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Persister{
		snapshots: snapshots,
		interval:  interval,
		onFailure: onFailure,
		dirty:     make(map[string]struct{}),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (p *Persister) attach(s *Store) {
	p.store = s
}

// Start runs the periodic flush loop until Close is called
func (p *Persister) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.running.Store(true)
		go p.loop(ctx)
	})
}

// MarkDirty schedules an owner for the next flush
func (p *Persister) MarkDirty(ownerID string) {
	p.mu.Lock()
	p.dirty[ownerID] = struct{}{}
	p.mu.Unlock()
}

// Pending returns the owners waiting to be written
func (p *Persister) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush writes every dirty owner now
func (p *Persister) Flush(ctx context.Context) error {
	if p.store == nil {
		return errors.New("persister is not attached to a store")
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	owners := make([]string, 0, len(p.dirty))
	for id := range p.dirty {
		owners = append(owners, id)
	}
	clear(p.dirty)
	p.mu.Unlock()
	slices.Sort(owners)

	var errs []error
	for _, owner := range owners {
		if err := p.write(ctx, owner); err != nil {
			p.MarkDirty(owner)
			errs = append(errs, fmt.Errorf("persist memories of %s: %w", owner, err))
		}
	}
	err := errors.Join(errs...)
	p.report(err, len(owners))
	return err
}

// Close stops the loop and performs a final flush
func (p *Persister) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.running.Load() {
			<-p.stopped
		}
		err = p.Flush(ctx)
	})
	return err
}

func (p *Persister) loop(ctx context.Context) {
	defer close(p.stopped)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = p.Flush(ctx)
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Persister) write(ctx context.Context, owner string) error {
	entries := p.store.Entries(owner)
	if len(entries) == 0 {
		return p.snapshots.Delete(ctx, owner)
	}
	return p.snapshots.Save(ctx, owner, entries)
}

func (p *Persister) report(err error, flushed int) {
	p.mu.Lock()
	wasFailing := p.failing
	p.failing = err != nil
	p.mu.Unlock()

	switch {
	case err != nil && !wasFailing:
		logger.Error().Err(err).Msg("memory persistence failing")
		if p.onFailure != nil {
			p.onFailure(err)
		}
	case err == nil && wasFailing:
		logger.Info().Int("owners", flushed).Msg("memory persistence recovered")
	case err == nil && flushed > 0:
		logger.Debug().Int("owners", flushed).Msg("memories persisted")
	}
}

// Restore loads every persisted collection into the store, replacing what it holds for those owners
func (s *Store) Restore(ctx context.Context, snapshots storage.SnapshotStore) (int, error) {
	all, err := snapshots.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load memory snapshots: %w", err)
	}
	total := 0
	for owner, entries := range all {
		s.Load(owner, entries)
		total += len(entries)
	}
	logger.Info().Int("owners", len(all)).Int("memories", total).Msg("memories restored")
	return total, nil
}
