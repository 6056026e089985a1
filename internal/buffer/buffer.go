package buffer

import (
	"context"
	"strings"
	"sync"
	"time"

	"persona_engine/internal/logger"
	"persona_engine/pkg"
)

// DefaultWindow is how long the buffer waits for more messages before delivering
const DefaultWindow = 3500 * time.Millisecond

// FlushFunc receives one burst of messages joined with a space, with the latest voice context
type FlushFunc func(ctx context.Context, id, text string, voice *pkg.VoiceContext)

// Pending is a snapshot of a burst that has not been delivered yet
type Pending struct {
	Text         string
	Voice        *pkg.VoiceContext
	MessageCount int
	SinceFirst   time.Duration
}

type burst struct {
	messages []string
	voice    *pkg.VoiceContext
	first    time.Time
	timer    *time.Timer
	gen      uint64
}

// Buffer debounces rapid consecutive messages per conversation
type Buffer struct {
	ctx    context.Context
	window time.Duration
	flush  FlushFunc
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*burst
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Buffer
type Option func(*Buffer)

// WithClock overrides the clock used for Pending.SinceFirst
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// New creates a buffer delivering bursts to flush. ctx is handed to every flush call.
func New(ctx context.Context, window time.Duration, flush FlushFunc, opts ...Option) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	b := &Buffer{
		ctx:     ctx,
		window:  window,
		flush:   flush,
		now:     time.Now,
		pending: make(map[string]*burst),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues a message and restarts the conversation's window.
// A nil voice keeps the voice context of earlier messages in the burst.
func (b *Buffer) Add(id, message string, voice *pkg.VoiceContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	bu, ok := b.pending[id]
	if !ok {
		bu = &burst{first: b.now()}
		b.pending[id] = bu
	}
	if bu.timer != nil {
		bu.timer.Stop()
	}
	bu.messages = append(bu.messages, message)
	if voice != nil {
		bu.voice = voice
	}
	bu.gen++
	gen := bu.gen
	bu.timer = time.AfterFunc(b.window, func() { b.fire(id, gen) })

	logger.Debug().Str("conversation_id", id).Int("buffered", len(bu.messages)).Msg("message buffered")
}

// Peek returns the burst waiting for id, if any
func (b *Buffer) Peek(id string) (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bu, ok := b.pending[id]
	if !ok {
		return Pending{}, false
	}
	return Pending{
		Text:         joinMessages(bu.messages),
		Voice:        bu.voice,
		MessageCount: len(bu.messages),
		SinceFirst:   b.now().Sub(bu.first),
	}, true
}

// Clear drops the pending burst for id without delivering it
func (b *Buffer) Clear(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bu, ok := b.pending[id]
	if !ok {
		return false
	}
	bu.timer.Stop()
	delete(b.pending, id)
	return true
}

// Close cancels every pending burst and waits for deliveries already running
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	for id, bu := range b.pending {
		bu.timer.Stop()
		delete(b.pending, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Buffer) fire(id string, gen uint64) {
	b.mu.Lock()
	bu, ok := b.pending[id]
	if !ok || bu.gen != gen || b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.pending, id)
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	text := joinMessages(bu.messages)
	if text == "" {
		return
	}
	logger.Debug().Str("conversation_id", id).Int("messages", len(bu.messages)).Msg("buffer flushed")
	b.flush(b.ctx, id, text, bu.voice)
}

func joinMessages(messages []string) string {
	return strings.TrimSpace(strings.Join(messages, " "))
}
