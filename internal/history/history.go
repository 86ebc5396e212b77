// Package history keeps the three tiers of a conversation: the raw log, the
// per-message compressed tier and rolling summaries, and composes the hybrid
// view that feeds generation.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/metrics"
	"github.com/bowerhall/chordial/internal/temporal"
)

// Entry kinds in a hybrid history
const (
	KindRaw        = "raw"
	KindCompressed = "compressed"
	KindTemporal   = "temporal"
)

const (
	DefaultHistoryLimit = 15
	DefaultFullMessages = 5
)

// Entry is one line of hybrid history
type Entry struct {
	MessageID   int64
	Role        string
	Content     string
	MessageType string
	Kind        string
	CreatedAt   time.Time
}

// HybridOptions controls the hybrid read
type HybridOptions struct {
	Limit           int
	FullCount       int
	IncludeTemporal bool
	// Location renders the temporal entry; nil means UTC
	Location *time.Location
}

// Engine appends to the raw log and keeps the derived tiers up to date
type Engine struct {
	store      *conversation.Store
	compressor *Compressor
	summarizer *Summarizer
	wg         sync.WaitGroup
}

func NewEngine(store *conversation.Store, compressor *Compressor, summarizer *Summarizer) *Engine {
	return &Engine{store: store, compressor: compressor, summarizer: summarizer}
}

func (e *Engine) Store() *conversation.Store {
	return e.store
}

func (e *Engine) Summarizer() *Summarizer {
	return e.summarizer
}

// Append persists a message and compresses it in the background. Compression
// outcomes never affect the append.
func (e *Engine) Append(ctx context.Context, userID, platform, role, content, messageType string, now time.Time) (*conversation.Message, error) {
	m, err := e.store.Append(ctx, userID, platform, role, content, messageType, now)
	if err != nil {
		return nil, err
	}
	metrics.MessagesProcessed.WithLabelValues(platform, role).Inc()

	if e.compressor != nil && e.compressor.Eligible(content) {
		msg := *m
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			// outlives the request that appended the message
			if _, err := e.compressor.CompressMessage(context.WithoutCancel(ctx), msg, now); err != nil {
				logger.Error("failed to store compressed message", "message", msg.ID, "error", err)
			}
		}()
	} else if e.compressor != nil {
		metrics.Compressions.WithLabelValues(metrics.CompressionSkipped).Inc()
	}

	return m, nil
}

// Wait blocks until in-flight compressions finish
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Hybrid returns the newest Limit messages in order. The newest FullCount
// are verbatim; older ones are swapped for their compressed form when one
// exists. With IncludeTemporal a trailing system entry carries the current
// temporal context.
func (e *Engine) Hybrid(ctx context.Context, userID, platform string, opts HybridOptions, now time.Time) ([]Entry, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultHistoryLimit
	}
	if opts.FullCount < 0 {
		opts.FullCount = 0
	}

	messages, err := e.store.Recent(ctx, userID, platform, opts.Limit)
	if err != nil {
		return nil, err
	}

	older := max(0, len(messages)-opts.FullCount)

	var compressed map[int64]conversation.Compressed
	if older > 0 {
		ids := make([]int64, 0, older)
		for _, m := range messages[:older] {
			ids = append(ids, m.ID)
		}
		if compressed, err = e.store.CompressedFor(ctx, ids); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(messages)+1)
	for i, m := range messages {
		entry := Entry{
			MessageID:   m.ID,
			Role:        m.Role,
			Content:     m.Content,
			MessageType: m.MessageType,
			Kind:        KindRaw,
			CreatedAt:   m.CreatedAt,
		}

		if i < older {
			if c, ok := compressed[m.ID]; ok {
				entry.Content = c.Content
				entry.Kind = KindCompressed
			} else if e.compressor == nil || e.compressor.Eligible(m.Content) {
				logger.Warn("no compressed form, using verbatim", "message", m.ID)
			}
		}

		entries = append(entries, entry)
	}

	if opts.IncludeTemporal {
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		entries = append(entries, Entry{
			Role:      conversation.RoleSystem,
			Content:   temporal.String(now.In(loc)),
			Kind:      KindTemporal,
			CreatedAt: now,
		})
	}

	return entries, nil
}

// Summarize runs the summary sweep for one conversation
func (e *Engine) Summarize(ctx context.Context, userID, platform string, now time.Time) (int, error) {
	if e.summarizer == nil {
		return 0, nil
	}
	return e.summarizer.Sweep(ctx, userID, platform, now)
}

// SummaryContext renders the newest summaries for a prompt
func (e *Engine) SummaryContext(ctx context.Context, userID, platform string, limit int) string {
	if e.summarizer == nil {
		return ""
	}

	text, err := e.summarizer.Context(ctx, userID, platform, limit)
	if err != nil {
		logger.Warn("failed to load summaries", "user", userID, "platform", platform, "error", err)
		return ""
	}
	return text
}
