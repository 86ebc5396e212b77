package history

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/metrics"
)

const (
	DefaultMinCompressLength = 100

	truncateLength = 200
	truncatedModel = "truncate"

	// compressed output at or above this share of the original counts as a miss
	minShrinkRatio = 0.8
)

const userCompressPrompt = `You are a message compressor. Compress the user's message to its essential meaning.
Keep: intentions, questions, emotional tone, specific requests
Remove: filler words, repetition, unnecessary details
Output only the compressed message, no explanation.

Try to compress this to 30-50 words maximum while keeping the core meaning.`

const assistantCompressPrompt = `You are a message compressor. Compress this AI assistant response to its key points.
Keep: main advice/information, commitments, important context
Remove: pleasantries, repetition, examples (unless critical)
Maintain the assistant's helpful tone but be very concise.
Output only the compressed message, no explanation.

Try to compress this to 50-75 words maximum while keeping essential information.`

// Compressor derives the compressed tier: one shortened copy per raw message
type Compressor struct {
	llm       llm.LLM
	store     *conversation.Store
	minLength int
}

func NewCompressor(l llm.LLM, store *conversation.Store, minLength int) *Compressor {
	if minLength <= 0 {
		minLength = DefaultMinCompressLength
	}
	return &Compressor{llm: l, store: store, minLength: minLength}
}

// Eligible reports whether content is long enough to be compressed
func (c *Compressor) Eligible(content string) bool {
	return utf8.RuneCountInString(content) >= c.minLength
}

// Compress shortens content for the given role. It never fails: provider
// errors fall back to a hard truncate, reported through fellBack.
func (c *Compressor) Compress(ctx context.Context, content, role string) (text, model string, fellBack bool) {
	if c.llm == nil {
		return truncate(content), truncatedModel, true
	}

	instructions := userCompressPrompt
	if role == conversation.RoleAssistant {
		instructions = assistantCompressPrompt
	}

	resp, err := c.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: content},
	})
	if err != nil {
		logger.Error("compression failed, truncating", "role", role, "error", err)
		return truncate(content), truncatedModel, true
	}

	text = strings.TrimSpace(resp.Content)
	original := utf8.RuneCountInString(content)
	if float64(utf8.RuneCountInString(text)) >= float64(original)*minShrinkRatio {
		logger.Warn("compression did not reduce size significantly", "role", role, "original", original, "compressed", utf8.RuneCountInString(text))
	}

	return text, c.llm.Model(), false
}

// CompressMessage compresses a persisted message and stores the result.
// Short messages are skipped and return nil.
func (c *Compressor) CompressMessage(ctx context.Context, m conversation.Message, now time.Time) (*conversation.Compressed, error) {
	if !c.Eligible(m.Content) {
		metrics.Compressions.WithLabelValues(metrics.CompressionSkipped).Inc()
		return nil, nil
	}

	text, model, fellBack := c.Compress(ctx, m.Content, m.Role)

	result := metrics.CompressionCompressed
	if fellBack {
		result = metrics.CompressionFallback
	}
	metrics.Compressions.WithLabelValues(result).Inc()

	saved, err := c.store.SaveCompressed(ctx, conversation.Compressed{
		MessageID:      m.ID,
		UserID:         m.UserID,
		Platform:       m.Platform,
		Role:           m.Role,
		OriginalLength: utf8.RuneCountInString(m.Content),
		Content:        text,
		Model:          model,
	}, now)
	if err != nil {
		return nil, err
	}

	logger.Debug("compressed message", "message", m.ID, "role", m.Role,
		"original", saved.OriginalLength, "compressed", saved.CompressedLength, "ratio", saved.Ratio)

	return saved, nil
}

func truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= truncateLength {
		return content
	}
	return string(runes[:truncateLength]) + "..."
}
