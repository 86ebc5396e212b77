package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/metrics"
)

const (
	DefaultMinSummaryMessages = 20
	DefaultMaxSummaryMessages = 50
)

const summarySystemPrompt = "You are a helpful assistant that creates concise, informative summaries."

const summaryPromptTemplate = `Please create a concise summary of this conversation between a user and Chordial (an AI assistant).
Focus on:
1. Key topics discussed
2. Any goals or tasks mentioned
3. The user's emotional state or mood
4. Important information about the user
5. Any plans or commitments made

Keep the summary brief but informative (2-3 paragraphs max).

Conversation:
%s

Summary:`

var emotionWords = []string{"happy", "sad", "excited", "worried", "anxious", "stressed"}

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"work", []string{"work", "job", "career", "office"}},
	{"health", []string{"health", "exercise", "sleep", "tired"}},
	{"learning", []string{"learn", "study", "practice", "improve"}},
	{"social", []string{"friend", "family", "relationship", "people"}},
}

// Summarizer maintains the summary tier: rolling digests over contiguous,
// non-overlapping ranges of raw messages.
type Summarizer struct {
	llm         llm.LLM
	store       *conversation.Store
	minMessages int
	maxMessages int
}

func NewSummarizer(l llm.LLM, store *conversation.Store, minMessages, maxMessages int) *Summarizer {
	if minMessages <= 0 {
		minMessages = DefaultMinSummaryMessages
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxSummaryMessages
	}
	return &Summarizer{llm: l, store: store, minMessages: minMessages, maxMessages: maxMessages}
}

// Backlog returns the id after which messages are unsummarized and how many
// such messages exist.
func (s *Summarizer) Backlog(ctx context.Context, userID, platform string) (afterID int64, count int, err error) {
	last, err := s.store.LastSummary(ctx, userID, platform)
	if err != nil {
		return 0, 0, err
	}
	if last != nil {
		afterID = last.LastMessageID
	}

	count, err = s.store.CountAfter(ctx, userID, platform, afterID)
	return afterID, count, err
}

// Sweep summarizes a conversation's backlog in chunks of at most the maximum
// size until fewer than the minimum remain. It stops at the first failed
// chunk; summaries already written stay valid.
func (s *Summarizer) Sweep(ctx context.Context, userID, platform string, now time.Time) (int, error) {
	created := 0
	for {
		afterID, count, err := s.Backlog(ctx, userID, platform)
		if err != nil {
			return created, err
		}
		if count < s.minMessages {
			return created, nil
		}

		chunk, err := s.store.After(ctx, userID, platform, afterID, s.maxMessages)
		if err != nil {
			return created, err
		}

		if _, err := s.summarizeChunk(ctx, userID, platform, chunk, now); err != nil {
			return created, err
		}
		created++
	}
}

// SweepAll runs Sweep over every known conversation. One conversation's
// failure does not stop the others.
func (s *Summarizer) SweepAll(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.store.Conversations(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.Sweep(ctx, k.UserID, k.Platform, now)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("summarize %s/%s: %w", k.UserID, k.Platform, err))
		}
	}

	return total, errors.Join(errs...)
}

func (s *Summarizer) summarizeChunk(ctx context.Context, userID, platform string, chunk []conversation.Message, now time.Time) (*conversation.Summary, error) {
	if len(chunk) == 0 {
		return nil, errors.New("empty summary chunk")
	}
	if s.llm == nil {
		return nil, llm.ErrUnavailable
	}

	resp, err := s.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: SummaryPrompt(chunk)},
	})
	if err != nil {
		logger.Error("summary generation failed", "user", userID, "platform", platform, "error", err)
		return nil, err
	}

	saved, err := s.store.SaveSummary(ctx, conversation.Summary{
		UserID:         userID,
		Platform:       platform,
		FirstMessageID: chunk[0].ID,
		LastMessageID:  chunk[len(chunk)-1].ID,
		Text:           strings.TrimSpace(resp.Content),
		KeyTopics:      KeyTopics(chunk),
		MessageCount:   len(chunk),
		Model:          s.llm.Model(),
	}, now)
	if err != nil {
		return nil, err
	}

	metrics.SummariesCreated.Inc()
	logger.Info("created summary", "user", userID, "platform", platform, "messages", len(chunk),
		"first", saved.FirstMessageID, "last", saved.LastMessageID)

	return saved, nil
}

// SummaryPrompt renders a chunk as the analytical prompt sent to the provider
func SummaryPrompt(chunk []conversation.Message) string {
	lines := make([]string, 0, len(chunk))
	for _, m := range chunk {
		speaker := "Chordial"
		if m.Role == conversation.RoleUser {
			speaker = "User"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Format("2006-01-02 15:04"), speaker, m.Content))
	}
	return fmt.Sprintf(summaryPromptTemplate, strings.Join(lines, "\n"))
}

// KeyTopics tags a chunk using keyword heuristics: goal language, the first
// emotion word found and any matching topic buckets.
func KeyTopics(chunk []conversation.Message) []string {
	parts := make([]string, 0, len(chunk))
	for _, m := range chunk {
		parts = append(parts, strings.ToLower(m.Content))
	}
	text := strings.Join(parts, " ")

	var topics []string
	if strings.Contains(text, "goal") || strings.Contains(text, "want to") || strings.Contains(text, "plan to") {
		topics = append(topics, "goals_discussed")
	}

	for _, emotion := range emotionWords {
		if strings.Contains(text, emotion) {
			topics = append(topics, "mood:"+emotion)
			break
		}
	}

	for _, bucket := range topicKeywords {
		for _, k := range bucket.keywords {
			if strings.Contains(text, k) {
				topics = append(topics, "topic:"+bucket.topic)
				break
			}
		}
	}

	return topics
}

// Context renders the newest summaries as a block for the prompt, or "" when
// the conversation has none.
func (s *Summarizer) Context(ctx context.Context, userID, platform string, limit int) (string, error) {
	summaries, err := s.store.RecentSummaries(ctx, userID, platform, limit)
	if err != nil || len(summaries) == 0 {
		return "", err
	}

	parts := []string{"Previous conversation context:"}
	for _, sm := range summaries {
		parts = append(parts, fmt.Sprintf("\nFrom %s: %s", sm.CreatedAt.Format("Jan 02"), sm.Text))
		if len(sm.KeyTopics) > 0 {
			parts = append(parts, "Key topics: "+strings.Join(sm.KeyTopics, ", "))
		}
	}

	return strings.Join(parts, "\n"), nil
}
