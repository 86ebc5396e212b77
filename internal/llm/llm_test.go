package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnownProviders(t *testing.T) {
	for _, p := range KnownProviders() {
		l, err := New(Config{Provider: p, APIKey: "key", Model: "m"})
		require.NoError(t, err, p)
		assert.Equal(t, p, l.Provider())
	}

	_, err := New(Config{Provider: "nope"})
	assert.Error(t, err)
	assert.False(t, IsKnownProvider("nope"))
	assert.True(t, IsKnownProvider("groq"))
}

func TestDefaults(t *testing.T) {
	l, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "chatgpt-4o-latest", l.Model())

	c, err := New(Config{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", c.Model())
}

func TestUnavailableWithoutKey(t *testing.T) {
	for _, p := range []string{"claude", "openai"} {
		l, err := New(Config{Provider: p})
		require.NoError(t, err)
		assert.False(t, l.Available(), p)

		_, err = l.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
		assert.ErrorIs(t, err, ErrUnavailable, p)
	}

	ollama, err := New(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.True(t, ollama.Available())
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: "system", Content: "be kind"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "it's late"},
		{Role: "assistant", Content: "hello"},
	})

	assert.Equal(t, "be kind\n\nit's late", system)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Content)
}

func TestNormalizeTurns(t *testing.T) {
	turns := normalizeTurns([]Message{
		{Role: "assistant", Content: "checking in"},
		{Role: "assistant", Content: "still there?"},
		{Role: "user", Content: "yes"},
		{Role: "user", Content: "sorry"},
		{Role: "assistant", Content: "no worries"},
	})

	require.Len(t, turns, 5)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "checking in\n\nstill there?", turns[1].Content)
	assert.Equal(t, "yes\n\nsorry", turns[2].Content)
	assert.Equal(t, "assistant", turns[3].Role)
	assert.Equal(t, "user", turns[4].Role)

	assert.Len(t, normalizeTurns(nil), 1)
}

func TestOpenAIGenerate(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hey there"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	l, err := New(Config{Provider: "mistral", APIKey: "k", Model: "test-model", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	resp, err := l.Generate(context.Background(), []Message{
		{Role: "system", Content: "be warm"},
		{Role: "assistant", Content: "earlier"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hey there", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

type stubLLM struct {
	calls int
	err   error
}

func (s *stubLLM) Generate(ctx context.Context, messages []Message) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: "ok", Usage: Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}
func (s *stubLLM) Available() bool  { return true }
func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub-1" }

type stubMeter struct {
	exceeded bool
	recorded int
}

func (m *stubMeter) Record(provider, model string, in, out int) bool {
	m.recorded += in + out
	return true
}
func (m *stubMeter) Exceeded() bool { return m.exceeded }

func TestMetered(t *testing.T) {
	inner := &stubLLM{}
	meter := &stubMeter{}
	l := Metered(inner, meter)

	_, err := l.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 15, meter.recorded)
	assert.Equal(t, "stub", l.Provider())

	meter.exceeded = true
	_, err = l.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 1, inner.calls)

	inner.err = errors.New("boom")
	meter.exceeded = false
	_, err = l.Generate(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, 15, meter.recorded)

	assert.Same(t, inner, Metered(inner, nil))
}
