package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxRetries = 3
const baseDelay = 2 * time.Second

type claude struct {
	client    anthropic.Client
	apiKey    string
	model     string
	maxTokens int
}

func newClaude(apiKey, model string, maxTokens int) LLM {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &claude{client: client, apiKey: apiKey, model: model, maxTokens: maxTokens}
}

func (c *claude) Generate(ctx context.Context, messages []Message) (*Response, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(c.maxTokens),
		Messages:  c.convertMessages(turns),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	var resp *anthropic.Message
	var err error
	for attempt := range maxRetries {
		resp, err = c.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(baseDelay * time.Duration(1<<attempt)):
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return c.parseResponse(resp), nil
}

func isRetryableError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "502")
}

// splitSystem pulls every system entry into one system prompt, keeping the
// conversational turns in order.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// normalizeTurns merges consecutive same-role turns and makes the sequence
// start and end on a user turn, which the messages API requires.
func normalizeTurns(turns []Message) []Message {
	var out []Message
	for _, m := range turns {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}

	if len(out) == 0 || out[0].Role != "user" {
		out = append([]Message{{Role: "user", Content: "(conversation so far)"}}, out...)
	}
	if out[len(out)-1].Role != "user" {
		out = append(out, Message{Role: "user", Content: "(write your next message now)"})
	}
	return out
}

func (c *claude) convertMessages(turns []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, m := range normalizeTurns(turns) {
		if m.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return result
}

func (c *claude) parseResponse(resp *anthropic.Message) *Response {
	result := &Response{}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	result.Content = strings.Join(parts, "")

	result.Usage = Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}

	return result
}

func (c *claude) Available() bool {
	return c.apiKey != ""
}

func (c *claude) Provider() string {
	return "claude"
}

func (c *claude) Model() string {
	return c.model
}
