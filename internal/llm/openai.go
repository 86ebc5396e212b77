package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiChat serves OpenAI and every host speaking its chat completions API
type openaiChat struct {
	client   *openai.Client
	provider string
	apiKey   string
	model    string
}

func newOpenAI(provider, apiKey, baseURL, model string, maxTokens int) LLM {
	options := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &openaiChat{client: &client, provider: provider, apiKey: apiKey, model: model}
}

func (o *openaiChat) Generate(ctx context.Context, messages []Message) (*Response, error) {
	if !o.Available() {
		return nil, ErrUnavailable
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", o.provider, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", o.provider)
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (o *openaiChat) Available() bool {
	return o.apiKey != "" && o.model != ""
}

func (o *openaiChat) Provider() string {
	return o.provider
}

func (o *openaiChat) Model() string {
	return o.model
}
