package llm

import (
	"context"
	"errors"
)

// ErrBudgetExceeded is returned by a metered provider once the daily token
// budget is spent.
var ErrBudgetExceeded = errors.New("daily token budget exceeded")

// Meter tracks token usage. Record returns false once the budget is spent.
type Meter interface {
	Record(provider, model string, inputTokens, outputTokens int) bool
	Exceeded() bool
}

type metered struct {
	LLM
	meter Meter
}

// Metered wraps a provider so every call is checked against and recorded in
// meter. A nil meter returns the provider unchanged.
func Metered(l LLM, meter Meter) LLM {
	if meter == nil {
		return l
	}
	return &metered{LLM: l, meter: meter}
}

func (m *metered) Generate(ctx context.Context, messages []Message) (*Response, error) {
	if m.meter.Exceeded() {
		return nil, ErrBudgetExceeded
	}

	resp, err := m.LLM.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	m.meter.Record(m.Provider(), m.Model(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}
