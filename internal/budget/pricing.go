package budget

import "strings"

type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// per million tokens
var pricing = map[string]ModelPricing{
	"chatgpt-4o-latest": {5.00, 15.00},
	"gpt-4o":            {2.50, 10.00},
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4.1":           {2.00, 8.00},
	"gpt-4.1-mini":      {0.40, 1.60},
	"gpt-3.5-turbo":     {0.50, 1.50},

	"claude-sonnet-4-20250514":  {3.00, 15.00},
	"claude-haiku-3-5-20241022": {0.80, 4.00},

	"kimi-k2-0711-preview": {1.00, 4.00},
}

func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		// local ollama tags look like name:size
		if strings.HasPrefix(model, "ollama/") || strings.Contains(model, ":") {
			return 0
		}
		p = ModelPricing{5.00, 15.00}
	}

	inputCost := float64(inputTokens) * p.InputPerMillion / 1_000_000
	outputCost := float64(outputTokens) * p.OutputPerMillion / 1_000_000

	return inputCost + outputCost
}

func GetPricing(model string) (input, output float64, found bool) {
	p, ok := pricing[model]
	if !ok {
		return 0, 0, false
	}
	return p.InputPerMillion, p.OutputPerMillion, true
}
