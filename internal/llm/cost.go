package llm

import "strings"

// Per-million-token prices, input/output. Matched by model name prefix,
// longest prefix wins.
var modelPrices = map[string][2]float64{
	"claude-opus":   {15.0, 75.0},
	"claude-sonnet": {3.0, 15.0},
	"claude-haiku":  {0.80, 4.0},
	"claude-3-5":    {3.0, 15.0},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4o":        {2.50, 10.0},
	"gpt-4.1-mini":  {0.40, 1.60},
	"gpt-4.1":       {2.0, 8.0},
}

var defaultPrice = [2]float64{3.0, 15.0}

// CostUSD estimates the dollar cost of one completion.
func CostUSD(model string, u Usage) float64 {
	price := defaultPrice
	best := -1
	model = strings.ToLower(strings.TrimSpace(model))
	for prefix, p := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			price = p
			best = len(prefix)
		}
	}
	return float64(u.InputTokens)*price[0]/1e6 + float64(u.OutputTokens)*price[1]/1e6
}
