package llm

import (
	"strings"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// modelPricing holds USD rates per million tokens.
type modelPricing struct {
	input      float64
	output     float64
	cacheWrite float64
	cacheRead  float64
}

// Published list prices. Matching is by model id prefix so dated
// snapshots ("claude-sonnet-4-5-20250929") share their family's rates.
var pricingTable = []struct {
	prefix  string
	pricing modelPricing
}{
	{"claude-opus-4", modelPricing{input: 15, output: 75, cacheWrite: 18.75, cacheRead: 1.5}},
	{"claude-sonnet-4", modelPricing{input: 3, output: 15, cacheWrite: 3.75, cacheRead: 0.3}},
	{"claude-3-5-haiku", modelPricing{input: 0.8, output: 4, cacheWrite: 1, cacheRead: 0.08}},
	{"claude-3-haiku", modelPricing{input: 0.25, output: 1.25, cacheWrite: 0.3, cacheRead: 0.03}},
	{"gpt-4o-mini", modelPricing{input: 0.15, output: 0.6}},
	{"gpt-4o", modelPricing{input: 2.5, output: 10}},
	{"gpt-4.1", modelPricing{input: 2, output: 8}},
	{"o3", modelPricing{input: 2, output: 8}},
}

// estimateCost converts a usage sample into USD. Unknown models cost
// zero rather than guessing.
func estimateCost(_ models.Provider, model string, usage models.Usage) float64 {
	for _, entry := range pricingTable {
		if strings.HasPrefix(model, entry.prefix) {
			p := entry.pricing
			const mtok = 1_000_000
			return float64(usage.InputTokens)*p.input/mtok +
				float64(usage.OutputTokens)*p.output/mtok +
				float64(usage.CacheCreationTokens)*p.cacheWrite/mtok +
				float64(usage.CacheReadTokens)*p.cacheRead/mtok
		}
	}
	return 0
}
