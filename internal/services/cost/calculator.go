package cost

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type PricingTable struct {
	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

type ProviderPricing map[string]map[string]PricingTable

// USD per million tokens, list prices.
var defaultPricing = ProviderPricing{
	"openai": {
		"gpt-4o":      {InputPricePerMillion: 2.50, OutputPricePerMillion: 10.00},
		"gpt-4o-mini": {InputPricePerMillion: 0.15, OutputPricePerMillion: 0.60},
		"gpt-4-turbo": {InputPricePerMillion: 10.00, OutputPricePerMillion: 30.00},
		"gpt-4.1":     {InputPricePerMillion: 2.00, OutputPricePerMillion: 8.00},
		"o3-mini":     {InputPricePerMillion: 1.10, OutputPricePerMillion: 4.40},
		"o1":          {InputPricePerMillion: 15.00, OutputPricePerMillion: 60.00},
	},
	"anthropic": {
		"claude-3-5-sonnet": {InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
		"claude-3-7-sonnet": {InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
		"claude-3-5-haiku":  {InputPricePerMillion: 0.80, OutputPricePerMillion: 4.00},
		"claude-3-haiku":    {InputPricePerMillion: 0.25, OutputPricePerMillion: 1.25},
		"claude-3-opus":     {InputPricePerMillion: 15.00, OutputPricePerMillion: 75.00},
	},
	"gemini": {
		"gemini-1.5-flash": {InputPricePerMillion: 0.075, OutputPricePerMillion: 0.30},
		"gemini-1.5-pro":   {InputPricePerMillion: 1.25, OutputPricePerMillion: 5.00},
		"gemini-2.0-flash": {InputPricePerMillion: 0.10, OutputPricePerMillion: 0.40},
		"gemini-2.5-flash": {InputPricePerMillion: 0.30, OutputPricePerMillion: 2.50},
		"gemini-2.5-pro":   {InputPricePerMillion: 1.25, OutputPricePerMillion: 10.00},
	},
	"deepseek": {
		"deepseek-chat":     {InputPricePerMillion: 0.27, OutputPricePerMillion: 1.10},
		"deepseek-reasoner": {InputPricePerMillion: 0.55, OutputPricePerMillion: 2.19},
	},
}

// Calculator prices token usage per provider and model. Unknown models
// cost nothing.
type Calculator struct {
	mu      sync.RWMutex
	pricing ProviderPricing
}

func NewCalculator() *Calculator {
	p := make(ProviderPricing, len(defaultPricing))
	for provider, models := range defaultPricing {
		p[provider] = make(map[string]PricingTable, len(models))
		for model, table := range models {
			p[provider][model] = table
		}
	}
	return &Calculator{pricing: p}
}

// EstimateCost returns the USD cost of a call. A model without an exact
// entry uses the longest table entry it starts with, so dated snapshots
// like "gpt-4o-2024-11-20" price as "gpt-4o".
func (c *Calculator) EstimateCost(provider, model string, inputTokens, outputTokens int) float64 {
	table, ok := c.lookup(provider, model)
	if !ok {
		return 0
	}
	in := float64(inputTokens) / 1_000_000 * table.InputPricePerMillion
	out := float64(outputTokens) / 1_000_000 * table.OutputPricePerMillion
	return in + out
}

// GetPricing returns the exact pricing entry for provider and model.
func (c *Calculator) GetPricing(provider, model string) (PricingTable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	provider, model = strings.ToLower(provider), strings.ToLower(model)
	models, ok := c.pricing[provider]
	if !ok {
		return PricingTable{}, fmt.Errorf("provider %s not found", provider)
	}
	table, ok := models[model]
	if !ok {
		return PricingTable{}, fmt.Errorf("model %s not found for provider %s", model, provider)
	}
	return table, nil
}

// AddPricing registers or replaces a pricing entry.
func (c *Calculator) AddPricing(provider, model string, table PricingTable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider, model = strings.ToLower(provider), strings.ToLower(model)
	if _, ok := c.pricing[provider]; !ok {
		c.pricing[provider] = make(map[string]PricingTable)
	}
	c.pricing[provider][model] = table
}

func (c *Calculator) lookup(provider, model string) (PricingTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	provider, model = strings.ToLower(provider), strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	models, ok := c.pricing[provider]
	if !ok {
		return PricingTable{}, false
	}
	if table, ok := models[model]; ok {
		return table, true
	}
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if strings.HasPrefix(model, name) {
			return models[name], true
		}
	}
	return PricingTable{}, false
}
