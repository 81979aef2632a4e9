package domain

import (
	"context"
	"fmt"
)

const tokensPerK = 1000.0

// CostCalculator prices the usage of one pipeline run.
type CostCalculator interface {
	// Price returns usage with Cost filled in. Answers served from the cache
	// report zero usage. Models without pricing cost zero and return an error
	// wrapping ErrPricingNotFound.
	Price(ctx context.Context, model string, usage Usage, cacheHit bool) (Usage, error)
}

// TokenCostCalculator prices provider usage from prompt and completion token counts.
type TokenCostCalculator struct {
	pricing PricingRegistry
}

// NewTokenCostCalculator creates a calculator reading prices from pricing.
func NewTokenCostCalculator(pricing PricingRegistry) *TokenCostCalculator {
	return &TokenCostCalculator{pricing: pricing}
}

// Price implements CostCalculator.
func (c *TokenCostCalculator) Price(ctx context.Context, model string, usage Usage, cacheHit bool) (Usage, error) {
	if cacheHit {
		return Usage{}, nil
	}

	usage.Cost = 0
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		// Streams from providers that do not report usage.
		return usage, nil
	}

	pricing, err := c.pricing.GetPricing(ctx, model)
	if err != nil {
		return usage, fmt.Errorf("cannot price %d tokens: %w", usage.PromptTokens+usage.CompletionTokens, err)
	}

	usage.Cost = float64(usage.PromptTokens)/tokensPerK*pricing.PromptPer1K +
		float64(usage.CompletionTokens)/tokensPerK*pricing.CompletionPer1K

	return usage, nil
}
