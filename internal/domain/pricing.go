package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ModelPricing is the USD price of a model per 1K tokens.
type ModelPricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	// GetPricing returns the pricing of a model or ErrPricingNotFound.
	GetPricing(ctx context.Context, model string) (ModelPricing, error)

	// RegisterPricing sets the pricing of a model, replacing any earlier one.
	RegisterPricing(ctx context.Context, model string, pricing ModelPricing) error
}

// PriceTable is an in-memory PricingRegistry filled by providers at startup.
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPricing
}

// NewPriceTable creates an empty price table.
func NewPriceTable() *PriceTable {
	return &PriceTable{prices: make(map[string]ModelPricing)}
}

// GetPricing implements PricingRegistry.
func (t *PriceTable) GetPricing(_ context.Context, model string) (ModelPricing, error) {
	t.mu.RLock()
	pricing, ok := t.prices[model]
	t.mu.RUnlock()

	if !ok {
		return ModelPricing{}, fmt.Errorf("%w: %q", ErrPricingNotFound, model)
	}
	return pricing, nil
}

// RegisterPricing implements PricingRegistry.
func (t *PriceTable) RegisterPricing(_ context.Context, model string, pricing ModelPricing) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if pricing.PromptPer1K < 0 || pricing.CompletionPer1K < 0 {
		return fmt.Errorf("pricing for %s cannot be negative", model)
	}

	t.mu.Lock()
	t.prices[model] = pricing
	t.mu.Unlock()

	return nil
}
