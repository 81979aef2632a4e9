package echo

import (
	"context"
	"fmt"

	"github.com/davidbz/hearth/internal/domain"
)

// RegisterPricing registers the echo model at zero cost, so cost accounting
// runs end to end without a paid provider.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	if err := registry.RegisterPricing(ctx, modelName, domain.ModelPricing{}); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}
	return nil
}
