package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// ErrProviderNotFound is returned when no provider matches a name or model.
var ErrProviderNotFound = errors.New("provider not found")

// Registry implements the ProviderRegistry interface. Models announced by a
// provider at registration are routed by a reverse index; other models fall
// back to asking each provider in registration order.
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]domain.Provider
	order           []string
	modelToProvider map[string]string
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:       make(map[string]domain.Provider),
		modelToProvider: make(map[string]string),
	}
}

// Register adds a provider to the registry. When two providers announce the
// same model, the first registration keeps it.
func (r *Registry) Register(ctx context.Context, provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	models := provider.SupportedModels(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	r.order = append(r.order, name)

	logger := observability.FromContext(ctx)
	for _, model := range models {
		if owner, taken := r.modelToProvider[model]; taken {
			logger.Warn("model already served by another provider",
				observability.String("model", model),
				observability.String("owner", owner),
				observability.String("ignored", name))
			continue
		}
		r.modelToProvider[model] = name
	}

	logger.Info("provider registered",
		observability.String("name", name),
		observability.Int("models", len(models)))

	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(_ context.Context, providerName string) (domain.Provider, error) {
	if providerName == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[providerName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	return provider, nil
}

// List returns the names of all registered providers, sorted.
func (r *Registry) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)

	return names, nil
}

// GetByModel retrieves the provider serving the given model.
func (r *Registry) GetByModel(ctx context.Context, model string) (domain.Provider, error) {
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, exists := r.modelToProvider[model]; exists {
		return r.providers[name], nil
	}

	for _, name := range r.order {
		provider := r.providers[name]
		if provider.IsModelSupported(ctx, model) {
			return provider, nil
		}
	}

	return nil, fmt.Errorf("%w for model: %s", ErrProviderNotFound, model)
}
