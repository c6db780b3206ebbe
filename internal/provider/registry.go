package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is a thread-safe registry of data providers.
// It maps provider names to Provider instances and maintains an index
// of which providers support which model types.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider    // name → provider
	modelIdx  map[ModelType][]string // model → provider names (priority order)
	defaults  map[ModelType]string   // model → default provider name
	observer  Observer
}

// Observer is told about every upstream fetch the registry dispatches.
type Observer func(provider string, model ModelType, start time.Time, err error)

// SetObserver installs o. Pass nil to remove it.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		modelIdx:  make(map[ModelType][]string),
		defaults:  make(map[ModelType]string),
	}
}

// Register adds a provider to the registry. If the provider requires
// credentials, they should be set via Init() before calling Register.
// Duplicate registrations overwrite the previous entry.
func (r *Registry) Register(p Provider) error {
	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[info.Name] = p

	// Index the provider's supported models.
	for _, model := range p.SupportedModels() {
		existing := r.modelIdx[model]
		// Avoid duplicates.
		found := false
		for _, name := range existing {
			if name == info.Name {
				found = true
				break
			}
		}
		if !found {
			r.modelIdx[model] = append(existing, info.Name)
		}
		// Set as default if no default exists for this model.
		if _, ok := r.defaults[model]; !ok {
			r.defaults[model] = info.Name
		}
	}

	return nil
}

// Get returns a provider by name, or an error if not found.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return p, nil
}

// List returns info about all registered providers, sorted by name.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// ProvidersFor returns the names of providers that support the given model type,
// in priority order (first = default).
func (r *Registry) ProvidersFor(model ModelType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.modelIdx[model]
	result := make([]string, len(names))
	copy(result, names)
	return result
}

// DefaultProvider returns the default provider name for a model type.
func (r *Registry) DefaultProvider(model ModelType) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.defaults[model]
	return name, ok
}

// Fetch retrieves data for the given model type using the specified provider
// (or the default if providerName is empty).
func (r *Registry) Fetch(ctx context.Context, model ModelType, params QueryParams) (*FetchResult, error) {
	providerName := params[ParamProvider]

	r.mu.RLock()
	if providerName == "" {
		providerName = r.defaults[model]
	}
	p, ok := r.providers[providerName]
	observe := r.observer
	r.mu.RUnlock()

	if !ok || providerName == "" {
		return nil, &ErrProviderNotFound{Name: providerName}
	}

	fetcher := p.Fetcher(model)
	if fetcher == nil {
		return nil, &ErrModelNotSupported{Provider: providerName, Model: model}
	}

	// Validate required params.
	if err := ValidateParams(params, fetcher.RequiredParams()); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := fetcher.Fetch(ctx, params)
	if observe != nil && (result == nil || !result.Cached) {
		observe(providerName, model, start, err)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %q fetch %s: %w", providerName, model, err)
	}

	result.Provider = providerName
	result.Model = model
	if result.FetchedAt.IsZero() {
		result.FetchedAt = time.Now()
	}

	return result, nil
}

// FetchWithFallback tries the default provider, then every other provider
// of the model in registration order. Caller errors (a missing parameter or a
// cancelled context) are returned at once since no provider can succeed.
func (r *Registry) FetchWithFallback(ctx context.Context, model ModelType, params QueryParams) (*FetchResult, error) {
	result, err := r.Fetch(ctx, model, params)
	if err == nil || !retryable(ctx, err) {
		return result, err
	}

	tried := params[ParamProvider]
	if tried == "" {
		tried, _ = r.DefaultProvider(model)
	}
	errs := []error{err}
	for _, name := range r.ProvidersFor(model) {
		if name == tried {
			continue
		}
		fallbackParams := make(QueryParams, len(params)+1)
		for k, v := range params {
			fallbackParams[k] = v
		}
		fallbackParams[ParamProvider] = name

		result, err = r.Fetch(ctx, model, fallbackParams)
		if err == nil {
			result.Fallback = true
			return result, nil
		}
		errs = append(errs, err)
		if !retryable(ctx, err) {
			break
		}
	}

	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, fmt.Errorf("all providers failed for model %s: %w", model, errors.Join(errs...))
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var missing *ErrMissingParam
	return !errors.As(err, &missing)
}

// ModelCoverage maps each model type to its providers in priority order.
func (r *Registry) ModelCoverage() map[ModelType][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coverage := make(map[ModelType][]string, len(r.modelIdx))
	for model, names := range r.modelIdx {
		cp := make([]string, len(names))
		copy(cp, names)
		coverage[model] = cp
	}
	return coverage
}
