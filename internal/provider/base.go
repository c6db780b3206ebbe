package provider

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/seenimoa/cotscope/internal/infra"
)

// BaseFetcher provides common functionality for fetcher implementations.
// Embed this in concrete fetchers to get caching and rate limiting for free.
type BaseFetcher struct {
	model       ModelType
	description string
	required    []string
	optional    []string
	cache       *infra.Cache[any]
	limiter     *rate.Limiter
}

// NewBaseFetcher creates a base fetcher with sensible defaults: a five
// minute cache and ten requests per second.
func NewBaseFetcher(model ModelType, desc string, required, optional []string) BaseFetcher {
	return NewBaseFetcherWithOpts(model, desc, required, optional, 5*time.Minute, 10, time.Second)
}

// NewBaseFetcherWithOpts creates a base fetcher with custom cache TTL and
// rate limit. rateLimit requests are allowed per rateWindow, with bursts of
// up to rateLimit. A zero cacheTTL disables caching.
func NewBaseFetcherWithOpts(model ModelType, desc string, required, optional []string, cacheTTL time.Duration, rateLimit int, rateWindow time.Duration) BaseFetcher {
	limit := rate.Inf
	if rateLimit > 0 && rateWindow > 0 {
		limit = rate.Every(rateWindow / time.Duration(rateLimit))
	}
	b := BaseFetcher{
		model:       model,
		description: desc,
		required:    required,
		optional:    optional,
		limiter:     rate.NewLimiter(limit, max(rateLimit, 1)),
	}
	if cacheTTL > 0 {
		b.cache = infra.NewCache[any](cacheTTL)
	}
	return b
}

func (b *BaseFetcher) ModelType() ModelType     { return b.model }
func (b *BaseFetcher) Description() string      { return b.description }
func (b *BaseFetcher) RequiredParams() []string { return b.required }
func (b *BaseFetcher) OptionalParams() []string { return b.optional }

// CacheGet retrieves a value from the fetcher's cache.
func (b *BaseFetcher) CacheGet(key string) (any, bool) {
	if b.cache == nil {
		return nil, false
	}
	return b.cache.Get(key)
}

// CacheSet stores a value in the fetcher's cache.
func (b *BaseFetcher) CacheSet(key string, value any) {
	if b.cache != nil {
		b.cache.Set(key, value)
	}
}

// RateLimit waits until a request slot is available.
func (b *BaseFetcher) RateLimit(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// CacheKey builds a cache key from model type and query parameters.
func CacheKey(model ModelType, params QueryParams) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == ParamProvider || strings.HasPrefix(k, "_") {
			continue // provider choice and injected secrets don't change the data
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(string(model))
	for _, k := range keys {
		sb.WriteString(":" + k + "=" + params[k])
	}
	return sb.String()
}

// BaseProvider provides common functionality for provider implementations.
// Embed this in concrete providers to simplify implementation.
type BaseProvider struct {
	info     ProviderInfo
	fetchers map[ModelType]Fetcher
}

// NewBaseProvider creates a base provider.
func NewBaseProvider(name, description, website string, creds []ProviderCredential) BaseProvider {
	return BaseProvider{
		info: ProviderInfo{
			Name:        name,
			Description: description,
			Website:     website,
			Credentials: creds,
		},
		fetchers: make(map[ModelType]Fetcher),
	}
}

func (bp *BaseProvider) Info() ProviderInfo { return bp.info }

func (bp *BaseProvider) Init(credentials map[string]string) error {
	// Validate required credentials.
	for _, cred := range bp.info.Credentials {
		if cred.Required {
			val, ok := credentials[cred.Name]
			if !ok || val == "" {
				return &ErrInvalidCredentials{
					Provider: bp.info.Name,
					Detail:   "missing required credential: " + cred.Name,
				}
			}
		}
	}
	return nil
}

func (bp *BaseProvider) Fetcher(model ModelType) Fetcher {
	return bp.fetchers[model]
}

func (bp *BaseProvider) SupportedModels() []ModelType {
	models := make([]ModelType, 0, len(bp.fetchers))
	for _, m := range AllModels() {
		if _, ok := bp.fetchers[m]; ok {
			models = append(models, m)
		}
	}
	return models
}

func (bp *BaseProvider) Ping(ctx context.Context) error {
	return nil // Override in concrete providers.
}

// RegisterFetcher adds a fetcher to this provider.
func (bp *BaseProvider) RegisterFetcher(f Fetcher) {
	model := f.ModelType()
	bp.fetchers[model] = f
	// Update info models list.
	bp.info.Models = bp.SupportedModels()
}
