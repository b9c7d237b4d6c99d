// Package catalog defines the provider adapter contract and the resilience layer
// every adapter call goes through.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"connectlist/discoveryservice/internal/domain"
)

var ErrNoProvider = errors.New("no provider configured for category")

// Provider is one external content catalog adapter bound to a single category.
// Implementations map every failure to the domain error taxonomy and skip
// malformed records individually.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error)
	Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error)
}

// Result is the outcome of one adapter call. Err is always nil or one of the
// domain provider errors.
type Result struct {
	Provider string
	Category domain.Category
	Records  []domain.RawRecord
	Err      error
	Elapsed  time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Kind reports the error class, or ErrorKindEmpty for a successful zero-record
// response.
func (r Result) Kind() domain.ErrorKind {
	if r.Err != nil {
		return domain.ClassifyError(r.Err)
	}
	if len(r.Records) == 0 {
		return domain.ErrorKindEmpty
	}
	return domain.ErrorKindNone
}

// Failed reports whether the call failed in a way that may warrant a fallback.
// An empty but successful response is not a failure.
func (r Result) Failed() bool {
	switch r.Kind() {
	case domain.ErrorKindNone, domain.ErrorKindEmpty:
		return false
	default:
		return true
	}
}

// Registry maps categories to their provider.
type Registry struct {
	byCategory map[domain.Category]Provider
	byName     map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{
		byCategory: make(map[domain.Category]Provider, len(providers)),
		byName:     make(map[string]Provider, len(providers)),
	}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		info := provider.Info()
		name := normalizeName(provider.Name())
		if name == "" || !info.Category.Concrete() {
			continue
		}
		if _, exists := registry.byCategory[info.Category]; exists {
			continue
		}
		registry.byCategory[info.Category] = provider
		registry.byName[name] = provider
	}
	return registry
}

func (r *Registry) ForCategory(category domain.Category) (Provider, error) {
	if r == nil {
		return nil, ErrNoProvider
	}
	provider, ok := r.byCategory[category]
	if !ok {
		return nil, ErrNoProvider
	}
	return provider, nil
}

func (r *Registry) ByName(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	provider, ok := r.byName[normalizeName(name)]
	return provider, ok
}

// Providers lists registered providers in category priority order.
func (r *Registry) Providers() []domain.ProviderInfo {
	if r == nil {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(r.byCategory))
	for _, category := range domain.Categories {
		provider, ok := r.byCategory[category]
		if !ok {
			continue
		}
		info := provider.Info()
		if info.Name == "" {
			info.Name = normalizeName(provider.Name())
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	return items
}

func (r *Registry) Categories() []domain.Category {
	if r == nil {
		return nil
	}
	out := make([]domain.Category, 0, len(r.byCategory))
	for category := range r.byCategory {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool {
		return categoryRank(out[i]) < categoryRank(out[j])
	})
	return out
}

func categoryRank(category domain.Category) int {
	for i, candidate := range domain.Categories {
		if candidate == category {
			return i
		}
	}
	return len(domain.Categories)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
