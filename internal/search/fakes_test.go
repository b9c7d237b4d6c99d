package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/domain"
)

type fakeProvider struct {
	name     string
	category domain.Category
	records  []domain.RawRecord
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.name, Label: p.name, Category: p.category, Enabled: true}
}

func (p *fakeProvider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	return append([]domain.RawRecord(nil), p.records...), nil
}

func (p *fakeProvider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	return append([]domain.RawRecord(nil), p.records...), nil
}

type failingProvider struct {
	name     string
	category domain.Category
	err      error
}

func (p *failingProvider) Name() string { return p.name }

func (p *failingProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.name, Label: p.name, Category: p.category, Enabled: true}
}

func (p *failingProvider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	return nil, p.err
}

func (p *failingProvider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	return nil, p.err
}

// gatedProvider blocks searches for gatedQuery until release is closed.
type gatedProvider struct {
	name       string
	category   domain.Category
	byQuery    map[string][]domain.RawRecord
	gatedQuery string
	release    chan struct{}
	started    chan struct{}
	once       sync.Once
}

func (p *gatedProvider) Name() string { return p.name }

func (p *gatedProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.name, Label: p.name, Category: p.category, Enabled: true}
}

func (p *gatedProvider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	if query == p.gatedQuery {
		p.once.Do(func() { close(p.started) })
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.byQuery[query], nil
}

func (p *gatedProvider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	return nil, nil
}

// slowProvider sleeps before answering and tracks peak concurrency across a group.
type slowProvider struct {
	name     string
	category domain.Category
	delay    time.Duration
	records  []domain.RawRecord
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (p *slowProvider) Name() string { return p.name }

func (p *slowProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.name, Label: p.name, Category: p.category, Enabled: true}
}

func (p *slowProvider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	if p.inFlight != nil {
		current := p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		for {
			peak := p.peak.Load()
			if current <= peak || p.peak.CompareAndSwap(peak, current) {
				break
			}
		}
	}
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.records, nil
}

func (p *slowProvider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	return p.Search(ctx, "", 1)
}

func rawRecords(prefix string, n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{ID: fmt.Sprintf("%s-%d", prefix, i), Title: fmt.Sprintf("%s title %d", prefix, i)}
	}
	return out
}

func providerName(category domain.Category) string {
	return "fake-" + string(category)
}

// fullRegistry registers a fakeProvider with n records for every category,
// then lets overrides replace individual categories.
func fullRegistry(n int, overrides ...catalog.Provider) *catalog.Registry {
	providers := append([]catalog.Provider(nil), overrides...)
	for _, category := range domain.Categories {
		providers = append(providers, &fakeProvider{
			name:     providerName(category),
			category: category,
			records:  rawRecords(string(category), n),
		})
	}
	return catalog.NewRegistry(providers...)
}

func newTestService(registry *catalog.Registry, cfg AggregatorConfig) *Service {
	invoker := catalog.NewInvoker(
		catalog.WithTimeout(2*time.Second),
		catalog.WithRetry(catalog.RetryConfig{MaxAttempts: 1}),
	)
	return NewService(registry, cfg, WithInvoker(invoker))
}
