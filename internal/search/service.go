// Package search aggregates one query across the category providers.
package search

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/classify"
	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/fallback"
	"connectlist/discoveryservice/internal/metrics"
	"connectlist/discoveryservice/internal/normalize"
)

var (
	ErrInvalidQuery    = errors.New("query is required")
	ErrQueryTooShort   = errors.New("query is too short")
	ErrUnknownCategory = errors.New("unknown category")
)

// Request is one search. An empty Category means "use the classified category".
type Request struct {
	Query    string
	Category domain.Category
	// OnStatus, when set, receives each provider status as its call completes.
	// It may be called from several goroutines at once.
	OnStatus func(domain.ProviderStatus)
}

type Service struct {
	registry   *catalog.Registry
	invoker    *catalog.Invoker
	normalizer *normalize.Normalizer
	cfg        AggregatorConfig
	logger     *slog.Logger
	now        func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInvoker shares an invoker (and its breakers) with other components.
func WithInvoker(invoker *catalog.Invoker) ServiceOption {
	return func(s *Service) {
		if invoker != nil {
			s.invoker = invoker
		}
	}
}

func WithNormalizer(normalizer *normalize.Normalizer) ServiceOption {
	return func(s *Service) {
		if normalizer != nil {
			s.normalizer = normalizer
		}
	}
}

func NewService(registry *catalog.Registry, cfg AggregatorConfig, opts ...ServiceOption) *Service {
	svc := &Service{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.invoker == nil {
		svc.invoker = catalog.NewInvoker(
			catalog.WithTimeout(svc.cfg.ProviderTimeout),
			catalog.WithInvokerLogger(svc.logger),
		)
	}
	if svc.normalizer == nil {
		svc.normalizer = normalize.New(normalize.Config{})
	}
	return svc
}

func (s *Service) Config() AggregatorConfig {
	return s.cfg
}

func (s *Service) Providers() []domain.ProviderInfo {
	return s.registry.Providers()
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return s.invoker.Health().Diagnostics(s.registry.Providers())
}

// RunSearch executes one stateless search. It always commits.
func (s *Service) RunSearch(ctx context.Context, request Request) (domain.SearchResponse, error) {
	return s.NewSession("").Run(ctx, request)
}

// ValidateQuery trims the query and enforces the minimum length.
func (s *Service) ValidateQuery(raw string) (string, error) {
	query := strings.Join(strings.Fields(raw), " ")
	if query == "" {
		return "", ErrInvalidQuery
	}
	if utf8.RuneCountInString(query) < s.cfg.MinQueryLength {
		return "", ErrQueryTooShort
	}
	return query, nil
}

// Plan returns the categories dispatched for active, in merge order, and the
// per-category item cap.
func (s *Service) Plan(active domain.Category) ([]domain.Category, int, error) {
	switch {
	case active == domain.CategoryAll:
		plan := make([]domain.Category, len(s.cfg.AllPlan))
		copy(plan, s.cfg.AllPlan)
		return plan, s.cfg.AllPerProviderCap, nil
	case active.Concrete():
		return []domain.Category{active}, s.cfg.CategoryCap, nil
	default:
		return nil, 0, ErrUnknownCategory
	}
}

type slot struct {
	category domain.Category
	provider string
	result   catalog.Result
	missing  bool
}

// dispatch runs one adapter call per plan entry with at most MaxConcurrent in
// flight. Each goroutine owns its slot; observe reports per-slot completion.
func (s *Service) dispatch(ctx context.Context, query string, plan []domain.Category, observe func(int, domain.ProviderStatus)) []slot {
	slots := make([]slot, len(plan))
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrent))
	var wg sync.WaitGroup

	for i, category := range plan {
		slots[i].category = category
		provider, err := s.registry.ForCategory(category)
		if err != nil {
			slots[i].missing = true
			slots[i].result = catalog.Result{Category: category}
			observe(i, s.status(slots[i], 0, 0))
			continue
		}
		slots[i].provider = provider.Name()

		wg.Add(1)
		go func(index int, current catalog.Provider) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				slots[index].result = catalog.Result{
					Provider: current.Name(),
					Category: slots[index].category,
					Err:      &domain.NetworkError{Provider: current.Name(), Err: err},
				}
				observe(index, s.status(slots[index], 0, 0))
				return
			}
			defer sem.Release(1)

			slots[index].result = s.invoker.Search(ctx, current, query, 1)
			observe(index, s.status(slots[index], 0, 0))
		}(i, provider)
	}
	wg.Wait()
	return slots
}

// merge normalizes every slot in plan order, caps it, backfills failed
// fallback-eligible slots and drops duplicate ids.
func (s *Service) merge(query string, slots []slot, capacity int) ([]domain.ContentItem, []domain.ProviderStatus) {
	seed := querySeed(query)
	items := make([]domain.ContentItem, 0, len(slots)*capacity)
	statuses := make([]domain.ProviderStatus, 0, len(slots))
	seen := make(map[string]struct{}, len(slots)*capacity)

	for _, current := range slots {
		contributed := s.normalizer.NormalizeAll(current.category, current.provider, current.result.Records)
		if len(contributed) > capacity {
			contributed = contributed[:capacity]
		}
		fallbackCount := 0
		if (current.missing || current.result.Failed()) && fallback.Eligible(current.category) {
			contributed = fallback.Generate(current.category, seed, capacity)
			fallbackCount = len(contributed)
			metrics.FallbackItemsTotal.WithLabelValues(string(current.category), "search").Add(float64(fallbackCount))
		}

		count := 0
		for _, item := range contributed {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
			count++
		}
		statuses = append(statuses, s.status(current, count, fallbackCount))
	}
	return items, statuses
}

func (s *Service) status(current slot, count, fallbackCount int) domain.ProviderStatus {
	status := domain.ProviderStatus{
		Name:      current.provider,
		Category:  current.category,
		State:     domain.ProviderSucceeded,
		Count:     count,
		Fallback:  fallbackCount,
		ElapsedMS: current.result.Elapsed.Milliseconds(),
	}
	if current.missing {
		status.State = domain.ProviderFailed
		status.Error = catalog.ErrNoProvider.Error()
		return status
	}
	status.ErrorKind = current.result.Kind()
	if current.result.Failed() {
		status.State = domain.ProviderFailed
		status.Error = current.result.Err.Error()
	}
	return status
}

func (s *Service) pendingStatuses(plan []domain.Category) []domain.ProviderStatus {
	statuses := make([]domain.ProviderStatus, len(plan))
	for i, category := range plan {
		statuses[i] = domain.ProviderStatus{Category: category, State: domain.ProviderPending}
		if provider, err := s.registry.ForCategory(category); err == nil {
			statuses[i].Name = provider.Name()
		}
	}
	return statuses
}

// querySeed keeps placeholder items stable for repeated runs of the same query.
func querySeed(query string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(query)))
	return h.Sum64()
}

func classifyQuery(query string) domain.Category {
	return classify.Classify(query)
}
