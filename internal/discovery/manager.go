// Package discovery maintains the per-category browsing feeds shown when no
// query is active.
package discovery

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/fallback"
	"connectlist/discoveryservice/internal/metrics"
	"connectlist/discoveryservice/internal/normalize"
)

var ErrUnknownCategory = errors.New("unknown category")

const (
	loadInitial = "initial"
	loadMore    = "more"
)

type Config struct {
	// Categories is the feed order. Defaults to every concrete category.
	Categories []domain.Category
	// Eager categories load synchronously in Start; the rest follow lazily.
	Eager       []domain.Category
	PacingDelay time.Duration
	// PageSize caps the items appended per load.
	PageSize      int
	MaxConcurrent int
}

func DefaultConfig() Config {
	return Config{
		Categories:    append([]domain.Category(nil), domain.Categories...),
		Eager:         []domain.Category{domain.CategoryMovies, domain.CategorySeries, domain.CategoryMusics},
		PacingDelay:   750 * time.Millisecond,
		PageSize:      20,
		MaxConcurrent: 4,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	c.Categories = uniqueConcrete(c.Categories)
	if len(c.Categories) == 0 {
		c.Categories = defaults.Categories
	}
	if c.Eager == nil {
		c.Eager = defaults.Eager
	}
	eager := make([]domain.Category, 0, len(c.Eager))
	for _, category := range uniqueConcrete(c.Eager) {
		if slices.Contains(c.Categories, category) {
			eager = append(eager, category)
		}
	}
	c.Eager = eager
	if c.PacingDelay < 0 {
		c.PacingDelay = 0
	}
	if c.PageSize <= 0 {
		c.PageSize = defaults.PageSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaults.MaxConcurrent
	}
	return c
}

// Manager owns every DiscoverySection of one browsing session. Sections are
// only mutated under mu; callers receive deep copies.
type Manager struct {
	registry   *catalog.Registry
	invoker    *catalog.Invoker
	normalizer *normalize.Normalizer
	cfg        Config
	logger     *slog.Logger
	salt       uint64

	mu       sync.Mutex
	sections map[domain.Category]*domain.DiscoverySection
	// epoch advances on RefreshAll; loads started under an older epoch are dropped.
	epoch uint64

	startOnce sync.Once
	done      chan struct{}
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithInvoker(invoker *catalog.Invoker) Option {
	return func(m *Manager) {
		if invoker != nil {
			m.invoker = invoker
		}
	}
}

func WithNormalizer(normalizer *normalize.Normalizer) Option {
	return func(m *Manager) {
		if normalizer != nil {
			m.normalizer = normalizer
		}
	}
}

// WithSalt fixes the diversification salt. Managers otherwise draw a random
// salt so two sessions do not page through identical feeds.
func WithSalt(salt uint64) Option {
	return func(m *Manager) {
		m.salt = salt
	}
}

func NewManager(registry *catalog.Registry, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		salt:     rand.Uint64(),
		sections: make(map[domain.Category]*domain.DiscoverySection),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.invoker == nil {
		m.invoker = catalog.NewInvoker(catalog.WithInvokerLogger(m.logger))
	}
	if m.normalizer == nil {
		m.normalizer = normalize.New(normalize.Config{})
	}
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}

// Start loads the eager categories before returning, then loads the remaining
// categories in the background with PacingDelay between each. Only the first
// call has an effect. The background loader stops when ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		eager := make(map[domain.Category]struct{}, len(m.cfg.Eager))
		for _, category := range m.cfg.Eager {
			eager[category] = struct{}{}
		}
		m.loadAll(ctx, m.cfg.Eager)

		lazy := make([]domain.Category, 0, len(m.cfg.Categories))
		for _, category := range m.cfg.Categories {
			if _, ok := eager[category]; !ok {
				lazy = append(lazy, category)
			}
		}
		go m.backfill(ctx, lazy)
	})
}

// Done is closed once the background loader started by Start has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) backfill(ctx context.Context, categories []domain.Category) {
	defer close(m.done)
	for _, category := range categories {
		select {
		case <-ctx.Done():
			m.logger.Debug("discovery backfill stopped", slog.String("category", string(category)))
			return
		case <-time.After(m.cfg.PacingDelay):
		}
		if _, err := m.LoadInitial(ctx, category); err != nil {
			m.logger.Warn("discovery backfill failed", slog.String("category", string(category)), slog.String("error", err.Error()))
		}
	}
}

// LoadInitial performs the first load of a category. It is a no-op for a
// section that is already loaded or loading.
func (m *Manager) LoadInitial(ctx context.Context, category domain.Category) (domain.DiscoverySection, error) {
	return m.load(ctx, category, loadInitial)
}

// LoadMore advances the section's load key and appends the net-new items of
// the next browse page. HasMore turns false when nothing new arrives.
func (m *Manager) LoadMore(ctx context.Context, category domain.Category) (domain.DiscoverySection, error) {
	return m.load(ctx, category, loadMore)
}

// RefreshAll clears every section, including seen ids and load keys, and
// reloads all categories. Loads still in flight from before the refresh are
// discarded.
func (m *Manager) RefreshAll(ctx context.Context) []domain.DiscoverySection {
	m.mu.Lock()
	m.epoch++
	for _, category := range m.cfg.Categories {
		m.sections[category] = newSection(category)
	}
	m.mu.Unlock()

	m.loadAll(ctx, m.cfg.Categories)
	return m.Sections()
}

func (m *Manager) Section(category domain.Category) (domain.DiscoverySection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sections[category]
	if !ok {
		return domain.DiscoverySection{}, false
	}
	return current.Clone(), true
}

// Sections returns snapshots of the sections created so far, in feed order.
func (m *Manager) Sections() []domain.DiscoverySection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DiscoverySection, 0, len(m.sections))
	for _, category := range m.cfg.Categories {
		if current, ok := m.sections[category]; ok {
			out = append(out, current.Clone())
		}
	}
	return out
}

func (m *Manager) loadAll(ctx context.Context, categories []domain.Category) {
	var g errgroup.Group
	g.SetLimit(m.cfg.MaxConcurrent)
	for _, category := range categories {
		g.Go(func() error {
			_, err := m.LoadInitial(ctx, category)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("discovery load failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) load(ctx context.Context, category domain.Category, kind string) (domain.DiscoverySection, error) {
	if !m.known(category) {
		return domain.DiscoverySection{}, ErrUnknownCategory
	}

	m.mu.Lock()
	current, ok := m.sections[category]
	if !ok {
		current = newSection(category)
		m.sections[category] = current
	}
	if current.Loading || (kind == loadInitial && current.Loaded) {
		snapshot := current.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	if kind == loadMore {
		current.LastLoadKey++
	}
	loadKey := current.LastLoadKey
	epoch := m.epoch
	current.Loading = true
	m.mu.Unlock()

	seed := m.seed(category, loadKey)
	var result catalog.Result
	providerName := ""
	provider, err := m.registry.ForCategory(category)
	if err != nil {
		result = catalog.Result{Category: category, Err: err}
	} else {
		providerName = provider.Name()
		result = m.invoker.Browse(ctx, provider, seed)
	}
	items := m.normalizer.NormalizeAll(category, providerName, result.Records)
	if len(items) > m.cfg.PageSize {
		items = items[:m.cfg.PageSize]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		// Refreshed meanwhile; the section this load belonged to is gone.
		return m.sections[category].Clone(), nil
	}
	outcome := m.commit(current, kind, items, result, seed)
	metrics.FeedLoadsTotal.WithLabelValues(string(category), kind, outcome).Inc()
	m.logger.Debug("discovery load finished",
		slog.String("category", string(category)),
		slog.String("kind", kind),
		slog.String("outcome", outcome),
		slog.Uint64("loadKey", loadKey),
		slog.Int("items", len(current.Items)),
	)
	return current.Clone(), nil
}

// commit merges one browse batch into state. Fallback items fill a section
// that would otherwise stay empty; they never enter SeenIDs and are dropped
// once real items arrive.
func (m *Manager) commit(state *domain.DiscoverySection, kind string, items []domain.ContentItem, result catalog.Result, seed uint64) string {
	state.Loading = false
	state.Loaded = true
	state.LastError = ""
	if result.Failed() {
		state.LastError = result.Err.Error()
	}

	fresh := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if _, seen := state.SeenIDs[item.ID]; seen {
			continue
		}
		state.SeenIDs[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	if len(fresh) > 0 {
		state.Items = append(withoutFallback(state.Items), fresh...)
	}
	state.HasMore = len(fresh) > 0

	failed := result.Failed()
	switch {
	case len(state.Items) == 0 && failed && fallback.Eligible(state.Category):
		state.Items = fallback.Generate(state.Category, seed, m.cfg.PageSize)
		metrics.FallbackItemsTotal.WithLabelValues(string(state.Category), "discovery").Add(float64(len(state.Items)))
		return "fallback"
	case failed:
		if kind == loadInitial {
			// Let the client retry a first load that never reached the provider.
			state.HasMore = true
		}
		return "failed"
	case len(fresh) == 0:
		return "empty"
	default:
		return "ok"
	}
}

func (m *Manager) known(category domain.Category) bool {
	return slices.Contains(m.cfg.Categories, category)
}

// seed derives the diversification seed for one load of a category.
func (m *Manager) seed(category domain.Category, loadKey uint64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(category))
	return h.Sum64() ^ m.salt ^ (loadKey * 0x9e3779b97f4a7c15)
}

func newSection(category domain.Category) *domain.DiscoverySection {
	return &domain.DiscoverySection{
		Category: category,
		Items:    []domain.ContentItem{},
		SeenIDs:  make(map[string]struct{}),
	}
}

func withoutFallback(items []domain.ContentItem) []domain.ContentItem {
	out := items[:0:0]
	for _, item := range items {
		if !item.IsFallback {
			out = append(out, item)
		}
	}
	return out
}

func uniqueConcrete(categories []domain.Category) []domain.Category {
	out := make([]domain.Category, 0, len(categories))
	seen := make(map[domain.Category]struct{}, len(categories))
	for _, category := range categories {
		if !category.Concrete() {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}
