package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/metrics"
)

// BreakerConfig controls when a failing provider is short-circuited.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		OpenTimeout:      2 * time.Minute,
		HalfOpenRequests: 1,
	}
}

type providerHealth struct {
	consecutiveFailures int
	lastError           string
	lastErrorKind       domain.ErrorKind
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
	quotaCount          int64
}

type recordBreaker = gobreaker.CircuitBreaker[[]domain.RawRecord]

// Health keeps per-provider call statistics and one circuit breaker per provider.
type Health struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	states   map[string]*providerHealth
	breakers map[string]*recordBreaker
}

func NewHealth(cfg BreakerConfig, logger *slog.Logger) *Health {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = defaults.HalfOpenRequests
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Health{
		cfg:      cfg,
		logger:   logger,
		states:   make(map[string]*providerHealth),
		breakers: make(map[string]*recordBreaker),
	}
}

func (h *Health) breaker(providerName string) *recordBreaker {
	name := normalizeName(providerName)

	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[name]; ok {
		return cb
	}
	threshold := h.cfg.FailureThreshold
	logger := h.logger
	cb := gobreaker.NewCircuitBreaker[[]domain.RawRecord](gobreaker.Settings{
		Name:        name,
		MaxRequests: h.cfg.HalfOpenRequests,
		Timeout:     h.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider breaker state change",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: countsAsBreakerSuccess,
	})
	metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	h.breakers[name] = cb
	return cb
}

// countsAsBreakerSuccess keeps client-side problems from tripping the breaker:
// parse failures and 4xx responses say nothing about provider availability,
// and a caller that went away is not the provider's fault.
func countsAsBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch domain.ClassifyError(err) {
	case domain.ErrorKindParse, domain.ErrorKindEmpty:
		return true
	case domain.ErrorKindHTTP:
		var httpErr *domain.HTTPError
		return errors.As(err, &httpErr) && httpErr.Status < http.StatusInternalServerError
	default:
		return false
	}
}

func (h *Health) record(providerName, query string, err error, latency time.Duration, now time.Time) {
	name := normalizeName(providerName)
	if name == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[name]
	if state == nil {
		state = &providerHealth{}
		h.states[name] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
	}
	state.lastTimeout = domain.IsTimeout(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastErrorKind = domain.ErrorKindNone
		state.lastSuccessAt = now
		return
	}

	// A caller that went away says nothing about the provider.
	if errors.Is(err, context.Canceled) {
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	state.lastErrorKind = domain.ClassifyError(err)
	if state.lastErrorKind == domain.ErrorKindQuota {
		state.quotaCount++
	}
}

// Diagnostics reports health for every listed provider, including ones that have
// not been called yet.
func (h *Health) Diagnostics(infos []domain.ProviderInfo) []domain.ProviderDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		name := normalizeName(info.Name)
		item := domain.ProviderDiagnostics{
			Name:         info.Name,
			Label:        info.Label,
			Category:     info.Category,
			Enabled:      info.Enabled,
			BreakerState: gobreaker.StateClosed.String(),
		}
		if cb, ok := h.breakers[name]; ok {
			item.BreakerState = cb.State().String()
		}
		if state := h.states[name]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			item.LastError = state.lastError
			item.LastErrorKind = state.lastErrorKind
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
			item.QuotaCount = state.quotaCount
		}
		items = append(items, item)
	}
	return items
}
