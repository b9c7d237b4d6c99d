package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/metrics"
	"connectlist/discoveryservice/internal/telemetry"
)

const (
	operationSearch = "search"
	operationBrowse = "browse"

	defaultProviderTimeout = 8 * time.Second
)

// Invoker runs adapter calls behind a per-call timeout, a per-provider rate
// limiter, a circuit breaker and bounded retries. Every call yields a Result;
// errors never escape out of band.
type Invoker struct {
	timeout time.Duration
	retry   RetryConfig
	limit   rate.Limit
	burst   int
	health  *Health
	logger  *slog.Logger
	now     func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

type InvokerOption func(*Invoker)

func WithTimeout(timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

func WithRetry(cfg RetryConfig) InvokerOption {
	return func(i *Invoker) {
		i.retry = cfg
	}
}

// WithRateLimit caps calls per provider. A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) InvokerOption {
	return func(i *Invoker) {
		if perSecond <= 0 {
			i.limit = rate.Inf
			return
		}
		if burst <= 0 {
			burst = 1
		}
		i.limit = rate.Limit(perSecond)
		i.burst = burst
	}
}

func WithHealth(health *Health) InvokerOption {
	return func(i *Invoker) {
		if health != nil {
			i.health = health
		}
	}
}

func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func NewInvoker(opts ...InvokerOption) *Invoker {
	i := &Invoker{
		timeout:  defaultProviderTimeout,
		retry:    DefaultRetryConfig(),
		limit:    rate.Inf,
		burst:    1,
		logger:   slog.Default(),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.health == nil {
		i.health = NewHealth(DefaultBreakerConfig(), i.logger)
	}
	return i
}

func (i *Invoker) Health() *Health {
	return i.health
}

func (i *Invoker) Search(ctx context.Context, provider Provider, query string, page int) Result {
	return i.call(ctx, provider, operationSearch, query, func(ctx context.Context) ([]domain.RawRecord, error) {
		return provider.Search(ctx, query, page)
	}, attribute.String("query", query), attribute.Int("page", page))
}

func (i *Invoker) Browse(ctx context.Context, provider Provider, seed uint64) Result {
	return i.call(ctx, provider, operationBrowse, "", func(ctx context.Context) ([]domain.RawRecord, error) {
		return provider.Browse(ctx, seed)
	}, attribute.String("seed", strconv.FormatUint(seed, 10)))
}

func (i *Invoker) call(
	ctx context.Context,
	provider Provider,
	operation string,
	query string,
	fn func(context.Context) ([]domain.RawRecord, error),
	attrs ...attribute.KeyValue,
) Result {
	info := provider.Info()
	name := normalizeName(provider.Name())
	result := Result{Provider: name, Category: info.Category}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	callCtx, span := telemetry.Tracer().Start(callCtx, "provider."+operation,
		trace.WithAttributes(append(attrs,
			attribute.String("provider", name),
			attribute.String("category", string(info.Category)),
		)...),
	)
	defer span.End()

	started := i.now()
	records, err := i.execute(callCtx, name, fn)
	result.Elapsed = i.now().Sub(started)
	if err != nil {
		err = domain.AsProviderError(name, err)
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.ClassifyError(err)))
	} else {
		result.Records = records
		span.SetAttributes(attribute.Int("records", len(records)))
	}

	i.health.record(name, query, err, result.Elapsed, i.now())
	kind := result.Kind()
	label := string(kind)
	if kind == domain.ErrorKindNone {
		label = "ok"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(name, operation, label).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(name, operation).Observe(result.Elapsed.Seconds())

	if result.Failed() {
		i.logger.Warn("provider call failed",
			slog.String("provider", name),
			slog.String("operation", operation),
			slog.String("kind", label),
			slog.Duration("elapsed", result.Elapsed),
			slog.String("error", err.Error()),
		)
	} else {
		i.logger.Debug("provider call finished",
			slog.String("provider", name),
			slog.String("operation", operation),
			slog.Int("records", len(records)),
			slog.Duration("elapsed", result.Elapsed),
		)
	}
	return result
}

func (i *Invoker) execute(ctx context.Context, name string, fn func(context.Context) ([]domain.RawRecord, error)) ([]domain.RawRecord, error) {
	if err := i.waitProviderRateLimit(ctx, name); err != nil {
		return nil, &domain.NetworkError{Provider: name, Err: err}
	}

	records, err := i.health.breaker(name).Execute(func() ([]domain.RawRecord, error) {
		var records []domain.RawRecord
		err := RetryWithBackoff(ctx, i.retry, func() error {
			var callErr error
			records, callErr = fn(ctx)
			return callErr
		})
		return records, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.NetworkError{Provider: name, Err: fmt.Errorf("circuit open: %w", err)}
	}
	if err != nil && ctx.Err() != nil && domain.ClassifyError(err) == domain.ErrorKindNetwork {
		return nil, &domain.NetworkError{Provider: name, Err: ctx.Err()}
	}
	return records, err
}

// waitProviderRateLimit blocks until the provider's limiter admits one call or
// ctx is done.
func (i *Invoker) waitProviderRateLimit(ctx context.Context, name string) error {
	if i.limit == rate.Inf {
		return nil
	}
	i.limitersMu.Lock()
	limiter, ok := i.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(i.limit, i.burst)
		i.limiters[name] = limiter
	}
	i.limitersMu.Unlock()
	return limiter.Wait(ctx)
}
