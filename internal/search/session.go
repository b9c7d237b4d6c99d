package search

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/metrics"
)

// Session serializes the visible outcome of successive searches. Every Run
// stamps a new generation; only the run holding the latest generation may
// commit. Older runs finish their adapter calls and are discarded.
type Session struct {
	id         string
	service    *Service
	generation atomic.Uint64

	mu    sync.Mutex
	state domain.SearchSession
}

func (s *Service) NewSession(id string) *Session {
	return &Session{
		id:      id,
		service: s,
		state: domain.SearchSession{
			ID:                 id,
			ClassifiedCategory: domain.CategoryAll,
			ActiveCategory:     domain.CategoryAll,
			Results:            []domain.ContentItem{},
			Phase:              domain.PhaseIdle,
		},
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

// Snapshot returns a deep copy of the committed session state.
func (s *Session) Snapshot() domain.SearchSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Results = domain.CloneItems(s.state.Results)
	if out.Results == nil {
		out.Results = []domain.ContentItem{}
	}
	out.Providers = append([]domain.ProviderStatus(nil), s.state.Providers...)
	return out
}

// Run classifies, dispatches and merges one query. Invalid input is rejected
// before a generation is taken, so it never supersedes a running search.
func (s *Session) Run(ctx context.Context, request Request) (domain.SearchResponse, error) {
	svc := s.service
	query, err := svc.ValidateQuery(request.Query)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	if request.Category != "" && !request.Category.Valid() {
		return domain.SearchResponse{}, ErrUnknownCategory
	}

	startedAt := svc.now()
	s.mu.Lock()
	generation := s.generation.Add(1)
	s.state.QueryText = query
	s.state.Generation = generation
	s.state.IsLoading = true
	s.state.Phase = domain.PhaseClassifying
	s.state.Providers = nil
	s.mu.Unlock()

	classified := classifyQuery(query)
	active := request.Category
	if active == "" {
		active = classified
	}
	plan, capacity, err := svc.Plan(active)
	if err != nil {
		s.update(generation, func(state *domain.SearchSession) {
			state.IsLoading = false
			state.Phase = domain.PhaseIdle
		})
		return domain.SearchResponse{}, err
	}

	s.update(generation, func(state *domain.SearchSession) {
		state.ClassifiedCategory = classified
		state.ActiveCategory = active
		state.Phase = domain.PhaseDispatching
		state.Providers = svc.pendingStatuses(plan)
	})

	// Adapter calls run to completion even when the caller goes away. The
	// provider timeout still bounds each one.
	slots := svc.dispatch(context.WithoutCancel(ctx), query, plan, func(index int, status domain.ProviderStatus) {
		s.update(generation, func(state *domain.SearchSession) {
			if index < len(state.Providers) {
				state.Providers[index] = status
			}
		})
		if request.OnStatus != nil {
			request.OnStatus(status)
		}
	})

	s.update(generation, func(state *domain.SearchSession) {
		state.Phase = domain.PhaseMerging
	})
	items, statuses := svc.merge(query, slots, capacity)

	response := domain.SearchResponse{
		SessionID:          s.id,
		Generation:         generation,
		Query:              query,
		ClassifiedCategory: classified,
		ActiveCategory:     active,
		Providers:          statuses,
		ElapsedMS:          svc.now().Sub(startedAt).Milliseconds(),
	}

	committed := s.update(generation, func(state *domain.SearchSession) {
		state.Results = items
		state.Providers = statuses
		state.IsLoading = false
		state.Phase = domain.PhaseCommitted
	})
	if committed {
		response.Phase = domain.PhaseCommitted
		response.Items = domain.CloneItems(items)
	} else {
		response.Phase = domain.PhaseSuperseded
		response.Items = []domain.ContentItem{}
	}
	if response.Items == nil {
		response.Items = []domain.ContentItem{}
	}
	metrics.SearchesTotal.WithLabelValues(string(response.Phase)).Inc()

	svc.logger.Info("search finished",
		slog.String("sessionId", s.id),
		slog.String("query", query),
		slog.String("category", string(active)),
		slog.String("phase", string(response.Phase)),
		slog.Uint64("generation", generation),
		slog.Int("items", len(response.Items)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	return response, nil
}

// update applies fn only while generation is still current and reports
// whether it did.
func (s *Session) update(generation uint64, fn func(*domain.SearchSession)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != generation {
		return false
	}
	fn(&s.state)
	return true
}
