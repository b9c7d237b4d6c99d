package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"connectlist/discoveryservice/internal/classify"
	"connectlist/discoveryservice/internal/discovery"
	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/normalize"
	"connectlist/discoveryservice/internal/search"
)

const (
	defaultMaxQueryLength = 500
	defaultSessionTTL     = 30 * time.Minute
	sessionHeader         = "X-Session-ID"
)

type Server struct {
	search         *search.Service
	sessions       *sessionStore
	logger         *slog.Logger
	maxQueryLength int
	rateRPS        float64
	rateBurst      int
	newFeed        func() *discovery.Manager
	sessionTTL     time.Duration
	images         *imageProxy
	photoKey       string
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDiscovery enables the /discover routes. newFeed builds one manager per session.
func WithDiscovery(newFeed func() *discovery.Manager) ServerOption {
	return func(s *Server) {
		s.newFeed = newFeed
	}
}

func WithMaxQueryLength(limit int) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.maxQueryLength = limit
		}
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.sessionTTL = ttl
	}
}

// WithImageProxy serves /images for artwork hosted on the given hosts.
func WithImageProxy(userAgent string, hosts ...string) ServerOption {
	return func(s *Server) {
		s.images = newImageProxy(userAgent, hosts)
	}
}

// WithPlacePhotos serves Places photo references under
// normalize.PlacePhotoPath, signing upstream requests with apiKey.
func WithPlacePhotos(apiKey string) ServerOption {
	return func(s *Server) {
		s.photoKey = strings.TrimSpace(apiKey)
	}
}

func NewServer(searchService *search.Service, options ...ServerOption) *Server {
	server := &Server{
		search:         searchService,
		logger:         slog.Default(),
		maxQueryLength: defaultMaxQueryLength,
		rateRPS:        50,
		rateBurst:      100,
		sessionTTL:     defaultSessionTTL,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.photoKey != "" {
		if server.images == nil {
			server.images = newImageProxy("", nil)
		}
		server.images.photoKey = server.photoKey
	}
	server.sessions = newSessionStore(searchService, server.newFeed, server.sessionTTL)
	return server
}

// Close stops every session's background work.
func (s *Server) Close() {
	s.sessions.close()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /classify", s.handleClassify)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /search/stream", s.handleSearchStream)
	mux.HandleFunc("GET /providers", s.handleProviders)
	mux.HandleFunc("GET /providers/health", s.handleProvidersHealth)
	mux.HandleFunc("GET /discover", s.handleDiscover)
	mux.HandleFunc("GET /discover/{category}", s.handleDiscoverSection)
	mux.HandleFunc("POST /discover/{category}/more", s.handleDiscoverMore)
	mux.HandleFunc("POST /discover/refresh", s.handleDiscoverRefresh)
	if s.images != nil {
		mux.HandleFunc("GET /images", s.images.handle)
		mux.HandleFunc("GET "+normalize.PlacePhotoPath, s.images.handlePlacePhoto)
	}
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "discovery",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, requestIDMiddleware(rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"providers": len(s.search.Providers()),
		"sessions":  s.sessions.len(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	query, ok := s.queryParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    query,
		"category": classify.Classify(query),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	request, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	current := s.session(w, r)

	response, err := current.search.Run(r.Context(), request)
	if err != nil {
		s.writeSearchError(w, request.Query, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSearchStream runs a search and reports every provider status as it
// completes, followed by the merged result.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}
	request, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	current := s.session(w, r)

	query, err := s.search.ValidateQuery(request.Query)
	if err != nil {
		s.writeSearchError(w, request.Query, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"sessionId": current.id,
		"query":     query,
		"final":     false,
	}); err != nil {
		return // Client disconnected
	}

	var writeMu sync.Mutex
	disconnected := false
	request.OnStatus = func(status domain.ProviderStatus) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if disconnected {
			return
		}
		if err := writeSSEEvent(w, flusher, "status", status); err != nil {
			disconnected = true
		}
	}

	response, err := current.search.Run(r.Context(), request)

	writeMu.Lock()
	defer writeMu.Unlock()
	if disconnected {
		return
	}
	if err != nil {
		_ = writeSSEEvent(w, flusher, "error", map[string]any{"message": err.Error()})
		_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
		return
	}
	if err := writeSSEEvent(w, flusher, "result", response); err != nil {
		return // Client disconnected
	}
	_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	current, feed, ok := s.feed(w, r)
	if !ok {
		return
	}
	feed.Start(current.ctx)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": current.id,
		"sections":  feed.Sections(),
	})
}

func (s *Server) handleDiscoverSection(w http.ResponseWriter, r *http.Request) {
	current, feed, ok := s.feed(w, r)
	if !ok {
		return
	}
	category, ok := pathCategory(w, r)
	if !ok {
		return
	}
	section, err := feed.LoadInitial(current.ctx, category)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": current.id,
		"section":   section,
	})
}

func (s *Server) handleDiscoverMore(w http.ResponseWriter, r *http.Request) {
	current, feed, ok := s.feed(w, r)
	if !ok {
		return
	}
	category, ok := pathCategory(w, r)
	if !ok {
		return
	}
	section, err := feed.LoadMore(current.ctx, category)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": current.id,
		"section":   section,
	})
}

func (s *Server) handleDiscoverRefresh(w http.ResponseWriter, r *http.Request) {
	current, feed, ok := s.feed(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": current.id,
		"sections":  feed.RefreshAll(current.ctx),
	})
}

// session resolves the caller's session from the session param or header and
// echoes its id back.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = r.Header.Get(sessionHeader)
	}
	current := s.sessions.get(id)
	w.Header().Set(sessionHeader, current.id)
	return current
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) (*session, *discovery.Manager, bool) {
	if s.newFeed == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "discovery is not configured")
		return nil, nil, false
	}
	current := s.session(w, r)
	return current, s.sessions.feed(current), true
}

func (s *Server) queryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return "", false
	}
	if utf8.RuneCountInString(query) > s.maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("query too long (max %d characters)", s.maxQueryLength))
		return "", false
	}
	return query, true
}

func (s *Server) searchRequest(w http.ResponseWriter, r *http.Request) (search.Request, bool) {
	query, ok := s.queryParam(w, r)
	if !ok {
		return search.Request{}, false
	}
	request := search.Request{Query: query}
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown category")
			return search.Request{}, false
		}
		request.Category = category
	}
	return request, true
}

func (s *Server) writeSearchError(w http.ResponseWriter, query string, err error) {
	s.logger.Warn("search request failed",
		slog.String("query", truncate(query, 80)),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, search.ErrQueryTooShort):
		writeError(w, http.StatusBadRequest, "query_too_short", err.Error())
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func pathCategory(w http.ResponseWriter, r *http.Request) (domain.Category, bool) {
	category, ok := domain.ParseCategory(r.PathValue("category"))
	if !ok || !category.Concrete() {
		writeError(w, http.StatusNotFound, "not_found", "unknown category")
		return "", false
	}
	return category, true
}

func writeFeedError(w http.ResponseWriter, err error) {
	if errors.Is(err, discovery.ErrUnknownCategory) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "discovery failed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
