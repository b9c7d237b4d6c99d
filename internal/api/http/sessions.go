package apihttp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"connectlist/discoveryservice/internal/discovery"
	"connectlist/discoveryservice/internal/search"
)

const maxSessionIDLength = 64

// session is one client's search state and, once requested, its discovery feed.
type session struct {
	id     string
	search *search.Session
	ctx    context.Context
	cancel context.CancelFunc

	feedOnce sync.Once
	feed     *discovery.Manager

	lastSeen time.Time
}

// sessionStore keeps sessions in memory and expires them after ttl of
// inactivity. Expired sessions have their background feed loaders stopped.
type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[string]*session
	base     context.Context
	stop     context.CancelFunc
	now      func() time.Time
	newFeed  func() *discovery.Manager
	searches *search.Service
}

func newSessionStore(searches *search.Service, newFeed func() *discovery.Manager, ttl time.Duration) *sessionStore {
	base, stop := context.WithCancel(context.Background())
	return &sessionStore{
		ttl:      ttl,
		entries:  make(map[string]*session),
		base:     base,
		stop:     stop,
		now:      time.Now,
		newFeed:  newFeed,
		searches: searches,
	}
}

// get returns the session for id, creating it when id is empty, unknown or
// expired.
func (s *sessionStore) get(id string) *session {
	id = normalizeSessionID(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expireLocked(now)
	if id == "" {
		id = uuid.NewString()
	}
	current, ok := s.entries[id]
	if !ok {
		ctx, cancel := context.WithCancel(s.base)
		current = &session{
			id:     id,
			search: s.searches.NewSession(id),
			ctx:    ctx,
			cancel: cancel,
		}
		s.entries[id] = current
	}
	current.lastSeen = now
	return current
}

// feed returns the session's discovery manager, or nil when discovery is disabled.
func (s *sessionStore) feed(current *session) *discovery.Manager {
	if s.newFeed == nil {
		return nil
	}
	current.feedOnce.Do(func() {
		current.feed = s.newFeed()
	})
	return current.feed
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *sessionStore) expireLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, current := range s.entries {
		if now.Sub(current.lastSeen) > s.ttl {
			current.cancel()
			delete(s.entries, id)
		}
	}
}

func (s *sessionStore) close() {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// normalizeSessionID drops ids a client could use to bloat logs or keys.
func normalizeSessionID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxSessionIDLength {
		return ""
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return ""
		}
	}
	return id
}
