package domain

import "time"

type SearchPhase string

const (
	PhaseIdle        SearchPhase = "idle"
	PhaseClassifying SearchPhase = "classifying"
	PhaseDispatching SearchPhase = "dispatching"
	PhaseMerging     SearchPhase = "merging"
	PhaseCommitted   SearchPhase = "committed"
	PhaseSuperseded  SearchPhase = "superseded"
)

func (p SearchPhase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseSuperseded
}

type ProviderState string

const (
	ProviderPending   ProviderState = "pending"
	ProviderSucceeded ProviderState = "succeeded"
	ProviderFailed    ProviderState = "failed"
)

// SearchSession is the per-query execution state owned by one search session.
type SearchSession struct {
	ID                 string           `json:"sessionId"`
	QueryText          string           `json:"query"`
	ClassifiedCategory Category         `json:"classifiedCategory"`
	ActiveCategory     Category         `json:"activeCategory"`
	Generation         uint64           `json:"generation"`
	Results            []ContentItem    `json:"items"`
	Providers          []ProviderStatus `json:"providers"`
	IsLoading          bool             `json:"isLoading"`
	Phase              SearchPhase      `json:"phase"`
}

type ProviderStatus struct {
	Name      string        `json:"name"`
	Category  Category      `json:"category"`
	State     ProviderState `json:"state"`
	Count     int           `json:"count"`
	Fallback  int           `json:"fallback,omitempty"`
	ErrorKind ErrorKind     `json:"errorKind,omitempty"`
	Error     string        `json:"error,omitempty"`
	ElapsedMS int64         `json:"elapsedMs"`
}

type SearchResponse struct {
	SessionID          string           `json:"sessionId,omitempty"`
	Generation         uint64           `json:"generation"`
	Query              string           `json:"query"`
	ClassifiedCategory Category         `json:"classifiedCategory"`
	ActiveCategory     Category         `json:"activeCategory"`
	Phase              SearchPhase      `json:"phase"`
	Items              []ContentItem    `json:"items"`
	Providers          []ProviderStatus `json:"providers"`
	ElapsedMS          int64            `json:"elapsedMs"`
}

type ProviderInfo struct {
	Name             string   `json:"name"`
	Label            string   `json:"label"`
	Category         Category `json:"category"`
	FallbackEligible bool     `json:"fallbackEligible"`
	Enabled          bool     `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Category            Category   `json:"category"`
	Enabled             bool       `json:"enabled"`
	BreakerState        string     `json:"breakerState"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastErrorKind       ErrorKind  `json:"lastErrorKind,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
	QuotaCount          int64      `json:"quotaCount,omitempty"`
}

// DiscoverySection is the per-category browsing feed state.
type DiscoverySection struct {
	Category    Category            `json:"category"`
	Items       []ContentItem       `json:"items"`
	SeenIDs     map[string]struct{} `json:"-"`
	HasMore     bool                `json:"hasMore"`
	LastLoadKey uint64              `json:"lastLoadKey"`
	Loaded      bool                `json:"loaded"`
	Loading     bool                `json:"loading"`
	LastError   string              `json:"lastError,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s DiscoverySection) Clone() DiscoverySection {
	out := s
	out.Items = CloneItems(s.Items)
	if out.Items == nil {
		out.Items = []ContentItem{}
	}
	out.SeenIDs = make(map[string]struct{}, len(s.SeenIDs))
	for id := range s.SeenIDs {
		out.SeenIDs[id] = struct{}{}
	}
	return out
}
