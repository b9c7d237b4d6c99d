package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/discovery"
	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/search"
)

// TestSearchThenDiscoverFlow drives one client session through a search and
// the discovery feed against a live listener, with the music catalog over quota.
func TestSearchThenDiscoverFlow(t *testing.T) {
	registry := catalog.NewRegistry(
		&fakeProvider{name: "movies", category: domain.CategoryMovies, records: []domain.RawRecord{
			{ID: "27205", Title: "Inception", Date: "2010-07-15", Rating: domain.Float(8.4)},
		}},
		&fakeProvider{name: "musics", category: domain.CategoryMusics, err: &domain.QuotaExceededError{Provider: "musics", Status: 403}},
		&fakeProvider{name: "books", category: domain.CategoryBooks, records: testRecords("book", 4)},
	)
	invoker := catalog.NewInvoker(catalog.WithRetry(catalog.RetryConfig{MaxAttempts: 1}))
	svc := search.NewService(registry, search.AggregatorConfig{}, search.WithInvoker(invoker))
	feedCfg := discovery.Config{
		Categories:  []domain.Category{domain.CategoryMovies, domain.CategoryMusics, domain.CategoryBooks},
		Eager:       []domain.Category{domain.CategoryMovies, domain.CategoryMusics, domain.CategoryBooks},
		PacingDelay: time.Millisecond,
		PageSize:    10,
	}
	server := NewServer(svc, WithDiscovery(func() *discovery.Manager {
		return discovery.NewManager(registry, feedCfg, discovery.WithInvoker(invoker))
	}))
	defer server.Close()

	live := httptest.NewServer(server.Handler())
	defer live.Close()
	client := live.Client()

	call := func(method, path string, out any) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, live.URL+path, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(sessionHeader, "flow-session")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", method, path, resp.StatusCode)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				t.Fatalf("%s %s: decode: %v", method, path, err)
			}
		}
		return resp
	}

	var result domain.SearchResponse
	resp := call(http.MethodGet, "/search?q=inception", &result)
	if resp.Header.Get(sessionHeader) != "flow-session" {
		t.Fatalf("unexpected session header %q", resp.Header.Get(sessionHeader))
	}
	if len(result.Items) == 0 || result.Items[0].Title != "Inception" {
		t.Fatalf("expected Inception first, got %#v", result.Items)
	}
	if meta, ok := result.Items[0].Meta.(domain.MovieMeta); !ok || meta.Year != 2010 {
		t.Fatalf("expected movie meta with release year, got %#v", result.Items[0].Meta)
	}
	fallbackMusics := 0
	for _, item := range result.Items {
		if item.Category == domain.CategoryMusics {
			if !item.IsFallback || !strings.HasPrefix(item.ID, "fallback:musics:") {
				t.Fatalf("expected fallback music item, got %#v", item)
			}
			fallbackMusics++
		}
	}
	if fallbackMusics != 2 {
		t.Fatalf("expected 2 fallback music items, got %d", fallbackMusics)
	}

	var overview struct {
		SessionID string                    `json:"sessionId"`
		Sections  []domain.DiscoverySection `json:"sections"`
	}
	call(http.MethodGet, "/discover", &overview)
	if overview.SessionID != "flow-session" || len(overview.Sections) != 3 {
		t.Fatalf("unexpected overview %#v", overview)
	}
	musics := overview.Sections[1]
	if musics.Category != domain.CategoryMusics || len(musics.Items) != 10 || musics.HasMore || musics.LastError == "" {
		t.Fatalf("expected a fallback music section, got %#v", musics)
	}
	for _, item := range musics.Items {
		if !item.IsFallback {
			t.Fatalf("expected fallback items only, got %#v", item)
		}
	}

	var more struct {
		Section domain.DiscoverySection `json:"section"`
	}
	call(http.MethodPost, "/discover/books/more", &more)
	if len(more.Section.Items) != 4 || more.Section.HasMore {
		t.Fatalf("expected books to be exhausted after a repeat page, got %#v", more.Section)
	}

	var health struct {
		Items []domain.ProviderDiagnostics `json:"items"`
	}
	call(http.MethodGet, "/providers/health", &health)
	for _, item := range health.Items {
		if item.Name == "musics" && item.QuotaCount == 0 {
			t.Fatalf("expected quota failures on musics, got %#v", item)
		}
	}
}
