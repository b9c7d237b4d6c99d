package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"connectlist/discoveryservice/internal/domain"
)

type payload struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

func TestGetJSONDecodesAndSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "dune part two" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing auth header")
		}
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"results":[{"id":1},{"id":2}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Provider: "tmdb-movies",
		Client:   server.Client(),
		Header:   http.Header{"Authorization": {"Bearer token"}},
	})
	var out payload
	if err := client.GetJSON(context.Background(), server.URL+"/search", url.Values{"query": {"dune part two"}}, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
}

func TestGetJSONErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		quota  QuotaDetector
		want   domain.ErrorKind
	}{
		{name: "server error", status: 500, body: "boom", want: domain.ErrorKindHTTP},
		{name: "not found", status: 404, body: `{"status_message":"missing"}`, want: domain.ErrorKindHTTP},
		{name: "too many requests", status: 429, want: domain.ErrorKindQuota},
		{name: "google quota", status: 403, body: `{"error":{"code":403,"errors":[{"reason":"quotaExceeded"}]}}`, quota: GoogleQuota, want: domain.ErrorKindQuota},
		{name: "google forbidden", status: 403, body: `{"error":{"code":403,"errors":[{"reason":"forbidden"}]}}`, quota: GoogleQuota, want: domain.ErrorKindHTTP},
		{name: "google resource exhausted", status: 403, body: `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, quota: GoogleQuota, want: domain.ErrorKindQuota},
		{name: "malformed body", status: 200, body: `{"results":[`, want: domain.ErrorKindParse},
		{name: "wrong shape", status: 200, body: `{"results":"nope"}`, want: domain.ErrorKindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{Provider: "p", Client: server.Client(), Quota: tt.quota})
			var out payload
			err := client.GetJSON(context.Background(), server.URL, nil, &out)
			if got := domain.ClassifyError(err); got != tt.want {
				t.Fatalf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
			if tt.want == domain.ErrorKindHTTP {
				var httpErr *domain.HTTPError
				if !errors.As(err, &httpErr) || httpErr.Status != tt.status {
					t.Fatalf("expected HTTPError with status %d, got %v", tt.status, err)
				}
			}
		})
	}
}

func TestGetJSONUnreachableIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewClient(ClientConfig{Provider: "rawg"})
	err := client.GetJSON(context.Background(), endpoint, nil, &payload{})
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) || netErr.Provider != "rawg" {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
}

func TestGetJSONAppendsToExistingQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("a") != "1" || r.URL.Query().Get("b") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Provider: "p", Client: server.Client()})
	if err := client.GetJSON(context.Background(), server.URL+"/x?a=1", url.Values{"b": {"2"}}, &payload{}); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
}
