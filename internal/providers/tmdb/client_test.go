package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectlist/discoveryservice/internal/domain"
)

const movieSearchPayload = `{"page":1,"results":[
	{"id":27205,"title":"Inception","original_title":"Inception","poster_path":"/inception.jpg","release_date":"2010-07-15","vote_average":8.369},
	{"id":0,"title":"Broken"},
	{"id":64956,"title":"","original_title":"Inception: The Cobol Job","release_date":"2010-12-07"}
]}`

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Client: server.Client(), PageSize: 10})
	return server, client
}

func TestMoviesSearch(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "inception" || q.Get("api_key") != "key" || q.Get("page") != "2" {
			t.Errorf("unexpected params %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(movieSearchPayload))
	})

	records, err := client.Movies().Search(context.Background(), " inception ", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected record with id 0 to be skipped, got %d", len(records))
	}
	first := records[0]
	if first.ID != "27205" || first.Title != "Inception" || first.Date != "2010-07-15" {
		t.Fatalf("unexpected record %#v", first)
	}
	if first.Image.Kind != domain.ImagePath || first.Image.Value != "/inception.jpg" {
		t.Fatalf("unexpected image %#v", first.Image)
	}
	if first.Rating == nil || *first.Rating != 8.369 {
		t.Fatalf("unexpected rating %v", first.Rating)
	}
	if records[1].AltTitle != "Inception: The Cobol Job" {
		t.Fatalf("expected original title as alt title, got %#v", records[1])
	}
}

func TestBearerTokenUsesHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Has("api_key") {
			t.Errorf("api_key must not be sent with a bearer token")
		}
		_, _ = w.Write([]byte(`{"results":[{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BearerToken: "tok", BaseURL: server.URL, Client: server.Client()})
	records, err := client.Series().Search(context.Background(), "breaking", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Breaking Bad" || records[0].Date != "2008-01-20" {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestPeopleSearchCollectsKnownFor(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/person" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":[{"id":6193,"name":"Leonardo DiCaprio","profile_path":"/leo.jpg","known_for_department":"Acting","known_for":[{"title":"Inception"},{"name":"Some Show"},{}]}]}`))
	})

	records, err := client.People().Search(context.Background(), "dicaprio", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := records[0]
	if got.Department != "Acting" || strings.Join(got.KnownFor, "|") != "Inception|Some Show" {
		t.Fatalf("unexpected person %#v", got)
	}
	if got.Image.Value != "/leo.jpg" {
		t.Fatalf("expected profile image, got %#v", got.Image)
	}
}

func TestBrowseUsesTrendingWeek(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trending/movie/week" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(movieSearchPayload))
	})

	first, err := client.Movies().Browse(context.Background(), 3)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	second, _ := client.Movies().Browse(context.Background(), 3)
	if len(first) != 2 || len(second) != 2 || first[0].ID != second[0].ID {
		t.Fatalf("expected deterministic browse, got %#v vs %#v", first, second)
	}
}

func TestSearchMapsErrors(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_message":"Invalid API key"}`))
	})
	_, err := client.Movies().Search(context.Background(), "x", 1)
	if domain.ClassifyError(err) != domain.ErrorKindHTTP {
		t.Fatalf("expected http error, got %v", err)
	}
}

func TestProviderInfo(t *testing.T) {
	client := NewClient(Config{})
	if client.Enabled() {
		t.Fatal("expected client without credentials to be disabled")
	}
	info := client.People().Info()
	if info.Name != "tmdb-people" || info.Category != domain.CategoryPeople || info.Enabled {
		t.Fatalf("unexpected info %#v", info)
	}
}
