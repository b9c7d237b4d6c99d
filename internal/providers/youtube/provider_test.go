package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectlist/discoveryservice/internal/domain"
)

const searchPayload = `{"nextPageToken":"CAUQAA","items":[
	{"id":{"kind":"youtube#video","videoId":"dQw4w9WgXcQ"},"snippet":{"title":"Tom &amp; Jerry","channelTitle":"Cartoons","publishedAt":"2021-03-01T10:00:00Z","thumbnails":{"default":{"url":"https://i.ytimg.com/d.jpg"},"high":{"url":"https://i.ytimg.com/h.jpg"}}}},
	{"id":{"kind":"youtube#channel","channelId":"UC123"},"snippet":{"title":"A channel"}},
	{"id":{"kind":"youtube#video","videoId":"bad id"},"snippet":{"title":"Malformed"}},
	{"id":{"kind":"youtube#video"},"snippet":{"title":"Missing"}},
	{"id":{"kind":"youtube#video","videoId":"9bZkp7q19f0"},"snippet":{"title":"Gangnam Style","channelTitle":"officialpsy","thumbnails":{}}}
]}`

func TestSearchSkipsMalformedVideoIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/search" || q.Get("type") != "video" || q.Get("key") != "k" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if q.Has("videoCategoryId") {
			t.Errorf("videos must not be scoped to a category")
		}
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	provider := NewVideos(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client()})
	records, err := provider.Search(context.Background(), "cartoons", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 well-formed videos, got %d: %#v", len(records), records)
	}
	if records[0].ID != "dQw4w9WgXcQ" || records[0].Image.Value != "https://i.ytimg.com/h.jpg" || records[0].ChannelTitle != "Cartoons" {
		t.Fatalf("unexpected record %#v", records[0])
	}
	if records[1].Image.Kind != domain.ImageNone {
		t.Fatalf("expected no thumbnail, got %#v", records[1].Image)
	}
}

func TestMusicsScopeToMusicCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("videoCategoryId") != musicCategoryID {
			t.Errorf("expected music category, got %q", r.URL.Query().Get("videoCategoryId"))
		}
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	provider := NewMusics(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client()})
	if _, err := provider.Browse(context.Background(), 1); err != nil {
		t.Fatalf("browse: %v", err)
	}
	info := provider.Info()
	if info.Category != domain.CategoryMusics || !info.FallbackEligible || info.Name != "youtube-musics" {
		t.Fatalf("unexpected info %#v", info)
	}
}

func TestSearchFollowsPageTokens(t *testing.T) {
	var tokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	provider := NewVideos(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client()})
	if records, err := provider.Search(context.Background(), "lofi", 3); err != nil || records != nil {
		t.Fatalf("expected unknown page to be empty, got %v / %v", records, err)
	}
	if _, err := provider.Search(context.Background(), "lofi", 1); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if _, err := provider.Search(context.Background(), "LOFI", 2); err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "" || tokens[1] != "CAUQAA" {
		t.Fatalf("unexpected page tokens %v", tokens)
	}
}

func TestQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota","errors":[{"domain":"youtube.quota","reason":"quotaExceeded"}]}}`))
	}))
	defer server.Close()

	provider := NewVideos(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client()})
	_, err := provider.Search(context.Background(), "anything", 1)
	if domain.ClassifyError(err) != domain.ErrorKindQuota {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestValidVideoID(t *testing.T) {
	valid := []string{"dQw4w9WgXcQ", "a-b_c123456"}
	invalid := []string{"", "short", "dQw4w9WgXcQQ", "dQw4w9WgXc!"}
	for _, id := range valid {
		if !validVideoID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if validVideoID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}
