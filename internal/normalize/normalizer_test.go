package normalize

import (
	"strings"
	"testing"

	"connectlist/discoveryservice/internal/domain"
)

func newTestNormalizer() *Normalizer {
	return New(Config{PhotoRelayURL: PlacePhotoPath})
}

func TestNormalizeWellFormedRecordPerProvider(t *testing.T) {
	n := newTestNormalizer()
	tests := []struct {
		name      string
		category  domain.Category
		provider  string
		record    domain.RawRecord
		wantTitle string
		wantImage string
		check     func(t *testing.T, meta domain.Meta)
	}{
		{
			name:      "tmdb movie",
			category:  domain.CategoryMovies,
			provider:  "tmdb-movies",
			record:    domain.RawRecord{ID: "27205", Title: "Inception", Image: domain.ImageRef{Kind: domain.ImagePath, Value: "/poster.jpg"}, Date: "2010-07-15", Rating: domain.Float(8.36)},
			wantTitle: "Inception",
			wantImage: "https://image.tmdb.org/t/p/w500/poster.jpg",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.MovieMeta)
				if m.Year != 2010 || m.Rating != 8.4 {
					t.Fatalf("unexpected movie meta %#v", m)
				}
			},
		},
		{
			name:      "tmdb series uses alt title",
			category:  domain.CategorySeries,
			provider:  "tmdb-series",
			record:    domain.RawRecord{ID: "1396", AltTitle: "Breaking Bad", Date: "2008-01-20"},
			wantTitle: "Breaking Bad",
			check: func(t *testing.T, meta domain.Meta) {
				if meta.(domain.SeriesMeta).Year != 2008 {
					t.Fatalf("unexpected series meta %#v", meta)
				}
			},
		},
		{
			name:      "tmdb person profile size",
			category:  domain.CategoryPeople,
			provider:  "tmdb-people",
			record:    domain.RawRecord{ID: "6193", AltTitle: "Leonardo DiCaprio", Image: domain.ImageRef{Kind: domain.ImagePath, Value: "profile.jpg"}, KnownFor: []string{"Inception", "Inception", "Titanic"}, Department: "Acting"},
			wantTitle: "Leonardo DiCaprio",
			wantImage: "https://image.tmdb.org/t/p/w185/profile.jpg",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.PersonMeta)
				if len(m.KnownFor) != 2 || m.Department != "Acting" {
					t.Fatalf("unexpected person meta %#v", m)
				}
			},
		},
		{
			name:      "rawg game",
			category:  domain.CategoryGames,
			provider:  "rawg",
			record:    domain.RawRecord{ID: "3498", AltTitle: "Grand Theft Auto V", Image: domain.ImageRef{Kind: domain.ImageURL, Value: "https://media.rawg.io/gta.jpg"}, Date: "2013-09-17", Rating: domain.Float(4.47)},
			wantTitle: "Grand Theft Auto V",
			wantImage: "https://media.rawg.io/gta.jpg",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.GameMeta)
				if m.Year != 2013 || m.Rating != 4.5 {
					t.Fatalf("unexpected game meta %#v", m)
				}
			},
		},
		{
			name:      "google books upgrades thumbnail scheme",
			category:  domain.CategoryBooks,
			provider:  "googlebooks",
			record:    domain.RawRecord{ID: "zyTCAlFPjgYC", Title: "The Google Story", Image: domain.ImageRef{Kind: domain.ImageURL, Value: "http://books.google.com/thumb"}, Date: "2005", Authors: []string{"David A. Vise", " Mark Malseed "}},
			wantTitle: "The Google Story",
			wantImage: "https://books.google.com/thumb",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.BookMeta)
				if m.Year != 2005 || len(m.Authors) != 2 || m.Authors[1] != "Mark Malseed" {
					t.Fatalf("unexpected book meta %#v", m)
				}
			},
		},
		{
			name:      "youtube video decodes entities",
			category:  domain.CategoryVideos,
			provider:  "youtube-videos",
			record:    domain.RawRecord{ID: "dQw4w9WgXcQ", Title: "Tom &amp; Jerry &#39;Best Of&#39;", ChannelTitle: "Cartoon &amp; Co", Date: "2021-03-01T10:00:00Z", Image: domain.ImageRef{Kind: domain.ImageURL, Value: "https://i.ytimg.com/vi/x/hq.jpg"}},
			wantTitle: "Tom & Jerry 'Best Of'",
			wantImage: "https://i.ytimg.com/vi/x/hq.jpg",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.VideoMeta)
				if m.ChannelTitle != "Cartoon & Co" || m.PublishedYear != 2021 {
					t.Fatalf("unexpected video meta %#v", m)
				}
			},
		},
		{
			name:      "youtube music",
			category:  domain.CategoryMusics,
			provider:  "youtube-musics",
			record:    domain.RawRecord{ID: "abc", Title: "Time - Hans Zimmer", ChannelTitle: "Film Scores"},
			wantTitle: "Time - Hans Zimmer",
			check: func(t *testing.T, meta domain.Meta) {
				if meta.(domain.MusicMeta).ChannelTitle != "Film Scores" {
					t.Fatalf("unexpected music meta %#v", meta)
				}
			},
		},
		{
			name:      "places photo reference",
			category:  domain.CategoryPlaces,
			provider:  "places",
			record:    domain.RawRecord{ID: "ChIJ", AltTitle: "Hagia Sophia", Image: domain.ImageRef{Kind: domain.ImagePhotoRef, Value: "ref123"}, Location: "Sultan Ahmet, Istanbul", Rating: domain.Float(4.8)},
			wantTitle: "Hagia Sophia",
			wantImage: "/images/place-photo?maxwidth=400&ref=ref123",
			check: func(t *testing.T, meta domain.Meta) {
				m := meta.(domain.PlaceMeta)
				if m.Location != "Sultan Ahmet, Istanbul" || m.Rating != 4.8 {
					t.Fatalf("unexpected place meta %#v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := n.Normalize(tt.category, tt.provider, tt.record)
			if !ok {
				t.Fatal("expected record to normalize")
			}
			if !item.Valid() {
				t.Fatalf("invalid item %#v", item)
			}
			if item.ID == "" || item.Title != tt.wantTitle {
				t.Fatalf("unexpected id/title: %q / %q", item.ID, item.Title)
			}
			if item.IsFallback {
				t.Fatal("normalized item must not be a fallback")
			}
			if item.SourceProviderID != tt.provider {
				t.Fatalf("expected provider %q, got %q", tt.provider, item.SourceProviderID)
			}
			switch {
			case tt.wantImage == "" && item.ImageURL != nil:
				t.Fatalf("expected nil image, got %q", *item.ImageURL)
			case tt.wantImage != "" && (item.ImageURL == nil || *item.ImageURL != tt.wantImage):
				t.Fatalf("unexpected image %v, want %q", item.ImageURL, tt.wantImage)
			}
			tt.check(t, item.Meta)
		})
	}
}

func TestNormalizeDropsRecordWithoutTitle(t *testing.T) {
	n := newTestNormalizer()
	records := []domain.RawRecord{
		{ID: "1"},
		{ID: "2", Title: "   "},
		{ID: "3", Title: "<b></b>"},
	}
	for _, record := range records {
		if item, ok := n.Normalize(domain.CategoryMovies, "tmdb-movies", record); ok {
			t.Fatalf("expected record %q to be dropped, got %#v", record.ID, item)
		}
	}
}

func TestNormalizeDropsRecordWithoutID(t *testing.T) {
	n := newTestNormalizer()
	if _, ok := n.Normalize(domain.CategoryBooks, "googlebooks", domain.RawRecord{Title: "Untracked"}); ok {
		t.Fatal("expected record without id to be dropped")
	}
}

func TestNormalizeRejectsAllCategory(t *testing.T) {
	n := newTestNormalizer()
	if _, ok := n.Normalize(domain.CategoryAll, "x", domain.RawRecord{ID: "1", Title: "t"}); ok {
		t.Fatal("expected CategoryAll to be rejected")
	}
}

func TestNormalizePhotoRefWithoutRelayHasNoImage(t *testing.T) {
	n := New(Config{})
	item, ok := n.Normalize(domain.CategoryPlaces, "places", domain.RawRecord{ID: "p", AltTitle: "Park", Image: domain.ImageRef{Kind: domain.ImagePhotoRef, Value: "ref"}})
	if !ok {
		t.Fatal("expected item")
	}
	if item.ImageURL != nil {
		t.Fatalf("expected nil image without a photo relay, got %q", *item.ImageURL)
	}
}

func TestNormalizePhotoRefNeverCarriesCredentials(t *testing.T) {
	item, ok := newTestNormalizer().Normalize(domain.CategoryPlaces, "places", domain.RawRecord{ID: "p", AltTitle: "Park", Image: domain.ImageRef{Kind: domain.ImagePhotoRef, Value: "ref"}})
	if !ok || item.ImageURL == nil {
		t.Fatal("expected a relayed image url")
	}
	if strings.Contains(*item.ImageURL, "key=") || !strings.HasPrefix(*item.ImageURL, PlacePhotoPath+"?") {
		t.Fatalf("unexpected image url %q", *item.ImageURL)
	}
}

func TestNormalizeAllDropsDuplicatesAndInvalid(t *testing.T) {
	n := newTestNormalizer()
	items := n.NormalizeAll(domain.CategoryGames, "rawg", []domain.RawRecord{
		{ID: "1", AltTitle: "Portal"},
		{ID: "1", AltTitle: "Portal (dup)"},
		{ID: "2"},
		{ID: "3", AltTitle: "Celeste"},
	})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %#v", len(items), items)
	}
	if items[0].Title != "Portal" || items[1].Title != "Celeste" {
		t.Fatalf("unexpected order %#v", items)
	}
}

func TestExtractYear(t *testing.T) {
	tests := map[string]int{
		"2010-07-15":           2010,
		"1999":                 1999,
		"2021-03-01T10:00:00Z": 2021,
		"":                     0,
		"unknown":              0,
		"12345":                0,
	}
	for input, want := range tests {
		if got := ExtractYear(input); got != want {
			t.Errorf("ExtractYear(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestCleanText(t *testing.T) {
	got := CleanText("  <i>Rock</i> &amp;   Roll  ")
	if got != "Rock & Roll" {
		t.Fatalf("CleanText = %q", got)
	}
	if strings.Contains(CleanText("a<br/>b"), "<") {
		t.Fatal("expected tags to be stripped")
	}
}
