// Package normalize projects provider-neutral raw records into canonical content
// items. Projection rules are per category.
package normalize

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"connectlist/discoveryservice/internal/domain"
)

const (
	defaultImageBaseURL  = "https://image.tmdb.org/t/p"
	defaultPosterSize    = "w500"
	defaultProfileSize   = "w185"
	defaultPhotoMaxWidth = 400
)

// PlacePhotoPath is the relay route that turns a Places photo reference into
// image bytes. The upstream API key stays on the server.
const PlacePhotoPath = "/images/place-photo"

var (
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
	yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
)

type Config struct {
	// ImageBaseURL is the CDN root that path fragments are appended to.
	ImageBaseURL  string
	PosterSize    string
	ProfileSize   string
	// PhotoRelayURL is where Places photo references are resolved, normally
	// PlacePhotoPath. Empty drops Places artwork.
	PhotoRelayURL string
	PhotoMaxWidth int
}

type Normalizer struct {
	imageBaseURL  string
	posterSize    string
	profileSize   string
	photoRelayURL string
	photoMaxWidth int
}

func New(cfg Config) *Normalizer {
	n := &Normalizer{
		imageBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/"),
		posterSize:    strings.Trim(strings.TrimSpace(cfg.PosterSize), "/"),
		profileSize:   strings.Trim(strings.TrimSpace(cfg.ProfileSize), "/"),
		photoRelayURL: strings.TrimSpace(cfg.PhotoRelayURL),
		photoMaxWidth: cfg.PhotoMaxWidth,
	}
	if n.imageBaseURL == "" {
		n.imageBaseURL = defaultImageBaseURL
	}
	if n.posterSize == "" {
		n.posterSize = defaultPosterSize
	}
	if n.profileSize == "" {
		n.profileSize = defaultProfileSize
	}
	if n.photoMaxWidth <= 0 {
		n.photoMaxWidth = defaultPhotoMaxWidth
	}
	return n
}

// Normalize converts one raw record. It reports false when the record lacks a
// title or id, or when category is not concrete; such records are dropped.
func (n *Normalizer) Normalize(category domain.Category, providerID string, record domain.RawRecord) (domain.ContentItem, bool) {
	if !category.Concrete() {
		return domain.ContentItem{}, false
	}
	rawID := strings.TrimSpace(record.ID)
	if rawID == "" {
		return domain.ContentItem{}, false
	}
	title := CleanText(record.Title)
	if title == "" {
		title = CleanText(record.AltTitle)
	}
	if title == "" {
		return domain.ContentItem{}, false
	}

	return domain.ContentItem{
		ID:               fmt.Sprintf("%s:%s:%s", providerID, category, rawID),
		Title:            title,
		ImageURL:         n.imageURL(category, record.Image),
		Category:         category,
		Meta:             projectMeta(category, record),
		SourceProviderID: providerID,
		IsFallback:       false,
	}, true
}

// NormalizeAll normalizes a batch, dropping invalid records and ids already seen
// earlier in the same batch.
func (n *Normalizer) NormalizeAll(category domain.Category, providerID string, records []domain.RawRecord) []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		item, ok := n.Normalize(category, providerID, record)
		if !ok {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items
}

func projectMeta(category domain.Category, record domain.RawRecord) domain.Meta {
	year := ExtractYear(record.Date)
	rating := 0.0
	if record.Rating != nil {
		rating = roundRating(*record.Rating)
	}
	switch category {
	case domain.CategoryMovies:
		return domain.MovieMeta{Year: year, Rating: rating}
	case domain.CategorySeries:
		return domain.SeriesMeta{Year: year, Rating: rating}
	case domain.CategoryMusics:
		return domain.MusicMeta{ChannelTitle: CleanText(record.ChannelTitle), PublishedYear: year}
	case domain.CategoryVideos:
		return domain.VideoMeta{ChannelTitle: CleanText(record.ChannelTitle), PublishedYear: year}
	case domain.CategoryBooks:
		return domain.BookMeta{Authors: cleanList(record.Authors), Year: year}
	case domain.CategoryGames:
		return domain.GameMeta{Year: year, Rating: rating}
	case domain.CategoryPeople:
		return domain.PersonMeta{KnownFor: cleanList(record.KnownFor), Department: strings.TrimSpace(record.Department)}
	case domain.CategoryPlaces:
		return domain.PlaceMeta{Location: CleanText(record.Location), Rating: rating}
	default:
		return nil
	}
}

func (n *Normalizer) imageURL(category domain.Category, ref domain.ImageRef) *string {
	value := strings.TrimSpace(ref.Value)
	if value == "" {
		return nil
	}
	var out string
	switch ref.Kind {
	case domain.ImagePath:
		size := n.posterSize
		if category == domain.CategoryPeople {
			size = n.profileSize
		}
		out = n.imageBaseURL + "/" + size + "/" + strings.TrimLeft(value, "/")
	case domain.ImageURL:
		if strings.HasPrefix(value, "http://") {
			value = "https://" + strings.TrimPrefix(value, "http://")
		}
		out = value
	case domain.ImagePhotoRef:
		if n.photoRelayURL == "" {
			return nil
		}
		params := url.Values{
			"maxwidth": {strconv.Itoa(n.photoMaxWidth)},
			"ref":      {value},
		}
		out = n.photoRelayURL + "?" + params.Encode()
	default:
		return nil
	}
	return &out
}

// CleanText decodes HTML entities, strips tags and collapses whitespace.
func CleanText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	return strings.Join(strings.Fields(value), " ")
}

// ExtractYear returns the first plausible four-digit year in a date string, or 0.
func ExtractYear(date string) int {
	match := yearPattern.FindStringSubmatch(date)
	if len(match) < 2 {
		return 0
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return year
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		cleaned := CleanText(value)
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func roundRating(value float64) float64 {
	if value < 0 {
		return 0
	}
	return float64(int(value*10+0.5)) / 10
}
