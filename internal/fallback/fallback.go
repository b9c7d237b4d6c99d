// Package fallback produces deterministic placeholder items for categories whose
// provider is unreachable or rate-limited.
package fallback

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"connectlist/discoveryservice/internal/domain"
)

const SourceProviderID = "fallback"

var titlePools = map[domain.Category][]string{
	domain.CategoryMusics: {
		"Chill Lo-Fi Mix", "Acoustic Evening Session", "Top Hits Playlist", "Jazz Cafe Classics",
		"Piano Focus Music", "Indie Discoveries", "Workout Beats", "Classical Essentials",
	},
	domain.CategoryVideos: {
		"Weekly Tech Roundup", "Street Food Tour", "Beginner Coding Tutorial", "Travel Vlog Highlights",
		"Science Explained", "Home Workout Routine", "Nature Documentary Clip", "Cooking Basics",
	},
	domain.CategoryMovies: {
		"Featured Film", "Classic Cinema Pick", "New Release Spotlight", "Critics' Choice",
	},
	domain.CategorySeries: {
		"Binge-Worthy Series", "Trending Show", "Season Premiere", "Hidden Gem Series",
	},
	domain.CategoryBooks: {
		"Staff Pick Novel", "Bestselling Biography", "Modern Classic", "Short Story Collection",
	},
	domain.CategoryGames: {
		"Indie Game Spotlight", "Co-op Adventure", "Strategy Classic", "Open World Pick",
	},
	domain.CategoryPeople: {
		"Featured Artist", "Rising Star", "Acclaimed Director", "Beloved Performer",
	},
	domain.CategoryPlaces: {
		"Local Favorite", "Hidden Courtyard Cafe", "City Museum", "Seaside Promenade",
	},
}

var eligible = map[domain.Category]bool{
	domain.CategoryMusics: true,
	domain.CategoryVideos: true,
}

// Eligible reports whether failures for category are backfilled with placeholders.
func Eligible(category domain.Category) bool {
	return eligible[category]
}

// Generate returns exactly count placeholder items for category. The output only
// depends on (category, seed, count). Non-concrete categories fall back to the
// videos pool so the call stays total.
func Generate(category domain.Category, seed uint64, count int) []domain.ContentItem {
	if count <= 0 {
		return []domain.ContentItem{}
	}
	if !category.Concrete() {
		category = domain.CategoryVideos
	}
	pool := titlePools[category]
	rng := rand.New(rand.NewPCG(seed, categoryHash(category)))
	offset := rng.IntN(len(pool))

	items := make([]domain.ContentItem, 0, count)
	for i := 0; i < count; i++ {
		title := pool[(offset+i)%len(pool)]
		if round := (offset + i) / len(pool); round > 0 {
			title = fmt.Sprintf("%s #%d", title, round+1)
		}
		items = append(items, domain.ContentItem{
			ID:               fmt.Sprintf("%s:%s:%d:%d", SourceProviderID, category, seed, i),
			Title:            title,
			Category:         category,
			Meta:             placeholderMeta(category, rng),
			SourceProviderID: SourceProviderID,
			IsFallback:       true,
		})
	}
	return items
}

func placeholderMeta(category domain.Category, rng *rand.Rand) domain.Meta {
	year := 2015 + rng.IntN(10)
	switch category {
	case domain.CategoryMusics:
		return domain.MusicMeta{ChannelTitle: "Curated Picks", PublishedYear: year}
	case domain.CategoryVideos:
		return domain.VideoMeta{ChannelTitle: "Curated Picks", PublishedYear: year}
	case domain.CategoryMovies:
		return domain.MovieMeta{Year: year}
	case domain.CategorySeries:
		return domain.SeriesMeta{Year: year}
	case domain.CategoryBooks:
		return domain.BookMeta{Year: year}
	case domain.CategoryGames:
		return domain.GameMeta{Year: year}
	case domain.CategoryPeople:
		return domain.PersonMeta{}
	default:
		return domain.PlaceMeta{}
	}
}

func categoryHash(category domain.Category) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(category))
	return h.Sum64()
}
