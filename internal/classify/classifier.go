// Package classify maps free-text queries onto content categories with a fixed
// keyword heuristic. The same input always yields the same category.
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"connectlist/discoveryservice/internal/domain"
)

// keywords are matched as substrings of the folded query. Lists overlap in a few
// places ("action", "adventure"); the order of domain.Categories decides.
var keywords = map[domain.Category][]string{
	domain.CategoryMusics: {
		"soundtrack", "album", "song", "music", "lyrics", "remix", "playlist", "concert",
		"acoustic", "cover song", "singer", "hip hop", "jazz", "piano",
	},
	domain.CategoryVideos: {
		"tutorial", "vlog", "how to", "review", "unboxing", "trailer", "gameplay",
		"podcast", "documentary clip", "reaction", "highlights", "shorts",
	},
	domain.CategoryMovies: {
		"movie", "film", "cinema", "box office", "director", "oscar", "blockbuster",
		"action", "thriller", "horror", "comedy", "sci-fi",
	},
	domain.CategorySeries: {
		"series", "season", "episode", "tv show", "sitcom", "miniseries", "netflix",
		"anime", "drama",
	},
	domain.CategoryBooks: {
		"book", "novel", "author", "poetry", "poem", "biography", "literature",
		"paperback", "ebook", "manga", "fiction",
	},
	domain.CategoryGames: {
		"game", "rpg", "console", "playstation", "xbox", "nintendo", "steam", "esports",
		"multiplayer", "fps", "mmo", "action", "adventure",
	},
	domain.CategoryPeople: {
		"actor", "actress", "celebrity", "who is", "born in",
	},
	domain.CategoryPlaces: {
		"restaurant", "cafe", "museum", "hotel", "beach", "near me", "travel",
		"things to do", "landmark",
	},
}

// Fold lowercases text and strips combining marks so accented input matches the
// ASCII keyword lists. Casers keep state, so one is built per call.
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.TrimSpace(cases.Lower(language.Und).String(folded))
}

// Classify returns the first category, in priority order, whose keyword set has
// a substring match in text. It returns domain.CategoryAll when nothing matches.
func Classify(text string) domain.Category {
	input := Fold(text)
	if input == "" {
		return domain.CategoryAll
	}
	for _, category := range domain.Categories {
		for _, keyword := range keywords[category] {
			if strings.Contains(input, keyword) {
				return category
			}
		}
	}
	return domain.CategoryAll
}

// Keywords returns a copy of the keyword list for category.
func Keywords(category domain.Category) []string {
	return append([]string(nil), keywords[category]...)
}
