package domain

import "strings"

type Category string

const (
	CategoryAll    Category = "all"
	CategoryMovies Category = "movies"
	CategorySeries Category = "series"
	CategoryMusics Category = "musics"
	CategoryVideos Category = "videos"
	CategoryBooks  Category = "books"
	CategoryGames  Category = "games"
	CategoryPeople Category = "people"
	CategoryPlaces Category = "places"
)

// Categories lists every concrete category in classifier priority order.
var Categories = []Category{
	CategoryMusics,
	CategoryVideos,
	CategoryMovies,
	CategorySeries,
	CategoryBooks,
	CategoryGames,
	CategoryPeople,
	CategoryPlaces,
}

var categoryAliases = map[string]Category{
	"all":    CategoryAll,
	"movies": CategoryMovies,
	"movie":  CategoryMovies,
	"film":   CategoryMovies,
	"series": CategorySeries,
	"tv":     CategorySeries,
	"show":   CategorySeries,
	"musics": CategoryMusics,
	"music":  CategoryMusics,
	"videos": CategoryVideos,
	"video":  CategoryVideos,
	"books":  CategoryBooks,
	"book":   CategoryBooks,
	"games":  CategoryGames,
	"game":   CategoryGames,
	"people": CategoryPeople,
	"person": CategoryPeople,
	"places": CategoryPlaces,
	"place":  CategoryPlaces,
}

// ParseCategory accepts canonical names and a few singular aliases.
// An empty string parses as CategoryAll.
func ParseCategory(raw string) (Category, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return CategoryAll, true
	}
	category, ok := categoryAliases[value]
	return category, ok
}

func (c Category) Valid() bool {
	if c == CategoryAll {
		return true
	}
	return c.Concrete()
}

// Concrete reports whether c names a real content category (not CategoryAll).
func (c Category) Concrete() bool {
	for _, candidate := range Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
