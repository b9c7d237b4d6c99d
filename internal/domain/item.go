package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Meta carries the category-specific descriptive fields of a ContentItem.
// Exactly one implementation exists per concrete category.
type Meta interface {
	Category() Category
}

type MovieMeta struct {
	Year   int     `json:"releaseYear,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

type SeriesMeta struct {
	Year   int     `json:"releaseYear,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

type MusicMeta struct {
	ChannelTitle  string `json:"channelTitle,omitempty"`
	PublishedYear int    `json:"releaseYear,omitempty"`
}

type VideoMeta struct {
	ChannelTitle  string `json:"channelTitle,omitempty"`
	PublishedYear int    `json:"releaseYear,omitempty"`
}

type BookMeta struct {
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"releaseYear,omitempty"`
}

type GameMeta struct {
	Year   int     `json:"releaseYear,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

type PersonMeta struct {
	KnownFor   []string `json:"knownFor,omitempty"`
	Department string   `json:"department,omitempty"`
}

type PlaceMeta struct {
	Location string  `json:"location,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

func (MovieMeta) Category() Category  { return CategoryMovies }
func (SeriesMeta) Category() Category { return CategorySeries }
func (MusicMeta) Category() Category  { return CategoryMusics }
func (VideoMeta) Category() Category  { return CategoryVideos }
func (BookMeta) Category() Category   { return CategoryBooks }
func (GameMeta) Category() Category   { return CategoryGames }
func (PersonMeta) Category() Category { return CategoryPeople }
func (PlaceMeta) Category() Category  { return CategoryPlaces }

type ContentItem struct {
	ID               string
	Title            string
	ImageURL         *string
	Category         Category
	Meta             Meta
	SourceProviderID string
	IsFallback       bool
}

// Valid reports whether the item satisfies the canonical model: non-empty id and
// title, a concrete category and meta of the matching kind.
func (item ContentItem) Valid() bool {
	if item.ID == "" || item.Title == "" || !item.Category.Concrete() {
		return false
	}
	return item.Meta != nil && item.Meta.Category() == item.Category
}

type contentItemJSON struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	ImageURL         *string         `json:"imageUrl"`
	Category         Category        `json:"category"`
	Subtitle         json.RawMessage `json:"subtitle,omitempty"`
	SourceProviderID string          `json:"sourceProviderId"`
	IsFallback       bool            `json:"isFallback"`
}

func (item ContentItem) MarshalJSON() ([]byte, error) {
	out := contentItemJSON{
		ID:               item.ID,
		Title:            item.Title,
		ImageURL:         item.ImageURL,
		Category:         item.Category,
		SourceProviderID: item.SourceProviderID,
		IsFallback:       item.IsFallback,
	}
	if item.Meta != nil {
		fields, err := json.Marshal(item.Meta)
		if err != nil {
			return nil, err
		}
		// Prefix the discriminator so clients can switch on subtitle.kind.
		kind := fmt.Sprintf(`{"kind":%q`, item.Meta.Category())
		if len(fields) > 2 {
			out.Subtitle = json.RawMessage(kind + "," + string(fields[1:]))
		} else {
			out.Subtitle = json.RawMessage(kind + "}")
		}
	}
	return json.Marshal(out)
}

func (item *ContentItem) UnmarshalJSON(data []byte) error {
	var in contentItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	item.ID = in.ID
	item.Title = in.Title
	item.ImageURL = in.ImageURL
	item.Category = in.Category
	item.SourceProviderID = in.SourceProviderID
	item.IsFallback = in.IsFallback
	item.Meta = nil
	if len(in.Subtitle) == 0 {
		return nil
	}
	meta := EmptyMeta(in.Category)
	if meta == nil {
		return fmt.Errorf("unknown category %q", in.Category)
	}
	if err := json.Unmarshal(in.Subtitle, meta); err != nil {
		return err
	}
	item.Meta = derefMeta(meta)
	return nil
}

// EmptyMeta returns a pointer to the zero meta struct for category, or nil for
// CategoryAll and unknown values.
func EmptyMeta(category Category) Meta {
	switch category {
	case CategoryMovies:
		return &MovieMeta{}
	case CategorySeries:
		return &SeriesMeta{}
	case CategoryMusics:
		return &MusicMeta{}
	case CategoryVideos:
		return &VideoMeta{}
	case CategoryBooks:
		return &BookMeta{}
	case CategoryGames:
		return &GameMeta{}
	case CategoryPeople:
		return &PersonMeta{}
	case CategoryPlaces:
		return &PlaceMeta{}
	default:
		return nil
	}
}

func derefMeta(meta Meta) Meta {
	switch m := meta.(type) {
	case *MovieMeta:
		return *m
	case *SeriesMeta:
		return *m
	case *MusicMeta:
		return *m
	case *VideoMeta:
		return *m
	case *BookMeta:
		return *m
	case *GameMeta:
		return *m
	case *PersonMeta:
		return *m
	case *PlaceMeta:
		return *m
	default:
		return meta
	}
}

// CloneItems copies items so callers can hand out snapshots of owned slices.
func CloneItems(items []ContentItem) []ContentItem {
	if items == nil {
		return nil
	}
	out := make([]ContentItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// Clone copies item including its image pointer and meta slices.
func (item ContentItem) Clone() ContentItem {
	out := item
	if item.ImageURL != nil {
		image := *item.ImageURL
		out.ImageURL = &image
	}
	switch meta := item.Meta.(type) {
	case BookMeta:
		meta.Authors = slices.Clone(meta.Authors)
		out.Meta = meta
	case PersonMeta:
		meta.KnownFor = slices.Clone(meta.KnownFor)
		out.Meta = meta
	}
	return out
}
