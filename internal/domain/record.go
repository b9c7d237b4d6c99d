package domain

type ImageKind string

const (
	ImageNone     ImageKind = ""
	ImagePath     ImageKind = "path"
	ImageURL      ImageKind = "url"
	ImagePhotoRef ImageKind = "photo_ref"
)

// ImageRef describes where artwork for a record lives. Path fragments need a CDN
// base, photo references need a second templated fetch URL.
type ImageRef struct {
	Kind  ImageKind `json:"kind,omitempty"`
	Value string    `json:"value,omitempty"`
}

// RawRecord is the provider-neutral intermediate shape every adapter parses into.
// It carries no provider-specific field names; the normalizer projects it into a
// ContentItem by category.
type RawRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	AltTitle     string   `json:"altTitle,omitempty"`
	Image        ImageRef `json:"image,omitempty"`
	Date         string   `json:"date,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	ChannelTitle string   `json:"channelTitle,omitempty"`
	KnownFor     []string `json:"knownFor,omitempty"`
	Department   string   `json:"department,omitempty"`
	Location     string   `json:"location,omitempty"`
}

func Float(value float64) *float64 {
	return &value
}
