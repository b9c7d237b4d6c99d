package tmdb

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/providers/common"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultLanguage = "en-US"
	defaultPageSize = 20
	browseMaxPage   = 5
)

type Config struct {
	APIKey      string
	BearerToken string
	BaseURL     string
	Language    string
	UserAgent   string
	PageSize    int
	Client      *http.Client
}

// Client holds the shared credentials for the three TMDB-backed providers.
type Client struct {
	apiKey      string
	bearerToken string
	baseURL     string
	language    string
	userAgent   string
	pageSize    int
	http        *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		bearerToken: strings.TrimSpace(cfg.BearerToken),
		baseURL:     strings.TrimRight(baseURL, "/"),
		language:    language,
		userAgent:   cfg.UserAgent,
		pageSize:    pageSize,
		http:        httpClient,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != "" || c.bearerToken != ""
}

func (c *Client) Movies() *Provider {
	return c.provider(domain.CategoryMovies, "movie", "TMDB Movies")
}

func (c *Client) Series() *Provider {
	return c.provider(domain.CategorySeries, "tv", "TMDB TV")
}

func (c *Client) People() *Provider {
	return c.provider(domain.CategoryPeople, "person", "TMDB People")
}

func (c *Client) provider(category domain.Category, mediaType, label string) *Provider {
	name := "tmdb-" + string(category)
	var header http.Header
	if c.bearerToken != "" {
		header = http.Header{"Authorization": {"Bearer " + c.bearerToken}}
	}
	return &Provider{
		client:    c,
		name:      name,
		label:     label,
		category:  category,
		mediaType: mediaType,
		http: common.NewClient(common.ClientConfig{
			Provider:  name,
			Client:    c.http,
			UserAgent: c.userAgent,
			Header:    header,
		}),
	}
}

// Provider is one TMDB media type bound to its category.
type Provider struct {
	client    *Client
	http      *common.Client
	name      string
	label     string
	category  domain.Category
	mediaType string
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:     p.name,
		Label:    p.label,
		Category: p.category,
		Enabled:  p.client.Enabled(),
	}
}

func (p *Provider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	params := p.params(page)
	params.Set("query", strings.TrimSpace(query))
	params.Set("include_adult", "false")
	return p.fetch(ctx, "/search/"+p.mediaType, params)
}

// Browse reads the weekly trending list, on a seed-chosen page.
func (p *Provider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	records, err := p.fetch(ctx, "/trending/"+p.mediaType+"/week", p.params(common.BrowsePage(seed, browseMaxPage)))
	if err != nil {
		return nil, err
	}
	return common.ShuffleTruncate(records, seed, p.client.pageSize), nil
}

func (p *Provider) params(page int) url.Values {
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"language": {p.client.language},
		"page":     {strconv.Itoa(page)},
	}
	if p.client.bearerToken == "" && p.client.apiKey != "" {
		params.Set("api_key", p.client.apiKey)
	}
	return params
}

func (p *Provider) fetch(ctx context.Context, path string, params url.Values) ([]domain.RawRecord, error) {
	var response pagedResponse
	if err := p.http.GetJSON(ctx, p.client.baseURL+path, params, &response); err != nil {
		return nil, err
	}
	records := make([]domain.RawRecord, 0, len(response.Results))
	for _, item := range response.Results {
		record, ok := p.toRecord(item)
		if !ok {
			continue
		}
		records = append(records, record)
		if len(records) >= p.client.pageSize {
			break
		}
	}
	return records, nil
}

type pagedResponse struct {
	Page    int          `json:"page"`
	Results []resultItem `json:"results"`
}

type resultItem struct {
	ID                 int64          `json:"id"`
	Title              string         `json:"title"`
	Name               string         `json:"name"`
	OriginalTitle      string         `json:"original_title"`
	OriginalName       string         `json:"original_name"`
	PosterPath         string         `json:"poster_path"`
	ProfilePath        string         `json:"profile_path"`
	ReleaseDate        string         `json:"release_date"`
	FirstAirDate       string         `json:"first_air_date"`
	VoteAverage        *float64       `json:"vote_average"`
	KnownForDepartment string         `json:"known_for_department"`
	KnownFor           []knownForItem `json:"known_for"`
}

type knownForItem struct {
	Title string `json:"title"`
	Name  string `json:"name"`
}

func (p *Provider) toRecord(item resultItem) (domain.RawRecord, bool) {
	if item.ID <= 0 {
		return domain.RawRecord{}, false
	}
	record := domain.RawRecord{ID: strconv.FormatInt(item.ID, 10)}
	switch p.category {
	case domain.CategoryMovies:
		record.Title = item.Title
		record.AltTitle = item.OriginalTitle
		record.Date = item.ReleaseDate
		record.Rating = item.VoteAverage
		record.Image = pathImage(item.PosterPath)
	case domain.CategorySeries:
		record.Title = item.Name
		record.AltTitle = item.OriginalName
		record.Date = item.FirstAirDate
		record.Rating = item.VoteAverage
		record.Image = pathImage(item.PosterPath)
	case domain.CategoryPeople:
		record.Title = item.Name
		record.Department = item.KnownForDepartment
		record.Image = pathImage(item.ProfilePath)
		for _, known := range item.KnownFor {
			title := known.Title
			if title == "" {
				title = known.Name
			}
			if title != "" {
				record.KnownFor = append(record.KnownFor, title)
			}
		}
	}
	return record, true
}

func pathImage(path string) domain.ImageRef {
	if strings.TrimSpace(path) == "" {
		return domain.ImageRef{}
	}
	return domain.ImageRef{Kind: domain.ImagePath, Value: path}
}
