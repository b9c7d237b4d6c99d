package googlebooks

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/providers/common"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/books/v1"
	defaultPageSize = 20
	maxPageSize     = 40
	browseMaxPage   = 4
)

var browseSubjects = []string{
	"fiction",
	"science",
	"history",
	"fantasy",
	"biography",
	"philosophy",
	"mystery",
	"poetry",
}

type Config struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	PageSize  int
	Client    *http.Client
}

type Provider struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *common.Client
}

func NewProvider(cfg Config) *Provider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Provider{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		http: common.NewClient(common.ClientConfig{
			Provider:  "googlebooks",
			Client:    cfg.Client,
			UserAgent: cfg.UserAgent,
			Quota:     common.GoogleQuota,
		}),
	}
}

func (p *Provider) Name() string {
	return "googlebooks"
}

// Info reports the provider as enabled without a key; the volumes API accepts
// anonymous calls at a lower quota.
func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:     p.Name(),
		Label:    "Google Books",
		Category: domain.CategoryBooks,
		Enabled:  true,
	}
}

func (p *Provider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	return p.fetch(ctx, strings.TrimSpace(query), page)
}

func (p *Provider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	query := "subject:" + common.Topic(browseSubjects, seed)
	records, err := p.fetch(ctx, query, common.BrowsePage(seed/uint64(len(browseSubjects)), browseMaxPage))
	if err != nil {
		return nil, err
	}
	return common.ShuffleTruncate(records, seed, p.pageSize), nil
}

type volumesResponse struct {
	TotalItems int          `json:"totalItems"`
	Items      []volumeItem `json:"items"`
}

type volumeItem struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Subtitle      string   `json:"subtitle"`
		Authors       []string `json:"authors"`
		PublishedDate string   `json:"publishedDate"`
		AverageRating *float64 `json:"averageRating"`
		ImageLinks    struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

func (p *Provider) fetch(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"q":          {query},
		"startIndex": {strconv.Itoa((page - 1) * p.pageSize)},
		"maxResults": {strconv.Itoa(p.pageSize)},
		"printType":  {"books"},
	}
	if p.apiKey != "" {
		params.Set("key", p.apiKey)
	}

	var response volumesResponse
	if err := p.http.GetJSON(ctx, p.baseURL+"/volumes", params, &response); err != nil {
		return nil, err
	}
	records := make([]domain.RawRecord, 0, len(response.Items))
	for _, item := range response.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		info := item.VolumeInfo
		record := domain.RawRecord{
			ID:       id,
			Title:    info.Title,
			AltTitle: info.Subtitle,
			Date:     info.PublishedDate,
			Rating:   info.AverageRating,
			Authors:  info.Authors,
		}
		image := info.ImageLinks.Thumbnail
		if image == "" {
			image = info.ImageLinks.SmallThumbnail
		}
		if image != "" {
			record.Image = domain.ImageRef{Kind: domain.ImageURL, Value: image}
		}
		records = append(records, record)
	}
	return records, nil
}
