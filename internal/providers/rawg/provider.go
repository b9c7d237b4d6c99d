package rawg

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
	defaultBaseURL  = "https://api.rawg.io/api"
	defaultPageSize = 20
	browseMaxPage   = 5
)

// browseGenres rotate per seed so consecutive loads surface different top-rated games.
var browseGenres = []string{
	"action",
	"indie",
	"adventure",
	"role-playing-games-rpg",
	"strategy",
	"shooter",
	"puzzle",
	"racing",
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
	return &Provider{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		http: common.NewClient(common.ClientConfig{
			Provider:  "rawg",
			Client:    cfg.Client,
			UserAgent: cfg.UserAgent,
		}),
	}
}

func (p *Provider) Name() string {
	return "rawg"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:     p.Name(),
		Label:    "RAWG",
		Category: domain.CategoryGames,
		Enabled:  p.apiKey != "",
	}
}

func (p *Provider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	params := p.params(page)
	params.Set("search", strings.TrimSpace(query))
	return p.fetch(ctx, params)
}

// Browse lists top-rated games of a rotating genre.
func (p *Provider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	params := p.params(common.BrowsePage(seed, browseMaxPage))
	params.Set("ordering", "-rating")
	params.Set("genres", common.Topic(browseGenres, seed))
	records, err := p.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	return common.ShuffleTruncate(records, seed, p.pageSize), nil
}

func (p *Provider) params(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{
		"key":       {p.apiKey},
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(p.pageSize)},
	}
}

type gamesResponse struct {
	Count   int        `json:"count"`
	Results []gameItem `json:"results"`
}

type gameItem struct {
	ID              int64    `json:"id"`
	Slug            string   `json:"slug"`
	Name            string   `json:"name"`
	BackgroundImage string   `json:"background_image"`
	Released        string   `json:"released"`
	Rating          *float64 `json:"rating"`
}

func (p *Provider) fetch(ctx context.Context, params url.Values) ([]domain.RawRecord, error) {
	var response gamesResponse
	if err := p.http.GetJSON(ctx, p.baseURL+"/games", params, &response); err != nil {
		return nil, err
	}
	records := make([]domain.RawRecord, 0, len(response.Results))
	for _, item := range response.Results {
		if item.ID <= 0 {
			continue
		}
		record := domain.RawRecord{
			ID:       strconv.FormatInt(item.ID, 10),
			Title:    item.Name,
			AltTitle: item.Slug,
			Date:     item.Released,
			Rating:   item.Rating,
		}
		if image := strings.TrimSpace(item.BackgroundImage); image != "" {
			record.Image = domain.ImageRef{Kind: domain.ImageURL, Value: image}
		}
		records = append(records, record)
	}
	return records, nil
}
