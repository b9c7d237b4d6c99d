package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/providers/common"
)

const (
	defaultBaseURL    = "https://www.googleapis.com/youtube/v3"
	defaultPageSize   = 20
	maxPageSize       = 50
	musicCategoryID   = "10"
	maxRememberedPage = 256
	videoKind         = "youtube#video"
)

var (
	videoTopics = []string{
		"trending today",
		"science explained",
		"travel vlog",
		"cooking recipe",
		"tech review",
		"documentary",
		"street food",
		"how it's made",
	}
	musicTopics = []string{
		"top hits",
		"lofi beats",
		"rock classics",
		"jazz standards",
		"hip hop",
		"film soundtrack",
		"acoustic covers",
		"live session",
	}
)

type Config struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	PageSize  int
	Client    *http.Client
}

// Provider searches YouTube videos. The music variant scopes search to the
// Music video category.
type Provider struct {
	name     string
	label    string
	category domain.Category
	topics   []string
	apiKey   string
	baseURL  string
	pageSize int
	http     *common.Client

	// YouTube pages by opaque token; remember the token for page n+1 of each query.
	tokensMu sync.Mutex
	tokens   map[string]string
}

func NewVideos(cfg Config) *Provider {
	return newProvider(cfg, domain.CategoryVideos, "YouTube", videoTopics)
}

func NewMusics(cfg Config) *Provider {
	return newProvider(cfg, domain.CategoryMusics, "YouTube Music", musicTopics)
}

func newProvider(cfg Config, category domain.Category, label string, topics []string) *Provider {
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
	name := "youtube-" + string(category)
	return &Provider{
		name:     name,
		label:    label,
		category: category,
		topics:   topics,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		http: common.NewClient(common.ClientConfig{
			Provider:  name,
			Client:    cfg.Client,
			UserAgent: cfg.UserAgent,
			Quota:     common.GoogleQuota,
		}),
		tokens: make(map[string]string),
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:             p.name,
		Label:            p.label,
		Category:         p.category,
		FallbackEligible: true,
		Enabled:          p.apiKey != "",
	}
}

// Search returns page of the query. Pages beyond the first are only reachable
// after the previous page was fetched; an unknown page is reported as empty.
func (p *Provider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	query = strings.TrimSpace(query)
	if page < 1 {
		page = 1
	}
	token := ""
	if page > 1 {
		var ok bool
		token, ok = p.pageToken(query, page)
		if !ok {
			return nil, nil
		}
	}
	records, next, err := p.fetch(ctx, query, token, "relevance")
	if err != nil {
		return nil, err
	}
	if next != "" {
		p.rememberPageToken(query, page+1, next)
	}
	return records, nil
}

func (p *Provider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	order := "relevance"
	if seed%2 == 1 {
		order = "viewCount"
	}
	records, _, err := p.fetch(ctx, common.Topic(p.topics, seed), "", order)
	if err != nil {
		return nil, err
	}
	return common.ShuffleTruncate(records, seed, p.pageSize), nil
}

type searchResponse struct {
	NextPageToken string       `json:"nextPageToken"`
	Items         []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		Kind    string `json:"kind"`
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
		Thumbnails   map[string]struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"snippet"`
}

func (p *Provider) fetch(ctx context.Context, query, pageToken, order string) ([]domain.RawRecord, string, error) {
	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {query},
		"maxResults": {strconv.Itoa(p.pageSize)},
		"order":      {order},
		"key":        {p.apiKey},
	}
	if p.category == domain.CategoryMusics {
		params.Set("videoCategoryId", musicCategoryID)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var response searchResponse
	if err := p.http.GetJSON(ctx, p.baseURL+"/search", params, &response); err != nil {
		return nil, "", err
	}
	records := make([]domain.RawRecord, 0, len(response.Items))
	for _, item := range response.Items {
		record, ok := toRecord(item)
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records, response.NextPageToken, nil
}

// toRecord rejects items whose id is not a well-formed video id.
func toRecord(item searchItem) (domain.RawRecord, bool) {
	if item.ID.Kind != "" && item.ID.Kind != videoKind {
		return domain.RawRecord{}, false
	}
	videoID := strings.TrimSpace(item.ID.VideoID)
	if !validVideoID(videoID) {
		return domain.RawRecord{}, false
	}
	record := domain.RawRecord{
		ID:           videoID,
		Title:        item.Snippet.Title,
		ChannelTitle: item.Snippet.ChannelTitle,
		Date:         item.Snippet.PublishedAt,
	}
	for _, size := range []string{"high", "medium", "default"} {
		if thumb, ok := item.Snippet.Thumbnails[size]; ok && thumb.URL != "" {
			record.Image = domain.ImageRef{Kind: domain.ImageURL, Value: thumb.URL}
			break
		}
	}
	return record, true
}

func validVideoID(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (p *Provider) pageToken(query string, page int) (string, bool) {
	p.tokensMu.Lock()
	defer p.tokensMu.Unlock()
	token, ok := p.tokens[tokenKey(query, page)]
	return token, ok
}

func (p *Provider) rememberPageToken(query string, page int, token string) {
	p.tokensMu.Lock()
	defer p.tokensMu.Unlock()
	if len(p.tokens) >= maxRememberedPage {
		clear(p.tokens)
	}
	p.tokens[tokenKey(query, page)] = token
}

func tokenKey(query string, page int) string {
	return strconv.Itoa(page) + ":" + strings.ToLower(query)
}
