package places

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/providers/common"
)

const (
	defaultBaseURL  = "https://maps.googleapis.com/maps/api/place"
	defaultPageSize = 20
)

var browseTopics = []string{
	"famous landmarks",
	"top rated museums",
	"best restaurants",
	"beautiful beaches",
	"historic sites",
	"national parks",
	"rooftop bars",
	"botanical gardens",
}

// Text search reports failures in the body with HTTP 200.
const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusInvalidRequest = "INVALID_REQUEST"
	statusUnknownError   = "UNKNOWN_ERROR"
)

type Config struct {
	APIKey    string
	BaseURL   string
	Language  string
	Region    string
	UserAgent string
	PageSize  int
	Client    *http.Client
}

type Provider struct {
	apiKey   string
	baseURL  string
	language string
	region   string
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
		language: strings.TrimSpace(cfg.Language),
		region:   strings.TrimSpace(cfg.Region),
		pageSize: pageSize,
		http: common.NewClient(common.ClientConfig{
			Provider:  "places",
			Client:    cfg.Client,
			UserAgent: cfg.UserAgent,
			Quota:     common.GoogleQuota,
		}),
	}
}

func (p *Provider) Name() string {
	return "places"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:     p.Name(),
		Label:    "Google Places",
		Category: domain.CategoryPlaces,
		Enabled:  p.apiKey != "",
	}
}

// Search only serves the first page; text search continuation tokens are not
// valid until a few seconds after they are issued.
func (p *Provider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	if page > 1 {
		return nil, nil
	}
	return p.fetch(ctx, strings.TrimSpace(query))
}

func (p *Provider) Browse(ctx context.Context, seed uint64) ([]domain.RawRecord, error) {
	query := common.Topic(browseTopics, seed)
	if p.region != "" {
		query += " in " + p.region
	}
	records, err := p.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	return common.ShuffleTruncate(records, seed, p.pageSize), nil
}

type textSearchResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

func (p *Provider) fetch(ctx context.Context, query string) ([]domain.RawRecord, error) {
	params := url.Values{
		"query": {query},
		"key":   {p.apiKey},
	}
	if p.language != "" {
		params.Set("language", p.language)
	}

	var response textSearchResponse
	if err := p.http.GetJSON(ctx, p.baseURL+"/textsearch/json", params, &response); err != nil {
		return nil, err
	}
	if err := p.statusError(response); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(response.Results))
	for _, item := range response.Results {
		id := strings.TrimSpace(item.PlaceID)
		if id == "" {
			continue
		}
		location := item.FormattedAddress
		if location == "" {
			location = item.Vicinity
		}
		record := domain.RawRecord{
			ID:       id,
			Title:    item.Name,
			Location: location,
			Rating:   item.Rating,
		}
		for _, photo := range item.Photos {
			if ref := strings.TrimSpace(photo.PhotoReference); ref != "" {
				record.Image = domain.ImageRef{Kind: domain.ImagePhotoRef, Value: ref}
				break
			}
		}
		records = append(records, record)
		if len(records) >= p.pageSize {
			break
		}
	}
	return records, nil
}

func (p *Provider) statusError(response textSearchResponse) error {
	switch response.Status {
	case statusOK, statusZeroResults:
		return nil
	case statusOverQueryLimit:
		return &domain.QuotaExceededError{Provider: p.Name(), Status: http.StatusOK, Reason: response.Status}
	case statusRequestDenied:
		return &domain.HTTPError{Provider: p.Name(), Status: http.StatusForbidden, Body: response.ErrorMessage}
	case statusInvalidRequest:
		return &domain.HTTPError{Provider: p.Name(), Status: http.StatusBadRequest, Body: response.ErrorMessage}
	case statusUnknownError:
		return &domain.HTTPError{Provider: p.Name(), Status: http.StatusBadGateway, Body: response.ErrorMessage}
	default:
		return common.PayloadError(p.Name(), "unexpected status %q", response.Status)
	}
}
