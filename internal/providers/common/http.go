package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"connectlist/discoveryservice/internal/domain"
)

const (
	DefaultUserAgent = "connectlist-discovery/1.0"

	maxBodyBytes  = 2 * 1024 * 1024
	maxErrorBytes = 16 * 1024
	maxErrorEcho  = 512
)

// QuotaDetector inspects a non-2xx response and reports whether it is a quota or
// rate signal, with a short reason.
type QuotaDetector func(status int, body []byte) (string, bool)

type ClientConfig struct {
	Provider  string
	Client    *http.Client
	UserAgent string
	Header    http.Header
	Quota     QuotaDetector
}

// Client performs provider GET requests and maps every failure onto the domain
// error taxonomy.
type Client struct {
	provider  string
	http      *http.Client
	userAgent string
	header    http.Header
	quota     QuotaDetector
}

func NewClient(cfg ClientConfig) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	quota := cfg.Quota
	if quota == nil {
		quota = TooManyRequests
	}
	return &Client{
		provider:  cfg.Provider,
		http:      client,
		userAgent: userAgent,
		header:    cfg.Header.Clone(),
		quota:     quota,
	}
}

// GetJSON issues GET endpoint?params and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := endpoint
	if len(params) > 0 {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		reqURL += separator + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &domain.NetworkError{Provider: c.provider, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		if reason, ok := c.quota(resp.StatusCode, body); ok {
			return &domain.QuotaExceededError{Provider: c.provider, Status: resp.StatusCode, Reason: reason}
		}
		if len(body) > maxErrorEcho {
			body = body[:maxErrorEcho]
		}
		return &domain.HTTPError{Provider: c.provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &domain.NetworkError{Provider: c.provider, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.ParseError{Provider: c.provider, Err: err}
	}
	return nil
}

// TooManyRequests treats only HTTP 429 as a quota signal.
func TooManyRequests(status int, _ []byte) (string, bool) {
	if status == http.StatusTooManyRequests {
		return "too many requests", true
	}
	return "", false
}

type googleErrorEnvelope struct {
	Error struct {
		Status string `json:"status"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

var googleQuotaReasons = map[string]struct{}{
	"quotaexceeded":         {},
	"ratelimitexceeded":     {},
	"dailylimitexceeded":    {},
	"userratelimitexceeded": {},
	"resource_exhausted":    {},
}

// GoogleQuota recognizes the Google API error envelope: 429, or 403 with a
// quota/rate reason.
func GoogleQuota(status int, body []byte) (string, bool) {
	if reason, ok := TooManyRequests(status, body); ok {
		return reason, true
	}
	if status != http.StatusForbidden {
		return "", false
	}
	var envelope googleErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	for _, item := range envelope.Error.Errors {
		if _, ok := googleQuotaReasons[strings.ToLower(item.Reason)]; ok {
			return item.Reason, true
		}
	}
	if _, ok := googleQuotaReasons[strings.ToLower(envelope.Error.Status)]; ok {
		return envelope.Error.Status, true
	}
	return "", false
}

// PayloadError builds a ParseError for a structurally valid body that carries an
// error status instead of data.
func PayloadError(provider, format string, args ...any) error {
	return &domain.ParseError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// IsQuota reports whether err is a quota signal.
func IsQuota(err error) bool {
	var quotaErr *domain.QuotaExceededError
	return errors.As(err, &quotaErr)
}
