package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxProxiedImageBytes = int64(10 * 1024 * 1024)
	placePhotoEndpoint   = "https://maps.googleapis.com/maps/api/place/photo"
	defaultPhotoWidth    = 400
	maxPhotoWidth        = 1600
)

// DefaultImageHosts are the artwork CDNs the catalog adapters link to.
var DefaultImageHosts = []string{
	"image.tmdb.org",
	"media.rawg.io",
	"books.google.com",
	"books.googleusercontent.com",
	"i.ytimg.com",
	"maps.googleapis.com",
	"lh3.googleusercontent.com",
}

// imageProxy relays artwork for clients that cannot hotlink the CDNs. Only
// allowlisted public hosts are fetched.
type imageProxy struct {
	userAgent string
	hosts     map[string]struct{}
	resolver  func(ctx context.Context, host string) ([]net.IPAddr, error)
	client    *http.Client

	// photoKey signs Places photo requests. It never appears in responses.
	photoKey      string
	photoEndpoint string
}

func newImageProxy(userAgent string, hosts []string) *imageProxy {
	if len(hosts) == 0 {
		hosts = DefaultImageHosts
	}
	allowed := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			allowed[host] = struct{}{}
		}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "connectlist-discovery/1.0"
	}
	p := &imageProxy{
		userAgent: userAgent,
		hosts:     allowed,
		resolver:  net.DefaultResolver.LookupIPAddr,

		photoEndpoint: placePhotoEndpoint,
	}
	p.client = p.newClient()
	return p
}

func (p *imageProxy) handle(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing url")
		return
	}
	target, err := url.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	p.relay(w, r, target)
}

// handlePlacePhoto resolves a Places photo reference with the server-side key.
func (p *imageProxy) handlePlacePhoto(w http.ResponseWriter, r *http.Request) {
	if p.photoKey == "" {
		writeError(w, http.StatusNotFound, "not_found", "place photos are not configured")
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing ref")
		return
	}
	width := defaultPhotoWidth
	if raw := strings.TrimSpace(r.URL.Query().Get("maxwidth")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid maxwidth")
			return
		}
		width = min(parsed, maxPhotoWidth)
	}
	target, err := url.Parse(p.photoEndpoint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "invalid photo endpoint")
		return
	}
	target.RawQuery = url.Values{
		"maxwidth":        {strconv.Itoa(width)},
		"photo_reference": {ref},
		"key":             {p.photoKey},
	}.Encode()
	p.relay(w, r, target)
}

func (p *imageProxy) relay(w http.ResponseWriter, r *http.Request, target *url.URL) {
	if err := p.validate(r.Context(), target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Upstream bodies are not forwarded.
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxProxiedImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxProxiedImageBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

func (p *imageProxy) newClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			if req.URL == nil {
				return errors.New("redirect missing url")
			}
			return p.validate(req.Context(), req.URL)
		},
	}
}

func (p *imageProxy) validate(ctx context.Context, u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "http" && scheme != "https" {
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return errors.New("invalid url host")
	}
	if _, ok := p.hosts[host]; !ok {
		return errors.New("host is not an allowed image source")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return errors.New("blocked url host")
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addrs, err := p.resolver(lookupCtx, host)
	if err != nil || len(addrs) == 0 {
		return errors.New("failed to resolve url host")
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return errors.New("blocked url host")
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}
