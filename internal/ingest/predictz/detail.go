package predictz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/rs/zerolog/log"
)

// ErrNoResult means the detail page has no final score yet
var ErrNoResult = errors.New("no result on detail page")

// ErrChallenged means the site answered with a bot-protection challenge
// and no browser fallback was configured
var ErrChallenged = errors.New("bot-protection challenge")

var resultPattern = regexp.MustCompile(`^(\d+)-(\d+)`)

// challengeMarkers appear in interstitial challenge pages served with 200
var challengeMarkers = []string{
	"cf-chl",
	"challenge-platform",
	"<title>Just a moment",
	"Attention Required!",
}

// Score is a final result read from a detail page
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// ParseDetail extracts the final score from a match detail page
func ParseDetail(htmlContent string) (*Score, error) {
	doc, err := ParseHTML(htmlContent)
	if err != nil {
		return nil, err
	}

	box := doc.Find("div.predodds").First()
	if box.Length() == 0 {
		return nil, ErrNoResult
	}

	scoreTag := box.Find("p.ptxtscore").First()
	if scoreTag.Length() == 0 {
		return nil, ErrNoResult
	}

	m := resultPattern.FindStringSubmatch(strings.TrimSpace(scoreTag.Text()))
	if m == nil {
		return nil, ErrNoResult
	}

	home, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("home score %q: %w", m[1], err)
	}
	away, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("away score %q: %w", m[2], err)
	}

	return &Score{Home: home, Away: away}, nil
}

// PageRenderer renders a page in a real browser
type PageRenderer interface {
	RenderedHTML(ctx context.Context, url string) (string, error)
}

// DetailClient fetches detail pages over HTTP with a Chrome TLS and HTTP/2
// fingerprint. Detail pages render server-side; a browser is only used when
// the site still answers with a challenge.
type DetailClient struct {
	client   *req.Client
	fallback PageRenderer
}

// NewDetailClient creates a client with the given per-request timeout
func NewDetailClient(timeout time.Duration) *DetailClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := req.C().
		ImpersonateChrome().
		SetUserAgent(UserAgent).
		SetCommonHeader("Accept-Language", "en-GB,en;q=0.9").
		SetTimeout(timeout)

	return &DetailClient{client: client}
}

// WithBrowserFallback renders challenged pages with renderer
func (c *DetailClient) WithBrowserFallback(renderer PageRenderer) *DetailClient {
	c.fallback = renderer
	return c
}

// FetchDetail returns the body of a detail page
func (c *DetailClient) FetchDetail(ctx context.Context, url string) (string, error) {
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}

	body := resp.String()
	switch {
	case isChallenge(resp.StatusCode, body):
		return c.render(ctx, url, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}
	return body, nil
}

func (c *DetailClient) render(ctx context.Context, url string, status int) (string, error) {
	if c.fallback == nil {
		return "", fmt.Errorf("fetching %s: status %d: %w", url, status, ErrChallenged)
	}

	log.Debug().Str("url", url).Int("status", status).Msg("challenge on detail page, rendering in browser")
	html, err := c.fallback.RenderedHTML(ctx, url)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", url, err)
	}
	return html, nil
}

func isChallenge(status int, body string) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusOK:
		for _, marker := range challengeMarkers {
			if strings.Contains(body, marker) {
				return true
			}
		}
	}
	return false
}
