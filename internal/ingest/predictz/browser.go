package predictz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

const (
	// UserAgent sent by both the browser and the detail client
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"

	// DefaultSettle is how long the listing gets to finish rendering after navigation
	DefaultSettle = 5 * time.Second

	// HerokuChromePath is where the chrome-for-testing buildpack installs the browser
	HerokuChromePath = "/app/.chrome-for-testing/chrome-linux64/chrome"
)

// BrowserConfig carries the environment-specific parts of the browser session
type BrowserConfig struct {
	// ExecPath forces a browser binary. Empty lets chromedp find a local Chrome.
	ExecPath string
	// Managed enables the extra flags hosted dynos need (no setuid sandbox, single process)
	Managed   bool
	UserAgent string
	Settle    time.Duration
	Width     int
	Height    int
}

// DefaultBrowserConfig returns the local-development configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		UserAgent: UserAgent,
		Settle:    DefaultSettle,
		Width:     1920,
		Height:    1080,
	}
}

// Browser renders pages in a headless Chrome. Every call starts and tears
// down its own browser process.
type Browser struct {
	cfg BrowserConfig
}

// NewBrowser creates a Browser with the given configuration
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	return &Browser{cfg: cfg}
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(b.cfg.Width, b.cfg.Height),
		chromedp.UserAgent(b.cfg.UserAgent),
	)

	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.Managed {
		opts = append(opts,
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("single-process", true),
		)
	}
	return opts
}

// RenderedHTML navigates to url, waits the settle time and returns the
// outer HTML of the document. No timeout is applied beyond ctx.
func (b *Browser) RenderedHTML(ctx context.Context, url string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	log.Info().Str("url", url).Msg("rendering listing page")

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	if htmlContent == "" {
		return "", fmt.Errorf("empty HTML content returned for %s", url)
	}

	return htmlContent, nil
}

// ParseHTML converts raw HTML to a goquery Document for parsing
func ParseHTML(htmlContent string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
