package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/crosslist/internal/browser"
	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/models"
	"github.com/maltedev/crosslist/internal/proxy"
	"github.com/maltedev/crosslist/internal/resilience"
)

const defaultSettleDelay = 3 * time.Second

// SessionPool abstracts the browser pool so tests can substitute fakes.
// *browser.Pool satisfies it.
type SessionPool interface {
	Acquire(ctx context.Context, prx *proxy.Proxy) (browser.Session, error)
	Release(sess browser.Session)
	HumanDelay(ctx context.Context) error
}

// Marketplace is the per-site contract plugged into the shared Scraper
// template. Implementations own URL canonicalization, bot-block markers,
// and field extraction for one marketplace.
type Marketplace interface {
	Source() models.SourceMarketplace

	// CleanURL canonicalizes a product URL to its minimal form and returns
	// the embedded product identifier.
	CleanURL(rawURL string) (cleaned string, productID string, err error)

	// DetectBotBlock inspects rendered HTML for explicit CAPTCHA or block
	// page markers and returns a typed *Error when one is found.
	DetectBotBlock(html string) error

	// ShortPageThreshold is the minimum plausible byte size of a real
	// product page. Smaller pages are treated as a generic bot block.
	ShortPageThreshold() int

	// Extract parses the rendered HTML into an intermediate field map.
	Extract(html string) map[string]any

	// Transform normalizes the field map into a ScrapedProduct.
	Transform(raw map[string]any, url, productID string) (*models.ScrapedProduct, error)
}

// ContentSettler lets a marketplace replace the fixed post-navigation settle
// delay with a content-specific wait.
type ContentSettler interface {
	WaitSettled(ctx context.Context, sess browser.Session) error
}

// StructuredFetcher lets a marketplace serve a product from a structured
// JSON endpoint instead of the browser path. A false second return means
// the endpoint is unavailable for this product and the HTML path should run.
type StructuredFetcher interface {
	FetchStructured(ctx context.Context, productID string) (*models.ScrapedProduct, bool, error)
}

// Config tunes one marketplace scraper instance.
type Config struct {
	Breaker     resilience.BreakerConfig
	Retry       resilience.RetryConfig
	SettleDelay time.Duration
}

// Scraper is the shared scraping template. Scrape runs the full
// navigate-extract-validate round trip under circuit-breaker and retry
// protection, with proxy health bookkeeping on every exit path.
type Scraper struct {
	impl     Marketplace
	proxies  *proxy.Pool
	sessions SessionPool
	breaker  *resilience.Breaker
	retryer  *resilience.Retryer
	metrics  *metrics.Metrics
	settle   time.Duration
	logger   *slog.Logger
}

func New(impl Marketplace, proxies *proxy.Pool, sessions SessionPool, cfg Config, m *metrics.Metrics) *Scraper {
	source := string(impl.Source())
	logger := slog.Default().With("component", "scraper", "source", source)

	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}

	return &Scraper{
		impl:     impl,
		proxies:  proxies,
		sessions: sessions,
		breaker:  resilience.NewBreaker(source, cfg.Breaker, logger),
		retryer:  resilience.NewRetryer(cfg.Retry, IsRetryable, logger),
		metrics:  m,
		settle:   settle,
		logger:   logger,
	}
}

func (s *Scraper) Source() models.SourceMarketplace {
	return s.impl.Source()
}

// Breaker exposes the scraper's circuit breaker for diagnostics.
func (s *Scraper) Breaker() *resilience.Breaker {
	return s.breaker
}

// Scrape fetches and normalizes one product. The breaker guards the whole
// retry sequence: individual attempts do not each count against it, only
// the net outcome does.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	source := string(s.impl.Source())

	cleaned, productID, err := s.impl.CleanURL(rawURL)
	if err != nil {
		return nil, err
	}

	s.metrics.ActiveScrapes.Inc()
	defer s.metrics.ActiveScrapes.Dec()
	start := time.Now()

	var product *models.ScrapedProduct
	err = s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.retryer.Do(ctx, func(ctx context.Context) error {
			p, attemptErr := s.attempt(ctx, cleaned, productID)
			if attemptErr != nil {
				return attemptErr
			}
			product = p
			return nil
		})
	})

	s.metrics.ScrapeDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		var openErr *resilience.OpenError
		if errors.As(err, &openErr) {
			s.metrics.BreakerRejections.WithLabelValues(source).Inc()
		}
		var scrapeErr *Error
		if errors.As(err, &scrapeErr) && (scrapeErr.Kind == KindCaptcha || scrapeErr.Kind == KindBlockPage) {
			s.metrics.BotBlocksTotal.WithLabelValues(source, string(scrapeErr.Kind)).Inc()
		}
		s.metrics.ScrapesTotal.WithLabelValues(source, "failure").Inc()
		return nil, err
	}

	s.metrics.ScrapesTotal.WithLabelValues(source, "success").Inc()
	s.logger.Info("scrape completed",
		"url", cleaned,
		"title", product.Title,
		"price", product.Price,
		"duration", time.Since(start).Round(time.Millisecond))
	return product, nil
}

// attempt is one full round trip. It acquires a proxy and a session,
// guarantees release, and reports proxy health before any error propagates.
func (s *Scraper) attempt(ctx context.Context, url, productID string) (*models.ScrapedProduct, error) {
	source := string(s.impl.Source())

	if sf, ok := s.impl.(StructuredFetcher); ok {
		product, served, err := sf.FetchStructured(ctx, productID)
		if served {
			if err != nil {
				return nil, err
			}
			return product, nil
		}
	}

	prx := s.proxies.Select()
	sess, err := s.sessions.Acquire(ctx, prx)
	if err != nil {
		s.proxies.ReportFailure(prx)
		s.metrics.ProxyReportsTotal.WithLabelValues("failure").Inc()
		return nil, wrapError(KindScraping, source, err, "failed to acquire browser session")
	}

	product, err := s.run(ctx, sess, url, productID)
	s.sessions.Release(sess)

	if err != nil {
		s.proxies.ReportFailure(prx)
		s.metrics.ProxyReportsTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("scrape attempt failed", "url", url, "proxy", prx.Address, "error", err)
		return nil, err
	}

	s.proxies.ReportSuccess(prx)
	s.metrics.ProxyReportsTotal.WithLabelValues("success").Inc()
	return product, nil
}

func (s *Scraper) run(ctx context.Context, sess browser.Session, url, productID string) (*models.ScrapedProduct, error) {
	source := string(s.impl.Source())

	if err := s.sessions.HumanDelay(ctx); err != nil {
		return nil, err
	}

	status, err := sess.Navigate(ctx, url)
	if err != nil {
		return nil, wrapError(KindScraping, source, err, "navigation failed")
	}
	switch status {
	case 404:
		return nil, newError(KindNotFound, source, "product not found: %s", url)
	case 429:
		return nil, newError(KindRateLimit, source, "rate limited by marketplace")
	}

	if err := s.waitSettled(ctx, sess); err != nil {
		return nil, err
	}

	html, err := sess.Content()
	if err != nil {
		return nil, wrapError(KindScraping, source, err, "failed to capture page content")
	}

	if err := s.impl.DetectBotBlock(html); err != nil {
		return nil, err
	}
	if len(html) < s.impl.ShortPageThreshold() {
		return nil, newError(KindScraping, source, "page too small (%d bytes), likely blocked", len(html))
	}

	raw := s.impl.Extract(html)
	product, err := s.impl.Transform(raw, url, productID)
	if err != nil {
		return nil, err
	}

	if !product.IsComplete() {
		return nil, newError(KindScraping, source,
			"incomplete product: title=%q price=%.2f images=%d",
			product.Title, product.Price, len(product.Images))
	}
	return product, nil
}

func (s *Scraper) waitSettled(ctx context.Context, sess browser.Session) error {
	if cs, ok := s.impl.(ContentSettler); ok {
		return cs.WaitSettled(ctx, sess)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settle):
		return nil
	}
}
