package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maltedev/crosslist/internal/listing"
	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/models"
	"github.com/maltedev/crosslist/internal/scraper"
)

// Step is a stage of the conversion pipeline. Steps run in a fixed order;
// FAILED is absorbing and reachable from any step.
type Step string

const (
	StepScraping   Step = "SCRAPING"
	StepCompliance Step = "COMPLIANCE"
	StepConverting Step = "CONVERTING"
	StepPricing    Step = "PRICING"
	StepListing    Step = "LISTING"
	StepComplete   Step = "COMPLETE"
	StepFailed     Step = "FAILED"
)

const previewCacheSize = 256

// UnsupportedMarketplaceError is returned for URLs whose host matches no
// known marketplace.
type UnsupportedMarketplaceError struct {
	URL  string
	Host string
}

func (e *UnsupportedMarketplaceError) Error() string {
	return fmt.Sprintf("unsupported marketplace for host %q", e.Host)
}

// ComplianceChecker screens products before a draft is built.
type ComplianceChecker interface {
	Check(product *models.ScrapedProduct) *models.ComplianceResult
}

// PricingEngine supplies suggested prices and profit breakdowns.
type PricingEngine interface {
	SuggestPrice(cost, targetMargin float64) float64
	CalculateProfit(cost, sellPrice float64, category string) *models.ProfitBreakdown
}

// Converter builds a marketplace-ready draft from a scraped product.
type Converter interface {
	Convert(product *models.ScrapedProduct) (*models.ListingDraft, error)
}

// ConvertRequest is one conversion order. A zero SellPrice means the
// pricing engine suggests one.
type ConvertRequest struct {
	URL       string  `json:"url"`
	User      string  `json:"user"`
	Publish   bool    `json:"publish"`
	SellPrice float64 `json:"sell_price,omitempty"`
}

// ConversionResult is the per-URL outcome. Failed conversions carry the
// step they failed at and an error message; slots reached before the
// failure stay populated.
type ConversionResult struct {
	URL        string                   `json:"url"`
	Status     models.ConversionStatus  `json:"status"`
	Step       Step                     `json:"step"`
	Product    *models.ScrapedProduct   `json:"product,omitempty"`
	Compliance *models.ComplianceResult `json:"compliance,omitempty"`
	Draft      *models.ListingDraft     `json:"draft,omitempty"`
	Profit     *models.ProfitBreakdown  `json:"profit,omitempty"`
	Listing    *models.ListingResult    `json:"listing,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Duration   time.Duration            `json:"duration"`
}

func (r *ConversionResult) failed(step Step, err error) *ConversionResult {
	r.Status = models.StatusFailed
	r.Step = step
	r.Error = err.Error()
	return r
}

// Config tunes pipeline behavior.
type Config struct {
	// TargetMargin is the profit margin used when no sell price is given.
	TargetMargin float64
}

// Pipeline orchestrates a conversion end to end: resolve marketplace,
// scrape, compliance screen, draft synthesis, pricing, optional publish.
type Pipeline struct {
	registry   *scraper.Registry
	compliance ComplianceChecker
	pricing    PricingEngine
	converter  Converter
	lister     listing.Lister
	metrics    *metrics.Metrics
	cfg        Config
	previews   *lru.Cache[string, *models.ScrapedProduct]
	logger     *slog.Logger
}

func New(registry *scraper.Registry, compliance ComplianceChecker, pricing PricingEngine,
	converter Converter, lister listing.Lister, m *metrics.Metrics, cfg Config) *Pipeline {

	if cfg.TargetMargin <= 0 {
		cfg.TargetMargin = 0.20
	}
	previews, _ := lru.New[string, *models.ScrapedProduct](previewCacheSize)

	return &Pipeline{
		registry:   registry,
		compliance: compliance,
		pricing:    pricing,
		converter:  converter,
		lister:     lister,
		metrics:    m,
		cfg:        cfg,
		previews:   previews,
		logger:     slog.Default().With("component", "pipeline"),
	}
}

// DetectMarketplace resolves the marketplace from a URL's host.
func DetectMarketplace(rawURL string) (models.SourceMarketplace, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", &UnsupportedMarketplaceError{URL: rawURL, Host: ""}
	}
	host := strings.ToLower(parsed.Host)

	switch {
	case strings.Contains(host, "amazon.") || strings.Contains(host, "amzn."):
		return models.SourceAmazon, nil
	case strings.Contains(host, "walmart."):
		return models.SourceWalmart, nil
	}
	return "", &UnsupportedMarketplaceError{URL: rawURL, Host: host}
}

// Convert runs one URL through the full pipeline. Errors are captured in
// the result rather than returned, so bulk callers can aggregate them.
func (p *Pipeline) Convert(ctx context.Context, req ConvertRequest) *ConversionResult {
	start := time.Now()
	result := &ConversionResult{URL: req.URL, Status: models.StatusProcessing, Step: StepScraping}
	defer func() {
		result.Duration = time.Since(start)
		p.metrics.ConversionsTotal.WithLabelValues(string(result.Status)).Inc()
	}()

	source, err := DetectMarketplace(req.URL)
	if err != nil {
		return result.failed(StepScraping, err)
	}

	s, err := p.registry.Get(string(source))
	if err != nil {
		return result.failed(StepScraping, err)
	}

	product, err := s.Scrape(ctx, req.URL)
	if err != nil {
		return result.failed(StepScraping, fmt.Errorf("scrape failed: %w", err))
	}
	result.Product = product

	result.Step = StepCompliance
	verdict := p.compliance.Check(product)
	result.Compliance = verdict
	switch verdict.RiskLevel {
	case models.RiskBlocked:
		return result.failed(StepCompliance,
			fmt.Errorf("compliance blocked for brand %q: %s", verdict.Brand, strings.Join(verdict.Violations, "; ")))
	case models.RiskWarning:
		p.logger.Warn("compliance warning, proceeding",
			"url", req.URL, "brand", verdict.Brand, "violations", verdict.Violations)
	}

	result.Step = StepConverting
	draft, err := p.converter.Convert(product)
	if err != nil {
		return result.failed(StepConverting, fmt.Errorf("draft synthesis failed: %w", err))
	}

	result.Step = StepPricing
	sellPrice := req.SellPrice
	if sellPrice <= 0 {
		sellPrice = p.pricing.SuggestPrice(product.Price, p.cfg.TargetMargin)
	}
	draft.Price = sellPrice
	result.Draft = draft
	result.Profit = p.pricing.CalculateProfit(product.Price, sellPrice, product.Category)

	result.Step = StepListing
	if req.Publish {
		listed, err := p.lister.Create(ctx, draft)
		if err != nil {
			return result.failed(StepListing, fmt.Errorf("listing creation failed: %w", err))
		}
		result.Listing = listed
	} else {
		result.Listing = listing.DraftResult(draft)
	}

	result.Status = models.StatusCompleted
	result.Step = StepComplete
	p.logger.Info("conversion completed",
		"url", req.URL,
		"user", req.User,
		"sell_price", sellPrice,
		"published", req.Publish,
		"duration", time.Since(start).Round(time.Millisecond))
	return result
}

// ConvertBulk processes URLs sequentially through Convert. One URL's
// failure is isolated; the batch continues. Progress is observable from
// other goroutines while the batch runs. onItem, when non-nil, fires after
// each URL resolves.
func (p *Pipeline) ConvertBulk(ctx context.Context, urls []string, req ConvertRequest,
	progress *BulkProgress, onItem func(*ConversionResult)) *BulkProgress {

	if progress == nil {
		progress = NewBulkProgress(len(urls))
	}

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			// Remaining URLs fail fast with the cancellation reason.
			res := &ConversionResult{URL: u, Status: models.StatusFailed, Step: StepFailed, Error: err.Error()}
			progress.add(res)
			if onItem != nil {
				onItem(res)
			}
			continue
		}

		itemReq := req
		itemReq.URL = u
		res := p.Convert(ctx, itemReq)
		progress.add(res)
		if onItem != nil {
			onItem(res)
		}
	}
	return progress
}

// Preview scrapes and normalizes a product without building a draft or
// touching external services. Results are cached per URL.
func (p *Pipeline) Preview(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	if cached, ok := p.previews.Get(rawURL); ok {
		return cached, nil
	}

	source, err := DetectMarketplace(rawURL)
	if err != nil {
		return nil, err
	}
	s, err := p.registry.Get(string(source))
	if err != nil {
		return nil, err
	}

	product, err := s.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	p.previews.Add(rawURL, product)
	return product, nil
}

// Registry exposes the scraper registry for diagnostics endpoints.
func (p *Pipeline) Registry() *scraper.Registry {
	return p.registry
}
