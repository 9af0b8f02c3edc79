package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/crosslist/internal/browser"
	"github.com/maltedev/crosslist/internal/compliance"
	"github.com/maltedev/crosslist/internal/convert"
	"github.com/maltedev/crosslist/internal/listing"
	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/models"
	"github.com/maltedev/crosslist/internal/pricing"
	"github.com/maltedev/crosslist/internal/proxy"
	"github.com/maltedev/crosslist/internal/resilience"
	"github.com/maltedev/crosslist/internal/scraper"
)

// stubMarket serves a canned product over the structured-fetch path so no
// browser session is needed.
type stubMarket struct {
	source  models.SourceMarketplace
	product *models.ScrapedProduct
	err     error
	fetches int
}

func (m *stubMarket) Source() models.SourceMarketplace { return m.source }

func (m *stubMarket) CleanURL(rawURL string) (string, string, error) {
	return rawURL, "STUB000001", nil
}

func (m *stubMarket) DetectBotBlock(string) error { return nil }
func (m *stubMarket) ShortPageThreshold() int     { return 0 }
func (m *stubMarket) Extract(string) map[string]any {
	return nil
}

func (m *stubMarket) Transform(map[string]any, string, string) (*models.ScrapedProduct, error) {
	return nil, errors.New("unexpected html path")
}

func (m *stubMarket) FetchStructured(context.Context, string) (*models.ScrapedProduct, bool, error) {
	m.fetches++
	if m.err != nil {
		return nil, true, m.err
	}
	copied := *m.product
	return &copied, true, nil
}

type nopSessions struct{}

func (nopSessions) Acquire(context.Context, *proxy.Proxy) (browser.Session, error) {
	return nil, errors.New("no sessions in tests")
}
func (nopSessions) Release(browser.Session)              {}
func (nopSessions) HumanDelay(ctx context.Context) error { return ctx.Err() }

func sampleProduct() *models.ScrapedProduct {
	p := models.NewScrapedProduct(models.SourceAmazon, "https://www.amazon.com/dp/B08N5WRWNW", "B08N5WRWNW")
	p.Title = "Stainless Steel Insulated Water Bottle 32 oz"
	p.Price = 20.00
	p.Brand = "HydroPeak"
	p.Images = []string{"https://m.media-amazon.com/images/I/71abc._SL1500_.jpg"}
	p.Description = "Keeps drinks cold for 24 hours | Leak-proof lid"
	p.Category = "Kitchen & Dining"
	return p
}

func newTestPipeline(t *testing.T, market *stubMarket) *Pipeline {
	t.Helper()

	m := metrics.New()
	proxies := proxy.NewPool(proxy.Config{Endpoints: []string{"p1.example:8080"}}, nil)
	s := scraper.New(market, proxies, nopSessions{}, scraper.Config{
		Breaker: resilience.BreakerConfig{FailureThreshold: 100},
		Retry:   resilience.RetryConfig{MaxRetries: 0, BaseDelay: 1},
	}, m)

	registry := scraper.NewRegistry()
	require.NoError(t, registry.Register(s))

	return New(
		registry,
		compliance.NewCheckerWithBrands([]string{"Nike", "Rolex"}),
		pricing.NewEngine(5.00),
		convert.NewEbayConverter(),
		listing.NewSandboxLister(),
		m,
		Config{TargetMargin: 0.20},
	)
}

func TestDetectMarketplace(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    models.SourceMarketplace
		wantErr bool
	}{
		{"amazon product page", "https://www.amazon.com/dp/B08N5WRWNW", models.SourceAmazon, false},
		{"amazon short link", "https://amzn.to/3xYz", models.SourceAmazon, false},
		{"amazon regional", "https://www.amazon.co.uk/dp/B08N5WRWNW", models.SourceAmazon, false},
		{"walmart product page", "https://www.walmart.com/ip/12345678", models.SourceWalmart, false},
		{"unsupported host", "https://www.ebay.com/itm/12345", "", true},
		{"no host", "not-a-url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMarketplace(tt.url)
			if tt.wantErr {
				var unsupported *UnsupportedMarketplaceError
				require.ErrorAs(t, err, &unsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertHappyPathDraft(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{
		URL:  "https://www.amazon.com/dp/B08N5WRWNW",
		User: "tester",
	})

	require.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, StepComplete, res.Step)
	assert.Empty(t, res.Error)

	require.NotNil(t, res.Product)
	require.NotNil(t, res.Compliance)
	assert.Equal(t, models.RiskClear, res.Compliance.RiskLevel)

	require.NotNil(t, res.Draft)
	assert.Equal(t, "CL-B08N5WRWNW", res.Draft.SKU)
	// (20 + 5 + 0.30) / (1 - 0.1325 - 0.029 - 0.20)
	assert.InDelta(t, 39.62, res.Draft.Price, 0.01)

	require.NotNil(t, res.Profit)
	assert.InDelta(t, res.Draft.Price, res.Profit.SellPrice, 0.001)
	assert.True(t, res.Profit.IsProfitable())

	require.NotNil(t, res.Listing)
	assert.Equal(t, models.ListingDraftStatus, res.Listing.Status)
}

func TestConvertExplicitSellPrice(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{
		URL:       "https://www.amazon.com/dp/B08N5WRWNW",
		SellPrice: 49.99,
	})

	require.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, 49.99, res.Draft.Price)
	assert.Equal(t, 49.99, res.Profit.SellPrice)
}

func TestConvertPublishCreatesListing(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{
		URL:     "https://www.amazon.com/dp/B08N5WRWNW",
		Publish: true,
	})

	require.Equal(t, models.StatusCompleted, res.Status)
	require.NotNil(t, res.Listing)
	assert.Equal(t, models.ListingActive, res.Listing.Status)
	assert.NotEmpty(t, res.Listing.MarketplaceItemID)
	assert.Contains(t, res.Listing.URL, "sandbox.ebay.com")
}

func TestConvertBlockedBrandFailsAtCompliance(t *testing.T) {
	product := sampleProduct()
	product.Brand = "Nike"
	market := &stubMarket{source: models.SourceAmazon, product: product}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{URL: "https://www.amazon.com/dp/B08N5WRWNW"})

	require.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, StepCompliance, res.Step)
	assert.Contains(t, res.Error, "Nike")

	// Slots reached before the failure stay populated, later ones do not.
	assert.NotNil(t, res.Product)
	assert.NotNil(t, res.Compliance)
	assert.Nil(t, res.Draft)
	assert.Nil(t, res.Listing)
}

func TestConvertWarningBrandCompletes(t *testing.T) {
	product := sampleProduct()
	product.Brand = "Nikee" // near match of a protected brand
	market := &stubMarket{source: models.SourceAmazon, product: product}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{URL: "https://www.amazon.com/dp/B08N5WRWNW"})

	require.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, StepComplete, res.Step)
	require.NotNil(t, res.Compliance)
	assert.Equal(t, models.RiskWarning, res.Compliance.RiskLevel)
	assert.NotEmpty(t, res.Compliance.Violations)
	require.NotNil(t, res.Draft)
	require.NotNil(t, res.Listing)
	assert.Empty(t, res.Error)
}

func TestConvertUnsupportedMarketplace(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{URL: "https://www.ebay.com/itm/12345"})

	require.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, StepScraping, res.Step)
	assert.Contains(t, res.Error, "unsupported marketplace")
	assert.Nil(t, res.Product)
	assert.Equal(t, 0, market.fetches)
}

func TestConvertScrapeFailure(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, err: errors.New("gateway exploded")}
	p := newTestPipeline(t, market)

	res := p.Convert(context.Background(), ConvertRequest{URL: "https://www.amazon.com/dp/B08N5WRWNW"})

	require.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, StepScraping, res.Step)
	assert.Contains(t, res.Error, "scrape failed")
	assert.Nil(t, res.Product)
}

func TestConvertBulkIsolatesFailures(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	urls := []string{
		"https://www.amazon.com/dp/B08N5WRWNW",
		"https://www.ebay.com/itm/12345",
		"https://www.amazon.com/dp/B000000001",
	}

	var seen []*ConversionResult
	progress := p.ConvertBulk(context.Background(), urls, ConvertRequest{User: "bulk"}, nil,
		func(res *ConversionResult) { seen = append(seen, res) })

	snap := progress.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 0, snap.Pending)
	assert.InDelta(t, 100.0, snap.ProgressPct, 0.001)
	assert.True(t, progress.IsDone())

	require.Len(t, seen, 3)
	assert.Equal(t, models.StatusFailed, seen[1].Status)
	assert.Len(t, progress.Results(), 3)
}

func TestConvertBulkHonorsCancellation(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{"https://www.amazon.com/dp/B08N5WRWNW", "https://www.amazon.com/dp/B000000001"}
	progress := p.ConvertBulk(ctx, urls, ConvertRequest{}, nil, nil)

	snap := progress.Snapshot()
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 0, snap.Completed)
	assert.True(t, snap.Done)
	for _, res := range progress.Results() {
		assert.Contains(t, res.Error, context.Canceled.Error())
	}
	assert.Equal(t, 0, market.fetches)
}

func TestPreviewCachesPerURL(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	first, err := p.Preview(context.Background(), "https://www.amazon.com/dp/B08N5WRWNW")
	require.NoError(t, err)
	second, err := p.Preview(context.Background(), "https://www.amazon.com/dp/B08N5WRWNW")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, market.fetches)

	_, err = p.Preview(context.Background(), "https://www.amazon.com/dp/B000000001")
	require.NoError(t, err)
	assert.Equal(t, 2, market.fetches)
}

func TestPreviewUnsupportedURL(t *testing.T) {
	market := &stubMarket{source: models.SourceAmazon, product: sampleProduct()}
	p := newTestPipeline(t, market)

	_, err := p.Preview(context.Background(), "https://www.ebay.com/itm/12345")
	var unsupported *UnsupportedMarketplaceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "www.ebay.com", unsupported.Host)
}

func TestEmptyBatchIsDone(t *testing.T) {
	progress := NewBulkProgress(0)
	snap := progress.Snapshot()

	assert.True(t, snap.Done)
	assert.InDelta(t, 100.0, snap.ProgressPct, 0.001)
	assert.Equal(t, 0, snap.Pending)
}
