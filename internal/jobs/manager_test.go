package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/crosslist/internal/browser"
	"github.com/maltedev/crosslist/internal/compliance"
	"github.com/maltedev/crosslist/internal/convert"
	"github.com/maltedev/crosslist/internal/listing"
	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/models"
	"github.com/maltedev/crosslist/internal/pipeline"
	"github.com/maltedev/crosslist/internal/pricing"
	"github.com/maltedev/crosslist/internal/proxy"
	"github.com/maltedev/crosslist/internal/resilience"
	"github.com/maltedev/crosslist/internal/scraper"
)

type stubMarket struct {
	product *models.ScrapedProduct
	// when set, FetchStructured parks until the context is cancelled
	block bool
}

func (m *stubMarket) Source() models.SourceMarketplace { return models.SourceAmazon }

func (m *stubMarket) CleanURL(rawURL string) (string, string, error) {
	return rawURL, "JOB0000001", nil
}

func (m *stubMarket) DetectBotBlock(string) error   { return nil }
func (m *stubMarket) ShortPageThreshold() int       { return 0 }
func (m *stubMarket) Extract(string) map[string]any { return nil }

func (m *stubMarket) Transform(map[string]any, string, string) (*models.ScrapedProduct, error) {
	return nil, nil
}

func (m *stubMarket) FetchStructured(ctx context.Context, _ string) (*models.ScrapedProduct, bool, error) {
	if m.block {
		<-ctx.Done()
		return nil, true, ctx.Err()
	}
	copied := *m.product
	return &copied, true, nil
}

type nopSessions struct{}

func (nopSessions) Acquire(context.Context, *proxy.Proxy) (browser.Session, error) {
	return nil, context.Canceled
}
func (nopSessions) Release(browser.Session)              {}
func (nopSessions) HumanDelay(ctx context.Context) error { return ctx.Err() }

type recordingStore struct {
	mu    sync.Mutex
	saves []uuid.NullUUID
}

func (s *recordingStore) SaveConversion(_ context.Context, jobID uuid.NullUUID, _ string, _ *pipeline.ConversionResult) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, jobID)
	return uuid.New(), nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type recordingRedis struct {
	mu   sync.Mutex
	adds []*redis.XAddArgs
}

func (r *recordingRedis) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds = append(r.adds, args)
	return redis.NewStringCmd(ctx)
}

func (r *recordingRedis) streams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.adds))
	for i, a := range r.adds {
		out[i] = a.Stream
	}
	return out
}

func newTestPipeline(t *testing.T, market *stubMarket) *pipeline.Pipeline {
	t.Helper()

	m := metrics.New()
	proxies := proxy.NewPool(proxy.Config{Endpoints: []string{"p1.example:8080"}}, nil)
	s := scraper.New(market, proxies, nopSessions{}, scraper.Config{
		Breaker: resilience.BreakerConfig{FailureThreshold: 100},
		Retry:   resilience.RetryConfig{MaxRetries: 0, BaseDelay: 1},
	}, m)

	registry := scraper.NewRegistry()
	require.NoError(t, registry.Register(s))

	return pipeline.New(
		registry,
		compliance.NewCheckerWithBrands([]string{"Nike"}),
		pricing.NewEngine(5.00),
		convert.NewEbayConverter(),
		listing.NewSandboxLister(),
		m,
		pipeline.Config{TargetMargin: 0.20},
	)
}

func testProduct() *models.ScrapedProduct {
	p := models.NewScrapedProduct(models.SourceAmazon, "https://www.amazon.com/dp/B0TEST00001", "B0TEST00001")
	p.Title = "Cordless Drill 20V"
	p.Price = 35.00
	p.Images = []string{"https://m.media-amazon.com/images/I/81xyz._SL1500_.jpg"}
	return p
}

func TestSubmitRunsBatchToCompletion(t *testing.T) {
	market := &stubMarket{product: testProduct()}
	store := &recordingStore{}
	rds := &recordingRedis{}
	manager := NewManager(newTestPipeline(t, market), store, rds)

	job, err := manager.Submit(SubmitRequest{
		URLs: []string{
			"https://www.amazon.com/dp/B0TEST00001",
			"https://www.ebay.com/itm/999",
		},
		User: "tester",
	})
	require.NoError(t, err)

	manager.Wait()

	view, ok := manager.Snapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, view.Status)
	assert.Equal(t, 2, view.Progress.Total)
	assert.Equal(t, 1, view.Progress.Completed)
	assert.Equal(t, 1, view.Progress.Failed)
	assert.True(t, view.Progress.Done)
	require.NotNil(t, view.StartedAt)
	require.NotNil(t, view.CompletedAt)

	assert.Equal(t, 2, store.count())
	for _, saved := range store.saves {
		assert.True(t, saved.Valid)
		assert.Equal(t, job.ID, saved.UUID)
	}

	streams := rds.streams()
	require.Len(t, streams, 2)
	for _, stream := range streams {
		assert.Equal(t, ConversionStream, stream)
	}
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	manager := NewManager(newTestPipeline(t, &stubMarket{product: testProduct()}), nil, nil)

	_, err := manager.Submit(SubmitRequest{})
	require.Error(t, err)
}

func TestCancelStopsRunningJob(t *testing.T) {
	market := &stubMarket{product: testProduct(), block: true}
	manager := NewManager(newTestPipeline(t, market), nil, nil)

	job, err := manager.Submit(SubmitRequest{
		URLs: []string{"https://www.amazon.com/dp/B0TEST00001", "https://www.amazon.com/dp/B0TEST00002"},
	})
	require.NoError(t, err)

	// Give the worker a moment to enter the blocking scrape.
	time.Sleep(20 * time.Millisecond)
	require.True(t, manager.Cancel(job.ID))
	manager.Wait()

	view, ok := manager.Snapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobCancelled, view.Status)
	assert.True(t, view.Progress.Done)
	assert.Equal(t, 2, view.Progress.Failed)
}

func TestSnapshotUnknownJob(t *testing.T) {
	manager := NewManager(newTestPipeline(t, &stubMarket{product: testProduct()}), nil, nil)

	_, ok := manager.Snapshot(uuid.New())
	assert.False(t, ok)
	assert.False(t, manager.Cancel(uuid.New()))
}

func TestNilStoreAndRedisAreSkipped(t *testing.T) {
	market := &stubMarket{product: testProduct()}
	manager := NewManager(newTestPipeline(t, market), nil, nil)

	job, err := manager.Submit(SubmitRequest{URLs: []string{"https://www.amazon.com/dp/B0TEST00001"}})
	require.NoError(t, err)
	manager.Wait()

	view, _ := manager.Snapshot(job.ID)
	assert.Equal(t, JobCompleted, view.Status)
	require.Len(t, job.Results(), 1)
	assert.Equal(t, models.StatusCompleted, job.Results()[0].Status)
}
