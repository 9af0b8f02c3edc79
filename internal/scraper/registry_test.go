package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/proxy"
)

func newRegistryScraper(impl Marketplace) *Scraper {
	pool := proxy.NewPool(proxy.Config{}, nil)
	return New(impl, pool, &fakeSessionPool{sessions: []*fakeSession{{status: 200}}}, Config{}, metrics.New())
}

func TestRegistryGetIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	s := newRegistryScraper(&fakeMarketplace{})
	require.NoError(t, r.Register(s))

	for _, source := range []string{"amazon", "AMAZON", "Amazon"} {
		got, err := r.Get(source)
		require.NoError(t, err)
		assert.Same(t, s, got, source)
	}
}

func TestRegistryMemoizesInstances(t *testing.T) {
	r := NewRegistry()
	s := newRegistryScraper(&fakeMarketplace{})
	require.NoError(t, r.Register(s))

	first, err := r.Get("amazon")
	require.NoError(t, err)
	second, err := r.Get("amazon")
	require.NoError(t, err)

	// Same instance both times, so the marketplace keeps one breaker.
	assert.Same(t, first, second)
	assert.Same(t, first.Breaker(), second.Breaker())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newRegistryScraper(&fakeMarketplace{})))

	err := r.Register(newRegistryScraper(&fakeMarketplace{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryUnknownSourceListsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newRegistryScraper(&fakeMarketplace{})))

	_, err := r.Get("etsy")
	var unsupported *UnsupportedSourceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "etsy", unsupported.Source)
	assert.Equal(t, []string{"amazon"}, unsupported.Registered)
	assert.Contains(t, err.Error(), "amazon")
}

func TestRegistrySources(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Sources())

	require.NoError(t, r.Register(newRegistryScraper(&fakeMarketplace{})))
	require.NoError(t, r.Register(newRegistryScraper(NewWalmart(""))))

	assert.Equal(t, []string{"amazon", "walmart"}, r.Sources())
	assert.Len(t, r.Scrapers(), 2)
}
