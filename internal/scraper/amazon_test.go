package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/crosslist/internal/models"
)

const amazonFixture = `
<html><body>
<div id="wayfinding-breadcrumbs_feature_div">
  <a href="#">Home &amp; Kitchen</a>
  <a href="#">Coffee Makers</a>
</div>
<span id="productTitle">  Stainless Steel French Press Coffee Maker  </span>
<div id="bylineInfo">Visit the BrewCraft Store</div>
<div class="a-price"><span class="a-offscreen">$25.99</span></div>
<div id="imgTagWrapperId">
  <img src="https://m.media-amazon.com/images/I/71abc._SX300_.jpg">
</div>
<img id="landingImage"
  data-a-dynamic-image='{"https://m.media-amazon.com/images/I/81def._SX450_.jpg":[450,450],"https://m.media-amazon.com/images/I/71abc._SX300_.jpg":[300,300]}'>
<div id="feature-bullets">
  <ul>
    <li><span class="a-list-item">Double-wall insulated</span></li>
    <li><span class="a-list-item">34 oz capacity</span></li>
  </ul>
</div>
<div id="availability"><span>In Stock</span></div>
</body></html>`

func TestAmazonCleanURL(t *testing.T) {
	a := NewAmazon()

	tests := []struct {
		name   string
		url    string
		want   string
		wantID string
	}{
		{
			name:   "dp url with tracking params",
			url:    "https://www.amazon.com/Some-Product-Name/dp/B08N5WRWNW?ref=sr_1_1&pd_rd_w=xyz",
			want:   "https://www.amazon.com/dp/B08N5WRWNW",
			wantID: "B08N5WRWNW",
		},
		{
			name:   "gp product url",
			url:    "https://www.amazon.com/gp/product/B00EXAMPLE/ref=ppx_yo_dt",
			want:   "https://www.amazon.com/dp/B00EXAMPLE",
			wantID: "B00EXAMPLE",
		},
		{
			name:   "asin as bare path segment",
			url:    "https://amzn.com/B07XJ8C8F5",
			want:   "https://amzn.com/dp/B07XJ8C8F5",
			wantID: "B07XJ8C8F5",
		},
		{
			name:   "no asin passes through",
			url:    "https://www.amazon.com/stores/page/somewhere",
			want:   "https://www.amazon.com/stores/page/somewhere",
			wantID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, id, err := a.CleanURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestAmazonCleanURLIdempotent(t *testing.T) {
	a := NewAmazon()

	first, id, err := a.CleanURL("https://www.amazon.com/Thing/dp/B08N5WRWNW?tag=x")
	require.NoError(t, err)

	second, id2, err := a.CleanURL(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, id, id2)
}

func TestAmazonExtract(t *testing.T) {
	a := NewAmazon()

	raw := a.Extract(amazonFixture)

	assert.Equal(t, "Stainless Steel French Press Coffee Maker", raw["title"])
	assert.Equal(t, 25.99, raw["price"])
	assert.Equal(t, "BrewCraft", raw["brand"])
	assert.Equal(t, "Home & Kitchen > Coffee Makers", raw["category"])
	assert.Equal(t, "In Stock", raw["availability"])
	assert.Equal(t, "Double-wall insulated | 34 oz capacity", raw["description"])
}

func TestAmazonExtractImagesHighResAndDeduped(t *testing.T) {
	a := NewAmazon()

	raw := a.Extract(amazonFixture)
	images, ok := raw["images"].([]string)
	require.True(t, ok)

	// Both fixture sources resolve the 71abc image to the same high-res
	// URL, so it must appear once.
	assert.Contains(t, images, "https://m.media-amazon.com/images/I/71abc._SL1500_.jpg")
	assert.Contains(t, images, "https://m.media-amazon.com/images/I/81def._SL1500_.jpg")

	seen := make(map[string]int)
	for _, img := range images {
		seen[img]++
		assert.NotContains(t, img, "_SX300_")
		assert.NotContains(t, img, "_SX450_")
	}
	assert.Equal(t, 1, seen["https://m.media-amazon.com/images/I/71abc._SL1500_.jpg"])
	assert.LessOrEqual(t, len(images), models.MaxListingImages)
}

func TestAmazonTransform(t *testing.T) {
	a := NewAmazon()

	raw := a.Extract(amazonFixture)
	product, err := a.Transform(raw, "https://www.amazon.com/dp/B08N5WRWNW", "B08N5WRWNW")
	require.NoError(t, err)

	assert.Equal(t, models.SourceAmazon, product.Source)
	assert.Equal(t, "B08N5WRWNW", product.SourceProductID)
	assert.Equal(t, "https://www.amazon.com/dp/B08N5WRWNW", product.SourceURL)
	assert.Equal(t, "USD", product.Currency)
	assert.True(t, product.IsComplete())
	assert.NotNil(t, product.RawData)
}

func TestAmazonDetectBotBlock(t *testing.T) {
	a := NewAmazon()

	t.Run("clean page", func(t *testing.T) {
		assert.NoError(t, a.DetectBotBlock(amazonFixture))
	})

	t.Run("captcha page", func(t *testing.T) {
		err := a.DetectBotBlock(`<html>Type the characters you see: <form action="/captcha"></form></html>`)
		require.Error(t, err)
		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindCaptcha, se.Kind)
		assert.False(t, se.Retryable())
	})

	t.Run("dog page", func(t *testing.T) {
		err := a.DetectBotBlock(`<html>Sorry, we just need to make sure you're not a robot.</html>`)
		require.Error(t, err)
		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindBlockPage, se.Kind)
	})
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"$25.99", 25.99, true},
		{"$1,299.00", 1299.00, true},
		{"25", 25, true},
		{"$0.00", 0, false},
		{"no price here", 0, false},
	}

	for _, tt := range tests {
		got, ok := parsePrice(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}
