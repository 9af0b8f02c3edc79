package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/crosslist/internal/models"
)

func testChecker() *Checker {
	return NewCheckerWithBrands([]string{"Nike", "Rolex", "Louis Vuitton", "Pandora"})
}

func TestCheckBrand(t *testing.T) {
	c := testChecker()

	tests := []struct {
		name      string
		brand     string
		wantRisk  models.RiskLevel
		compliant bool
	}{
		{name: "exact match blocked", brand: "Nike", wantRisk: models.RiskBlocked, compliant: false},
		{name: "case insensitive match", brand: "ROLEX", wantRisk: models.RiskBlocked, compliant: false},
		{name: "near match warns", brand: "Nikee", wantRisk: models.RiskWarning, compliant: true},
		{name: "unknown brand clear", brand: "BrewCraft", wantRisk: models.RiskClear, compliant: true},
		{name: "empty brand warns", brand: "", wantRisk: models.RiskWarning, compliant: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.CheckBrand(tt.brand)
			assert.Equal(t, tt.wantRisk, result.RiskLevel)
			assert.Equal(t, tt.compliant, result.IsCompliant)
		})
	}
}

func TestCheckProductRestrictedKeywords(t *testing.T) {
	c := testChecker()

	product := &models.ScrapedProduct{
		Title:       "Designer Handbag replica, premium quality",
		Brand:       "BrewCraft",
		Description: "An imitation of the real thing",
	}

	result := c.Check(product)
	assert.Equal(t, models.RiskWarning, result.RiskLevel)
	assert.True(t, result.IsCompliant)
	require.Len(t, result.Violations, 2)
	assert.Contains(t, result.Violations[0], "replica")
	assert.Contains(t, result.Violations[1], "imitation")
}

func TestCheckProductBlockedBrandWins(t *testing.T) {
	c := testChecker()

	product := &models.ScrapedProduct{
		Title:       "Nike Air replica sneakers",
		Brand:       "Nike",
		Description: "",
	}

	result := c.Check(product)
	assert.Equal(t, models.RiskBlocked, result.RiskLevel)
	assert.False(t, result.IsCompliant)
	// Brand violation plus keyword violation.
	assert.Len(t, result.Violations, 2)
}

func TestCheckCleanProduct(t *testing.T) {
	c := testChecker()

	product := &models.ScrapedProduct{
		Title:       "Stainless Steel French Press",
		Brand:       "BrewCraft",
		Description: "Double-wall insulated coffee maker",
	}

	result := c.Check(product)
	assert.Equal(t, models.RiskClear, result.RiskLevel)
	assert.True(t, result.IsCompliant)
	assert.False(t, result.HasViolations())
}

func TestNewCheckerLoadsEmbeddedList(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)
	assert.Greater(t, c.BrandCount(), 0)
	assert.True(t, c.IsBrandProtected("nike"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("nike", "nike"))
	assert.Equal(t, 0.0, similarity("", "nike"))
	assert.InDelta(t, 0.889, similarity("nikee", "nike"), 0.001)
	assert.Less(t, similarity("brewcraft", "nike"), fuzzyMatchThreshold)
}
