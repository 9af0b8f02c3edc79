package compliance

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/crosslist/internal/models"
)

// Keywords that indicate restricted or high-risk items on the target
// marketplace.
var restrictedKeywords = []string{
	"replica",
	"counterfeit",
	"knockoff",
	"fake",
	"imitation",
	"inspired by",
	"style of",
	"not authentic",
	"unauthorized",
	"bootleg",
}

// fuzzyMatchThreshold is the minimum similarity ratio for a brand to count
// as a near match of a protected brand.
const fuzzyMatchThreshold = 0.85

//go:embed brands.json
var defaultBrandsJSON []byte

// Checker screens products against the VeRO protected-brand list and
// restricted keyword patterns before a listing draft is built.
type Checker struct {
	brands      []string
	brandsLower map[string]string
	logger      *slog.Logger
}

// NewChecker loads the embedded protected-brand list.
func NewChecker() (*Checker, error) {
	var brands []string
	if err := json.Unmarshal(defaultBrandsJSON, &brands); err != nil {
		return nil, fmt.Errorf("failed to parse embedded brand list: %w", err)
	}
	return NewCheckerWithBrands(brands), nil
}

// NewCheckerWithBrands builds a checker over an explicit brand list.
func NewCheckerWithBrands(brands []string) *Checker {
	lower := make(map[string]string, len(brands))
	for _, b := range brands {
		lower[strings.ToLower(b)] = b
	}
	logger := slog.Default().With("component", "compliance")
	logger.Info("loaded protected brand list", "count", len(brands))

	return &Checker{brands: brands, brandsLower: lower, logger: logger}
}

// BrandCount is the number of protected brands loaded.
func (c *Checker) BrandCount() int {
	return len(c.brands)
}

// IsBrandProtected reports whether the brand is an exact (case-insensitive)
// match of a protected brand.
func (c *Checker) IsBrandProtected(brand string) bool {
	_, ok := c.brandsLower[strings.ToLower(strings.TrimSpace(brand))]
	return ok
}

// CheckBrand classifies one brand name. Exact matches are BLOCKED, near
// matches are WARNING, everything else is CLEAR. A missing brand is a
// WARNING since it cannot be cleared.
func (c *Checker) CheckBrand(brand string) *models.ComplianceResult {
	clean := strings.TrimSpace(brand)
	if clean == "" {
		return &models.ComplianceResult{
			IsCompliant: true,
			Brand:       brand,
			RiskLevel:   models.RiskWarning,
			Violations:  []string{"No brand specified, manual review recommended"},
		}
	}
	lower := strings.ToLower(clean)

	if protected, ok := c.brandsLower[lower]; ok {
		return &models.ComplianceResult{
			IsCompliant: false,
			Brand:       clean,
			RiskLevel:   models.RiskBlocked,
			Violations: []string{
				fmt.Sprintf("Brand %q is on the VeRO protected brands list (%s)", clean, protected),
			},
		}
	}

	if match := c.fuzzyMatch(lower); match != "" {
		return &models.ComplianceResult{
			IsCompliant: true,
			Brand:       clean,
			RiskLevel:   models.RiskWarning,
			Violations: []string{
				fmt.Sprintf("Brand %q closely matches VeRO brand %q, listing may be flagged", clean, match),
			},
		}
	}

	return &models.ComplianceResult{
		IsCompliant: true,
		Brand:       clean,
		RiskLevel:   models.RiskClear,
	}
}

// Check runs the full compliance screen: brand plus restricted keywords in
// the title and description. The highest risk wins.
func (c *Checker) Check(product *models.ScrapedProduct) *models.ComplianceResult {
	result := c.CheckBrand(product.Brand)
	risk := result.RiskLevel
	violations := result.Violations

	if kw := c.checkRestrictedKeywords(product.Title, product.Description); len(kw) > 0 {
		violations = append(violations, kw...)
		if risk != models.RiskBlocked {
			risk = models.RiskWarning
		}
	}

	return &models.ComplianceResult{
		IsCompliant: risk != models.RiskBlocked,
		Brand:       product.Brand,
		RiskLevel:   risk,
		Violations:  violations,
	}
}

func (c *Checker) checkRestrictedKeywords(title, description string) []string {
	combined := strings.ToLower(title + " " + description)

	var violations []string
	for _, keyword := range restrictedKeywords {
		if strings.Contains(combined, keyword) {
			violations = append(violations,
				fmt.Sprintf("Restricted keyword %q found in product text", keyword))
		}
	}
	return violations
}

// fuzzyMatch returns the protected brand most similar to the input when the
// similarity clears the threshold.
func (c *Checker) fuzzyMatch(brandLower string) string {
	best := ""
	bestRatio := 0.0

	for _, candidate := range c.brands {
		ratio := similarity(brandLower, strings.ToLower(candidate))
		if ratio >= fuzzyMatchThreshold && ratio > bestRatio {
			bestRatio = ratio
			best = candidate
		}
	}
	return best
}

// similarity is 2*LCS/(len(a)+len(b)), the classic sequence-match ratio.
// 1.0 means identical, 0.0 means nothing in common.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2.0 * float64(lcs) / float64(len(a)+len(b))
}
