package models

import (
	"time"
)

// SourceMarketplace identifies where a product was scraped from.
type SourceMarketplace string

const (
	SourceAmazon  SourceMarketplace = "amazon"
	SourceWalmart SourceMarketplace = "walmart"
)

// TargetMarketplace identifies where a listing will be published.
type TargetMarketplace string

const (
	TargetEbay TargetMarketplace = "ebay"
)

// RiskLevel is the outcome of a compliance screening.
type RiskLevel string

const (
	RiskClear   RiskLevel = "clear"
	RiskWarning RiskLevel = "warning"
	RiskBlocked RiskLevel = "blocked"
)

// ConversionStatus is the terminal state of a conversion.
type ConversionStatus string

const (
	StatusPending    ConversionStatus = "pending"
	StatusProcessing ConversionStatus = "processing"
	StatusCompleted  ConversionStatus = "completed"
	StatusFailed     ConversionStatus = "failed"
)

// ListingStatus is the state of a marketplace listing.
type ListingStatus string

const (
	ListingDraftStatus ListingStatus = "draft"
	ListingActive      ListingStatus = "active"
	ListingEnded       ListingStatus = "ended"
	ListingError       ListingStatus = "error"
)

// MaxListingImages is the image cap enforced by the target marketplace.
const MaxListingImages = 12

// ScrapedProduct is the normalized result of one successful extraction.
// It is created once by a scraper's transform step and never mutated after.
type ScrapedProduct struct {
	Title           string            `json:"title"`
	Price           float64           `json:"price"`
	Currency        string            `json:"currency"`
	Brand           string            `json:"brand"`
	Images          []string          `json:"images"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Availability    string            `json:"availability"`
	Source          SourceMarketplace `json:"source_marketplace"`
	SourceURL       string            `json:"source_url"`
	SourceProductID string            `json:"source_product_id"`
	RawData         map[string]any    `json:"raw_data,omitempty"`
	ScrapedAt       time.Time         `json:"scraped_at"`
}

// NewScrapedProduct returns a product stamped with its origin and the
// current time. Field values are filled in by the scraper's transform step.
func NewScrapedProduct(source SourceMarketplace, url, productID string) *ScrapedProduct {
	return &ScrapedProduct{
		Currency:        "USD",
		Source:          source,
		SourceURL:       url,
		SourceProductID: productID,
		ScrapedAt:       time.Now(),
	}
}

// HasImages reports whether at least one image URL was extracted.
func (p *ScrapedProduct) HasImages() bool {
	return len(p.Images) > 0
}

// IsComplete reports whether the product carries the minimum fields a
// listing can be built from: a title, a positive price and one image.
func (p *ScrapedProduct) IsComplete() bool {
	return p.Title != "" && p.Price > 0 && p.HasImages()
}

// ListingDraft is a prepared, not-yet-published listing for a target
// marketplace.
type ListingDraft struct {
	Title           string            `json:"title"`
	DescriptionHTML string            `json:"description_html"`
	Price           float64           `json:"price"`
	Currency        string            `json:"currency"`
	Images          []string          `json:"images"`
	CategoryID      string            `json:"category_id"`
	Condition       string            `json:"condition"`
	SKU             string            `json:"sku"`
	Quantity        int               `json:"quantity"`
	Target          TargetMarketplace `json:"target_marketplace"`
	SourceProductID string            `json:"source_product_id"`
	Source          SourceMarketplace `json:"source_marketplace"`
}

// ListingResult is the outcome of a listing creation attempt.
type ListingResult struct {
	MarketplaceItemID string        `json:"marketplace_item_id"`
	Status            ListingStatus `json:"status"`
	URL               string        `json:"url"`
	FeesEstimate      float64       `json:"fees_estimate"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// ProfitBreakdown itemizes the economics of a conversion.
type ProfitBreakdown struct {
	Cost         float64 `json:"cost"`
	SellPrice    float64 `json:"sell_price"`
	EbayFee      float64 `json:"ebay_fee"`
	PaymentFee   float64 `json:"payment_fee"`
	ShippingCost float64 `json:"shipping_cost"`
	Profit       float64 `json:"profit"`
	MarginPct    float64 `json:"margin_pct"`
}

// IsProfitable reports whether the breakdown nets out positive.
func (b *ProfitBreakdown) IsProfitable() bool {
	return b.Profit > 0
}

// TotalFees is the sum of all deductions from the sell price.
func (b *ProfitBreakdown) TotalFees() float64 {
	return b.EbayFee + b.PaymentFee + b.ShippingCost
}

// ComplianceResult is the verdict of a brand/keyword screening.
type ComplianceResult struct {
	IsCompliant bool      `json:"is_compliant"`
	Violations  []string  `json:"violations"`
	Brand       string    `json:"brand"`
	RiskLevel   RiskLevel `json:"risk_level"`
	CheckedAt   time.Time `json:"checked_at"`
}

// HasViolations reports whether any violation reasons were recorded.
func (r *ComplianceResult) HasViolations() bool {
	return len(r.Violations) > 0
}
