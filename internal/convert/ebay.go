package convert

import (
	"log/slog"

	"github.com/maltedev/crosslist/internal/models"
)

// skuPrefix marks listings created by this system.
const skuPrefix = "CL-"

// EbayConverter turns scraped products into eBay-ready listing drafts:
// optimized title, inline-CSS HTML description, capped image set, and a
// SKU derived from the source product id.
type EbayConverter struct {
	logger *slog.Logger
}

func NewEbayConverter() *EbayConverter {
	return &EbayConverter{logger: slog.Default().With("component", "converter")}
}

func (c *EbayConverter) Convert(product *models.ScrapedProduct) (*models.ListingDraft, error) {
	images := product.Images
	if len(images) > models.MaxListingImages {
		images = images[:models.MaxListingImages]
	}

	title := OptimizeTitle(product.Title)
	if len(title) != len(product.Title) {
		c.logger.Debug("title optimized",
			"original_length", len(product.Title), "optimized_length", len(title))
	}

	return &models.ListingDraft{
		Title:           title,
		DescriptionHTML: BuildDescription(product),
		Price:           product.Price,
		Currency:        product.Currency,
		Images:          images,
		Condition:       "New",
		SKU:             skuPrefix + product.SourceProductID,
		Quantity:        1,
		Target:          models.TargetEbay,
		SourceProductID: product.SourceProductID,
		Source:          product.Source,
	}, nil
}
