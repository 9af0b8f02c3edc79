package listing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/crosslist/internal/models"
	"github.com/maltedev/crosslist/internal/pricing"
)

// Lister publishes a listing draft to a target marketplace. Create must be
// idempotent-safe; callers may retry at their discretion.
type Lister interface {
	Create(ctx context.Context, draft *models.ListingDraft) (*models.ListingResult, error)
}

// SandboxLister simulates marketplace publishing without calling a real
// listing API. It assigns a synthetic item id and reports the listing as
// active, which is enough for end-to-end runs against a sandbox account.
type SandboxLister struct {
	logger *slog.Logger
}

func NewSandboxLister() *SandboxLister {
	return &SandboxLister{logger: slog.Default().With("component", "lister")}
}

func (l *SandboxLister) Create(ctx context.Context, draft *models.ListingDraft) (*models.ListingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if draft.Title == "" || draft.Price <= 0 {
		return nil, fmt.Errorf("draft is not publishable: title=%q price=%.2f", draft.Title, draft.Price)
	}

	itemID := uuid.New().String()
	l.logger.Info("sandbox listing created", "item_id", itemID, "sku", draft.SKU, "price", draft.Price)

	return &models.ListingResult{
		MarketplaceItemID: itemID,
		Status:            models.ListingActive,
		URL:               fmt.Sprintf("https://sandbox.ebay.com/itm/%s", itemID),
		FeesEstimate:      pricing.EstimateFees(draft.Price),
		CreatedAt:         time.Now(),
	}, nil
}

// DraftResult synthesizes a local draft-status result for conversions that
// do not request publishing.
func DraftResult(draft *models.ListingDraft) *models.ListingResult {
	return &models.ListingResult{
		Status:       models.ListingDraftStatus,
		FeesEstimate: pricing.EstimateFees(draft.Price),
		CreatedAt:    time.Now(),
	}
}
