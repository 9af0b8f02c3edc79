package pricing

import (
	"log/slog"
	"math"
	"strings"

	"github.com/maltedev/crosslist/internal/models"
)

// eBay final value fee rates by category keyword.
var ebayFeeRates = map[string]float64{
	"default":             0.1325,
	"books":               0.1455,
	"clothing":            0.1325,
	"electronics":         0.1325,
	"collectibles":        0.1325,
	"home_garden":         0.1325,
	"sporting_goods":      0.1325,
	"toys":                0.1325,
	"jewelry":             0.1550,
	"musical_instruments": 0.0635,
	"business_industrial": 0.0525,
}

// Managed payments processing fee: 2.9% plus $0.30 per transaction.
const (
	paymentProcessingRate  = 0.029
	paymentProcessingFixed = 0.30
)

// DefaultShippingCost is used when no estimate is available.
const DefaultShippingCost = 5.00

// Engine prices listings: fee-aware profit breakdowns, suggested prices
// for a target margin, and break-even floors.
type Engine struct {
	defaultShipping float64
	logger          *slog.Logger
}

func NewEngine(defaultShipping float64) *Engine {
	if defaultShipping <= 0 {
		defaultShipping = DefaultShippingCost
	}
	return &Engine{
		defaultShipping: defaultShipping,
		logger:          slog.Default().With("component", "pricing"),
	}
}

// FeeRate returns the final value fee rate for a category string. Category
// text is matched loosely against known rate keys.
func (e *Engine) FeeRate(category string) float64 {
	if category != "" {
		normalized := strings.ReplaceAll(strings.ToLower(category), " ", "_")
		normalized = strings.ReplaceAll(normalized, "&", "")
		for key, rate := range ebayFeeRates {
			if key != "default" && strings.Contains(normalized, key) {
				return rate
			}
		}
	}
	return ebayFeeRates["default"]
}

// CalculateProfit itemizes the economics of selling at sellPrice an item
// acquired at cost.
func (e *Engine) CalculateProfit(cost, sellPrice float64, category string) *models.ProfitBreakdown {
	if sellPrice <= 0 {
		marginPct := 0.0
		if cost > 0 {
			marginPct = -100.0
		}
		return &models.ProfitBreakdown{
			Cost:      cost,
			SellPrice: sellPrice,
			Profit:    -cost,
			MarginPct: marginPct,
		}
	}

	ebayFee := round2(sellPrice * e.FeeRate(category))
	paymentFee := round2(sellPrice*paymentProcessingRate + paymentProcessingFixed)
	shipping := e.defaultShipping

	profit := round2(sellPrice - cost - ebayFee - paymentFee - shipping)
	marginPct := round2(profit / sellPrice * 100)

	return &models.ProfitBreakdown{
		Cost:         cost,
		SellPrice:    sellPrice,
		EbayFee:      ebayFee,
		PaymentFee:   paymentFee,
		ShippingCost: shipping,
		Profit:       profit,
		MarginPct:    marginPct,
	}
}

// SuggestPrice computes the sell price that yields the target margin after
// all fees: (cost + shipping + fixed) / (1 - feeRate - paymentRate - margin).
// A margin so high the denominator closes falls back to break-even.
func (e *Engine) SuggestPrice(cost, targetMargin float64) float64 {
	feeRate := ebayFeeRates["default"]
	denominator := 1.0 - feeRate - paymentProcessingRate - targetMargin

	if denominator <= 0 {
		e.logger.Warn("target margin too high, returning break-even price",
			"target_margin", targetMargin)
		return e.BreakEven(cost)
	}

	return round2((cost + e.defaultShipping + paymentProcessingFixed) / denominator)
}

// BreakEven is the minimum sell price where profit is zero.
func (e *Engine) BreakEven(cost float64) float64 {
	feeRate := ebayFeeRates["default"]
	denominator := 1.0 - feeRate - paymentProcessingRate
	if denominator <= 0 {
		return cost * 2
	}
	return round2((cost + e.defaultShipping + paymentProcessingFixed) / denominator)
}

// EstimateFees is the expected selling cost at sellPrice under the default
// category rate: final value fee plus payment processing.
func EstimateFees(sellPrice float64) float64 {
	if sellPrice <= 0 {
		return 0
	}
	return round2(sellPrice*ebayFeeRates["default"] + sellPrice*paymentProcessingRate + paymentProcessingFixed)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
