package pricing

import (
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DefaultPriceGuardThreshold is the relative change above which a staged
// merchant price is flagged.
var DefaultPriceGuardThreshold = decimal.RequireFromString("0.30")

// PriceVariance describes a staged price that moved more than the guard allows.
// DeltaPercent is a fraction (0.25 = 25%) and is +Inf for a zero baseline.
type PriceVariance struct {
	SKU           string          `json:"sku"`
	PreviousPrice decimal.Decimal `json:"previousPrice"`
	NextPrice     decimal.Decimal `json:"nextPrice"`
	DeltaPercent  float64         `json:"deltaPercent"`
}

type priceVarianceJSON struct {
	SKU           string          `json:"sku"`
	PreviousPrice decimal.Decimal `json:"previousPrice"`
	NextPrice     decimal.Decimal `json:"nextPrice"`
	DeltaPercent  json.RawMessage `json:"deltaPercent"`
}

// MarshalJSON renders an infinite delta as the string "Infinity".
func (v PriceVariance) MarshalJSON() ([]byte, error) {
	delta := json.RawMessage(`"Infinity"`)
	if !math.IsInf(v.DeltaPercent, 0) && !math.IsNaN(v.DeltaPercent) {
		raw, err := json.Marshal(v.DeltaPercent)
		if err != nil {
			return nil, fmt.Errorf("price variance: encode delta: %w", err)
		}
		delta = raw
	}
	return json.Marshal(priceVarianceJSON{
		SKU:           v.SKU,
		PreviousPrice: v.PreviousPrice,
		NextPrice:     v.NextPrice,
		DeltaPercent:  delta,
	})
}

// UnmarshalJSON accepts a numeric delta or the string "Infinity".
func (v *PriceVariance) UnmarshalJSON(data []byte) error {
	var raw priceVarianceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("price variance: %w", err)
	}
	v.SKU = raw.SKU
	v.PreviousPrice = raw.PreviousPrice
	v.NextPrice = raw.NextPrice
	if string(raw.DeltaPercent) == `"Infinity"` {
		v.DeltaPercent = math.Inf(1)
		return nil
	}
	if err := json.Unmarshal(raw.DeltaPercent, &v.DeltaPercent); err != nil {
		return fmt.Errorf("price variance: delta: %w", err)
	}
	return nil
}

// PriceGuard compares staged merchant prices against production.
type PriceGuard struct {
	Threshold decimal.Decimal
}

// NewPriceGuard builds a guard; a non-positive threshold falls back to the default.
func NewPriceGuard(threshold decimal.Decimal) PriceGuard {
	if !threshold.IsPositive() {
		threshold = DefaultPriceGuardThreshold
	}
	return PriceGuard{Threshold: threshold}
}

// Evaluate reports every staged record whose SKU exists in production and whose
// price moved by more than the threshold. New SKUs never vary. A zero
// production price is always reported with an infinite delta.
func (g PriceGuard) Evaluate(production, next []MerchantRecord) []PriceVariance {
	threshold := g.Threshold
	if !threshold.IsPositive() {
		threshold = DefaultPriceGuardThreshold
	}
	current := make(map[string]decimal.Decimal, len(production))
	for _, rec := range production {
		current[rec.SKU] = rec.Price
	}
	alerts := make([]PriceVariance, 0)
	for _, rec := range next {
		prev, ok := current[rec.SKU]
		if !ok {
			continue
		}
		if prev.IsZero() {
			alerts = append(alerts, PriceVariance{
				SKU:           rec.SKU,
				PreviousPrice: prev,
				NextPrice:     rec.Price,
				DeltaPercent:  math.Inf(1),
			})
			continue
		}
		delta := rec.Price.Sub(prev).Abs().Div(prev)
		if !delta.GreaterThan(threshold) {
			continue
		}
		alerts = append(alerts, PriceVariance{
			SKU:           rec.SKU,
			PreviousPrice: prev,
			NextPrice:     rec.Price,
			DeltaPercent:  delta.InexactFloat64(),
		})
	}
	return alerts
}
