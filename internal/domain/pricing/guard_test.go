package pricing

import (
	"math"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func merchant(sku, price string) MerchantRecord {
	return MerchantRecord{SKU: sku, ItemName: "Item " + sku, Unit: "each", Category: "General", Price: decimal.RequireFromString(price)}
}

func TestPriceGuardFlagsLargeIncrease(t *testing.T) {
	guard := NewPriceGuard(decimal.Zero)
	alerts := guard.Evaluate([]MerchantRecord{merchant("1001", "180")}, []MerchantRecord{merchant("1001", "250")})
	require.Len(t, alerts, 1)
	require.Equal(t, "1001", alerts[0].SKU)
	require.True(t, alerts[0].PreviousPrice.Equal(decimal.NewFromInt(180)))
	require.True(t, alerts[0].NextPrice.Equal(decimal.NewFromInt(250)))
	require.InDelta(t, 0.3889, alerts[0].DeltaPercent, 0.0001)
}

func TestPriceGuardIgnoresSmallChange(t *testing.T) {
	guard := NewPriceGuard(DefaultPriceGuardThreshold)
	alerts := guard.Evaluate([]MerchantRecord{merchant("1001", "180")}, []MerchantRecord{merchant("1001", "200")})
	require.Empty(t, alerts)
}

func TestPriceGuardThresholdIsStrict(t *testing.T) {
	guard := NewPriceGuard(DefaultPriceGuardThreshold)
	alerts := guard.Evaluate([]MerchantRecord{merchant("1", "100")}, []MerchantRecord{merchant("1", "130"), merchant("1", "70")})
	require.Empty(t, alerts)
}

func TestPriceGuardDecreaseCounts(t *testing.T) {
	alerts := NewPriceGuard(DefaultPriceGuardThreshold).Evaluate(
		[]MerchantRecord{merchant("1", "100")},
		[]MerchantRecord{merchant("1", "50")})
	require.Len(t, alerts, 1)
	require.InDelta(t, 0.5, alerts[0].DeltaPercent, 1e-9)
}

func TestPriceGuardZeroBaseline(t *testing.T) {
	alerts := NewPriceGuard(DefaultPriceGuardThreshold).Evaluate(
		[]MerchantRecord{merchant("1001", "0")},
		[]MerchantRecord{merchant("1001", "5")})
	require.Len(t, alerts, 1)
	require.True(t, math.IsInf(alerts[0].DeltaPercent, 1))
}

func TestPriceGuardNewSKUNeverVaries(t *testing.T) {
	alerts := NewPriceGuard(DefaultPriceGuardThreshold).Evaluate(nil, []MerchantRecord{merchant("9", "1000")})
	require.NotNil(t, alerts)
	require.Empty(t, alerts)
}

func TestPriceGuardCustomThreshold(t *testing.T) {
	guard := NewPriceGuard(decimal.RequireFromString("0.05"))
	alerts := guard.Evaluate([]MerchantRecord{merchant("1", "100")}, []MerchantRecord{merchant("1", "106")})
	require.Len(t, alerts, 1)
}

func TestPriceVarianceJSONInfinity(t *testing.T) {
	in := PriceVariance{SKU: "1", PreviousPrice: decimal.Zero, NextPrice: decimal.NewFromInt(3), DeltaPercent: math.Inf(1)}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"deltaPercent":"Infinity"`)

	var out PriceVariance
	require.NoError(t, json.Unmarshal(raw, &out))
	require.True(t, math.IsInf(out.DeltaPercent, 1))

	raw, err = json.Marshal(PriceVariance{SKU: "2", DeltaPercent: 0.5})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, 0.5, out.DeltaPercent)
}
