package ingest

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/snapshot"
)

// BenchmarkService is the pipeline for the centralised benchmark price list.
type BenchmarkService = Service[pricing.BenchmarkRecord]

// MerchantService is the pipeline for merchant price lists.
type MerchantService = Service[pricing.MerchantRecord]

// BenchmarkKind describes benchmark records keyed by item name and category.
func BenchmarkKind() Kind[pricing.BenchmarkRecord] {
	return Kind[pricing.BenchmarkRecord]{
		Dataset:  pricing.DatasetBenchmark,
		Validate: pricing.ValidateBenchmarkRows,
		KeyOf:    pricing.BenchmarkKey,
	}
}

// MerchantKind describes merchant records keyed by SKU and guarded against
// price swings above threshold.
func MerchantKind(threshold decimal.Decimal) Kind[pricing.MerchantRecord] {
	return Kind[pricing.MerchantRecord]{
		Dataset:  pricing.DatasetMerchant,
		Validate: pricing.ValidateMerchantRows,
		KeyOf:    pricing.MerchantKey,
		Guard:    merchantGuard(threshold),
		GuardFor: merchantGuard,
	}
}

func merchantGuard(threshold decimal.Decimal) Guard[pricing.MerchantRecord] {
	return pricing.NewPriceGuard(threshold).Evaluate
}

// NewBenchmarkPipeline builds the benchmark service over slots.
func NewBenchmarkPipeline(slots snapshot.Slots[pricing.BenchmarkRecord], opts ...Option) (*BenchmarkService, error) {
	return New(BenchmarkKind(), slots, opts...)
}

// NewMerchantPipeline builds the merchant service over slots with the default
// guard threshold unless WithPriceGuardThreshold overrides it.
func NewMerchantPipeline(slots snapshot.Slots[pricing.MerchantRecord], opts ...Option) (*MerchantService, error) {
	return New(MerchantKind(pricing.DefaultPriceGuardThreshold), slots, opts...)
}
