// Package pricing defines the benchmark and merchant price record kinds, their
// natural keys, their CSV validators and the merchant price-variance guard.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/pricestage/internal/domain/validate"
)

// Dataset names used in audit events and storage keys.
const (
	DatasetBenchmark = "zppa"
	DatasetMerchant  = "merchant"
)

// BenchmarkRecord is one line of the centralized benchmark price list.
type BenchmarkRecord struct {
	ItemName     string          `json:"itemName"`
	Category     string          `json:"category"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	SourceLabel  string          `json:"sourceLabel"`
	LastUpdated  validate.Date   `json:"lastUpdated"`
}

// BenchmarkKey is the composite natural key "<item name>::<category>".
func BenchmarkKey(r BenchmarkRecord) string {
	return r.ItemName + "::" + r.Category
}

// MerchantRecord is one line of a merchant-submitted price list.
// PackSize is empty and LastUpdated is zero when not supplied.
type MerchantRecord struct {
	SKU         string          `json:"sku"`
	ItemName    string          `json:"itemName"`
	Unit        string          `json:"unit"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	PackSize    string          `json:"packSize,omitempty"`
	LastUpdated validate.Date   `json:"lastUpdated"`
}

// MerchantKey is the SKU.
func MerchantKey(r MerchantRecord) string {
	return r.SKU
}
