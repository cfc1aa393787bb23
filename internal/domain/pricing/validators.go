package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coachpo/pricestage/internal/domain/tabular"
	"github.com/coachpo/pricestage/internal/domain/validate"
)

// CSV column headers. Matching is exact.
const (
	ColItemName     = "Item Name"
	ColCategory     = "Category"
	ColAveragePrice = "Average Price"
	ColSourceLabel  = "Source Label"
	ColLastUpdated  = "Last Updated"
	ColSKU          = "SKU"
	ColUnit         = "Unit"
	ColPrice        = "Price"
	ColPackSize     = "Pack Size"
)

// BenchmarkColumns lists the required benchmark headers in file order.
var BenchmarkColumns = []string{ColItemName, ColCategory, ColAveragePrice, ColSourceLabel, ColLastUpdated}

// MerchantColumns lists the required merchant headers in file order.
var MerchantColumns = []string{ColSKU, ColItemName, ColUnit, ColCategory, ColPrice}

// rowReader wraps one row so every lookup records a missing-column issue once.
type rowReader struct {
	row tabular.Row
	idx int
	c   *validate.Collector
}

func (r rowReader) present(column string) bool {
	if r.row.Has(column) {
		return true
	}
	r.c.Add(validate.Path(r.idx, column), fmt.Sprintf("missing column %q", column))
	return false
}

func (r rowReader) str(column string) (string, bool) {
	if !r.present(column) {
		return "", false
	}
	value, _ := r.row.Get(column)
	return validate.Take(r.c, validate.RequireString(value, true, validate.Path(r.idx, column), column))
}

func (r rowReader) price(column string) (decimal.Decimal, bool) {
	if !r.present(column) {
		return decimal.Zero, false
	}
	value, _ := r.row.Get(column)
	return validate.Take(r.c, validate.ParseDecimal(value, validate.Path(r.idx, column), column, validate.WithMin(decimal.Zero)))
}

func (r rowReader) date(column string) (validate.Date, bool) {
	if !r.present(column) {
		return validate.Date{}, false
	}
	value, _ := r.row.Get(column)
	return validate.Take(r.c, validate.ParseDate(value, validate.Path(r.idx, column), column))
}

// ValidateBenchmarkRows assembles benchmark records from parsed rows. A row
// contributes a record only when all of its required fields parsed.
func ValidateBenchmarkRows(rows []tabular.Row) validate.Report[BenchmarkRecord] {
	var c validate.Collector
	data := make([]BenchmarkRecord, 0, len(rows))
	for i, row := range rows {
		r := rowReader{row: row, idx: i, c: &c}
		itemName, okName := r.str(ColItemName)
		category, okCategory := r.str(ColCategory)
		price, okPrice := r.price(ColAveragePrice)
		source, okSource := r.str(ColSourceLabel)
		updated, okUpdated := r.date(ColLastUpdated)
		if !(okName && okCategory && okPrice && okSource && okUpdated) {
			continue
		}
		data = append(data, BenchmarkRecord{
			ItemName:     itemName,
			Category:     category,
			AveragePrice: price,
			SourceLabel:  source,
			LastUpdated:  updated,
		})
	}
	return validate.NewReport(data, &c)
}

// ValidateMerchantRows assembles merchant records from parsed rows. SKUs must
// be unique within the call; every repeat is reported without skipping the
// row's other checks.
func ValidateMerchantRows(rows []tabular.Row) validate.Report[MerchantRecord] {
	var c validate.Collector
	data := make([]MerchantRecord, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		r := rowReader{row: row, idx: i, c: &c}
		sku, okSKU := r.str(ColSKU)
		duplicate := false
		if okSKU {
			if _, exists := seen[sku]; exists {
				duplicate = true
				c.Add(validate.Path(i, ColSKU), fmt.Sprintf("Duplicate SKU %q", sku))
			}
			seen[sku] = struct{}{}
		}
		itemName, okName := r.str(ColItemName)
		unit, okUnit := r.str(ColUnit)
		category, okCategory := r.str(ColCategory)
		price, okPrice := r.price(ColPrice)

		record := MerchantRecord{
			SKU:      sku,
			ItemName: itemName,
			Unit:     unit,
			Category: category,
			Price:    price,
		}
		okOptional := true
		if raw, found := row.Get(ColPackSize); found {
			record.PackSize, _ = validate.OptionalString(raw)
		}
		if raw, found := row.Get(ColLastUpdated); found {
			if _, has := validate.OptionalString(raw); has {
				record.LastUpdated, okOptional = validate.Take(&c, validate.ParseDate(raw, validate.Path(i, ColLastUpdated), ColLastUpdated))
			}
		}
		if duplicate || !(okSKU && okName && okUnit && okCategory && okPrice && okOptional) {
			continue
		}
		data = append(data, record)
	}
	return validate.NewReport(data, &c)
}
