package pricing

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/pricestage/internal/domain/tabular"
	"github.com/coachpo/pricestage/internal/domain/validate"
)

const benchmarkCSV = "Item Name,Category,Average Price,Source Label,Last Updated\n" +
	"Cement 50kg,Building Materials,180.00,ZPPA 2025 Q1,2025-03-31"

func TestValidateBenchmarkRowsHappyPath(t *testing.T) {
	report := ValidateBenchmarkRows(tabular.Parse(benchmarkCSV))
	require.True(t, report.Valid())
	require.Empty(t, report.Issues)
	require.Len(t, report.Data, 1)

	rec := report.Data[0]
	require.Equal(t, "Cement 50kg", rec.ItemName)
	require.Equal(t, "Building Materials", rec.Category)
	require.True(t, rec.AveragePrice.Equal(decimal.NewFromInt(180)))
	require.Equal(t, "ZPPA 2025 Q1", rec.SourceLabel)
	require.Equal(t, validate.Date{Year: 2025, Month: time.March, Day: 31}, rec.LastUpdated)
	require.Equal(t, "Cement 50kg::Building Materials", BenchmarkKey(rec))
}

func TestValidateBenchmarkRowsHeaderOnlyIsValidAndEmpty(t *testing.T) {
	report := ValidateBenchmarkRows(tabular.Parse("Item Name,Category,Average Price,Source Label,Last Updated\n"))
	require.True(t, report.Valid())
	require.Empty(t, report.Data)
	require.Empty(t, report.Issues)
}

func TestValidateBenchmarkRowsCollectsFieldIssues(t *testing.T) {
	csv := "Item Name,Category,Average Price,Source Label,Last Updated\n" +
		",Building Materials,abc,ZPPA,2025-02-30\n" +
		"Sand,Aggregates,-1,ZPPA,2025-01-01\n" +
		"Stone,Aggregates,12.5,ZPPA,2025-01-01"
	report := ValidateBenchmarkRows(tabular.Parse(csv))
	require.False(t, report.Valid())

	paths := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		paths = append(paths, issue.Path)
	}
	require.Equal(t, []string{"0.Item Name", "0.Average Price", "0.Last Updated", "1.Average Price"}, paths)

	// the below-minimum row still assembles; the bad row does not
	require.Len(t, report.Data, 2)
	require.Equal(t, "Sand", report.Data[0].ItemName)
	require.Equal(t, "Stone", report.Data[1].ItemName)
}

func TestValidateBenchmarkRowsMissingColumn(t *testing.T) {
	report := ValidateBenchmarkRows(tabular.Parse("Item Name,Category,Average Price,Last Updated\nCement,Hardware,1,2025-01-01"))
	require.False(t, report.Valid())
	require.Len(t, report.Issues, 1)
	require.Equal(t, "0.Source Label", report.Issues[0].Path)
	require.Contains(t, report.Issues[0].Message, "missing column")
	require.Empty(t, report.Data)
}

func TestValidateBenchmarkRowsHeadersAreExact(t *testing.T) {
	report := ValidateBenchmarkRows(tabular.Parse("item name,Category,Average Price,Source Label,Last Updated\nCement,Hardware,1,ZPPA,2025-01-01"))
	require.False(t, report.Valid())
	require.Equal(t, "0.Item Name", report.Issues[0].Path)
}

func TestValidateMerchantRows(t *testing.T) {
	csv := "SKU,Item Name,Unit,Category,Price,Pack Size,Last Updated\n" +
		"1001,Cement,bag,Building,180,50kg,2025-03-31\n" +
		"1002,Sand,ton,Aggregates,45,,"
	report := ValidateMerchantRows(tabular.Parse(csv))
	require.True(t, report.Valid(), "%v", report.Issues)
	require.Len(t, report.Data, 2)
	require.Equal(t, "50kg", report.Data[0].PackSize)
	require.Equal(t, "2025-03-31", report.Data[0].LastUpdated.String())
	require.Equal(t, "", report.Data[1].PackSize)
	require.True(t, report.Data[1].LastUpdated.IsZero())
	require.Equal(t, "1002", MerchantKey(report.Data[1]))
}

func TestValidateMerchantRowsOptionalColumnsMayBeAbsent(t *testing.T) {
	report := ValidateMerchantRows(tabular.Parse("SKU,Item Name,Unit,Category,Price\n1001,Cement,bag,Building,180"))
	require.True(t, report.Valid())
	require.Len(t, report.Data, 1)
}

func TestValidateMerchantRowsRejectsMalformedOptionalDate(t *testing.T) {
	report := ValidateMerchantRows(tabular.Parse("SKU,Item Name,Unit,Category,Price,Last Updated\n1001,Cement,bag,Building,180,31-03-2025"))
	require.False(t, report.Valid())
	require.Equal(t, "0.Last Updated", report.Issues[0].Path)
}

func TestValidateMerchantRowsDuplicateSKU(t *testing.T) {
	csv := "SKU,Item Name,Unit,Category,Price\n" +
		"1001,Cement,bag,Building,180\n" +
		"1001,Cement,bag,Building,abc\n" +
		"1002,Sand,ton,Aggregates,45"
	report := ValidateMerchantRows(tabular.Parse(csv))
	require.False(t, report.Valid())

	var dup, price bool
	for _, issue := range report.Issues {
		if strings.Contains(issue.Message, "Duplicate") {
			dup = true
			require.Equal(t, "1.SKU", issue.Path)
		}
		if issue.Path == "1.Price" {
			price = true
		}
	}
	require.True(t, dup, "expected duplicate SKU issue")
	require.True(t, price, "duplicate row must still run its other checks")
}
