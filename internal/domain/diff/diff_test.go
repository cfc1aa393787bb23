package diff

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Price    decimal.Decimal   `json:"price"`
	Tags     map[string]string `json:"tags,omitempty"`
}

func itemKey(i item) string { return i.Name + "::" + i.Category }

func mk(name, category, price string) item {
	return item{Name: name, Category: category, Price: decimal.RequireFromString(price)}
}

func TestByKeyAddedRemovedUpdated(t *testing.T) {
	current := []item{mk("Cement", "Building", "180"), mk("Sand", "Aggregates", "45"), mk("Nails", "Hardware", "3")}
	next := []item{mk("Cement", "Building", "185"), mk("Sand", "Aggregates", "45"), mk("Paint", "Finishes", "90")}

	got := ByKey(current, next, itemKey)
	require.Equal(t, []item{mk("Paint", "Finishes", "90")}, got.Added)
	require.Equal(t, []item{mk("Nails", "Hardware", "3")}, got.Removed)
	require.Len(t, got.Updated, 1)
	require.Equal(t, "180", got.Updated[0].Previous.Price.String())
	require.Equal(t, "185", got.Updated[0].Next.Price.String())
	require.False(t, got.Empty())
}

func TestByKeyCompositeKeyYieldsAddNotUpdate(t *testing.T) {
	current := []item{mk("Cement 50kg", "Building Materials", "180")}
	next := []item{mk("Cement 50kg", "Hardware", "180")}

	got := ByKey(current, next, itemKey)
	require.Len(t, got.Added, 1)
	require.Len(t, got.Removed, 1)
	require.Empty(t, got.Updated)
}

func TestByKeyStructuralEquality(t *testing.T) {
	a := mk("Cement", "Building", "180.00")
	a.Tags = map[string]string{"b": "2", "a": "1"}
	b := mk("Cement", "Building", "180")
	b.Tags = map[string]string{"a": "1", "b": "2"}

	got := ByKey([]item{a}, []item{b}, itemKey)
	require.True(t, got.Empty())
}

func TestByKeyEmptyInputs(t *testing.T) {
	got := ByKey[item](nil, nil, itemKey)
	require.True(t, got.Empty())
	require.NotNil(t, got.Added)
	require.NotNil(t, got.Removed)
	require.NotNil(t, got.Updated)

	got = ByKey(nil, []item{mk("A", "x", "1")}, itemKey)
	require.Len(t, got.Added, 1)
}

func TestByKeyFuncCustomEquality(t *testing.T) {
	nameOnly := func(a, b item) bool { return a.Name == b.Name }
	got := ByKeyFunc([]item{mk("A", "x", "1")}, []item{mk("A", "x", "2")}, itemKey, nameOnly)
	require.Empty(t, got.Updated)
}

func TestByKeyDoesNotMutateInputs(t *testing.T) {
	current := []item{mk("A", "x", "1")}
	next := []item{mk("A", "x", "2")}
	_ = ByKey(current, next, itemKey)
	require.Equal(t, "1", current[0].Price.String())
	require.Equal(t, "2", next[0].Price.String())
}
