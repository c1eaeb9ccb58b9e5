package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTotalItemsCost(t *testing.T) {
	t.Parallel()

	r := &Request{Items: []RequestItem{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("250.00")},
	}}
	require.True(t, r.TotalItemsCost().Equal(decimal.RequireFromString("309.97")))

	require.True(t, (&Request{}).TotalItemsCost().IsZero())
}

func TestLowestQuote(t *testing.T) {
	t.Parallel()

	r := &Request{Quotes: []RequestQuote{
		{ID: 1, VendorName: "Acme", QuoteTotal: decimal.RequireFromString("1200.00")},
		{ID: 2, VendorName: "Globex", QuoteTotal: decimal.RequireFromString("999.50")},
		{ID: 3, VendorName: "Initech", QuoteTotal: decimal.RequireFromString("999.51")},
	}}

	lowest := r.LowestQuote()
	require.NotNil(t, lowest)
	require.Equal(t, uint(2), lowest.ID)

	require.Nil(t, (&Request{}).LowestQuote())
}

func TestHasQuote(t *testing.T) {
	t.Parallel()

	r := &Request{Quotes: []RequestQuote{{ID: 7}, {ID: 9}}}
	require.True(t, r.HasQuote(9))
	require.False(t, r.HasQuote(8))
}

func TestRequestItemBeforeSave(t *testing.T) {
	t.Parallel()

	it := &RequestItem{Quantity: 4, UnitPrice: decimal.RequireFromString("12.50")}
	require.NoError(t, it.BeforeSave(nil))
	require.True(t, it.Total.Equal(decimal.RequireFromString("50.00")))
}
