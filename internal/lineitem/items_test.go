package lineitem

import (
	"testing"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var price = decimal.RequireFromString("89.90")

func snapshot() domain.ProductSnapshot {
	return domain.ProductSnapshot{Name: "Desert Runner", CurrentPrice: price}
}

func TestUpsert_NewItem(t *testing.T) {
	var s Items
	out, item, err := s.Upsert("shoe-a", "42", 2, price, snapshot())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "shoe-a", item.ProductID)
	assert.Equal(t, "42", item.Variant)
	assert.True(t, price.Equal(item.UnitPrice))
	assert.NotEmpty(t, item.ID)
	assert.Empty(t, s, "receiver must not change")
}

func TestUpsert_SameKeySumsQuantities(t *testing.T) {
	deltas := []int{1, 3, 2, 5}
	var s Items
	var err error
	for _, d := range deltas {
		s, _, err = s.Upsert("shoe-a", "42", d, price, snapshot())
		require.NoError(t, err)
	}
	require.Len(t, s, 1)
	assert.Equal(t, 11, s[0].Quantity)
}

func TestUpsert_KeepsPriceAtAdd(t *testing.T) {
	s, _, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)

	newer := decimal.RequireFromString("99.00")
	s, item, err := s.Upsert("shoe-a", "42", 1, newer, domain.ProductSnapshot{Name: "Desert Runner", CurrentPrice: newer})
	require.NoError(t, err)
	assert.True(t, price.Equal(item.UnitPrice))
	assert.Equal(t, 2, s[0].Quantity)
}

func TestUpsert_DifferentVariantIsSeparateItem(t *testing.T) {
	s, _, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)
	s, _, err = s.Upsert("shoe-a", "43", 1, price, snapshot())
	require.NoError(t, err)
	assert.Len(t, s, 2)
}

func TestUpsert_InvalidQuantity(t *testing.T) {
	_, _, err := Items{}.Upsert("shoe-a", "42", 0, price, snapshot())
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	s, _, err := Items{}.Upsert("shoe-a", "42", 2, price, snapshot())
	require.NoError(t, err)
	out, _, err := s.Upsert("shoe-a", "42", -2, price, snapshot())
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.True(t, Same(s, out))
	assert.Equal(t, 2, s[0].Quantity)
}

func TestSetQuantity(t *testing.T) {
	s, item, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)

	out, updated, err := s.SetQuantity(item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)
	assert.Equal(t, 4, out[0].Quantity)
	assert.Equal(t, 1, s[0].Quantity, "previous sequence must be unchanged")
	assert.False(t, Same(s, out))
}

func TestSetQuantity_BelowOneRejected(t *testing.T) {
	s, item, err := Items{}.Upsert("shoe-a", "42", 3, price, snapshot())
	require.NoError(t, err)

	for _, q := range []int{0, -1, -100} {
		out, _, err := s.SetQuantity(item.ID, q)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.True(t, Same(s, out))
		assert.Equal(t, 3, out[0].Quantity)
	}
}

func TestSetQuantity_UnknownItem(t *testing.T) {
	_, _, err := Items{}.SetQuantity("missing", 2)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemove(t *testing.T) {
	s, a, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)
	s, b, err := s.Upsert("shoe-b", "40", 1, price, snapshot())
	require.NoError(t, err)

	out, removed, ok := s.Remove(a.ID)
	require.True(t, ok)
	assert.Equal(t, a.ID, removed.ID)
	require.Len(t, out, 1)
	assert.Equal(t, b.ID, out[0].ID)
	assert.Len(t, s, 2)
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	s, _, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)

	out, _, ok := s.Remove("missing")
	assert.False(t, ok)
	assert.True(t, Same(s, out))
}

func TestClear(t *testing.T) {
	s, _, err := Items{}.Upsert("shoe-a", "42", 1, price, snapshot())
	require.NoError(t, err)
	assert.Empty(t, s.Clear())
	assert.Len(t, s, 1)
}
