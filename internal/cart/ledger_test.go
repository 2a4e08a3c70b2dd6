package cart

import (
	"errors"
	"math/rand"
	"testing"

	"chowfast/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id, price string) domain.Product {
	return domain.Product{ID: id, Name: id, Price: decimal.RequireFromString(price)}
}

func TestAddItemMergesSameProduct(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 1))
	require.NoError(t, l.AddItem(product("middle-d", "0.000064"), 1))
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))

	lines := l.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "budget-a", lines[0].Product.ID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "middle-d", lines[1].Product.ID)
	assert.Equal(t, 4, l.TotalItemCount())
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	l := NewLedger()
	err := l.AddItem(product("budget-a", "0.000016"), 0)
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "quantity", vErr.Field)
	assert.True(t, l.IsEmpty())

	err = l.AddItem(domain.Product{}, 1)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "productId", vErr.Field)
}

func TestAddItemRejectsSubWeiPrice(t *testing.T) {
	l := NewLedger()
	err := l.AddItem(product("dust", "0.0000000000000000001"), 1)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "price", vErr.Field)
	assert.True(t, l.IsEmpty())
}

func TestScenarioATotals(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	require.NoError(t, l.AddItem(product("middle-d", "0.000064"), 1))

	fee := decimal.RequireFromString("0.00001")
	assert.True(t, l.Subtotal().Equal(decimal.RequireFromString("0.000096")), l.Subtotal().String())
	assert.True(t, l.GrandTotal(fee).Equal(decimal.RequireFromString("0.000106")), l.GrandTotal(fee).String())
}

func TestRemoveAbsentItemIsNoop(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	before := l.Lines()

	l.RemoveItem("does-not-exist")

	assert.Equal(t, before, l.Lines())
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	require.NoError(t, l.AddItem(product("middle-d", "0.000064"), 1))

	require.NoError(t, l.UpdateQuantity("budget-a", 0))

	lines := l.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "middle-d", lines[0].Product.ID)
}

func TestUpdateQuantityIsNotAdditive(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	require.NoError(t, l.UpdateQuantity("budget-a", 5))
	assert.Equal(t, 5, l.Lines()[0].Quantity)

	assert.ErrorIs(t, l.UpdateQuantity("missing", 3), domain.ErrNotFound)
	require.NoError(t, l.UpdateQuantity("missing", -1))
}

func TestClear(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	l.Clear()
	assert.True(t, l.IsEmpty())
	assert.True(t, l.Subtotal().IsZero())
	assert.Zero(t, l.TotalItemCount())
}

func TestDeductKeepsLaterAdditions(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	require.NoError(t, l.AddItem(product("middle-d", "0.000064"), 1))
	placed := l.Lines()

	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 1))
	require.NoError(t, l.AddItem(product("bulk-g", "0.0008"), 3))
	l.RemoveItem("middle-d")

	l.Deduct(placed)
	lines := l.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "budget-a", lines[0].Product.ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "bulk-g", lines[1].Product.ID)
	assert.Equal(t, 3, lines[1].Quantity)

	l.Deduct(l.Lines())
	assert.True(t, l.IsEmpty())
}

func TestLinesReturnsCopy(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.AddItem(product("budget-a", "0.000016"), 2))
	lines := l.Lines()
	lines[0].Quantity = 99
	assert.Equal(t, 2, l.Lines()[0].Quantity)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	catalog := []domain.Product{
		product("budget-a", "0.000016"),
		product("budget-b", "0.000032"),
		product("middle-d", "0.000064"),
		product("bulk-g", "0.0008"),
		product("bulk-i", "0.0024"),
	}
	l := NewLedger()
	for i := 0; i < 2000; i++ {
		p := catalog[rng.Intn(len(catalog))]
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, l.AddItem(p, rng.Intn(5)+1))
		case 1:
			l.RemoveItem(p.ID)
		case 2:
			_ = l.UpdateQuantity(p.ID, rng.Intn(6)-1)
		}

		seen := map[string]bool{}
		want := decimal.Zero
		count := 0
		for _, line := range l.Lines() {
			require.False(t, seen[line.Product.ID], "duplicate line for %s", line.Product.ID)
			seen[line.Product.ID] = true
			require.Positive(t, line.Quantity)
			want = want.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			count += line.Quantity
		}
		require.True(t, want.Equal(l.Subtotal()))
		require.Equal(t, count, l.TotalItemCount())
	}
}
