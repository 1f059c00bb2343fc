package storefront

import (
	"testing"

	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
)

func hoodie(qty int) transaction.LineItem {
	return transaction.LineItem{ID: "hoodie", Name: "Starkville Hoodie", Price: 2400, Quantity: qty}
}

func TestCart_AddMergesSameID(t *testing.T) {
	cart := NewCart()
	cart.Add(hoodie(1))
	cart.Add(hoodie(2))
	cart.Add(transaction.LineItem{ID: "cap", Name: "Cap", Price: 850.5, Quantity: 1})

	items := cart.Items()
	assert.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.InDelta(t, 3*2400+850.5, cart.Total(), 1e-9)
}

func TestCart_AddDefaultsQuantity(t *testing.T) {
	cart := NewCart()
	cart.Add(hoodie(0))
	assert.Equal(t, 1, cart.Items()[0].Quantity)
}

func TestCart_Remove(t *testing.T) {
	cart := NewCart()
	cart.Add(hoodie(1))

	assert.False(t, cart.Remove("missing"))
	assert.True(t, cart.Remove("hoodie"))
	assert.True(t, cart.IsEmpty())
	assert.Zero(t, cart.Total())
}

func TestCart_ItemsIsCopy(t *testing.T) {
	cart := NewCart()
	cart.Add(hoodie(1))

	items := cart.Items()
	items[0].Quantity = 99
	assert.Equal(t, 1, cart.Items()[0].Quantity)
}

func TestCart_Clear(t *testing.T) {
	cart := NewCart()
	cart.Add(hoodie(2))
	cart.Clear()
	assert.Equal(t, 0, cart.Len())
}
