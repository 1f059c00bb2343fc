// Package storefront is the buyer side of the checkout flow: a cart, a client
// for the payment server and the monitor that waits for the payment result.
package storefront

import (
	"math"
	"sync"

	"github.com/starkville/storefront/internal/domain/transaction"
)

// Cart holds the lines a buyer is about to pay for. It is safe for concurrent
// use; the monitor clears it from its own goroutine.
type Cart struct {
	mu    sync.Mutex
	items []transaction.LineItem
}

func NewCart() *Cart {
	return &Cart{}
}

// Add appends item, or increases the quantity of the line with the same ID.
func (c *Cart) Add(item transaction.LineItem) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i].Quantity += item.Quantity
			return
		}
	}
	c.items = append(c.items, item)
}

// Remove drops the line with the given ID. It reports whether a line was removed.
func (c *Cart) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the cart lines.
func (c *Cart) Items() []transaction.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transaction.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Total is the sum of price times quantity, rounded to cents.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, it := range c.items {
		total += it.Price * float64(it.Quantity)
	}
	return math.Round(total*100) / 100
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return c.Len() == 0
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
