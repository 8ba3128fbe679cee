// Package cart edits an in-progress sale.
//
// Overselling is rejected, never clamped. Add, Increment and SetQuantity all
// go through checkAvailable so the entry points cannot disagree.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
)

var ErrLineNotFound = errors.New("cart line not found")

func checkAvailable(item domain.CatalogItem, qty int) error {
	if qty < 1 {
		return ledger.ErrInvalidQuantity
	}
	if qty > item.StockAmount {
		return fmt.Errorf("%w: %s has %d, requested %d", ledger.ErrInsufficientStock, item.Name, item.StockAmount, qty)
	}
	return nil
}

func indexOf(c *domain.Cart, itemID string) int {
	for i, line := range c.Lines {
		if line.ItemID == itemID {
			return i
		}
	}
	return -1
}

// Add puts qty units of item into the cart, merging with an existing line.
func Add(c *domain.Cart, item domain.CatalogItem, qty int) error {
	if qty < 1 {
		return ledger.ErrInvalidQuantity
	}
	idx := indexOf(c, item.ID)
	want := qty
	if idx >= 0 {
		want += c.Lines[idx].Quantity
	}
	if err := checkAvailable(item, want); err != nil {
		return err
	}
	if idx < 0 {
		c.Lines = append(c.Lines, domain.CartLine{ItemID: item.ID})
		idx = len(c.Lines) - 1
	}
	setLine(&c.Lines[idx], item, want)
	recalc(c)
	return nil
}

// Increment adds one unit to an existing line.
func Increment(c *domain.Cart, item domain.CatalogItem) error {
	if indexOf(c, item.ID) < 0 {
		return ErrLineNotFound
	}
	return Add(c, item, 1)
}

// Decrement removes one unit and reprices the line at the item's current
// price; a line that reaches zero is dropped.
func Decrement(c *domain.Cart, item domain.CatalogItem) error {
	idx := indexOf(c, item.ID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if c.Lines[idx].Quantity <= 1 {
		return Remove(c, item.ID)
	}
	setLine(&c.Lines[idx], item, c.Lines[idx].Quantity-1)
	recalc(c)
	return nil
}

// SetQuantity is the direct quantity edit. qty <= 0 removes the line.
func SetQuantity(c *domain.Cart, item domain.CatalogItem, qty int) error {
	idx := indexOf(c, item.ID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if qty <= 0 {
		return Remove(c, item.ID)
	}
	if err := checkAvailable(item, qty); err != nil {
		return err
	}
	setLine(&c.Lines[idx], item, qty)
	recalc(c)
	return nil
}

func Remove(c *domain.Cart, itemID string) error {
	idx := indexOf(c, itemID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	recalc(c)
	return nil
}

// Total sums the line totals of lines.
func Total(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// LineRequests turns the cart into the sale lines posted at checkout.
func LineRequests(c domain.Cart) []domain.LineRequest {
	requests := make([]domain.LineRequest, 0, len(c.Lines))
	for _, line := range c.Lines {
		requests = append(requests, domain.LineRequest{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return requests
}

func setLine(line *domain.CartLine, item domain.CatalogItem, qty int) {
	line.ItemID = item.ID
	line.Name = item.Name
	line.FinalPrice = item.FinalPrice
	line.Quantity = qty
	line.LineTotal = ledger.LineTotal(item.FinalPrice, qty)
}

func recalc(c *domain.Cart) {
	if c.Lines == nil {
		c.Lines = []domain.CartLine{}
	}
	c.Total = Total(c.Lines)
}
