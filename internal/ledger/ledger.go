// Package ledger keeps a catalog item's stock counts and prices consistent.
//
// Every function that touches a source field (BasePrice or one of the stock
// counters) finishes with Recompute, so the derived fields never drift from
// their formulas.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNegativePrice     = errors.New("base price must not be negative")
	ErrUnknownStockEvent = errors.New("unknown stock event")
	ErrOverReversal      = errors.New("reversal exceeds consumed quantity")
)

var (
	// MarkupRate and TaxRate are fixed business rules.
	MarkupRate = decimal.New(20, -2)
	TaxRate    = decimal.New(10, -2)

	markupFactor = decimal.NewFromInt(1).Add(MarkupRate)
	taxFactor    = decimal.NewFromInt(1).Add(TaxRate)
)

// DerivePrices returns the marked-up net price and the taxed final price.
// The results are exact; rounding happens only when rendering.
func DerivePrices(base decimal.Decimal) (net decimal.Decimal, final decimal.Decimal) {
	net = base.Mul(markupFactor)
	final = net.Mul(taxFactor)
	return net, final
}

func DeriveStockAmount(initialStock, receipt, consumed, expiredDamaged, damagedReturns int) int {
	return initialStock + receipt - consumed - expiredDamaged - damagedReturns
}

// Recompute re-derives NetPrice, FinalPrice and StockAmount from the source fields.
func Recompute(item *domain.CatalogItem) {
	item.NetPrice, item.FinalPrice = DerivePrices(item.BasePrice)
	item.StockAmount = DeriveStockAmount(item.InitialStock, item.Receipt, item.Consumed, item.ExpiredDamaged, item.DamagedReturns)
}

// RecordSale deducts qty units. The item is left untouched on error.
func RecordSale(item *domain.CatalogItem, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if available := onHand(*item); qty > available {
		return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, item.Name, available, qty)
	}
	item.Consumed += qty
	Recompute(item)
	return nil
}

// ReverseSale gives back qty previously sold units.
func ReverseSale(item *domain.CatalogItem, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if qty > item.Consumed {
		return fmt.Errorf("%w: %s consumed %d, reversing %d", ErrOverReversal, item.Name, item.Consumed, qty)
	}
	item.Consumed -= qty
	Recompute(item)
	return nil
}

// ApplyStockEvent records a receipt, a spoilage write-off or a damaged return.
// Removals can never take more than what is on hand.
func ApplyStockEvent(item *domain.CatalogItem, kind domain.StockEventKind, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	available := onHand(*item)

	switch kind {
	case domain.StockEventReceipt:
		item.Receipt += qty
	case domain.StockEventExpiredDamaged:
		if qty > available {
			return fmt.Errorf("%w: %s has %d, writing off %d", ErrInsufficientStock, item.Name, available, qty)
		}
		item.ExpiredDamaged += qty
	case domain.StockEventDamagedReturn:
		if qty > available {
			return fmt.Errorf("%w: %s has %d, returning %d", ErrInsufficientStock, item.Name, available, qty)
		}
		item.DamagedReturns += qty
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStockEvent, kind)
	}

	Recompute(item)
	return nil
}

func onHand(item domain.CatalogItem) int {
	return DeriveStockAmount(item.InitialStock, item.Receipt, item.Consumed, item.ExpiredDamaged, item.DamagedReturns)
}

// Snapshot freezes the descriptive and price fields of item.
func Snapshot(item domain.CatalogItem) domain.ItemSnapshot {
	net, final := DerivePrices(item.BasePrice)
	return domain.ItemSnapshot{
		ID:            item.ID,
		Name:          item.Name,
		PackagingUnit: item.PackagingUnit,
		BatchNumber:   item.BatchNumber,
		Category:      item.Category,
		Manufacturer:  item.Manufacturer,
		BasePrice:     item.BasePrice,
		NetPrice:      net,
		FinalPrice:    final,
	}
}

// LineTotal is the charged amount for qty units, rounded to cents.
func LineTotal(finalPrice decimal.Decimal, qty int) decimal.Decimal {
	return finalPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

const (
	CriticalThreshold = 5
	LowStockThreshold = 10
)

func StockStatus(stockAmount int) string {
	switch {
	case stockAmount < CriticalThreshold:
		return "Critical"
	case stockAmount < LowStockThreshold:
		return "Low Stock"
	default:
		return "In Stock"
	}
}
