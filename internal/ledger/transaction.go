package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid transaction state transition")
	ErrEmptySale         = errors.New("sale has no lines")
	ErrUnknownItem       = errors.New("unknown catalog item")
)

// Reverse moves a live transaction into the transient reversed state.
// A second reversal of the same transaction is rejected.
func Reverse(tx *domain.SaleTransaction) error {
	switch tx.Status {
	case domain.TxStatusCommitted, domain.TxStatusRecommitted:
		tx.Status = domain.TxStatusReversed
		return nil
	default:
		return fmt.Errorf("%w: reverse from %q", ErrInvalidTransition, tx.Status)
	}
}

func Recommit(tx *domain.SaleTransaction) error {
	if tx.Status != domain.TxStatusReversed {
		return fmt.Errorf("%w: recommit from %q", ErrInvalidTransition, tx.Status)
	}
	tx.Status = domain.TxStatusRecommitted
	return nil
}

func MarkDeleted(tx *domain.SaleTransaction) error {
	if tx.Status != domain.TxStatusReversed {
		return fmt.Errorf("%w: delete from %q", ErrInvalidTransition, tx.Status)
	}
	tx.Status = domain.TxStatusDeleted
	return nil
}

// PostSale runs RecordSale for every requested line against items and builds
// the frozen transaction lines. items is mutated; callers pass working copies
// and discard them on error.
func PostSale(items map[string]*domain.CatalogItem, requests []domain.LineRequest) ([]domain.TransactionLine, decimal.Decimal, error) {
	if len(requests) == 0 {
		return nil, decimal.Zero, ErrEmptySale
	}

	lines := make([]domain.TransactionLine, 0, len(requests))
	total := decimal.Zero
	for _, req := range requests {
		item, ok := items[req.ItemID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownItem, req.ItemID)
		}
		if err := RecordSale(item, req.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
		snapshot := Snapshot(*item)
		lineTotal := LineTotal(snapshot.FinalPrice, req.Quantity)
		lines = append(lines, domain.TransactionLine{
			Item:      snapshot,
			Quantity:  req.Quantity,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total, nil
}

// UnpostSale reverses every line of tx against items and leaves tx in the
// reversed state. Lines whose item no longer exists in the catalog are
// returned as skipped; there is no stock left to restore for them.
func UnpostSale(items map[string]*domain.CatalogItem, tx *domain.SaleTransaction) ([]string, error) {
	if err := Reverse(tx); err != nil {
		return nil, err
	}

	var skipped []string
	for _, line := range tx.Lines {
		item, ok := items[line.Item.ID]
		if !ok {
			skipped = append(skipped, line.Item.ID)
			continue
		}
		if err := ReverseSale(item, line.Quantity); err != nil {
			return nil, err
		}
	}
	return skipped, nil
}
