package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
)

func paracetamol() domain.CatalogItem {
	item := domain.CatalogItem{
		ID:             "1",
		Name:           "Paracetamol",
		PackagingUnit:  "Blister Pack",
		BatchNumber:    "PCM-2024-001",
		Category:       "Pain Relief",
		Manufacturer:   "PharmaCorp Ltd",
		BasePrice:      decimal.RequireFromString("5.00"),
		InitialStock:   200,
		Receipt:        50,
		Consumed:       100,
		ExpiredDamaged: 10,
	}
	Recompute(&item)
	return item
}

func assertLedgerInvariant(t *testing.T, item domain.CatalogItem) {
	t.Helper()
	want := item.InitialStock + item.Receipt - item.Consumed - item.ExpiredDamaged - item.DamagedReturns
	if item.StockAmount != want {
		t.Fatalf("stock amount drifted: got %d, want %d", item.StockAmount, want)
	}
}

func assertUnchanged(t *testing.T, before domain.CatalogItem, after domain.CatalogItem) {
	t.Helper()
	if before.InitialStock != after.InitialStock || before.Receipt != after.Receipt ||
		before.Consumed != after.Consumed || before.ExpiredDamaged != after.ExpiredDamaged ||
		before.DamagedReturns != after.DamagedReturns || before.StockAmount != after.StockAmount {
		t.Fatalf("rejected operation mutated the item: before=%+v after=%+v", before, after)
	}
}

func TestDerivePricesExample(t *testing.T) {
	net, final := DerivePrices(decimal.RequireFromString("5.00"))
	if net.StringFixed(2) != "6.00" {
		t.Fatalf("expected net 6.00, got %s", net.StringFixed(2))
	}
	if final.StringFixed(2) != "6.60" {
		t.Fatalf("expected final 6.60, got %s", final.StringFixed(2))
	}
}

func TestDerivePricesMatchesCombinedFactor(t *testing.T) {
	factor := decimal.RequireFromString("1.32")
	for _, raw := range []string{"0", "0.01", "0.99", "5", "12.00", "8.00", "13.37", "999.99", "1234.5678"} {
		base := decimal.RequireFromString(raw)
		_, final := DerivePrices(base)
		want := base.Mul(factor).Round(2)
		if !final.Round(2).Equal(want) {
			t.Fatalf("base %s: final %s, want %s", raw, final.Round(2), want)
		}
	}
}

func TestRecomputeRederivesPricesAfterBaseEdit(t *testing.T) {
	item := paracetamol()
	item.BasePrice = decimal.RequireFromString("12.00")
	Recompute(&item)

	if item.NetPrice.StringFixed(2) != "14.40" || item.FinalPrice.StringFixed(2) != "15.84" {
		t.Fatalf("unexpected prices net=%s final=%s", item.NetPrice, item.FinalPrice)
	}
}

func TestSeedItemStockAmount(t *testing.T) {
	item := paracetamol()
	if item.StockAmount != 140 {
		t.Fatalf("expected 140 on hand, got %d", item.StockAmount)
	}
}

func TestRecordSaleExample(t *testing.T) {
	item := paracetamol()

	if err := RecordSale(&item, 3); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if item.StockAmount != 137 {
		t.Fatalf("expected 137 on hand, got %d", item.StockAmount)
	}
	if item.Consumed != 103 {
		t.Fatalf("expected consumed 103, got %d", item.Consumed)
	}
	if got := LineTotal(item.FinalPrice, 3).StringFixed(2); got != "19.80" {
		t.Fatalf("expected line total 19.80, got %s", got)
	}
	assertLedgerInvariant(t, item)
}

func TestRecordSaleWholeStockThenOneMore(t *testing.T) {
	item := paracetamol()

	if err := RecordSale(&item, item.StockAmount); err != nil {
		t.Fatalf("selling full stock: %v", err)
	}
	if item.StockAmount != 0 {
		t.Fatalf("expected 0 on hand, got %d", item.StockAmount)
	}

	before := item
	err := RecordSale(&item, 1)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	assertUnchanged(t, before, item)
}

func TestRecordSaleRejectsOversellWithoutMutation(t *testing.T) {
	item := paracetamol()
	before := item

	err := RecordSale(&item, item.StockAmount+1)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	assertUnchanged(t, before, item)
	if item.StockAmount < 0 {
		t.Fatalf("stock went negative")
	}
}

func TestRecordSaleRejectsNonPositiveQuantity(t *testing.T) {
	item := paracetamol()
	for _, qty := range []int{0, -4} {
		if err := RecordSale(&item, qty); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected invalid quantity, got %v", qty, err)
		}
	}
}

func TestReverseSaleRestoresExactly(t *testing.T) {
	for _, qty := range []int{1, 7, 140} {
		item := paracetamol()
		before := item

		if err := RecordSale(&item, qty); err != nil {
			t.Fatalf("record %d: %v", qty, err)
		}
		if err := ReverseSale(&item, qty); err != nil {
			t.Fatalf("reverse %d: %v", qty, err)
		}
		if item.StockAmount != before.StockAmount || item.Consumed != before.Consumed {
			t.Fatalf("qty %d: got stock=%d consumed=%d, want stock=%d consumed=%d",
				qty, item.StockAmount, item.Consumed, before.StockAmount, before.Consumed)
		}
	}
}

func TestReverseSaleCannotUnsellMoreThanConsumed(t *testing.T) {
	item := paracetamol()
	if err := ReverseSale(&item, item.Consumed+1); !errors.Is(err, ErrOverReversal) {
		t.Fatalf("expected over-reversal error, got %v", err)
	}
}

func TestApplyStockEvents(t *testing.T) {
	item := paracetamol()

	if err := ApplyStockEvent(&item, domain.StockEventReceipt, 20); err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if item.StockAmount != 160 || item.Receipt != 70 {
		t.Fatalf("after receipt: stock=%d receipt=%d", item.StockAmount, item.Receipt)
	}

	if err := ApplyStockEvent(&item, domain.StockEventExpiredDamaged, 5); err != nil {
		t.Fatalf("expired: %v", err)
	}
	if err := ApplyStockEvent(&item, domain.StockEventDamagedReturn, 5); err != nil {
		t.Fatalf("damaged return: %v", err)
	}
	if item.StockAmount != 150 {
		t.Fatalf("expected 150 on hand, got %d", item.StockAmount)
	}
	assertLedgerInvariant(t, item)

	if err := ApplyStockEvent(&item, domain.StockEventExpiredDamaged, 151); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected write-off beyond stock to fail, got %v", err)
	}
	if err := ApplyStockEvent(&item, "stolen", 1); !errors.Is(err, ErrUnknownStockEvent) {
		t.Fatalf("expected unknown event error, got %v", err)
	}
	assertLedgerInvariant(t, item)
}

func TestStockStatusThresholds(t *testing.T) {
	cases := map[int]string{
		0:  "Critical",
		3:  "Critical",
		4:  "Critical",
		5:  "Low Stock",
		7:  "Low Stock",
		9:  "Low Stock",
		10: "In Stock",
		25: "In Stock",
	}
	for amount, want := range cases {
		if got := StockStatus(amount); got != want {
			t.Fatalf("stock %d: got %q, want %q", amount, got, want)
		}
	}
}

func TestSnapshotIsDetachedFromLaterEdits(t *testing.T) {
	item := paracetamol()
	snap := Snapshot(item)

	item.Name = "Paracetamol Forte"
	item.BasePrice = decimal.RequireFromString("9.00")
	Recompute(&item)

	if snap.Name != "Paracetamol" || snap.FinalPrice.StringFixed(2) != "6.60" {
		t.Fatalf("snapshot changed after edit: %+v", snap)
	}
}
