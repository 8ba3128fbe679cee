package summary

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/period"
	"pharmacare/internal/store/memory"
)

type mapCache struct {
	values map[string]domain.FinancialSummary
	sets   int
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.FinancialSummary, bool, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.FinancialSummary, _ time.Duration) error {
	c.values[key] = *value
	c.sets++
	return nil
}

func sale(id string, base string, qty int, at time.Time) domain.SaleTransaction {
	item := domain.CatalogItem{ID: "item-" + id, Name: "Drug " + id, BasePrice: decimal.RequireFromString(base)}
	snapshot := ledger.Snapshot(item)
	lineTotal := ledger.LineTotal(snapshot.FinalPrice, qty)
	return domain.SaleTransaction{
		ID:          id,
		CreatedAt:   at,
		Status:      domain.TxStatusCommitted,
		Lines:       []domain.TransactionLine{{Item: snapshot, Quantity: qty, LineTotal: lineTotal}},
		TotalAmount: lineTotal,
	}
}

func TestSummarizeFigures(t *testing.T) {
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	txs := []domain.SaleTransaction{
		sale("a", "5.00", 3, at),  // 19.80 revenue, 15.00 cost
		sale("b", "12.00", 1, at), // 15.84 revenue, 12.00 cost
	}
	start, end := period.Range(period.Daily, at, time.UTC)

	s := Summarize(txs, period.Daily, start, end)
	if s.TotalRevenue.StringFixed(2) != "35.64" {
		t.Fatalf("revenue: %s", s.TotalRevenue.StringFixed(2))
	}
	if s.TotalCost.StringFixed(2) != "27.00" {
		t.Fatalf("cost: %s", s.TotalCost.StringFixed(2))
	}
	if s.TotalProfit.StringFixed(2) != "8.64" {
		t.Fatalf("profit: %s", s.TotalProfit.StringFixed(2))
	}
	if s.ProfitMargin.StringFixed(2) != "24.24" {
		t.Fatalf("margin: %s", s.ProfitMargin.StringFixed(2))
	}
	if s.AverageTransaction.StringFixed(2) != "17.82" {
		t.Fatalf("average: %s", s.AverageTransaction.StringFixed(2))
	}
	if s.TotalTransactions != 2 || s.TotalItems != 2 || s.UnitsSold != 4 {
		t.Fatalf("counts: %+v", s)
	}
	if s.RecentTransactions[0].ID != "b" {
		t.Fatalf("expected newest first, got %s", s.RecentTransactions[0].ID)
	}
}

func TestSummarizeEmptyPeriod(t *testing.T) {
	s := Summarize(nil, period.Weekly, time.Time{}, time.Time{})
	if !s.TotalRevenue.IsZero() || !s.ProfitMargin.IsZero() || !s.AverageTransaction.IsZero() {
		t.Fatalf("expected zero figures, got %+v", s)
	}
	if s.RecentTransactions == nil || len(s.RecentTransactions) != 0 {
		t.Fatalf("expected empty recent list")
	}
}

func TestRecentKeepsLastTenNewestFirst(t *testing.T) {
	at := time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC)
	var txs []domain.SaleTransaction
	for i := 0; i < 15; i++ {
		txs = append(txs, sale(fmt.Sprintf("t%02d", i), "1.00", 1, at.Add(time.Duration(i)*time.Minute)))
	}

	recent := Recent(txs, RecentLimit)
	if len(recent) != 10 {
		t.Fatalf("expected 10, got %d", len(recent))
	}
	if recent[0].ID != "t14" || recent[9].ID != "t05" {
		t.Fatalf("unexpected order %s..%s", recent[0].ID, recent[9].ID)
	}
}

func TestEngineCachesPerRevision(t *testing.T) {
	ctx := context.Background()
	c := &mapCache{values: map[string]domain.FinancialSummary{}}
	engine := NewEngine(c, time.Minute)

	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	start, end := period.Range(period.Daily, at, time.UTC)
	loads := 0
	load := func(_ context.Context, _ time.Time, _ time.Time) ([]domain.SaleTransaction, error) {
		loads++
		return []domain.SaleTransaction{sale("a", "5.00", 3, at)}, nil
	}

	req := Request{Period: period.Daily, Start: start, End: end, Revision: 7}
	for i := 0; i < 3; i++ {
		s, err := engine.Summary(ctx, req, load)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if s.TotalRevenue.StringFixed(2) != "19.80" {
			t.Fatalf("revenue: %s", s.TotalRevenue.StringFixed(2))
		}
	}
	if loads != 1 {
		t.Fatalf("expected one load for a stable revision, got %d", loads)
	}

	req.Revision = 8
	if _, err := engine.Summary(ctx, req, load); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected a new revision to reload, got %d loads", loads)
	}
}

func TestEngineSeparatesStoreInstances(t *testing.T) {
	ctx := context.Background()
	c := &mapCache{values: map[string]domain.FinancialSummary{}}
	engine := NewEngine(c, time.Minute)

	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	start, end := period.Range(period.Daily, at, time.UTC)

	summarize := func(s *memory.Store, itemID string) domain.FinancialSummary {
		t.Helper()
		if _, err := s.CommitSale(ctx, domain.SaleTransaction{CreatedAt: at}, []domain.LineRequest{{ItemID: itemID, Quantity: 1}}); err != nil {
			t.Fatalf("commit: %v", err)
		}
		rev, err := s.Revision(ctx)
		if err != nil {
			t.Fatalf("revision: %v", err)
		}
		sum, err := engine.Summary(ctx, Request{
			Period:   period.Daily,
			Start:    start,
			End:      end,
			Instance: rev.Instance,
			Revision: rev.Seq,
		}, s.ListTransactions)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		return sum
	}

	// Both stores reach the same sequence number with different sales.
	first := summarize(memory.NewSeeded(), "1")
	second := summarize(memory.NewSeeded(), "2")

	if first.TotalRevenue.StringFixed(2) != "6.60" {
		t.Fatalf("first store revenue: %s", first.TotalRevenue.StringFixed(2))
	}
	if second.TotalRevenue.StringFixed(2) != "15.84" {
		t.Fatalf("second store got another store's summary: revenue %s", second.TotalRevenue.StringFixed(2))
	}
	if c.sets != 2 {
		t.Fatalf("expected one cache entry per store, got %d sets", c.sets)
	}
}

func TestEngineReturnsLoaderError(t *testing.T) {
	engine := NewEngine(nil, 0)
	boom := errors.New("boom")
	_, err := engine.Summary(context.Background(), Request{Period: period.Daily}, func(context.Context, time.Time, time.Time) ([]domain.SaleTransaction, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}
