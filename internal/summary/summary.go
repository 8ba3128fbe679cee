// Package summary computes the financial dashboard figures for a period.
package summary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmacare/internal/cache"
	"pharmacare/internal/domain"
	"pharmacare/internal/period"
)

const RecentLimit = 10

var hundred = decimal.NewFromInt(100)

// Summarize folds txs, already filtered to [start, end), into dashboard figures.
// Cost is base price times quantity from each line's frozen snapshot.
func Summarize(txs []domain.SaleTransaction, p period.Period, start time.Time, end time.Time) domain.FinancialSummary {
	out := domain.FinancialSummary{
		Period:             string(p),
		Start:              start,
		End:                end,
		TotalRevenue:       decimal.Zero,
		TotalCost:          decimal.Zero,
		TotalTransactions:  len(txs),
		RecentTransactions: Recent(txs, RecentLimit),
	}

	for _, tx := range txs {
		out.TotalRevenue = out.TotalRevenue.Add(tx.TotalAmount)
		out.TotalCost = out.TotalCost.Add(TransactionCost(tx))
		out.TotalItems += len(tx.Lines)
		for _, line := range tx.Lines {
			out.UnitsSold += line.Quantity
		}
	}

	out.TotalProfit = out.TotalRevenue.Sub(out.TotalCost)
	out.ProfitMargin = decimal.Zero
	if out.TotalRevenue.IsPositive() {
		out.ProfitMargin = out.TotalProfit.Div(out.TotalRevenue).Mul(hundred).Round(2)
	}
	out.AverageTransaction = out.TotalRevenue.Div(decimal.NewFromInt(int64(max(out.TotalTransactions, 1)))).Round(2)
	return out
}

func TransactionCost(tx domain.SaleTransaction) decimal.Decimal {
	cost := decimal.Zero
	for _, line := range tx.Lines {
		cost = cost.Add(LineCost(line))
	}
	return cost
}

func LineCost(line domain.TransactionLine) decimal.Decimal {
	return line.Item.BasePrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// Recent returns the last n transactions of txs, newest first.
func Recent(txs []domain.SaleTransaction, n int) []domain.SaleTransaction {
	if n > len(txs) {
		n = len(txs)
	}
	out := make([]domain.SaleTransaction, 0, n)
	for i := len(txs) - 1; i >= len(txs)-n; i-- {
		out = append(out, txs[i])
	}
	return out
}

// Request names one summary. Instance and Revision together identify the
// store state it is built from.
type Request struct {
	Period   period.Period
	Start    time.Time
	End      time.Time
	Instance string
	Revision uint64
}

// Loader fetches the transactions created in [from, to).
type Loader func(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error)

type Engine struct {
	cache    cache.SummaryCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.SummaryCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSummaryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Summary returns the cached summary for req when one exists for the same
// store revision, and computes and caches it otherwise. Cache failures only
// cost a recomputation.
func (e *Engine) Summary(ctx context.Context, req Request, load Loader) (domain.FinancialSummary, error) {
	key := buildCacheKey(req)
	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[summary] WARN: cache get failed: %v", err)
	}
	if err == nil && ok {
		return *cached, nil
	}

	txs, err := load(ctx, req.Start, req.End)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	out := Summarize(txs, req.Period, req.Start, req.End)

	if err := e.cache.Set(ctx, key, &out, e.cacheTTL); err != nil {
		log.Printf("[summary] WARN: cache set failed: %v", err)
	}
	return out, nil
}

func buildCacheKey(req Request) string {
	parts := []string{
		string(req.Period),
		fmt.Sprintf("s:%d", req.Start.UnixNano()),
		fmt.Sprintf("e:%d", req.End.UnixNano()),
		"i:" + req.Instance,
		fmt.Sprintf("r:%d", req.Revision),
	}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "pharmacare:summary:" + hex.EncodeToString(hash[:])
}
