package report

import (
	"strconv"
	"strings"
	"time"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/period"
	"pharmacare/internal/summary"
)

const walkIn = "Walk-in"

const dateLayout = "2006-01-02"

func customer(name string) string {
	if strings.TrimSpace(name) == "" {
		return walkIn
	}
	return name
}

// SalesTable has one row per transaction line.
func SalesTable(txs []domain.SaleTransaction, loc *time.Location) Table {
	t := Table{
		Sheet: "Sales",
		Header: []string{
			"Date", "Transaction ID", "Customer", "Drug Name", "Batch Number", "Packaging Unit",
			"Quantity", "Unit Price", "Total Price", "Base Cost", "Profit",
		},
		Rows: [][]string{},
	}
	for _, tx := range txs {
		date := tx.CreatedAt.In(location(loc)).Format(dateLayout)
		for _, line := range tx.Lines {
			cost := summary.LineCost(line)
			t.Rows = append(t.Rows, []string{
				date,
				tx.ID,
				customer(tx.CustomerName),
				line.Item.Name,
				line.Item.BatchNumber,
				line.Item.PackagingUnit,
				strconv.Itoa(line.Quantity),
				line.Item.FinalPrice.StringFixed(2),
				line.LineTotal.StringFixed(2),
				cost.StringFixed(2),
				line.LineTotal.Sub(cost).StringFixed(2),
			})
		}
	}
	return t
}

// InventoryTable lists the catalog with the derived Stock Status column.
func InventoryTable(items []domain.CatalogItem) Table {
	t := Table{
		Sheet: "Inventory",
		Header: []string{
			"Drug Name", "Packaging Unit", "Batch Number", "Category", "Initial Stock", "Receipt",
			"Consumed", "Expired/Damaged", "Damaged Returns", "Current Stock", "Manufacturer",
			"Base Price", "Price + Net", "Price + Net + Tax", "Stock Status",
		},
		Rows: [][]string{},
	}
	for _, item := range items {
		t.Rows = append(t.Rows, []string{
			item.Name,
			item.PackagingUnit,
			item.BatchNumber,
			item.Category,
			strconv.Itoa(item.InitialStock),
			strconv.Itoa(item.Receipt),
			strconv.Itoa(item.Consumed),
			strconv.Itoa(item.ExpiredDamaged),
			strconv.Itoa(item.DamagedReturns),
			strconv.Itoa(item.StockAmount),
			item.Manufacturer,
			item.BasePrice.StringFixed(2),
			item.NetPrice.StringFixed(2),
			item.FinalPrice.StringFixed(2),
			ledger.StockStatus(item.StockAmount),
		})
	}
	return t
}

// FinancialTable is the Metric/Value summary report.
func FinancialTable(s domain.FinancialSummary, loc *time.Location) Table {
	loc = location(loc)
	return Table{
		Sheet:  "Financial Summary",
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Period", period.Period(s.Period).Title()},
			{"Date Range", s.Start.In(loc).Format(dateLayout) + " - " + s.End.In(loc).Format(dateLayout)},
			{"Total Revenue", "$" + s.TotalRevenue.StringFixed(2)},
			{"Total Cost", "$" + s.TotalCost.StringFixed(2)},
			{"Total Profit", "$" + s.TotalProfit.StringFixed(2)},
			{"Profit Margin", s.ProfitMargin.StringFixed(2) + "%"},
			{"Total Transactions", strconv.Itoa(s.TotalTransactions)},
			{"Total Items Sold", strconv.Itoa(s.TotalItems)},
			{"Average Transaction", "$" + s.AverageTransaction.StringFixed(2)},
		},
	}
}

// FinancialTransactionsTable has one row per transaction with its cost and profit.
func FinancialTransactionsTable(txs []domain.SaleTransaction, loc *time.Location) Table {
	t := Table{
		Sheet:  "Transactions",
		Header: []string{"Transaction ID", "Date", "Customer", "Items", "Total Amount", "Cost", "Profit"},
		Rows:   [][]string{},
	}
	for _, tx := range txs {
		names := make([]string, 0, len(tx.Lines))
		for _, line := range tx.Lines {
			names = append(names, line.Item.Name+" ("+strconv.Itoa(line.Quantity)+")")
		}
		cost := summary.TransactionCost(tx)
		t.Rows = append(t.Rows, []string{
			tx.ID,
			tx.CreatedAt.In(location(loc)).Format(dateLayout),
			customer(tx.CustomerName),
			strings.Join(names, "; "),
			tx.TotalAmount.StringFixed(2),
			cost.StringFixed(2),
			tx.TotalAmount.Sub(cost).StringFixed(2),
		})
	}
	return t
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
