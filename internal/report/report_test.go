package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/period"
	"pharmacare/internal/summary"
)

var reportDay = time.Date(2024, time.March, 13, 10, 30, 0, 0, time.UTC)

func catalogItem(id string, name string, base string, stock int) domain.CatalogItem {
	item := domain.CatalogItem{
		ID:            id,
		Name:          name,
		PackagingUnit: "Blister Pack",
		BatchNumber:   "B-" + id,
		Category:      "Pain Relief",
		Manufacturer:  "PharmaCorp Ltd",
		BasePrice:     decimal.RequireFromString(base),
		InitialStock:  stock,
	}
	ledger.Recompute(&item)
	return item
}

func postedSale(t *testing.T, id string, customer string, lines ...domain.LineRequest) domain.SaleTransaction {
	t.Helper()
	items := map[string]*domain.CatalogItem{}
	for _, item := range []domain.CatalogItem{
		catalogItem("1", "Paracetamol", "5.00", 500),
		catalogItem("2", "Amoxicillin", "12.00", 500),
		catalogItem("3", "Vitamin C", "8.33", 500),
	} {
		dup := item
		items[item.ID] = &dup
	}
	posted, total, err := ledger.PostSale(items, lines)
	if err != nil {
		t.Fatalf("post sale: %v", err)
	}
	return domain.SaleTransaction{
		ID:           id,
		CreatedAt:    reportDay,
		CustomerName: customer,
		Status:       domain.TxStatusCommitted,
		Lines:        posted,
		TotalAmount:  total,
	}
}

func parseCSV(t *testing.T, body []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestEncodeCSVQuotesEveryField(t *testing.T) {
	body := EncodeCSV(Table{
		Header: []string{"Name", "Note"},
		Rows:   [][]string{{`Cough "Max"`, "a, b"}},
	})
	want := "\"Name\",\"Note\"\n\"Cough \"\"Max\"\"\",\"a, b\""
	if string(body) != want {
		t.Fatalf("unexpected csv:\n%s", body)
	}
}

func TestSalesCSVTotalsRoundTrip(t *testing.T) {
	txs := []domain.SaleTransaction{
		postedSale(t, "tx-1", "", domain.LineRequest{ItemID: "1", Quantity: 3}),
		postedSale(t, "tx-2", "Ana", domain.LineRequest{ItemID: "2", Quantity: 7}, domain.LineRequest{ItemID: "3", Quantity: 11}),
		postedSale(t, "tx-3", "Budi", domain.LineRequest{ItemID: "3", Quantity: 1}),
	}

	records := parseCSV(t, EncodeCSV(SalesTable(txs, time.UTC)))
	if len(records) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(records))
	}
	if records[0][8] != "Total Price" {
		t.Fatalf("unexpected header %v", records[0])
	}

	sum := decimal.Zero
	for _, row := range records[1:] {
		sum = sum.Add(decimal.RequireFromString(row[8]))
	}
	want := decimal.Zero
	for _, tx := range txs {
		want = want.Add(tx.TotalAmount)
	}
	if !sum.Equal(want) {
		t.Fatalf("csv total %s != transaction total %s", sum, want)
	}

	first := records[1]
	if first[0] != "2024-03-13" || first[2] != "Walk-in" || first[7] != "6.60" || first[8] != "19.80" || first[9] != "15.00" || first[10] != "4.80" {
		t.Fatalf("unexpected first row %v", first)
	}
}

func TestInventoryStockStatusColumn(t *testing.T) {
	items := []domain.CatalogItem{
		catalogItem("a", "A", "1.00", 4),
		catalogItem("b", "B", "1.00", 7),
		catalogItem("c", "C", "1.00", 25),
	}
	records := parseCSV(t, EncodeCSV(InventoryTable(items)))

	want := []string{"Critical", "Low Stock", "In Stock"}
	for i, status := range want {
		row := records[i+1]
		if row[len(row)-1] != status {
			t.Fatalf("row %d: expected %q, got %q", i, status, row[len(row)-1])
		}
	}
	if records[1][13] != "1.32" {
		t.Fatalf("expected final price column 1.32, got %s", records[1][13])
	}
}

func TestFinancialTable(t *testing.T) {
	txs := []domain.SaleTransaction{postedSale(t, "tx-1", "", domain.LineRequest{ItemID: "1", Quantity: 3})}
	start, end := period.Range(period.Weekly, reportDay, time.UTC)
	s := summary.Summarize(txs, period.Weekly, start, end)

	records := parseCSV(t, EncodeCSV(FinancialTable(s, time.UTC)))
	got := map[string]string{}
	for _, row := range records[1:] {
		got[row[0]] = row[1]
	}
	checks := map[string]string{
		"Period":              "Weekly",
		"Date Range":          "2024-03-10 - 2024-03-17",
		"Total Revenue":       "$19.80",
		"Total Cost":          "$15.00",
		"Total Profit":        "$4.80",
		"Profit Margin":       "24.24%",
		"Total Transactions":  "1",
		"Total Items Sold":    "1",
		"Average Transaction": "$19.80",
	}
	for metric, want := range checks {
		if got[metric] != want {
			t.Fatalf("%s: expected %q, got %q", metric, want, got[metric])
		}
	}
}

func TestFinancialTransactionsTable(t *testing.T) {
	txs := []domain.SaleTransaction{
		postedSale(t, "tx-9", "Ana", domain.LineRequest{ItemID: "1", Quantity: 2}, domain.LineRequest{ItemID: "2", Quantity: 1}),
	}
	records := parseCSV(t, EncodeCSV(FinancialTransactionsTable(txs, time.UTC)))
	row := records[1]
	if row[3] != "Paracetamol (2); Amoxicillin (1)" {
		t.Fatalf("unexpected items cell %q", row[3])
	}
	if row[4] != "29.04" || row[5] != "22.00" || row[6] != "7.04" {
		t.Fatalf("unexpected money cells %v", row[4:])
	}
}

func TestFilenames(t *testing.T) {
	cases := map[Kind]string{
		KindSales:                 "sales-report-monthly-2024-03-13.csv",
		KindInventory:             "inventory-report-2024-03-13.csv",
		KindFinancial:             "financial-summary-monthly-2024-03-13.csv",
		KindFinancialTransactions: "financial-report-monthly-2024-03-13.csv",
	}
	for kind, want := range cases {
		if got := Filename(kind, period.Monthly, reportDay, FormatCSV); got != want {
			t.Fatalf("%s: expected %s, got %s", kind, want, got)
		}
	}
}

func TestParseKindAndFormat(t *testing.T) {
	if _, err := ParseKind("payroll"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatCSV {
		t.Fatalf("expected csv default, got %q %v", f, err)
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected unknown format, got %v", err)
	}
}

func TestRenderXLSXMatchesCSVRows(t *testing.T) {
	items := []domain.CatalogItem{catalogItem("a", "Paracetamol", "5.00", 140)}
	table := InventoryTable(items)

	doc, err := Render(KindInventory, table, period.Daily, reportDay, FormatXLSX)
	if err != nil {
		t.Fatalf("render xlsx: %v", err)
	}
	if doc.ContentType != ContentTypeXLSX || !strings.HasSuffix(doc.Filename, ".xlsx") {
		t.Fatalf("unexpected document %s %s", doc.Filename, doc.ContentType)
	}

	f, err := excelize.OpenReader(bytes.NewReader(doc.Body))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Inventory")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Drug Name" || rows[1][0] != "Paracetamol" || rows[1][14] != "In Stock" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestReceiptEscapesAndFormatsMoney(t *testing.T) {
	tx := postedSale(t, "tx-7", `<script>alert(1)</script>`, domain.LineRequest{ItemID: "1", Quantity: 3})

	doc, err := Receipt(tx, "PharmaCare Pharmacy", time.UTC)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	html := string(doc.Body)
	for _, want := range []string{"PharmaCare Pharmacy", "Receipt #tx-7", "3 x $6.60 = $19.80", "$19.80", "Thank you for your purchase!"} {
		if !strings.Contains(html, want) {
			t.Fatalf("receipt missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("customer name was not escaped")
	}
}
