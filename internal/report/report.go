// Package report renders sales, inventory and financial exports and the
// printable receipt.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacare/internal/period"
)

type Kind string

const (
	KindSales                 Kind = "sales"
	KindInventory             Kind = "inventory"
	KindFinancial             Kind = "financial"
	KindFinancialTransactions Kind = "financial-transactions"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeHTML = "text/html; charset=utf-8"
)

var (
	ErrUnknownKind   = errors.New("unknown report kind")
	ErrUnknownFormat = errors.New("unknown report format")
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindSales, KindInventory, KindFinancial, KindFinancialTransactions:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// ParseFormat defaults to CSV when raw is empty.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Table is a header row plus data rows, already formatted as text.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// Document is a rendered export ready to be served as a download.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Filename follows <report>-<period>-<YYYY-MM-DD>.<ext>; the inventory
// report is a point-in-time snapshot and carries no period.
func Filename(kind Kind, p period.Period, now time.Time, format Format) string {
	date := now.Format("2006-01-02")
	switch kind {
	case KindSales:
		return fmt.Sprintf("sales-report-%s-%s.%s", p, date, format)
	case KindInventory:
		return fmt.Sprintf("inventory-report-%s.%s", date, format)
	case KindFinancial:
		return fmt.Sprintf("financial-summary-%s-%s.%s", p, date, format)
	default:
		return fmt.Sprintf("financial-report-%s-%s.%s", p, date, format)
	}
}

// Render encodes table in format and names it for kind.
func Render(kind Kind, table Table, p period.Period, now time.Time, format Format) (Document, error) {
	doc := Document{Filename: Filename(kind, p, now, format)}
	switch format {
	case FormatCSV:
		doc.ContentType = ContentTypeCSV
		doc.Body = EncodeCSV(table)
	case FormatXLSX:
		body, err := EncodeXLSX(table)
		if err != nil {
			return Document{}, err
		}
		doc.ContentType = ContentTypeXLSX
		doc.Body = body
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return doc, nil
}

// EncodeCSV writes every field double-quoted, with embedded quotes doubled
// and rows separated by "\n".
func EncodeCSV(table Table) []byte {
	var b strings.Builder
	writeCSVRow(&b, table.Header)
	for _, row := range table.Rows {
		b.WriteByte('\n')
		writeCSVRow(&b, row)
	}
	return []byte(b.String())
}

func writeCSVRow(b *strings.Builder, row []string) {
	for i, cell := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
}
