package report

import (
	"bytes"
	"html/template"
	"time"

	"pharmacare/internal/domain"
)

type receiptLine struct {
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

type receiptView struct {
	PharmacyName string
	ID           string
	Date         string
	CustomerName string
	Lines        []receiptLine
	TotalAmount  string
}

// receiptTmpl escapes every user-controlled field through html/template.
var receiptTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Receipt - {{.ID}}</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 400px; margin: 0 auto; padding: 20px; }
    .header { text-align: center; border-bottom: 2px solid #000; padding-bottom: 10px; margin-bottom: 20px; }
    .item { display: flex; justify-content: space-between; margin-bottom: 10px; }
    .total { border-top: 2px solid #000; padding-top: 10px; margin-top: 20px; font-weight: bold; }
    @media print { body { margin: 0; } }
  </style>
</head>
<body>
  <div class="header">
    <h2>{{.PharmacyName}}</h2>
    <p>Receipt #{{.ID}}</p>
    <p>{{.Date}}</p>
    {{if .CustomerName}}<p>Customer: {{.CustomerName}}</p>{{end}}
  </div>
  <div class="items">
    {{range .Lines}}<div class="item"><span>{{.Name}}</span><span>{{.Quantity}} x ${{.UnitPrice}} = ${{.LineTotal}}</span></div>
    {{end}}
  </div>
  <div class="total">
    <div class="item"><span>Total Amount:</span><span>${{.TotalAmount}}</span></div>
  </div>
  <div style="text-align: center; margin-top: 30px; font-size: 12px;">
    <p>Thank you for your purchase!</p>
    <p>Have a great day!</p>
  </div>
</body>
</html>
`))

// Receipt renders the printable receipt of tx.
func Receipt(tx domain.SaleTransaction, pharmacyName string, loc *time.Location) (Document, error) {
	view := receiptView{
		PharmacyName: pharmacyName,
		ID:           tx.ID,
		Date:         tx.CreatedAt.In(location(loc)).Format("2006-01-02 15:04:05"),
		CustomerName: tx.CustomerName,
		Lines:        make([]receiptLine, 0, len(tx.Lines)),
		TotalAmount:  tx.TotalAmount.StringFixed(2),
	}
	for _, line := range tx.Lines {
		view.Lines = append(view.Lines, receiptLine{
			Name:      line.Item.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.Item.FinalPrice.StringFixed(2),
			LineTotal: line.LineTotal.StringFixed(2),
		})
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, view); err != nil {
		return Document{}, err
	}
	return Document{
		Filename:    "receipt-" + tx.ID + ".html",
		ContentType: ContentTypeHTML,
		Body:        buf.Bytes(),
	}, nil
}
