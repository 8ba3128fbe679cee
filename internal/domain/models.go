package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is one drug/product line. StockAmount, NetPrice and FinalPrice
// are derived and must only be written by ledger.Recompute.
type CatalogItem struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PackagingUnit  string          `json:"packaging_unit"`
	BatchNumber    string          `json:"batch_number"`
	Category       string          `json:"category"`
	Manufacturer   string          `json:"manufacturer"`
	BasePrice      decimal.Decimal `json:"base_price"`
	NetPrice       decimal.Decimal `json:"net_price"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	InitialStock   int             `json:"initial_stock"`
	Receipt        int             `json:"receipt"`
	Consumed       int             `json:"consumed"`
	ExpiredDamaged int             `json:"expired_damaged"`
	DamagedReturns int             `json:"damaged_returns"`
	StockAmount    int             `json:"stock_amount"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ItemForm is the catalog edit form payload. Consumed is not part of the
// form: edits keep the sold count of the existing item.
type ItemForm struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name"`
	PackagingUnit   string          `json:"packaging_unit"`
	BatchNumber     string          `json:"batch_number"`
	Category        string          `json:"category"`
	Manufacturer    string          `json:"manufacturer"`
	BasePrice       decimal.Decimal `json:"base_price"`
	InitialStock    int             `json:"initial_stock"`
	Receipt         int             `json:"receipt"`
	ExpiredDamaged  int             `json:"expired_damaged"`
	DamagedReturns  int             `json:"damaged_returns"`
	ExpectedVersion int64           `json:"expected_version,omitempty"`
}

// ItemSnapshot is a frozen copy of a CatalogItem taken at sale time.
type ItemSnapshot struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PackagingUnit string          `json:"packaging_unit"`
	BatchNumber   string          `json:"batch_number"`
	Category      string          `json:"category"`
	Manufacturer  string          `json:"manufacturer"`
	BasePrice     decimal.Decimal `json:"base_price"`
	NetPrice      decimal.Decimal `json:"net_price"`
	FinalPrice    decimal.Decimal `json:"final_price"`
}

type StockEventKind string

const (
	StockEventReceipt        StockEventKind = "receipt"
	StockEventExpiredDamaged StockEventKind = "expired_damaged"
	StockEventDamagedReturn  StockEventKind = "damaged_return"
)

type StockEvent struct {
	Kind     StockEventKind `json:"kind"`
	Quantity int            `json:"quantity"`
}

type PriceQuote struct {
	BasePrice  decimal.Decimal `json:"base_price"`
	NetPrice   decimal.Decimal `json:"net_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

type CartLine struct {
	ItemID     string          `json:"item_id"`
	Name       string          `json:"name"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Cart is an in-progress sale. It is never persisted beyond the process.
type Cart struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name,omitempty"`
	Lines        []CartLine      `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CartLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutRequest struct {
	CustomerName string `json:"customer_name"`
}

type LineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type TransactionEditRequest struct {
	CustomerName *string       `json:"customer_name,omitempty"`
	Lines        []LineRequest `json:"lines"`
}

type TransactionLine struct {
	Item      ItemSnapshot    `json:"item"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type SaleTransaction struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	EditedAt     *time.Time        `json:"edited_at,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Status       string            `json:"status"`
	Lines        []TransactionLine `json:"lines"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
}

// Transaction states. TxStatusReversed only exists while an edit or delete
// is in flight inside the store and is never returned to callers.
const (
	TxStatusCommitted   = "committed"
	TxStatusReversed    = "reversed"
	TxStatusRecommitted = "recommitted"
	TxStatusDeleted     = "deleted"
)

type FinancialSummary struct {
	Period             string            `json:"period"`
	Start              time.Time         `json:"start"`
	End                time.Time         `json:"end"`
	TotalRevenue       decimal.Decimal   `json:"total_revenue"`
	TotalCost          decimal.Decimal   `json:"total_cost"`
	TotalProfit        decimal.Decimal   `json:"total_profit"`
	ProfitMargin       decimal.Decimal   `json:"profit_margin"`
	TotalTransactions  int               `json:"total_transactions"`
	TotalItems         int               `json:"total_items"`
	UnitsSold          int               `json:"units_sold"`
	AverageTransaction decimal.Decimal   `json:"average_transaction"`
	RecentTransactions []SaleTransaction `json:"recent_transactions"`
}

type LowStockResponse struct {
	Count int           `json:"count"`
	Items []CatalogItem `json:"items"`
}

type TransactionListResponse struct {
	Period       string            `json:"period,omitempty"`
	Transactions []SaleTransaction `json:"transactions"`
}
