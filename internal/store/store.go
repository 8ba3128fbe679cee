package store

import (
	"context"
	"errors"
	"time"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInsufficientStock = ledger.ErrInsufficientStock
	ErrInvalidTransition = ledger.ErrInvalidTransition
)

// Repository holds the catalog, the committed sales and the open carts.
// Every method is a single atomic step: no caller can observe a ledger state
// between two of its mutations.
type Repository interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*domain.CatalogItem, error)
	UpsertItem(ctx context.Context, item domain.CatalogItem, expectedVersion int64) (*domain.CatalogItem, error)
	// UpdateItem is UpsertItem restricted to existing items; a missing id is ErrNotFound.
	UpdateItem(ctx context.Context, item domain.CatalogItem, expectedVersion int64) (*domain.CatalogItem, error)
	DeleteItem(ctx context.Context, id string) error
	ApplyStockEvent(ctx context.Context, id string, event domain.StockEvent) (*domain.CatalogItem, error)

	CommitSale(ctx context.Context, tx domain.SaleTransaction, lines []domain.LineRequest) (*domain.SaleTransaction, error)
	FindTransaction(ctx context.Context, id string) (*domain.SaleTransaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error)
	EditTransaction(ctx context.Context, id string, customerName *string, lines []domain.LineRequest, at time.Time) (*domain.SaleTransaction, error)
	DeleteTransaction(ctx context.Context, id string) (*domain.SaleTransaction, error)

	CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	DeleteCart(ctx context.Context, id string) error

	// Revision increases on every catalog or transaction mutation.
	Revision(ctx context.Context) (Revision, error)
}

// Revision identifies a state of one repository instance. Seq restarts with
// the process, so it is only meaningful together with Instance.
type Revision struct {
	Instance string
	Seq      uint64
}
