package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/period"
	"pharmacare/internal/store"
	"pharmacare/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	items        map[string]domain.CatalogItem
	itemOrder    []string
	transactions map[string]*domain.SaleTransaction
	txOrder      []string
	carts        map[string]domain.Cart
	instance     string
	revision     uint64
	now          func() time.Time
}

func New() *Store {
	return &Store{
		items:        make(map[string]domain.CatalogItem),
		transactions: make(map[string]*domain.SaleTransaction),
		carts:        make(map[string]domain.Cart),
		instance:     xid.New("store"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store preloaded with the demo catalog.
func NewSeeded() *Store {
	s := New()
	seed := []domain.CatalogItem{
		{
			ID: "1", Name: "Paracetamol", PackagingUnit: "Blister Pack", BatchNumber: "PCM-2024-001",
			Category: "Pain Relief", Manufacturer: "PharmaCorp Ltd", BasePrice: decimal.New(500, -2),
			InitialStock: 200, Receipt: 50, Consumed: 100, ExpiredDamaged: 10,
		},
		{
			ID: "2", Name: "Amoxicillin", PackagingUnit: "Capsule Strip", BatchNumber: "AMX-2024-001",
			Category: "Antibiotics", Manufacturer: "MediCure Industries", BasePrice: decimal.New(1200, -2),
			InitialStock: 150, Receipt: 30, Consumed: 50, ExpiredDamaged: 5,
		},
		{
			ID: "3", Name: "Vitamin C", PackagingUnit: "Tablet Bottle", BatchNumber: "VTC-2024-001",
			Category: "Vitamins", Manufacturer: "HealthMax Pharma", BasePrice: decimal.New(800, -2),
			InitialStock: 100, Receipt: 25, Consumed: 75, ExpiredDamaged: 2,
		},
	}
	now := s.now()
	for _, item := range seed {
		ledger.Recompute(&item)
		item.Version = 1
		item.UpdatedAt = now
		s.items[item.ID] = item
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CatalogItem, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		items = append(items, s.items[id])
	}
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

// UpsertItem replaces every form field of the item but keeps the sold count
// of an existing item. expectedVersion 0 skips the version check.
func (s *Store) UpsertItem(_ context.Context, item domain.CatalogItem, expectedVersion int64) (*domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveItem(item, expectedVersion, false)
}

func (s *Store) UpdateItem(_ context.Context, item domain.CatalogItem, expectedVersion int64) (*domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveItem(item, expectedVersion, true)
}

// saveItem writes item under mu. With mustExist set a missing item is
// ErrNotFound instead of being created.
func (s *Store) saveItem(item domain.CatalogItem, expectedVersion int64, mustExist bool) (*domain.CatalogItem, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("%w: item id is required", store.ErrInvalidInput)
	}

	existing, exists := s.items[item.ID]
	if !exists && mustExist {
		return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, item.ID)
	}
	if exists {
		if expectedVersion != 0 && expectedVersion != existing.Version {
			return nil, fmt.Errorf("%w: item %s is at version %d, not %d", store.ErrVersionConflict, item.ID, existing.Version, expectedVersion)
		}
		item.Consumed = existing.Consumed
		item.Version = existing.Version + 1
	} else {
		if expectedVersion != 0 {
			return nil, store.ErrNotFound
		}
		item.Consumed = 0
		item.Version = 1
	}

	ledger.Recompute(&item)
	if item.StockAmount < 0 {
		return nil, fmt.Errorf("%w: stock amount would be %d", store.ErrInvalidInput, item.StockAmount)
	}
	item.UpdatedAt = s.now()

	if !exists {
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	s.items[item.ID] = item
	s.revision++

	saved := item
	return &saved, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	s.itemOrder = slices.DeleteFunc(s.itemOrder, func(v string) bool { return v == id })
	s.revision++
	return nil
}

func (s *Store) ApplyStockEvent(_ context.Context, id string, event domain.StockEvent) (*domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := ledger.ApplyStockEvent(&item, event.Kind, event.Quantity); err != nil {
		return nil, err
	}
	item.Version++
	item.UpdatedAt = s.now()
	s.items[id] = item
	s.revision++

	updated := item
	return &updated, nil
}

// CommitSale records every line against working copies of the catalog and
// only publishes them when the whole sale succeeds.
func (s *Store) CommitSale(_ context.Context, tx domain.SaleTransaction, lines []domain.LineRequest) (*domain.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.workingCopies(lines, nil)
	posted, total, err := ledger.PostSale(working, lines)
	if err != nil {
		return nil, translateLedgerErr(err)
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return nil, fmt.Errorf("%w: transaction %s already exists", store.ErrInvalidInput, tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	tx.Status = domain.TxStatusCommitted
	tx.Lines = posted
	tx.TotalAmount = total

	s.publish(working)
	s.transactions[tx.ID] = cloneTransaction(&tx)
	s.txOrder = append(s.txOrder, tx.ID)
	s.revision++

	return cloneTransaction(&tx), nil
}

func (s *Store) FindTransaction(_ context.Context, id string) (*domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// ListTransactions returns transactions created in [from, to) in commit
// order. A zero bound leaves that side open.
func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleTransaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if !period.Contains(from, to, tx.CreatedAt) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	return out, nil
}

// EditTransaction reverses the old lines and records the new ones in one
// step. On any failure neither the catalog nor the transaction changes.
func (s *Store) EditTransaction(_ context.Context, id string, customerName *string, lines []domain.LineRequest, at time.Time) (*domain.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	tx := cloneTransaction(current)
	working := s.workingCopies(lines, tx.Lines)

	skipped, err := ledger.UnpostSale(working, tx)
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	posted, total, err := ledger.PostSale(working, lines)
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	if err := ledger.Recommit(tx); err != nil {
		return nil, err
	}

	tx.Lines = posted
	tx.TotalAmount = total
	if customerName != nil {
		tx.CustomerName = *customerName
	}
	if at.IsZero() {
		at = s.now()
	}
	tx.EditedAt = &at

	if len(skipped) > 0 {
		log.Printf("[memory-store] edit %s: no stock restored for removed items %v", id, skipped)
	}
	s.publish(working)
	s.transactions[id] = tx
	s.revision++

	return cloneTransaction(tx), nil
}

// DeleteTransaction restores the stock of every line and drops the
// transaction. The returned copy carries the deleted status.
func (s *Store) DeleteTransaction(_ context.Context, id string) (*domain.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	tx := cloneTransaction(current)
	working := s.workingCopies(nil, tx.Lines)
	skipped, err := ledger.UnpostSale(working, tx)
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	if err := ledger.MarkDeleted(tx); err != nil {
		return nil, err
	}

	if len(skipped) > 0 {
		log.Printf("[memory-store] delete %s: no stock restored for removed items %v", id, skipped)
	}
	s.publish(working)
	delete(s.transactions, id)
	s.txOrder = slices.DeleteFunc(s.txOrder, func(v string) bool { return v == id })
	s.revision++

	return tx, nil
}

func (s *Store) CreateCart(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart.ID == "" {
		cart.ID = xid.New("cart")
	}
	if _, exists := s.carts[cart.ID]; exists {
		return nil, fmt.Errorf("%w: cart %s already exists", store.ErrInvalidInput, cart.ID)
	}
	now := s.now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	s.carts[cart.ID] = cloneCart(cart)
	created := cloneCart(cart)
	return &created, nil
}

func (s *Store) GetCart(_ context.Context, id string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneCart(cart)
	return &dup, nil
}

func (s *Store) SaveCart(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.carts[cart.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart.CreatedAt = existing.CreatedAt
	cart.UpdatedAt = s.now()
	s.carts[cart.ID] = cloneCart(cart)
	saved := cloneCart(cart)
	return &saved, nil
}

func (s *Store) DeleteCart(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.carts, id)
	return nil
}

func (s *Store) Revision(_ context.Context) (store.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Revision{Instance: s.instance, Seq: s.revision}, nil
}

// workingCopies copies every catalog item referenced by requests or by
// existing lines. Items that no longer exist are left out. Caller holds mu.
func (s *Store) workingCopies(requests []domain.LineRequest, existing []domain.TransactionLine) map[string]*domain.CatalogItem {
	working := make(map[string]*domain.CatalogItem, len(requests)+len(existing))
	add := func(id string) {
		if _, done := working[id]; done {
			return
		}
		if item, ok := s.items[id]; ok {
			dup := item
			working[id] = &dup
		}
	}
	for _, line := range existing {
		add(line.Item.ID)
	}
	for _, req := range requests {
		add(req.ItemID)
	}
	return working
}

// publish writes working copies back to the catalog. Caller holds mu.
func (s *Store) publish(working map[string]*domain.CatalogItem) {
	now := s.now()
	for id, item := range working {
		if original, ok := s.items[id]; ok && original.Consumed == item.Consumed {
			continue
		}
		item.Version++
		item.UpdatedAt = now
		s.items[id] = *item
	}
}

func translateLedgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrUnknownItem):
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	case errors.Is(err, ledger.ErrEmptySale), errors.Is(err, ledger.ErrInvalidQuantity):
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	default:
		return err
	}
}

func cloneTransaction(src *domain.SaleTransaction) *domain.SaleTransaction {
	if src == nil {
		return nil
	}
	dup := *src
	dupLines := make([]domain.TransactionLine, len(src.Lines))
	copy(dupLines, src.Lines)
	dup.Lines = dupLines
	if src.EditedAt != nil {
		editedAt := *src.EditedAt
		dup.EditedAt = &editedAt
	}
	return &dup
}

func cloneCart(src domain.Cart) domain.Cart {
	dup := src
	lines := make([]domain.CartLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}
