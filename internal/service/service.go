package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmacare/internal/cart"
	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/metrics"
	"pharmacare/internal/period"
	"pharmacare/internal/report"
	"pharmacare/internal/store"
	"pharmacare/internal/summary"
	"pharmacare/internal/xid"
)

type Options struct {
	Location     *time.Location
	PharmacyName string
	Now          func() time.Time
}

type Service struct {
	repo         store.Repository
	summaries    *summary.Engine
	metrics      *metrics.Metrics
	loc          *time.Location
	pharmacyName string
	now          func() time.Time

	// cartMu serializes the read-modify-write of carts.
	cartMu sync.Mutex
}

func New(repo store.Repository, summaries *summary.Engine, m *metrics.Metrics, opts Options) *Service {
	if summaries == nil {
		summaries = summary.NewEngine(nil, 0)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PharmacyName == "" {
		opts.PharmacyName = "PharmaCare Pharmacy"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:         repo,
		summaries:    summaries,
		metrics:      m,
		loc:          opts.Location,
		pharmacyName: opts.PharmacyName,
		now:          opts.Now,
	}
}

// ListItems returns the catalog, filtered by a case-insensitive match of query
// against name, packaging unit, manufacturer, category and batch number.
func (s *Service) ListItems(ctx context.Context, query string) ([]domain.CatalogItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items, nil
	}

	matched := make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		for _, field := range []string{item.Name, item.PackagingUnit, item.Manufacturer, item.Category, item.BatchNumber} {
			if strings.Contains(strings.ToLower(field), query) {
				matched = append(matched, item)
				break
			}
		}
	}
	return matched, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.CatalogItem, error) {
	item, err := s.repo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return *item, nil
}

// SaveItem validates the catalog form and upserts the item by identifier.
// Nothing is written when validation fails.
func (s *Service) SaveItem(ctx context.Context, form domain.ItemForm) (domain.CatalogItem, error) {
	item, err := itemFromForm(form)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}

	saved, err := s.repo.UpsertItem(ctx, item, form.ExpectedVersion)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return *saved, nil
}

// UpdateItem applies the catalog form to an existing item. Unlike SaveItem it
// never creates: a missing id is store.ErrNotFound.
func (s *Service) UpdateItem(ctx context.Context, id string, form domain.ItemForm) (domain.CatalogItem, error) {
	form.ID = strings.TrimSpace(id)
	if form.ID == "" {
		return domain.CatalogItem{}, fmt.Errorf("%w: item id is required", store.ErrInvalidInput)
	}
	item, err := itemFromForm(form)
	if err != nil {
		return domain.CatalogItem{}, err
	}

	saved, err := s.repo.UpdateItem(ctx, item, form.ExpectedVersion)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return *saved, nil
}

func itemFromForm(form domain.ItemForm) (domain.CatalogItem, error) {
	item := domain.CatalogItem{
		ID:             strings.TrimSpace(form.ID),
		Name:           strings.TrimSpace(form.Name),
		PackagingUnit:  strings.TrimSpace(form.PackagingUnit),
		BatchNumber:    strings.TrimSpace(form.BatchNumber),
		Category:       strings.TrimSpace(form.Category),
		Manufacturer:   strings.TrimSpace(form.Manufacturer),
		BasePrice:      form.BasePrice,
		InitialStock:   form.InitialStock,
		Receipt:        form.Receipt,
		ExpiredDamaged: form.ExpiredDamaged,
		DamagedReturns: form.DamagedReturns,
	}

	required := []struct {
		field string
		value string
	}{
		{"name", item.Name},
		{"packaging_unit", item.PackagingUnit},
		{"batch_number", item.BatchNumber},
		{"manufacturer", item.Manufacturer},
		{"category", item.Category},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.CatalogItem{}, fmt.Errorf("%w: %s is required", store.ErrInvalidInput, r.field)
		}
	}
	if item.BasePrice.IsNegative() {
		return domain.CatalogItem{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, ledger.ErrNegativePrice)
	}
	counts := []struct {
		field string
		value int
	}{
		{"initial_stock", item.InitialStock},
		{"receipt", item.Receipt},
		{"expired_damaged", item.ExpiredDamaged},
		{"damaged_returns", item.DamagedReturns},
	}
	for _, c := range counts {
		if c.value < 0 {
			return domain.CatalogItem{}, fmt.Errorf("%w: %s must not be negative", store.ErrInvalidInput, c.field)
		}
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.repo.DeleteItem(ctx, strings.TrimSpace(id))
}

func (s *Service) ApplyStockEvent(ctx context.Context, id string, event domain.StockEvent) (domain.CatalogItem, error) {
	event.Kind = domain.StockEventKind(strings.ToLower(strings.TrimSpace(string(event.Kind))))
	switch event.Kind {
	case domain.StockEventReceipt, domain.StockEventExpiredDamaged, domain.StockEventDamagedReturn:
	default:
		return domain.CatalogItem{}, fmt.Errorf("%w: %w: %q", store.ErrInvalidInput, ledger.ErrUnknownStockEvent, event.Kind)
	}
	if event.Quantity < 1 {
		return domain.CatalogItem{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, ledger.ErrInvalidQuantity)
	}

	item, err := s.repo.ApplyStockEvent(ctx, strings.TrimSpace(id), event)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return *item, nil
}

// PreviewPrices derives the prices the form shows while a base price is typed.
func (s *Service) PreviewPrices(base decimal.Decimal) (domain.PriceQuote, error) {
	if base.IsNegative() {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, ledger.ErrNegativePrice)
	}
	net, final := ledger.DerivePrices(base)
	return domain.PriceQuote{BasePrice: base, NetPrice: net, FinalPrice: final}, nil
}

func (s *Service) LowStockItems(ctx context.Context) (domain.LowStockResponse, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	low := make([]domain.CatalogItem, 0)
	for _, item := range items {
		if item.StockAmount < ledger.LowStockThreshold {
			low = append(low, item)
		}
	}
	return domain.LowStockResponse{Count: len(low), Items: low}, nil
}

func (s *Service) CreateCart(ctx context.Context, customerName string) (domain.Cart, error) {
	created, err := s.repo.CreateCart(ctx, domain.Cart{
		CustomerName: strings.TrimSpace(customerName),
		Lines:        []domain.CartLine{},
		Total:        decimal.Zero,
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return *created, nil
}

func (s *Service) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	c, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

func (s *Service) DiscardCart(ctx context.Context, cartID string) error {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	return s.repo.DeleteCart(ctx, cartID)
}

func (s *Service) AddToCart(ctx context.Context, cartID string, req domain.CartLineRequest) (domain.Cart, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	return s.mutateCart(ctx, cartID, "add", func(c *domain.Cart) error {
		item, err := s.repo.GetItem(ctx, strings.TrimSpace(req.ItemID))
		if err != nil {
			return err
		}
		return cart.Add(c, *item, req.Quantity)
	})
}

func (s *Service) IncrementCartLine(ctx context.Context, cartID string, itemID string) (domain.Cart, error) {
	return s.mutateCart(ctx, cartID, "increment", func(c *domain.Cart) error {
		item, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return cart.Increment(c, *item)
	})
}

func (s *Service) DecrementCartLine(ctx context.Context, cartID string, itemID string) (domain.Cart, error) {
	return s.mutateCart(ctx, cartID, "decrement", func(c *domain.Cart) error {
		item, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return cart.Decrement(c, *item)
	})
}

func (s *Service) SetCartLineQuantity(ctx context.Context, cartID string, itemID string, qty int) (domain.Cart, error) {
	return s.mutateCart(ctx, cartID, "set_quantity", func(c *domain.Cart) error {
		if qty <= 0 {
			return cart.Remove(c, itemID)
		}
		item, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return cart.SetQuantity(c, *item, qty)
	})
}

func (s *Service) RemoveCartLine(ctx context.Context, cartID string, itemID string) (domain.Cart, error) {
	return s.mutateCart(ctx, cartID, "remove", func(c *domain.Cart) error {
		return cart.Remove(c, itemID)
	})
}

func (s *Service) mutateCart(ctx context.Context, cartID string, entryPoint string, apply func(c *domain.Cart) error) (domain.Cart, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	c, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := apply(c); err != nil {
		return domain.Cart{}, s.cartError(entryPoint, err)
	}
	saved, err := s.repo.SaveCart(ctx, *c)
	if err != nil {
		return domain.Cart{}, err
	}
	return *saved, nil
}

func (s *Service) cartError(entryPoint string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		s.metrics.OversellRejected(entryPoint)
		return err
	case errors.Is(err, cart.ErrLineNotFound):
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	default:
		return err
	}
}

// Checkout records the cart as one sale and discards the cart. The stock check
// runs again inside the store, so a cart built against stale stock is rejected
// as a whole.
func (s *Service) Checkout(ctx context.Context, cartID string, req domain.CheckoutRequest) (domain.SaleTransaction, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	c, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	if len(c.Lines) == 0 {
		return domain.SaleTransaction{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidInput)
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		customerName = c.CustomerName
	}

	lines := cart.LineRequests(*c)
	tx, err := s.repo.CommitSale(ctx, domain.SaleTransaction{
		CustomerName: customerName,
		CreatedAt:    s.now(),
	}, lines)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			s.metrics.OversellRejected("checkout")
		}
		return domain.SaleTransaction{}, err
	}

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		log.Printf("[service] WARN: failed to discard cart %s after checkout %s: %v", cartID, tx.ID, err)
	}
	s.metrics.SaleCommitted(unitCount(tx.Lines))
	return *tx, nil
}

// ListTransactions returns the transactions of the named period, newest first.
// An empty period lists every transaction.
func (s *Service) ListTransactions(ctx context.Context, rawPeriod string) (domain.TransactionListResponse, error) {
	var from, to time.Time
	label := ""
	if strings.TrimSpace(rawPeriod) != "" {
		p := period.Parse(rawPeriod)
		from, to = period.Range(p, s.now(), s.loc)
		label = string(p)
	}

	txs, err := s.repo.ListTransactions(ctx, from, to)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	return domain.TransactionListResponse{
		Period:       label,
		Transactions: summary.Recent(txs, len(txs)),
	}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.SaleTransaction, error) {
	tx, err := s.repo.FindTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	return *tx, nil
}

// EditTransaction replaces the lines of a committed sale. The old lines are
// reversed and the new ones recorded in one store step.
func (s *Service) EditTransaction(ctx context.Context, id string, req domain.TransactionEditRequest) (domain.SaleTransaction, error) {
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	if req.CustomerName != nil {
		trimmed := strings.TrimSpace(*req.CustomerName)
		req.CustomerName = &trimmed
	}

	tx, err := s.repo.EditTransaction(ctx, strings.TrimSpace(id), req.CustomerName, lines, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			s.metrics.OversellRejected("edit")
		}
		return domain.SaleTransaction{}, err
	}
	s.metrics.SaleEdited()
	return *tx, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) (domain.SaleTransaction, error) {
	tx, err := s.repo.DeleteTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	s.metrics.SaleDeleted()
	return *tx, nil
}

func (s *Service) Receipt(ctx context.Context, id string) (report.Document, error) {
	tx, err := s.repo.FindTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return report.Document{}, err
	}
	return report.Receipt(*tx, s.pharmacyName, s.loc)
}

// FinancialSummary computes the dashboard for the period containing now.
// Unknown periods fall back to daily.
func (s *Service) FinancialSummary(ctx context.Context, rawPeriod string) (domain.FinancialSummary, error) {
	p := period.Parse(rawPeriod)
	start, end := period.Range(p, s.now(), s.loc)

	revision, err := s.repo.Revision(ctx)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	return s.summaries.Summary(ctx, summary.Request{
		Period:   p,
		Start:    start,
		End:      end,
		Instance: revision.Instance,
		Revision: revision.Seq,
	}, s.repo.ListTransactions)
}

func (s *Service) ExportReport(ctx context.Context, rawKind string, rawPeriod string, rawFormat string) (report.Document, error) {
	kind, err := report.ParseKind(rawKind)
	if err != nil {
		return report.Document{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	format, err := report.ParseFormat(rawFormat)
	if err != nil {
		return report.Document{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}

	now := s.now()
	p := period.Parse(rawPeriod)
	start, end := period.Range(p, now, s.loc)

	var table report.Table
	switch kind {
	case report.KindInventory:
		items, err := s.repo.ListItems(ctx)
		if err != nil {
			return report.Document{}, err
		}
		table = report.InventoryTable(items)
	case report.KindFinancial:
		sum, err := s.FinancialSummary(ctx, string(p))
		if err != nil {
			return report.Document{}, err
		}
		table = report.FinancialTable(sum, s.loc)
	default:
		txs, err := s.repo.ListTransactions(ctx, start, end)
		if err != nil {
			return report.Document{}, err
		}
		if kind == report.KindSales {
			table = report.SalesTable(txs, s.loc)
		} else {
			table = report.FinancialTransactionsTable(txs, s.loc)
		}
	}

	doc, err := report.Render(kind, table, p, now.In(s.loc), format)
	if err != nil {
		return report.Document{}, err
	}
	s.metrics.ReportExported(string(kind), string(format))
	return doc, nil
}

// normalizeLines validates edit lines and merges repeated items, keeping the
// order in which items first appear.
func normalizeLines(lines []domain.LineRequest) ([]domain.LineRequest, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", store.ErrInvalidInput)
	}

	index := make(map[string]int, len(lines))
	out := make([]domain.LineRequest, 0, len(lines))
	for _, line := range lines {
		line.ItemID = strings.TrimSpace(line.ItemID)
		if line.ItemID == "" {
			return nil, fmt.Errorf("%w: item_id is required", store.ErrInvalidInput)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidInput, ledger.ErrInvalidQuantity)
		}
		if i, ok := index[line.ItemID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

func unitCount(lines []domain.TransactionLine) int {
	units := 0
	for _, line := range lines {
		units += line.Quantity
	}
	return units
}
