package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"pharmacare/internal/domain"
	"pharmacare/internal/ledger"
	"pharmacare/internal/report"
	"pharmacare/internal/service"
	"pharmacare/internal/store"
)

type Options struct {
	AllowedOrigin  string
	MetricsEnabled bool
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type API struct {
	service        *service.Service
	allowedOrigin  string
	metricsEnabled bool
	gatherer       prometheus.Gatherer
}

func New(svc *service.Service, opts Options) *API {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &API{
		service:        svc,
		allowedOrigin:  opts.AllowedOrigin,
		metricsEnabled: opts.MetricsEnabled,
		gatherer:       gatherer,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)
	if a.metricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", a.handleListItems)
			r.Post("/", a.handleCreateItem)
			r.Get("/{id}", a.handleGetItem)
			r.Put("/{id}", a.handleUpdateItem)
			r.Delete("/{id}", a.handleDeleteItem)
			r.Post("/{id}/stock-events", a.handleStockEvent)
		})
		r.Get("/pricing", a.handlePricing)
		r.Get("/inventory/low-stock", a.handleLowStock)

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", a.handleCreateCart)
			r.Get("/{id}", a.handleGetCart)
			r.Delete("/{id}", a.handleDiscardCart)
			r.Post("/{id}/lines", a.handleAddCartLine)
			r.Put("/{id}/lines/{itemID}", a.handleSetCartLine)
			r.Delete("/{id}/lines/{itemID}", a.handleRemoveCartLine)
			r.Post("/{id}/lines/{itemID}/increment", a.handleIncrementCartLine)
			r.Post("/{id}/lines/{itemID}/decrement", a.handleDecrementCartLine)
			r.Post("/{id}/checkout", a.handleCheckout)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", a.handleListTransactions)
			r.Get("/{id}", a.handleGetTransaction)
			r.Put("/{id}", a.handleEditTransaction)
			r.Delete("/{id}", a.handleDeleteTransaction)
			r.Get("/{id}/receipt", a.handleReceipt)
		})

		r.Get("/summary", a.handleSummary)
		r.Get("/reports/{kind}", a.handleReport)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var form domain.ItemForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	form.ID = ""
	form.ExpectedVersion = 0

	item, err := a.service.SaveItem(r.Context(), form)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var form domain.ItemForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStockEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.StockEvent
	if err := decodeJSON(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.ApplyStockEvent(r.Context(), chi.URLParam(r, "id"), event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handlePricing(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("base"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("base price required"))
		return
	}
	base, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid base price %q", raw))
		return
	}

	quote, err := a.service.PreviewPrices(base)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LowStockItems(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type cartCreateRequest struct {
	CustomerName string `json:"customer_name"`
}

func (a *API) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	var req cartCreateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := a.service.CreateCart(r.Context(), req.CustomerName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": c})
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := a.service.GetCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleDiscardCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardCart(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	var req domain.CartLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := a.service.AddToCart(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleSetCartLine(w http.ResponseWriter, r *http.Request) {
	var req domain.CartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := a.service.SetCartLineQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	c, err := a.service.RemoveCartLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleIncrementCartLine(w http.ResponseWriter, r *http.Request) {
	c, err := a.service.IncrementCartLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleDecrementCartLine(w http.ResponseWriter, r *http.Request) {
	c, err := a.service.DecrementCartLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.Checkout(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListTransactions(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.EditTransaction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.DeleteTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	doc, err := a.service.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeDocument(w, doc, "inline")
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.service.FinancialSummary(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	doc, err := a.service.ExportReport(r.Context(), chi.URLParam(r, "kind"), query.Get("period"), query.Get("format"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeDocument(w, doc, "attachment")
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dest untouched.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeDocument(w http.ResponseWriter, doc report.Document, disposition string) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, ledger.ErrOverReversal),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrNegativePrice),
		errors.Is(err, ledger.ErrUnknownStockEvent),
		errors.Is(err, report.ErrUnknownKind),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
