package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/service"
	"vendas/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	logger        *zap.Logger
	allowedOrigin string
}

func New(svc *service.Service, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/products", a.handleProducts)
	mux.HandleFunc("/api/v1/products/", a.handleProductActions)
	mux.HandleFunc("/api/v1/sales", a.handleSales)
	mux.HandleFunc("/api/v1/sales/", a.handleSaleActions)

	mux.HandleFunc("/api/v1/reports/summary", a.handleReportSummary)
	mux.HandleFunc("/api/v1/reports/stock-value", a.handleStockValue)
	mux.HandleFunc("/api/v1/reports/sales-total", a.handleSalesTotal)
	mux.HandleFunc("/api/v1/reports/sales-by-month", a.handleSalesByMonth)
	mux.HandleFunc("/api/v1/reports/sales-by-product", a.handleSalesByProduct)
	mux.HandleFunc("/api/v1/reports/revenue-by-payment-method", a.handleRevenueByPaymentMethod)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.service.Ping(r.Context()); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize, err := a.parsePage(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		result, err := a.service.ListProducts(r.Context(), domain.ProductQuery{
			Search:   r.URL.Query().Get("search"),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		var req domain.ProductInput
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
	rawID, action, _ := strings.Cut(tail, "/")
	id, err := parseID(rawID, "product")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch action {
	case "":
	case "stock-adjustments":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.StockAdjustmentRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		product, err := a.service.AdjustStock(r.Context(), id, req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
		return
	default:
		a.writeError(w, r, fmt.Errorf("%w: unknown product action %q", store.ErrNotFound, action))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPut:
		var req domain.ProductInput
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseSaleFilter(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		page, pageSize, err := a.parsePage(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		result, err := a.service.ListSales(r.Context(), filter, page, pageSize)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		sale, err := a.service.RecordSale(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sale)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sales/"), "/")
	if strings.Contains(tail, "/") {
		a.writeError(w, r, fmt.Errorf("%w: unknown sale action", store.ErrNotFound))
		return
	}
	id, err := parseID(tail, "sale")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	case http.MethodDelete:
		sale, err := a.service.CancelSale(r.Context(), id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	default:
		writeMethodNotAllowed(w)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w}
		startedAt := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				a.logger.Error("panic serving request",
					zap.String("request_id", requestID),
					zap.Any("panic", recovered))
				if rec.status == 0 {
					writeJSON(rec, http.StatusInternalServerError, errorBody("internal", "internal server error"))
				}
			}
			a.logger.Info("request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("latency", time.Since(startedAt)))
		}()
		next.ServeHTTP(rec, r)
	})
}

// parsePage reads page and page_size. Absent values take defaults; present
// values must be integers, and range checks happen in the service.
func (a *API) parsePage(r *http.Request) (int, int, error) {
	page, err := parseIntParam(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := parseIntParam(r, "page_size", a.service.DefaultPageSize())
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func parseIntParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", store.ErrInvalidInput, name)
	}
	return parsed, nil
}

func parseID(raw string, entity string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s id %q", store.ErrInvalidInput, entity, raw)
	}
	return id, nil
}

func parseSaleFilter(r *http.Request) (domain.SaleFilter, error) {
	query := r.URL.Query()
	var filter domain.SaleFilter

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := parseTime(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: from: %v", store.ErrInvalidInput, err)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := parseTime(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: to: %v", store.ErrInvalidInput, err)
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(query.Get("product_id")); raw != "" {
		id, err := parseID(raw, "product")
		if err != nil {
			return filter, err
		}
		filter.ProductID = &id
	}
	if raw := strings.TrimSpace(query.Get("payment_method")); raw != "" {
		method, err := domain.ParsePaymentMethod(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		filter.PaymentMethod = &method
	}
	return filter, nil
}

// parseTime accepts RFC3339 timestamps or plain dates, read as UTC midnight.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

func errorBody(kind string, message string) map[string]any {
	return map[string]any{
		"error":   kind,
		"message": message,
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "method not allowed"))
}

// writeError maps the store error taxonomy onto HTTP. 5xx responses carry a
// generic message; the cause is logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *store.StockError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &stockErr):
		body := errorBody("insufficient_stock", err.Error())
		body["product_id"] = stockErr.ProductID
		body["available"] = stockErr.Available
		body["requested"] = stockErr.Requested
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload_too_large", "request body too large"))
	case errors.Is(err, store.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_input", err.Error()))
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", err.Error()))
	case errors.Is(err, store.ErrDuplicateName):
		writeJSON(w, http.StatusConflict, errorBody("duplicate_name", err.Error()))
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict", err.Error()))
	case errors.Is(err, store.ErrTimeout):
		a.logger.Warn("store timeout", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, errorBody("timeout", "the store did not answer in time"))
	case errors.Is(err, store.ErrUnavailable):
		a.logger.Warn("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("unavailable", "the store is temporarily unavailable"))
	default:
		a.logger.Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal", "internal server error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
