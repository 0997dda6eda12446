package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock"
	"github.com/openpharma/exchange-service/internal/stock/dto"
	"github.com/openpharma/exchange-service/pkg/logger"
)

// StockHandler exposes the read side of the ledger. All mutation goes
// through exchange transitions or the sales listener.
type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{uc: uc, logger: log}
}

func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stock/movements", h.listMovements)
	mux.HandleFunc("GET /stock/lots/{id}", h.getLot)
}

func (h *StockHandler) getLot(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, `{"error":{"kind":"access_denied","message":"missing tenant"}}`, http.StatusForbidden)
		return
	}

	lot, err := h.uc.GetLot(r.Context(), tc.TenantID, r.PathValue("id"))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			http.Error(w, `{"error":{"kind":"not_found","message":"lot not found"}}`, http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get lot", zap.Error(err))
		http.Error(w, `{"error":{"kind":"internal","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lot)
}

func (h *StockHandler) listMovements(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, `{"error":{"kind":"access_denied","message":"missing tenant"}}`, http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = 50
	}

	f := &dto.LedgerFilters{
		TenantID: tc.TenantID,
		LotID:    q.Get("lot_id"),
		Action:   model.LedgerAction(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}
	if s := q.Get("start_date"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.StartDate = &t
		}
	}
	if s := q.Get("end_date"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.EndDate = &t
		}
	}

	items, count, err := h.uc.ListMovements(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list movements", zap.Error(err))
		http.Error(w, `{"error":{"kind":"internal","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": items,
		"total": count,
		"page":  page,
	})
}
