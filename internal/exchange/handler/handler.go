package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/exchange"
	"github.com/openpharma/exchange-service/internal/exchange/dto"
	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/pkg/logger"
)

type ExchangeHandler struct {
	uc     exchange.UseCase
	logger logger.ZapLogger
}

func NewExchangeHandler(uc exchange.UseCase, log logger.ZapLogger) *ExchangeHandler {
	return &ExchangeHandler{uc: uc, logger: log}
}

func (h *ExchangeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /exchanges", h.create)
	mux.HandleFunc("GET /exchanges", h.list)
	mux.HandleFunc("GET /exchanges/{id}", h.get)
	mux.HandleFunc("POST /exchanges/{id}/respond", h.respond)
	mux.HandleFunc("DELETE /exchanges/{id}", h.delete)
}

func (h *ExchangeHandler) create(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	var in dto.CreateExchangeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperr.New(apperr.KindInvalidLine, "malformed request body"))
		return
	}

	ex, err := h.uc.CreateExchange(r.Context(), tc, &in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ex)
}

// respondRequest is the wire shape; the action string is parsed into the
// closed command set here and nowhere else.
type respondRequest struct {
	Action        string          `json:"action"`
	CounterOffers []dto.LineInput `json:"counter_offers"`
	Reason        *string         `json:"reason"`
}

func (h *ExchangeHandler) respond(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.KindInvalidLine, "malformed request body"))
		return
	}
	action, ok := model.ParseExchangeAction(req.Action)
	if !ok {
		h.writeError(w, apperr.New(apperr.KindInvalidState, "unknown action %q", req.Action))
		return
	}

	ex, err := h.uc.RespondToExchange(r.Context(), tc, r.PathValue("id"), &dto.RespondInput{
		Action:        action,
		CounterOffers: req.CounterOffers,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ex)
}

func (h *ExchangeHandler) get(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	ex, err := h.uc.GetExchange(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ex)
}

func (h *ExchangeHandler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	f := &dto.ExchangeFilters{
		Status:   model.Status(r.URL.Query().Get("status")),
		Page:     page,
		PageSize: pageSize,
	}

	var items []model.Exchange
	var count int
	if r.URL.Query().Get("direction") == "incoming" {
		items, count, err = h.uc.ListIncoming(r.Context(), tc, f)
	} else {
		items, count, err = h.uc.ListOutgoing(r.Context(), tc, f)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": count,
		"page":  page,
	})
}

func (h *ExchangeHandler) delete(w http.ResponseWriter, r *http.Request) {
	tc, err := auth.FromContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.uc.DeleteExchange(r.Context(), tc, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExchangeHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *ExchangeHandler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindAccessDenied:
		status = http.StatusForbidden
	case apperr.KindInvalidLine, apperr.KindDestinationUnlinked:
		status = http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindInvalidState:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	message := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"kind":    string(kind),
			"message": message,
		},
	})
}
