package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock/dto"
	"github.com/openpharma/exchange-service/pkg/logger"
)

type fakeStockUC struct {
	lots map[string]*model.Lot
}

func (f *fakeStockUC) ApplyStockDelta(context.Context, *dto.StockDeltaInput) (int, error) {
	return 0, nil
}

func (f *fakeStockUC) CreateLotWithEntry(context.Context, *dto.CreateLotInput) (*model.Lot, error) {
	return nil, nil
}

func (f *fakeStockUC) GetLot(_ context.Context, tenantID, lotID string) (*model.Lot, error) {
	lot, ok := f.lots[lotID]
	if !ok || lot.TenantID != tenantID {
		return nil, apperr.New(apperr.KindNotFound, "lot %s not found", lotID)
	}
	return lot, nil
}

func (f *fakeStockUC) ListMovements(context.Context, *dto.LedgerFilters) ([]model.LedgerEntry, int, error) {
	return nil, 0, nil
}

func newTestServer(uc *fakeStockUC) http.Handler {
	mux := http.NewServeMux()
	NewStockHandler(uc, logger.NewNop()).RegisterRoutes(mux)
	return auth.TenantMiddleware(mux)
}

func TestGetLot(t *testing.T) {
	srv := newTestServer(&fakeStockUC{lots: map[string]*model.Lot{
		"l1": {ID: "l1", TenantID: "t1", LotNumber: "LOT-l1", Quantity: 12, IsActive: true},
	}})

	req := httptest.NewRequest(http.MethodGet, "/stock/lots/l1", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var lot model.Lot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lot))
	assert.Equal(t, "LOT-l1", lot.LotNumber)
	assert.Equal(t, 12, lot.Quantity)
}

func TestGetLot_NotFound(t *testing.T) {
	srv := newTestServer(&fakeStockUC{lots: map[string]*model.Lot{
		"l1": {ID: "l1", TenantID: "t1", IsActive: true},
	}})

	// Unknown lot.
	req := httptest.NewRequest(http.MethodGet, "/stock/lots/missing", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Another tenant's lot looks exactly the same as a missing one.
	req = httptest.NewRequest(http.MethodGet, "/stock/lots/l1", nil)
	req.Header.Set("X-Tenant-Id", "t2")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLot_MissingTenant(t *testing.T) {
	srv := newTestServer(&fakeStockUC{})

	req := httptest.NewRequest(http.MethodGet, "/stock/lots/l1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
