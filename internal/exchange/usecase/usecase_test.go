package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/exchange"
	"github.com/openpharma/exchange-service/internal/exchange/dto"
	"github.com/openpharma/exchange-service/internal/model"
	proddto "github.com/openpharma/exchange-service/internal/product/dto"
	stockdto "github.com/openpharma/exchange-service/internal/stock/dto"
	stockusecase "github.com/openpharma/exchange-service/internal/stock/usecase"
	"github.com/openpharma/exchange-service/pkg/logger"
)

// ---- fakes ----------------------------------------------------------------

type fakeStockRepo struct {
	lots    map[string]*model.Lot
	entries []model.LedgerEntry
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{lots: map[string]*model.Lot{}}
}

func (r *fakeStockRepo) addLot(tenantID, id string, qty int) {
	r.lots[id] = &model.Lot{
		ID: id, TenantID: tenantID, ProductID: "prod-" + id,
		LotNumber: "LOT-" + id, Quantity: qty, IsActive: true,
	}
}

func (r *fakeStockRepo) GetLot(_ context.Context, tenantID, lotID string) (*model.Lot, error) {
	lot, ok := r.lots[lotID]
	if !ok || lot.TenantID != tenantID || !lot.IsActive {
		return nil, nil
	}
	cp := *lot
	return &cp, nil
}

func (r *fakeStockRepo) GetLotForUpdate(ctx context.Context, tenantID, lotID string) (*model.Lot, error) {
	return r.GetLot(ctx, tenantID, lotID)
}

func (r *fakeStockRepo) CreateLot(_ context.Context, lot *model.Lot) error {
	cp := *lot
	r.lots[lot.ID] = &cp
	return nil
}

func (r *fakeStockRepo) SetLotQuantity(_ context.Context, lotID string, quantity int, at time.Time) error {
	r.lots[lotID].Quantity = quantity
	r.lots[lotID].UpdatedAt = at
	return nil
}

func (r *fakeStockRepo) AppendEntry(_ context.Context, e *model.LedgerEntry) error {
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeStockRepo) ListEntries(_ context.Context, f *stockdto.LedgerFilters) ([]model.LedgerEntry, int, error) {
	var out []model.LedgerEntry
	for _, e := range r.entries {
		if e.TenantID == f.TenantID && (f.LotID == "" || e.LotID == f.LotID) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type stockSnapshot struct {
	lots    map[string]model.Lot
	entries []model.LedgerEntry
}

func (r *fakeStockRepo) snapshot() interface{} {
	s := stockSnapshot{lots: map[string]model.Lot{}, entries: append([]model.LedgerEntry(nil), r.entries...)}
	for id, lot := range r.lots {
		s.lots[id] = *lot
	}
	return s
}

func (r *fakeStockRepo) restore(v interface{}) {
	s := v.(stockSnapshot)
	r.lots = map[string]*model.Lot{}
	for id := range s.lots {
		lot := s.lots[id]
		r.lots[id] = &lot
	}
	r.entries = append([]model.LedgerEntry(nil), s.entries...)
}

type fakeExchangeRepo struct {
	seq          map[string]int64
	exchanges    map[string]*model.Exchange
	lines        map[string][]model.ExchangeLine
	counterLines map[string][]model.CounterOfferLine
}

func newFakeExchangeRepo() *fakeExchangeRepo {
	return &fakeExchangeRepo{
		seq:          map[string]int64{},
		exchanges:    map[string]*model.Exchange{},
		lines:        map[string][]model.ExchangeLine{},
		counterLines: map[string][]model.CounterOfferLine{},
	}
}

func (r *fakeExchangeRepo) NextReference(_ context.Context, tenantID string) (int64, error) {
	r.seq[tenantID]++
	return r.seq[tenantID], nil
}

func (r *fakeExchangeRepo) Create(_ context.Context, ex *model.Exchange) error {
	cp := *ex
	cp.Lines, cp.CounterLines = nil, nil
	r.exchanges[ex.ID] = &cp
	return nil
}

func (r *fakeExchangeRepo) CreateLines(_ context.Context, lines []model.ExchangeLine) error {
	for _, l := range lines {
		r.lines[l.ExchangeID] = append(r.lines[l.ExchangeID], l)
	}
	return nil
}

func (r *fakeExchangeRepo) CreateCounterLines(_ context.Context, lines []model.CounterOfferLine) error {
	for _, l := range lines {
		r.counterLines[l.ExchangeID] = append(r.counterLines[l.ExchangeID], l)
	}
	return nil
}

func (r *fakeExchangeRepo) GetByID(_ context.Context, id string) (*model.Exchange, error) {
	ex, ok := r.exchanges[id]
	if !ok {
		return nil, nil
	}
	cp := *ex
	return &cp, nil
}

func (r *fakeExchangeRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Exchange, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeExchangeRepo) GetLines(_ context.Context, exchangeID string) ([]model.ExchangeLine, error) {
	return append([]model.ExchangeLine(nil), r.lines[exchangeID]...), nil
}

func (r *fakeExchangeRepo) GetCounterLines(_ context.Context, exchangeID string) ([]model.CounterOfferLine, error) {
	return append([]model.CounterOfferLine(nil), r.counterLines[exchangeID]...), nil
}

func (r *fakeExchangeRepo) Update(_ context.Context, ex *model.Exchange) error {
	cp := *ex
	cp.Lines, cp.CounterLines = nil, nil
	r.exchanges[ex.ID] = &cp
	return nil
}

func (r *fakeExchangeRepo) FindOutgoing(_ context.Context, tenantID string, _ *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	var out []model.Exchange
	for _, ex := range r.exchanges {
		if ex.TenantID == tenantID && ex.IsActive {
			out = append(out, *ex)
		}
	}
	return out, len(out), nil
}

func (r *fakeExchangeRepo) FindIncoming(_ context.Context, recipientTenantID string, _ *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	var out []model.Exchange
	for _, ex := range r.exchanges {
		if ex.DestinationTenantID == recipientTenantID && ex.IsActive {
			out = append(out, *ex)
		}
	}
	return out, len(out), nil
}

type exchangeSnapshot struct {
	seq          map[string]int64
	exchanges    map[string]model.Exchange
	lines        map[string][]model.ExchangeLine
	counterLines map[string][]model.CounterOfferLine
}

func (r *fakeExchangeRepo) snapshot() interface{} {
	s := exchangeSnapshot{
		seq:          map[string]int64{},
		exchanges:    map[string]model.Exchange{},
		lines:        map[string][]model.ExchangeLine{},
		counterLines: map[string][]model.CounterOfferLine{},
	}
	for k, v := range r.seq {
		s.seq[k] = v
	}
	for k, v := range r.exchanges {
		s.exchanges[k] = *v
	}
	for k, v := range r.lines {
		s.lines[k] = append([]model.ExchangeLine(nil), v...)
	}
	for k, v := range r.counterLines {
		s.counterLines[k] = append([]model.CounterOfferLine(nil), v...)
	}
	return s
}

func (r *fakeExchangeRepo) restore(v interface{}) {
	s := v.(exchangeSnapshot)
	r.seq = map[string]int64{}
	for k, val := range s.seq {
		r.seq[k] = val
	}
	r.exchanges = map[string]*model.Exchange{}
	for k := range s.exchanges {
		ex := s.exchanges[k]
		r.exchanges[k] = &ex
	}
	r.lines = map[string][]model.ExchangeLine{}
	for k, val := range s.lines {
		r.lines[k] = append([]model.ExchangeLine(nil), val...)
	}
	r.counterLines = map[string][]model.CounterOfferLine{}
	for k, val := range s.counterLines {
		r.counterLines[k] = append([]model.CounterOfferLine(nil), val...)
	}
}

type fakeEstRepo struct {
	establishments map[string]*model.Establishment
}

func (r *fakeEstRepo) GetByID(_ context.Context, tenantID, id string) (*model.Establishment, error) {
	e, ok := r.establishments[id]
	if !ok || e.TenantID != tenantID {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

type fakeProductUC struct {
	products map[string]*model.Product
	created  []string
}

func newFakeProductUC() *fakeProductUC {
	return &fakeProductUC{products: map[string]*model.Product{}}
}

func (f *fakeProductUC) FindOrCreate(_ context.Context, in *proddto.FindOrCreateInput) (*model.Product, error) {
	key := in.TenantID + "/" + strings.ToLower(strings.TrimSpace(in.Name))
	if p, ok := f.products[key]; ok {
		return p, nil
	}
	p := &model.Product{
		BaseModel: model.BaseModel{ID: fmt.Sprintf("prod-%d", len(f.products)+1)},
		TenantID:  in.TenantID,
		Name:      in.Name,
		BasePrice: in.BasePrice,
		IsActive:  true,
	}
	f.products[key] = p
	f.created = append(f.created, key)
	return p, nil
}

type fakeDispatcher struct {
	sent []model.Notification
}

func (d *fakeDispatcher) Emit(_ context.Context, n *model.Notification) error {
	d.sent = append(d.sent, *n)
	return nil
}

type fakeAuditor struct {
	entries []model.AuditEntry
}

func (a *fakeAuditor) Record(_ context.Context, e *model.AuditEntry) error {
	a.entries = append(a.entries, *e)
	return nil
}

type snapshotter interface {
	snapshot() interface{}
	restore(interface{})
}

// fakeTxManager mimics transactional all-or-nothing semantics over the
// in-memory stores: on error, every store reverts to its pre-call state.
type fakeTxManager struct {
	stores []snapshotter
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snaps := make([]interface{}, len(m.stores))
	for i, s := range m.stores {
		snaps[i] = s.snapshot()
	}
	if err := fn(ctx); err != nil {
		for i, s := range m.stores {
			s.restore(snaps[i])
		}
		return err
	}
	return nil
}

// ---- harness --------------------------------------------------------------

type env struct {
	stockRepo  *fakeStockRepo
	exRepo     *fakeExchangeRepo
	products   *fakeProductUC
	dispatcher *fakeDispatcher
	auditor    *fakeAuditor
	uc         exchange.UseCase
}

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
	estB    = "est-b"
)

func newEnv() *env {
	stockRepo := newFakeStockRepo()
	exRepo := newFakeExchangeRepo()
	linked := tenantB
	estRepo := &fakeEstRepo{establishments: map[string]*model.Establishment{
		estB: {
			BaseModel: model.BaseModel{ID: estB}, TenantID: tenantA,
			Name: "Pharmacie B", LinkedTenantID: &linked, IsActive: true,
		},
		"est-unlinked": {
			BaseModel: model.BaseModel{ID: "est-unlinked"}, TenantID: tenantA,
			Name: "Dépôt externe", IsActive: true,
		},
		"est-inactive": {
			BaseModel: model.BaseModel{ID: "est-inactive"}, TenantID: tenantA,
			Name: "Fermée", LinkedTenantID: &linked, IsActive: false,
		},
	}}

	products := newFakeProductUC()
	dispatcher := &fakeDispatcher{}
	auditor := &fakeAuditor{}
	txm := &fakeTxManager{stores: []snapshotter{stockRepo, exRepo}}
	log := logger.NewNop()

	stockUC := stockusecase.NewStockUseCase(stockRepo, log)
	uc := NewExchangeUseCase(exRepo, estRepo, stockUC, products, dispatcher, auditor, txm, log)

	return &env{
		stockRepo:  stockRepo,
		exRepo:     exRepo,
		products:   products,
		dispatcher: dispatcher,
		auditor:    auditor,
		uc:         uc,
	}
}

func tcFor(tenantID string) *auth.TenantContext {
	return &auth.TenantContext{TenantID: tenantID, UserID: "user-" + tenantID, Name: "User " + tenantID}
}

func strPtr(s string) *string { return &s }

func lotLine(lotID string, qty int, price float64) dto.LineInput {
	return dto.LineInput{
		ProductName: "Produit " + lotID,
		SourceLotID: &lotID,
		Quantity:    qty,
		UnitPrice:   price,
	}
}

func mustCreate(t *testing.T, e *env, lines ...dto.LineInput) *model.Exchange {
	t.Helper()
	ex, err := e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
		Lines:                      lines,
	})
	require.NoError(t, err)
	return ex
}

// ---- tests ----------------------------------------------------------------

func TestCreateExchange(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)

	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))

	assert.Equal(t, model.StatusAwaitingAcceptance, ex.Status)
	assert.Equal(t, "ECH-000001", ex.Reference)
	assert.Equal(t, tenantB, ex.DestinationTenantID)
	assert.Equal(t, 1, ex.ArticleCount)
	assert.Equal(t, 10, ex.TotalQuantity)
	assert.Equal(t, 20.0, ex.EstimatedValue)

	assert.Equal(t, 40, e.stockRepo.lots["l1"].Quantity)
	require.Len(t, e.stockRepo.entries, 1)
	assert.Equal(t, model.ActionExchangeOut, e.stockRepo.entries[0].Action)
	assert.Equal(t, 50.0, e.stockRepo.entries[0].PreviousValue)
	assert.Equal(t, 40.0, e.stockRepo.entries[0].NewValue)

	require.Len(t, e.dispatcher.sent, 1)
	assert.Equal(t, tenantB, e.dispatcher.sent[0].TenantID)
	assert.Equal(t, "exchange_received", e.dispatcher.sent[0].Type)

	require.Len(t, e.auditor.entries, 1)
	assert.Equal(t, "create", e.auditor.entries[0].Action)
}

func TestCreateExchange_ManualLinesNeverTouchStock(t *testing.T) {
	e := newEnv()
	ex := mustCreate(t, e, dto.LineInput{ProductName: "Doliprane 500", Quantity: 3, UnitPrice: 1.5})

	assert.Empty(t, e.stockRepo.entries)
	assert.Equal(t, 4.5, ex.EstimatedValue)
}

func TestCreateExchange_ReferencesStrictlyIncrease(t *testing.T) {
	e := newEnv()
	ex1 := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})
	ex2 := mustCreate(t, e, dto.LineInput{ProductName: "B", Quantity: 1, UnitPrice: 1})

	assert.Equal(t, "ECH-000001", ex1.Reference)
	assert.Equal(t, "ECH-000002", ex2.Reference)
	assert.True(t, ex2.Reference > ex1.Reference)
}

func TestCreateExchange_InsufficientStockAbortsEverything(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantA, "l3", 5)

	_, err := e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
		Lines: []dto.LineInput{
			lotLine("l1", 10, 2.0),
			lotLine("l3", 8, 1.0), // only 5 available
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))

	// Whole transition rolled back: first line's decrement undone, no record.
	assert.Equal(t, 50, e.stockRepo.lots["l1"].Quantity)
	assert.Empty(t, e.stockRepo.entries)
	assert.Empty(t, e.exRepo.exchanges)
	assert.Empty(t, e.dispatcher.sent)
}

func TestCreateExchange_DestinationErrors(t *testing.T) {
	e := newEnv()
	line := dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1}

	_, err := e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: "nope", Lines: []dto.LineInput{line},
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: "est-inactive", Lines: []dto.LineInput{line},
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: "est-unlinked", Lines: []dto.LineInput{line},
	})
	assert.Equal(t, apperr.KindDestinationUnlinked, apperr.KindOf(err))
}

func TestCreateExchange_LineValidation(t *testing.T) {
	e := newEnv()

	_, err := e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
	})
	assert.Equal(t, apperr.KindInvalidLine, apperr.KindOf(err))

	_, err = e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
		Lines:                      []dto.LineInput{{ProductName: "", Quantity: 1, UnitPrice: 1}},
	})
	assert.Equal(t, apperr.KindInvalidLine, apperr.KindOf(err))

	_, err = e.uc.CreateExchange(context.Background(), tcFor(tenantA), &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
		Lines:                      []dto.LineInput{{ProductName: "A", Quantity: 0, UnitPrice: 1}},
	})
	assert.Equal(t, apperr.KindInvalidLine, apperr.KindOf(err))
}

func TestCreateExchange_PermissionDenied(t *testing.T) {
	e := newEnv()
	tc := tcFor(tenantA)
	tc.Permissions = auth.PermissionSet{"exchanges": {"read": true}}

	_, err := e.uc.CreateExchange(context.Background(), tc, &dto.CreateExchangeInput{
		DestinationEstablishmentID: estB,
		Lines:                      []dto.LineInput{{ProductName: "A", Quantity: 1, UnitPrice: 1}},
	})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestAccept(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0)) // value 20

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)}, // value 15
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusAwaitingValidation, got.Status)
	assert.Equal(t, 15.0, got.CounterEstimatedValue)
	assert.Equal(t, 5.0, got.Difference) // 20 - 15
	assert.NotNil(t, got.CounteredAt)
	assert.Equal(t, 15, e.stockRepo.lots["l2"].Quantity)

	// counter-offer notification goes to the initiator
	last := e.dispatcher.sent[len(e.dispatcher.sent)-1]
	assert.Equal(t, tenantA, last.TenantID)
	assert.Equal(t, "counter_offer_received", last.Type)
}

func TestAccept_NegativeDifferenceClampsToZero(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0)) // value 20

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 10, 5.0)}, // value 50 > 20
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.CounterEstimatedValue)
	assert.Equal(t, 0.0, got.Difference, "a counter-offer surplus must be clamped, not stored signed")
}

func TestAccept_RequiresCounterOffer(t *testing.T) {
	e := newEnv()
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action: model.ActionAccept,
	})
	assert.Equal(t, apperr.KindInvalidLine, apperr.KindOf(err))
}

func TestAccept_OnlyRecipient(t *testing.T) {
	e := newEnv()
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{{ProductName: "B", Quantity: 1, UnitPrice: 1}},
	})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestValidate_FullScenario(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)

	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))
	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionValidate,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.NotNil(t, got.ValidatedAt)
	assert.NotNil(t, got.ClosedAt)
	require.NotNil(t, got.ValidatedBy)
	assert.Equal(t, "user-"+tenantA, *got.ValidatedBy)

	// Initiator received the counter-offered 5 units, recipient the offered 10.
	var gotA, gotB *model.Lot
	for _, lot := range e.stockRepo.lots {
		switch {
		case lot.TenantID == tenantA && lot.ID != "l1":
			gotA = lot
		case lot.TenantID == tenantB && lot.ID != "l2":
			gotB = lot
		}
	}
	require.NotNil(t, gotA, "initiator should have a new lot")
	require.NotNil(t, gotB, "recipient should have a new lot")
	assert.Equal(t, 5, gotA.Quantity)
	assert.Equal(t, 3.0, gotA.UnitPrice)
	assert.Equal(t, 10, gotB.Quantity)
	assert.Equal(t, 2.0, gotB.UnitPrice)

	// Both sides got products reconciled and exchange-in entries.
	assert.Len(t, e.products.created, 2)
	var exchangeIn int
	for _, entry := range e.stockRepo.entries {
		if entry.Action == model.ActionExchangeIn {
			exchangeIn++
		}
	}
	assert.Equal(t, 2, exchangeIn)

	last := e.dispatcher.sent[len(e.dispatcher.sent)-1]
	assert.Equal(t, tenantB, last.TenantID)
	assert.Equal(t, "exchange_completed", last.Type)
}

func TestValidate_UnnumberedLinesGetDistinctLotNumbers(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))

	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action: model.ActionAccept,
		CounterOffers: []dto.LineInput{
			{ProductName: "Aspirine 100", Quantity: 2, UnitPrice: 1.0},
			{ProductName: "Ibuprofène 200", Quantity: 3, UnitPrice: 1.5},
		},
	})
	require.NoError(t, err)

	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionValidate,
	})
	require.NoError(t, err)

	// Two unnumbered counter lines land on the initiator; the fallback lot
	// numbers must stay unique within the tenant.
	seen := map[string]int{}
	for _, lot := range e.stockRepo.lots {
		if lot.TenantID == tenantA && lot.ID != "l1" {
			seen[lot.LotNumber]++
			assert.True(t, strings.HasPrefix(lot.LotNumber, ex.Reference+"-"),
				"fallback lot number %s should derive from the reference", lot.LotNumber)
		}
	}
	require.Len(t, seen, 2)
	for number, uses := range seen {
		assert.Equal(t, 1, uses, "lot number %s reused", number)
	}
}

func TestValidate_OnlyInitiator(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantB, "l2", 20)
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})
	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)

	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action: model.ActionValidate,
	})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestRefuse_RestoresBothSides(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)

	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))
	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionRefuse,
		Reason: strPtr("prix trop élevé"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusRefused, got.Status)
	require.NotNil(t, got.RefusalReason)
	assert.Equal(t, "prix trop élevé", *got.RefusalReason)

	// Stock conservation: both lots return to their pre-negotiation values.
	assert.Equal(t, 50, e.stockRepo.lots["l1"].Quantity)
	assert.Equal(t, 20, e.stockRepo.lots["l2"].Quantity)

	// Restoration is forward-moving return entries, not edits.
	var returns int
	for _, entry := range e.stockRepo.entries {
		if entry.Action == model.ActionReturn {
			returns++
		}
	}
	assert.Equal(t, 2, returns)
	assert.Len(t, e.stockRepo.entries, 4) // 2 exchange-out + 2 return

	last := e.dispatcher.sent[len(e.dispatcher.sent)-1]
	assert.Equal(t, tenantB, last.TenantID)
	assert.Equal(t, "exchange_refused", last.Type)
}

func TestRefuse_ByRecipientBeforeAcceptance(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action: model.ActionRefuse,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefused, got.Status)
	assert.Equal(t, 50, e.stockRepo.lots["l1"].Quantity)

	// Refusal by the recipient notifies the initiator.
	last := e.dispatcher.sent[len(e.dispatcher.sent)-1]
	assert.Equal(t, tenantA, last.TenantID)
}

func TestCancel(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))

	got, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.NotNil(t, got.ClosedAt)
	assert.Equal(t, 50, e.stockRepo.lots["l1"].Quantity)

	// No new lots were materialized.
	assert.Len(t, e.stockRepo.lots, 1)
	assert.Empty(t, e.products.created)
}

func TestCancel_OnlyInitiatorAndOnlyBeforeAcceptance(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantB, "l2", 20)
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action: model.ActionCancel,
	})
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))

	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)

	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionCancel,
	})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestTerminalStatusIsFinal(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)

	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))
	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)
	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionValidate,
	})
	require.NoError(t, err)

	for _, action := range []model.ExchangeAction{model.ActionAccept, model.ActionValidate, model.ActionRefuse, model.ActionCancel} {
		_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{Action: action})
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "action %s on a terminal record", action)
	}
}

func TestRespond_StrangerGetsNotFound(t *testing.T) {
	e := newEnv()
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	_, err := e.uc.RespondToExchange(context.Background(), tcFor("tenant-c"), ex.ID, &dto.RespondInput{
		Action: model.ActionRefuse,
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteExchange(t *testing.T) {
	e := newEnv()
	ex := mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	// Not deletable while the negotiation is live.
	err := e.uc.DeleteExchange(context.Background(), tcFor(tenantA), ex.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = e.uc.RespondToExchange(context.Background(), tcFor(tenantA), ex.ID, &dto.RespondInput{
		Action: model.ActionCancel,
	})
	require.NoError(t, err)

	// The recipient may not delete the initiator's record.
	err = e.uc.DeleteExchange(context.Background(), tcFor(tenantB), ex.ID)
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))

	require.NoError(t, e.uc.DeleteExchange(context.Background(), tcFor(tenantA), ex.ID))
	assert.False(t, e.exRepo.exchanges[ex.ID].IsActive)

	// Soft-deleted records are no longer visible.
	_, err = e.uc.GetExchange(context.Background(), tcFor(tenantA), ex.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetExchange_LoadsLines(t *testing.T) {
	e := newEnv()
	e.stockRepo.addLot(tenantA, "l1", 50)
	e.stockRepo.addLot(tenantB, "l2", 20)
	ex := mustCreate(t, e, lotLine("l1", 10, 2.0))
	_, err := e.uc.RespondToExchange(context.Background(), tcFor(tenantB), ex.ID, &dto.RespondInput{
		Action:        model.ActionAccept,
		CounterOffers: []dto.LineInput{lotLine("l2", 5, 3.0)},
	})
	require.NoError(t, err)

	got, err := e.uc.GetExchange(context.Background(), tcFor(tenantB), ex.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
	assert.Len(t, got.CounterLines, 1)
}

func TestListIncoming_KeyedOnRecipientTenant(t *testing.T) {
	e := newEnv()
	mustCreate(t, e, dto.LineInput{ProductName: "A", Quantity: 1, UnitPrice: 1})

	incoming, total, err := e.uc.ListIncoming(context.Background(), tcFor(tenantB), &dto.ExchangeFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, incoming, 1)
	assert.Equal(t, tenantB, incoming[0].DestinationTenantID)

	outgoing, _, err := e.uc.ListOutgoing(context.Background(), tcFor(tenantA), &dto.ExchangeFilters{})
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)
}
