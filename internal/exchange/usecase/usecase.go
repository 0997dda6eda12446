package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/audit"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/establishment"
	"github.com/openpharma/exchange-service/internal/exchange"
	"github.com/openpharma/exchange-service/internal/exchange/dto"
	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/notification"
	"github.com/openpharma/exchange-service/internal/product"
	proddto "github.com/openpharma/exchange-service/internal/product/dto"
	"github.com/openpharma/exchange-service/internal/stock"
	stockdto "github.com/openpharma/exchange-service/internal/stock/dto"
	"github.com/openpharma/exchange-service/pkg/logger"
	"github.com/openpharma/exchange-service/pkg/postgres"
)

type exchangeUseCase struct {
	repo     exchange.Repository
	estRepo  establishment.Repository
	stockUC  stock.UseCase
	products product.UseCase
	notifier notification.Dispatcher
	auditor  audit.Recorder
	txm      postgres.TxManager
	logger   logger.ZapLogger
}

func NewExchangeUseCase(
	repo exchange.Repository,
	estRepo establishment.Repository,
	stockUC stock.UseCase,
	products product.UseCase,
	notifier notification.Dispatcher,
	auditor audit.Recorder,
	txm postgres.TxManager,
	log logger.ZapLogger,
) exchange.UseCase {
	return &exchangeUseCase{
		repo:     repo,
		estRepo:  estRepo,
		stockUC:  stockUC,
		products: products,
		notifier: notifier,
		auditor:  auditor,
		txm:      txm,
		logger:   log,
	}
}

// CreateExchange opens a negotiation: the destination is resolved to a
// recipient tenant, every lot-backed line is decremented, and the record is
// persisted awaiting acceptance. Everything commits or nothing does.
func (uc *exchangeUseCase) CreateExchange(ctx context.Context, tc *auth.TenantContext, in *dto.CreateExchangeInput) (*model.Exchange, error) {
	if !tc.Can(exchange.Module, "create") {
		return nil, apperr.New(apperr.KindAccessDenied, "missing permission %s:create", exchange.Module)
	}
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	est, err := uc.estRepo.GetByID(ctx, tc.TenantID, in.DestinationEstablishmentID)
	if err != nil {
		return nil, err
	}
	if est == nil || !est.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "destination establishment %s not found", in.DestinationEstablishmentID)
	}
	if est.LinkedTenantID == nil || *est.LinkedTenantID == "" {
		return nil, apperr.New(apperr.KindDestinationUnlinked, "establishment %s is not linked to a recipient", est.Name)
	}

	var ex *model.Exchange
	err = uc.txm.RunInTx(ctx, func(ctx context.Context) error {
		seq, err := uc.repo.NextReference(ctx, tc.TenantID)
		if err != nil {
			return err
		}
		now := time.Now()
		ex = &model.Exchange{
			BaseModel:                  model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
			TenantID:                   tc.TenantID,
			Reference:                  fmt.Sprintf("ECH-%06d", seq),
			DestinationEstablishmentID: est.ID,
			DestinationTenantID:        *est.LinkedTenantID,
			Status:                     model.StatusAwaitingAcceptance,
			Motive:                     in.Motive,
			Note:                       in.Note,
			SentAt:                     now,
			CreatedBy:                  tc.UserID,
			IsActive:                   true,
		}

		lines := make([]model.ExchangeLine, 0, len(in.Lines))
		for _, li := range in.Lines {
			total := float64(li.Quantity) * li.UnitPrice
			if li.SourceLotID != nil && *li.SourceLotID != "" {
				_, err := uc.stockUC.ApplyStockDelta(ctx, &stockdto.StockDeltaInput{
					TenantID: tc.TenantID,
					LotID:    *li.SourceLotID,
					Delta:    -li.Quantity,
					Action:   model.ActionExchangeOut,
					Reason:   "Échange " + ex.Reference,
					Actor:    tc.Actor(),
				})
				if err != nil {
					return err // first failing line aborts the whole creation
				}
			}
			lines = append(lines, model.ExchangeLine{
				ID:          uuid.New().String(),
				ExchangeID:  ex.ID,
				ProductName: li.ProductName,
				ProductCode: li.ProductCode,
				LotNumber:   li.LotNumber,
				SourceLotID: li.SourceLotID,
				Quantity:    li.Quantity,
				UnitPrice:   li.UnitPrice,
				LineTotal:   total,
				ExpiresAt:   li.ExpiresAt,
				CreatedAt:   now,
			})
			ex.TotalQuantity += li.Quantity
			ex.EstimatedValue += total
		}
		ex.ArticleCount = len(lines)

		if err := uc.repo.Create(ctx, ex); err != nil {
			return err
		}
		if err := uc.repo.CreateLines(ctx, lines); err != nil {
			return err
		}
		ex.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.recordAudit(ctx, tc, "create", ex, "", string(ex.Status))
	uc.notify(ctx, ex.DestinationTenantID, "exchange_received",
		"Nouvel échange reçu",
		fmt.Sprintf("L'échange %s attend votre réponse.", ex.Reference), ex)

	uc.logger.Info("exchange created",
		zap.String("exchange_id", ex.ID),
		zap.String("reference", ex.Reference),
		zap.String("tenant_id", ex.TenantID),
		zap.String("destination_tenant_id", ex.DestinationTenantID),
	)
	return ex, nil
}

// RespondToExchange applies one transition command to a record. The record
// row is locked for the whole transition so concurrent responses serialize
// on its status; illegal transitions are rejected by the transition table
// before any stock is touched.
func (uc *exchangeUseCase) RespondToExchange(ctx context.Context, tc *auth.TenantContext, id string, in *dto.RespondInput) (*model.Exchange, error) {
	if !tc.Can(exchange.Module, "respond") {
		return nil, apperr.New(apperr.KindAccessDenied, "missing permission %s:respond", exchange.Module)
	}

	var ex *model.Exchange
	var prevStatus model.Status
	err := uc.txm.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		ex, err = uc.loadForParty(ctx, tc, id, true)
		if err != nil {
			return err
		}
		if !model.CanApply(in.Action, ex.Status) {
			return apperr.New(apperr.KindInvalidState,
				"exchange %s is %s, action %s is not allowed", ex.Reference, ex.Status, in.Action)
		}
		prevStatus = ex.Status

		switch in.Action {
		case model.ActionAccept:
			return uc.accept(ctx, tc, ex, in.CounterOffers)
		case model.ActionValidate:
			return uc.validate(ctx, tc, ex)
		case model.ActionRefuse:
			return uc.refuse(ctx, tc, ex, in.Reason)
		case model.ActionCancel:
			return uc.cancel(ctx, tc, ex)
		}
		return apperr.New(apperr.KindInvalidState, "unknown action %q", in.Action)
	})
	if err != nil {
		return nil, err
	}

	uc.recordAudit(ctx, tc, string(in.Action), ex, string(prevStatus), string(ex.Status))

	switch in.Action {
	case model.ActionAccept:
		uc.notify(ctx, ex.TenantID, "counter_offer_received",
			"Contre-offre reçue",
			fmt.Sprintf("L'échange %s a reçu une contre-offre à valider.", ex.Reference), ex)
	case model.ActionValidate:
		uc.notify(ctx, ex.DestinationTenantID, "exchange_completed",
			"Échange terminé",
			fmt.Sprintf("L'échange %s a été validé.", ex.Reference), ex)
	case model.ActionRefuse:
		other := ex.DestinationTenantID
		if tc.TenantID != ex.TenantID {
			other = ex.TenantID
		}
		uc.notify(ctx, other, "exchange_refused",
			"Échange refusé",
			fmt.Sprintf("L'échange %s a été refusé.", ex.Reference), ex)
	}

	uc.logger.Info("exchange transition applied",
		zap.String("exchange_id", ex.ID),
		zap.String("action", string(in.Action)),
		zap.String("from", string(prevStatus)),
		zap.String("to", string(ex.Status)),
	)
	return ex, nil
}

func (uc *exchangeUseCase) accept(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange, offers []dto.LineInput) error {
	if tc.TenantID != ex.DestinationTenantID {
		return apperr.New(apperr.KindAccessDenied, "only the recipient establishment can accept exchange %s", ex.Reference)
	}
	if len(offers) == 0 {
		return apperr.New(apperr.KindInvalidLine, "exchange %s cannot be accepted without a counter-offer", ex.Reference)
	}
	if err := validateLines(offers); err != nil {
		return err
	}

	now := time.Now()
	lines := make([]model.CounterOfferLine, 0, len(offers))
	var counterValue float64
	for _, li := range offers {
		total := float64(li.Quantity) * li.UnitPrice
		if li.SourceLotID != nil && *li.SourceLotID != "" {
			_, err := uc.stockUC.ApplyStockDelta(ctx, &stockdto.StockDeltaInput{
				TenantID: tc.TenantID,
				LotID:    *li.SourceLotID,
				Delta:    -li.Quantity,
				Action:   model.ActionExchangeOut,
				Reason:   "Contre-offre " + ex.Reference,
				Actor:    tc.Actor(),
			})
			if err != nil {
				return err
			}
		}
		lines = append(lines, model.CounterOfferLine{
			ID:          uuid.New().String(),
			ExchangeID:  ex.ID,
			ProductName: li.ProductName,
			ProductCode: li.ProductCode,
			LotNumber:   li.LotNumber,
			SourceLotID: li.SourceLotID,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			LineTotal:   total,
			ExpiresAt:   li.ExpiresAt,
			CreatedAt:   now,
		})
		counterValue += total
	}
	if err := uc.repo.CreateCounterLines(ctx, lines); err != nil {
		return err
	}

	ex.CounterEstimatedValue = counterValue
	// Only a surplus in the initiator's favor is displayed; a deficit is
	// clamped to zero, not stored signed.
	diff := ex.EstimatedValue - counterValue
	if diff < 0 {
		diff = 0
	}
	ex.Difference = diff
	ex.Status = model.StatusAwaitingValidation
	ex.CounteredAt = &now
	mod := tc.UserID
	ex.ModifiedBy = &mod
	ex.UpdatedAt = now
	ex.CounterLines = lines
	return uc.repo.Update(ctx, ex)
}

func (uc *exchangeUseCase) validate(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange) error {
	if tc.TenantID != ex.TenantID {
		return apperr.New(apperr.KindAccessDenied, "only the initiator can validate exchange %s", ex.Reference)
	}

	counterLines, err := uc.repo.GetCounterLines(ctx, ex.ID)
	if err != nil {
		return err
	}
	lines, err := uc.repo.GetLines(ctx, ex.ID)
	if err != nil {
		return err
	}

	// The initiator receives the counter-offered goods, the recipient the
	// original offer. Both sides get a fresh lot with an exchange-in entry.
	// seq keeps fallback lot numbers distinct: lot numbers are unique per
	// tenant, and one validation may materialize several unnumbered lines.
	seq := 0
	for _, cl := range counterLines {
		seq++
		if err := uc.receiveLine(ctx, tc, ex, ex.TenantID, seq, cl.ProductName, cl.ProductCode, cl.LotNumber, cl.Quantity, cl.UnitPrice, cl.ExpiresAt); err != nil {
			return err
		}
	}
	for _, l := range lines {
		seq++
		if err := uc.receiveLine(ctx, tc, ex, ex.DestinationTenantID, seq, l.ProductName, l.ProductCode, l.LotNumber, l.Quantity, l.UnitPrice, l.ExpiresAt); err != nil {
			return err
		}
	}

	now := time.Now()
	ex.Status = model.StatusCompleted
	ex.ValidatedAt = &now
	ex.ClosedAt = &now
	v := tc.UserID
	ex.ValidatedBy = &v
	ex.UpdatedAt = now
	ex.Lines = lines
	ex.CounterLines = counterLines
	return uc.repo.Update(ctx, ex)
}

func (uc *exchangeUseCase) receiveLine(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange, tenantID string, seq int, name string, code, lotNumber *string, qty int, unitPrice float64, expiresAt *time.Time) error {
	p, err := uc.products.FindOrCreate(ctx, &proddto.FindOrCreateInput{
		TenantID:  tenantID,
		Name:      name,
		Code:      code,
		BasePrice: unitPrice,
	})
	if err != nil {
		return err
	}

	ln := fmt.Sprintf("%s-%d", ex.Reference, seq)
	if lotNumber != nil && strings.TrimSpace(*lotNumber) != "" {
		ln = *lotNumber
	}
	_, err = uc.stockUC.CreateLotWithEntry(ctx, &stockdto.CreateLotInput{
		TenantID:  tenantID,
		ProductID: p.ID,
		LotNumber: ln,
		Quantity:  qty,
		UnitCost:  unitPrice,
		UnitPrice: unitPrice,
		ExpiresAt: expiresAt,
		Action:    model.ActionExchangeIn,
		Reason:    "Échange " + ex.Reference,
		Actor:     tc.Actor(),
	})
	return err
}

func (uc *exchangeUseCase) refuse(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange, reason *string) error {
	if err := uc.restoreExchangeLines(ctx, tc, ex); err != nil {
		return err
	}
	// A refusal after a counter-offer also frees the recipient's holds.
	if ex.Status == model.StatusAwaitingValidation {
		counterLines, err := uc.repo.GetCounterLines(ctx, ex.ID)
		if err != nil {
			return err
		}
		for _, cl := range counterLines {
			if cl.SourceLotID == nil || *cl.SourceLotID == "" {
				continue
			}
			_, err := uc.stockUC.ApplyStockDelta(ctx, &stockdto.StockDeltaInput{
				TenantID: ex.DestinationTenantID,
				LotID:    *cl.SourceLotID,
				Delta:    cl.Quantity,
				Action:   model.ActionReturn,
				Reason:   "Échange refusé " + ex.Reference,
				Actor:    tc.Actor(),
			})
			if err != nil {
				return err
			}
		}
	}

	now := time.Now()
	ex.Status = model.StatusRefused
	ex.RefusedAt = &now
	ex.ClosedAt = &now
	ex.RefusalReason = reason
	mod := tc.UserID
	ex.ModifiedBy = &mod
	ex.UpdatedAt = now
	return uc.repo.Update(ctx, ex)
}

func (uc *exchangeUseCase) cancel(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange) error {
	if tc.TenantID != ex.TenantID {
		return apperr.New(apperr.KindAccessDenied, "only the initiator can cancel exchange %s", ex.Reference)
	}
	// No counter-offer lines can exist yet: cancel is only legal while the
	// record still awaits acceptance.
	if err := uc.restoreExchangeLines(ctx, tc, ex); err != nil {
		return err
	}

	now := time.Now()
	ex.Status = model.StatusCancelled
	ex.ClosedAt = &now
	mod := tc.UserID
	ex.ModifiedBy = &mod
	ex.UpdatedAt = now
	return uc.repo.Update(ctx, ex)
}

// restoreExchangeLines puts back what Create took out, as forward-moving
// return entries. restore(decrement(q)) == q for every lot-backed line.
func (uc *exchangeUseCase) restoreExchangeLines(ctx context.Context, tc *auth.TenantContext, ex *model.Exchange) error {
	lines, err := uc.repo.GetLines(ctx, ex.ID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l.SourceLotID == nil || *l.SourceLotID == "" {
			continue
		}
		_, err := uc.stockUC.ApplyStockDelta(ctx, &stockdto.StockDeltaInput{
			TenantID: ex.TenantID,
			LotID:    *l.SourceLotID,
			Delta:    l.Quantity,
			Action:   model.ActionReturn,
			Reason:   "Restitution échange " + ex.Reference,
			Actor:    tc.Actor(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteExchange soft-deletes a terminal rejected/cancelled record. Stock was
// already restored by the transition that closed it, so nothing moves here.
func (uc *exchangeUseCase) DeleteExchange(ctx context.Context, tc *auth.TenantContext, id string) error {
	if !tc.Can(exchange.Module, "delete") {
		return apperr.New(apperr.KindAccessDenied, "missing permission %s:delete", exchange.Module)
	}

	var ex *model.Exchange
	var prevStatus model.Status
	err := uc.txm.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		ex, err = uc.loadForParty(ctx, tc, id, true)
		if err != nil {
			return err
		}
		if tc.TenantID != ex.TenantID {
			return apperr.New(apperr.KindAccessDenied, "only the initiator can delete exchange %s", ex.Reference)
		}
		if ex.Status != model.StatusRefused && ex.Status != model.StatusCancelled {
			return apperr.New(apperr.KindInvalidState,
				"exchange %s is %s, only refused or cancelled exchanges can be deleted", ex.Reference, ex.Status)
		}
		prevStatus = ex.Status
		ex.IsActive = false
		mod := tc.UserID
		ex.ModifiedBy = &mod
		ex.UpdatedAt = time.Now()
		return uc.repo.Update(ctx, ex)
	})
	if err != nil {
		return err
	}

	uc.recordAudit(ctx, tc, "delete", ex, string(prevStatus), string(ex.Status))
	return nil
}

func (uc *exchangeUseCase) GetExchange(ctx context.Context, tc *auth.TenantContext, id string) (*model.Exchange, error) {
	if !tc.Can(exchange.Module, "read") {
		return nil, apperr.New(apperr.KindAccessDenied, "missing permission %s:read", exchange.Module)
	}
	ex, err := uc.loadForParty(ctx, tc, id, false)
	if err != nil {
		return nil, err
	}
	if ex.Lines, err = uc.repo.GetLines(ctx, ex.ID); err != nil {
		return nil, err
	}
	if ex.CounterLines, err = uc.repo.GetCounterLines(ctx, ex.ID); err != nil {
		return nil, err
	}
	return ex, nil
}

func (uc *exchangeUseCase) ListOutgoing(ctx context.Context, tc *auth.TenantContext, f *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	if !tc.Can(exchange.Module, "read") {
		return nil, 0, apperr.New(apperr.KindAccessDenied, "missing permission %s:read", exchange.Module)
	}
	return uc.repo.FindOutgoing(ctx, tc.TenantID, f)
}

func (uc *exchangeUseCase) ListIncoming(ctx context.Context, tc *auth.TenantContext, f *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	if !tc.Can(exchange.Module, "read") {
		return nil, 0, apperr.New(apperr.KindAccessDenied, "missing permission %s:read", exchange.Module)
	}
	return uc.repo.FindIncoming(ctx, tc.TenantID, f)
}

// loadForParty fetches a live record visible to the caller. Strangers get
// NotFound rather than AccessDenied so record existence does not leak across
// tenants.
func (uc *exchangeUseCase) loadForParty(ctx context.Context, tc *auth.TenantContext, id string, forUpdate bool) (*model.Exchange, error) {
	var ex *model.Exchange
	var err error
	if forUpdate {
		ex, err = uc.repo.GetByIDForUpdate(ctx, id)
	} else {
		ex, err = uc.repo.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if ex == nil || !ex.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "exchange %s not found", id)
	}
	if tc.TenantID != ex.TenantID && tc.TenantID != ex.DestinationTenantID {
		return nil, apperr.New(apperr.KindNotFound, "exchange %s not found", id)
	}
	return ex, nil
}

func validateLines(lines []dto.LineInput) error {
	if len(lines) == 0 {
		return apperr.New(apperr.KindInvalidLine, "at least one line is required")
	}
	for _, li := range lines {
		if strings.TrimSpace(li.ProductName) == "" {
			return apperr.New(apperr.KindInvalidLine, "line is missing a product name")
		}
		if li.Quantity <= 0 {
			return apperr.New(apperr.KindInvalidLine, "product %s: quantity must be positive", li.ProductName)
		}
	}
	return nil
}

func (uc *exchangeUseCase) notify(ctx context.Context, tenantID, typ, title, message string, ex *model.Exchange) {
	n := &model.Notification{
		TenantID:   tenantID,
		Type:       typ,
		Title:      title,
		Message:    message,
		ActionLink: "/exchanges/" + ex.ID,
		Priority:   "normal",
		Metadata: map[string]string{
			"exchange_id": ex.ID,
			"reference":   ex.Reference,
		},
	}
	if err := uc.notifier.Emit(ctx, n); err != nil {
		uc.logger.Error("notification dispatch failed",
			zap.String("exchange_id", ex.ID),
			zap.String("type", typ),
			zap.Error(err),
		)
	}
}

func (uc *exchangeUseCase) recordAudit(ctx context.Context, tc *auth.TenantContext, action string, ex *model.Exchange, before, after string) {
	var b, a *string
	if before != "" {
		b = &before
	}
	if after != "" {
		a = &after
	}
	err := uc.auditor.Record(ctx, &model.AuditEntry{
		TenantID:   tc.TenantID,
		Module:     exchange.Module,
		Action:     action,
		EntityID:   ex.ID,
		EntityName: ex.Reference,
		Before:     b,
		After:      a,
		ActorID:    tc.UserID,
		ActorName:  tc.Name,
	})
	if err != nil {
		uc.logger.Error("audit record failed",
			zap.String("exchange_id", ex.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
