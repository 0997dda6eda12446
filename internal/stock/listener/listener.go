package listener

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock"
	"github.com/openpharma/exchange-service/internal/stock/dto"
	"github.com/openpharma/exchange-service/pkg/broker"
	"github.com/openpharma/exchange-service/pkg/logger"
	"github.com/openpharma/exchange-service/pkg/postgres"
)

// SalesListener consumes point-of-sale events and deducts the sold lots.
// Going through the same mutator as the exchange transitions keeps the
// one-entry-per-change ledger invariant for sales too.
type SalesListener struct {
	consumer *broker.KafkaConsumer
	uc       stock.UseCase
	txm      postgres.TxManager
	logger   logger.ZapLogger
}

func NewSalesListener(consumer *broker.KafkaConsumer, uc stock.UseCase, txm postgres.TxManager, log logger.ZapLogger) *SalesListener {
	return &SalesListener{consumer: consumer, uc: uc, txm: txm, logger: log}
}

func (l *SalesListener) Start(ctx context.Context) {
	l.logger.Info("starting sales listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopping sales listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type SaleCompletedEvent struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   SalePayload `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type SalePayload struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	Items    []SaleItemPayload `json:"items"`
}

type SaleItemPayload struct {
	LotID    string `json:"lot_id"`
	Quantity int    `json:"quantity"`
}

func (l *SalesListener) processMessage(ctx context.Context, value []byte) {
	var event SaleCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("failed to unmarshal sale event", zap.Error(err))
		return
	}

	if event.EventType != "SaleCompleted" {
		return
	}

	// One transaction per sale: either every line is deducted or none is.
	err := l.txm.RunInTx(ctx, func(ctx context.Context) error {
		for _, item := range event.Payload.Items {
			_, err := l.uc.ApplyStockDelta(ctx, &dto.StockDeltaInput{
				TenantID: event.Payload.TenantID,
				LotID:    item.LotID,
				Delta:    -item.Quantity,
				Action:   model.ActionStockOut,
				Reason:   "Vente " + event.Payload.ID,
				Actor:    model.Actor{ID: "system", Name: "POS"},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("failed to deduct stock for sale",
			zap.String("sale_id", event.Payload.ID),
			zap.Error(err),
		)
	}
}
