package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/pkg/broker"
	"github.com/openpharma/exchange-service/pkg/logger"
)

// Dispatcher delivers state-change events to the notification collaborator.
// Emit is best-effort: failures are for the caller to log, never to abort a
// committed transition over.
type Dispatcher interface {
	Emit(ctx context.Context, n *model.Notification) error
}

// KafkaDispatcher publishes notifications keyed by recipient tenant so one
// tenant's notifications stay ordered.
type KafkaDispatcher struct {
	producer *broker.KafkaProducer
	logger   logger.ZapLogger
}

func NewKafkaDispatcher(producer *broker.KafkaProducer, log logger.ZapLogger) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer, logger: log}
}

func (d *KafkaDispatcher) Emit(ctx context.Context, n *model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := d.producer.Publish(ctx, []byte(n.TenantID), payload); err != nil {
		d.logger.Error("failed to publish notification",
			zap.String("tenant_id", n.TenantID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}
