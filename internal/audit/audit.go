// Package audit реализует журнал аудита операций движка.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

// ZapRecorder пишет события аудита в структурированный журнал zap.
// Журнал аудита только дописывается: события не читаются и не изменяются,
// поэтому сбор и хранение остаются за инфраструктурой логирования.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder создаёт рекордер поверх логгера.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger}
}

// Record записывает одно событие аудита.
func (r *ZapRecorder) Record(_ context.Context, entry model.AuditEntry) {
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("store_id", entry.StoreID),
		zap.String("actor_id", entry.ActorID),
	}
	if entry.TargetID != "" {
		fields = append(fields, zap.String("target_id", entry.TargetID))
	}
	if len(entry.Values) > 0 {
		fields = append(fields, zap.Any("values", entry.Values))
	}

	r.logger.Info("audit", fields...)
}
