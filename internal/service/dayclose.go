package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/serial"
)

// PrepareDayCloseParams содержит параметры первой фазы закрытия дня.
// При нулевом TTL срок действия staging-записи берётся из настройки сервиса.
type PrepareDayCloseParams struct {
	BusinessDate       time.Time
	Closings           []model.PackClosing
	TTL                time.Duration
	ManualAuthorizedBy *string
}

// PrepareDayClose выполняет первую фазу закрытия дня: проверяет закрытия,
// рассчитывает предварительную сверку и сохраняет staging-запись со сроком
// действия. Ручной ввод закрывающего номера требует второй авторизации,
// и авторизующий обязан отличаться от инициатора.
func (s *Service) PrepareDayClose(ctx context.Context, actor Actor, params PrepareDayCloseParams) (*model.DayCloseStaging, error) {
	if params.BusinessDate.IsZero() {
		return nil, model.NewValidation("business date is required")
	}

	ttl := params.TTL
	if ttl == 0 {
		ttl = s.stagingTTL
	}
	if ttl < MinStagingTTL || ttl > MaxStagingTTL {
		return nil, model.NewValidation("staging ttl must be between %d and %d minutes",
			int(MinStagingTTL.Minutes()), int(MaxStagingTTL.Minutes()))
	}

	manual := false
	for _, c := range params.Closings {
		switch c.EntryMethod {
		case model.EntryMethodScanned:
		case model.EntryMethodManual:
			manual = true
		default:
			return nil, model.NewValidation("unknown entry method %s", c.EntryMethod)
		}

		if _, err := serial.ParseTicket(c.ClosingSerial); err != nil {
			return nil, err
		}
		if c.POSSoldQty != nil && *c.POSSoldQty < 0 {
			return nil, model.NewValidation("pos sold quantity must not be negative")
		}
	}

	if manual {
		if params.ManualAuthorizedBy == nil || *params.ManualAuthorizedBy == "" {
			return nil, model.NewValidation("manual closings require dual authorization")
		}
		if *params.ManualAuthorizedBy == actor.UserID {
			return nil, model.NewValidation("manual closings must be authorized by another user")
		}
	}

	staging, err := s.repo.PrepareDayClose(ctx, repository.PrepareDayCloseParams{
		StoreID:            actor.StoreID,
		BusinessDate:       dateOnly(params.BusinessDate),
		InitiatedBy:        actor.UserID,
		ManualAuthorizedBy: params.ManualAuthorizedBy,
		Closings:           params.Closings,
		TTL:                ttl,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditDayClosePrepared,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: staging.DayID,
		Values: map[string]any{
			"closings":   len(staging.Closings),
			"expires_at": staging.ExpiresAt,
		},
	})

	return staging, nil
}

// CommitDayClose выполняет вторую фазу закрытия дня: атомарно применяет
// подготовленные закрытия, создаёт записи расхождений, закрывает смены
// магазина и переводит день в CLOSED. Фиксация без подготовленного закрытия
// или с просроченной staging-записью отклоняется, просроченная запись при
// этом освобождается, и её день возвращается в OPEN.
func (s *Service) CommitDayClose(ctx context.Context, actor Actor, businessDate time.Time) (*repository.DayCloseResult, error) {
	if businessDate.IsZero() {
		return nil, model.NewValidation("business date is required")
	}
	day := dateOnly(businessDate)

	status, err := s.repo.GetBusinessDay(ctx, actor.StoreID, day)
	if err != nil {
		return nil, err
	}

	date := day.Format("2006-01-02")
	if status.Day.Status == model.DayStatusClosed {
		return nil, model.NewIllegalTransition("business day %s is already closed", date)
	}
	if status.Staging == nil {
		return nil, model.NewIllegalTransition("no pending day close for %s", date)
	}
	if status.Staging.Expired(time.Now()) {
		if _, err := s.repo.ReleaseExpiredStagings(ctx); err != nil {
			s.logger.Warn("release expired stagings", zap.Error(err))
		}
		return nil, model.NewIllegalTransition("day close staging for %s expired, prepare it again", date)
	}

	// Репозиторий перепроверяет состояние дня и пачек под блокировкой строк.
	result, err := s.repo.CommitDayClose(ctx, repository.CommitDayCloseParams{
		StoreID:      actor.StoreID,
		BusinessDate: day,
		CommittedBy:  actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditDayCloseCommitted,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: result.Day.ID,
		Values: map[string]any{
			"closings":  len(result.Closings),
			"variances": len(result.Variances),
			"depleted":  len(result.DepletedPacks),
		},
	})

	return result, nil
}

// CancelDayClose отменяет подготовленное закрытие дня. Отмена дня без
// подготовленного закрытия, в том числе дня, которого ещё нет в хранилище,
// считается безопасным no-op без события аудита.
func (s *Service) CancelDayClose(ctx context.Context, actor Actor, businessDate time.Time) (*model.BusinessDay, error) {
	if businessDate.IsZero() {
		return nil, model.NewValidation("business date is required")
	}
	date := dateOnly(businessDate)

	day, cancelled, err := s.repo.CancelDayClose(ctx, actor.StoreID, date)
	if err != nil {
		if model.CodeOf(err) == model.CodeNotFound {
			return &model.BusinessDay{StoreID: actor.StoreID, BusinessDate: date, Status: model.DayStatusOpen}, nil
		}
		return nil, err
	}

	if cancelled {
		s.audit.Record(ctx, model.AuditEntry{
			Action:   model.AuditDayCloseCancelled,
			StoreID:  actor.StoreID,
			ActorID:  actor.UserID,
			TargetID: day.ID,
		})
	}

	return day, nil
}

// GetBusinessDay возвращает состояние бизнес-дня и живую staging-запись,
// если она есть. Просроченная staging-запись скрывается до прихода уборщика.
func (s *Service) GetBusinessDay(ctx context.Context, actor Actor, businessDate time.Time) (*repository.BusinessDayStatus, error) {
	if businessDate.IsZero() {
		return nil, model.NewValidation("business date is required")
	}

	status, err := s.repo.GetBusinessDay(ctx, actor.StoreID, dateOnly(businessDate))
	if err != nil {
		return nil, err
	}
	if status.Staging != nil && status.Staging.Expired(time.Now()) {
		status.Staging = nil
	}
	return status, nil
}

// GetClosingData возвращает данные для ввода закрывающих серийных номеров.
func (s *Service) GetClosingData(ctx context.Context, actor Actor, businessDate time.Time) (*model.ClosingData, error) {
	if businessDate.IsZero() {
		return nil, model.NewValidation("business date is required")
	}
	return s.repo.GetClosingData(ctx, actor.StoreID, dateOnly(businessDate))
}

// ListVariances возвращает расхождения магазина, опционально по статусу.
func (s *Service) ListVariances(ctx context.Context, actor Actor, status *model.VarianceStatus) ([]model.Variance, error) {
	return s.repo.ListVariances(ctx, actor.StoreID, status)
}

// ApproveVariance закрывает расхождение одобрением с обязательным комментарием.
func (s *Service) ApproveVariance(ctx context.Context, actor Actor, varianceID, notes string) (*model.Variance, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, model.NewValidation("approval notes are required")
	}

	v, err := s.repo.ApproveVariance(ctx, actor.StoreID, varianceID, actor.UserID, notes)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditVarianceApproved,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: v.ID,
		Values: map[string]any{
			"expected_qty": v.ExpectedQty,
			"actual_qty":   v.ActualQty,
			"notes":        notes,
		},
	})

	return v, nil
}

// StartStagingSweeper запускает фоновую уборку просроченных staging-записей:
// их дни возвращаются в OPEN, как если бы закрытие отменили.
func (s *Service) StartStagingSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dayIDs, err := s.repo.ReleaseExpiredStagings(ctx)
				if err != nil {
					s.logger.Warn("release expired stagings", zap.Error(err))
					continue
				}
				if len(dayIDs) > 0 {
					s.logger.Info("expired day close stagings released", zap.Strings("day_ids", dayIDs))
				}
			}
		}
	}()
}
