package service

import (
	"context"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
)

// OpenShift открывает смену кассира и фиксирует снимок стартовых серийных
// номеров всех активных пачек в лотках магазина.
func (s *Service) OpenShift(ctx context.Context, actor Actor) (*repository.ShiftWithOpenings, error) {
	result, err := s.repo.OpenShift(ctx, actor.StoreID, actor.UserID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditShiftOpened,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: result.Shift.ID,
		Values: map[string]any{
			"openings": len(result.Openings),
		},
	})

	return result, nil
}

// GetOpenShift возвращает открытую смену кассира вместе со снимком
// стартовых серийных номеров.
func (s *Service) GetOpenShift(ctx context.Context, actor Actor) (*repository.ShiftWithOpenings, error) {
	shift, err := s.repo.GetOpenShift(ctx, actor.StoreID, actor.UserID)
	if err != nil {
		return nil, err
	}

	openings, err := s.repo.ShiftOpenings(ctx, shift.ID)
	if err != nil {
		return nil, err
	}

	return &repository.ShiftWithOpenings{Shift: *shift, Openings: openings}, nil
}
