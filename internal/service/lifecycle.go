package service

import (
	"context"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/serial"
)

// ActivatePackParams содержит параметры активации пачки в лотке.
// При пустом OpeningSerial продажи начинаются с первого билета пачки.
type ActivatePackParams struct {
	PackID        string
	BinID         string
	OpeningSerial string
	ShiftID       *string
}

// ActivatePack переводит пачку RECEIVED → ACTIVE и помещает её в лоток.
// Прежняя пачка лотка вытесняется и возвращается в поле Previous результата.
func (s *Service) ActivatePack(ctx context.Context, actor Actor, params ActivatePackParams) (*repository.ActivationResult, error) {
	if params.OpeningSerial != "" {
		if _, err := serial.ParseTicket(params.OpeningSerial); err != nil {
			return nil, err
		}
	}

	result, err := s.repo.ActivatePack(ctx, repository.ActivatePackParams{
		StoreID:       actor.StoreID,
		PackID:        params.PackID,
		BinID:         params.BinID,
		OpeningSerial: params.OpeningSerial,
		ActivatedBy:   actor.UserID,
		ShiftID:       params.ShiftID,
	})
	if err != nil {
		return nil, err
	}

	values := map[string]any{
		"bin_id": params.BinID,
		"status": string(result.Pack.Status),
	}
	if result.Previous != nil {
		values["evicted_pack_id"] = result.Previous.ID
	}
	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditPackActivated,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: result.Pack.ID,
		Values:   values,
	})

	return result, nil
}

// DepletePackParams содержит параметры ручного исчерпания пачки.
type DepletePackParams struct {
	PackID  string
	ShiftID *string
}

// DepletePack переводит распроданную пачку в DEPLETED.
// Исчерпание с причиной DAY_CLOSE выполняет только фиксация закрытия дня.
func (s *Service) DepletePack(ctx context.Context, actor Actor, params DepletePackParams) (*model.Pack, error) {
	pack, err := s.repo.DepletePack(ctx, repository.DepletePackParams{
		StoreID:    actor.StoreID,
		PackID:     params.PackID,
		Reason:     model.DepletionReasonSoldOut,
		DepletedBy: actor.UserID,
		ShiftID:    params.ShiftID,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditPackDepleted,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: pack.ID,
		Values: map[string]any{
			"status": string(pack.Status),
			"reason": string(model.DepletionReasonSoldOut),
		},
	})

	return pack, nil
}

// ReturnPackParams содержит параметры возврата пачки поставщику.
type ReturnPackParams struct {
	PackID         string
	Reason         model.ReturnReason
	LastSoldSerial *string
}

func validReturnReason(r model.ReturnReason) bool {
	switch r {
	case model.ReturnReasonDamaged, model.ReturnReasonRecalled, model.ReturnReasonExpired, model.ReturnReasonOther:
		return true
	}
	return false
}

// ReturnPack переводит пачку RECEIVED или ACTIVE в RETURNED.
func (s *Service) ReturnPack(ctx context.Context, actor Actor, params ReturnPackParams) (*model.Pack, error) {
	if !validReturnReason(params.Reason) {
		return nil, model.NewValidation("unknown return reason %s", params.Reason)
	}
	if params.LastSoldSerial != nil {
		if _, err := serial.ParseTicket(*params.LastSoldSerial); err != nil {
			return nil, err
		}
	}

	pack, err := s.repo.ReturnPack(ctx, repository.ReturnPackParams{
		StoreID:        actor.StoreID,
		PackID:         params.PackID,
		Reason:         params.Reason,
		LastSoldSerial: params.LastSoldSerial,
		ReturnedBy:     actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	values := map[string]any{
		"status": string(pack.Status),
		"reason": string(params.Reason),
	}
	if params.LastSoldSerial != nil {
		values["last_sold_serial"] = *params.LastSoldSerial
	}
	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditPackReturned,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: pack.ID,
		Values:   values,
	})

	return pack, nil
}

// MovePackParams содержит параметры перемещения активной пачки в другой лоток.
type MovePackParams struct {
	PackID      string
	TargetBinID string
}

// MovePack перемещает активную пачку в другой лоток с вытеснением его пачки.
func (s *Service) MovePack(ctx context.Context, actor Actor, params MovePackParams) (*repository.ActivationResult, error) {
	result, err := s.repo.MovePack(ctx, repository.MovePackParams{
		StoreID:     actor.StoreID,
		PackID:      params.PackID,
		TargetBinID: params.TargetBinID,
		MovedBy:     actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	values := map[string]any{"bin_id": params.TargetBinID}
	if result.Previous != nil {
		values["evicted_pack_id"] = result.Previous.ID
	}
	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditPackMoved,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: result.Pack.ID,
		Values:   values,
	})

	return result, nil
}

// GetPack возвращает пачку магазина вместе с её игрой.
func (s *Service) GetPack(ctx context.Context, actor Actor, packID string) (*model.PackWithGame, error) {
	return s.repo.GetPack(ctx, actor.StoreID, packID)
}

// ListPacks возвращает пачки магазина, опционально по статусу.
func (s *Service) ListPacks(ctx context.Context, actor Actor, status *model.PackStatus) ([]model.PackWithGame, error) {
	return s.repo.ListPacks(ctx, actor.StoreID, status)
}

// PackBinHistory возвращает историю привязки пачки к лоткам.
func (s *Service) PackBinHistory(ctx context.Context, actor Actor, packID string) ([]model.BinHistoryEntry, error) {
	return s.repo.PackBinHistory(ctx, actor.StoreID, packID)
}
