package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

// checkShiftOpen проверяет, что смена существует, открыта и принадлежит магазину.
func checkShiftOpen(ctx context.Context, q querier, storeID, shiftID string) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1 AND store_id = $2 AND status = 'OPEN')`,
		shiftID, storeID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check shift: %w", err)
	}
	if !exists {
		return model.NewValidation("shift %s is not open", shiftID)
	}
	return nil
}

// ShiftWithOpenings содержит открытую смену и снимок стартовых серийных
// номеров всех активных пачек в лотках на момент открытия.
type ShiftWithOpenings struct {
	Shift    model.Shift
	Openings []model.ShiftOpening
}

// OpenShift открывает смену кассира и фиксирует стартовые серийные номера.
// Стартовым номером пачки берётся её последний закрывающий номер, иначе последний
// стартовый, иначе первый билет пачки. У кассира может быть лишь одна открытая смена.
func (r *PostgresRepository) OpenShift(ctx context.Context, storeID, cashierID string) (*ShiftWithOpenings, error) {
	result := ShiftWithOpenings{
		Shift: model.Shift{
			ID:        uuid.NewString(),
			StoreID:   storeID,
			CashierID: cashierID,
			Status:    model.ShiftStatusOpen,
		},
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO shifts (id, store_id, cashier_id, status)
			 VALUES ($1, $2, $3, 'OPEN')
			 RETURNING opened_at`,
			result.Shift.ID, storeID, cashierID,
		).Scan(&result.Shift.OpenedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return model.NewConflict("cashier %s already has an open shift", cashierID)
			}
			if isForeignKeyViolation(err) {
				return model.NewValidation("store does not exist")
			}
			return fmt.Errorf("insert shift: %w", err)
		}

		rows, err := tx.Query(ctx,
			`INSERT INTO lottery_shift_openings (id, shift_id, pack_id, bin_id, opening_serial)
			 SELECT gen_random_uuid(), $1, p.id, p.current_bin_id,
			        COALESCE(
			            (SELECT c.closing_serial FROM lottery_shift_closings c
			             WHERE c.pack_id = p.id ORDER BY c.created_at DESC, c.id DESC LIMIT 1),
			            (SELECT o.opening_serial FROM lottery_shift_openings o
			             WHERE o.pack_id = p.id ORDER BY o.created_at DESC, o.id DESC LIMIT 1),
			            p.serial_start)
			 FROM lottery_packs p
			 WHERE p.store_id = $2 AND p.status = 'ACTIVE' AND p.current_bin_id IS NOT NULL
			 RETURNING id, shift_id, pack_id, bin_id, opening_serial, created_at`,
			result.Shift.ID, storeID,
		)
		if err != nil {
			return fmt.Errorf("insert shift openings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var o model.ShiftOpening
			if err := rows.Scan(&o.ID, &o.ShiftID, &o.PackID, &o.BinID, &o.OpeningSerial, &o.CreatedAt); err != nil {
				return fmt.Errorf("scan shift opening: %w", err)
			}
			result.Openings = append(result.Openings, o)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetOpenShift возвращает открытую смену кассира, если она есть.
func (r *PostgresRepository) GetOpenShift(ctx context.Context, storeID, cashierID string) (*model.Shift, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, store_id, cashier_id, status, opened_at, closed_at
		 FROM shifts
		 WHERE store_id = $1 AND cashier_id = $2 AND status = 'OPEN'`,
		storeID, cashierID,
	)

	var (
		s      model.Shift
		status string
	)
	err := row.Scan(&s.ID, &s.StoreID, &s.CashierID, &status, &s.OpenedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("cashier %s has no open shift", cashierID)
		}
		return nil, fmt.Errorf("get open shift: %w", err)
	}
	s.Status = model.ShiftStatus(status)

	return &s, nil
}

// ShiftOpenings возвращает снимок стартовых серийных номеров смены.
func (r *PostgresRepository) ShiftOpenings(ctx context.Context, shiftID string) ([]model.ShiftOpening, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, shift_id, pack_id, bin_id, opening_serial, created_at
		 FROM lottery_shift_openings
		 WHERE shift_id = $1
		 ORDER BY created_at, id`,
		shiftID,
	)
	if err != nil {
		return nil, fmt.Errorf("select shift openings: %w", err)
	}
	defer rows.Close()

	var openings []model.ShiftOpening
	for rows.Next() {
		var o model.ShiftOpening
		if err := rows.Scan(&o.ID, &o.ShiftID, &o.PackID, &o.BinID, &o.OpeningSerial, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shift opening: %w", err)
		}
		openings = append(openings, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return openings, nil
}
