package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

const packColumns = `id, store_id, game_id, pack_number, serial_start, serial_end, status,
	current_bin_id, activated_by, activated_shift_id, activated_at,
	depleted_by, depleted_shift_id, depleted_at, depletion_reason,
	returned_by, returned_at, return_reason, return_last_serial,
	created_at, updated_at`

const packGameColumns = `p.id, p.store_id, p.game_id, p.pack_number, p.serial_start, p.serial_end, p.status,
	p.current_bin_id, p.activated_by, p.activated_shift_id, p.activated_at,
	p.depleted_by, p.depleted_shift_id, p.depleted_at, p.depletion_reason,
	p.returned_by, p.returned_at, p.return_reason, p.return_last_serial,
	p.created_at, p.updated_at,
	g.id, g.store_id, g.code, g.name, g.price_cents, g.tickets_per_pack, g.created_at`

func scanPack(row pgx.Row) (model.Pack, error) {
	var (
		p               model.Pack
		status          string
		depletionReason *string
		returnReason    *string
	)

	err := row.Scan(
		&p.ID, &p.StoreID, &p.GameID, &p.PackNumber, &p.SerialStart, &p.SerialEnd, &status,
		&p.CurrentBinID, &p.ActivatedBy, &p.ActivatedShiftID, &p.ActivatedAt,
		&p.DepletedBy, &p.DepletedShiftID, &p.DepletedAt, &depletionReason,
		&p.ReturnedBy, &p.ReturnedAt, &returnReason, &p.ReturnLastSerial,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return model.Pack{}, err
	}

	p.Status = model.PackStatus(status)
	if depletionReason != nil {
		v := model.DepletionReason(*depletionReason)
		p.DepletionReason = &v
	}
	if returnReason != nil {
		v := model.ReturnReason(*returnReason)
		p.ReturnReason = &v
	}

	return p, nil
}

func scanPackWithGame(row pgx.Row) (model.PackWithGame, error) {
	var (
		p               model.Pack
		g               model.Game
		status          string
		depletionReason *string
		returnReason    *string
	)

	err := row.Scan(
		&p.ID, &p.StoreID, &p.GameID, &p.PackNumber, &p.SerialStart, &p.SerialEnd, &status,
		&p.CurrentBinID, &p.ActivatedBy, &p.ActivatedShiftID, &p.ActivatedAt,
		&p.DepletedBy, &p.DepletedShiftID, &p.DepletedAt, &depletionReason,
		&p.ReturnedBy, &p.ReturnedAt, &returnReason, &p.ReturnLastSerial,
		&p.CreatedAt, &p.UpdatedAt,
		&g.ID, &g.StoreID, &g.Code, &g.Name, &g.PriceCents, &g.TicketsPerPack, &g.CreatedAt,
	)
	if err != nil {
		return model.PackWithGame{}, err
	}

	p.Status = model.PackStatus(status)
	if depletionReason != nil {
		v := model.DepletionReason(*depletionReason)
		p.DepletionReason = &v
	}
	if returnReason != nil {
		v := model.ReturnReason(*returnReason)
		p.ReturnReason = &v
	}

	return model.PackWithGame{Pack: p, Game: g}, nil
}

// getPackForUpdate читает пачку магазина с блокировкой строки до конца транзакции.
func getPackForUpdate(ctx context.Context, tx pgx.Tx, storeID, packID string) (*model.Pack, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+packColumns+` FROM lottery_packs WHERE id = $1 AND store_id = $2 FOR UPDATE`,
		packID, storeID,
	)

	p, err := scanPack(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("pack %s not found", packID)
		}
		return nil, fmt.Errorf("get pack for update: %w", err)
	}

	return &p, nil
}

func insertBinHistory(ctx context.Context, tx pgx.Tx, packID, binID string, action model.BinAction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO lottery_pack_bin_history (id, pack_id, bin_id, action) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), packID, binID, string(action),
	)
	if err != nil {
		return fmt.Errorf("insert bin history: %w", err)
	}
	return nil
}

// evictOccupant снимает с лотка текущую активную пачку, если она там есть,
// и пишет ей событие REMOVED. Снятая пачка остаётся активной без лотка.
func evictOccupant(ctx context.Context, tx pgx.Tx, storeID, binID, exceptPackID string) (*model.Pack, error) {
	row := tx.QueryRow(ctx,
		`UPDATE lottery_packs
		 SET current_bin_id = NULL, updated_at = now()
		 WHERE store_id = $1 AND current_bin_id = $2 AND status = 'ACTIVE' AND id <> $3
		 RETURNING `+packColumns,
		storeID, binID, exceptPackID,
	)

	p, err := scanPack(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("evict occupant: %w", err)
	}

	if err := insertBinHistory(ctx, tx, p.ID, binID, model.BinActionRemoved); err != nil {
		return nil, err
	}

	return &p, nil
}

// GetPack возвращает пачку магазина вместе с её игрой.
func (r *PostgresRepository) GetPack(ctx context.Context, storeID, packID string) (*model.PackWithGame, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+packGameColumns+`
		 FROM lottery_packs p
		 JOIN lottery_games g ON g.id = p.game_id
		 WHERE p.id = $1 AND p.store_id = $2`,
		packID, storeID,
	)

	pg, err := scanPackWithGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("pack %s not found", packID)
		}
		return nil, fmt.Errorf("get pack: %w", err)
	}

	return &pg, nil
}

// ListPacks возвращает пачки магазина, опционально отфильтрованные по статусу.
func (r *PostgresRepository) ListPacks(ctx context.Context, storeID string, status *model.PackStatus) ([]model.PackWithGame, error) {
	query := `SELECT ` + packGameColumns + `
		 FROM lottery_packs p
		 JOIN lottery_games g ON g.id = p.game_id
		 WHERE p.store_id = $1`
	args := []any{storeID}

	if status != nil {
		query += ` AND p.status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY p.created_at DESC, p.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select packs: %w", err)
	}
	defer rows.Close()

	var packs []model.PackWithGame
	for rows.Next() {
		pg, err := scanPackWithGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, pg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return packs, nil
}

// PackInsertResult описывает исход вставки одной пачки из партии приёмки.
type PackInsertResult struct {
	Pack      model.Pack
	Duplicate bool
}

// InsertPacks сохраняет пачки партии в одной транзакции. Существующая пачка
// той же игры с тем же номером не ошибка: она помечается как дубликат,
// остальные элементы партии при этом сохраняются.
func (r *PostgresRepository) InsertPacks(ctx context.Context, packs []model.Pack) ([]PackInsertResult, error) {
	results := make([]PackInsertResult, 0, len(packs))

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		for _, p := range packs {
			p.ID = uuid.NewString()
			p.Status = model.PackStatusReceived

			err := tx.QueryRow(ctx,
				`INSERT INTO lottery_packs (id, store_id, game_id, pack_number, serial_start, serial_end, status)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (store_id, game_id, pack_number) DO NOTHING
				 RETURNING created_at, updated_at`,
				p.ID, p.StoreID, p.GameID, p.PackNumber, p.SerialStart, p.SerialEnd, string(p.Status),
			).Scan(&p.CreatedAt, &p.UpdatedAt)

			if errors.Is(err, pgx.ErrNoRows) {
				results = append(results, PackInsertResult{Pack: p, Duplicate: true})
				continue
			}
			if err != nil {
				if isForeignKeyViolation(err) {
					return model.NewValidation("store does not exist")
				}
				return fmt.Errorf("insert pack: %w", err)
			}

			results = append(results, PackInsertResult{Pack: p})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// ActivatePackParams содержит параметры активации пачки в лотке.
type ActivatePackParams struct {
	StoreID       string
	PackID        string
	BinID         string
	OpeningSerial string
	ActivatedBy   string
	ShiftID       *string
}

// ActivationResult содержит активированную пачку и пачку, вытесненную из лотка, если она была.
type ActivationResult struct {
	Pack     model.Pack
	Previous *model.Pack
}

// ActivatePack переводит пачку RECEIVED → ACTIVE и помещает её в лоток.
// Повтор той же активации тем же пользователем в тот же лоток проходит как
// идемпотентный no-op. Занятый лоток освобождается: прежняя пачка остаётся
// активной без лотка.
func (r *PostgresRepository) ActivatePack(ctx context.Context, params ActivatePackParams) (*ActivationResult, error) {
	var result ActivationResult

	run := func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			pack, err := getPackForUpdate(ctx, tx, params.StoreID, params.PackID)
			if err != nil {
				return err
			}

			if pack.Status == model.PackStatusActive {
				sameBin := pack.CurrentBinID != nil && *pack.CurrentBinID == params.BinID
				sameActor := pack.ActivatedBy != nil && *pack.ActivatedBy == params.ActivatedBy
				if sameBin && sameActor {
					result = ActivationResult{Pack: *pack}
					return nil
				}
				return model.NewConflict("pack %s is already active", params.PackID)
			}
			if !model.CanTransition(pack.Status, model.PackStatusActive) {
				return model.NewIllegalTransition("cannot activate pack in status %s", pack.Status)
			}

			bin, err := getBin(ctx, tx, params.StoreID, params.BinID)
			if err != nil {
				return err
			}
			if !bin.IsActive {
				return model.NewValidation("bin %d is inactive", bin.Number())
			}

			if params.ShiftID != nil {
				if err := checkShiftOpen(ctx, tx, params.StoreID, *params.ShiftID); err != nil {
					return err
				}
			}

			opening := params.OpeningSerial
			if opening == "" {
				opening = pack.SerialStart
			}
			if opening < pack.SerialStart || opening > pack.SerialEnd {
				return model.NewValidation("opening serial %s is outside pack range %s..%s",
					opening, pack.SerialStart, pack.SerialEnd)
			}

			result.Previous, err = evictOccupant(ctx, tx, params.StoreID, params.BinID, params.PackID)
			if err != nil {
				return err
			}

			row := tx.QueryRow(ctx,
				`UPDATE lottery_packs
				 SET status = 'ACTIVE', current_bin_id = $1, activated_by = $2,
				     activated_shift_id = $3, activated_at = now(), updated_at = now()
				 WHERE id = $4 AND store_id = $5 AND status = 'RECEIVED'
				 RETURNING `+packColumns,
				params.BinID, params.ActivatedBy, params.ShiftID, params.PackID, params.StoreID,
			)
			updated, err := scanPack(row)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return model.NewConflict("pack %s was modified concurrently", params.PackID)
				}
				if isUniqueViolation(err) {
					return model.NewConflict("bin %d is already occupied", bin.Number())
				}
				return fmt.Errorf("activate pack: %w", err)
			}
			result.Pack = updated

			if err := insertBinHistory(ctx, tx, updated.ID, params.BinID, model.BinActionActivated); err != nil {
				return err
			}

			if params.ShiftID != nil {
				_, err := tx.Exec(ctx,
					`INSERT INTO lottery_shift_openings (id, shift_id, pack_id, bin_id, opening_serial)
					 VALUES ($1, $2, $3, $4, $5)
					 ON CONFLICT (shift_id, pack_id) DO NOTHING`,
					uuid.NewString(), *params.ShiftID, updated.ID, params.BinID, opening,
				)
				if err != nil {
					return fmt.Errorf("insert shift opening: %w", err)
				}
			}

			return nil
		})
	}

	if err := r.withRetry(ctx, run); err != nil {
		return nil, err
	}

	return &result, nil
}

// DepletePackParams содержит параметры перевода пачки в статус DEPLETED.
type DepletePackParams struct {
	StoreID    string
	PackID     string
	Reason     model.DepletionReason
	DepletedBy string
	ShiftID    *string
}

// DepletePack переводит активную пачку в DEPLETED и освобождает её лоток.
func (r *PostgresRepository) DepletePack(ctx context.Context, params DepletePackParams) (*model.Pack, error) {
	var depleted model.Pack

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		pack, err := getPackForUpdate(ctx, tx, params.StoreID, params.PackID)
		if err != nil {
			return err
		}

		if !model.CanTransition(pack.Status, model.PackStatusDepleted) {
			return model.NewIllegalTransition("cannot deplete pack in status %s", pack.Status)
		}

		row := tx.QueryRow(ctx,
			`UPDATE lottery_packs
			 SET status = 'DEPLETED', current_bin_id = NULL, depleted_by = $1,
			     depleted_shift_id = $2, depleted_at = now(), depletion_reason = $3, updated_at = now()
			 WHERE id = $4 AND store_id = $5 AND status = 'ACTIVE'
			 RETURNING `+packColumns,
			params.DepletedBy, params.ShiftID, string(params.Reason), params.PackID, params.StoreID,
		)
		depleted, err = scanPack(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.NewConflict("pack %s was modified concurrently", params.PackID)
			}
			return fmt.Errorf("deplete pack: %w", err)
		}

		if pack.CurrentBinID != nil {
			if err := insertBinHistory(ctx, tx, pack.ID, *pack.CurrentBinID, model.BinActionRemoved); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &depleted, nil
}

// ReturnPackParams содержит параметры возврата пачки поставщику.
type ReturnPackParams struct {
	StoreID        string
	PackID         string
	Reason         model.ReturnReason
	LastSoldSerial *string
	ReturnedBy     string
}

// ReturnPack переводит пачку RECEIVED или ACTIVE в RETURNED.
// Для частично проданной пачки фиксируется последний проданный серийный номер.
func (r *PostgresRepository) ReturnPack(ctx context.Context, params ReturnPackParams) (*model.Pack, error) {
	var returned model.Pack

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		pack, err := getPackForUpdate(ctx, tx, params.StoreID, params.PackID)
		if err != nil {
			return err
		}

		if !model.CanTransition(pack.Status, model.PackStatusReturned) {
			return model.NewIllegalTransition("cannot return pack in status %s", pack.Status)
		}

		if params.LastSoldSerial != nil {
			last := *params.LastSoldSerial
			if last < pack.SerialStart || last > pack.SerialEnd {
				return model.NewValidation("last sold serial %s is outside pack range %s..%s",
					last, pack.SerialStart, pack.SerialEnd)
			}
		}

		row := tx.QueryRow(ctx,
			`UPDATE lottery_packs
			 SET status = 'RETURNED', current_bin_id = NULL, returned_by = $1,
			     returned_at = now(), return_reason = $2, return_last_serial = $3, updated_at = now()
			 WHERE id = $4 AND store_id = $5 AND status = $6
			 RETURNING `+packColumns,
			params.ReturnedBy, string(params.Reason), params.LastSoldSerial,
			params.PackID, params.StoreID, string(pack.Status),
		)
		returned, err = scanPack(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.NewConflict("pack %s was modified concurrently", params.PackID)
			}
			return fmt.Errorf("return pack: %w", err)
		}

		if pack.CurrentBinID != nil {
			if err := insertBinHistory(ctx, tx, pack.ID, *pack.CurrentBinID, model.BinActionRemoved); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &returned, nil
}

// MovePackParams содержит параметры перемещения активной пачки в другой лоток.
type MovePackParams struct {
	StoreID     string
	PackID      string
	TargetBinID string
	MovedBy     string
}

// MovePack перемещает активную пачку в другой лоток. Перемещение в занятый лоток
// вытесняет его пачку так же, как при активации.
func (r *PostgresRepository) MovePack(ctx context.Context, params MovePackParams) (*ActivationResult, error) {
	var result ActivationResult

	run := func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			pack, err := getPackForUpdate(ctx, tx, params.StoreID, params.PackID)
			if err != nil {
				return err
			}

			if pack.Status != model.PackStatusActive {
				return model.NewIllegalTransition("cannot move pack in status %s", pack.Status)
			}
			if pack.CurrentBinID != nil && *pack.CurrentBinID == params.TargetBinID {
				result = ActivationResult{Pack: *pack}
				return nil
			}

			bin, err := getBin(ctx, tx, params.StoreID, params.TargetBinID)
			if err != nil {
				return err
			}
			if !bin.IsActive {
				return model.NewValidation("bin %d is inactive", bin.Number())
			}

			result.Previous, err = evictOccupant(ctx, tx, params.StoreID, params.TargetBinID, params.PackID)
			if err != nil {
				return err
			}

			row := tx.QueryRow(ctx,
				`UPDATE lottery_packs
				 SET current_bin_id = $1, updated_at = now()
				 WHERE id = $2 AND store_id = $3 AND status = 'ACTIVE'
				 RETURNING `+packColumns,
				params.TargetBinID, params.PackID, params.StoreID,
			)
			updated, err := scanPack(row)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return model.NewConflict("pack %s was modified concurrently", params.PackID)
				}
				if isUniqueViolation(err) {
					return model.NewConflict("bin %d is already occupied", bin.Number())
				}
				return fmt.Errorf("move pack: %w", err)
			}
			result.Pack = updated

			if pack.CurrentBinID != nil {
				if err := insertBinHistory(ctx, tx, pack.ID, *pack.CurrentBinID, model.BinActionRemoved); err != nil {
					return err
				}
			}

			return insertBinHistory(ctx, tx, updated.ID, params.TargetBinID, model.BinActionMoved)
		})
	}

	if err := r.withRetry(ctx, run); err != nil {
		return nil, err
	}

	return &result, nil
}

// PackBinHistory возвращает историю привязки пачки к лоткам от старых событий к новым.
func (r *PostgresRepository) PackBinHistory(ctx context.Context, storeID, packID string) ([]model.BinHistoryEntry, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lottery_packs WHERE id = $1 AND store_id = $2)`,
		packID, storeID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check pack: %w", err)
	}
	if !exists {
		return nil, model.NewNotFound("pack %s not found", packID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, pack_id, bin_id, action, created_at
		 FROM lottery_pack_bin_history
		 WHERE pack_id = $1
		 ORDER BY created_at, id`,
		packID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bin history: %w", err)
	}
	defer rows.Close()

	var history []model.BinHistoryEntry
	for rows.Next() {
		var (
			e      model.BinHistoryEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.PackID, &e.BinID, &action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Action = model.BinAction(action)
		history = append(history, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}
