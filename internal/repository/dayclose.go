package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/variance"
)

const dayColumns = `id, store_id, business_date, status, opened_at, closed_at, closed_by`

func scanDay(row pgx.Row) (model.BusinessDay, error) {
	var (
		d      model.BusinessDay
		status string
	)
	err := row.Scan(&d.ID, &d.StoreID, &d.BusinessDate, &status, &d.OpenedAt, &d.ClosedAt, &d.ClosedBy)
	if err != nil {
		return model.BusinessDay{}, err
	}
	d.Status = model.DayStatus(status)
	return d, nil
}

func getDayForUpdate(ctx context.Context, tx pgx.Tx, storeID string, date time.Time) (*model.BusinessDay, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+dayColumns+` FROM business_days WHERE store_id = $1 AND business_date = $2 FOR UPDATE`,
		storeID, date,
	)

	d, err := scanDay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("business day %s not found", date.Format("2006-01-02"))
		}
		return nil, fmt.Errorf("get business day: %w", err)
	}

	return &d, nil
}

// getOrCreateDayForUpdate возвращает строку бизнес-дня под блокировкой,
// создавая её при первом обращении к этому дню.
func getOrCreateDayForUpdate(ctx context.Context, tx pgx.Tx, storeID string, date time.Time) (*model.BusinessDay, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO business_days (id, store_id, business_date, status)
		 VALUES ($1, $2, $3, 'OPEN')
		 ON CONFLICT (store_id, business_date) DO NOTHING`,
		uuid.NewString(), storeID, date,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, model.NewValidation("store does not exist")
		}
		return nil, fmt.Errorf("insert business day: %w", err)
	}

	return getDayForUpdate(ctx, tx, storeID, date)
}

// loadStaging возвращает staging-запись дня и признак её истечения по часам БД.
func loadStaging(ctx context.Context, q querier, dayID string) (*model.DayCloseStaging, bool, error) {
	row := q.QueryRow(ctx,
		`SELECT id, day_id, initiated_by, manual_authorized_by, payload, expires_at, created_at,
		        expires_at <= now()
		 FROM lottery_day_close_staging
		 WHERE day_id = $1`,
		dayID,
	)

	var (
		s       model.DayCloseStaging
		payload []byte
		expired bool
	)
	err := row.Scan(&s.ID, &s.DayID, &s.InitiatedBy, &s.ManualAuthorizedBy, &payload, &s.ExpiresAt, &s.CreatedAt, &expired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get staging: %w", err)
	}

	if err := json.Unmarshal(payload, &s.Closings); err != nil {
		return nil, false, fmt.Errorf("decode staging payload: %w", err)
	}

	return &s, expired, nil
}

type packOpening struct {
	serial  string
	shiftID *string
}

// packOpenings возвращает стартовый серийный номер каждой пачки и смену,
// которой принадлежат её продажи: последний закрывающий номер, иначе последний
// зафиксированный стартовый, иначе первый билет пачки.
func packOpenings(ctx context.Context, q querier, packIDs []string) (map[string]packOpening, error) {
	openings := make(map[string]packOpening, len(packIDs))
	if len(packIDs) == 0 {
		return openings, nil
	}

	rows, err := q.Query(ctx,
		`SELECT p.id,
		        COALESCE(
		            (SELECT c.closing_serial FROM lottery_shift_closings c
		             WHERE c.pack_id = p.id ORDER BY c.created_at DESC, c.id DESC LIMIT 1),
		            (SELECT o.opening_serial FROM lottery_shift_openings o
		             WHERE o.pack_id = p.id ORDER BY o.created_at DESC, o.id DESC LIMIT 1),
		            p.serial_start),
		        (SELECT o.shift_id FROM lottery_shift_openings o
		         JOIN shifts s ON s.id = o.shift_id
		         WHERE o.pack_id = p.id AND s.status = 'OPEN'
		         ORDER BY o.created_at DESC, o.id DESC LIMIT 1)
		 FROM lottery_packs p
		 WHERE p.id = ANY($1)`,
		packIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select pack openings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			packID  string
			opening packOpening
		)
		if err := rows.Scan(&packID, &opening.serial, &opening.shiftID); err != nil {
			return nil, fmt.Errorf("scan pack opening: %w", err)
		}
		openings[packID] = opening
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return openings, nil
}

// PrepareDayCloseParams содержит параметры первой фазы закрытия дня.
type PrepareDayCloseParams struct {
	StoreID            string
	BusinessDate       time.Time
	InitiatedBy        string
	ManualAuthorizedBy *string
	Closings           []model.PackClosing
	TTL                time.Duration
}

// PrepareDayClose выполняет первую фазу закрытия дня: проверяет каждый
// закрывающий серийный номер, рассчитывает предварительную сверку и сохраняет
// её в staging-записи со сроком действия. Пачки и смены не изменяются.
// Повторный prepare при живой staging-записи отклоняется; просроченная
// запись молча заменяется новой.
func (r *PostgresRepository) PrepareDayClose(ctx context.Context, params PrepareDayCloseParams) (*model.DayCloseStaging, error) {
	var staging model.DayCloseStaging

	run := func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			day, err := getOrCreateDayForUpdate(ctx, tx, params.StoreID, params.BusinessDate)
			if err != nil {
				return err
			}

			date := day.BusinessDate.Format("2006-01-02")
			switch day.Status {
			case model.DayStatusClosed:
				return model.NewIllegalTransition("business day %s is already closed", date)
			case model.DayStatusPendingClose:
				existing, expired, err := loadStaging(ctx, tx, day.ID)
				if err != nil {
					return err
				}
				if existing != nil && !expired {
					return model.NewConflict("day close for %s is already pending", date)
				}
				if _, err := tx.Exec(ctx, `DELETE FROM lottery_day_close_staging WHERE day_id = $1`, day.ID); err != nil {
					return fmt.Errorf("delete expired staging: %w", err)
				}
			}

			closings, err := stageClosings(ctx, tx, params)
			if err != nil {
				return err
			}

			payload, err := json.Marshal(closings)
			if err != nil {
				return fmt.Errorf("encode staging payload: %w", err)
			}

			staging = model.DayCloseStaging{
				ID:                 uuid.NewString(),
				DayID:              day.ID,
				InitiatedBy:        params.InitiatedBy,
				ManualAuthorizedBy: params.ManualAuthorizedBy,
				Closings:           closings,
			}

			err = tx.QueryRow(ctx,
				`INSERT INTO lottery_day_close_staging (id, day_id, initiated_by, manual_authorized_by, payload, expires_at)
				 VALUES ($1, $2, $3, $4, $5, now() + $6)
				 RETURNING expires_at, created_at`,
				staging.ID, day.ID, params.InitiatedBy, params.ManualAuthorizedBy, payload, params.TTL,
			).Scan(&staging.ExpiresAt, &staging.CreatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return model.NewConflict("day close for %s is already pending", date)
				}
				return fmt.Errorf("insert staging: %w", err)
			}

			cmdTag, err := tx.Exec(ctx,
				`UPDATE business_days SET status = 'PENDING_CLOSE' WHERE id = $1 AND status IN ('OPEN', 'PENDING_CLOSE')`,
				day.ID,
			)
			if err != nil {
				return fmt.Errorf("mark day pending: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return model.NewConflict("business day %s was modified concurrently", date)
			}

			return nil
		})
	}

	if err := r.withRetry(ctx, run); err != nil {
		return nil, err
	}

	return &staging, nil
}

// stageClosings проверяет каждое закрытие против текущего состояния его пачки
// и рассчитывает предварительную сверку. Любое нарушение отклоняет prepare целиком.
func stageClosings(ctx context.Context, tx pgx.Tx, params PrepareDayCloseParams) ([]model.StagedClosing, error) {
	seen := make(map[string]struct{}, len(params.Closings))
	packIDs := make([]string, 0, len(params.Closings))
	for _, c := range params.Closings {
		if _, ok := seen[c.PackID]; ok {
			return nil, model.NewValidation("duplicate closing for pack %s", c.PackID)
		}
		seen[c.PackID] = struct{}{}
		packIDs = append(packIDs, c.PackID)
	}

	openings, err := packOpenings(ctx, tx, packIDs)
	if err != nil {
		return nil, err
	}

	staged := make([]model.StagedClosing, 0, len(params.Closings))
	for _, c := range params.Closings {
		row := tx.QueryRow(ctx,
			`SELECT `+packGameColumns+`
			 FROM lottery_packs p
			 JOIN lottery_games g ON g.id = p.game_id
			 WHERE p.id = $1 AND p.store_id = $2`,
			c.PackID, params.StoreID,
		)
		pg, err := scanPackWithGame(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.NewNotFound("pack %s not found", c.PackID)
			}
			return nil, fmt.Errorf("get pack: %w", err)
		}
		pack, game := pg.Pack, pg.Game

		switch pack.Status {
		case model.PackStatusActive:
			if pack.CurrentBinID == nil {
				return nil, model.NewValidation("pack %s is not assigned to a bin", pack.ID)
			}
			if *pack.CurrentBinID != c.BinID {
				return nil, model.NewValidation("pack %s is not in bin %s", pack.ID, c.BinID)
			}
		case model.PackStatusDepleted:
			if c.ClosingSerial != pack.SerialEnd {
				return nil, model.NewValidation("pack %s is sold out, closing serial must be %s", pack.ID, pack.SerialEnd)
			}
		default:
			return nil, model.NewValidation("pack %s is not active", pack.ID)
		}

		opening := openings[pack.ID]
		sale, err := variance.Compute(opening.serial, c.ClosingSerial, pack.SerialEnd, game.Price())
		if err != nil {
			return nil, err
		}

		sc := model.StagedClosing{
			PackID:            pack.ID,
			BinID:             c.BinID,
			ShiftID:           opening.shiftID,
			PackStatus:        pack.Status,
			OpeningSerial:     opening.serial,
			ClosingSerial:     c.ClosingSerial,
			EntryMethod:       c.EntryMethod,
			TicketsSold:       sale.TicketsSold,
			DollarAmountCents: variance.Cents(sale.Dollar),
			ExpectedQty:       c.POSSoldQty,
			Depletes:          pack.Status == model.PackStatusActive && c.ClosingSerial == pack.SerialEnd,
		}
		if c.POSSoldQty != nil {
			sc.VarianceCents = variance.DeltaCents(sale.TicketsSold, *c.POSSoldQty, game.Price())
		}

		staged = append(staged, sc)
	}

	return staged, nil
}

// CommitDayCloseParams содержит параметры второй фазы закрытия дня.
type CommitDayCloseParams struct {
	StoreID      string
	BusinessDate time.Time
	CommittedBy  string
}

// DayCloseResult содержит итог фиксации закрытия дня.
type DayCloseResult struct {
	Day           model.BusinessDay
	Closings      []model.ShiftClosing
	Variances     []model.Variance
	DepletedPacks []model.Pack
}

// CommitDayClose выполняет вторую фазу закрытия дня: повторно проверяет срок
// действия staging-записи и состояние каждой пачки, затем атомарно применяет
// закрытия и исчерпания, создаёт записи расхождений, закрывает все открытые
// смены магазина и переводит день в CLOSED. Изменившаяся после prepare пачка
// откатывает фиксацию целиком, staging-запись при этом сохраняется.
// Просроченная staging-запись удаляется, день возвращается в OPEN, и вызывающая
// сторона обязана выполнить prepare заново.
func (r *PostgresRepository) CommitDayClose(ctx context.Context, params CommitDayCloseParams) (*DayCloseResult, error) {
	var result DayCloseResult

	run := func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		day, err := getDayForUpdate(ctx, tx, params.StoreID, params.BusinessDate)
		if err != nil {
			return err
		}

		date := day.BusinessDate.Format("2006-01-02")
		switch day.Status {
		case model.DayStatusClosed:
			return model.NewIllegalTransition("business day %s is already closed", date)
		case model.DayStatusOpen:
			return model.NewIllegalTransition("no pending day close for %s", date)
		}

		staging, expired, err := loadStaging(ctx, tx, day.ID)
		if err != nil {
			return err
		}
		if staging == nil || expired {
			// Просроченная подготовка равносильна отмене: очистка фиксируется
			// даже при возврате ошибки вызывающей стороне.
			if _, err := tx.Exec(ctx, `DELETE FROM lottery_day_close_staging WHERE day_id = $1`, day.ID); err != nil {
				return fmt.Errorf("delete expired staging: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE business_days SET status = 'OPEN' WHERE id = $1 AND status = 'PENDING_CLOSE'`, day.ID,
			); err != nil {
				return fmt.Errorf("reopen business day: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit tx: %w", err)
			}
			if staging == nil {
				return model.NewIllegalTransition("no pending day close for %s", date)
			}
			return model.NewIllegalTransition("day close staging for %s expired, prepare it again", date)
		}

		result = DayCloseResult{}
		for _, c := range staging.Closings {
			pack, err := getPackForUpdate(ctx, tx, params.StoreID, c.PackID)
			if err != nil {
				return err
			}

			if pack.Status != c.PackStatus {
				return model.NewConflict("pack %s changed state after prepare", pack.ID)
			}
			if pack.Status == model.PackStatusActive && (pack.CurrentBinID == nil || *pack.CurrentBinID != c.BinID) {
				return model.NewConflict("pack %s changed bin after prepare", pack.ID)
			}

			if c.Depletes {
				row := tx.QueryRow(ctx,
					`UPDATE lottery_packs
					 SET status = 'DEPLETED', current_bin_id = NULL, depleted_by = $1,
					     depleted_shift_id = $2, depleted_at = now(), depletion_reason = $3, updated_at = now()
					 WHERE id = $4 AND store_id = $5 AND status = 'ACTIVE'
					 RETURNING `+packColumns,
					params.CommittedBy, c.ShiftID, string(model.DepletionReasonDayClose), c.PackID, params.StoreID,
				)
				depleted, err := scanPack(row)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return model.NewConflict("pack %s changed state after prepare", c.PackID)
					}
					return fmt.Errorf("deplete pack: %w", err)
				}

				if err := insertBinHistory(ctx, tx, c.PackID, c.BinID, model.BinActionRemoved); err != nil {
					return err
				}
				result.DepletedPacks = append(result.DepletedPacks, depleted)
			}

			closing := model.ShiftClosing{
				ID:                uuid.NewString(),
				DayID:             day.ID,
				ShiftID:           c.ShiftID,
				PackID:            c.PackID,
				ClosingSerial:     c.ClosingSerial,
				EntryMethod:       c.EntryMethod,
				TicketsSold:       c.TicketsSold,
				DollarAmountCents: c.DollarAmountCents,
			}
			err = tx.QueryRow(ctx,
				`INSERT INTO lottery_shift_closings
				     (id, day_id, shift_id, pack_id, closing_serial, entry_method, tickets_sold, dollar_amount_cents)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 RETURNING created_at`,
				closing.ID, closing.DayID, closing.ShiftID, closing.PackID, closing.ClosingSerial,
				string(closing.EntryMethod), closing.TicketsSold, closing.DollarAmountCents,
			).Scan(&closing.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert shift closing: %w", err)
			}
			result.Closings = append(result.Closings, closing)

			if c.ExpectedQty != nil && *c.ExpectedQty != c.TicketsSold {
				v := model.Variance{
					ID:                  uuid.NewString(),
					DayID:               day.ID,
					ShiftID:             c.ShiftID,
					PackID:              c.PackID,
					ExpectedQty:         *c.ExpectedQty,
					ActualQty:           c.TicketsSold,
					DollarVarianceCents: c.VarianceCents,
					Status:              model.VarianceStatusOpen,
				}
				err = tx.QueryRow(ctx,
					`INSERT INTO lottery_variances
					     (id, day_id, shift_id, pack_id, expected_qty, actual_qty, dollar_variance_cents, status)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, 'OPEN')
					 RETURNING created_at`,
					v.ID, v.DayID, v.ShiftID, v.PackID, v.ExpectedQty, v.ActualQty, v.DollarVarianceCents,
				).Scan(&v.CreatedAt)
				if err != nil {
					return fmt.Errorf("insert variance: %w", err)
				}
				result.Variances = append(result.Variances, v)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE shifts SET status = 'CLOSED', closed_at = now() WHERE store_id = $1 AND status = 'OPEN'`,
			params.StoreID,
		); err != nil {
			return fmt.Errorf("close shifts: %w", err)
		}

		row := tx.QueryRow(ctx,
			`UPDATE business_days
			 SET status = 'CLOSED', closed_at = now(), closed_by = $1
			 WHERE id = $2 AND status = 'PENDING_CLOSE'
			 RETURNING `+dayColumns,
			params.CommittedBy, day.ID,
		)
		closedDay, err := scanDay(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.NewConflict("business day %s was modified concurrently", date)
			}
			return fmt.Errorf("close business day: %w", err)
		}
		result.Day = closedDay

		if _, err := tx.Exec(ctx, `DELETE FROM lottery_day_close_staging WHERE id = $1`, staging.ID); err != nil {
			return fmt.Errorf("delete staging: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	}

	if err := r.withRetry(ctx, run); err != nil {
		return nil, err
	}

	return &result, nil
}

// CancelDayClose отменяет подготовленное закрытие дня: staging-запись удаляется,
// день возвращается в OPEN, пачки и смены не изменяются. Отмена дня без
// подготовленного закрытия считается безопасным no-op, признак отмены при этом
// false. День, которого ещё нет в хранилище, возвращается ошибкой NOT_FOUND,
// сервис трактует его как открытый.
func (r *PostgresRepository) CancelDayClose(ctx context.Context, storeID string, businessDate time.Time) (*model.BusinessDay, bool, error) {
	var (
		day       model.BusinessDay
		cancelled bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := getDayForUpdate(ctx, tx, storeID, businessDate)
		if err != nil {
			return err
		}

		date := current.BusinessDate.Format("2006-01-02")
		switch current.Status {
		case model.DayStatusClosed:
			return model.NewIllegalTransition("business day %s is already closed", date)
		case model.DayStatusOpen:
			day = *current
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM lottery_day_close_staging WHERE day_id = $1`, current.ID); err != nil {
			return fmt.Errorf("delete staging: %w", err)
		}

		row := tx.QueryRow(ctx,
			`UPDATE business_days SET status = 'OPEN' WHERE id = $1 AND status = 'PENDING_CLOSE' RETURNING `+dayColumns,
			current.ID,
		)
		day, err = scanDay(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.NewConflict("business day %s was modified concurrently", date)
			}
			return fmt.Errorf("reopen business day: %w", err)
		}

		cancelled = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &day, cancelled, nil
}

// ReleaseExpiredStagings удаляет просроченные staging-записи и возвращает их
// дни из PENDING_CLOSE в OPEN. Возвращает идентификаторы заново открытых дней.
func (r *PostgresRepository) ReleaseExpiredStagings(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`WITH expired AS (
		     DELETE FROM lottery_day_close_staging WHERE expires_at <= now() RETURNING day_id
		 )
		 UPDATE business_days d
		 SET status = 'OPEN'
		 FROM expired e
		 WHERE d.id = e.day_id AND d.status = 'PENDING_CLOSE'
		 RETURNING d.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("release expired stagings: %w", err)
	}
	defer rows.Close()

	var dayIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan day id: %w", err)
		}
		dayIDs = append(dayIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return dayIDs, nil
}

// BusinessDayStatus содержит бизнес-день вместе с его staging-записью, если она есть.
// Staging возвращается как есть, её срок действия оценивает вызывающая сторона.
type BusinessDayStatus struct {
	Day     model.BusinessDay
	Staging *model.DayCloseStaging
}

// GetBusinessDay возвращает состояние бизнес-дня.
// День, которого ещё нет в хранилище, считается открытым.
func (r *PostgresRepository) GetBusinessDay(ctx context.Context, storeID string, businessDate time.Time) (*BusinessDayStatus, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+dayColumns+` FROM business_days WHERE store_id = $1 AND business_date = $2`,
		storeID, businessDate,
	)

	day, err := scanDay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &BusinessDayStatus{
				Day: model.BusinessDay{StoreID: storeID, BusinessDate: businessDate, Status: model.DayStatusOpen},
			}, nil
		}
		return nil, fmt.Errorf("get business day: %w", err)
	}

	status := BusinessDayStatus{Day: day}

	staging, _, err := loadStaging(ctx, r.pool, day.ID)
	if err != nil {
		return nil, err
	}
	status.Staging = staging

	return &status, nil
}

// GetClosingData возвращает данные для ввода закрывающих серийных номеров:
// лотки с активными пачками и их стартовыми номерами, а также пачки,
// исчерпанные за указанный бизнес-день.
func (r *PostgresRepository) GetClosingData(ctx context.Context, storeID string, businessDate time.Time) (*model.ClosingData, error) {
	bins, err := r.ListBins(ctx, storeID)
	if err != nil {
		return nil, err
	}

	active := model.PackStatusActive
	activePacks, err := r.ListPacks(ctx, storeID, &active)
	if err != nil {
		return nil, err
	}

	byBin := make(map[string]model.PackWithGame, len(activePacks))
	packIDs := make([]string, 0, len(activePacks))
	for _, pg := range activePacks {
		if pg.Pack.CurrentBinID != nil {
			byBin[*pg.Pack.CurrentBinID] = pg
			packIDs = append(packIDs, pg.Pack.ID)
		}
	}

	openings, err := packOpenings(ctx, r.pool, packIDs)
	if err != nil {
		return nil, err
	}

	data := model.ClosingData{Bins: make([]model.BinClosingView, 0, len(bins))}
	for _, b := range bins {
		view := model.BinClosingView{Bin: b}
		if pg, ok := byBin[b.ID]; ok {
			pack, game := pg.Pack, pg.Game
			view.Pack = &pack
			view.Game = &game
			view.OpeningSerial = openings[pack.ID].serial
		}
		data.Bins = append(data.Bins, view)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+packGameColumns+`
		 FROM lottery_packs p
		 JOIN lottery_games g ON g.id = p.game_id
		 WHERE p.store_id = $1 AND p.status = 'DEPLETED' AND p.depleted_at::date = $2::date
		 ORDER BY p.depleted_at, p.id`,
		storeID, businessDate,
	)
	if err != nil {
		return nil, fmt.Errorf("select sold packs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		pg, err := scanPackWithGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sold pack: %w", err)
		}
		data.SoldPacks = append(data.SoldPacks, pg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &data, nil
}

const varianceColumns = `v.id, v.day_id, v.shift_id, v.pack_id, v.expected_qty, v.actual_qty,
	v.dollar_variance_cents, v.status, v.approved_by, v.approval_notes, v.created_at, v.approved_at`

func scanVariance(row pgx.Row) (model.Variance, error) {
	var (
		v      model.Variance
		status string
	)
	err := row.Scan(&v.ID, &v.DayID, &v.ShiftID, &v.PackID, &v.ExpectedQty, &v.ActualQty,
		&v.DollarVarianceCents, &status, &v.ApprovedBy, &v.ApprovalNotes, &v.CreatedAt, &v.ApprovedAt)
	if err != nil {
		return model.Variance{}, err
	}
	v.Status = model.VarianceStatus(status)
	return v, nil
}

// ListVariances возвращает расхождения магазина, опционально по статусу.
func (r *PostgresRepository) ListVariances(ctx context.Context, storeID string, status *model.VarianceStatus) ([]model.Variance, error) {
	query := `SELECT ` + varianceColumns + `
		 FROM lottery_variances v
		 JOIN business_days d ON d.id = v.day_id
		 WHERE d.store_id = $1`
	args := []any{storeID}

	if status != nil {
		query += ` AND v.status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY v.created_at DESC, v.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select variances: %w", err)
	}
	defer rows.Close()

	var variances []model.Variance
	for rows.Next() {
		v, err := scanVariance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variance: %w", err)
		}
		variances = append(variances, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return variances, nil
}

// ApproveVariance закрывает расхождение одобрением. Одобрить можно только
// открытое расхождение своего магазина, повторное одобрение отклоняется.
func (r *PostgresRepository) ApproveVariance(ctx context.Context, storeID, varianceID, approvedBy, notes string) (*model.Variance, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE lottery_variances v
		 SET status = 'APPROVED', approved_by = $1, approval_notes = $2, approved_at = now()
		 FROM business_days d
		 WHERE v.id = $3 AND d.id = v.day_id AND d.store_id = $4 AND v.status = 'OPEN'
		 RETURNING `+varianceColumns,
		approvedBy, notes, varianceID, storeID,
	)

	v, err := scanVariance(row)
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("approve variance: %w", err)
	}

	var current string
	err = r.pool.QueryRow(ctx,
		`SELECT v.status FROM lottery_variances v
		 JOIN business_days d ON d.id = v.day_id
		 WHERE v.id = $1 AND d.store_id = $2`,
		varianceID, storeID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("variance %s not found", varianceID)
		}
		return nil, fmt.Errorf("get variance: %w", err)
	}

	return nil, model.NewIllegalTransition("variance %s is already %s", varianceID, current)
}
