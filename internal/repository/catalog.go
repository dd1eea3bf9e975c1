package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

const gameColumns = `id, store_id, code, name, price_cents, tickets_per_pack, created_at`

func scanGame(row pgx.Row) (model.Game, error) {
	var g model.Game
	err := row.Scan(&g.ID, &g.StoreID, &g.Code, &g.Name, &g.PriceCents, &g.TicketsPerPack, &g.CreatedAt)
	return g, err
}

// CreateGame сохраняет новую игру каталога. Игра без StoreID глобальная,
// код уникален отдельно среди глобальных игр и среди игр каждого магазина.
func (r *PostgresRepository) CreateGame(ctx context.Context, game model.Game) (*model.Game, error) {
	game.ID = uuid.NewString()

	err := r.pool.QueryRow(ctx,
		`INSERT INTO lottery_games (id, store_id, code, name, price_cents, tickets_per_pack)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		game.ID, game.StoreID, game.Code, game.Name, game.PriceCents, game.TicketsPerPack,
	).Scan(&game.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflict("game with code %s already exists", game.Code)
		}
		if isForeignKeyViolation(err) {
			return nil, model.NewValidation("store does not exist")
		}
		return nil, fmt.Errorf("insert game: %w", err)
	}

	return &game, nil
}

// ListGames возвращает действующий каталог магазина: для каждого кода берётся
// игра магазина, а глобальная игра с тем же кодом перекрывается.
func (r *PostgresRepository) ListGames(ctx context.Context, storeID string) ([]model.Game, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (code) `+gameColumns+`
		 FROM lottery_games
		 WHERE store_id = $1 OR store_id IS NULL
		 ORDER BY code, (store_id IS NULL)`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return games, nil
}

// GamesByCodes возвращает игры магазина в карте с ключом по коду игры.
// Коды без игры в карту не попадают: вызывающая сторона сама решает, что с ними делать.
func (r *PostgresRepository) GamesByCodes(ctx context.Context, storeID string, codes []string) (map[string]model.Game, error) {
	if len(codes) == 0 {
		return map[string]model.Game{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+gameColumns+`
		 FROM lottery_games
		 WHERE code = ANY($2) AND (store_id = $1 OR store_id IS NULL)`,
		storeID, codes,
	)
	if err != nil {
		return nil, fmt.Errorf("select games by codes: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return preferStoreGames(games), nil
}

// preferStoreGames складывает игры в карту по коду. Игра магазина затеняет
// глобальную игру с тем же кодом независимо от порядка строк.
func preferStoreGames(games []model.Game) map[string]model.Game {
	byCode := make(map[string]model.Game, len(games))
	for _, g := range games {
		existing, ok := byCode[g.Code]
		if !ok || (existing.StoreID == nil && g.StoreID != nil) {
			byCode[g.Code] = g
		}
	}
	return byCode
}

// CreateBin сохраняет новый лоток витрины магазина.
func (r *PostgresRepository) CreateBin(ctx context.Context, bin model.Bin) (*model.Bin, error) {
	bin.ID = uuid.NewString()

	err := r.pool.QueryRow(ctx,
		`INSERT INTO lottery_bins (id, store_id, name, display_order, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		bin.ID, bin.StoreID, bin.Name, bin.DisplayOrder, bin.IsActive,
	).Scan(&bin.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflict("bin with display order %d already exists", bin.DisplayOrder)
		}
		if isForeignKeyViolation(err) {
			return nil, model.NewValidation("store does not exist")
		}
		return nil, fmt.Errorf("insert bin: %w", err)
	}

	return &bin, nil
}

// ListBins возвращает лотки магазина в порядке отображения на витрине.
func (r *PostgresRepository) ListBins(ctx context.Context, storeID string) ([]model.Bin, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, store_id, name, display_order, is_active, created_at
		 FROM lottery_bins
		 WHERE store_id = $1
		 ORDER BY display_order`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bins: %w", err)
	}
	defer rows.Close()

	var bins []model.Bin
	for rows.Next() {
		var b model.Bin
		if err := rows.Scan(&b.ID, &b.StoreID, &b.Name, &b.DisplayOrder, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bin: %w", err)
		}
		bins = append(bins, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return bins, nil
}

// getBin возвращает лоток магазина; лоток чужого магазина неотличим от отсутствующего.
func getBin(ctx context.Context, q querier, storeID, binID string) (*model.Bin, error) {
	row := q.QueryRow(ctx,
		`SELECT id, store_id, name, display_order, is_active, created_at
		 FROM lottery_bins
		 WHERE id = $1 AND store_id = $2`,
		binID, storeID,
	)

	var b model.Bin
	err := row.Scan(&b.ID, &b.StoreID, &b.Name, &b.DisplayOrder, &b.IsActive, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("bin %s not found", binID)
		}
		return nil, fmt.Errorf("get bin: %w", err)
	}

	return &b, nil
}
