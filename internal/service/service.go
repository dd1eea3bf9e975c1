// Package service реализует бизнес-логику движка лотерейных пачек.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/scancheck"
	"github.com/apetrenko/lottery-backoffice/internal/serial"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateGame(ctx context.Context, game model.Game) (*model.Game, error)
	ListGames(ctx context.Context, storeID string) ([]model.Game, error)
	GamesByCodes(ctx context.Context, storeID string, codes []string) (map[string]model.Game, error)
	CreateBin(ctx context.Context, bin model.Bin) (*model.Bin, error)
	ListBins(ctx context.Context, storeID string) ([]model.Bin, error)

	GetPack(ctx context.Context, storeID, packID string) (*model.PackWithGame, error)
	ListPacks(ctx context.Context, storeID string, status *model.PackStatus) ([]model.PackWithGame, error)
	InsertPacks(ctx context.Context, packs []model.Pack) ([]repository.PackInsertResult, error)
	ActivatePack(ctx context.Context, params repository.ActivatePackParams) (*repository.ActivationResult, error)
	DepletePack(ctx context.Context, params repository.DepletePackParams) (*model.Pack, error)
	ReturnPack(ctx context.Context, params repository.ReturnPackParams) (*model.Pack, error)
	MovePack(ctx context.Context, params repository.MovePackParams) (*repository.ActivationResult, error)
	PackBinHistory(ctx context.Context, storeID, packID string) ([]model.BinHistoryEntry, error)

	OpenShift(ctx context.Context, storeID, cashierID string) (*repository.ShiftWithOpenings, error)
	GetOpenShift(ctx context.Context, storeID, cashierID string) (*model.Shift, error)
	ShiftOpenings(ctx context.Context, shiftID string) ([]model.ShiftOpening, error)

	PrepareDayClose(ctx context.Context, params repository.PrepareDayCloseParams) (*model.DayCloseStaging, error)
	CommitDayClose(ctx context.Context, params repository.CommitDayCloseParams) (*repository.DayCloseResult, error)
	CancelDayClose(ctx context.Context, storeID string, businessDate time.Time) (*model.BusinessDay, bool, error)
	ReleaseExpiredStagings(ctx context.Context) ([]string, error)
	GetBusinessDay(ctx context.Context, storeID string, businessDate time.Time) (*repository.BusinessDayStatus, error)
	GetClosingData(ctx context.Context, storeID string, businessDate time.Time) (*model.ClosingData, error)
	ListVariances(ctx context.Context, storeID string, status *model.VarianceStatus) ([]model.Variance, error)
	ApproveVariance(ctx context.Context, storeID, varianceID, approvedBy, notes string) (*model.Variance, error)
}

// AuditRecorder описывает односторонний канал записи журнала аудита.
// Сервис пишет по одному событию на каждую мутирующую операцию и не читает журнал.
type AuditRecorder interface {
	Record(ctx context.Context, entry model.AuditEntry)
}

// ScanChecker проверяет отсканированные штрих-коды во внешнем сервисе.
type ScanChecker interface {
	Verify(ctx context.Context, s string, scanDuration time.Duration) (*scancheck.Result, error)
}

// Actor представляет инициатора операции: пользователя и магазин из шлюзового токена.
type Actor struct {
	UserID  string
	StoreID string
}

// Ограничения первой фазы закрытия дня на срок действия staging-записи.
const (
	MinStagingTTL     = 5 * time.Minute
	MaxStagingTTL     = 120 * time.Minute
	DefaultStagingTTL = 60 * time.Minute
)

// Service содержит бизнес-логику движка лотерейных пачек.
type Service struct {
	repo       Repository
	audit      AuditRecorder
	scan       ScanChecker
	logger     *zap.Logger
	stagingTTL time.Duration
}

// NewService создаёт сервис движка. scan допускает nil: проверка штрих-кодов
// тогда отключена. stagingTTL вне диапазона 5..120 минут заменяется умолчанием.
func NewService(repo Repository, audit AuditRecorder, scan ScanChecker, logger *zap.Logger, stagingTTL time.Duration) *Service {
	if stagingTTL < MinStagingTTL || stagingTTL > MaxStagingTTL {
		stagingTTL = DefaultStagingTTL
	}

	return &Service{
		repo:       repo,
		audit:      audit,
		scan:       scan,
		logger:     logger,
		stagingTTL: stagingTTL,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// dateOnly нормализует момент времени к календарной дате в UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateGameParams содержит параметры создания игры каталога.
type CreateGameParams struct {
	Code           string
	Name           string
	Price          decimal.Decimal
	TicketsPerPack int
	Global         bool
}

// CreateGame создаёт игру каталога. Игра магазина с тем же кодом, что у
// глобальной, перекрывает её при поиске по коду.
func (s *Service) CreateGame(ctx context.Context, actor Actor, params CreateGameParams) (*model.Game, error) {
	if len(params.Code) != 4 {
		return nil, model.NewValidation("game code must be 4 characters")
	}
	if params.Name == "" {
		return nil, model.NewValidation("game name is required")
	}
	if !params.Price.IsPositive() {
		return nil, model.NewValidation("game price must be positive")
	}
	if _, err := serial.EndFor(params.TicketsPerPack); err != nil {
		return nil, err
	}

	game := model.Game{
		Code:           params.Code,
		Name:           params.Name,
		PriceCents:     params.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		TicketsPerPack: params.TicketsPerPack,
	}
	if !params.Global {
		storeID := actor.StoreID
		game.StoreID = &storeID
	}

	created, err := s.repo.CreateGame(ctx, game)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditGameCreated,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: created.ID,
		Values: map[string]any{
			"code":             created.Code,
			"name":             created.Name,
			"price_cents":      created.PriceCents,
			"tickets_per_pack": created.TicketsPerPack,
			"global":           created.StoreID == nil,
		},
	})

	return created, nil
}

// ListGames возвращает действующий каталог игр магазина.
func (s *Service) ListGames(ctx context.Context, actor Actor) ([]model.Game, error) {
	return s.repo.ListGames(ctx, actor.StoreID)
}

// CreateBinParams содержит параметры создания лотка витрины.
type CreateBinParams struct {
	Name         string
	DisplayOrder int
}

// CreateBin создаёт лоток витрины магазина.
func (s *Service) CreateBin(ctx context.Context, actor Actor, params CreateBinParams) (*model.Bin, error) {
	if params.Name == "" {
		return nil, model.NewValidation("bin name is required")
	}
	if params.DisplayOrder < 0 {
		return nil, model.NewValidation("bin display order must not be negative")
	}

	created, err := s.repo.CreateBin(ctx, model.Bin{
		StoreID:      actor.StoreID,
		Name:         params.Name,
		DisplayOrder: params.DisplayOrder,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditBinCreated,
		StoreID:  actor.StoreID,
		ActorID:  actor.UserID,
		TargetID: created.ID,
		Values: map[string]any{
			"name":       created.Name,
			"bin_number": created.Number(),
		},
	})

	return created, nil
}

// ListBins возвращает лотки магазина в порядке отображения.
func (s *Service) ListBins(ctx context.Context, actor Actor) ([]model.Bin, error) {
	return s.repo.ListBins(ctx, actor.StoreID)
}
