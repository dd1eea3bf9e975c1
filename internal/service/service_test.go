package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/scancheck"
)

type stubRepo struct {
	games          map[string]model.Game
	gamesErr       error
	requestedCodes []string

	createGameInput model.Game
	createGameErr   error

	createBinInput model.Bin

	insertedPacks        []model.Pack
	insertErr            error
	duplicatePackNumbers map[string]bool

	activateResult *repository.ActivationResult
	activateErr    error
	activateParams repository.ActivatePackParams

	depleteResult *model.Pack
	depleteErr    error
	depleteParams repository.DepletePackParams

	returnResult *model.Pack
	returnErr    error
	returnParams repository.ReturnPackParams

	moveResult *repository.ActivationResult
	moveErr    error
	moveParams repository.MovePackParams

	openShiftResult *repository.ShiftWithOpenings
	openShiftErr    error

	openShift     *model.Shift
	shiftOpenings []model.ShiftOpening

	prepareResult *model.DayCloseStaging
	prepareErr    error
	prepareParams repository.PrepareDayCloseParams

	commitResult *repository.DayCloseResult
	commitErr    error
	commitParams repository.CommitDayCloseParams
	commitCalls  int

	cancelDay       *model.BusinessDay
	cancelCancelled bool
	cancelErr       error
	cancelDate      time.Time

	dayStatus *repository.BusinessDayStatus

	releaseCalls int

	approveResult *model.Variance
	approveErr    error
	approveNotes  string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateGame(ctx context.Context, game model.Game) (*model.Game, error) {
	s.createGameInput = game
	if s.createGameErr != nil {
		return nil, s.createGameErr
	}
	game.ID = "game-created"
	return &game, nil
}

func (s *stubRepo) ListGames(ctx context.Context, storeID string) ([]model.Game, error) {
	return nil, nil
}

func (s *stubRepo) GamesByCodes(ctx context.Context, storeID string, codes []string) (map[string]model.Game, error) {
	s.requestedCodes = codes
	if s.gamesErr != nil {
		return nil, s.gamesErr
	}
	return s.games, nil
}

func (s *stubRepo) CreateBin(ctx context.Context, bin model.Bin) (*model.Bin, error) {
	s.createBinInput = bin
	bin.ID = "bin-created"
	return &bin, nil
}

func (s *stubRepo) ListBins(ctx context.Context, storeID string) ([]model.Bin, error) {
	return nil, nil
}

func (s *stubRepo) GetPack(ctx context.Context, storeID, packID string) (*model.PackWithGame, error) {
	return nil, nil
}

func (s *stubRepo) ListPacks(ctx context.Context, storeID string, status *model.PackStatus) ([]model.PackWithGame, error) {
	return nil, nil
}

func (s *stubRepo) InsertPacks(ctx context.Context, packs []model.Pack) ([]repository.PackInsertResult, error) {
	s.insertedPacks = packs
	if s.insertErr != nil {
		return nil, s.insertErr
	}

	results := make([]repository.PackInsertResult, len(packs))
	for i, p := range packs {
		p.ID = fmt.Sprintf("pack-%d", i+1)
		p.Status = model.PackStatusReceived
		results[i] = repository.PackInsertResult{Pack: p, Duplicate: s.duplicatePackNumbers[p.PackNumber]}
	}
	return results, nil
}

func (s *stubRepo) ActivatePack(ctx context.Context, params repository.ActivatePackParams) (*repository.ActivationResult, error) {
	s.activateParams = params
	return s.activateResult, s.activateErr
}

func (s *stubRepo) DepletePack(ctx context.Context, params repository.DepletePackParams) (*model.Pack, error) {
	s.depleteParams = params
	return s.depleteResult, s.depleteErr
}

func (s *stubRepo) ReturnPack(ctx context.Context, params repository.ReturnPackParams) (*model.Pack, error) {
	s.returnParams = params
	return s.returnResult, s.returnErr
}

func (s *stubRepo) MovePack(ctx context.Context, params repository.MovePackParams) (*repository.ActivationResult, error) {
	s.moveParams = params
	return s.moveResult, s.moveErr
}

func (s *stubRepo) PackBinHistory(ctx context.Context, storeID, packID string) ([]model.BinHistoryEntry, error) {
	return nil, nil
}

func (s *stubRepo) OpenShift(ctx context.Context, storeID, cashierID string) (*repository.ShiftWithOpenings, error) {
	return s.openShiftResult, s.openShiftErr
}

func (s *stubRepo) GetOpenShift(ctx context.Context, storeID, cashierID string) (*model.Shift, error) {
	if s.openShift == nil {
		return nil, model.NewNotFound("cashier %s has no open shift", cashierID)
	}
	return s.openShift, nil
}

func (s *stubRepo) ShiftOpenings(ctx context.Context, shiftID string) ([]model.ShiftOpening, error) {
	return s.shiftOpenings, nil
}

func (s *stubRepo) PrepareDayClose(ctx context.Context, params repository.PrepareDayCloseParams) (*model.DayCloseStaging, error) {
	s.prepareParams = params
	return s.prepareResult, s.prepareErr
}

func (s *stubRepo) CommitDayClose(ctx context.Context, params repository.CommitDayCloseParams) (*repository.DayCloseResult, error) {
	s.commitCalls++
	s.commitParams = params
	return s.commitResult, s.commitErr
}

func (s *stubRepo) CancelDayClose(ctx context.Context, storeID string, businessDate time.Time) (*model.BusinessDay, bool, error) {
	s.cancelDate = businessDate
	return s.cancelDay, s.cancelCancelled, s.cancelErr
}

func (s *stubRepo) ReleaseExpiredStagings(ctx context.Context) ([]string, error) {
	s.releaseCalls++
	return nil, nil
}

func (s *stubRepo) GetBusinessDay(ctx context.Context, storeID string, businessDate time.Time) (*repository.BusinessDayStatus, error) {
	if s.dayStatus != nil {
		return s.dayStatus, nil
	}
	return &repository.BusinessDayStatus{}, nil
}

func (s *stubRepo) GetClosingData(ctx context.Context, storeID string, businessDate time.Time) (*model.ClosingData, error) {
	return &model.ClosingData{}, nil
}

func (s *stubRepo) ListVariances(ctx context.Context, storeID string, status *model.VarianceStatus) ([]model.Variance, error) {
	return nil, nil
}

func (s *stubRepo) ApproveVariance(ctx context.Context, storeID, varianceID, approvedBy, notes string) (*model.Variance, error) {
	s.approveNotes = notes
	return s.approveResult, s.approveErr
}

type stubAudit struct {
	entries []model.AuditEntry
}

func (a *stubAudit) Record(_ context.Context, entry model.AuditEntry) {
	a.entries = append(a.entries, entry)
}

func (a *stubAudit) last(t *testing.T) model.AuditEntry {
	t.Helper()
	if len(a.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return a.entries[len(a.entries)-1]
}

type stubScan struct {
	result *scancheck.Result
	err    error
	calls  int
}

func (s *stubScan) Verify(ctx context.Context, serial string, scanDuration time.Duration) (*scancheck.Result, error) {
	s.calls++
	return s.result, s.err
}

var testActor = Actor{UserID: "user-1", StoreID: "store-1"}

func newTestService(repo *stubRepo) (*Service, *stubAudit) {
	audit := &stubAudit{}
	return NewService(repo, audit, nil, zap.NewNop(), 0), audit
}

func TestCreateGame_Validation(t *testing.T) {
	svc, _ := newTestService(&stubRepo{})

	tests := []struct {
		name   string
		params CreateGameParams
	}{
		{"short code", CreateGameParams{Code: "42", Name: "x", Price: decimal.NewFromInt(5), TicketsPerPack: 100}},
		{"empty name", CreateGameParams{Code: "0042", Price: decimal.NewFromInt(5), TicketsPerPack: 100}},
		{"zero price", CreateGameParams{Code: "0042", Name: "x", Price: decimal.Zero, TicketsPerPack: 100}},
		{"zero tickets", CreateGameParams{Code: "0042", Name: "x", Price: decimal.NewFromInt(5), TicketsPerPack: 0}},
		{"too many tickets", CreateGameParams{Code: "0042", Name: "x", Price: decimal.NewFromInt(5), TicketsPerPack: 1001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateGame(context.Background(), testActor, tt.params)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if model.CodeOf(err) != model.CodeValidation {
				t.Fatalf("code = %s, want %s", model.CodeOf(err), model.CodeValidation)
			}
		})
	}
}

func TestCreateGame_StoreScopedAndCents(t *testing.T) {
	repo := &stubRepo{}
	svc, audit := newTestService(repo)

	price, _ := decimal.NewFromString("2.50")
	game, err := svc.CreateGame(context.Background(), testActor, CreateGameParams{
		Code:           "0042",
		Name:           "Lucky 7s",
		Price:          price,
		TicketsPerPack: 150,
	})
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}

	if repo.createGameInput.PriceCents != 250 {
		t.Fatalf("price cents = %d, want 250", repo.createGameInput.PriceCents)
	}
	if repo.createGameInput.StoreID == nil || *repo.createGameInput.StoreID != testActor.StoreID {
		t.Fatalf("store id = %v, want %s", repo.createGameInput.StoreID, testActor.StoreID)
	}

	entry := audit.last(t)
	if entry.Action != model.AuditGameCreated {
		t.Fatalf("audit action = %s, want %s", entry.Action, model.AuditGameCreated)
	}
	if entry.TargetID != game.ID {
		t.Fatalf("audit target = %s, want %s", entry.TargetID, game.ID)
	}
}

func TestCreateGame_Global(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := newTestService(repo)

	_, err := svc.CreateGame(context.Background(), testActor, CreateGameParams{
		Code:           "0100",
		Name:           "Statewide",
		Price:          decimal.NewFromInt(10),
		TicketsPerPack: 50,
		Global:         true,
	})
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}

	if repo.createGameInput.StoreID != nil {
		t.Fatalf("store id = %v, want nil for global game", *repo.createGameInput.StoreID)
	}
}

func TestCreateBin(t *testing.T) {
	repo := &stubRepo{}
	svc, audit := newTestService(repo)

	if _, err := svc.CreateBin(context.Background(), testActor, CreateBinParams{DisplayOrder: 3}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := svc.CreateBin(context.Background(), testActor, CreateBinParams{Name: "Top", DisplayOrder: -1}); err == nil {
		t.Fatal("expected error for negative display order")
	}

	bin, err := svc.CreateBin(context.Background(), testActor, CreateBinParams{Name: "Top row", DisplayOrder: 0})
	if err != nil {
		t.Fatalf("CreateBin error: %v", err)
	}
	if !repo.createBinInput.IsActive {
		t.Fatal("created bin must be active")
	}
	if bin.Number() != 1 {
		t.Fatalf("bin number = %d, want 1", bin.Number())
	}

	if audit.last(t).Action != model.AuditBinCreated {
		t.Fatalf("audit action = %s, want %s", audit.last(t).Action, model.AuditBinCreated)
	}
}
