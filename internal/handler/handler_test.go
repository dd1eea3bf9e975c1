package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/middleware"
	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/service"
)

type stubService struct {
	createGameResp *model.Game
	createGameErr  error

	createBinResp *model.Bin

	receiveResp *service.ReceiveResult
	receiveErr  error

	getPackResp *model.PackWithGame
	getPackErr  error
	getPackID   string

	listPacksResp   []model.PackWithGame
	listPacksErr    error
	listPacksStatus *model.PackStatus

	activateResp *repository.ActivationResult
	activateErr  error

	depleteResp *model.Pack
	returnResp  *model.Pack
	moveResp    *repository.ActivationResult

	historyResp []model.BinHistoryEntry

	shiftResp *repository.ShiftWithOpenings
	shiftErr  error

	stagingResp *model.DayCloseStaging
	prepareErr  error

	commitResp *repository.DayCloseResult
	commitErr  error

	cancelResp *model.BusinessDay

	dayResp *repository.BusinessDayStatus

	closingDataResp *model.ClosingData

	variancesResp []model.Variance

	approveResp *model.Variance
	approveErr  error
	approveID   string
}

func (s *stubService) CreateGame(ctx context.Context, actor service.Actor, params service.CreateGameParams) (*model.Game, error) {
	return s.createGameResp, s.createGameErr
}

func (s *stubService) ListGames(ctx context.Context, actor service.Actor) ([]model.Game, error) {
	return nil, nil
}

func (s *stubService) CreateBin(ctx context.Context, actor service.Actor, params service.CreateBinParams) (*model.Bin, error) {
	return s.createBinResp, nil
}

func (s *stubService) ListBins(ctx context.Context, actor service.Actor) ([]model.Bin, error) {
	return nil, nil
}

func (s *stubService) ReceivePacks(ctx context.Context, actor service.Actor, params service.ReceivePacksParams) (*service.ReceiveResult, error) {
	return s.receiveResp, s.receiveErr
}

func (s *stubService) GetPack(ctx context.Context, actor service.Actor, packID string) (*model.PackWithGame, error) {
	s.getPackID = packID
	return s.getPackResp, s.getPackErr
}

func (s *stubService) ListPacks(ctx context.Context, actor service.Actor, status *model.PackStatus) ([]model.PackWithGame, error) {
	s.listPacksStatus = status
	return s.listPacksResp, s.listPacksErr
}

func (s *stubService) ActivatePack(ctx context.Context, actor service.Actor, params service.ActivatePackParams) (*repository.ActivationResult, error) {
	return s.activateResp, s.activateErr
}

func (s *stubService) DepletePack(ctx context.Context, actor service.Actor, params service.DepletePackParams) (*model.Pack, error) {
	return s.depleteResp, nil
}

func (s *stubService) ReturnPack(ctx context.Context, actor service.Actor, params service.ReturnPackParams) (*model.Pack, error) {
	return s.returnResp, nil
}

func (s *stubService) MovePack(ctx context.Context, actor service.Actor, params service.MovePackParams) (*repository.ActivationResult, error) {
	return s.moveResp, nil
}

func (s *stubService) PackBinHistory(ctx context.Context, actor service.Actor, packID string) ([]model.BinHistoryEntry, error) {
	return s.historyResp, nil
}

func (s *stubService) OpenShift(ctx context.Context, actor service.Actor) (*repository.ShiftWithOpenings, error) {
	return s.shiftResp, s.shiftErr
}

func (s *stubService) GetOpenShift(ctx context.Context, actor service.Actor) (*repository.ShiftWithOpenings, error) {
	return s.shiftResp, s.shiftErr
}

func (s *stubService) PrepareDayClose(ctx context.Context, actor service.Actor, params service.PrepareDayCloseParams) (*model.DayCloseStaging, error) {
	return s.stagingResp, s.prepareErr
}

func (s *stubService) CommitDayClose(ctx context.Context, actor service.Actor, businessDate time.Time) (*repository.DayCloseResult, error) {
	return s.commitResp, s.commitErr
}

func (s *stubService) CancelDayClose(ctx context.Context, actor service.Actor, businessDate time.Time) (*model.BusinessDay, error) {
	return s.cancelResp, nil
}

func (s *stubService) GetBusinessDay(ctx context.Context, actor service.Actor, businessDate time.Time) (*repository.BusinessDayStatus, error) {
	return s.dayResp, nil
}

func (s *stubService) GetClosingData(ctx context.Context, actor service.Actor, businessDate time.Time) (*model.ClosingData, error) {
	return s.closingDataResp, nil
}

func (s *stubService) ListVariances(ctx context.Context, actor service.Actor, status *model.VarianceStatus) ([]model.Variance, error) {
	return s.variancesResp, nil
}

func (s *stubService) ApproveVariance(ctx context.Context, actor service.Actor, varianceID, notes string) (*model.Variance, error) {
	s.approveID = varianceID
	return s.approveResp, s.approveErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"))
}

func authedRequest(h *Handler, method, target string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set(middleware.AuthHeader, h.authMiddleware.Token(middleware.Actor{UserID: "user-1", StoreID: "store-1"}))
	return r
}

func decodeError(t *testing.T, res *http.Response) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestReceivePacks_OK(t *testing.T) {
	svc := &stubService{
		receiveResp: &service.ReceiveResult{
			Created: []model.PackWithGame{
				{
					Pack: model.Pack{ID: "pack-1", PackNumber: "0000001", Status: model.PackStatusReceived},
					Game: model.Game{ID: "game-1", Code: "0042"},
				},
			},
			Duplicates: []string{"004200000020001234567890"},
			GamesNotFound: []service.GameNotFound{
				{Serial: "777700000010001234567890", GameCode: "7777"},
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(receiveRequest{Serials: []string{"004200000010001234567890"}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/packs/receive", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp receiveResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Created) != 1 || resp.Created[0].ID != "pack-1" {
		t.Fatalf("created = %+v, want pack-1", resp.Created)
	}
	if len(resp.Duplicates) != 1 {
		t.Fatalf("duplicates = %v, want one entry", resp.Duplicates)
	}
	if len(resp.GamesNotFound) != 1 {
		t.Fatalf("games not found = %+v, want one entry", resp.GamesNotFound)
	}
	if nf := resp.GamesNotFound[0]; nf.Serial != "777700000010001234567890" || nf.GameCode != "7777" {
		t.Fatalf("game not found = %+v, want serial with game code 7777", nf)
	}
}

func TestReceivePacks_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(receiveRequest{Serials: []string{"004200000010001234567890"}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/lottery/packs/receive", bytes.NewReader(body)))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestActivatePack_ConflictMapped(t *testing.T) {
	svc := &stubService{
		activateErr: model.NewConflict("bin 3 is already occupied"),
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(activateRequest{BinID: "bin-3"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/packs/pack-1/activate", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	e := decodeError(t, res)
	if e.Code != string(model.CodeConflict) {
		t.Fatalf("code = %s, want %s", e.Code, model.CodeConflict)
	}
	if e.Message != "bin 3 is already occupied" {
		t.Fatalf("message = %q, want occupancy conflict", e.Message)
	}
}

func TestGetPack_RoutesIDAndMapsNotFound(t *testing.T) {
	svc := &stubService{
		getPackErr: model.NewNotFound("pack %s not found", "pack-9"),
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodGet, "/api/lottery/packs/pack-9", nil))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	if svc.getPackID != "pack-9" {
		t.Fatalf("pack id = %s, want pack-9 from url", svc.getPackID)
	}
}

func TestListPacks_StatusFilter(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodGet, "/api/lottery/packs?status=ACTIVE", nil))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.listPacksStatus == nil || *svc.listPacksStatus != model.PackStatusActive {
		t.Fatalf("status filter = %v, want ACTIVE", svc.listPacksStatus)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodGet, "/api/lottery/packs?status=BROKEN", nil))

	res = rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateGame_Created(t *testing.T) {
	svc := &stubService{
		createGameResp: &model.Game{ID: "game-1", Code: "0042", Name: "Lucky 7s", PriceCents: 250, TicketsPerPack: 150},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"code":"0042","name":"Lucky 7s","price":"2.50","tickets_per_pack":150}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/games", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp gameResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PriceCents != 250 {
		t.Fatalf("price cents = %d, want 250", resp.PriceCents)
	}
}

func TestPrepareDayClose_BadDate(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body := []byte(`{"business_date":"03.11.2025","closings":[]}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/day/prepare", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}

	e := decodeError(t, res)
	if e.Code != string(model.CodeValidation) {
		t.Fatalf("code = %s, want %s", e.Code, model.CodeValidation)
	}
}

func TestCommitDayClose_OK(t *testing.T) {
	svc := &stubService{
		commitResp: &repository.DayCloseResult{
			Day: model.BusinessDay{
				ID:           "day-1",
				BusinessDate: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
				Status:       model.DayStatusClosed,
			},
			Closings:  []model.ShiftClosing{{PackID: "pack-1", ClosingSerial: "026", TicketsSold: 26, DollarAmountCents: 13000}},
			Variances: []model.Variance{{ID: "var-1", PackID: "pack-1", ExpectedQty: 30, ActualQty: 26, Status: model.VarianceStatusOpen}},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"business_date":"2025-11-03"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/day/commit", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp dayCloseResultResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Day.Status != string(model.DayStatusClosed) {
		t.Fatalf("day status = %s, want CLOSED", resp.Day.Status)
	}
	if len(resp.Closings) != 1 || resp.Closings[0].DollarAmountCents != 13000 {
		t.Fatalf("closings = %+v, want one closing for 13000 cents", resp.Closings)
	}
	if len(resp.Variances) != 1 {
		t.Fatalf("variances = %+v, want one", resp.Variances)
	}
}

func TestCommitDayClose_ExpiredStagingMapped(t *testing.T) {
	svc := &stubService{
		commitErr: model.NewIllegalTransition("day close staging for 2025-11-03 expired, prepare it again"),
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"business_date":"2025-11-03"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/day/commit", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	e := decodeError(t, res)
	if e.Code != string(model.CodeIllegalTransition) {
		t.Fatalf("code = %s, want %s", e.Code, model.CodeIllegalTransition)
	}
}

func TestApproveVariance_RoutesID(t *testing.T) {
	svc := &stubService{
		approveResp: &model.Variance{ID: "var-7", Status: model.VarianceStatusApproved, ApprovalNotes: "recount confirmed"},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"notes":"recount confirmed"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodPost, "/api/lottery/variances/var-7/approve", body))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.approveID != "var-7" {
		t.Fatalf("variance id = %s, want var-7 from url", svc.approveID)
	}
}

func TestInternalErrorHidden(t *testing.T) {
	svc := &stubService{
		listPacksErr: context.DeadlineExceeded,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(h, http.MethodGet, "/api/lottery/packs", nil))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}

	e := decodeError(t, res)
	if e.Code != string(model.CodeInternal) {
		t.Fatalf("code = %s, want %s", e.Code, model.CodeInternal)
	}
	if e.Message != "internal error" {
		t.Fatalf("message = %q, internals must not leak", e.Message)
	}
}
