// Package handler содержит HTTP-обработчики API бэк-офиса лотереи.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/middleware"
	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateGame(ctx context.Context, actor service.Actor, params service.CreateGameParams) (*model.Game, error)
	ListGames(ctx context.Context, actor service.Actor) ([]model.Game, error)
	CreateBin(ctx context.Context, actor service.Actor, params service.CreateBinParams) (*model.Bin, error)
	ListBins(ctx context.Context, actor service.Actor) ([]model.Bin, error)

	ReceivePacks(ctx context.Context, actor service.Actor, params service.ReceivePacksParams) (*service.ReceiveResult, error)
	GetPack(ctx context.Context, actor service.Actor, packID string) (*model.PackWithGame, error)
	ListPacks(ctx context.Context, actor service.Actor, status *model.PackStatus) ([]model.PackWithGame, error)
	ActivatePack(ctx context.Context, actor service.Actor, params service.ActivatePackParams) (*repository.ActivationResult, error)
	DepletePack(ctx context.Context, actor service.Actor, params service.DepletePackParams) (*model.Pack, error)
	ReturnPack(ctx context.Context, actor service.Actor, params service.ReturnPackParams) (*model.Pack, error)
	MovePack(ctx context.Context, actor service.Actor, params service.MovePackParams) (*repository.ActivationResult, error)
	PackBinHistory(ctx context.Context, actor service.Actor, packID string) ([]model.BinHistoryEntry, error)

	OpenShift(ctx context.Context, actor service.Actor) (*repository.ShiftWithOpenings, error)
	GetOpenShift(ctx context.Context, actor service.Actor) (*repository.ShiftWithOpenings, error)

	PrepareDayClose(ctx context.Context, actor service.Actor, params service.PrepareDayCloseParams) (*model.DayCloseStaging, error)
	CommitDayClose(ctx context.Context, actor service.Actor, businessDate time.Time) (*repository.DayCloseResult, error)
	CancelDayClose(ctx context.Context, actor service.Actor, businessDate time.Time) (*model.BusinessDay, error)
	GetBusinessDay(ctx context.Context, actor service.Actor, businessDate time.Time) (*repository.BusinessDayStatus, error)
	GetClosingData(ctx context.Context, actor service.Actor, businessDate time.Time) (*model.ClosingData, error)
	ListVariances(ctx context.Context, actor service.Actor, status *model.VarianceStatus) ([]model.Variance, error)
	ApproveVariance(ctx context.Context, actor service.Actor, varianceID, notes string) (*model.Variance, error)
}

// Handler реализует HTTP-обработчики API бэк-офиса лотереи.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// dateLayout задаёт формат бизнес-даты в запросах API.
const dateLayout = "2006-01-02"

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return service.Actor{}, false
	}
	return service.Actor{UserID: a.UserID, StoreID: a.StoreID}, true
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, model.NewValidation("business date is required")
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, model.NewValidation("business date must be in %s format", dateLayout)
	}
	return d, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(code model.ErrorCode) int {
	switch code {
	case model.CodeFormatError:
		return http.StatusBadRequest
	case model.CodeValidation:
		return http.StatusUnprocessableEntity
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeConflict, model.CodeIllegalTransition:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError отдаёт ошибку в теле ответа с машиночитаемым кодом.
// Внутренние ошибки логируются и наружу уходят без деталей.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: string(code), Message: model.PublicMessage(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type createGameRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	TicketsPerPack int             `json:"tickets_per_pack"`
	Global         bool            `json:"global"`
}

type gameResponse struct {
	ID             string  `json:"id"`
	StoreID        *string `json:"store_id,omitempty"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	TicketsPerPack int     `json:"tickets_per_pack"`
}

func toGameResponse(g model.Game) gameResponse {
	return gameResponse{
		ID:             g.ID,
		StoreID:        g.StoreID,
		Code:           g.Code,
		Name:           g.Name,
		PriceCents:     g.PriceCents,
		TicketsPerPack: g.TicketsPerPack,
	}
}

// CreateGame создаёт игру каталога.
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	game, err := h.service.CreateGame(r.Context(), actor, service.CreateGameParams{
		Code:           req.Code,
		Name:           req.Name,
		Price:          req.Price,
		TicketsPerPack: req.TicketsPerPack,
		Global:         req.Global,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toGameResponse(*game))
}

// ListGames возвращает действующий каталог игр магазина.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	games, err := h.service.ListGames(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]gameResponse, 0, len(games))
	for _, g := range games {
		resp = append(resp, toGameResponse(g))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type createBinRequest struct {
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

type binResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Number       int    `json:"number"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}

func toBinResponse(b model.Bin) binResponse {
	return binResponse{
		ID:           b.ID,
		Name:         b.Name,
		Number:       b.Number(),
		DisplayOrder: b.DisplayOrder,
		IsActive:     b.IsActive,
	}
}

// CreateBin создаёт лоток витрины.
func (h *Handler) CreateBin(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createBinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bin, err := h.service.CreateBin(r.Context(), actor, service.CreateBinParams{
		Name:         req.Name,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toBinResponse(*bin))
}

// ListBins возвращает лотки магазина в порядке отображения.
func (h *Handler) ListBins(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	bins, err := h.service.ListBins(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]binResponse, 0, len(bins))
	for _, b := range bins {
		resp = append(resp, toBinResponse(b))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
