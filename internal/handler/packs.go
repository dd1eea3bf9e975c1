package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/service"
)

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type packResponse struct {
	ID               string  `json:"id"`
	GameID           string  `json:"game_id"`
	PackNumber       string  `json:"pack_number"`
	SerialStart      string  `json:"serial_start"`
	SerialEnd        string  `json:"serial_end"`
	Status           string  `json:"status"`
	CurrentBinID     *string `json:"current_bin_id,omitempty"`
	ActivatedAt      *string `json:"activated_at,omitempty"`
	DepletedAt       *string `json:"depleted_at,omitempty"`
	DepletionReason  *string `json:"depletion_reason,omitempty"`
	ReturnedAt       *string `json:"returned_at,omitempty"`
	ReturnReason     *string `json:"return_reason,omitempty"`
	ReturnLastSerial *string `json:"return_last_serial,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func toPackResponse(p model.Pack) packResponse {
	resp := packResponse{
		ID:               p.ID,
		GameID:           p.GameID,
		PackNumber:       p.PackNumber,
		SerialStart:      p.SerialStart,
		SerialEnd:        p.SerialEnd,
		Status:           string(p.Status),
		CurrentBinID:     p.CurrentBinID,
		ActivatedAt:      formatTimePtr(p.ActivatedAt),
		DepletedAt:       formatTimePtr(p.DepletedAt),
		ReturnedAt:       formatTimePtr(p.ReturnedAt),
		ReturnLastSerial: p.ReturnLastSerial,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	if p.DepletionReason != nil {
		s := string(*p.DepletionReason)
		resp.DepletionReason = &s
	}
	if p.ReturnReason != nil {
		s := string(*p.ReturnReason)
		resp.ReturnReason = &s
	}
	return resp
}

type packWithGameResponse struct {
	packResponse
	Game gameResponse `json:"game"`
}

func toPackWithGameResponse(p model.PackWithGame) packWithGameResponse {
	return packWithGameResponse{
		packResponse: toPackResponse(p.Pack),
		Game:         toGameResponse(p.Game),
	}
}

type receiveRequest struct {
	Serials        []string `json:"serials"`
	ScanDurationMS int64    `json:"scan_duration_ms"`
}

type serialErrorResponse struct {
	Serial  string `json:"serial"`
	Message string `json:"message"`
}

type gameNotFoundResponse struct {
	Serial   string `json:"serial"`
	GameCode string `json:"game_code"`
}

type receiveResponse struct {
	Created       []packWithGameResponse `json:"created"`
	Duplicates    []string               `json:"duplicates"`
	GamesNotFound []gameNotFoundResponse `json:"games_not_found"`
	Errors        []serialErrorResponse  `json:"errors"`
}

// ReceivePacks принимает партию пачек по отсканированным штрих-кодам.
func (h *Handler) ReceivePacks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.ReceivePacks(r.Context(), actor, service.ReceivePacksParams{
		Serials:      req.Serials,
		ScanDuration: time.Duration(req.ScanDurationMS) * time.Millisecond,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := receiveResponse{
		Created:       make([]packWithGameResponse, 0, len(result.Created)),
		Duplicates:    result.Duplicates,
		GamesNotFound: make([]gameNotFoundResponse, 0, len(result.GamesNotFound)),
		Errors:        make([]serialErrorResponse, 0, len(result.Errors)),
	}
	if resp.Duplicates == nil {
		resp.Duplicates = []string{}
	}
	for _, p := range result.Created {
		resp.Created = append(resp.Created, toPackWithGameResponse(p))
	}
	for _, g := range result.GamesNotFound {
		resp.GamesNotFound = append(resp.GamesNotFound, gameNotFoundResponse{Serial: g.Serial, GameCode: g.GameCode})
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, serialErrorResponse{Serial: e.Serial, Message: e.Message})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func parsePackStatus(s string) (*model.PackStatus, error) {
	if s == "" {
		return nil, nil
	}
	status := model.PackStatus(s)
	switch status {
	case model.PackStatusReceived, model.PackStatusActive, model.PackStatusDepleted, model.PackStatusReturned:
		return &status, nil
	}
	return nil, model.NewValidation("unknown pack status %s", s)
}

// ListPacks возвращает пачки магазина, опционально по статусу.
func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	status, err := parsePackStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	packs, err := h.service.ListPacks(r.Context(), actor, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]packWithGameResponse, 0, len(packs))
	for _, p := range packs {
		resp = append(resp, toPackWithGameResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetPack возвращает пачку магазина вместе с её игрой.
func (h *Handler) GetPack(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	pack, err := h.service.GetPack(r.Context(), actor, chi.URLParam(r, "packID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPackWithGameResponse(*pack))
}

type activateRequest struct {
	BinID         string  `json:"bin_id"`
	OpeningSerial string  `json:"opening_serial"`
	ShiftID       *string `json:"shift_id,omitempty"`
}

type activationResponse struct {
	Pack    packResponse  `json:"pack"`
	Evicted *packResponse `json:"evicted,omitempty"`
}

// ActivatePack активирует пачку в указанном лотке.
func (h *Handler) ActivatePack(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.ActivatePack(r.Context(), actor, service.ActivatePackParams{
		PackID:        chi.URLParam(r, "packID"),
		BinID:         req.BinID,
		OpeningSerial: req.OpeningSerial,
		ShiftID:       req.ShiftID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := activationResponse{Pack: toPackResponse(result.Pack)}
	if result.Previous != nil {
		evicted := toPackResponse(*result.Previous)
		resp.Evicted = &evicted
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type depleteRequest struct {
	ShiftID *string `json:"shift_id,omitempty"`
}

// DepletePack помечает распроданную пачку исчерпанной.
func (h *Handler) DepletePack(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req depleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	pack, err := h.service.DepletePack(r.Context(), actor, service.DepletePackParams{
		PackID:  chi.URLParam(r, "packID"),
		ShiftID: req.ShiftID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPackResponse(*pack))
}

type returnRequest struct {
	Reason         string  `json:"reason"`
	LastSoldSerial *string `json:"last_sold_serial,omitempty"`
}

// ReturnPack оформляет возврат пачки поставщику.
func (h *Handler) ReturnPack(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pack, err := h.service.ReturnPack(r.Context(), actor, service.ReturnPackParams{
		PackID:         chi.URLParam(r, "packID"),
		Reason:         model.ReturnReason(req.Reason),
		LastSoldSerial: req.LastSoldSerial,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPackResponse(*pack))
}

type moveRequest struct {
	BinID string `json:"bin_id"`
}

// MovePack перемещает активную пачку в другой лоток.
func (h *Handler) MovePack(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.MovePack(r.Context(), actor, service.MovePackParams{
		PackID:      chi.URLParam(r, "packID"),
		TargetBinID: req.BinID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := activationResponse{Pack: toPackResponse(result.Pack)}
	if result.Previous != nil {
		evicted := toPackResponse(*result.Previous)
		resp.Evicted = &evicted
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type binHistoryResponse struct {
	BinID     string `json:"bin_id"`
	Action    string `json:"action"`
	CreatedAt string `json:"created_at"`
}

// PackBinHistory возвращает историю привязки пачки к лоткам.
func (h *Handler) PackBinHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	history, err := h.service.PackBinHistory(r.Context(), actor, chi.URLParam(r, "packID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]binHistoryResponse, 0, len(history))
	for _, e := range history {
		resp = append(resp, binHistoryResponse{
			BinID:     e.BinID,
			Action:    string(e.Action),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
