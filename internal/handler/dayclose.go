package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/service"
)

type shiftOpeningResponse struct {
	PackID        string `json:"pack_id"`
	BinID         string `json:"bin_id"`
	OpeningSerial string `json:"opening_serial"`
}

type shiftResponse struct {
	ID        string                 `json:"id"`
	CashierID string                 `json:"cashier_id"`
	Status    string                 `json:"status"`
	OpenedAt  string                 `json:"opened_at"`
	ClosedAt  *string                `json:"closed_at,omitempty"`
	Openings  []shiftOpeningResponse `json:"openings"`
}

func toShiftResponse(s repository.ShiftWithOpenings) shiftResponse {
	resp := shiftResponse{
		ID:        s.Shift.ID,
		CashierID: s.Shift.CashierID,
		Status:    string(s.Shift.Status),
		OpenedAt:  s.Shift.OpenedAt.Format(time.RFC3339),
		ClosedAt:  formatTimePtr(s.Shift.ClosedAt),
		Openings:  make([]shiftOpeningResponse, 0, len(s.Openings)),
	}
	for _, o := range s.Openings {
		resp.Openings = append(resp.Openings, shiftOpeningResponse{
			PackID:        o.PackID,
			BinID:         o.BinID,
			OpeningSerial: o.OpeningSerial,
		})
	}
	return resp
}

// OpenShift открывает смену кассира со снимком стартовых серийных номеров.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	result, err := h.service.OpenShift(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toShiftResponse(*result))
}

// GetCurrentShift возвращает открытую смену кассира.
func (h *Handler) GetCurrentShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetOpenShift(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toShiftResponse(*result))
}

type businessDayResponse struct {
	ID           string  `json:"id,omitempty"`
	BusinessDate string  `json:"business_date"`
	Status       string  `json:"status"`
	ClosedAt     *string `json:"closed_at,omitempty"`
	ClosedBy     *string `json:"closed_by,omitempty"`
}

func toBusinessDayResponse(d model.BusinessDay) businessDayResponse {
	return businessDayResponse{
		ID:           d.ID,
		BusinessDate: d.BusinessDate.Format(dateLayout),
		Status:       string(d.Status),
		ClosedAt:     formatTimePtr(d.ClosedAt),
		ClosedBy:     d.ClosedBy,
	}
}

type stagingResponse struct {
	ID                 string                `json:"id"`
	DayID              string                `json:"day_id"`
	InitiatedBy        string                `json:"initiated_by"`
	ManualAuthorizedBy *string               `json:"manual_authorized_by,omitempty"`
	Closings           []model.StagedClosing `json:"closings"`
	ExpiresAt          string                `json:"expires_at"`
	CreatedAt          string                `json:"created_at"`
}

func toStagingResponse(s model.DayCloseStaging) stagingResponse {
	return stagingResponse{
		ID:                 s.ID,
		DayID:              s.DayID,
		InitiatedBy:        s.InitiatedBy,
		ManualAuthorizedBy: s.ManualAuthorizedBy,
		Closings:           s.Closings,
		ExpiresAt:          s.ExpiresAt.Format(time.RFC3339),
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
	}
}

type dayStatusResponse struct {
	Day     businessDayResponse `json:"day"`
	Staging *stagingResponse    `json:"staging,omitempty"`
}

// GetBusinessDay возвращает состояние бизнес-дня по дате из query-параметра.
func (h *Handler) GetBusinessDay(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.service.GetBusinessDay(r.Context(), actor, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dayStatusResponse{Day: toBusinessDayResponse(status.Day)}
	if status.Staging != nil {
		staging := toStagingResponse(*status.Staging)
		resp.Staging = &staging
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type binClosingViewResponse struct {
	Bin           binResponse   `json:"bin"`
	Pack          *packResponse `json:"pack,omitempty"`
	Game          *gameResponse `json:"game,omitempty"`
	OpeningSerial string        `json:"opening_serial,omitempty"`
}

type closingDataResponse struct {
	Bins      []binClosingViewResponse `json:"bins"`
	SoldPacks []packWithGameResponse   `json:"sold_packs"`
}

// GetClosingData возвращает данные для ввода закрывающих серийных номеров.
func (h *Handler) GetClosingData(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := h.service.GetClosingData(r.Context(), actor, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := closingDataResponse{
		Bins:      make([]binClosingViewResponse, 0, len(data.Bins)),
		SoldPacks: make([]packWithGameResponse, 0, len(data.SoldPacks)),
	}
	for _, v := range data.Bins {
		view := binClosingViewResponse{
			Bin:           toBinResponse(v.Bin),
			OpeningSerial: v.OpeningSerial,
		}
		if v.Pack != nil {
			pack := toPackResponse(*v.Pack)
			view.Pack = &pack
		}
		if v.Game != nil {
			game := toGameResponse(*v.Game)
			view.Game = &game
		}
		resp.Bins = append(resp.Bins, view)
	}
	for _, p := range data.SoldPacks {
		resp.SoldPacks = append(resp.SoldPacks, toPackWithGameResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type packClosingRequest struct {
	PackID        string `json:"pack_id"`
	BinID         string `json:"bin_id"`
	ClosingSerial string `json:"closing_serial"`
	EntryMethod   string `json:"entry_method"`
	POSSoldQty    *int   `json:"pos_sold_qty,omitempty"`
}

type prepareDayCloseRequest struct {
	BusinessDate       string               `json:"business_date"`
	Closings           []packClosingRequest `json:"closings"`
	TTLMinutes         int                  `json:"ttl_minutes,omitempty"`
	ManualAuthorizedBy *string              `json:"manual_authorized_by,omitempty"`
}

// PrepareDayClose выполняет первую фазу закрытия дня.
func (h *Handler) PrepareDayClose(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req prepareDayCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.BusinessDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	closings := make([]model.PackClosing, 0, len(req.Closings))
	for _, c := range req.Closings {
		closings = append(closings, model.PackClosing{
			PackID:        c.PackID,
			BinID:         c.BinID,
			ClosingSerial: c.ClosingSerial,
			EntryMethod:   model.EntryMethod(c.EntryMethod),
			POSSoldQty:    c.POSSoldQty,
		})
	}

	staging, err := h.service.PrepareDayClose(r.Context(), actor, service.PrepareDayCloseParams{
		BusinessDate:       date,
		Closings:           closings,
		TTL:                time.Duration(req.TTLMinutes) * time.Minute,
		ManualAuthorizedBy: req.ManualAuthorizedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toStagingResponse(*staging))
}

type shiftClosingResponse struct {
	PackID            string  `json:"pack_id"`
	ShiftID           *string `json:"shift_id,omitempty"`
	ClosingSerial     string  `json:"closing_serial"`
	EntryMethod       string  `json:"entry_method"`
	TicketsSold       int     `json:"tickets_sold"`
	DollarAmountCents int64   `json:"dollar_amount_cents"`
}

type varianceResponse struct {
	ID                  string  `json:"id"`
	DayID               string  `json:"day_id"`
	ShiftID             *string `json:"shift_id,omitempty"`
	PackID              string  `json:"pack_id"`
	ExpectedQty         int     `json:"expected_qty"`
	ActualQty           int     `json:"actual_qty"`
	DollarVarianceCents int64   `json:"dollar_variance_cents"`
	Status              string  `json:"status"`
	ApprovedBy          *string `json:"approved_by,omitempty"`
	ApprovalNotes       string  `json:"approval_notes,omitempty"`
	ApprovedAt          *string `json:"approved_at,omitempty"`
}

func toVarianceResponse(v model.Variance) varianceResponse {
	return varianceResponse{
		ID:                  v.ID,
		DayID:               v.DayID,
		ShiftID:             v.ShiftID,
		PackID:              v.PackID,
		ExpectedQty:         v.ExpectedQty,
		ActualQty:           v.ActualQty,
		DollarVarianceCents: v.DollarVarianceCents,
		Status:              string(v.Status),
		ApprovedBy:          v.ApprovedBy,
		ApprovalNotes:       v.ApprovalNotes,
		ApprovedAt:          formatTimePtr(v.ApprovedAt),
	}
}

type dayCloseResultResponse struct {
	Day           businessDayResponse    `json:"day"`
	Closings      []shiftClosingResponse `json:"closings"`
	Variances     []varianceResponse     `json:"variances"`
	DepletedPacks []packResponse         `json:"depleted_packs"`
}

type businessDateRequest struct {
	BusinessDate string `json:"business_date"`
}

// CommitDayClose выполняет вторую фазу закрытия дня.
func (h *Handler) CommitDayClose(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req businessDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.BusinessDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.CommitDayClose(r.Context(), actor, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dayCloseResultResponse{
		Day:           toBusinessDayResponse(result.Day),
		Closings:      make([]shiftClosingResponse, 0, len(result.Closings)),
		Variances:     make([]varianceResponse, 0, len(result.Variances)),
		DepletedPacks: make([]packResponse, 0, len(result.DepletedPacks)),
	}
	for _, c := range result.Closings {
		resp.Closings = append(resp.Closings, shiftClosingResponse{
			PackID:            c.PackID,
			ShiftID:           c.ShiftID,
			ClosingSerial:     c.ClosingSerial,
			EntryMethod:       string(c.EntryMethod),
			TicketsSold:       c.TicketsSold,
			DollarAmountCents: c.DollarAmountCents,
		})
	}
	for _, v := range result.Variances {
		resp.Variances = append(resp.Variances, toVarianceResponse(v))
	}
	for _, p := range result.DepletedPacks {
		resp.DepletedPacks = append(resp.DepletedPacks, toPackResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CancelDayClose отменяет подготовленное закрытие дня.
func (h *Handler) CancelDayClose(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req businessDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.BusinessDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	day, err := h.service.CancelDayClose(r.Context(), actor, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBusinessDayResponse(*day))
}

func parseVarianceStatus(s string) (*model.VarianceStatus, error) {
	if s == "" {
		return nil, nil
	}
	status := model.VarianceStatus(s)
	switch status {
	case model.VarianceStatusOpen, model.VarianceStatusApproved:
		return &status, nil
	}
	return nil, model.NewValidation("unknown variance status %s", s)
}

// ListVariances возвращает расхождения магазина, опционально по статусу.
func (h *Handler) ListVariances(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	status, err := parseVarianceStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variances, err := h.service.ListVariances(r.Context(), actor, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]varianceResponse, 0, len(variances))
	for _, v := range variances {
		resp = append(resp, toVarianceResponse(v))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type approveVarianceRequest struct {
	Notes string `json:"notes"`
}

// ApproveVariance одобряет расхождение с обязательным комментарием.
func (h *Handler) ApproveVariance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req approveVarianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.ApproveVariance(r.Context(), actor, chi.URLParam(r, "varianceID"), req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toVarianceResponse(*v))
}
