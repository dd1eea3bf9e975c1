// Package model содержит доменные сущности движка лотерейных пачек.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PackStatus описывает статус жизненного цикла лотерейной пачки.
type PackStatus string

const (
	PackStatusReceived PackStatus = "RECEIVED"
	PackStatusActive   PackStatus = "ACTIVE"
	PackStatusDepleted PackStatus = "DEPLETED"
	PackStatusReturned PackStatus = "RETURNED"
)

// packTransitions задаёт допустимые переходы статусов пачки.
var packTransitions = map[PackStatus][]PackStatus{
	PackStatusReceived: {PackStatusActive, PackStatusReturned},
	PackStatusActive:   {PackStatusDepleted, PackStatusReturned},
	PackStatusDepleted: {},
	PackStatusReturned: {},
}

// CanTransition сообщает, допустим ли переход пачки из статуса from в статус to.
func CanTransition(from, to PackStatus) bool {
	for _, next := range packTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус терминальным: из него нет переходов.
func (s PackStatus) Terminal() bool {
	return len(packTransitions[s]) == 0
}

// BinAction описывает тип события в истории привязки пачки к лотку.
type BinAction string

const (
	BinActionActivated BinAction = "ACTIVATED"
	BinActionMoved     BinAction = "MOVED"
	BinActionRemoved   BinAction = "REMOVED"
)

// EntryMethod описывает способ ввода закрывающего серийного номера.
type EntryMethod string

const (
	EntryMethodScanned EntryMethod = "SCANNED"
	EntryMethodManual  EntryMethod = "MANUAL"
)

// DepletionReason описывает причину исчерпания пачки.
type DepletionReason string

const (
	DepletionReasonSoldOut  DepletionReason = "SOLD_OUT"
	DepletionReasonDayClose DepletionReason = "DAY_CLOSE"
)

// ReturnReason описывает причину возврата пачки поставщику.
type ReturnReason string

const (
	ReturnReasonDamaged  ReturnReason = "DAMAGED"
	ReturnReasonRecalled ReturnReason = "RECALLED"
	ReturnReasonExpired  ReturnReason = "EXPIRED"
	ReturnReasonOther    ReturnReason = "OTHER"
)

// ShiftStatus описывает статус кассовой смены.
type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "OPEN"
	ShiftStatusClosed ShiftStatus = "CLOSED"
)

// DayStatus описывает статус бизнес-дня магазина.
type DayStatus string

const (
	DayStatusOpen         DayStatus = "OPEN"
	DayStatusPendingClose DayStatus = "PENDING_CLOSE"
	DayStatusClosed       DayStatus = "CLOSED"
)

// VarianceStatus описывает статус расхождения при сверке.
type VarianceStatus string

const (
	VarianceStatusOpen     VarianceStatus = "OPEN"
	VarianceStatusApproved VarianceStatus = "APPROVED"
)

// Game описывает лотерейную игру. Игра без StoreID является глобальной;
// игра магазина с тем же кодом имеет приоритет при поиске.
type Game struct {
	ID             string
	StoreID        *string
	Code           string
	Name           string
	PriceCents     int64
	TicketsPerPack int
	CreatedAt      time.Time
}

// Price возвращает цену билета в долларах.
func (g *Game) Price() decimal.Decimal {
	return decimal.NewFromInt(g.PriceCents).Div(decimal.NewFromInt(100))
}

// Pack описывает лотерейную пачку и учётные поля её жизненного цикла.
type Pack struct {
	ID               string
	StoreID          string
	GameID           string
	PackNumber       string
	SerialStart      string
	SerialEnd        string
	Status           PackStatus
	CurrentBinID     *string
	ActivatedBy      *string
	ActivatedShiftID *string
	ActivatedAt      *time.Time
	DepletedBy       *string
	DepletedShiftID  *string
	DepletedAt       *time.Time
	DepletionReason  *DepletionReason
	ReturnedBy       *string
	ReturnedAt       *time.Time
	ReturnReason     *ReturnReason
	ReturnLastSerial *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PackWithGame объединяет пачку с данными её игры.
type PackWithGame struct {
	Pack Pack
	Game Game
}

// Bin описывает лоток витрины, в котором продаётся не более одной активной пачки.
type Bin struct {
	ID           string
	StoreID      string
	Name         string
	DisplayOrder int
	IsActive     bool
	CreatedAt    time.Time
}

// Number возвращает отображаемый номер лотка: display_order считается с нуля.
func (b *Bin) Number() int {
	return b.DisplayOrder + 1
}

// BinHistoryEntry описывает одно событие в истории привязки пачки к лотку.
// Записи создаются машиной состояний и никогда не изменяются.
type BinHistoryEntry struct {
	ID        string
	PackID    string
	BinID     string
	Action    BinAction
	CreatedAt time.Time
}

// Shift описывает кассовую смену.
type Shift struct {
	ID        string
	StoreID   string
	CashierID string
	Status    ShiftStatus
	OpenedAt  time.Time
	ClosedAt  *time.Time
}

// ShiftOpening фиксирует стартовый серийный номер пачки на начало смены.
type ShiftOpening struct {
	ID            string
	ShiftID       string
	PackID        string
	BinID         string
	OpeningSerial string
	CreatedAt     time.Time
}

// BusinessDay описывает бизнес-день магазина и его статус закрытия.
type BusinessDay struct {
	ID           string
	StoreID      string
	BusinessDate time.Time
	Status       DayStatus
	OpenedAt     time.Time
	ClosedAt     *time.Time
	ClosedBy     *string
}

// PackClosing описывает введённый при закрытии дня серийный номер одной пачки.
// POSSoldQty содержит количество проданных билетов по данным POS, если интеграция его передала.
type PackClosing struct {
	PackID        string      `json:"pack_id"`
	BinID         string      `json:"bin_id"`
	ClosingSerial string      `json:"closing_serial"`
	EntryMethod   EntryMethod `json:"entry_method"`
	POSSoldQty    *int        `json:"pos_sold_qty,omitempty"`
}

// StagedClosing описывает закрытие одной пачки, рассчитанное на этапе prepare
// и сохранённое в staging-записи до commit или cancel.
// PackStatus хранит статус пачки на момент prepare: commit сверяет его с текущим,
// чтобы отличить дрейф состояния от закрытия уже исчерпанной пачки.
type StagedClosing struct {
	PackID            string      `json:"pack_id"`
	BinID             string      `json:"bin_id"`
	ShiftID           *string     `json:"shift_id,omitempty"`
	PackStatus        PackStatus  `json:"pack_status"`
	OpeningSerial     string      `json:"opening_serial"`
	ClosingSerial     string      `json:"closing_serial"`
	EntryMethod       EntryMethod `json:"entry_method"`
	TicketsSold       int         `json:"tickets_sold"`
	DollarAmountCents int64       `json:"dollar_amount_cents"`
	ExpectedQty       *int        `json:"expected_qty,omitempty"`
	VarianceCents     int64       `json:"variance_cents"`
	Depletes          bool        `json:"depletes"`
}

// DayCloseStaging представляет долговечную staging-запись двухфазного закрытия дня.
// Живёт между prepare и commit/cancel и уничтожается по истечении ExpiresAt.
type DayCloseStaging struct {
	ID                 string
	DayID              string
	InitiatedBy        string
	ManualAuthorizedBy *string
	Closings           []StagedClosing
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

// Expired сообщает, истёк ли срок действия staging-записи к моменту now.
func (s *DayCloseStaging) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ShiftClosing фиксирует закрытие одной пачки: итоговый серийный номер,
// количество проданных билетов и сумму продаж.
type ShiftClosing struct {
	ID                string
	DayID             string
	ShiftID           *string
	PackID            string
	ClosingSerial     string
	EntryMethod       EntryMethod
	TicketsSold       int
	DollarAmountCents int64
	CreatedAt         time.Time
}

// DollarAmount возвращает сумму продаж по пачке в долларах.
func (c *ShiftClosing) DollarAmount() decimal.Decimal {
	return decimal.NewFromInt(c.DollarAmountCents).Div(decimal.NewFromInt(100))
}

// Variance описывает расхождение между ожидаемыми и фактическими продажами пачки.
// Закрывается только явным одобрением с непустым комментарием.
type Variance struct {
	ID                  string
	DayID               string
	ShiftID             *string
	PackID              string
	ExpectedQty         int
	ActualQty           int
	DollarVarianceCents int64
	Status              VarianceStatus
	ApprovedBy          *string
	ApprovalNotes       string
	CreatedAt           time.Time
	ApprovedAt          *time.Time
}

// DollarVariance возвращает денежное расхождение в долларах.
func (v *Variance) DollarVariance() decimal.Decimal {
	return decimal.NewFromInt(v.DollarVarianceCents).Div(decimal.NewFromInt(100))
}

// BinClosingView описывает лоток с активной пачкой и её стартовым серийным
// номером на момент запроса данных для закрытия.
type BinClosingView struct {
	Bin           Bin
	Pack          *Pack
	Game          *Game
	OpeningSerial string
}

// ClosingData содержит данные, по которым оператор вводит закрывающие серийные
// номера: лотки с активными пачками и пачки, исчерпанные за текущий бизнес-день.
type ClosingData struct {
	Bins      []BinClosingView
	SoldPacks []PackWithGame
}
