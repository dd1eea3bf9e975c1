package model

import (
	"errors"
	"fmt"
)

// ErrorCode представляет стабильный машиночитаемый код ошибки бизнес-уровня.
type ErrorCode string

const (
	CodeFormatError       ErrorCode = "FORMAT_ERROR"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeIllegalTransition ErrorCode = "ILLEGAL_STATE_TRANSITION"
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error представляет типизированную ошибку движка: код для вызывающей стороны,
// человекочитаемое сообщение и завёрнутую исходную ошибку.
// Наружу попадают только Code и Message, без внутренних деталей вроде SQL.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewFormatError создаёт ошибку формата входных данных: такие данные должны были
// быть отклонены на границе запроса, поэтому это нарушение контракта, а не ошибка пользователя.
func NewFormatError(format string, args ...any) *Error {
	return &Error{Code: CodeFormatError, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound создаёт ошибку отсутствия сущности в пределах видимости арендатора.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict создаёт ошибку конфликта: дубликат в уникальной области
// или проигранная конкурентная гонка условного обновления.
func NewConflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewIllegalTransition создаёт ошибку недопустимого перехода из текущего статуса сущности.
func NewIllegalTransition(format string, args ...any) *Error {
	return &Error{Code: CodeIllegalTransition, Message: fmt.Sprintf(format, args...)}
}

// NewValidation создаёт ошибку бизнес-валидации.
func NewValidation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInternal оборачивает неожиданную инфраструктурную ошибку.
// Такая ошибка всегда означает откат объемлющей транзакции.
func NewInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf возвращает код ошибки, если err является доменной ошибкой,
// и CodeInternal для всех прочих.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage возвращает сообщение, пригодное для ответа вызывающей стороне.
// Для неожиданных ошибок внутренние детали скрываются.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}

// Действия аудита, фиксируемые по одному на каждую мутирующую операцию.
const (
	AuditBatchPackReceived = "BATCH_PACK_RECEIVED"
	AuditPackActivated     = "PACK_ACTIVATED"
	AuditPackDepleted      = "PACK_DEPLETED"
	AuditPackReturned      = "PACK_RETURNED"
	AuditPackMoved         = "PACK_MOVED"
	AuditShiftOpened       = "SHIFT_OPENED"
	AuditDayClosePrepared  = "DAY_CLOSE_PREPARED"
	AuditDayCloseCommitted = "DAY_CLOSE_COMMITTED"
	AuditDayCloseCancelled = "DAY_CLOSE_CANCELLED"
	AuditVarianceApproved  = "VARIANCE_APPROVED"
	AuditGameCreated       = "GAME_CREATED"
	AuditBinCreated        = "BIN_CREATED"
)

// AuditEntry описывает запись журнала аудита: действие, исполнителя, целевую
// запись и снимок новых значений. Журнал является односторонним каналом записи.
type AuditEntry struct {
	Action   string
	StoreID  string
	ActorID  string
	TargetID string
	Values   map[string]any
}
