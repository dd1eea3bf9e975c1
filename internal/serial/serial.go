// Package serial содержит кодек 24-символьного серийного штрихкода лотерейной пачки.
package serial

import (
	"fmt"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

// Length задаёт длину сериализованного штрихкода в символах.
const Length = 24

// CanonicalStart задаёт каноническое значение serial_start пачки. Отсканированный
// serial_start отражает физическое положение билета, а не логическое начало пачки,
// поэтому при приёмке он всегда нормализуется к "000".
const CanonicalStart = "000"

const (
	gameCodeLen   = 4
	packNumberLen = 7
	ticketLen     = 3
)

// Components представляет разобранный штрихкод: код игры, номер пачки, стартовый
// серийный номер и хвостовой идентификатор. Хвост непрозрачен для бизнес-логики.
type Components struct {
	GameCode    string
	PackNumber  string
	SerialStart string
	Suffix      string
}

// Decode разбирает 24-символьный штрихкод на составляющие.
// Формат гарантируется шлюзом: его нарушение означает нарушение контракта,
// а не пользовательскую ошибку.
func Decode(s string) (Components, error) {
	if len(s) != Length {
		return Components{}, model.NewFormatError("serial must be %d characters, got %d", Length, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Components{}, model.NewFormatError("serial must contain only digits, got %q at position %d", s[i], i)
		}
	}

	return Components{
		GameCode:    s[:gameCodeLen],
		PackNumber:  s[gameCodeLen : gameCodeLen+packNumberLen],
		SerialStart: s[gameCodeLen+packNumberLen : gameCodeLen+packNumberLen+ticketLen],
		Suffix:      s[gameCodeLen+packNumberLen+ticketLen:],
	}, nil
}

// Canonical собирает штрихкод обратно с каноническим serial_start.
// Код игры и номер пачки при этом сохраняются без изменений.
func (c Components) Canonical() string {
	return c.GameCode + c.PackNumber + CanonicalStart + c.Suffix
}

// ParseTicket преобразует серийный номер билета фиксированной ширины в число.
// Знаки и пробелы не допускаются, номер состоит только из цифр.
func ParseTicket(s string) (int, error) {
	if len(s) != ticketLen {
		return 0, model.NewFormatError("ticket serial must be %d characters, got %d", ticketLen, len(s))
	}

	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, model.NewFormatError("ticket serial must contain only digits, got %q at position %d", s[i], i)
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, nil
}

// FormatTicket форматирует номер билета в серийный номер фиксированной ширины.
func FormatTicket(n int) string {
	return fmt.Sprintf("%0*d", ticketLen, n)
}

// EndFor возвращает serial_end пачки для игры с указанным числом билетов:
// билеты нумеруются с нуля, последним идёт tickets_per_pack - 1.
func EndFor(ticketsPerPack int) (string, error) {
	if ticketsPerPack < 1 || ticketsPerPack > 1000 {
		return "", model.NewValidation("tickets per pack must be between 1 and 1000, got %d", ticketsPerPack)
	}
	return FormatTicket(ticketsPerPack - 1), nil
}
