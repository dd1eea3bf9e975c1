// Package variance содержит чистые вычисления сверки продаж по серийным номерам.
package variance

import (
	"github.com/shopspring/decimal"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/serial"
)

// Sale содержит результат расчёта продаж по одной пачке за период.
type Sale struct {
	TicketsSold int
	Dollar      decimal.Decimal
}

// Compute вычисляет количество проданных билетов и сумму продаж по стартовому
// и закрывающему серийным номерам. Закрывающий номер за пределами пачки или
// позади стартового отклоняется ошибкой валидации: значения не усекаются,
// и пачка остаётся в прежнем состоянии у вызывающей стороны.
func Compute(openingSerial, closingSerial, serialEnd string, price decimal.Decimal) (Sale, error) {
	opening, err := serial.ParseTicket(openingSerial)
	if err != nil {
		return Sale{}, err
	}
	closing, err := serial.ParseTicket(closingSerial)
	if err != nil {
		return Sale{}, err
	}
	end, err := serial.ParseTicket(serialEnd)
	if err != nil {
		return Sale{}, err
	}

	if closing > end {
		return Sale{}, model.NewValidation("closing serial %s exceeds pack serial end %s", closingSerial, serialEnd)
	}
	if closing < opening {
		return Sale{}, model.NewValidation("closing serial %s precedes opening serial %s", closingSerial, openingSerial)
	}

	sold := closing - opening
	return Sale{
		TicketsSold: sold,
		Dollar:      price.Mul(decimal.NewFromInt(int64(sold))),
	}, nil
}

// Cents переводит денежную сумму в целые центы для хранения.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// DeltaCents возвращает денежное расхождение (факт минус ожидание) в центах.
func DeltaCents(actualQty, expectedQty int, price decimal.Decimal) int64 {
	diff := decimal.NewFromInt(int64(actualQty - expectedQty))
	return Cents(price.Mul(diff))
}
