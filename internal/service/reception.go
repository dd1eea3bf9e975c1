package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/apetrenko/lottery-backoffice/internal/model"
	"github.com/apetrenko/lottery-backoffice/internal/serial"
)

// MaxReceiveBatch ограничивает размер партии приёмки за один запрос.
const MaxReceiveBatch = 100

// ReceivePacksParams содержит параметры приёмки партии пачек по штрих-кодам.
// ScanDuration хранит длительность физического сканирования партии, ноль допустим.
type ReceivePacksParams struct {
	Serials      []string
	ScanDuration time.Duration
}

// SerialError описывает ошибку обработки одного серийного номера из партии.
type SerialError struct {
	Serial  string
	Message string
}

// GameNotFound описывает серийный номер, код игры которого отсутствует
// в каталоге. Разобранный код возвращается вместе с номером, чтобы
// вызывающая сторона могла предложить завести игру.
type GameNotFound struct {
	Serial   string
	GameCode string
}

// ReceiveResult содержит партиционированный итог приёмки. Партия не откатывается
// из-за отдельных дубликатов, неизвестных игр или бракованных штрих-кодов:
// каждый серийный номер попадает ровно в одну из четырёх групп.
type ReceiveResult struct {
	Created       []model.PackWithGame
	Duplicates    []string
	GamesNotFound []GameNotFound
	Errors        []SerialError
}

// ReceivePacks принимает партию пачек: разбирает штрих-коды, находит игры
// с приоритетом каталога магазина, проверяет коды во внешнем сервисе
// и создаёт пачки в статусе RECEIVED одной транзакцией.
func (s *Service) ReceivePacks(ctx context.Context, actor Actor, params ReceivePacksParams) (*ReceiveResult, error) {
	if len(params.Serials) == 0 {
		return nil, model.NewValidation("serials list is empty")
	}
	if len(params.Serials) > MaxReceiveBatch {
		return nil, model.NewValidation("batch size exceeds %d serials", MaxReceiveBatch)
	}

	result := &ReceiveResult{}

	type candidate struct {
		serialNumber string
		components   serial.Components
	}

	candidates := make([]candidate, 0, len(params.Serials))
	codes := make([]string, 0, len(params.Serials))
	seenCodes := make(map[string]struct{}, len(params.Serials))

	for _, sn := range params.Serials {
		c, err := serial.Decode(sn)
		if err != nil {
			result.Errors = append(result.Errors, SerialError{Serial: sn, Message: model.PublicMessage(err)})
			continue
		}

		candidates = append(candidates, candidate{serialNumber: sn, components: c})
		if _, ok := seenCodes[c.GameCode]; !ok {
			seenCodes[c.GameCode] = struct{}{}
			codes = append(codes, c.GameCode)
		}
	}

	games, err := s.repo.GamesByCodes(ctx, actor.StoreID, codes)
	if err != nil {
		return nil, err
	}

	var (
		packs   []model.Pack
		serials []string
	)
	seenPacks := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		game, ok := games[c.components.GameCode]
		if !ok {
			result.GamesNotFound = append(result.GamesNotFound, GameNotFound{
				Serial:   c.serialNumber,
				GameCode: c.components.GameCode,
			})
			continue
		}

		key := game.ID + ":" + c.components.PackNumber
		if _, ok := seenPacks[key]; ok {
			result.Duplicates = append(result.Duplicates, c.serialNumber)
			continue
		}
		seenPacks[key] = struct{}{}

		if !s.verifySerial(ctx, c.serialNumber, params.ScanDuration, result) {
			continue
		}

		serialEnd, err := serial.EndFor(game.TicketsPerPack)
		if err != nil {
			result.Errors = append(result.Errors, SerialError{Serial: c.serialNumber, Message: model.PublicMessage(err)})
			continue
		}

		packs = append(packs, model.Pack{
			StoreID:     actor.StoreID,
			GameID:      game.ID,
			PackNumber:  c.components.PackNumber,
			SerialStart: serial.CanonicalStart,
			SerialEnd:   serialEnd,
		})
		serials = append(serials, c.serialNumber)
	}

	if len(packs) > 0 {
		inserted, err := s.repo.InsertPacks(ctx, packs)
		if err != nil {
			return nil, err
		}

		gamesByID := make(map[string]model.Game, len(games))
		for _, g := range games {
			gamesByID[g.ID] = g
		}

		for i, res := range inserted {
			if res.Duplicate {
				result.Duplicates = append(result.Duplicates, serials[i])
				continue
			}
			result.Created = append(result.Created, model.PackWithGame{
				Pack: res.Pack,
				Game: gamesByID[res.Pack.GameID],
			})
		}
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:  model.AuditBatchPackReceived,
		StoreID: actor.StoreID,
		ActorID: actor.UserID,
		Values: map[string]any{
			"received":        len(params.Serials),
			"created":         len(result.Created),
			"duplicates":      len(result.Duplicates),
			"games_not_found": len(result.GamesNotFound),
			"errors":          len(result.Errors),
		},
	})

	return result, nil
}

// verifySerial спрашивает у внешнего сервиса вердикт по штрих-коду.
// Код отклоняется только явным вердиктом: при недоступности сервиса
// он принимается с предупреждением в журнале.
func (s *Service) verifySerial(ctx context.Context, sn string, scanDuration time.Duration, result *ReceiveResult) bool {
	if s.scan == nil {
		return true
	}

	verdict, err := s.scan.Verify(ctx, sn, scanDuration)
	if err != nil {
		s.logger.Warn("scan check unavailable, serial accepted", zap.String("serial", sn), zap.Error(err))
		return true
	}
	if verdict.Valid {
		return true
	}

	msg := "rejected by scan check"
	if verdict.Reason != "" {
		msg += ": " + verdict.Reason
	}
	result.Errors = append(result.Errors, SerialError{Serial: sn, Message: msg})
	return false
}
