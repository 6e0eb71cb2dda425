package sale

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/messaging/kafka"
)

const (
	maxSaveRetries = 3
	baseRetryDelay = 10 * time.Millisecond
)

// transitions: допустимые переходы состояний заказа.
var transitions = map[domain.SaleState][]domain.SaleState{
	domain.SaleStateDraft:     {domain.SaleStateQuotation, domain.SaleStateCanceled},
	domain.SaleStateQuotation: {domain.SaleStateDraft, domain.SaleStateConfirmed, domain.SaleStateCanceled},
	domain.SaleStateConfirmed: {domain.SaleStateProcessing},
}

var stateEvents = map[domain.SaleState]kafka.EventType{
	domain.SaleStateQuotation:  kafka.EventTypeSaleQuoted,
	domain.SaleStateConfirmed:  kafka.EventTypeSaleConfirmed,
	domain.SaleStateProcessing: kafka.EventTypeSaleProcessing,
	domain.SaleStateCanceled:   kafka.EventTypeSaleCanceled,
}

func canTransition(from, to domain.SaleState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// mutate перечитывает заказ, применяет fn и сохраняет результат.
// Конфликты версий повторяются с exponential backoff.
func (s *Service) mutate(saleID string, fn func(*domain.Sale) error) (domain.Sale, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		sale, err := s.sales.Get(saleID)
		if err != nil {
			return domain.Sale{}, err
		}
		if err := fn(&sale); err != nil {
			return domain.Sale{}, err
		}
		sale.UpdatedAt = s.now()

		if err := s.sales.Save(sale); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				s.logger.WithFields(log.Fields{
					"sale_id": saleID,
					"attempt": attempt + 1,
					"version": sale.Version,
				}).Warn("version conflict detected, retrying")
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": saleID,
				"attempt": attempt + 1,
			}).Error("failed to persist sale")
			return domain.Sale{}, err
		}

		sale.Version++
		return sale, nil
	}
	return domain.Sale{}, domain.ErrSaleVersionConflict
}

// transition меняет состояние заказа и эмитит событие в outbox и историю.
func (s *Service) transition(ctx context.Context, saleID string, to domain.SaleState, reason string) (domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sale{}, err
	}

	var from domain.SaleState
	sale, err := s.mutate(saleID, func(sale *domain.Sale) error {
		from = sale.State
		if !canTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
		}
		sale.State = to
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSaleTransition(string(to))
	}
	s.logger.WithFields(log.Fields{
		"sale_id": sale.ID,
		"from":    from,
		"to":      to,
	}).Info("sale state changed")

	payload := map[string]any{
		"from":  from,
		"state": to,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	s.emitEvent(ctx, &sale, EventSaleStateChanged, payload)

	if eventType, ok := stateEvents[to]; ok {
		var metadata map[string]any
		if reason != "" {
			metadata = map[string]any{"reason": reason}
		}
		s.publishSaleEvent(eventType, sale, metadata)
	}
	return sale, nil
}

func (s *Service) emitEvent(ctx context.Context, sale *domain.Sale, eventType string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}
	occurred := s.now()
	payload["sale_id"] = sale.ID
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": sale.ID,
				"event":   eventType,
			}).Error("marshal event failed")
			return
		}
		msg := domain.OutboxMessage{
			AggregateType: aggregateType,
			AggregateID:   sale.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := s.outbox.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": sale.ID,
				"event":   eventType,
			}).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	s.recordHistory(ctx, sale.ID, eventType, occurred, payload)
}

// recordHistory пишет событие в историю заказа. Состояние заказа уже
// сохранено, поэтому запись не отменяется вместе с запросом.
func (s *Service) recordHistory(ctx context.Context, saleID, eventType string, occurred time.Time, payload map[string]any) {
	if s.history == nil {
		return
	}
	entry := domain.HistoryEntry{SaleID: saleID, Event: eventType, Occurred: occurred}
	entry.From, _ = payload["from"].(domain.SaleState)
	entry.To, _ = payload["state"].(domain.SaleState)
	entry.Reason, _ = payload["reason"].(string)

	if _, err := s.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": saleID,
			"event":   eventType,
		}).Warn("record sale history failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordHistoryEntry()
	}
}

// publishSaleEvent публикует событие в Kafka, если producer настроен.
// Ошибка публикации не прерывает workflow: outbox доставит событие позже.
func (s *Service) publishSaleEvent(eventType kafka.EventType, sale domain.Sale, metadata map[string]any) {
	if s.publisher == nil {
		return
	}
	event := kafka.NewSaleEvent(eventType, sale.ID, sale.PartyID, string(sale.State), metadata)
	if err := s.publisher.PublishSaleEvent(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"sale_id":    sale.ID,
		}).Warn("failed to publish sale event to kafka")
	}
}
