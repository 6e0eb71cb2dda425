package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Workflow заказа
	EventTypeSaleCreated    EventType = "sale.created"
	EventTypeSaleQuoted     EventType = "sale.quoted"
	EventTypeSaleConfirmed  EventType = "sale.confirmed"
	EventTypeSaleProcessing EventType = "sale.processing"
	EventTypeSaleCanceled   EventType = "sale.canceled"

	// Доставка
	EventTypeShippingApplied EventType = "shipping.applied"
	EventTypeShipmentCreated EventType = "shipment.created"
)

// Topics для Kafka
const (
	TopicSaleEvents      = "carrier_pricelist.sale.events"
	TopicSaleOutbox      = "carrier_pricelist.sale.outbox"
	TopicShippingEvents  = "carrier_pricelist.shipping.events"
	TopicOutboxEvents    = "carrier_pricelist.outbox.events"
	TopicDeadLetterQueue = "carrier_pricelist.dlq" // Dead Letter Queue для outbox
)

// SaleEvent: событие жизненного цикла заказа.
type SaleEvent struct {
	EventType EventType      `json:"event_type"`
	SaleID    string         `json:"sale_id"`
	PartyID   string         `json:"party_id,omitempty"`
	State     string         `json:"state,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewSaleEvent создаёт событие заказа с текущим временем.
func NewSaleEvent(eventType EventType, saleID, partyID, state string, metadata map[string]any) *SaleEvent {
	return &SaleEvent{
		EventType: eventType,
		SaleID:    saleID,
		PartyID:   partyID,
		State:     state,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
