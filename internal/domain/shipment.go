package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShipmentState описывает состояние исходящей отгрузки.
type ShipmentState string

const (
	ShipmentStateWaiting ShipmentState = "waiting"
	ShipmentStateDone    ShipmentState = "done"
)

// Move: складское перемещение исходящей отгрузки.
type Move struct {
	ID        string
	ProductID string
	Quantity  decimal.Decimal
}

// Shipment: исходящая отгрузка, созданная из заказа.
type Shipment struct {
	ID         string
	SaleID     string
	CompanyID  string
	CustomerID string
	CarrierID  string
	Moves      []Move
	// Cost всегда в валюте компании, а не в валюте заказа.
	Cost         decimal.Decimal
	CostCurrency string
	State        ShipmentState
	CreatedAt    time.Time
}

// OutgoingMoves возвращает перемещения с товаром.
func (s *Shipment) OutgoingMoves() []Move {
	result := make([]Move, 0, len(s.Moves))
	for _, move := range s.Moves {
		if move.ProductID == "" {
			continue
		}
		result = append(result, move)
	}
	return result
}
