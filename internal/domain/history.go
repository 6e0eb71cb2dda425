package domain

import "time"

// HistoryEntry: запись истории заказа. From и To заполнены только
// для смены состояния.
type HistoryEntry struct {
	Seq      int64
	SaleID   string
	Event    string
	From     SaleState
	To       SaleState
	Reason   string
	Occurred time.Time
}

// Transition сообщает, фиксирует ли запись смену состояния.
func (e HistoryEntry) Transition() bool {
	return e.To != "" && e.From != e.To
}
