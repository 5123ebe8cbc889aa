package domain

import "time"

// RefundStatus — статус возврата средств.
type RefundStatus string

const (
	// RefundStatusPending — возврат создан, ожидает обработки.
	RefundStatusPending RefundStatus = "pending"

	// RefundStatusSucceeded — средства возвращены покупателю.
	RefundStatusSucceeded RefundStatus = "succeeded"

	// RefundStatusFailed — возврат не прошёл. Платёж при этом остаётся
	// в REFUND_PENDING — автоматического отката в SUCCEEDED нет.
	RefundStatusFailed RefundStatus = "failed"
)

// Refund — возврат средств по платежу. Ссылается на платёж только по ID.
type Refund struct {
	ID          string       // ID возврата (ref_<uuid>)
	PaymentID   string       // ID связанного платежа
	Amount      int64        // Сумма в минимальных единицах (<= суммы платежа)
	Reason      string       // Причина возврата (опционально)
	Status      RefundStatus // Текущий статус
	CreatedAt   time.Time
	ProcessedAt *time.Time // Устанавливается при выходе из PENDING
}

// NewRefundID генерирует ID возврата в формате ref_<uuid-hex>.
func NewRefundID() string {
	return newID("ref")
}

// MarkSucceeded помечает возврат выполненным.
func (r *Refund) MarkSucceeded() error {
	if r.Status != RefundStatusPending {
		return ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RefundStatusSucceeded
	r.ProcessedAt = &now
	return nil
}

// MarkFailed помечает возврат неуспешным.
func (r *Refund) MarkFailed() error {
	if r.Status != RefundStatusPending {
		return ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RefundStatusFailed
	r.ProcessedAt = &now
	return nil
}
