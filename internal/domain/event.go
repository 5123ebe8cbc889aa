package domain

import "time"

// Типы событий аудита. Точечная нотация: <сущность>.<что произошло>.
const (
	// EventPaymentCreated — платёжное намерение создано.
	EventPaymentCreated = "payment.created"

	// EventAuthorizationRequested — запрошена авторизация (переход в PENDING).
	EventAuthorizationRequested = "payment.authorization_requested"

	// EventPaymentAuthorized — средства зарезервированы.
	EventPaymentAuthorized = "payment.authorized"

	// EventCaptureRequested — запрошен capture (переход в PROCESSING).
	EventCaptureRequested = "payment.capture_requested"

	// EventPaymentSucceeded — средства списаны.
	EventPaymentSucceeded = "payment.succeeded"

	// EventPaymentFailed — платёж не прошёл.
	EventPaymentFailed = "payment.failed"

	// EventPaymentCancelled — платёж отменён.
	EventPaymentCancelled = "payment.cancelled"

	// EventRefundCreated — возврат инициирован.
	EventRefundCreated = "refund.created"

	// EventPaymentRefunded — средства возвращены.
	EventPaymentRefunded = "payment.refunded"
)

// PaymentEvent — запись аудита перехода состояния платежа.
// Append-only: события никогда не изменяются и не удаляются,
// это авторитетный журнал для разбора инцидентов и комплаенса.
type PaymentEvent struct {
	// Seq — монотонный номер для упорядочивания и чтения журнала.
	// Присваивается БД при вставке.
	Seq uint64

	ID        string         // ID события (evt_<uuid>)
	PaymentID string         // ID платежа (ссылка, не ownership)
	EventType string         // Тип события (payment.authorized и т.д.)
	Status    PaymentStatus  // Снапшот статуса платежа ПОСЛЕ перехода
	Data      map[string]any // Произвольные структурированные данные
	CreatedAt time.Time
}

// NewPaymentEvent создаёт событие аудита для платежа.
// Статус фиксируется на момент вызова — после применения перехода.
func NewPaymentEvent(paymentID, eventType string, status PaymentStatus, data map[string]any) *PaymentEvent {
	if data == nil {
		data = map[string]any{}
	}
	return &PaymentEvent{
		ID:        newID("evt"),
		PaymentID: paymentID,
		EventType: eventType,
		Status:    status,
		Data:      data,
		CreatedAt: time.Now(),
	}
}
