// Package domain содержит бизнес-сущности Payment Service.
package domain

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus — статус платежа в его жизненном цикле.
type PaymentStatus string

const (
	// PaymentStatusCreated — платёжное намерение создано.
	PaymentStatusCreated PaymentStatus = "created"

	// PaymentStatusPending — запрошена авторизация у карточной сети.
	PaymentStatusPending PaymentStatus = "pending"

	// PaymentStatusAuthorized — средства зарезервированы, но не списаны.
	PaymentStatusAuthorized PaymentStatus = "authorized"

	// PaymentStatusProcessing — идёт capture (списание средств).
	PaymentStatusProcessing PaymentStatus = "processing"

	// PaymentStatusSucceeded — платёж успешно завершён.
	PaymentStatusSucceeded PaymentStatus = "succeeded"

	// PaymentStatusFailed — платёж не прошёл (decline сети или невалидная карта).
	PaymentStatusFailed PaymentStatus = "failed"

	// PaymentStatusCancelled — платёж отменён до capture.
	PaymentStatusCancelled PaymentStatus = "cancelled"

	// PaymentStatusRefundPending — инициирован возврат средств.
	PaymentStatusRefundPending PaymentStatus = "refund_pending"

	// PaymentStatusRefunded — средства полностью возвращены.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsTerminal возвращает true, если платёж в финальном состоянии.
// SUCCEEDED не терминальный — из него возможен переход в REFUND_PENDING.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

// allowedTransitions определяет валидные переходы состояний платежа.
// Авторизация и capture — двухфазные: сначала промежуточный статус
// (pending/processing), затем исход. Каждый шаг логируется отдельным событием.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:       {PaymentStatusPending, PaymentStatusCancelled},
	PaymentStatusPending:       {PaymentStatusAuthorized, PaymentStatusFailed},
	PaymentStatusAuthorized:    {PaymentStatusProcessing, PaymentStatusCancelled},
	PaymentStatusProcessing:    {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusSucceeded:     {PaymentStatusRefundPending},
	PaymentStatusRefundPending: {PaymentStatusRefunded},
	// PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded — терминальные
}

// =============================================================================
// Payment — доменная сущность
// =============================================================================

// Payment — платёж в системе. Сумма хранится в минимальных единицах валюты
// (копейки/центы), полный номер карты никогда не сохраняется.
type Payment struct {
	ID            string        // ID платежа (pay_<uuid>)
	Amount        int64         // Сумма в минимальных единицах
	Currency      string        // ISO 4217 код валюты (верхний регистр)
	Status        PaymentStatus // Текущий статус

	// Маскированные данные карты
	CardLast4    string // Последние 4 цифры номера
	CardBrand    string // Платёжная система (card, mastercard, amex, ...)
	CardExpMonth int    // Месяц истечения срока
	CardExpYear  int    // Год истечения срока

	// Данные покупателя
	CustomerEmail string
	CustomerName  string
	Description   string
	Metadata      map[string]any

	// AuthorizationCode заполняется только при успешной авторизации.
	AuthorizationCode string

	// ErrorMessage заполняется только на пути отказа.
	// Установленный при создании (невалидная карта) — детерминированный
	// отказ при авторизации.
	ErrorMessage string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	AuthorizedAt *time.Time // Устанавливается один раз при авторизации
	CapturedAt   *time.Time // Устанавливается один раз при capture
}

// NewPaymentID генерирует ID платежа в формате pay_<uuid-hex>.
func NewPaymentID() string {
	return newID("pay")
}

// newID генерирует префиксированный идентификатор из UUID без дефисов.
func newID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (p *Payment) CanTransitionTo(newStatus PaymentStatus) bool {
	allowed, ok := allowedTransitions[p.Status]
	if !ok {
		return false // Терминальное состояние
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новое состояние.
func (p *Payment) TransitionTo(newStatus PaymentStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return nil
}

// BeginAuthorization переводит платёж в PENDING (авторизация запрошена).
func (p *Payment) BeginAuthorization() error {
	return p.TransitionTo(PaymentStatusPending)
}

// Authorize завершает авторизацию: резервирует средства и сохраняет код
// авторизации от карточной сети.
func (p *Payment) Authorize(authCode string) error {
	if err := p.TransitionTo(PaymentStatusAuthorized); err != nil {
		return err
	}
	now := time.Now()
	p.AuthorizationCode = authCode
	p.AuthorizedAt = &now
	return nil
}

// BeginCapture переводит платёж в PROCESSING (capture запрошен).
func (p *Payment) BeginCapture() error {
	return p.TransitionTo(PaymentStatusProcessing)
}

// Succeed завершает capture: средства списаны.
func (p *Payment) Succeed() error {
	if err := p.TransitionTo(PaymentStatusSucceeded); err != nil {
		return err
	}
	now := time.Now()
	p.CapturedAt = &now
	return nil
}

// Fail помечает платёж как неудачный с указанием причины.
// Если причина уже установлена (невалидная карта при создании) —
// исходная причина сохраняется.
func (p *Payment) Fail(reason string) error {
	if err := p.TransitionTo(PaymentStatusFailed); err != nil {
		return err
	}
	if p.ErrorMessage == "" {
		p.ErrorMessage = reason
	}
	return nil
}

// Cancel отменяет платёж до capture и снимает резерв средств.
func (p *Payment) Cancel() error {
	return p.TransitionTo(PaymentStatusCancelled)
}

// BeginRefund переводит платёж в REFUND_PENDING (возврат инициирован).
func (p *Payment) BeginRefund() error {
	return p.TransitionTo(PaymentStatusRefundPending)
}

// CompleteRefund завершает возврат средств.
// Единственный легальный выход из REFUND_PENDING — REFUNDED: при сбое
// обработки возврата платёж остаётся в REFUND_PENDING до ручного разбора.
func (p *Payment) CompleteRefund() error {
	return p.TransitionTo(PaymentStatusRefunded)
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() error {
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	if len(p.Currency) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}
