package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"example.com/payment-service/internal/domain"
)

// EventRepository — доступ к журналу аудита. Только чтение и вставка:
// UPDATE и DELETE для событий не существуют по построению.
type EventRepository interface {
	// ListForPayment возвращает события платежа в порядке создания.
	ListForPayment(ctx context.Context, paymentID string) ([]*domain.PaymentEvent, error)

	// ListAfterSeq возвращает события с seq строго больше указанного,
	// в порядке возрастания. Используется relay-воркером.
	ListAfterSeq(ctx context.Context, afterSeq uint64, limit int) ([]*domain.PaymentEvent, error)
}

// =============================================================================
// GORM модель
// =============================================================================

// PaymentEventModel — GORM модель для таблицы payment_events.
type PaymentEventModel struct {
	// Seq — автоинкрементный ключ; задаёт порядок создания
	// и служит чекпоинтом для relay.
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID        string    `gorm:"column:id;type:varchar(40);not null;uniqueIndex"`
	PaymentID string    `gorm:"column:payment_id;type:varchar(40);not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(64);not null"`
	Status    string    `gorm:"column:status;type:varchar(20);not null"`
	Data      string    `gorm:"column:data;type:json"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentEventModel) TableName() string {
	return "payment_events"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PaymentEventModel) toDomain() *domain.PaymentEvent {
	return &domain.PaymentEvent{
		Seq:       m.Seq,
		ID:        m.ID,
		PaymentID: m.PaymentID,
		EventType: m.EventType,
		Status:    domain.PaymentStatus(m.Status),
		Data:      unmarshalJSONMap(m.Data),
		CreatedAt: m.CreatedAt,
	}
}

// eventModelFromDomain конвертирует доменную сущность в GORM модель.
func eventModelFromDomain(e *domain.PaymentEvent) *PaymentEventModel {
	return &PaymentEventModel{
		ID:        e.ID,
		PaymentID: e.PaymentID,
		EventType: e.EventType,
		Status:    string(e.Status),
		Data:      marshalJSONMap(e.Data),
		CreatedAt: e.CreatedAt,
	}
}

// insertEvent вставляет событие внутри транзакции перехода состояния.
// Вызывается из paymentRepository — событие и переход либо фиксируются
// вместе, либо откатываются вместе.
func insertEvent(tx *gorm.DB, event *domain.PaymentEvent) error {
	model := eventModelFromDomain(event)
	if err := tx.Create(model).Error; err != nil {
		return err
	}
	event.Seq = model.Seq
	event.CreatedAt = model.CreatedAt
	return nil
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// eventRepository — GORM реализация EventRepository.
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository создаёт новый репозиторий событий.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// ListForPayment возвращает события платежа, упорядоченные по seq.
func (r *eventRepository) ListForPayment(ctx context.Context, paymentID string) ([]*domain.PaymentEvent, error) {
	var models []PaymentEventModel

	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	events := make([]*domain.PaymentEvent, 0, len(models))
	for _, m := range models {
		events = append(events, m.toDomain())
	}

	return events, nil
}

// ListAfterSeq возвращает пачку событий после чекпоинта.
func (r *eventRepository) ListAfterSeq(ctx context.Context, afterSeq uint64, limit int) ([]*domain.PaymentEvent, error) {
	var models []PaymentEventModel

	if err := r.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	events := make([]*domain.PaymentEvent, 0, len(models))
	for _, m := range models {
		events = append(events, m.toDomain())
	}

	return events, nil
}
