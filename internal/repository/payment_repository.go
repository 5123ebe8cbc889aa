// Package repository содержит реализацию доступа к данным для Payment Service.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"example.com/payment-service/internal/domain"
)

// PaymentRepository определяет интерфейс для работы с платежами в БД.
type PaymentRepository interface {
	// CreateWithEvent атомарно создаёт платёж и первое событие аудита.
	CreateWithEvent(ctx context.Context, payment *domain.Payment, event *domain.PaymentEvent) error

	// GetByID возвращает платёж по ID.
	GetByID(ctx context.Context, paymentID string) (*domain.Payment, error)

	// UpdateWithEvent атомарно применяет переход состояния и добавляет событие.
	// Запись обновляется только если её текущий статус равен from
	// (compare-and-write): при проигрыше конкурентной операции возвращает
	// ErrInvalidTransition, при отсутствии записи — ErrPaymentNotFound.
	UpdateWithEvent(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus, event *domain.PaymentEvent) error
}

// =============================================================================
// GORM модель
// =============================================================================

// PaymentModel — GORM модель для таблицы payments.
type PaymentModel struct {
	ID                string     `gorm:"column:id;type:varchar(40);primaryKey"`
	Amount            int64      `gorm:"column:amount;not null"`
	Currency          string     `gorm:"column:currency;type:varchar(3);not null"`
	Status            string     `gorm:"column:status;type:varchar(20);not null;index"`
	CardLast4         string     `gorm:"column:card_last4;type:varchar(4)"`
	CardBrand         string     `gorm:"column:card_brand;type:varchar(20)"`
	CardExpMonth      int        `gorm:"column:card_exp_month"`
	CardExpYear       int        `gorm:"column:card_exp_year"`
	CustomerEmail     string     `gorm:"column:customer_email;type:varchar(255)"`
	CustomerName      string     `gorm:"column:customer_name;type:varchar(255)"`
	Description       string     `gorm:"column:description;type:text"`
	Metadata          string     `gorm:"column:metadata;type:json"`
	AuthorizationCode string     `gorm:"column:authorization_code;type:varchar(12)"`
	ErrorMessage      string     `gorm:"column:error_message;type:text"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
	AuthorizedAt      *time.Time `gorm:"column:authorized_at"`
	CapturedAt        *time.Time `gorm:"column:captured_at"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentModel) TableName() string {
	return "payments"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PaymentModel) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:                m.ID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            domain.PaymentStatus(m.Status),
		CardLast4:         m.CardLast4,
		CardBrand:         m.CardBrand,
		CardExpMonth:      m.CardExpMonth,
		CardExpYear:       m.CardExpYear,
		CustomerEmail:     m.CustomerEmail,
		CustomerName:      m.CustomerName,
		Description:       m.Description,
		Metadata:          unmarshalJSONMap(m.Metadata),
		AuthorizationCode: m.AuthorizationCode,
		ErrorMessage:      m.ErrorMessage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		AuthorizedAt:      m.AuthorizedAt,
		CapturedAt:        m.CapturedAt,
	}
}

// paymentModelFromDomain конвертирует доменную сущность в GORM модель.
func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                p.ID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		CardLast4:         p.CardLast4,
		CardBrand:         p.CardBrand,
		CardExpMonth:      p.CardExpMonth,
		CardExpYear:       p.CardExpYear,
		CustomerEmail:     p.CustomerEmail,
		CustomerName:      p.CustomerName,
		Description:       p.Description,
		Metadata:          marshalJSONMap(p.Metadata),
		AuthorizationCode: p.AuthorizationCode,
		ErrorMessage:      p.ErrorMessage,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		AuthorizedAt:      p.AuthorizedAt,
		CapturedAt:        p.CapturedAt,
	}
}

// marshalJSONMap сериализует map в JSON для хранения в БД.
func marshalJSONMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// unmarshalJSONMap десериализует JSON из БД. Невалидный JSON
// превращается в пустую map — журнал важнее падения чтения.
func unmarshalJSONMap(s string) map[string]any {
	m := map[string]any{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// paymentRepository — GORM реализация PaymentRepository.
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт новый репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// CreateWithEvent атомарно создаёт платёж и событие payment.created.
func (r *paymentRepository) CreateWithEvent(ctx context.Context, payment *domain.Payment, event *domain.PaymentEvent) error {
	model := paymentModelFromDomain(payment)
	model.UpdatedAt = time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return insertEvent(tx, event)
	})
	if err != nil {
		return err
	}

	// Синхронизируем timestamps с записанными в БД
	payment.CreatedAt = model.CreatedAt
	payment.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID возвращает платёж по ID.
func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateWithEvent применяет переход состояния с guard по исходному статусу.
// Переход и событие пишутся в одной транзакции: либо записаны оба,
// либо ни один — одно событие на каждый переход.
func (r *paymentRepository) UpdateWithEvent(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus, event *domain.PaymentEvent) error {
	model := paymentModelFromDomain(payment)
	model.UpdatedAt = time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PaymentModel{}).
			Where("id = ? AND status = ?", model.ID, string(from)).
			Updates(map[string]interface{}{
				"status":             model.Status,
				"authorization_code": model.AuthorizationCode,
				"error_message":      model.ErrorMessage,
				"authorized_at":      model.AuthorizedAt,
				"captured_at":        model.CapturedAt,
				"updated_at":         model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}

		// Ноль затронутых строк: либо платежа нет, либо конкурентная
		// операция успела изменить статус первой.
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&PaymentModel{}).
				Where("id = ?", model.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrPaymentNotFound
			}
			return domain.ErrInvalidTransition
		}

		return insertEvent(tx, event)
	})
	if err != nil {
		return err
	}

	payment.UpdatedAt = model.UpdatedAt
	return nil
}
