package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"example.com/payment-service/internal/domain"
)

// RefundRepository определяет интерфейс для работы с возвратами в БД.
type RefundRepository interface {
	// Create создаёт новый возврат.
	Create(ctx context.Context, refund *domain.Refund) error

	// GetByID возвращает возврат по ID.
	GetByID(ctx context.Context, refundID string) (*domain.Refund, error)

	// Update обновляет статус и processed_at возврата.
	Update(ctx context.Context, refund *domain.Refund) error
}

// =============================================================================
// GORM модель
// =============================================================================

// RefundModel — GORM модель для таблицы refunds.
type RefundModel struct {
	ID          string     `gorm:"column:id;type:varchar(40);primaryKey"`
	PaymentID   string     `gorm:"column:payment_id;type:varchar(40);not null;index"`
	Amount      int64      `gorm:"column:amount;not null"`
	Reason      string     `gorm:"column:reason;type:text"`
	Status      string     `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
}

// TableName возвращает имя таблицы в БД.
func (RefundModel) TableName() string {
	return "refunds"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *RefundModel) toDomain() *domain.Refund {
	return &domain.Refund{
		ID:          m.ID,
		PaymentID:   m.PaymentID,
		Amount:      m.Amount,
		Reason:      m.Reason,
		Status:      domain.RefundStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

// refundModelFromDomain конвертирует доменную сущность в GORM модель.
func refundModelFromDomain(r *domain.Refund) *RefundModel {
	return &RefundModel{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// refundRepository — GORM реализация RefundRepository.
type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository создаёт новый репозиторий возвратов.
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

// Create создаёт новый возврат.
func (r *refundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	model := refundModelFromDomain(refund)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	refund.CreatedAt = model.CreatedAt
	return nil
}

// GetByID возвращает возврат по ID.
func (r *refundRepository) GetByID(ctx context.Context, id string) (*domain.Refund, error) {
	var model RefundModel

	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRefundNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// Update обновляет статус возврата.
func (r *refundRepository) Update(ctx context.Context, refund *domain.Refund) error {
	model := refundModelFromDomain(refund)

	result := r.db.WithContext(ctx).
		Model(&RefundModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":       model.Status,
			"processed_at": model.ProcessedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrRefundNotFound
	}

	return nil
}
