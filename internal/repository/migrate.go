package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate создаёт таблицы платежей, событий и возвратов.
// Вызывается при старте сервиса.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PaymentModel{}, &PaymentEventModel{}, &RefundModel{}); err != nil {
		return fmt.Errorf("ошибка миграции схемы: %w", err)
	}
	return nil
}
