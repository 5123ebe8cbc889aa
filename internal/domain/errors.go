// Package domain содержит бизнес-сущности Payment Service.
package domain

import "errors"

// Доменные ошибки Payment Service.
var (
	// ErrPaymentNotFound — платёж не найден.
	ErrPaymentNotFound = errors.New("платёж не найден")

	// ErrRefundNotFound — возврат не найден.
	ErrRefundNotFound = errors.New("возврат не найден")

	// ErrInvalidTransition — недопустимый переход состояния.
	// Возвращается и когда конкурентная операция успела изменить статус первой.
	ErrInvalidTransition = errors.New("недопустимый переход состояния платежа")

	// ErrInvalidAmount — некорректная сумма.
	ErrInvalidAmount = errors.New("сумма должна быть больше нуля")

	// ErrAmountExceeded — сумма capture/refund превышает сумму платежа.
	ErrAmountExceeded = errors.New("сумма превышает сумму платежа")

	// ErrInvalidCurrency — валюта не является трёхбуквенным кодом.
	ErrInvalidCurrency = errors.New("валюта должна быть трёхбуквенным кодом")
)
