package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// State Machine тесты
// =============================================================================

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   PaymentStatus
		terminal bool
	}{
		{PaymentStatusCreated, false},
		{PaymentStatusPending, false},
		{PaymentStatusAuthorized, false},
		{PaymentStatusProcessing, false},
		{PaymentStatusSucceeded, false}, // SUCCEEDED не терминальный — возможен возврат
		{PaymentStatusRefundPending, false},
		{PaymentStatusFailed, true},
		{PaymentStatusCancelled, true},
		{PaymentStatusRefunded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestPayment_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name      string
		from      PaymentStatus
		to        PaymentStatus
		canChange bool
	}{
		// Из CREATED
		{"created -> pending", PaymentStatusCreated, PaymentStatusPending, true},
		{"created -> cancelled", PaymentStatusCreated, PaymentStatusCancelled, true},
		{"created -> authorized", PaymentStatusCreated, PaymentStatusAuthorized, false},
		{"created -> succeeded", PaymentStatusCreated, PaymentStatusSucceeded, false},

		// Из PENDING
		{"pending -> authorized", PaymentStatusPending, PaymentStatusAuthorized, true},
		{"pending -> failed", PaymentStatusPending, PaymentStatusFailed, true},
		{"pending -> cancelled", PaymentStatusPending, PaymentStatusCancelled, false},

		// Из AUTHORIZED
		{"authorized -> processing", PaymentStatusAuthorized, PaymentStatusProcessing, true},
		{"authorized -> cancelled", PaymentStatusAuthorized, PaymentStatusCancelled, true},
		{"authorized -> succeeded", PaymentStatusAuthorized, PaymentStatusSucceeded, false},

		// Из PROCESSING
		{"processing -> succeeded", PaymentStatusProcessing, PaymentStatusSucceeded, true},
		{"processing -> failed", PaymentStatusProcessing, PaymentStatusFailed, true},
		{"processing -> cancelled", PaymentStatusProcessing, PaymentStatusCancelled, false},

		// Возврат
		{"succeeded -> refund_pending", PaymentStatusSucceeded, PaymentStatusRefundPending, true},
		{"succeeded -> refunded", PaymentStatusSucceeded, PaymentStatusRefunded, false},
		{"refund_pending -> refunded", PaymentStatusRefundPending, PaymentStatusRefunded, true},
		{"refund_pending -> succeeded", PaymentStatusRefundPending, PaymentStatusSucceeded, false},

		// Из терминальных состояний
		{"failed -> любой", PaymentStatusFailed, PaymentStatusPending, false},
		{"cancelled -> любой", PaymentStatusCancelled, PaymentStatusPending, false},
		{"refunded -> любой", PaymentStatusRefunded, PaymentStatusRefundPending, false},

		// Переход в то же состояние запрещён
		{"pending -> pending", PaymentStatusPending, PaymentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{Status: tt.from}
			assert.Equal(t, tt.canChange, p.CanTransitionTo(tt.to))
		})
	}
}

func TestPayment_TransitionTo(t *testing.T) {
	t.Run("успешный переход обновляет updated_at", func(t *testing.T) {
		p := newTestPayment(PaymentStatusCreated)
		before := p.UpdatedAt

		err := p.TransitionTo(PaymentStatusPending)

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusPending, p.Status)
		assert.True(t, !p.UpdatedAt.Before(before))
	})

	t.Run("недопустимый переход возвращает ErrInvalidTransition", func(t *testing.T) {
		p := newTestPayment(PaymentStatusCreated)

		err := p.TransitionTo(PaymentStatusSucceeded)

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusCreated, p.Status) // Статус не изменился
	})
}

func TestPayment_Authorize(t *testing.T) {
	t.Run("успешная авторизация из PENDING", func(t *testing.T) {
		p := newTestPayment(PaymentStatusPending)

		err := p.Authorize("AUTH42")

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusAuthorized, p.Status)
		assert.Equal(t, "AUTH42", p.AuthorizationCode)
		require.NotNil(t, p.AuthorizedAt)
	})

	t.Run("ошибка из CREATED — нужен BeginAuthorization", func(t *testing.T) {
		p := newTestPayment(PaymentStatusCreated)

		err := p.Authorize("AUTH42")

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Empty(t, p.AuthorizationCode)
		assert.Nil(t, p.AuthorizedAt)
	})
}

func TestPayment_Succeed(t *testing.T) {
	t.Run("успешный capture из PROCESSING", func(t *testing.T) {
		p := newTestPayment(PaymentStatusProcessing)

		err := p.Succeed()

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusSucceeded, p.Status)
		require.NotNil(t, p.CapturedAt)
	})

	t.Run("ошибка из AUTHORIZED — нужен BeginCapture", func(t *testing.T) {
		p := newTestPayment(PaymentStatusAuthorized)

		err := p.Succeed()

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Nil(t, p.CapturedAt)
	})
}

func TestPayment_Fail(t *testing.T) {
	t.Run("отказ из PENDING с причиной", func(t *testing.T) {
		p := newTestPayment(PaymentStatusPending)

		err := p.Fail("Authorization declined by card issuer")

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusFailed, p.Status)
		assert.Equal(t, "Authorization declined by card issuer", p.ErrorMessage)
	})

	t.Run("ранее установленная причина сохраняется", func(t *testing.T) {
		p := newTestPayment(PaymentStatusPending)
		p.ErrorMessage = "Card declined by issuer" // установлена при создании

		err := p.Fail("Authorization declined by card issuer")

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusFailed, p.Status)
		assert.Equal(t, "Card declined by issuer", p.ErrorMessage)
	})

	t.Run("ошибка из SUCCEEDED", func(t *testing.T) {
		p := newTestPayment(PaymentStatusSucceeded)

		err := p.Fail("тест")

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusSucceeded, p.Status)
	})
}

func TestPayment_Cancel(t *testing.T) {
	t.Run("отмена из CREATED", func(t *testing.T) {
		p := newTestPayment(PaymentStatusCreated)
		require.NoError(t, p.Cancel())
		assert.Equal(t, PaymentStatusCancelled, p.Status)
	})

	t.Run("отмена из AUTHORIZED снимает резерв", func(t *testing.T) {
		p := newTestPayment(PaymentStatusAuthorized)
		require.NoError(t, p.Cancel())
		assert.Equal(t, PaymentStatusCancelled, p.Status)
	})

	t.Run("ошибка отмены из SUCCEEDED — только возврат", func(t *testing.T) {
		p := newTestPayment(PaymentStatusSucceeded)
		require.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
	})

	t.Run("ошибка отмены из PROCESSING", func(t *testing.T) {
		p := newTestPayment(PaymentStatusProcessing)
		require.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
	})
}

func TestPayment_RefundFlow(t *testing.T) {
	p := newTestPayment(PaymentStatusSucceeded)

	require.NoError(t, p.BeginRefund())
	assert.Equal(t, PaymentStatusRefundPending, p.Status)

	require.NoError(t, p.CompleteRefund())
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.True(t, p.Status.IsTerminal())
}

// =============================================================================
// Валидация и генерация ID
// =============================================================================

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payment *Payment
		wantErr error
	}{
		{
			name:    "валидный платёж",
			payment: newTestPayment(PaymentStatusCreated),
			wantErr: nil,
		},
		{
			name:    "нулевая сумма",
			payment: &Payment{Amount: 0, Currency: "USD"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "отрицательная сумма",
			payment: &Payment{Amount: -100, Currency: "USD"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "пустая валюта",
			payment: &Payment{Amount: 1000},
			wantErr: ErrInvalidCurrency,
		},
		{
			name:    "валюта не из трёх букв",
			payment: &Payment{Amount: 1000, Currency: "RUBL"},
			wantErr: ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payment.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPaymentID(t *testing.T) {
	id := NewPaymentID()

	assert.True(t, strings.HasPrefix(id, "pay_"))
	assert.Len(t, id, len("pay_")+32) // uuid в hex — 32 символа

	// Идентификаторы уникальны
	assert.NotEqual(t, id, NewPaymentID())
}

// =============================================================================
// Helpers
// =============================================================================

// newTestPayment создаёт тестовый платёж.
func newTestPayment(status PaymentStatus) *Payment {
	return &Payment{
		ID:           NewPaymentID(),
		Amount:       4999, // 49.99 USD
		Currency:     "USD",
		Status:       status,
		CardLast4:    "4242",
		CardBrand:    "card",
		CardExpMonth: 12,
		CardExpYear:  2030,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
