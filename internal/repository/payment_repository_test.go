// Package repository содержит unit тесты для репозиториев Payment Service.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/payment-service/internal/domain"
)

// =====================================
// Вспомогательные функции
// =====================================

// setupMockDB создаёт мок базы данных с GORM.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock, func() { _ = db.Close() }
}

// paymentColumns — порядок колонок в SELECT * FROM payments.
func paymentColumns() []string {
	return []string{
		"id", "amount", "currency", "status",
		"card_last4", "card_brand", "card_exp_month", "card_exp_year",
		"customer_email", "customer_name", "description", "metadata",
		"authorization_code", "error_message",
		"created_at", "updated_at", "authorized_at", "captured_at",
	}
}

func paymentRow(id, status string) []driverValue {
	now := time.Now().Truncate(time.Second)
	return []driverValue{
		id, int64(4999), "USD", status,
		"4242", "card", 12, 2030,
		"test@example.com", "Иван Тестов", "Заказ #42", `{"order_id":"ord_1"}`,
		"", "",
		now, now, nil, nil,
	}
}

// driverValue — алиас, чтобы строки таблиц читались компактнее.
type driverValue = driver.Value

func newTestPayment(id string, status domain.PaymentStatus) *domain.Payment {
	now := time.Now().Truncate(time.Second)
	return &domain.Payment{
		ID:            id,
		Amount:        4999,
		Currency:      "USD",
		Status:        status,
		CardLast4:     "4242",
		CardBrand:     "card",
		CardExpMonth:  12,
		CardExpYear:   2030,
		CustomerEmail: "test@example.com",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newTestEvent(paymentID, eventType string, status domain.PaymentStatus) *domain.PaymentEvent {
	return domain.NewPaymentEvent(paymentID, eventType, status, map[string]any{"amount": 4999})
}

// =====================================
// Тесты CreateWithEvent
// =====================================

func TestPaymentRepository_CreateWithEvent(t *testing.T) {
	t.Run("успешное создание платежа и события", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_create_1", domain.PaymentStatusCreated)
		event := newTestEvent(payment.ID, domain.EventPaymentCreated, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_events`")).
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		err := repo.CreateWithEvent(context.Background(), payment, event)

		require.NoError(t, err)
		assert.Equal(t, uint64(7), event.Seq, "Seq должен синхронизироваться из БД")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ошибка вставки платежа откатывает транзакцию", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_create_2", domain.PaymentStatusCreated)
		event := newTestEvent(payment.ID, domain.EventPaymentCreated, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.CreateWithEvent(context.Background(), payment, event)

		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ошибка вставки события откатывает весь платёж", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_create_3", domain.PaymentStatusCreated)
		event := newTestEvent(payment.ID, domain.EventPaymentCreated, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_events`")).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.CreateWithEvent(context.Background(), payment, event)

		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты GetByID
// =====================================

func TestPaymentRepository_GetByID(t *testing.T) {
	selectPayment := "SELECT \\* FROM `payments` WHERE id = \\? ORDER BY `payments`.`id` LIMIT \\?"

	tests := []struct {
		name         string
		paymentID    string
		mockSetup    func(mock sqlmock.Sqlmock, paymentID string)
		expectedErr  error
		checkPayment func(t *testing.T, p *domain.Payment)
	}{
		{
			name:      "успешное получение",
			paymentID: "pay_get_1",
			mockSetup: func(mock sqlmock.Sqlmock, paymentID string) {
				rows := sqlmock.NewRows(paymentColumns()).
					AddRow(paymentRow(paymentID, "authorized")...)
				mock.ExpectQuery(selectPayment).
					WithArgs(paymentID, 1).WillReturnRows(rows)
			},
			expectedErr: nil,
			checkPayment: func(t *testing.T, p *domain.Payment) {
				assert.Equal(t, "pay_get_1", p.ID)
				assert.Equal(t, domain.PaymentStatusAuthorized, p.Status)
				assert.Equal(t, int64(4999), p.Amount)
				assert.Equal(t, "4242", p.CardLast4)
				assert.Equal(t, map[string]any{"order_id": "ord_1"}, p.Metadata,
					"metadata должна десериализоваться из JSON колонки")
			},
		},
		{
			name:      "не найден",
			paymentID: "pay_missing",
			mockSetup: func(mock sqlmock.Sqlmock, paymentID string) {
				rows := sqlmock.NewRows(paymentColumns())
				mock.ExpectQuery(selectPayment).
					WithArgs(paymentID, 1).WillReturnRows(rows)
			},
			expectedErr:  domain.ErrPaymentNotFound,
			checkPayment: nil,
		},
		{
			name:      "ошибка БД",
			paymentID: "pay_get_2",
			mockSetup: func(mock sqlmock.Sqlmock, paymentID string) {
				mock.ExpectQuery(selectPayment).
					WithArgs(paymentID, 1).WillReturnError(sql.ErrConnDone)
			},
			expectedErr:  sql.ErrConnDone,
			checkPayment: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock, cleanup := setupMockDB(t)
			defer cleanup()

			repo := NewPaymentRepository(gormDB)
			tt.mockSetup(mock, tt.paymentID)

			payment, err := repo.GetByID(context.Background(), tt.paymentID)

			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, payment)
			} else {
				require.NoError(t, err)
				require.NotNil(t, payment)
				if tt.checkPayment != nil {
					tt.checkPayment(t, payment)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// =====================================
// Тесты UpdateWithEvent
// =====================================

func TestPaymentRepository_UpdateWithEvent(t *testing.T) {
	t.Run("успешный переход с записью события", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_upd_1", domain.PaymentStatusPending)
		event := newTestEvent(payment.ID, domain.EventAuthorizationRequested, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payments` SET .+ WHERE id = \\? AND status = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_events`")).
			WillReturnResult(sqlmock.NewResult(12, 1))
		mock.ExpectCommit()

		err := repo.UpdateWithEvent(context.Background(), payment, domain.PaymentStatusCreated, event)

		require.NoError(t, err)
		assert.Equal(t, uint64(12), event.Seq)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("платёж отсутствует", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_upd_2", domain.PaymentStatusPending)
		event := newTestEvent(payment.ID, domain.EventAuthorizationRequested, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payments` SET .+ WHERE id = \\? AND status = \\?").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `payments` WHERE id = ?")).
			WithArgs(payment.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectRollback()

		err := repo.UpdateWithEvent(context.Background(), payment, domain.PaymentStatusCreated, event)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("проигрыш конкурентной операции", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_upd_3", domain.PaymentStatusPending)
		event := newTestEvent(payment.ID, domain.EventAuthorizationRequested, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payments` SET .+ WHERE id = \\? AND status = \\?").
			WillReturnResult(sqlmock.NewResult(0, 0))
		// Платёж существует, но его статус уже не равен from.
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `payments` WHERE id = ?")).
			WithArgs(payment.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		err := repo.UpdateWithEvent(context.Background(), payment, domain.PaymentStatusCreated, event)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ошибка вставки события откатывает переход", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		repo := NewPaymentRepository(gormDB)
		payment := newTestPayment("pay_upd_4", domain.PaymentStatusPending)
		event := newTestEvent(payment.ID, domain.EventAuthorizationRequested, payment.Status)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payments` SET .+ WHERE id = \\? AND status = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_events`")).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.UpdateWithEvent(context.Background(), payment, domain.PaymentStatusCreated, event)

		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты конвертации Domain <-> Model
// =====================================

func TestPaymentModel_ToDomain(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	authorizedAt := now.Add(-time.Minute)
	model := &PaymentModel{
		ID:                "pay_model_1",
		Amount:            12050,
		Currency:          "EUR",
		Status:            "authorized",
		CardLast4:         "0005",
		CardBrand:         "amex",
		CardExpMonth:      3,
		CardExpYear:       2031,
		CustomerEmail:     "model@example.com",
		CustomerName:      "Модель",
		Description:       "Описание",
		Metadata:          `{"k":"v"}`,
		AuthorizationCode: "A1B2C3",
		CreatedAt:         now,
		UpdatedAt:         now,
		AuthorizedAt:      &authorizedAt,
	}

	p := model.toDomain()

	assert.Equal(t, model.ID, p.ID)
	assert.Equal(t, model.Amount, p.Amount)
	assert.Equal(t, domain.PaymentStatusAuthorized, p.Status)
	assert.Equal(t, model.CardLast4, p.CardLast4)
	assert.Equal(t, model.CardBrand, p.CardBrand)
	assert.Equal(t, model.AuthorizationCode, p.AuthorizationCode)
	assert.Equal(t, map[string]any{"k": "v"}, p.Metadata)
	require.NotNil(t, p.AuthorizedAt)
	assert.Equal(t, authorizedAt, *p.AuthorizedAt)
	assert.Nil(t, p.CapturedAt)
}

func TestPaymentModelFromDomain(t *testing.T) {
	p := newTestPayment("pay_model_2", domain.PaymentStatusSucceeded)
	p.Metadata = map[string]any{"order_id": "ord_9"}

	model := paymentModelFromDomain(p)

	assert.Equal(t, p.ID, model.ID)
	assert.Equal(t, "succeeded", model.Status)
	assert.Equal(t, p.Amount, model.Amount)
	assert.JSONEq(t, `{"order_id":"ord_9"}`, model.Metadata)
}

func TestMarshalJSONMap(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected string
	}{
		{"nil map", nil, "{}"},
		{"пустая map", map[string]any{}, "{}"},
		{"обычная map", map[string]any{"a": "b"}, `{"a":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, marshalJSONMap(tt.input))
		})
	}
}

func TestUnmarshalJSONMap(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]any
	}{
		{"пустая строка", "", map[string]any{}},
		{"пустой объект", "{}", map[string]any{}},
		{"обычный объект", `{"a":"b"}`, map[string]any{"a": "b"}},
		{"невалидный JSON", "{broken", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, unmarshalJSONMap(tt.input))
		})
	}
}

func TestPaymentModel_TableName(t *testing.T) {
	assert.Equal(t, "payments", PaymentModel{}.TableName())
}
