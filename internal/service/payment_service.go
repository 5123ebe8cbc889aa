// Package service содержит бизнес-логику Payment Service —
// state machine жизненного цикла платежа.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"example.com/payment-service/internal/card"
	"example.com/payment-service/internal/domain"
	"example.com/payment-service/internal/repository"
	"example.com/payment-service/internal/simulator"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/metrics"
)

// =============================================================================
// Конфигурация
// =============================================================================

const (
	// lockKeyPrefix — префикс ключей per-payment блокировки в Redis.
	lockKeyPrefix = "payment:lock:"

	// lockTTL — время жизни блокировки (страховка от зависшего владельца).
	lockTTL = 10 * time.Second

	// lockRetryInterval / lockRetryAttempts — параметры ожидания блокировки.
	lockRetryInterval = 50 * time.Millisecond
	lockRetryAttempts = 40
)

// Причины отказа симулируемой карточной сети.
const (
	reasonAuthorizationDeclined = "Authorization declined by card issuer"
	reasonCaptureFailed         = "Capture failed - insufficient funds"
)

// Config — настройки state machine.
type Config struct {
	// AuthorizeSuccessRate — вероятность успешной авторизации (0..1).
	AuthorizeSuccessRate float64

	// CaptureSuccessRate — вероятность успешного capture (0..1).
	CaptureSuccessRate float64
}

// DefaultConfig возвращает вероятности по умолчанию.
func DefaultConfig() Config {
	return Config{
		AuthorizeSuccessRate: simulator.DefaultAuthorizeSuccessRate,
		CaptureSuccessRate:   simulator.DefaultCaptureSuccessRate,
	}
}

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// CardInput — карточные данные в запросе на создание платежа.
// Полный номер живёт только в рамках вызова CreatePayment.
type CardInput struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// CreatePaymentRequest — запрос на создание платёжного намерения.
type CreatePaymentRequest struct {
	Amount        int64  // Сумма в минимальных единицах
	Currency      string // Трёхбуквенный код валюты
	Card          CardInput
	CustomerEmail string
	CustomerName  string
	Description   string
	Metadata      map[string]any
}

// PaymentService — интерфейс state machine платежей.
// Каждая операция — атомарный read-modify-write одного платежа
// плюс запись событий аудита; возвращает снапшот сущности или
// типизированную ошибку. Симулированный decline — не ошибка:
// операция возвращает снапшот со статусом failed.
type PaymentService interface {
	// CreatePayment создаёт платёжное намерение.
	// Платёж создаётся всегда, даже при невалидной карте — причина
	// отказа записывается в error_message, а сам отказ наступает
	// детерминированно при авторизации.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)

	// AuthorizePayment запрашивает авторизацию (резерв средств).
	// Два отдельных перехода: created -> pending -> authorized|failed,
	// каждый со своим событием аудита.
	AuthorizePayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	// CapturePayment списывает зарезервированные средства.
	// amount == nil означает полную сумму платежа.
	CapturePayment(ctx context.Context, paymentID string, amount *int64) (*domain.Payment, error)

	// CancelPayment отменяет платёж до capture. Детерминированная операция.
	CancelPayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	// CreateRefund возвращает средства по успешному платежу.
	// amount == nil означает полную сумму платежа.
	CreateRefund(ctx context.Context, paymentID string, amount *int64, reason string) (*domain.Refund, error)

	// GetPayment возвращает платёж по ID.
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	// GetPaymentEvents возвращает журнал аудита платежа
	// в порядке создания событий.
	GetPaymentEvents(ctx context.Context, paymentID string) ([]*domain.PaymentEvent, error)
}

// =============================================================================
// Реализация сервиса
// =============================================================================

// paymentService — реализация PaymentService.
type paymentService struct {
	payments repository.PaymentRepository
	refunds  repository.RefundRepository
	events   repository.EventRepository
	redis    *redis.Client
	sim      simulator.OutcomeSimulator
	cfg      Config
}

// NewPaymentService создаёт state machine платежей.
// Симулятор исходов передаётся явно — тесты подставляют
// детерминированную реализацию.
func NewPaymentService(
	payments repository.PaymentRepository,
	refunds repository.RefundRepository,
	events repository.EventRepository,
	redisClient *redis.Client,
	sim simulator.OutcomeSimulator,
	cfg Config,
) PaymentService {
	return &paymentService{
		payments: payments,
		refunds:  refunds,
		events:   events,
		redis:    redisClient,
		sim:      sim,
		cfg:      cfg,
	}
}

// CreatePayment создаёт платёжное намерение.
func (s *paymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(req.Currency)
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	// Валидируем карту. Результат не прерывает создание:
	// причина отказа сохраняется на сущности.
	valid, reason := card.Validate(req.Card.Number, req.Card.ExpMonth, req.Card.ExpYear, req.Card.CVC)

	payment := &domain.Payment{
		ID:            domain.NewPaymentID(),
		Amount:        req.Amount,
		Currency:      currency,
		Status:        domain.PaymentStatusCreated,
		CardLast4:     card.Last4(req.Card.Number),
		CardBrand:     card.Brand(req.Card.Number),
		CardExpMonth:  req.Card.ExpMonth,
		CardExpYear:   req.Card.ExpYear,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Description:   req.Description,
		Metadata:      req.Metadata,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if !valid {
		payment.ErrorMessage = reason
	}

	if err := payment.Validate(); err != nil {
		return nil, err
	}

	event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentCreated, payment.Status, map[string]any{
		"amount":   payment.Amount,
		"currency": payment.Currency,
	})

	if err := s.payments.CreateWithEvent(ctx, payment, event); err != nil {
		log.Error().Err(err).Msg("Ошибка создания платежа")
		return nil, fmt.Errorf("ошибка создания платежа: %w", err)
	}

	log.Info().
		Str("payment_id", payment.ID).
		Int64("amount", payment.Amount).
		Str("currency", payment.Currency).
		Str("card_brand", payment.CardBrand).
		Bool("card_valid", valid).
		Msg("Платёж создан")

	return payment, nil
}

// AuthorizePayment запрашивает авторизацию у симулируемой карточной сети.
func (s *paymentService) AuthorizePayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	var payment *domain.Payment
	err := s.withPaymentLock(ctx, paymentID, func() error {
		var err error
		payment, err = s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		if payment.Status != domain.PaymentStatusCreated {
			return domain.ErrInvalidTransition
		}

		// Фаза 1: created -> pending, событие authorization_requested.
		if err := payment.BeginAuthorization(); err != nil {
			return err
		}
		requested := domain.NewPaymentEvent(payment.ID, domain.EventAuthorizationRequested, payment.Status, nil)
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusCreated, requested); err != nil {
			return err
		}

		// Фаза 2: исход авторизации. Платёж с невалидной картой
		// отклоняется детерминированно с исходной причиной;
		// остальные — через симулятор.
		authorized := payment.ErrorMessage == "" && s.sim.Decide(s.cfg.AuthorizeSuccessRate)

		if authorized {
			code := generateAuthCode()
			if err := payment.Authorize(code); err != nil {
				return err
			}
			event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentAuthorized, payment.Status, map[string]any{
				"auth_code": code,
			})
			if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusPending, event); err != nil {
				return err
			}

			metrics.RecordPaymentOutcome("authorize", "authorized")
			log.Info().
				Str("payment_id", payment.ID).
				Str("auth_code", code).
				Msg("Платёж авторизован")
			return nil
		}

		if err := payment.Fail(reasonAuthorizationDeclined); err != nil {
			return err
		}
		event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentFailed, payment.Status, map[string]any{
			"reason": payment.ErrorMessage,
		})
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusPending, event); err != nil {
			return err
		}

		metrics.RecordPaymentOutcome("authorize", "declined")
		log.Info().
			Str("payment_id", payment.ID).
			Str("reason", payment.ErrorMessage).
			Msg("Авторизация отклонена")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

// CapturePayment списывает зарезервированные средства.
func (s *paymentService) CapturePayment(ctx context.Context, paymentID string, amount *int64) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	var payment *domain.Payment
	err := s.withPaymentLock(ctx, paymentID, func() error {
		var err error
		payment, err = s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		if payment.Status != domain.PaymentStatusAuthorized {
			return domain.ErrInvalidTransition
		}

		captureAmount, err := resolveAmount(amount, payment.Amount)
		if err != nil {
			return err
		}

		// Фаза 1: authorized -> processing, событие capture_requested.
		if err := payment.BeginCapture(); err != nil {
			return err
		}
		requested := domain.NewPaymentEvent(payment.ID, domain.EventCaptureRequested, payment.Status, map[string]any{
			"amount": captureAmount,
		})
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusAuthorized, requested); err != nil {
			return err
		}

		// Фаза 2: исход capture.
		if s.sim.Decide(s.cfg.CaptureSuccessRate) {
			if err := payment.Succeed(); err != nil {
				return err
			}
			event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentSucceeded, payment.Status, map[string]any{
				"amount": captureAmount,
			})
			if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusProcessing, event); err != nil {
				return err
			}

			metrics.RecordPaymentOutcome("capture", "succeeded")
			log.Info().
				Str("payment_id", payment.ID).
				Int64("amount", captureAmount).
				Msg("Платёж завершён")
			return nil
		}

		if err := payment.Fail(reasonCaptureFailed); err != nil {
			return err
		}
		event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentFailed, payment.Status, map[string]any{
			"reason": payment.ErrorMessage,
		})
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusProcessing, event); err != nil {
			return err
		}

		metrics.RecordPaymentOutcome("capture", "failed")
		log.Info().
			Str("payment_id", payment.ID).
			Str("reason", payment.ErrorMessage).
			Msg("Capture не прошёл")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

// CancelPayment отменяет платёж и снимает резерв средств.
func (s *paymentService) CancelPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	var payment *domain.Payment
	err := s.withPaymentLock(ctx, paymentID, func() error {
		var err error
		payment, err = s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		from := payment.Status
		if err := payment.Cancel(); err != nil {
			return err
		}

		event := domain.NewPaymentEvent(payment.ID, domain.EventPaymentCancelled, payment.Status, nil)
		if err := s.payments.UpdateWithEvent(ctx, payment, from, event); err != nil {
			return err
		}

		log.Info().
			Str("payment_id", payment.ID).
			Str("from", string(from)).
			Msg("Платёж отменён")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

// CreateRefund создаёт и синхронно обрабатывает возврат средств.
func (s *paymentService) CreateRefund(ctx context.Context, paymentID string, amount *int64, reason string) (*domain.Refund, error) {
	log := logger.Ctx(ctx)

	var refund *domain.Refund
	err := s.withPaymentLock(ctx, paymentID, func() error {
		payment, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		if payment.Status != domain.PaymentStatusSucceeded {
			return domain.ErrInvalidTransition
		}

		refundAmount, err := resolveAmount(amount, payment.Amount)
		if err != nil {
			return err
		}

		refund = &domain.Refund{
			ID:        domain.NewRefundID(),
			PaymentID: payment.ID,
			Amount:    refundAmount,
			Reason:    reason,
			Status:    domain.RefundStatusPending,
			CreatedAt: time.Now(),
		}
		if err := s.refunds.Create(ctx, refund); err != nil {
			return fmt.Errorf("ошибка создания возврата: %w", err)
		}

		// succeeded -> refund_pending, событие refund.created.
		if err := payment.BeginRefund(); err != nil {
			return err
		}
		created := domain.NewPaymentEvent(payment.ID, domain.EventRefundCreated, payment.Status, map[string]any{
			"refund_id": refund.ID,
			"amount":    refundAmount,
		})
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusSucceeded, created); err != nil {
			return err
		}

		// Обработка возврата синхронна и детерминированна.
		// При сбое на этом участке платёж остаётся в refund_pending
		// до ручного разбора — отката в succeeded нет.
		if err := refund.MarkSucceeded(); err != nil {
			return err
		}
		if err := s.refunds.Update(ctx, refund); err != nil {
			return fmt.Errorf("ошибка обновления возврата: %w", err)
		}

		if err := payment.CompleteRefund(); err != nil {
			return err
		}
		refunded := domain.NewPaymentEvent(payment.ID, domain.EventPaymentRefunded, payment.Status, map[string]any{
			"refund_id": refund.ID,
			"amount":    refundAmount,
		})
		if err := s.payments.UpdateWithEvent(ctx, payment, domain.PaymentStatusRefundPending, refunded); err != nil {
			return err
		}

		metrics.RecordPaymentOutcome("refund", "succeeded")
		log.Info().
			Str("payment_id", payment.ID).
			Str("refund_id", refund.ID).
			Int64("amount", refundAmount).
			Msg("Возврат средств выполнен")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return refund, nil
}

// GetPayment возвращает платёж по ID.
func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, paymentID)
}

// GetPaymentEvents возвращает журнал аудита платежа.
func (s *paymentService) GetPaymentEvents(ctx context.Context, paymentID string) ([]*domain.PaymentEvent, error) {
	// Несуществующий платёж — NotFound, а не пустой список.
	if _, err := s.payments.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.events.ListForPayment(ctx, paymentID)
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

// resolveAmount возвращает сумму операции: явно переданную либо полную
// сумму платежа. Сумма больше суммы платежа недопустима, равная — валидна.
func resolveAmount(requested *int64, paymentAmount int64) (int64, error) {
	if requested == nil {
		return paymentAmount, nil
	}
	if *requested <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if *requested > paymentAmount {
		return 0, domain.ErrAmountExceeded
	}
	return *requested, nil
}

// withPaymentLock сериализует операции над одним платежом через Redis
// (SETNX + TTL). Блокировка best-effort: при недоступности Redis операция
// выполняется — авторитетная защита это guard по статусу в БД
// (UpdateWithEvent). Не дождавшись блокировки, возвращаем
// ErrInvalidTransition: конкурентная операция ещё выполняется.
func (s *paymentService) withPaymentLock(ctx context.Context, paymentID string, fn func() error) error {
	if s.redis == nil {
		return fn()
	}

	log := logger.Ctx(ctx)
	key := lockKeyPrefix + paymentID
	token := uuid.New().String()

	acquired := false
	for attempt := 0; attempt < lockRetryAttempts; attempt++ {
		ok, err := s.redis.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			// Redis недоступен — продолжаем, БД защитит от гонок
			log.Warn().Err(err).Str("payment_id", paymentID).Msg("Ошибка Redis при захвате блокировки")
			return fn()
		}
		if ok {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	if !acquired {
		log.Warn().Str("payment_id", paymentID).Msg("Не удалось захватить блокировку платежа")
		return domain.ErrInvalidTransition
	}

	defer func() {
		// Снимаем только свою блокировку (токен совпадает)
		val, err := s.redis.Get(ctx, key).Result()
		if err == nil && val == token {
			_ = s.redis.Del(ctx, key).Err()
		}
	}()

	return fn()
}

// =============================================================================
// Генерация кода авторизации
// =============================================================================

const (
	authCodeLength   = 6
	authCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// authRand — изолированный источник для кодов авторизации.
// rand.Rand не потокобезопасен, поэтому под мьютексом.
var (
	authRandMu sync.Mutex
	authRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// generateAuthCode генерирует код авторизации карточной сети:
// 6 символов, заглавные буквы и цифры.
func generateAuthCode() string {
	authRandMu.Lock()
	defer authRandMu.Unlock()

	code := make([]byte, authCodeLength)
	for i := range code {
		code[i] = authCodeAlphabet[authRand.Intn(len(authCodeAlphabet))]
	}
	return string(code)
}
