package service

import (
	"context"
	"sync"

	"example.com/payment-service/internal/domain"
)

// =============================================================================
// In-memory моки репозиториев (потокобезопасные)
// =============================================================================

// eventLog — общее append-only хранилище событий для моков.
// Seq присваивается монотонно, как autoIncrement в БД.
type eventLog struct {
	mu     sync.Mutex
	seq    uint64
	events []*domain.PaymentEvent
}

func (l *eventLog) append(event *domain.PaymentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	stored := *event
	stored.Seq = l.seq
	l.events = append(l.events, &stored)
}

func (l *eventLog) forPayment(paymentID string) []*domain.PaymentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.PaymentEvent
	for _, e := range l.events {
		if e.PaymentID == paymentID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out
}

func (l *eventLog) afterSeq(afterSeq uint64, limit int) []*domain.PaymentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.PaymentEvent
	for _, e := range l.events {
		if e.Seq > afterSeq {
			copied := *e
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// paymentRepoMock — in-memory реализация PaymentRepository
// с той же CAS-семантикой, что у реального репозитория.
type paymentRepoMock struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	log      *eventLog
}

func newPaymentRepoMock(log *eventLog) *paymentRepoMock {
	return &paymentRepoMock{
		payments: make(map[string]*domain.Payment),
		log:      log,
	}
}

func (m *paymentRepoMock) CreateWithEvent(_ context.Context, payment *domain.Payment, event *domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *payment
	m.payments[payment.ID] = &stored
	m.log.append(event)
	return nil
}

func (m *paymentRepoMock) GetByID(_ context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *paymentRepoMock) UpdateWithEvent(_ context.Context, payment *domain.Payment, from domain.PaymentStatus, event *domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	// Guard по статусу — как UPDATE ... WHERE status = ? в реальном репозитории
	if existing.Status != from {
		return domain.ErrInvalidTransition
	}

	stored := *payment
	m.payments[payment.ID] = &stored
	m.log.append(event)
	return nil
}

// eventRepoMock — реализация EventRepository поверх общего eventLog.
type eventRepoMock struct {
	log *eventLog
}

func (m *eventRepoMock) ListForPayment(_ context.Context, paymentID string) ([]*domain.PaymentEvent, error) {
	return m.log.forPayment(paymentID), nil
}

func (m *eventRepoMock) ListAfterSeq(_ context.Context, afterSeq uint64, limit int) ([]*domain.PaymentEvent, error) {
	return m.log.afterSeq(afterSeq, limit), nil
}

// refundRepoMock — in-memory реализация RefundRepository.
type refundRepoMock struct {
	mu      sync.Mutex
	refunds map[string]*domain.Refund
}

func newRefundRepoMock() *refundRepoMock {
	return &refundRepoMock{refunds: make(map[string]*domain.Refund)}
}

func (m *refundRepoMock) Create(_ context.Context, refund *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *refund
	m.refunds[refund.ID] = &stored
	return nil
}

func (m *refundRepoMock) GetByID(_ context.Context, refundID string) (*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.refunds[refundID]
	if !ok {
		return nil, domain.ErrRefundNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *refundRepoMock) Update(_ context.Context, refund *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refunds[refund.ID]; !ok {
		return domain.ErrRefundNotFound
	}
	stored := *refund
	m.refunds[refund.ID] = &stored
	return nil
}
