// Package simulator содержит источник вероятностных решений для
// симуляции ответов карточной сети (авторизация, capture).
// В реальной системе на этом месте был бы вызов платёжного провайдера.
package simulator

import (
	"math/rand"
	"sync"
	"time"
)

// Вероятности успеха по умолчанию. Переопределяются конфигурацией.
const (
	// DefaultAuthorizeSuccessRate — доля успешных авторизаций.
	DefaultAuthorizeSuccessRate = 0.90

	// DefaultCaptureSuccessRate — доля успешных capture.
	DefaultCaptureSuccessRate = 0.95
)

// OutcomeSimulator принимает решение об исходе операции.
// Внедряется в PaymentService при создании, чтобы тесты могли
// подставить детерминированную реализацию.
type OutcomeSimulator interface {
	// Decide возвращает true с вероятностью successProbability (0..1).
	Decide(successProbability float64) bool
}

// =============================================================================
// Случайная реализация
// =============================================================================

// Random — реализация на базе собственного генератора случайных чисел.
// Глобальный math/rand не используется: источник изолирован и защищён
// мьютексом (rand.Rand не потокобезопасен).
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom создаёт симулятор со случайным seed.
func NewRandom() *Random {
	return NewRandomSeeded(time.Now().UnixNano())
}

// NewRandomSeeded создаёт симулятор с фиксированным seed
// (воспроизводимые прогоны).
func NewRandomSeeded(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Decide возвращает true с заданной вероятностью.
func (r *Random) Decide(successProbability float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < successProbability
}

// =============================================================================
// Детерминированные реализации для тестов
// =============================================================================

// Fixed всегда возвращает одно и то же решение независимо от вероятности.
type Fixed bool

// Decide возвращает фиксированный исход.
func (f Fixed) Decide(float64) bool {
	return bool(f)
}

// Sequence возвращает заранее заданную последовательность исходов.
// После исчерпания последовательности возвращает последний элемент.
// Потокобезопасен.
type Sequence struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
}

// NewSequence создаёт скриптованный симулятор.
func NewSequence(outcomes ...bool) *Sequence {
	return &Sequence{outcomes: outcomes}
}

// Decide возвращает следующий исход из последовательности.
func (s *Sequence) Decide(float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return false
	}
	outcome := s.outcomes[s.next]
	if s.next < len(s.outcomes)-1 {
		s.next++
	}
	return outcome
}
