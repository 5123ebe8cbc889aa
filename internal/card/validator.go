// Package card содержит валидацию карточных данных: проверку Луна,
// определение платёжной системы, срок действия и маскирование номера.
// Все функции чистые, полный номер карты за пределы пакета не уходит.
package card

import (
	"strings"
	"time"
)

// Причины отказа валидации. Текст попадает в error_message платежа
// и возвращается клиенту как есть.
const (
	ReasonInvalidLength  = "Invalid card number length"
	ReasonNotDigits      = "Card number must contain only digits"
	ReasonLuhnFailed     = "Invalid card number"
	ReasonExpired        = "Card has expired"
	ReasonInvalidCVC     = "Invalid CVC"
	ReasonIssuerDeclined = "Card declined by issuer"
)

// deniedTestCards — тестовые номера, которые всегда отклоняются.
// Проходят проверку Луна, поэтому сверяются отдельным списком —
// для детерминированного негативного тестирования.
var deniedTestCards = map[string]struct{}{
	"4000000000000002": {},
	"4000000000009995": {},
}

// Validate проверяет карточные данные и возвращает (ok, причина отказа).
// Невалидный ввод — не ошибка, а результат "невалидно, с причиной":
// паник и error здесь нет по построению.
func Validate(number string, expMonth, expYear int, cvc string) (bool, string) {
	return validateAt(number, expMonth, expYear, cvc, time.Now())
}

// validateAt — реализация Validate с явным текущим временем для тестов.
// Проверки идут по порядку, первая неуспешная останавливает остальные.
func validateAt(number string, expMonth, expYear int, cvc string, now time.Time) (bool, string) {
	number = Normalize(number)

	if len(number) != 15 && len(number) != 16 {
		return false, ReasonInvalidLength
	}

	if !digitsOnly(number) {
		return false, ReasonNotDigits
	}

	if !luhnCheck(number) {
		return false, ReasonLuhnFailed
	}

	// Карта истекла, если год меньше текущего либо год текущий,
	// а месяц уже прошёл. Текущий месяц — ещё валиден.
	if expYear < now.Year() || (expYear == now.Year() && expMonth < int(now.Month())) {
		return false, ReasonExpired
	}

	if !digitsOnly(cvc) || (len(cvc) != 3 && len(cvc) != 4) {
		return false, ReasonInvalidCVC
	}

	if _, denied := deniedTestCards[number]; denied {
		return false, ReasonIssuerDeclined
	}

	return true, ""
}

// luhnCheck проверяет номер карты алгоритмом Луна (mod 10).
// Цифры на нечётных позициях справа (0-indexed) берутся как есть,
// на чётных — удваиваются с суммированием цифр результата.
func luhnCheck(number string) bool {
	sum := 0
	for i := 0; i < len(number); i++ {
		d := int(number[len(number)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9 // Эквивалент суммы цифр: 14 -> 1+4 = 5 = 14-9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// Normalize убирает пробелы и дефисы из номера карты.
func Normalize(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// digitsOnly возвращает true, если строка непустая и состоит из цифр.
func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// Определение платёжной системы
// =============================================================================

// brandPrefixes — упорядоченная таблица префиксов. Первое совпадение
// выигрывает: "card" (Visa, префикс 4) проверяется раньше остальных,
// потому что её префикс самый широкий.
var brandPrefixes = []struct {
	brand    string
	prefixes []string
}{
	{"card", []string{"4"}},
	{"mastercard", []string{"51", "52", "53", "54", "55", "22", "23", "24", "25", "26", "27"}},
	{"amex", []string{"34", "37"}},
	{"discover", []string{"6011", "65"}},
	{"jcb", []string{"35"}},
}

// Brand определяет платёжную систему по префиксу номера.
// Возвращает "unknown", если префикс не распознан.
func Brand(number string) string {
	number = Normalize(number)
	for _, entry := range brandPrefixes {
		for _, prefix := range entry.prefixes {
			if strings.HasPrefix(number, prefix) {
				return entry.brand
			}
		}
	}
	return "unknown"
}

// Mask маскирует номер карты, оставляя только последние 4 цифры.
// Единственная форма номера, которая сохраняется и возвращается наружу.
func Mask(number string) string {
	number = Normalize(number)
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

// Last4 возвращает последние 4 цифры номера.
func Last4(number string) string {
	number = Normalize(number)
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
