package card

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testNow — фиксированное "сейчас" для детерминированных проверок срока.
var testNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		number     string
		expMonth   int
		expYear    int
		cvc        string
		wantValid  bool
		wantReason string
	}{
		{
			name:      "валидная Visa",
			number:    "4242424242424242",
			expMonth:  12, expYear: 2030, cvc: "123",
			wantValid: true,
		},
		{
			name:      "валидная Amex (15 цифр, CVC 4 цифры)",
			number:    "378282246310005",
			expMonth:  12, expYear: 2030, cvc: "1234",
			wantValid: true,
		},
		{
			name:      "номер с пробелами нормализуется",
			number:    "4242 4242 4242 4242",
			expMonth:  12, expYear: 2030, cvc: "123",
			wantValid: true,
		},
		{
			name:      "номер с дефисами нормализуется",
			number:    "4242-4242-4242-4242",
			expMonth:  12, expYear: 2030, cvc: "123",
			wantValid: true,
		},
		{
			name:       "слишком короткий номер",
			number:     "42424242",
			expMonth:   12, expYear: 2030, cvc: "123",
			wantValid:  false,
			wantReason: ReasonInvalidLength,
		},
		{
			name:       "буквы в номере",
			number:     "42424242424242ab",
			expMonth:   12, expYear: 2030, cvc: "123",
			wantValid:  false,
			wantReason: ReasonNotDigits,
		},
		{
			name:       "не проходит проверку Луна",
			number:     "4242424242424241",
			expMonth:   12, expYear: 2030, cvc: "123",
			wantValid:  false,
			wantReason: ReasonLuhnFailed,
		},
		{
			name:       "истёкший год",
			number:     "4242424242424242",
			expMonth:   12, expYear: 2025, cvc: "123",
			wantValid:  false,
			wantReason: ReasonExpired,
		},
		{
			name:       "истёкший месяц текущего года",
			number:     "4242424242424242",
			expMonth:   5, expYear: 2026, cvc: "123",
			wantValid:  false,
			wantReason: ReasonExpired,
		},
		{
			name:      "текущий месяц ещё валиден",
			number:    "4242424242424242",
			expMonth:  6, expYear: 2026, cvc: "123",
			wantValid: true,
		},
		{
			name:       "CVC из двух цифр",
			number:     "4242424242424242",
			expMonth:   12, expYear: 2030, cvc: "12",
			wantValid:  false,
			wantReason: ReasonInvalidCVC,
		},
		{
			name:       "CVC с буквами",
			number:     "4242424242424242",
			expMonth:   12, expYear: 2030, cvc: "12a",
			wantValid:  false,
			wantReason: ReasonInvalidCVC,
		},
		{
			name:       "карта из deny-list",
			number:     "4000000000000002",
			expMonth:   12, expYear: 2030, cvc: "123",
			wantValid:  false,
			wantReason: ReasonIssuerDeclined,
		},
		{
			name:       "вторая карта deny-list",
			number:     "4000000000009995",
			expMonth:   12, expYear: 2030, cvc: "123",
			wantValid:  false,
			wantReason: ReasonIssuerDeclined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := validateAt(tt.number, tt.expMonth, tt.expYear, tt.cvc, testNow)
			assert.Equal(t, tt.wantValid, valid)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

// Порядок проверок: длина раньше Луна, Лун раньше срока, срок раньше CVC.
func TestValidate_CheckOrder(t *testing.T) {
	t.Run("короткий номер с истёкшим сроком — причина про длину", func(t *testing.T) {
		_, reason := validateAt("4242", 1, 2020, "123", testNow)
		assert.Equal(t, ReasonInvalidLength, reason)
	})

	t.Run("невалидный Лун с истёкшим сроком — причина про Лун", func(t *testing.T) {
		_, reason := validateAt("4242424242424241", 1, 2020, "123", testNow)
		assert.Equal(t, ReasonLuhnFailed, reason)
	})

	t.Run("истёкший срок с плохим CVC — причина про срок", func(t *testing.T) {
		_, reason := validateAt("4242424242424242", 1, 2020, "1", testNow)
		assert.Equal(t, ReasonExpired, reason)
	})
}

func TestLuhnCheck(t *testing.T) {
	tests := []struct {
		number string
		valid  bool
	}{
		{"4242424242424242", true},
		{"5555555555554444", true},
		{"378282246310005", true},
		{"6011111111111117", true},
		{"3530111333300000", true},
		{"4000000000000002", true}, // deny-list карты проходят Луна
		{"4242424242424241", false},
		{"1234567890123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.valid, luhnCheck(tt.number))
		})
	}
}

func TestBrand(t *testing.T) {
	tests := []struct {
		number string
		brand  string
	}{
		{"4242424242424242", "card"},
		{"5555555555554444", "mastercard"},
		{"2221000000000009", "mastercard"},
		{"378282246310005", "amex"},
		{"340000000000009", "amex"},
		{"6011111111111117", "discover"},
		{"6500000000000002", "discover"},
		{"3530111333300000", "jcb"},
		{"9999999999999999", "unknown"},
		{"4242 4242 4242 4242", "card"}, // нормализация перед определением
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.brand, Brand(tt.number))
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "************4242", Mask("4242424242424242"))
	assert.Equal(t, "***********0005", Mask("378282246310005"))
	assert.Equal(t, "************4242", Mask("4242 4242 4242 4242"))
	assert.Equal(t, "4242", Mask("4242"))
}

func TestLast4(t *testing.T) {
	assert.Equal(t, "4242", Last4("4242424242424242"))
	assert.Equal(t, "0005", Last4("378282246310005"))
	assert.Equal(t, "123", Last4("123"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "4242424242424242", Normalize("4242 4242 4242 4242"))
	assert.Equal(t, "4242424242424242", Normalize("4242-4242-4242-4242"))
	assert.Equal(t, "4242424242424242", Normalize("4242424242424242"))
}
