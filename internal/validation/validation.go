// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
)

// CardDigits — длина номера банковской карты.
const CardDigits = 16

// PhoneDigits — длина номера телефона.
const PhoneDigits = 8

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 6

// IsValidLuhn проверяет строку из цифр по алгоритму Луна.
func IsValidLuhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// NormalizeCardNumber убирает пробелы и дефисы, которыми пользователь разделяет группы цифр.
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// IsValidCardNumber проверяет, что номер карты состоит из 16 цифр и проходит проверку Луна.
func IsValidCardNumber(number string) bool {
	n := NormalizeCardNumber(number)
	return len(n) == CardDigits && IsValidLuhn(n)
}

// MaskCardNumber оставляет только последние четыре цифры.
func MaskCardNumber(number string) string {
	n := NormalizeCardNumber(number)
	if len(n) < 4 {
		return ""
	}
	return "**** " + n[len(n)-4:]
}

// IsValidEmail проверяет, что строка — одиночный адрес без отображаемого имени.
func IsValidEmail(email string) bool {
	if email == "" || strings.TrimSpace(email) != email {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return strings.Contains(email[at+1:], ".")
}

// IsValidPhone проверяет, что телефон состоит ровно из восьми цифр.
func IsValidPhone(phone string) bool {
	if len(phone) != PhoneDigits {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeEmail приводит email к виду, в котором он хранится.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
