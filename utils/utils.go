// Package utils provides utility functions for the application.
package utils

import (
	"strings"
)

func ToPtr[T any](v T) *T {
	return &v
}

// OnlyDigits strips every non-digit rune from s
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskCPF keeps only the last two digits of a CPF
func MaskCPF(cpf string) string {
	digits := OnlyDigits(cpf)
	if len(digits) < 2 {
		return "***"
	}
	return "***.***.***-" + digits[len(digits)-2:]
}

// MaskPhone keeps only the last four digits of a phone number
func MaskPhone(phone string) string {
	digits := OnlyDigits(phone)
	if len(digits) < 4 {
		return "****"
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
