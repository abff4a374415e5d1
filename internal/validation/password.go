package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// bcrypt не принимает больше 72 байт.
	MaxPasswordBytes = 72
	// Короткие логины вроде "ann" слишком часто случайно совпадают с частью пароля.
	minEmailFragment = 4
)

// ValidatePassword проверяет пароль при регистрации: длина в символах, лимит bcrypt
// в байтах, буквы обоих регистров и цифра. Пароль не должен содержать логин из email.
func ValidatePassword(password, email string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("пароль должен быть не длиннее %d байт", MaxPasswordBytes)
	}
	if strings.TrimSpace(password) != password {
		return fmt.Errorf("пароль не должен начинаться или заканчиваться пробелом")
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsControl(r):
			return fmt.Errorf("пароль содержит недопустимые символы")
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper || !lower:
		return fmt.Errorf("пароль должен содержать строчные и заглавные буквы")
	case !digit:
		return fmt.Errorf("пароль должен содержать цифру")
	}

	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	if utf8.RuneCountInString(local) >= minEmailFragment && strings.Contains(strings.ToLower(password), local) {
		return fmt.Errorf("пароль не должен содержать логин из email")
	}
	return nil
}
