package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		email    string
		wantErr  string
	}{
		{name: "valid", password: "Password123", email: "test.user@example.com"},
		{name: "cyrillic letters count", password: "Пароль2024", email: "ivan@example.com"},
		{name: "short", password: "Pa1", email: "a@example.com", wantErr: "не менее 8"},
		{name: "over bcrypt limit", password: "Aa1" + strings.Repeat("x", 70), email: "a@example.com", wantErr: "72 байт"},
		{name: "leading space", password: " Password123", email: "a@example.com", wantErr: "пробелом"},
		{name: "control char", password: "Pass\tword123", email: "a@example.com", wantErr: "недопустимые"},
		{name: "single case", password: "password123", email: "a@example.com", wantErr: "заглавные"},
		{name: "no digit", password: "PasswordOnly", email: "a@example.com", wantErr: "цифру"},
		{name: "contains login", password: "Ivanov2024x", email: "IVANOV@example.com", wantErr: "логин"},
		{name: "short login ignored", password: "Ann2024pass", email: "ann@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, tt.email)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidatePassword_LengthInRunes(t *testing.T) {
	// 7 кириллических символов занимают 14 байт, но это всё ещё меньше минимума.
	assert.Error(t, ValidatePassword("Пароль1", "x@example.com"))
}
