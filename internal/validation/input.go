package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength          = 3
	MaxUsernameLength          = 30
	MinBountyTitleLength       = 3
	MaxBountyTitleLength       = 200
	MaxBountyDescriptionLength = 5000
	MaxApplicationLength       = 2000
	MaxDestinationLength       = 255
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	usernameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	// Только буквы, цифры и подчеркивание
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateBountyTitle проверяет название задания.
func ValidateBountyTitle(title string) error {
	if err := ValidateNonEmpty("название задания", title); err != nil {
		return err
	}
	return ValidateLength("название задания", strings.TrimSpace(title), MinBountyTitleLength, MaxBountyTitleLength)
}

// ValidateBountyDescription проверяет описание задания. Пустое описание допустимо.
func ValidateBountyDescription(description string) error {
	return ValidateLength("описание задания", strings.TrimSpace(description), 0, MaxBountyDescriptionLength)
}

// ValidateApplicationMessage проверяет текст отклика.
func ValidateApplicationMessage(message string) error {
	return ValidateLength("сообщение отклика", strings.TrimSpace(message), 0, MaxApplicationLength)
}
