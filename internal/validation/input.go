package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Константы валидации
const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 100
	MinMessageLength     = 1
	MaxMessageLength     = 5000
	MinDisputeReason     = 5
	MaxDisputeReason     = 2000
	MaxPlatformLength    = 50
	CurrencyCodeLength   = 3
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

	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
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

	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if len(username) > 0 && unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateCurrency проверяет код валюты (ISO 4217, три буквы).
func ValidateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("код валюты обязателен")
	}

	currencyRegex := regexp.MustCompile(`^[A-Z]{3}$`)
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("код валюты должен состоять из трёх заглавных латинских букв")
	}

	return nil
}

// ValidatePlatform проверяет идентификатор платёжной платформы.
func ValidatePlatform(platform string) error {
	if strings.TrimSpace(platform) == "" {
		return fmt.Errorf("платёжная платформа обязательна")
	}

	return ValidateLength("платёжная платформа", platform, 2, MaxPlatformLength)
}

// ValidatePositiveAmount проверяет, что сумма строго положительна.
func ValidatePositiveAmount(fieldName string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%s должна быть больше нуля", fieldName)
	}
	return nil
}

// ValidateOfferBounds проверяет инвариант границ объявления:
// min_amount <= max_amount <= available_amount.
func ValidateOfferBounds(minAmount, maxAmount, available decimal.Decimal) error {
	if minAmount.GreaterThan(maxAmount) {
		return fmt.Errorf("минимальная сумма сделки не может превышать максимальную")
	}
	if maxAmount.GreaterThan(available) {
		return fmt.Errorf("максимальная сумма сделки не может превышать доступный остаток")
	}
	return nil
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}

	content = strings.TrimSpace(content)

	return ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength)
}

// ValidateDisputeReason проверяет текст причины спора.
func ValidateDisputeReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("причина спора обязательна")
	}

	return ValidateLength("причина спора", reason, MinDisputeReason, MaxDisputeReason)
}
