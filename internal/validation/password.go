package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 5
	// bcrypt учитывает только первые 72 байта.
	MaxPasswordBytes = 72
)

// ValidatePassword проверяет пароль на соответствие требованиям.
// Требования:
// - от 5 символов и не длиннее 72 байт
// - хотя бы одна буква
// - хотя бы одна цифра
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("пароль должен быть не длиннее %d байт", MaxPasswordBytes)
	}

	var (
		hasLetter = false
		hasNumber = false
	)

	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasLetter {
		return fmt.Errorf("пароль должен содержать хотя бы одну букву")
	}
	if !hasNumber {
		return fmt.Errorf("пароль должен содержать хотя бы одну цифру")
	}

	return nil
}
