package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword возвращается при попытке захешировать пустой пароль оператора
var ErrEmptyPassword = errors.New("empty password")

// HashPassword готовит bcrypt-хеш пароля оператора для секции server.operators конфига
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля оператора: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сверяет пароль оператора с хешем из конфига.
// Повреждённый хеш считается несовпадением.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
