package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "voxelight"

// ErrInvalidToken возвращается для просроченного, поддельного или искажённого токена
var ErrInvalidToken = errors.New("invalid token")

// Claims представляет содержимое JWT токена оператора
type Claims struct {
	OperatorID uint64 `json:"operator_id"`
	Name       string `json:"name"`
	IsAdmin    bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет HS256-токены
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager создаёт менеджер с секретом в base64 (не менее 32 байт).
// Пустой секрет заменяется случайным: токены живут до перезапуска процесса.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("не удалось сгенерировать секрет JWT: %w", err)
		}
	} else {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("секрет JWT должен быть в base64: %w", err)
		}
		if len(decoded) < 32 {
			return nil, errors.New("секрет JWT должен содержать не менее 32 байт")
		}
		key = decoded
	}

	return &TokenManager{secret: key, ttl: ttl}, nil
}

// TTL возвращает срок жизни выпускаемых токенов
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue создаёт токен для оператора
func (tm *TokenManager) Issue(op *Operator) (string, error) {
	now := time.Now()
	claims := &Claims{
		OperatorID: op.ID,
		Name:       op.Name,
		IsAdmin:    op.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   op.Name,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Validate проверяет подпись, срок действия и издателя токена
func (tm *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret генерирует случайный секрет в base64
func GenerateSecureSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
