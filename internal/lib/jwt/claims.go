// Package jwt разбирает bearer-токен консоли без проверки подписи.
//
// Подпись проверяет только бэкенд: клиент не знает секрета, поэтому данные
// из токена используются лишь для отображения (срок жизни, идентификатор),
// и никогда не решают, валидна ли сессия.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT возвращается, если токен не похож на JWT (непрозрачный токен).
var ErrNotJWT = errors.New("token is not a jwt")

// Claims описывает поля токена, которые интересны консоли.
type Claims struct {
	UserID               string `json:"userId,omitempty"`
	Role                 string `json:"role,omitempty"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt, Subject
}

// Inspect разбирает токен без проверки подписи.
func Inspect(token string) (*Claims, error) {
	const op = "jwt.Inspect"
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotJWT)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// ExpiresAtTime возвращает время истечения токена, если оно указано.
func (c *Claims) ExpiresAtTime() (time.Time, bool) {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// Expired сообщает, истёк ли токен к моменту now. Токен без exp не истекает.
func (c *Claims) Expired(now time.Time) bool {
	exp, ok := c.ExpiresAtTime()
	return ok && !now.Before(exp)
}
