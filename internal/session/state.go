package session

import (
	"time"

	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// State состояние машины сессии.
type State int

const (
	// Unresolved начальное состояние до Resolve.
	Unresolved State = iota
	// Resolving идёт запрос /auth/me по сохранённому токену.
	Resolving
	// Authenticated профиль получен.
	Authenticated
	// Anonymous токена нет или он отвергнут бэкендом.
	Anonymous
	// AnonymousRetryable восстановление не удалось из-за сети, токен сохранён.
	// Для доступа к экранам равносилен Anonymous.
	AnonymousRetryable
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	case AnonymousRetryable:
		return "anonymous_retryable"
	default:
		return "unknown"
	}
}

// MarshalText отдаёт имя состояния в JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session снимок сессии. User присутствует только вместе с Token.
type Session struct {
	State     State               `json:"state"`
	Token     string              `json:"-"`
	User      *models.UserProfile `json:"user,omitempty"`
	Loading   bool                `json:"loading"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
}

// Authenticated сообщает, открыта ли сессия.
func (s Session) Authenticated() bool {
	return s.State == Authenticated && s.User != nil
}
