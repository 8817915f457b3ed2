// Package view отслеживает текущий экран консоли и выполняет жёсткий
// переход на экран входа при потере сессии.
package view

import (
	"log/slog"
	"sync"
)

// Name имя экрана.
type Name string

const (
	Login            Name = "login"
	Register         Name = "register"
	ForgotPassword   Name = "forgot-password"
	Dashboard        Name = "dashboard"
	SubAccounts      Name = "sub-accounts"
	SubAccountDetail Name = "sub-account"
	Billing          Name = "billing"
	Admin            Name = "admin"
)

// Public сообщает, доступен ли экран без сессии.
func (n Name) Public() bool {
	switch n {
	case Login, Register, ForgotPassword:
		return true
	}
	return false
}

// Navigator текущий экран консоли. Шлюз спрашивает у него, публичный ли
// экран инициировал вызов.
type Navigator struct {
	log *slog.Logger

	mu      sync.Mutex
	current Name
}

// New создаёт навигатор, стоящий на экране initial.
func New(log *slog.Logger, initial Name) *Navigator {
	return &Navigator{
		log:     log,
		current: initial,
	}
}

// Current возвращает текущий экран.
func (n *Navigator) Current() Name {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Enter делает экран текущим.
func (n *Navigator) Enter(name Name) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = name
}

// IsPublic сообщает, что текущий экран публичный.
func (n *Navigator) IsPublic() bool {
	return n.Current().Public()
}

// Restore возвращает экран prev, если текущим всё ещё остаётся from.
// Так неудачный вызов с публичного экрана не оставляет консоль на нём.
func (n *Navigator) Restore(from, prev Name) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != from {
		return false
	}
	n.current = prev
	return true
}

// RedirectToLogin жёсткий переход на экран входа.
func (n *Navigator) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != Login {
		n.log.Info("forced navigation to login", slog.String("from", string(n.current)))
	}
	n.current = Login
}
