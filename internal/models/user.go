// Package models содержит доменные структуры консоли коннектора:
// профиль пользователя, саб-аккаунты, состояние подключения WhatsApp,
// а также структуры запросов, которые валидируются до отправки на бэкенд.
package models

// Role роль пользователя консоли.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// SubscriptionStatus статус подписки клиента в биллинге.
type SubscriptionStatus string

const (
	SubscriptionNone      SubscriptionStatus = "none"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCanceling SubscriptionStatus = "canceling"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// UserProfile снимок профиля, полученный из GET /auth/me.
// Профиль заменяется целиком при обновлении и никогда не патчится по полям.
type UserProfile struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Role               Role               `json:"role"`
	IsActive           bool               `json:"isActive"`
	HasUnlimitedAccess bool               `json:"hasUnlimitedAccess"`
	PlanType           string             `json:"planType"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
}

// IsAdmin сообщает, является ли пользователь администратором.
func (u UserProfile) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// LoginRequest тело POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest тело POST /auth/register.
type RegisterRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	CompanyName string `json:"companyName,omitempty" validate:"omitempty,max=100"`
}

// ForgotPasswordRequest тело POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthResponse ответ на успешный логин или регистрацию.
type AuthResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}
