// Package auth клиент эндпоинтов сессии: /auth/me, /auth/login,
// /auth/register и /auth/forgot-password.
package auth

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// Gateway часть шлюза, нужная клиенту.
type Gateway interface {
	Get(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
}

// Client клиент эндпоинтов сессии.
type Client struct {
	gw Gateway
}

// NewClient создаёт клиент поверх шлюза.
func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

// Me возвращает профиль владельца текущего токена.
// Бэкенд отвечает либо профилем, либо обёрткой {"user": {...}}.
func (c *Client) Me(ctx context.Context) (*models.UserProfile, error) {
	const op = "services.auth.Me"
	var resp struct {
		models.UserProfile
		User *models.UserProfile `json:"user"`
	}
	if err := c.gw.Get(ctx, "/auth/me", &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.User != nil {
		return resp.User, nil
	}
	return &resp.UserProfile, nil
}

// Login обменивает учётные данные на токен. Ошибка логина ожидаема,
// поэтому глобальный сброс сессии для этого вызова отключён.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	const op = "services.auth.Login"
	var resp models.AuthResponse
	if err := c.gw.Post(ctx, "/auth/login", req, &resp, gateway.SkipSessionReset()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%s: empty token in response", op)
	}
	return &resp, nil
}

// Register создаёт учётную запись клиента и сразу возвращает токен.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	const op = "services.auth.Register"
	var resp models.AuthResponse
	if err := c.gw.Post(ctx, "/auth/register", req, &resp, gateway.SkipSessionReset()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%s: empty token in response", op)
	}
	return &resp, nil
}

// ForgotPassword запрашивает письмо для сброса пароля.
func (c *Client) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	const op = "services.auth.ForgotPassword"
	if err := c.gw.Post(ctx, "/auth/forgot-password", req, nil, gateway.SkipSessionReset()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
