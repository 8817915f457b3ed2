// Package whatsapp клиент эндпоинтов подключения WhatsApp саб-аккаунта.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// ErrNotConnected отправка сообщения без активной сессии WhatsApp.
var ErrNotConnected = errors.New("whatsapp session is not connected")

// Gateway часть шлюза, нужная клиенту.
type Gateway interface {
	Get(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
}

// Client клиент /whatsapp/:id/*.
type Client struct {
	gw Gateway
}

// NewClient создаёт клиент поверх шлюза.
func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

func path(id, action string) string {
	return "/whatsapp/" + url.PathEscape(id) + "/" + action
}

// Status возвращает состояние подключения как есть, без свёртки неизвестных статусов.
func (c *Client) Status(ctx context.Context, subAccountID string) (*models.ConnectionState, error) {
	const op = "services.whatsapp.Status"
	var st models.ConnectionState
	if err := c.gw.Get(ctx, path(subAccountID, "status"), &st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &st, nil
}

// Connect запускает подключение: бэкенд поднимает сессию и готовит QR.
func (c *Client) Connect(ctx context.Context, subAccountID string) error {
	const op = "services.whatsapp.Connect"
	if err := c.gw.Post(ctx, path(subAccountID, "connect"), nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Disconnect разрывает сессию WhatsApp.
func (c *Client) Disconnect(ctx context.Context, subAccountID string) error {
	const op = "services.whatsapp.Disconnect"
	if err := c.gw.Post(ctx, path(subAccountID, "disconnect"), nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Send отправляет тестовое сообщение. current последний известный статус
// подключения; если он не connected, запрос не отправляется.
func (c *Client) Send(ctx context.Context, subAccountID string, current models.ConnectionStatus, req models.SendMessageRequest) error {
	const op = "services.whatsapp.Send"
	if current.Effective() != models.StatusConnected {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	if err := c.gw.Post(ctx, path(subAccountID, "send"), req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
