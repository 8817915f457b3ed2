// Package subaccounts клиент эндпоинтов саб-аккаунтов.
package subaccounts

import (
	"context"
	"fmt"
	"net/url"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// Gateway часть шлюза, нужная клиенту.
type Gateway interface {
	Get(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
	Put(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
	Delete(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
}

// Client клиент /sub-accounts и админских операций над ними.
type Client struct {
	gw Gateway
}

// NewClient создаёт клиент поверх шлюза.
func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

// List возвращает саб-аккаунты текущего клиента.
func (c *Client) List(ctx context.Context) ([]models.SubAccount, error) {
	const op = "services.subaccounts.List"
	var list []models.SubAccount
	if err := c.gw.Get(ctx, "/sub-accounts", &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// Get возвращает саб-аккаунт по id.
func (c *Client) Get(ctx context.Context, id string) (*models.SubAccount, error) {
	const op = "services.subaccounts.Get"
	var sa models.SubAccount
	if err := c.gw.Get(ctx, "/sub-accounts/"+url.PathEscape(id), &sa); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sa, nil
}

// Create создаёт саб-аккаунт.
func (c *Client) Create(ctx context.Context, req models.CreateSubAccountRequest) (*models.SubAccount, error) {
	const op = "services.subaccounts.Create"
	var sa models.SubAccount
	if err := c.gw.Post(ctx, "/sub-accounts", req, &sa); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sa, nil
}

// UpdateProfile меняет профиль саб-аккаунта.
func (c *Client) UpdateProfile(ctx context.Context, id string, req models.UpdateSubAccountRequest) (*models.SubAccount, error) {
	const op = "services.subaccounts.UpdateProfile"
	var sa models.SubAccount
	if err := c.gw.Put(ctx, "/sub-accounts/"+url.PathEscape(id), req, &sa); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sa, nil
}

// Delete удаляет саб-аккаунт.
func (c *Client) Delete(ctx context.Context, id string) error {
	const op = "services.subaccounts.Delete"
	if err := c.gw.Delete(ctx, "/sub-accounts/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ToggleActive включает или выключает саб-аккаунт. Только для администратора.
func (c *Client) ToggleActive(ctx context.Context, id string) error {
	const op = "services.subaccounts.ToggleActive"
	if err := c.gw.Put(ctx, "/admin/sub-accounts/"+url.PathEscape(id)+"/toggle", nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetPayment отмечает оплату саб-аккаунта. Только для администратора.
func (c *Client) SetPayment(ctx context.Context, id string, paid bool) error {
	const op = "services.subaccounts.SetPayment"
	req := models.SetPaymentRequest{IsPaid: paid}
	if err := c.gw.Put(ctx, "/admin/sub-accounts/"+url.PathEscape(id)+"/payment", req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
