// Package admin клиент административных эндпоинтов.
// Вызывать только из экранов, прошедших проверку роли admin.
package admin

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
	Put(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
	Delete(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
}

type Client struct {
	gw Gateway
}

func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	const op = "services.admin.Stats"
	var st models.Stats
	if err := c.gw.Get(ctx, "/admin/stats", &st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &st, nil
}

func (c *Client) Customers(ctx context.Context) ([]models.Customer, error) {
	const op = "services.admin.Customers"
	var list []models.Customer
	if err := c.gw.Get(ctx, "/admin/customers", &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// SubAccounts возвращает саб-аккаунты всех клиентов.
func (c *Client) SubAccounts(ctx context.Context) ([]models.SubAccount, error) {
	const op = "services.admin.SubAccounts"
	var list []models.SubAccount
	if err := c.gw.Get(ctx, "/admin/sub-accounts", &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// ToggleCustomer активирует или деактивирует клиента.
func (c *Client) ToggleCustomer(ctx context.Context, id string) error {
	const op = "services.admin.ToggleCustomer"
	if err := c.gw.Put(ctx, "/admin/customers/"+url.PathEscape(id)+"/toggle", nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetUnlimitedAccess выдаёт или отзывает безлимитный доступ без оплаты.
func (c *Client) SetUnlimitedAccess(ctx context.Context, id string, unlimited bool) error {
	const op = "services.admin.SetUnlimitedAccess"
	req := models.SetAccessRequest{HasUnlimitedAccess: unlimited}
	if err := c.gw.Put(ctx, "/admin/customers/"+url.PathEscape(id)+"/access", req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	const op = "services.admin.DeleteCustomer"
	if err := c.gw.Delete(ctx, "/admin/customers/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
