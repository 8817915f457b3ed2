// Package billing клиент биллинга. Консоль только получает ссылку на страницу
// платёжного провайдера, сам платёж проходит там.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// ErrNoRedirect бэкенд не вернул ссылку на провайдера.
var ErrNoRedirect = errors.New("billing response has no redirect url")

// Gateway часть шлюза, нужная клиенту.
type Gateway interface {
	Get(ctx context.Context, path string, out any, opts ...gateway.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...gateway.CallOption) error
}

type Client struct {
	gw Gateway
}

func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

// Portal возвращает ссылку на портал управления подпиской.
func (c *Client) Portal(ctx context.Context) (string, error) {
	const op = "services.billing.Portal"
	var resp models.RedirectURL
	if err := c.gw.Get(ctx, "/billing/portal", &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return redirect(op, resp)
}

// Subscribe оформляет подписку на план и возвращает ссылку на оплату.
func (c *Client) Subscribe(ctx context.Context, planType string) (string, error) {
	const op = "services.billing.Subscribe"
	var resp models.RedirectURL
	if err := c.gw.Post(ctx, "/billing/subscribe", models.SubscribeRequest{PlanType: planType}, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return redirect(op, resp)
}

// Checkout возвращает ссылку на оплату саб-аккаунта.
func (c *Client) Checkout(ctx context.Context, subAccountID string) (string, error) {
	const op = "services.billing.Checkout"
	var resp models.RedirectURL
	if err := c.gw.Post(ctx, "/billing/checkout/"+url.PathEscape(subAccountID), nil, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return redirect(op, resp)
}

func redirect(op string, resp models.RedirectURL) (string, error) {
	if resp.URL == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoRedirect)
	}
	return resp.URL, nil
}
