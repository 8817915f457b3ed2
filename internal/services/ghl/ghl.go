// Package ghl клиент привязки саб-аккаунтов к локациям CRM.
package ghl

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
}

type Client struct {
	gw Gateway
}

func NewClient(gw Gateway) *Client {
	return &Client{gw: gw}
}

// Status возвращает состояние подключения CRM у клиента.
func (c *Client) Status(ctx context.Context) (*models.GHLStatus, error) {
	const op = "services.ghl.Status"
	var st models.GHLStatus
	if err := c.gw.Get(ctx, "/ghl/status", &st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &st, nil
}

// Locations возвращает локации, доступные для привязки.
func (c *Client) Locations(ctx context.Context) ([]models.Location, error) {
	const op = "services.ghl.Locations"
	var list []models.Location
	if err := c.gw.Get(ctx, "/ghl/locations", &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

func (c *Client) Link(ctx context.Context, subAccountID, locationID string) error {
	const op = "services.ghl.Link"
	req := models.LinkLocationRequest{LocationID: locationID}
	if err := c.gw.Post(ctx, "/ghl/link-location/"+url.PathEscape(subAccountID), req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) Unlink(ctx context.Context, subAccountID string) error {
	const op = "services.ghl.Unlink"
	if err := c.gw.Post(ctx, "/ghl/unlink-location/"+url.PathEscape(subAccountID), nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
