package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/poller"
	"github.com/magabrotheeeer/wa-connector-console/internal/session"
)

func TestOK(t *testing.T) {
	data := map[string]string{"key": "value"}
	resp := OK(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not authenticated", fmt.Errorf("gate: %w", session.ErrNotAuthenticated), http.StatusUnauthorized},
		{"wrong role", session.ErrForbiddenRole, http.StatusForbidden},
		{"connect in flight", fmt.Errorf("poller.Connect: %w", poller.ErrConnectInFlight), http.StatusConflict},
		{"not confirmed", poller.ErrNotConfirmed, http.StatusBadRequest},
		{"validation", &gateway.Error{Kind: gateway.KindValidation}, http.StatusUnprocessableEntity},
		{"backend 401", &gateway.Error{Kind: gateway.KindUnauthenticated}, http.StatusUnauthorized},
		{"backend 403", &gateway.Error{Kind: gateway.KindForbidden}, http.StatusForbidden},
		{"backend 404", &gateway.Error{Kind: gateway.KindNotFound}, http.StatusNotFound},
		{"backend down", &gateway.Error{Kind: gateway.KindTransient}, http.StatusBadGateway},
		{"backend other", &gateway.Error{Kind: gateway.KindOther, Status: 409}, http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestFromError(t *testing.T) {
	resp := FromError(fmt.Errorf("op: %w", &gateway.Error{
		Kind:    gateway.KindValidation,
		Message: "invalid",
		Fields:  map[string]string{"email": "already taken"},
	}))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "invalid", resp.Error)
	assert.Equal(t, map[string]string{"email": "already taken"}, resp.Fields)

	resp = FromError(&gateway.Error{Kind: gateway.KindForbidden, Message: "account deactivated"})
	assert.Equal(t, "account deactivated", resp.Error)

	resp = FromError(&gateway.Error{Kind: gateway.KindTransient})
	assert.Equal(t, "transient", resp.Error)

	resp = FromError(fmt.Errorf("poller.Connect: %w", poller.ErrConnectInFlight))
	assert.Equal(t, poller.ErrConnectInFlight.Error(), resp.Error)

	resp = FromError(errors.New("dial tcp: secret detail"))
	assert.Equal(t, "internal error", resp.Error)
}
