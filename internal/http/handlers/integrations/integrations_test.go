package integrations_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/integrations"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/billing"
)

type CRMMock struct {
	mock.Mock
}

func (m *CRMMock) Status(ctx context.Context) (*models.GHLStatus, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*models.GHLStatus)
	return st, args.Error(1)
}

func (m *CRMMock) Locations(ctx context.Context) ([]models.Location, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]models.Location)
	return list, args.Error(1)
}

type BillingMock struct {
	mock.Mock
}

func (m *BillingMock) Portal(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *BillingMock) Subscribe(ctx context.Context, planType string) (string, error) {
	args := m.Called(ctx, planType)
	return args.String(0), args.Error(1)
}

func call(t *testing.T, h http.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func newHandler(crm *CRMMock, b *BillingMock) *integrations.Handler {
	return integrations.New(slog.New(slog.NewTextHandler(io.Discard, nil)), crm, b)
}

func TestHandler_CRMStatus(t *testing.T) {
	crm := new(CRMMock)
	crm.On("Status", mock.Anything).Return(&models.GHLStatus{Connected: false, AuthURL: "https://crm.example/oauth"}, nil).Once()

	rr, resp := call(t, newHandler(crm, new(BillingMock)).CRMStatus, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := resp["data"].(map[string]any)
	assert.Equal(t, false, data["connected"])
	assert.Equal(t, "https://crm.example/oauth", data["authUrl"])
}

func TestHandler_LocationsUnauthorized(t *testing.T) {
	crm := new(CRMMock)
	crm.On("Locations", mock.Anything).
		Return(nil, &gateway.Error{Kind: gateway.KindUnauthenticated, Status: 401, Err: gateway.ErrSessionExpired}).Once()

	rr, _ := call(t, newHandler(crm, new(BillingMock)).Locations, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_Billing(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		err        error
		wantStatus int
	}{
		{name: "redirect", url: "https://pay.example/portal", wantStatus: http.StatusOK},
		{name: "no redirect", err: billing.ErrNoRedirect, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := new(BillingMock)
			b.On("Portal", mock.Anything).Return(tt.url, tt.err).Once()

			rr, resp := call(t, newHandler(new(CRMMock), b).Portal, "")
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.err == nil {
				assert.Equal(t, tt.url, resp["data"].(map[string]any)["url"])
			}
		})
	}
}

func TestHandler_Subscribe(t *testing.T) {
	b := new(BillingMock)
	b.On("Subscribe", mock.Anything, "pro").Return("https://pay.example/s", nil).Once()

	rr, resp := call(t, newHandler(new(CRMMock), b).Subscribe, `{"planType":"pro"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://pay.example/s", resp["data"].(map[string]any)["url"])

	rr, _ = call(t, newHandler(new(CRMMock), b).Subscribe, `[`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	b.AssertExpectations(t)
}
