package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "finbot/core/config"
)

// newTestServer builds a Server without a live database. Only handler paths
// that fail validation before touching storage can be exercised this way.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &coreconfig.Config{
		Server: coreconfig.ServerConfig{
			Listen:        ":0",
			JWTSecret:     "test-secret",
			TokenTTLHours: 1,
		},
	}
	return New(cfg, nil)
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequiresChatID(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/auth/telegram", "", `{"name":"Ivan"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/auth/telegram", "", `{"chat_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerTokenRequired(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/users/me", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownPeriodRejected(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/api/transactions?period=yesterday", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPost, "/api/transactions", token,
		`{"amount":0,"category_id":null,"description":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero amount")

	rec = doRequest(s, http.MethodPost, "/api/transactions", token,
		`{"amount":10,"date":"30.08.2026"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-RFC3339 date")
}

func TestUpdateTransactionValidation(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPut, "/api/transactions/abc", token, `{"amount":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-numeric id")

	rec = doRequest(s, http.MethodPut, "/api/transactions/5", token, `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero amount")
}

func TestDeleteCategoryRejectsBadID(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodDelete, "/api/categories/custom/abc", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCategoryRequiresName(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPost, "/api/categories/custom", token, `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateNetWorthValidation(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.Issue(1)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPost, "/api/users/update-net-worth", token, `{"chat_id":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing net_worth")
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	week, err := periodStart(periodWeek, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC), week)

	month, err := periodStart(periodMonth, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC), month)

	_, err = periodStart("", now)
	assert.Error(t, err)
}
