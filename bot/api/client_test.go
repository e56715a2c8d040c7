package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finbot/bot/categories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestAuthenticateNewUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/telegram", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 42, body["chat_id"])
		assert.Equal(t, "Ivan", body["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-1","net_worth":null}`))
	})

	res, err := client.Authenticate(context.Background(), 42, "Ivan")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Nil(t, res.NetWorth, "new user has no reported balance yet")
}

func TestAuthenticateExistingUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-2","net_worth":1500.5}`))
	})

	res, err := client.Authenticate(context.Background(), 42, "Ivan")
	require.NoError(t, err)
	require.NotNil(t, res.NetWorth)
	assert.InDelta(t, 1500.5, *res.NetWorth, 1e-9)
}

func TestBearerHeaderIsAttached(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-3", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"name":"Ivan","net_worth":100,"created_at":"2026-01-01T00:00:00Z"}`))
	})

	user, err := client.Me(context.Background(), "tok-3")
	require.NoError(t, err)
	assert.Equal(t, "Ivan", user.Name)
	assert.InDelta(t, 100, user.NetWorth, 1e-9)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Me(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteCustomCategoryNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/categories/custom/9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.DeleteCustomCategory(context.Background(), "tok", 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTransactionEncodesCategoryTag(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":77}`))
	})

	ref := categories.CustomRef(3)
	id, err := client.CreateTransaction(context.Background(), "tok", NewTransaction{
		Amount:      -250.5,
		Category:    &ref,
		Description: "groceries",
		Date:        time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "custom_3", got["category_id"])
	assert.InDelta(t, -250.5, got["amount"].(float64), 1e-9)
	assert.Equal(t, "groceries", got["description"])
}

func TestCreateTransactionWithoutCategory(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	})

	_, err := client.CreateTransaction(context.Background(), "tok", NewTransaction{
		Amount: 300,
		Date:   time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, got["category_id"])
	assert.Nil(t, got["description"])
}

func TestTransactionsPeriodQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PeriodWeek, r.URL.Query().Get("period"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"amount":-100,"description":"кофе","date":"2026-08-28T10:00:00Z","category_id":"15","created_at":"2026-08-28T10:00:00Z","updated_at":"2026-08-28T10:00:00Z"}]`))
	})

	txs, err := client.Transactions(context.Background(), "tok", PeriodWeek)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	ref := txs[0].CategoryRef()
	require.NotNil(t, ref)
	assert.Equal(t, categories.BuiltInRef(15), *ref)
}

func TestCategoryRefDecoding(t *testing.T) {
	custom := "custom_4"
	bad := "garbage"

	assert.Nil(t, Transaction{}.CategoryRef())
	assert.Nil(t, Transaction{CategoryID: &bad}.CategoryRef())

	ref := Transaction{CategoryID: &custom}.CategoryRef()
	require.NotNil(t, ref)
	assert.True(t, ref.Custom)
	assert.Equal(t, int64(4), ref.ID)
}
