// Package api is the bot's gateway to the backend REST API. All calls are
// single-attempt: a network failure or non-2xx status is returned to the
// calling flow, which decides whether to abort or degrade.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"finbot/bot/categories"
	"finbot/core/logger"
	"log/slog"
)

var (
	// ErrUnauthorized signals a missing, expired, or invalid bearer token.
	// Flows translate it into a "run /start again" message.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound signals a missing or foreign-owned resource.
	ErrNotFound = errors.New("api: not found")
)

// Transaction periods accepted by the backend.
const (
	PeriodWeek  = "transactions_week"
	PeriodMonth = "transactions_month"
)

// AuthResult is the response of the upsert-authenticate call. NetWorth is nil
// for a freshly created user who has not reported an initial balance yet.
type AuthResult struct {
	Token    string   `json:"token"`
	NetWorth *float64 `json:"net_worth"`
}

// User mirrors the backend's user record.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	NetWorth  float64   `json:"net_worth"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTransaction is the payload for creating a transaction. Amount is signed:
// positive for income, negative for expense.
type NewTransaction struct {
	Amount      float64
	Category    *categories.Ref
	Description string
	Date        time.Time
}

// Transaction mirrors the backend's transaction record. CategoryID carries
// the wire encoding ("12" or "custom_3") and may be absent.
type Transaction struct {
	ID          int64     `json:"id"`
	Amount      float64   `json:"amount"`
	Description *string   `json:"description"`
	Date        time.Time `json:"date"`
	CategoryID  *string   `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CategoryRef decodes the transaction's category reference, if any.
func (t Transaction) CategoryRef() *categories.Ref {
	if t.CategoryID == nil {
		return nil
	}
	ref, err := categories.ParseRef(*t.CategoryID)
	if err != nil {
		return nil
	}
	return &ref
}

// Gateway is the backend API surface used by conversation flows.
type Gateway interface {
	Authenticate(ctx context.Context, chatID int64, name string) (AuthResult, error)
	UpdateNetWorth(ctx context.Context, token string, chatID int64, netWorth float64) error
	Me(ctx context.Context, token string) (User, error)

	CustomCategories(ctx context.Context, token string) ([]categories.Custom, error)
	CreateCustomCategory(ctx context.Context, token, name string, parentID *int64) (categories.Custom, error)
	DeleteCustomCategory(ctx context.Context, token string, id int64) error

	CreateTransaction(ctx context.Context, token string, tx NewTransaction) (int64, error)
	Transactions(ctx context.Context, token, period string) ([]Transaction, error)
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the given base URL (no trailing slash).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    buildHTTPClient(timeout),
	}
}

// Authenticate upserts the user for a chat and returns a bearer token.
func (c *Client) Authenticate(ctx context.Context, chatID int64, name string) (AuthResult, error) {
	body := map[string]any{"chat_id": chatID, "name": name}
	var out AuthResult
	err := c.call(ctx, http.MethodPost, "/api/auth/telegram", "", body, http.StatusOK, &out)
	return out, err
}

// UpdateNetWorth stores the user's reported balance.
func (c *Client) UpdateNetWorth(ctx context.Context, token string, chatID int64, netWorth float64) error {
	body := map[string]any{"chat_id": chatID, "net_worth": netWorth}
	return c.call(ctx, http.MethodPost, "/api/users/update-net-worth", token, body, http.StatusOK, nil)
}

// Me fetches the authenticated user's record.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var out User
	err := c.call(ctx, http.MethodGet, "/api/users/me", token, nil, http.StatusOK, &out)
	return out, err
}

// CustomCategories lists the user's custom categories.
func (c *Client) CustomCategories(ctx context.Context, token string) ([]categories.Custom, error) {
	var out []categories.Custom
	err := c.call(ctx, http.MethodGet, "/api/categories/custom", token, nil, http.StatusOK, &out)
	return out, err
}

// CreateCustomCategory creates a custom category and returns the stored record.
func (c *Client) CreateCustomCategory(ctx context.Context, token, name string, parentID *int64) (categories.Custom, error) {
	body := map[string]any{"name": name, "parent_id": parentID}
	var out categories.Custom
	err := c.call(ctx, http.MethodPost, "/api/categories/custom", token, body, http.StatusCreated, &out)
	return out, err
}

// DeleteCustomCategory removes a custom category owned by the user.
func (c *Client) DeleteCustomCategory(ctx context.Context, token string, id int64) error {
	path := "/api/categories/custom/" + strconv.FormatInt(id, 10)
	return c.call(ctx, http.MethodDelete, path, token, nil, http.StatusOK, nil)
}

// CreateTransaction records a transaction; the backend adjusts the user's
// balance atomically with the insert.
func (c *Client) CreateTransaction(ctx context.Context, token string, tx NewTransaction) (int64, error) {
	body := map[string]any{
		"amount": tx.Amount,
		"date":   tx.Date.Format(time.RFC3339),
	}
	if tx.Category != nil {
		body["category_id"] = tx.Category.Encode()
	} else {
		body["category_id"] = nil
	}
	if tx.Description != "" {
		body["description"] = tx.Description
	} else {
		body["description"] = nil
	}

	var out struct {
		ID int64 `json:"id"`
	}
	err := c.call(ctx, http.MethodPost, "/api/transactions", token, body, http.StatusOK, &out)
	return out.ID, err
}

// Transactions lists the user's transactions for a period, newest first.
func (c *Client) Transactions(ctx context.Context, token, period string) ([]Transaction, error) {
	path := "/api/transactions?period=" + url.QueryEscape(period)
	var out []Transaction
	err := c.call(ctx, http.MethodGet, path, token, nil, http.StatusOK, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path, token string, body any, wantStatus int, out any) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(ctx, method, path, 0, start, err)
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == wantStatus:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logCall(ctx, method, path, resp.StatusCode, start, ErrUnauthorized)
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logCall(ctx, method, path, resp.StatusCode, start, ErrNotFound)
		return ErrNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("api: %s %s: unexpected status %d", method, path, resp.StatusCode)
		c.logCall(ctx, method, path, resp.StatusCode, start, err)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logCall(ctx, method, path, resp.StatusCode, start, err)
			return fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	c.logCall(ctx, method, path, resp.StatusCode, start, nil)
	return nil
}

func (c *Client) logCall(ctx context.Context, method, path string, status int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_code", status),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Error(ctx, "api", "call.fail", attrs...)
		return
	}
	logger.Debug(ctx, "api", "call.ok", attrs...)
}
