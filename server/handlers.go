package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finbot/core/logger"
	"finbot/server/storage"
	"log/slog"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, userID int64)

// withAuth validates the bearer token and resolves the user ID before
// delegating to the handler.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			httpError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, userID)
	}
}

type authRequest struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

type authResponse struct {
	Token    string   `json:"token"`
	NetWorth *float64 `json:"net_worth"`
}

// handleAuthTelegram upserts the user identified by chat_id and issues a
// bearer token. net_worth is null until onboarding completes, which tells
// the bot to ask for the initial budget.
func (s *Server) handleAuthTelegram(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID == 0 {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Anonymous"
	}

	user, err := s.store.UpsertUser(r.Context(), req.ChatID, name)
	if err != nil {
		s.serverError(w, r, "auth.upsert", err)
		return
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.serverError(w, r, "auth.issue", err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:    token,
		NetWorth: nullFloat(user.NetWorth),
	})
}

type netWorthRequest struct {
	ChatID   int64    `json:"chat_id"`
	NetWorth *float64 `json:"net_worth"`
}

// handleUpdateNetWorth stores the user's reported balance. The chat_id in
// the body must belong to the token's user.
func (s *Server) handleUpdateNetWorth(w http.ResponseWriter, r *http.Request, userID int64) {
	var req netWorthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID == 0 || req.NetWorth == nil {
		httpError(w, http.StatusBadRequest, "chat_id and net_worth are required")
		return
	}

	user, err := s.store.UserByID(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, "users.net_worth", err)
		return
	}
	if user.ChatID != req.ChatID {
		httpError(w, http.StatusForbidden, "chat_id does not match token")
		return
	}

	if err := s.store.SetNetWorth(r.Context(), userID, *req.NetWorth); err != nil {
		s.storeError(w, r, "users.net_worth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "net worth updated"})
}

type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	NetWorth  float64   `json:"net_worth"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := s.store.UserByID(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, "users.me", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:        user.ID,
		Name:      user.Name,
		NetWorth:  user.NetWorth.Float64,
		CreatedAt: user.CreatedAt,
	})
}

type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

func categoryJSON(c storage.CustomCategory) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		ParentID:  nullInt(c.ParentID),
		CreatedAt: c.CreatedAt,
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, userID int64) {
	cats, err := s.store.CustomCategories(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, "categories.list", err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, userID int64) {
	var req createCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}

	cat, err := s.store.CreateCustomCategory(r.Context(), userID, name, req.ParentID)
	if errors.Is(err, storage.ErrDuplicate) {
		httpError(w, http.StatusConflict, "category already exists")
		return
	}
	if err != nil {
		s.storeError(w, r, "categories.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryJSON(cat))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, userID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	if err := s.store.DeleteCustomCategory(r.Context(), userID, id); err != nil {
		s.storeError(w, r, "categories.delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "category deleted"})
}

type createTransactionRequest struct {
	Amount      float64 `json:"amount"`
	CategoryID  *string `json:"category_id"`
	Description *string `json:"description"`
	Date        string  `json:"date"`
}

// handleCreateTransaction records a transaction and adjusts the user's net
// worth atomically. Amount is signed: positive income, negative expense.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, userID int64) {
	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		httpError(w, http.StatusBadRequest, "amount is required")
		return
	}

	date := s.now()
	if req.Date != "" {
		parsed, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "date must be RFC3339")
			return
		}
		date = parsed
	}

	tx := storage.Transaction{
		UserID: userID,
		Amount: req.Amount,
		Date:   date,
	}
	if req.CategoryID != nil && *req.CategoryID != "" {
		tx.CategoryID = sql.NullString{String: *req.CategoryID, Valid: true}
	}
	if req.Description != nil && *req.Description != "" {
		tx.Description = sql.NullString{String: *req.Description, Valid: true}
	}

	id, err := s.store.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.storeError(w, r, "transactions.create", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// handleUpdateTransaction rewrites a transaction the user owns. The net worth
// moves by the amount delta.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, userID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		httpError(w, http.StatusBadRequest, "amount is required")
		return
	}

	var date *time.Time
	if req.Date != "" {
		parsed, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "date must be RFC3339")
			return
		}
		date = &parsed
	}

	var categoryID, description sql.NullString
	if req.CategoryID != nil && *req.CategoryID != "" {
		categoryID = sql.NullString{String: *req.CategoryID, Valid: true}
	}
	if req.Description != nil && *req.Description != "" {
		description = sql.NullString{String: *req.Description, Valid: true}
	}

	err = s.store.UpdateTransaction(r.Context(), userID, id, req.Amount, categoryID, description, date)
	if err != nil {
		s.storeError(w, r, "transactions.update", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": 1})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, userID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if err := s.store.DeleteTransaction(r.Context(), userID, id); err != nil {
		s.storeError(w, r, "transactions.delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

type transactionResponse struct {
	ID          int64     `json:"id"`
	Amount      float64   `json:"amount"`
	CategoryID  *string   `json:"category_id"`
	Description *string   `json:"description"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID int64) {
	since, err := periodStart(r.URL.Query().Get("period"), s.now())
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.store.TransactionsSince(r.Context(), userID, since)
	if err != nil {
		s.storeError(w, r, "transactions.list", err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:          t.ID,
			Amount:      t.Amount,
			CategoryID:  nullString(t.CategoryID),
			Description: nullString(t.Description),
			Date:        t.Date,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// storeError maps storage sentinels to HTTP statuses; everything else is a 500.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, event string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	s.serverError(w, r, event, err)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.HTTP.Error("handler failed",
		slog.String("event", event),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	httpError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
