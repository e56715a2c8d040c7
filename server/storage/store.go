package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound indicates the requested row does not exist or is not owned
// by the requesting user.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = errors.New("storage: duplicate")

// User is a row of the users table.
type User struct {
	ID        int64           `db:"id"`
	ChatID    int64           `db:"chat_id"`
	Name      string          `db:"name"`
	NetWorth  sql.NullFloat64 `db:"net_worth"`
	CreatedAt time.Time       `db:"created_at"`
}

// CustomCategory is a user-defined expense category.
type CustomCategory struct {
	ID        int64         `db:"id"`
	UserID    int64         `db:"user_id"`
	Name      string        `db:"name"`
	ParentID  sql.NullInt64 `db:"parent_id"`
	CreatedAt time.Time     `db:"created_at"`
}

// Transaction is a row of the transactions table. CategoryID stores the
// category tag as text ("12" for built-in, "custom_3" for user-defined)
// or NULL for uncategorized entries.
type Transaction struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	Amount      float64        `db:"amount"`
	CategoryID  sql.NullString `db:"category_id"`
	Description sql.NullString `db:"description"`
	Date        time.Time      `db:"date"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Store wraps the database handle with the queries the API handlers need.
type Store struct {
	db *sqlx.DB
}

// New builds a Store over an open connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// UpsertUser creates the user on first contact or refreshes the stored name.
// NetWorth stays NULL until the onboarding budget is submitted.
func (s *Store) UpsertUser(ctx context.Context, chatID int64, name string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		INSERT INTO users (chat_id, name)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, chat_id, name, net_worth, created_at`,
		chatID, name,
	)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// UserByID fetches a user by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, chat_id, name, net_worth, created_at
		FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetNetWorth overwrites the user's net worth.
func (s *Store) SetNetWorth(ctx context.Context, userID int64, value float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET net_worth = $1 WHERE id = $2`, value, userID)
	if err != nil {
		return fmt.Errorf("set net worth: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CustomCategories lists the user's categories ordered by creation.
func (s *Store) CustomCategories(ctx context.Context, userID int64) ([]CustomCategory, error) {
	var out []CustomCategory
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, name, parent_id, created_at
		FROM custom_categories
		WHERE user_id = $1
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// CreateCustomCategory inserts a new category for the user.
func (s *Store) CreateCustomCategory(ctx context.Context, userID int64, name string, parentID *int64) (CustomCategory, error) {
	var c CustomCategory
	err := s.db.GetContext(ctx, &c, `
		INSERT INTO custom_categories (user_id, name, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, name, parent_id, created_at`,
		userID, name, parentID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return CustomCategory{}, ErrDuplicate
		}
		return CustomCategory{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// DeleteCustomCategory removes the category if the user owns it.
func (s *Store) DeleteCustomCategory(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTransaction inserts the transaction and adjusts the user's net worth
// in the same database transaction. A NULL net worth counts as zero.
func (s *Store) CreateTransaction(ctx context.Context, t Transaction) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.GetContext(ctx, &id, `
		INSERT INTO transactions (user_id, amount, category_id, description, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.UserID, t.Amount, t.CategoryID, t.Description, t.Date,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET net_worth = COALESCE(net_worth, 0) + $1 WHERE id = $2`,
		t.Amount, t.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("adjust net worth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// UpdateTransaction replaces the transaction's fields and applies the amount
// delta to the user's net worth in the same database transaction. A nil date
// keeps the stored one.
func (s *Store) UpdateTransaction(ctx context.Context, userID, id int64, amount float64, categoryID, description sql.NullString, date *time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldAmount float64
	err = tx.GetContext(ctx, &oldAmount, `
		SELECT amount FROM transactions
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount = $1, category_id = $2, description = $3,
		    date = COALESCE($4, date), updated_at = now()
		WHERE id = $5 AND user_id = $6`,
		amount, categoryID, description, date, id, userID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET net_worth = COALESCE(net_worth, 0) + $1 WHERE id = $2`,
		amount-oldAmount, userID,
	)
	if err != nil {
		return fmt.Errorf("adjust net worth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteTransaction removes the transaction if the user owns it and reverses
// its effect on the net worth.
func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var amount float64
	err = tx.GetContext(ctx, &amount, `
		DELETE FROM transactions
		WHERE id = $1 AND user_id = $2
		RETURNING amount`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET net_worth = COALESCE(net_worth, 0) - $1 WHERE id = $2`,
		amount, userID,
	)
	if err != nil {
		return fmt.Errorf("adjust net worth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TransactionsSince lists the user's transactions with date >= since,
// newest first.
func (s *Store) TransactionsSince(ctx context.Context, userID int64, since time.Time) ([]Transaction, error) {
	var out []Transaction
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, amount, category_id, description, date, created_at, updated_at
		FROM transactions
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC, id DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}
