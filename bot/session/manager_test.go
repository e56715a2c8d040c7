package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	m := NewManager(opts)
	t.Cleanup(m.Stop)
	return m
}

func TestSetStateMergesPatch(t *testing.T) {
	m := newTestManager(t, Options{})

	m.SetState(7, State("tx.select_type"), map[string]any{"flow": "tx"})
	m.SetState(7, State("tx.enter_amount"), map[string]any{"tx_type": "expense"})

	assert.Equal(t, State("tx.enter_amount"), m.State(7))

	flow, ok := m.StringValue(7, "flow")
	require.True(t, ok)
	assert.Equal(t, "tx", flow)

	txType, ok := m.StringValue(7, "tx_type")
	require.True(t, ok)
	assert.Equal(t, "expense", txType)
}

func TestClearFlowPreservesAuth(t *testing.T) {
	m := newTestManager(t, Options{})

	m.SetAuth(5, "token-abc", "Ivan")
	m.SetState(5, State("cat.enter_name"), map[string]any{"pending": true})

	m.ClearFlow(5)

	assert.Equal(t, StateIdle, m.State(5))
	assert.False(t, m.InProgress(5))

	_, ok := m.Value(5, "pending")
	assert.False(t, ok)

	token, ok := m.Token(5)
	require.True(t, ok)
	assert.Equal(t, "token-abc", token)
	assert.Equal(t, "Ivan", m.Name(5))
}

func TestClearFlowOnUnknownChatIsNoop(t *testing.T) {
	m := newTestManager(t, Options{})

	m.ClearFlow(999)
	assert.Equal(t, 0, m.Len())
}

func TestDeleteRemovesSession(t *testing.T) {
	m := newTestManager(t, Options{})

	m.SetAuth(3, "tok", "")
	require.Equal(t, 1, m.Len())

	m.Delete(3)
	assert.Equal(t, 0, m.Len())

	_, ok := m.Token(3)
	assert.False(t, ok)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m := newTestManager(t, Options{TTL: time.Hour})

	m.SetAuth(1, "a", "")
	m.SetAuth(2, "b", "")

	// Backdate one session past the TTL.
	m.mu.Lock()
	m.sessions[1].LastActivity = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	m.sweep(time.Now())

	assert.Equal(t, 1, m.Len())
	_, ok := m.Token(1)
	assert.False(t, ok)
	_, ok = m.Token(2)
	assert.True(t, ok)
}

func TestTokenRefreshReplacesToken(t *testing.T) {
	refreshed := make(chan struct{})
	m := newTestManager(t, Options{
		RefreshAfter: 10 * time.Millisecond,
		Authenticator: func(ctx context.Context, chatID int64, name string) (string, error) {
			close(refreshed)
			return "token-new", nil
		},
	})

	m.SetAuth(42, "token-old", "Anna")

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("token refresh was not triggered")
	}

	require.Eventually(t, func() bool {
		token, ok := m.Token(42)
		return ok && token == "token-new"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Anna", m.Name(42))
}

func TestValueHelpers(t *testing.T) {
	m := newTestManager(t, Options{})

	m.SetState(8, State("tx.enter_date"), map[string]any{
		"amount":      -250.5,
		"category_id": int64(12),
		"custom":      true,
	})

	f, ok := m.Float64Value(8, "amount")
	require.True(t, ok)
	assert.InDelta(t, -250.5, f, 1e-9)

	n, ok := m.Int64Value(8, "category_id")
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	b, ok := m.BoolValue(8, "custom")
	require.True(t, ok)
	assert.True(t, b)

	_, ok = m.StringValue(8, "amount")
	assert.False(t, ok, "type mismatch must not assert")
}
