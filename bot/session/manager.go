// Package session keeps per-chat conversation state in memory: the current
// dialogue step, accumulated step data, and the backend auth token. Sessions
// are keyed by chat ID and expire after a period of inactivity.
package session

import (
	"context"
	"sync"
	"time"

	"finbot/core/logger"
	"log/slog"
)

// State identifies a dialogue step within a conversation flow.
type State string

// StateIdle indicates there is no active conversation in the chat.
const StateIdle State = ""

// Authenticator re-authenticates a chat against the backend and returns a
// fresh bearer token. Used by the scheduled token refresh.
type Authenticator func(ctx context.Context, chatID int64, name string) (string, error)

// Session stores conversation state and auth data for a single chat.
type Session struct {
	State        State
	Data         map[string]any
	Token        string
	Name         string
	LastActivity time.Time

	refresh *time.Timer
}

// Options tunes session lifecycle.
type Options struct {
	// TTL is the idle time after which a session is evicted.
	TTL time.Duration
	// SweepInterval is how often expired sessions are collected.
	SweepInterval time.Duration
	// RefreshAfter schedules a token refresh this long after authentication.
	RefreshAfter time.Duration

	Authenticator Authenticator
}

// Manager owns all chat sessions and their lifecycle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	ttl          time.Duration
	sweepEvery   time.Duration
	refreshAfter time.Duration
	auth         Authenticator

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager constructs a Manager and starts its background sweep.
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = 23 * time.Hour
	}

	m := &Manager{
		sessions:     make(map[int64]*Session),
		ttl:          opts.TTL,
		sweepEvery:   opts.SweepInterval,
		refreshAfter: opts.RefreshAfter,
		auth:         opts.Authenticator,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Stop terminates the sweep loop and cancels pending refresh timers.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		defer m.mu.Unlock()
		for _, s := range m.sessions {
			if s.refresh != nil {
				s.refresh.Stop()
			}
		}
	})
}

// ensure returns the session for a chat, creating it when absent.
// Caller must hold m.mu.
func (m *Manager) ensure(chatID int64) *Session {
	s, ok := m.sessions[chatID]
	if !ok {
		s = &Session{Data: make(map[string]any)}
		m.sessions[chatID] = s
	}
	s.LastActivity = time.Now()
	return s
}

// Touch refreshes activity for a chat, creating an empty session when absent.
func (m *Manager) Touch(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(chatID)
}

// SetAuth stores the backend token and display name for a chat and schedules
// a token refresh. A previously scheduled refresh is cancelled first.
func (m *Manager) SetAuth(chatID int64, token, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(chatID)
	s.Token = token
	if name != "" {
		s.Name = name
	}
	if s.refresh != nil {
		s.refresh.Stop()
	}
	if m.auth != nil {
		s.refresh = time.AfterFunc(m.refreshAfter, func() { m.refreshToken(chatID) })
	}
}

func (m *Manager) refreshToken(chatID int64) {
	select {
	case <-m.stop:
		return
	default:
	}

	m.mu.RLock()
	s, ok := m.sessions[chatID]
	var name string
	if ok {
		name = s.Name
	}
	m.mu.RUnlock()
	if !ok {
		return
	}

	ctx := logger.Background()
	token, err := m.auth(ctx, chatID, name)
	if err != nil {
		// Keep the stale token; the next user action will surface the 401.
		logger.Warn(ctx, "session", "token.refresh_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return
	}

	m.SetAuth(chatID, token, name)
	logger.Info(ctx, "session", "token.refreshed",
		slog.Int64("chat_id", chatID),
	)
}

// Token returns the stored backend token for a chat.
func (m *Manager) Token(chatID int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok || s.Token == "" {
		return "", false
	}
	return s.Token, true
}

// Name returns the stored display name for a chat.
func (m *Manager) Name(chatID int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.Name
	}
	return ""
}

// SetState transitions a chat to the given dialogue step and merges the patch
// into the session data. A nil patch changes only the step.
func (m *Manager) SetState(chatID int64, st State, patch map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(chatID)
	s.State = st
	for k, v := range patch {
		s.Data[k] = v
	}
}

// State returns the current dialogue step for a chat.
func (m *Manager) State(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.State
	}
	return StateIdle
}

// Value retrieves a data value accumulated by earlier dialogue steps.
func (m *Manager) Value(chatID int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// StringValue retrieves a session data value asserted as string.
func (m *Manager) StringValue(chatID int64, key string) (string, bool) {
	v, ok := m.Value(chatID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64Value retrieves a session data value asserted as int64.
func (m *Manager) Int64Value(chatID int64, key string) (int64, bool) {
	v, ok := m.Value(chatID, key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Float64Value retrieves a session data value asserted as float64.
func (m *Manager) Float64Value(chatID int64, key string) (float64, bool) {
	v, ok := m.Value(chatID, key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// BoolValue retrieves a session data value asserted as bool.
func (m *Manager) BoolValue(chatID int64, key string) (bool, bool) {
	v, ok := m.Value(chatID, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ClearFlow aborts the active conversation: the step returns to idle and all
// accumulated data is dropped. Token and name survive so the user stays
// authenticated.
func (m *Manager) ClearFlow(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return
	}
	s.State = StateIdle
	s.Data = make(map[string]any)
	s.LastActivity = time.Now()
}

// Delete removes the session entirely and cancels its refresh timer.
func (m *Manager) Delete(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return
	}
	if s.refresh != nil {
		s.refresh.Stop()
	}
	delete(m.sessions, chatID)
}

// InProgress reports whether the chat has an active dialogue step.
func (m *Manager) InProgress(chatID int64) bool {
	return m.State(chatID) != StateIdle
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep evicts sessions idle longer than the TTL.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	evicted := 0
	for chatID, s := range m.sessions {
		if now.Sub(s.LastActivity) < m.ttl {
			continue
		}
		if s.refresh != nil {
			s.refresh.Stop()
		}
		delete(m.sessions, chatID)
		evicted++
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		logger.Info(logger.Background(), "session", "sweep.evicted",
			slog.Int("count", evicted),
			slog.Int("sessions", remaining),
		)
	}
}
