package session

import (
	"log/slog"

	"finbot/core/logger"
	tghelpers "finbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Dispatcher routes incoming updates to the handler bound to the chat's
// current dialogue step. Each step binds at most one message handler and at
// most one callback handler, so a chat can never race two handlers of the
// same kind.
type Dispatcher struct {
	mgr       *Manager
	messages  map[State]tele.HandlerFunc
	callbacks map[State]tele.HandlerFunc
}

// NewDispatcher creates an empty Dispatcher over the given Manager.
func NewDispatcher(mgr *Manager) *Dispatcher {
	return &Dispatcher{
		mgr:       mgr,
		messages:  make(map[State]tele.HandlerFunc),
		callbacks: make(map[State]tele.HandlerFunc),
	}
}

// Manager exposes the underlying session manager.
func (d *Dispatcher) Manager() *Manager {
	return d.mgr
}

// OnMessage binds the message handler for a dialogue step.
func (d *Dispatcher) OnMessage(st State, h tele.HandlerFunc) {
	if st == StateIdle || h == nil {
		return
	}
	if _, exists := d.messages[st]; exists {
		logger.SESS.Warn("duplicate step handler",
			slog.String("event", "dispatch.duplicate"),
			slog.String("state", string(st)),
			slog.String("kind", "message"),
		)
		return
	}
	d.messages[st] = h
}

// OnCallback binds the callback handler for a dialogue step.
func (d *Dispatcher) OnCallback(st State, h tele.HandlerFunc) {
	if st == StateIdle || h == nil {
		return
	}
	if _, exists := d.callbacks[st]; exists {
		logger.SESS.Warn("duplicate step handler",
			slog.String("event", "dispatch.duplicate"),
			slog.String("state", string(st)),
			slog.String("kind", "callback"),
		)
		return
	}
	d.callbacks[st] = h
}

// InProgress reports whether the chat has an active dialogue step.
func (d *Dispatcher) InProgress(chatID int64) bool {
	return d.mgr.InProgress(chatID)
}

// HandleMessage runs the message handler for the chat's current step.
// A text arriving in a step that only expects button presses is ignored.
func (d *Dispatcher) HandleMessage(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	st := d.mgr.State(chat.ID)
	ctx := tghelpers.BuildContext(c)

	h, ok := d.messages[st]
	if !ok {
		logger.Debug(ctx, "session", "dispatch.message.ignored",
			slog.String("state", string(st)),
		)
		return nil
	}

	logger.Debug(ctx, "session", "dispatch.message",
		slog.String("state", string(st)),
	)
	return h(c)
}

// HandleCallback runs the callback handler for the chat's current step.
// The boolean reports whether the step claimed the callback; unclaimed
// callbacks fall through to the global registry.
func (d *Dispatcher) HandleCallback(c tele.Context) (bool, error) {
	chat := c.Chat()
	if chat == nil {
		return false, nil
	}
	st := d.mgr.State(chat.ID)

	h, ok := d.callbacks[st]
	if !ok {
		return false, nil
	}

	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "session", "dispatch.callback",
		slog.String("state", string(st)),
	)
	return true, h(c)
}
