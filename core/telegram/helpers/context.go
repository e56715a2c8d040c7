// Package helpers bridges telebot contexts with the context.Context the rest
// of the codebase logs and calls through.
package helpers

import (
	"context"

	"finbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxKey is the tele.Context store slot holding the derived context.Context.
const ctxKey = "flow_ctx"

// StoreContext caches a derived context on the update so every handler in the
// chain sees the same rid and metadata.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxKey, ctx)
}

func storedContext(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok
}

// BuildContext returns the context cached by the logging middleware, or
// derives a fresh one carrying rid, update id, and chat/user ids. Flow
// handlers pass the result into gateway calls so backend log lines correlate
// with the triggering update.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := storedContext(c); ok {
		return ctx
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if sender := c.Sender(); sender != nil {
		userID = sender.ID
	}
	updID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler re-caches the update's context with the handler name attached,
// so logs emitted deeper in the call tree carry it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
