package router

import (
	"time"

	tg "finbot/core/telegram"
	"finbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dialogue is the minimal interface of a per-chat conversation manager.
// HandleCallback reports whether the callback belonged to an active dialogue step.
type Dialogue interface {
	InProgress(chatID int64) bool
	HandleMessage(c tele.Context) error
	HandleCallback(c tele.Context) (bool, error)
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoute builds the handler for incoming text messages.
// Slash commands and reply-keyboard buttons take priority over an active
// dialogue so that a user can always bail out of a flow via the menu.
func TextRoute(dlg Dialogue, reg *tg.Registry, opts TextOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
			if h, ok := reg.LookupMenu(text); ok {
				name := "menu." + normalizeHandlerName(text)
				return handleWithSummary(c, name, start, "", "", func() error {
					return h(c)
				})
			}
		}

		if dlg != nil && c.Chat() != nil && dlg.InProgress(c.Chat().ID) {
			return handleWithSummary(c, "dialogue", start, "", "", func() error {
				return dlg.HandleMessage(c)
			})
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	return tg.Route{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
