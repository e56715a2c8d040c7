package middleware

import (
	"runtime/debug"

	"finbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware converts a handler panic into an error log line with the
// update's correlation metadata. The update is swallowed; the dialogue state
// is left as it was, so the user's next message resumes or restarts the flow.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			attrs := []slog.Attr{
				slog.String("event", "tg.panic"),
				slog.Any("err", r),
			}
			if rid, ok := c.Get("rid").(string); ok && rid != "" {
				attrs = append(attrs, slog.String("rid", rid))
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}
			attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			logger.TG.LogAttrs(logger.Background(), slog.LevelError, "panic recovered", attrs...)
		}()
		return next(c)
	}
}
