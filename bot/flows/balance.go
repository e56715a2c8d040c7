package flows

import (
	"fmt"

	"finbot/core/logger"
	tghelpers "finbot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// handleMyBalance fetches and displays the user's current balance.
func (d *Deps) handleMyBalance(c tele.Context) error {
	token, ok := d.requireToken(c)
	if !ok {
		return tghelpers.SendText(c, textUnauthorized)
	}

	// Menu commands interrupt any flow in progress.
	d.Sessions.ClearFlow(chatID(c))

	ctx := flowContext(c)
	user, err := d.API.Me(ctx, token)
	if err != nil {
		logger.Error(ctx, "flow", "balance.fetch_failed",
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "Ошибка при получении баланса. Попробуйте позже.")
	}

	return tghelpers.SendText(c, fmt.Sprintf("💰 Ваш текущий баланс: %s 💵", formatMoney(user.NetWorth)))
}
