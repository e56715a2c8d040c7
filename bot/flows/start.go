package flows

import (
	"fmt"

	tghelpers "finbot/core/telegram/helpers"

	"finbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// handleStart authenticates the chat against the backend. New users (no
// reported balance yet) are asked for an initial budget; returning users go
// straight to the main menu.
func (d *Deps) handleStart(c tele.Context) error {
	id := chatID(c)
	name := "User"
	if sender := c.Sender(); sender != nil && sender.FirstName != "" {
		name = sender.FirstName
	}

	// A top-level command always interrupts whatever flow was active.
	d.Sessions.ClearFlow(id)

	ctx := flowContext(c)
	res, err := d.API.Authenticate(ctx, id, name)
	if err != nil {
		logger.Error(ctx, "flow", "start.auth_failed",
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Ошибка соединения с сервером. Попробуйте позже.")
	}

	d.Sessions.SetAuth(id, res.Token, name)

	if res.NetWorth == nil {
		d.Sessions.SetState(id, StateAwaitBudget, nil)
		return tghelpers.SendText(c, fmt.Sprintf(
			"👋 Добро пожаловать, %s!\n\nЧтобы начать, введите текущий бюджет (сумму, которая у вас сейчас на руках):", name))
	}

	return tghelpers.SendKB(c, fmt.Sprintf(
		"👋 С возвращением, %s!\n\n💰 Ваш текущий баланс: %s 💵\n\nИспользуйте меню ниже для действий.",
		name, formatMoney(*res.NetWorth)), mainMenu())
}

// stepAwaitBudget receives the initial balance figure. A parse failure aborts
// the flow; the user re-invokes /start to try again.
func (d *Deps) stepAwaitBudget(c tele.Context) error {
	id := chatID(c)

	netWorth, err := ParseBudget(c.Text())
	if err != nil {
		return d.failFlow(c, "❌ Пожалуйста, введите корректное число для вашего бюджета.")
	}

	token, ok := d.requireToken(c)
	if !ok {
		return d.failFlow(c, textUnauthorized)
	}

	ctx := flowContext(c)
	if err := d.API.UpdateNetWorth(ctx, token, id, netWorth); err != nil {
		logger.Error(ctx, "flow", "start.update_net_worth_failed",
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "❌ Ошибка при обновлении бюджета. Попробуйте позже.")
	}

	d.Sessions.ClearFlow(id)
	return tghelpers.SendKB(c,
		"✅ Ваш бюджет успешно обновлен! Теперь вы можете использовать следующие функции:\n\n"+
			"1️⃣ Проверить баланс\n"+
			"2️⃣ Добавить транзакцию\n"+
			"3️⃣ Добавить категорию\n\n"+
			"Используйте меню ниже для действий.", mainMenu())
}
