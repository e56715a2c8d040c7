// Package flows implements the bot's conversation flows: onboarding,
// balance, add-transaction, add-category, and transaction history. Each flow
// is a sequence of dialogue steps driven by the session dispatcher.
package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finbot/bot/api"
	"finbot/bot/categories"
	"finbot/bot/session"
	tg "finbot/core/telegram"
	"finbot/core/telegram/commands"
	tghelpers "finbot/core/telegram/helpers"
	"finbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Dialogue steps. Transitions happen only through these tags; the dispatcher
// guarantees one handler per step kind.
const (
	StateAwaitBudget      session.State = "start.await_budget"
	StateTxSelectType     session.State = "tx.select_type"
	StateTxSelectCategory session.State = "tx.select_category"
	StateTxNewCategory    session.State = "tx.new_category"
	StateTxEnterAmount    session.State = "tx.enter_amount"
	StateTxEnterDate      session.State = "tx.enter_date"
	StateCatEnterName     session.State = "cat.enter_name"
	StateCatSelectParent  session.State = "cat.select_parent"
	StateListSelectPeriod session.State = "list.select_period"
)

// Main menu reply-keyboard labels.
const (
	menuBalance         = "💰 Мой баланс"
	menuAddTransaction  = "💳 Добавить транзакцию"
	menuAddCategory     = "📂 Добавить категорию"
	menuShowTransaction = "📜 Показать транзакции"
)

// User-facing texts.
const (
	textUnauthorized = "Сначала выполните /start для авторизации."
	textGenericError = "Произошла ошибка. Попробуйте позже."
)

// Deps bundles everything a flow handler needs.
type Deps struct {
	Sessions *session.Manager
	Dispatch *session.Dispatcher
	API      api.Gateway
	Tree     *categories.Tree
}

// Register wires all flows into the registry and the step dispatcher.
func Register(reg *tg.Registry, d *Deps) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     d.handleStart,
		Description: "Регистрация и главное меню",
	})

	reg.RegisterMenu(menuBalance, d.handleMyBalance)
	reg.RegisterMenu(menuAddTransaction, d.handleAddTransaction)
	reg.RegisterMenu(menuAddCategory, d.handleAddCategory)
	reg.RegisterMenu(menuShowTransaction, d.handleShowTransactions)

	reg.SetTextFallback(func(c tele.Context) error {
		if _, ok := d.Sessions.Token(chatID(c)); !ok {
			return tghelpers.SendText(c, textUnauthorized)
		}
		return tghelpers.SendKB(c, "Используйте меню ниже для действий.", mainMenu())
	})

	d.Dispatch.OnMessage(StateAwaitBudget, d.stepAwaitBudget)
	d.Dispatch.OnCallback(StateTxSelectType, d.stepTxSelectType)
	d.Dispatch.OnCallback(StateTxSelectCategory, d.stepTxSelectCategory)
	d.Dispatch.OnMessage(StateTxNewCategory, d.stepTxNewCategory)
	d.Dispatch.OnMessage(StateTxEnterAmount, d.stepTxEnterAmount)
	d.Dispatch.OnMessage(StateTxEnterDate, d.stepTxEnterDateText)
	d.Dispatch.OnCallback(StateTxEnterDate, d.stepTxEnterDateButton)
	d.Dispatch.OnMessage(StateCatEnterName, d.stepCatEnterName)
	d.Dispatch.OnCallback(StateCatSelectParent, d.stepCatSelectParent)
	d.Dispatch.OnCallback(StateListSelectPeriod, d.stepListSelectPeriod)
}

func chatID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{menuBalance, menuAddTransaction},
		[]string{menuAddCategory, menuShowTransaction},
	)
}

// reservedNames are menu labels and commands a custom category may not shadow.
// The text router matches commands and menu labels before the active dialogue,
// so typing one of these as a category name interrupts the flow there; the
// check here is a second line for any path that bypasses the router.
func reservedNames() map[string]struct{} {
	return map[string]struct{}{
		strings.ToLower(menuBalance):         {},
		strings.ToLower(menuAddTransaction):  {},
		strings.ToLower(menuAddCategory):     {},
		strings.ToLower(menuShowTransaction): {},
		"/start":                             {},
	}
}

// requireToken returns the stored token or tells the user to authorize.
func (d *Deps) requireToken(c tele.Context) (string, bool) {
	token, ok := d.Sessions.Token(chatID(c))
	if !ok {
		return "", false
	}
	return token, true
}

// failFlow aborts the conversation: the session flow state is cleared and the
// user gets a specific or generic error message.
func (d *Deps) failFlow(c tele.Context, msg string) error {
	d.Sessions.ClearFlow(chatID(c))
	if msg == "" {
		msg = textGenericError
	}
	return tghelpers.SendText(c, msg)
}

// apiFail maps a backend error to the user-facing failure message and aborts
// the flow. Authorization failures prompt a re-login instead.
func (d *Deps) apiFail(c tele.Context, err error, msg string) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return d.failFlow(c, textUnauthorized)
	}
	return d.failFlow(c, msg)
}

func flowContext(c tele.Context) context.Context {
	return tghelpers.BuildContext(c)
}

// formatMoney renders an amount with two decimals the way the bot displays
// all money values.
func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
