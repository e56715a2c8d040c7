package flows

import (
	"fmt"
	"strings"

	"finbot/bot/api"
	"finbot/bot/categories"
	"finbot/core/logger"
	"finbot/core/telegram/callbacks"
	tghelpers "finbot/core/telegram/helpers"
	"finbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const cbPeriod = "period"

var ruMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// handleShowTransactions offers the period choice.
func (d *Deps) handleShowTransactions(c tele.Context) error {
	if _, ok := d.requireToken(c); !ok {
		return tghelpers.SendText(c, textUnauthorized)
	}

	id := chatID(c)
	d.Sessions.ClearFlow(id)
	d.Sessions.SetState(id, StateListSelectPeriod, nil)

	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "📅 За прошлую неделю", Unique: cbPeriod, Data: api.PeriodWeek},
		{Text: "📅 За месяц", Unique: cbPeriod, Data: api.PeriodMonth},
	})
	return tghelpers.SendKB(c, "Выберите период для просмотра транзакций:", markup)
}

// stepListSelectPeriod fetches and renders the transactions for the chosen
// period. Custom categories are fetched for label resolution; that fetch is
// non-fatal.
func (d *Deps) stepListSelectPeriod(c tele.Context) error {
	if callbacks.Key(c) != cbPeriod {
		return nil
	}

	period := callbacks.Payload(c)
	if period != api.PeriodWeek && period != api.PeriodMonth {
		return nil
	}

	id := chatID(c)
	token, ok := d.requireToken(c)
	if !ok {
		return d.failFlow(c, textUnauthorized)
	}

	ctx := flowContext(c)
	txs, err := d.API.Transactions(ctx, token, period)
	if err != nil {
		logger.Error(ctx, "flow", "history.fetch_failed",
			slog.String("period", period),
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "Ошибка при получении транзакций.")
	}

	customs, err := d.API.CustomCategories(ctx, token)
	if err != nil {
		logger.Warn(ctx, "flow", "history.customs_fetch_failed",
			slog.String("err", err.Error()),
		)
		customs = nil
	}

	d.Sessions.ClearFlow(id)

	if len(txs) == 0 {
		return tghelpers.EditOrSend(c, "За выбранный период транзакций нет.")
	}

	var sb strings.Builder
	sb.WriteString("Ваши транзакции:\n")
	for _, tx := range txs {
		sb.WriteString("\n")
		sb.WriteString(formatTransaction(d.Tree, customs, tx))
		sb.WriteString("\n")
	}
	return tghelpers.EditOrSend(c, sb.String())
}

// formatTransaction renders one history entry. Income and expense use
// distinct templates: income shows a type line, expense a resolved category.
func formatTransaction(tree *categories.Tree, customs []categories.Custom, tx api.Transaction) string {
	label := categories.Label(tree, customs, tx.Amount, tx.CategoryRef())

	kind := "Категория"
	if tx.Amount > 0 {
		kind = "Тип"
	}

	desc := "нет"
	if tx.Description != nil && *tx.Description != "" {
		desc = *tx.Description
	}

	return fmt.Sprintf("💰 Сумма: %s,\n%s: %s,\nОписание: %s,\n📅 %s",
		formatMoney(tx.Amount), kind, label, desc, formatRuDate(tx))
}

func formatRuDate(tx api.Transaction) string {
	d := tx.Date
	return fmt.Sprintf("%d %s %d", d.Day(), ruMonths[d.Month()-1], d.Year())
}
