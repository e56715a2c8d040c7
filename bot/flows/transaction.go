package flows

import (
	"fmt"
	"strings"
	"time"

	"finbot/bot/api"
	"finbot/bot/categories"
	"finbot/core/logger"
	"finbot/core/telegram/callbacks"
	tghelpers "finbot/core/telegram/helpers"
	"finbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques used by the add-transaction flow.
const (
	cbTxType     = "txtype"
	cbCategory   = "cat"
	cbCustomCat  = "catcustom"
	cbCatBack    = "catback"
	cbCatConfirm = "catok"
	cbCatNew     = "catnew"
	cbCatDelete  = "catdel"
	cbToday      = "today"
)

// Session data keys accumulated across add-transaction steps.
const (
	keyTxIncome    = "tx_income"
	keyTxAmount    = "tx_amount"
	keyTxDesc      = "tx_desc"
	keyTxCategory  = "tx_cat"
	keyNavPath     = "nav_path"
	keyNavSelected = "nav_selected"
	keyCustoms     = "customs"
)

// handleAddTransaction starts the flow with the income/expense choice.
func (d *Deps) handleAddTransaction(c tele.Context) error {
	if _, ok := d.requireToken(c); !ok {
		return tghelpers.SendText(c, textUnauthorized)
	}

	id := chatID(c)
	d.Sessions.ClearFlow(id)
	d.Sessions.SetState(id, StateTxSelectType, nil)

	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "💵 Доход", Unique: cbTxType, Data: "income"},
		{Text: "💸 Расход", Unique: cbTxType, Data: "expense"},
	})
	return tghelpers.SendKB(c, "Это доход или расход?", markup)
}

// stepTxSelectType branches on income vs expense. Income skips the category
// picker entirely; expense initializes tree navigation and prefetches custom
// categories (non-fatal on failure).
func (d *Deps) stepTxSelectType(c tele.Context) error {
	if callbacks.Key(c) != cbTxType {
		return nil
	}
	id := chatID(c)

	switch callbacks.Payload(c) {
	case "income":
		d.Sessions.SetState(id, StateTxEnterAmount, map[string]any{keyTxIncome: true})
		return tghelpers.EditOrSend(c, "Введите сумму и описание (необязательно) в формате: сумма, описание.")

	case "expense":
		token, ok := d.requireToken(c)
		if !ok {
			return d.failFlow(c, textUnauthorized)
		}

		ctx := flowContext(c)
		customs, err := d.API.CustomCategories(ctx, token)
		if err != nil {
			// Degrade to built-in categories only.
			logger.Warn(ctx, "flow", "tx.customs_prefetch_failed",
				slog.String("err", err.Error()),
			)
			customs = nil
		}

		d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
			keyTxIncome:    false,
			keyNavPath:     []int64{},
			keyNavSelected: "",
			keyCustoms:     customs,
		})
		return tghelpers.EditOrSend(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))

	default:
		return nil
	}
}

// stepTxSelectCategory drives tree navigation and custom-category actions.
// Unknown buttons are ignored.
func (d *Deps) stepTxSelectCategory(c tele.Context) error {
	id := chatID(c)

	switch callbacks.Key(c) {
	case cbCategory:
		nodeID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return nil
		}
		node := d.Tree.Find(nodeID)
		if node == nil {
			return nil
		}
		if d.Tree.IsLeaf(nodeID) {
			d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
				keyNavSelected: categories.BuiltInRef(nodeID).Encode(),
			})
		} else {
			path := append(d.navPath(id), nodeID)
			d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
				keyNavPath:     path,
				keyNavSelected: "",
			})
		}
		return tghelpers.EditOrSend(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))

	case cbCustomCat:
		customID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return nil
		}
		if categories.FindCustom(d.customs(id), customID) == nil {
			return nil
		}
		d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
			keyNavSelected: categories.CustomRef(customID).Encode(),
		})
		return tghelpers.EditOrSend(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))

	case cbCatBack:
		path := d.navPath(id)
		if len(path) > 0 {
			path = path[:len(path)-1]
		}
		d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
			keyNavPath:     path,
			keyNavSelected: "",
		})
		return tghelpers.EditOrSend(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))

	case cbCatConfirm:
		selected, _ := d.Sessions.StringValue(id, keyNavSelected)
		if selected == "" {
			return nil
		}
		d.Sessions.SetState(id, StateTxEnterAmount, map[string]any{keyTxCategory: selected})
		return tghelpers.EditOrSend(c, "Введите сумму и описание (необязательно) в формате: сумма, описание.")

	case cbCatNew:
		d.Sessions.SetState(id, StateTxNewCategory, nil)
		return tghelpers.EditOrSend(c, "📂 Введите название новой категории:")

	case cbCatDelete:
		customID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return nil
		}
		token, ok := d.requireToken(c)
		if !ok {
			return d.failFlow(c, textUnauthorized)
		}

		ctx := flowContext(c)
		if err := d.API.DeleteCustomCategory(ctx, token, customID); err != nil {
			logger.Error(ctx, "flow", "tx.custom_delete_failed",
				slog.Int64("category_id", customID),
				slog.String("err", err.Error()),
			)
			return d.apiFail(c, err, "❌ Ошибка при удалении категории. Попробуйте позже.")
		}

		remaining := make([]categories.Custom, 0)
		for _, cc := range d.customs(id) {
			if cc.ID != customID {
				remaining = append(remaining, cc)
			}
		}
		patch := map[string]any{keyCustoms: remaining}
		if selected, _ := d.Sessions.StringValue(id, keyNavSelected); selected == categories.CustomRef(customID).Encode() {
			patch[keyNavSelected] = ""
		}
		d.Sessions.SetState(id, StateTxSelectCategory, patch)
		return tghelpers.EditOrSend(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))

	default:
		return nil
	}
}

// stepTxNewCategory receives the name of an inline-created custom category,
// persists it, and returns to the picker with the new category selected.
func (d *Deps) stepTxNewCategory(c tele.Context) error {
	id := chatID(c)
	name := strings.TrimSpace(c.Text())

	if name == "" {
		return d.failFlow(c, "❌ Название категории не может быть пустым.")
	}
	if _, reserved := reservedNames()[strings.ToLower(name)]; reserved {
		return d.failFlow(c, "❌ Это название зарезервировано. Попробуйте другое.")
	}

	token, ok := d.requireToken(c)
	if !ok {
		return d.failFlow(c, textUnauthorized)
	}

	ctx := flowContext(c)
	created, err := d.API.CreateCustomCategory(ctx, token, name, nil)
	if err != nil {
		logger.Error(ctx, "flow", "tx.custom_create_failed",
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "❌ Ошибка при создании категории. Попробуйте позже.")
	}

	d.Sessions.SetState(id, StateTxSelectCategory, map[string]any{
		keyCustoms:     append(d.customs(id), created),
		keyNavSelected: categories.CustomRef(created.ID).Encode(),
	})
	return tghelpers.SendKB(c, "Выберите категорию для транзакции:", d.categoryKeyboard(id))
}

// stepTxEnterAmount parses "amount + description" and advances to the date step.
func (d *Deps) stepTxEnterAmount(c tele.Context) error {
	id := chatID(c)

	amount, desc, err := ParseAmount(c.Text())
	if err != nil {
		return d.failFlow(c, "Введите корректное значение суммы.")
	}

	d.Sessions.SetState(id, StateTxEnterDate, map[string]any{
		keyTxAmount: amount,
		keyTxDesc:   desc,
	})
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "📅 Сегодня", Unique: cbToday},
	})
	return tghelpers.SendKB(c, "Введите дату в формате дд.мм.гггг или нажмите кнопку:", markup)
}

// stepTxEnterDateText handles manual date entry. Invalid input re-prompts in
// place; this is the only step that retries instead of aborting.
func (d *Deps) stepTxEnterDateText(c tele.Context) error {
	date, err := ParseDate(c.Text())
	if err != nil {
		markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
			{Text: "📅 Сегодня", Unique: cbToday},
		})
		return tghelpers.SendKB(c, "❌ Некорректная дата. Введите дату в формате дд.мм.гггг или нажмите кнопку:", markup)
	}
	return d.submitTransaction(c, date)
}

func (d *Deps) stepTxEnterDateButton(c tele.Context) error {
	if callbacks.Key(c) != cbToday {
		return nil
	}
	return d.submitTransaction(c, time.Now())
}

// submitTransaction signs the amount, posts the transaction, fetches the new
// balance, and sends the confirmation. The session flow is cleared on both
// success and failure.
func (d *Deps) submitTransaction(c tele.Context, date time.Time) error {
	id := chatID(c)
	token, ok := d.requireToken(c)
	if !ok {
		return d.failFlow(c, textUnauthorized)
	}

	income, _ := d.Sessions.BoolValue(id, keyTxIncome)
	amount, _ := d.Sessions.Float64Value(id, keyTxAmount)
	desc, _ := d.Sessions.StringValue(id, keyTxDesc)
	customs := d.customs(id)

	signed := amount
	if !income {
		signed = -amount
	}

	var ref *categories.Ref
	if encoded, _ := d.Sessions.StringValue(id, keyTxCategory); encoded != "" {
		if parsed, err := categories.ParseRef(encoded); err == nil {
			ref = &parsed
		}
	}

	ctx := flowContext(c)
	if _, err := d.API.CreateTransaction(ctx, token, api.NewTransaction{
		Amount:      signed,
		Category:    ref,
		Description: desc,
		Date:        date,
	}); err != nil {
		logger.Error(ctx, "flow", "tx.create_failed",
			slog.String("amount", formatMoney(signed)),
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "Ошибка при добавлении транзакции.")
	}

	label := "Доход"
	if !income {
		if ref != nil {
			label = categories.PathLabel(d.Tree, customs, *ref)
		} else {
			label = "Без категории"
		}
	}
	if desc == "" {
		desc = "нет"
	}

	lines := []string{
		"✅ Транзакция успешно добавлена!",
		"",
		"💰 Сумма: " + formatMoney(signed),
		"📂 Категория: " + label,
		"📝 Описание: " + desc,
		"📅 Дата: " + date.Format("02.01.2006"),
	}

	// Balance display is best-effort; the transaction is already recorded.
	if user, err := d.API.Me(ctx, token); err == nil {
		lines = append(lines, "💼 Новый баланс: "+formatMoney(user.NetWorth))
	} else {
		logger.Warn(ctx, "flow", "tx.balance_fetch_failed",
			slog.String("err", err.Error()),
		)
	}

	d.Sessions.ClearFlow(id)
	return tghelpers.SendKB(c, strings.Join(lines, "\n"), mainMenu())
}

// categoryKeyboard renders the picker for the chat's current navigation
// state: the current tree level, custom categories and the add/delete
// affordances at the top level, and Back/Confirm as applicable.
func (d *Deps) categoryKeyboard(id int64) *tele.ReplyMarkup {
	path := d.navPath(id)
	selected, _ := d.Sessions.StringValue(id, keyNavSelected)

	var level int64
	if len(path) > 0 {
		level = path[len(path)-1]
	}

	var rows [][]keyboard.InlineBtn

	var row []keyboard.InlineBtn
	for _, node := range d.Tree.ChildrenOf(level) {
		text := node.Name
		if selected == categories.BuiltInRef(node.ID).Encode() {
			text = "✅ " + text
		}
		row = append(row, keyboard.InlineBtn{
			Text:   text,
			Unique: cbCategory,
			Data:   fmt.Sprintf("%d", node.ID),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if len(path) == 0 {
		for _, custom := range d.customs(id) {
			text := custom.Name
			if selected == categories.CustomRef(custom.ID).Encode() {
				text = "✅ " + text
			}
			rows = append(rows, []keyboard.InlineBtn{
				{Text: text, Unique: cbCustomCat, Data: fmt.Sprintf("%d", custom.ID)},
				{Text: "🗑", Unique: cbCatDelete, Data: fmt.Sprintf("%d", custom.ID)},
			})
		}
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "➕ Добавить свою категорию", Unique: cbCatNew},
		})
	}

	var nav []keyboard.InlineBtn
	if len(path) > 0 {
		nav = append(nav, keyboard.InlineBtn{Text: "⬅️ Назад", Unique: cbCatBack})
	}
	if selected != "" {
		nav = append(nav, keyboard.InlineBtn{Text: "✅ Подтвердить", Unique: cbCatConfirm})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return keyboard.InlineButtonsRows(rows...)
}

func (d *Deps) navPath(id int64) []int64 {
	v, ok := d.Sessions.Value(id, keyNavPath)
	if !ok {
		return nil
	}
	path, _ := v.([]int64)
	return path
}

func (d *Deps) customs(id int64) []categories.Custom {
	v, ok := d.Sessions.Value(id, keyCustoms)
	if !ok {
		return nil
	}
	list, _ := v.([]categories.Custom)
	return list
}
