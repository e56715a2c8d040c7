package flows

import (
	"fmt"
	"strings"

	"finbot/bot/categories"
	"finbot/core/logger"
	"finbot/core/telegram/callbacks"
	tghelpers "finbot/core/telegram/helpers"
	"finbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const cbParent = "parent"

const keyCatName = "cat_name"

// handleAddCategory starts the standalone add-category flow.
func (d *Deps) handleAddCategory(c tele.Context) error {
	if _, ok := d.requireToken(c); !ok {
		return tghelpers.SendText(c, textUnauthorized)
	}

	id := chatID(c)
	d.Sessions.ClearFlow(id)
	d.Sessions.SetState(id, StateCatEnterName, nil)
	return tghelpers.SendText(c, "📂 Введите название новой категории:")
}

// stepCatEnterName validates the name against the backend's existing list and
// either creates the category right away or offers a parent picker.
func (d *Deps) stepCatEnterName(c tele.Context) error {
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
	existing, err := d.API.CustomCategories(ctx, token)
	if err != nil {
		logger.Error(ctx, "flow", "category.list_failed",
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "❌ Ошибка при обработке категории. Попробуйте позже.")
	}

	if categories.HasCustomNamed(existing, name) {
		return d.failFlow(c, "❌ Категория с таким названием уже существует. Попробуйте другое название.")
	}

	if len(existing) == 0 {
		return d.createCategory(c, name, nil)
	}

	d.Sessions.SetState(id, StateCatSelectParent, map[string]any{
		keyCatName: name,
		keyCustoms: existing,
	})

	var rows [][]keyboard.InlineBtn
	for _, cat := range existing {
		rows = append(rows, []keyboard.InlineBtn{
			{Text: cat.Name, Unique: cbParent, Data: fmt.Sprintf("%d", cat.ID)},
		})
	}
	rows = append(rows, []keyboard.InlineBtn{
		{Text: "Без родительской категории", Unique: cbParent, Data: "null"},
	})
	return tghelpers.SendKB(c,
		"Выберите родительскую категорию или создайте её без родительской:",
		keyboard.InlineButtonsRows(rows...))
}

// stepCatSelectParent receives the parent choice and creates the category.
func (d *Deps) stepCatSelectParent(c tele.Context) error {
	if callbacks.Key(c) != cbParent {
		return nil
	}
	id := chatID(c)

	name, ok := d.Sessions.StringValue(id, keyCatName)
	if !ok || name == "" {
		return d.failFlow(c, "")
	}

	var parentID *int64
	if payload := callbacks.Payload(c); payload != "null" {
		pid, err := callbacks.PayloadInt64(c)
		if err != nil {
			return nil
		}
		if categories.FindCustom(d.customs(id), pid) == nil {
			return nil
		}
		parentID = &pid
	}

	return d.createCategory(c, name, parentID)
}

func (d *Deps) createCategory(c tele.Context, name string, parentID *int64) error {
	token, ok := d.requireToken(c)
	if !ok {
		return d.failFlow(c, textUnauthorized)
	}

	ctx := flowContext(c)
	if _, err := d.API.CreateCustomCategory(ctx, token, name, parentID); err != nil {
		logger.Error(ctx, "flow", "category.create_failed",
			slog.String("err", err.Error()),
		)
		return d.apiFail(c, err, "❌ Ошибка при создании категории. Попробуйте позже.")
	}

	d.Sessions.ClearFlow(chatID(c))
	return tghelpers.SendText(c, fmt.Sprintf("✅ Категория \"%s\" успешно создана!", name))
}
