package flows

import (
	"context"
	"testing"
	"time"

	"finbot/bot/api"
	"finbot/bot/categories"
	"finbot/bot/session"
	tg "finbot/core/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// fakeGateway implements api.Gateway with overridable behaviour per test.
type fakeGateway struct {
	authenticate      func(chatID int64, name string) (api.AuthResult, error)
	updateNetWorth    func(chatID int64, netWorth float64) error
	me                func() (api.User, error)
	customCategories  func() ([]categories.Custom, error)
	createCustom      func(name string, parentID *int64) (categories.Custom, error)
	deleteCustom      func(id int64) error
	createTransaction func(tx api.NewTransaction) (int64, error)
	transactions      func(period string) ([]api.Transaction, error)
}

func (g *fakeGateway) Authenticate(_ context.Context, chatID int64, name string) (api.AuthResult, error) {
	if g.authenticate == nil {
		return api.AuthResult{Token: "tok"}, nil
	}
	return g.authenticate(chatID, name)
}

func (g *fakeGateway) UpdateNetWorth(_ context.Context, _ string, chatID int64, netWorth float64) error {
	if g.updateNetWorth == nil {
		return nil
	}
	return g.updateNetWorth(chatID, netWorth)
}

func (g *fakeGateway) Me(_ context.Context, _ string) (api.User, error) {
	if g.me == nil {
		return api.User{}, nil
	}
	return g.me()
}

func (g *fakeGateway) CustomCategories(_ context.Context, _ string) ([]categories.Custom, error) {
	if g.customCategories == nil {
		return nil, nil
	}
	return g.customCategories()
}

func (g *fakeGateway) CreateCustomCategory(_ context.Context, _, name string, parentID *int64) (categories.Custom, error) {
	if g.createCustom == nil {
		return categories.Custom{ID: 1, Name: name}, nil
	}
	return g.createCustom(name, parentID)
}

func (g *fakeGateway) DeleteCustomCategory(_ context.Context, _ string, id int64) error {
	if g.deleteCustom == nil {
		return nil
	}
	return g.deleteCustom(id)
}

func (g *fakeGateway) CreateTransaction(_ context.Context, _ string, tx api.NewTransaction) (int64, error) {
	if g.createTransaction == nil {
		return 1, nil
	}
	return g.createTransaction(tx)
}

func (g *fakeGateway) Transactions(_ context.Context, _, period string) ([]api.Transaction, error) {
	if g.transactions == nil {
		return nil, nil
	}
	return g.transactions(period)
}

type sentMessage struct {
	text   string
	markup *tele.ReplyMarkup
}

// fakeContext implements the subset of tele.Context the flows touch.
// Unimplemented interface methods panic via the embedded nil Context.
type fakeContext struct {
	tele.Context

	chat     *tele.Chat
	sender   *tele.User
	text     string
	callback *tele.Callback
	updateID int

	store map[string]any
	sent  []sentMessage
}

func newMessageCtx(chatID int64, text string) *fakeContext {
	return &fakeContext{
		chat:     &tele.Chat{ID: chatID},
		sender:   &tele.User{ID: chatID, FirstName: "Ivan"},
		text:     text,
		updateID: 1,
		store:    make(map[string]any),
	}
}

func newCallbackCtx(chatID int64, unique, payload string) *fakeContext {
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	c := newMessageCtx(chatID, "")
	c.callback = &tele.Callback{Data: data}
	return c
}

func (f *fakeContext) Chat() *tele.Chat         { return f.chat }
func (f *fakeContext) Sender() *tele.User       { return f.sender }
func (f *fakeContext) Text() string             { return f.text }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }

func (f *fakeContext) Update() tele.Update {
	return tele.Update{ID: f.updateID, Callback: f.callback}
}

func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Get(key string) any    { return f.store[key] }

func (f *fakeContext) Send(what any, opts ...any) error {
	f.record(what, opts)
	return nil
}

func (f *fakeContext) EditOrSend(what any, opts ...any) error {
	f.record(what, opts)
	return nil
}

func (f *fakeContext) Respond(_ ...*tele.CallbackResponse) error { return nil }

func (f *fakeContext) record(what any, opts []any) {
	msg := sentMessage{}
	if s, ok := what.(string); ok {
		msg.text = s
	}
	for _, opt := range opts {
		switch v := opt.(type) {
		case *tele.SendOptions:
			msg.markup = v.ReplyMarkup
		case *tele.ReplyMarkup:
			msg.markup = v
		}
	}
	f.sent = append(f.sent, msg)
}

func (f *fakeContext) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent, "expected at least one outgoing message")
	return f.sent[len(f.sent)-1].text
}

func newTestDeps(t *testing.T, gw *fakeGateway) *Deps {
	t.Helper()
	mgr := session.NewManager(session.Options{})
	t.Cleanup(mgr.Stop)

	d := &Deps{
		Sessions: mgr,
		Dispatch: session.NewDispatcher(mgr),
		API:      gw,
		Tree:     categories.BuiltIn(),
	}
	Register(tg.NewRegistry(), d)
	return d
}

const testChat = int64(100)

func dispatchCallback(t *testing.T, d *Deps, c tele.Context) error {
	t.Helper()
	handled, err := d.Dispatch.HandleCallback(c)
	require.True(t, handled, "callback must be claimed by the active step")
	return err
}

func authorize(d *Deps) {
	d.Sessions.SetAuth(testChat, "tok", "Ivan")
}

func TestOnboardingNewUser(t *testing.T) {
	var gotNetWorth float64
	gw := &fakeGateway{
		authenticate: func(chatID int64, name string) (api.AuthResult, error) {
			assert.Equal(t, testChat, chatID)
			assert.Equal(t, "Ivan", name)
			return api.AuthResult{Token: "tok-new"}, nil
		},
		updateNetWorth: func(_ int64, netWorth float64) error {
			gotNetWorth = netWorth
			return nil
		},
	}
	d := newTestDeps(t, gw)

	c := newMessageCtx(testChat, "/start")
	require.NoError(t, d.handleStart(c))
	assert.Contains(t, c.lastText(t), "Добро пожаловать, Ivan")
	assert.Contains(t, c.lastText(t), "введите текущий бюджет")
	assert.Equal(t, StateAwaitBudget, d.Sessions.State(testChat))

	c = newMessageCtx(testChat, "1500")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.InDelta(t, 1500, gotNetWorth, 1e-9)
	assert.Contains(t, c.lastText(t), "Ваш бюджет успешно обновлен")
	require.NotNil(t, c.sent[len(c.sent)-1].markup, "main menu keyboard expected")
	assert.False(t, d.Sessions.InProgress(testChat))

	token, ok := d.Sessions.Token(testChat)
	require.True(t, ok)
	assert.Equal(t, "tok-new", token)
}

func TestOnboardingExistingUserSkipsBudgetPrompt(t *testing.T) {
	balance := 2500.0
	gw := &fakeGateway{
		authenticate: func(int64, string) (api.AuthResult, error) {
			return api.AuthResult{Token: "tok", NetWorth: &balance}, nil
		},
	}
	d := newTestDeps(t, gw)

	c := newMessageCtx(testChat, "/start")
	require.NoError(t, d.handleStart(c))
	assert.Contains(t, c.lastText(t), "2500.00")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestOnboardingRejectsBadBudget(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})
	authorize(d)
	d.Sessions.SetState(testChat, StateAwaitBudget, nil)

	c := newMessageCtx(testChat, "не число")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Contains(t, c.lastText(t), "корректное число")
	assert.False(t, d.Sessions.InProgress(testChat), "flow must abort on bad input")
}

func TestExpenseTransactionEndToEnd(t *testing.T) {
	var created api.NewTransaction
	gw := &fakeGateway{
		customCategories: func() ([]categories.Custom, error) { return nil, nil },
		createTransaction: func(tx api.NewTransaction) (int64, error) {
			created = tx
			return 7, nil
		},
		me: func() (api.User, error) {
			return api.User{Name: "Ivan", NetWorth: 1249.5}, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)

	c := newMessageCtx(testChat, menuAddTransaction)
	require.NoError(t, d.handleAddTransaction(c))
	assert.Equal(t, StateTxSelectType, d.Sessions.State(testChat))

	cb := newCallbackCtx(testChat, cbTxType, "expense")
	require.NoError(t, dispatchCallback(t, d, cb))
	assert.Equal(t, StateTxSelectCategory, d.Sessions.State(testChat))

	// Descend into "Продукты", then select the "Супермаркет" leaf.
	cb = newCallbackCtx(testChat, cbCategory, "1")
	require.NoError(t, dispatchCallback(t, d, cb))
	cb = newCallbackCtx(testChat, cbCategory, "2")
	require.NoError(t, dispatchCallback(t, d, cb))

	cb = newCallbackCtx(testChat, cbCatConfirm, "")
	require.NoError(t, dispatchCallback(t, d, cb))
	assert.Equal(t, StateTxEnterAmount, d.Sessions.State(testChat))

	c = newMessageCtx(testChat, "250,50 groceries")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Equal(t, StateTxEnterDate, d.Sessions.State(testChat))

	cb = newCallbackCtx(testChat, cbToday, "")
	require.NoError(t, dispatchCallback(t, d, cb))

	assert.InDelta(t, -250.5, created.Amount, 1e-9)
	require.NotNil(t, created.Category)
	assert.Equal(t, categories.BuiltInRef(2), *created.Category)
	assert.Equal(t, "groceries", created.Description)
	assert.WithinDuration(t, time.Now(), created.Date, time.Minute)

	confirmation := cb.lastText(t)
	assert.Contains(t, confirmation, "-250.50")
	assert.Contains(t, confirmation, "🛒 Продукты > Супермаркет")
	assert.Contains(t, confirmation, "groceries")
	assert.Contains(t, confirmation, "1249.50")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestIncomeSkipsCategoryPicker(t *testing.T) {
	var created api.NewTransaction
	gw := &fakeGateway{
		createTransaction: func(tx api.NewTransaction) (int64, error) {
			created = tx
			return 1, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)

	c := newMessageCtx(testChat, menuAddTransaction)
	require.NoError(t, d.handleAddTransaction(c))

	cb := newCallbackCtx(testChat, cbTxType, "income")
	require.NoError(t, dispatchCallback(t, d, cb))
	assert.Equal(t, StateTxEnterAmount, d.Sessions.State(testChat))

	c = newMessageCtx(testChat, "500 зарплата")
	require.NoError(t, d.Dispatch.HandleMessage(c))

	cb = newCallbackCtx(testChat, cbToday, "")
	require.NoError(t, dispatchCallback(t, d, cb))

	assert.InDelta(t, 500, created.Amount, 1e-9)
	assert.Nil(t, created.Category)
	assert.Contains(t, cb.lastText(t), "Доход")
}

func TestInvalidAmountAbortsFlow(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})
	authorize(d)
	d.Sessions.SetState(testChat, StateTxEnterAmount, map[string]any{keyTxIncome: true})

	c := newMessageCtx(testChat, "abc")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Contains(t, c.lastText(t), "корректное значение суммы")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestNonFiniteAmountRejectedAtAmountStep(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})
	authorize(d)

	for _, input := range []string{"NaN groceries", "Inf", "+Inf lunch"} {
		d.Sessions.SetState(testChat, StateTxEnterAmount, map[string]any{keyTxIncome: true})

		c := newMessageCtx(testChat, input)
		require.NoError(t, d.Dispatch.HandleMessage(c))
		assert.Contains(t, c.lastText(t), "корректное значение суммы", "input %q", input)
		assert.False(t, d.Sessions.InProgress(testChat), "input %q", input)
	}
}

func TestInvalidDateRepromptsInPlace(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})
	authorize(d)
	d.Sessions.SetState(testChat, StateTxEnterDate, map[string]any{
		keyTxIncome: false,
		keyTxAmount: 100.0,
	})

	c := newMessageCtx(testChat, "31.02.2024")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Contains(t, c.lastText(t), "Некорректная дата")
	assert.Equal(t, StateTxEnterDate, d.Sessions.State(testChat), "date step retries in place")
}

func TestCustomsPrefetchFailureIsNonFatal(t *testing.T) {
	gw := &fakeGateway{
		customCategories: func() ([]categories.Custom, error) {
			return nil, assert.AnError
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)
	d.Sessions.SetState(testChat, StateTxSelectType, nil)

	cb := newCallbackCtx(testChat, cbTxType, "expense")
	require.NoError(t, dispatchCallback(t, d, cb))
	assert.Equal(t, StateTxSelectCategory, d.Sessions.State(testChat), "flow proceeds with built-in tree only")
}

func TestAddCategoryDuplicateRejected(t *testing.T) {
	gw := &fakeGateway{
		customCategories: func() ([]categories.Custom, error) {
			return []categories.Custom{{ID: 1, Name: "Хобби"}}, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)

	c := newMessageCtx(testChat, menuAddCategory)
	require.NoError(t, d.handleAddCategory(c))
	assert.Equal(t, StateCatEnterName, d.Sessions.State(testChat))

	c = newMessageCtx(testChat, "хобби")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Contains(t, c.lastText(t), "уже существует")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestAddCategoryWithParent(t *testing.T) {
	var gotName string
	var gotParent *int64
	gw := &fakeGateway{
		customCategories: func() ([]categories.Custom, error) {
			return []categories.Custom{{ID: 5, Name: "Хобби"}}, nil
		},
		createCustom: func(name string, parentID *int64) (categories.Custom, error) {
			gotName = name
			gotParent = parentID
			return categories.Custom{ID: 6, Name: name, ParentID: parentID}, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)
	d.Sessions.SetState(testChat, StateCatEnterName, nil)

	c := newMessageCtx(testChat, "Настольные игры")
	require.NoError(t, d.Dispatch.HandleMessage(c))
	assert.Equal(t, StateCatSelectParent, d.Sessions.State(testChat))

	cb := newCallbackCtx(testChat, cbParent, "5")
	require.NoError(t, dispatchCallback(t, d, cb))

	assert.Equal(t, "Настольные игры", gotName)
	require.NotNil(t, gotParent)
	assert.Equal(t, int64(5), *gotParent)
	assert.Contains(t, cb.lastText(t), "успешно создана")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestShowTransactionsEmptyPeriod(t *testing.T) {
	gw := &fakeGateway{
		transactions: func(period string) ([]api.Transaction, error) {
			assert.Equal(t, api.PeriodWeek, period)
			return nil, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)

	c := newMessageCtx(testChat, menuShowTransaction)
	require.NoError(t, d.handleShowTransactions(c))
	assert.Equal(t, StateListSelectPeriod, d.Sessions.State(testChat))

	cb := newCallbackCtx(testChat, cbPeriod, api.PeriodWeek)
	require.NoError(t, dispatchCallback(t, d, cb))
	assert.Contains(t, cb.lastText(t), "транзакций нет")
	assert.False(t, d.Sessions.InProgress(testChat))
}

func TestShowTransactionsRendersEntries(t *testing.T) {
	desc := "кофе"
	catID := "15"
	gw := &fakeGateway{
		transactions: func(string) ([]api.Transaction, error) {
			return []api.Transaction{
				{ID: 1, Amount: -120, Description: &desc, CategoryID: &catID,
					Date: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)},
				{ID: 2, Amount: 500,
					Date: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	d := newTestDeps(t, gw)
	authorize(d)
	d.Sessions.SetState(testChat, StateListSelectPeriod, nil)

	cb := newCallbackCtx(testChat, cbPeriod, api.PeriodMonth)
	require.NoError(t, dispatchCallback(t, d, cb))

	out := cb.lastText(t)
	assert.Contains(t, out, "Ваши транзакции")
	assert.Contains(t, out, "Рестораны и кафе")
	assert.Contains(t, out, "кофе")
	assert.Contains(t, out, "28 августа 2026")
	assert.Contains(t, out, "Тип: Доход")
}

func TestUnauthorizedMenuAction(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})

	c := newMessageCtx(testChat, menuBalance)
	require.NoError(t, d.handleMyBalance(c))
	assert.Equal(t, textUnauthorized, c.lastText(t))
}

func TestUnexpectedCallbackIsIgnored(t *testing.T) {
	d := newTestDeps(t, &fakeGateway{})
	authorize(d)
	d.Sessions.SetState(testChat, StateTxSelectCategory, map[string]any{
		keyNavPath:     []int64{},
		keyNavSelected: "",
	})

	// Confirm without a selected leaf is a no-op.
	cb := newCallbackCtx(testChat, cbCatConfirm, "")
	handled, err := d.Dispatch.HandleCallback(cb)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, cb.sent)
	assert.Equal(t, StateTxSelectCategory, d.Sessions.State(testChat))
}
