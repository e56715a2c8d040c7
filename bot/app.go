// Package bot assembles the Telegram bot: session manager, backend gateway,
// conversation flows, and update routing.
package bot

import (
	"context"
	"fmt"
	"time"

	"finbot/bot/api"
	"finbot/bot/categories"
	"finbot/bot/flows"
	"finbot/bot/session"
	coreconfig "finbot/core/config"
	tg "finbot/core/telegram"
	"finbot/core/telegram/router"
)

// App holds the assembled bot components.
type App struct {
	cfg      *coreconfig.Config
	sessions *session.Manager
	registry *tg.Registry
	routes   []tg.Route
}

// New wires all bot components from configuration.
func New(cfg *coreconfig.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config provided")
	}

	client := api.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second)

	sessions := session.NewManager(session.Options{
		TTL:           time.Duration(cfg.Session.TTLHours) * time.Hour,
		SweepInterval: time.Duration(cfg.Session.SweepMinutes) * time.Minute,
		RefreshAfter:  time.Duration(cfg.Session.TokenRefreshHours) * time.Hour,
		Authenticator: func(ctx context.Context, chatID int64, name string) (string, error) {
			res, err := client.Authenticate(ctx, chatID, name)
			if err != nil {
				return "", err
			}
			return res.Token, nil
		},
	})

	dispatch := session.NewDispatcher(sessions)
	deps := &flows.Deps{
		Sessions: sessions,
		Dispatch: dispatch,
		API:      client,
		Tree:     categories.BuiltIn(),
	}

	registry := tg.NewRegistry()
	flows.Register(registry, deps)

	routes := router.CommandRoutes(registry)
	routes = append(routes, router.TextRoute(dispatch, registry, router.TextOptions{}))
	routes = append(routes, router.CallbackRoute(dispatch, registry, router.CallbackOptions{}))

	return &App{
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		routes:   routes,
	}, nil
}

// TelegramRunOptions builds the runtime options for tg.RunTelegram.
func (a *App) TelegramRunOptions() tg.RunOptions {
	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      a.routes,
		OnStop: func(context.Context, tg.Runtime) error {
			a.sessions.Stop()
			return nil
		},
	}
}
