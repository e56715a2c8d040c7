package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "finbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// buildPoller maps the validated telegram/webhook config sections onto a
// telebot poller. NormalizeBot has already rejected unknown run modes, so
// anything that is not webhook long-polls.
func buildPoller(cfg *coreconfig.Config) (tele.Poller, string) {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		wh := &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
		return wh, coreconfig.RunModeWebhook
	}

	timeout := defaultLongPollTimeout
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}, coreconfig.RunModeLongpoll
}
