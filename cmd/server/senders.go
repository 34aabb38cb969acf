package main

import (
	"fmt"
	"log/slog"

	"github.com/Priya8975/envelope-relay/internal/config"
	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/sender"
	"github.com/Priya8975/envelope-relay/internal/worker"
)

// channels are the optional collaborators a registry can route to. Nil
// fields are not registered.
type channels struct {
	feed      worker.Sender
	publisher sender.Publisher
	breaker   sender.Breaker
}

// buildRegistry registers every configured sender for its levels. Senders
// run in the order registered here: log, live feed, telegram, webhook, nats.
func buildRegistry(cfg *config.Config, ch channels, logger *slog.Logger) (*worker.Registry, error) {
	registry := worker.NewRegistry()

	guard := func(s worker.Sender) worker.Sender {
		if ch.breaker == nil {
			return s
		}
		return sender.NewGuard(s, ch.breaker)
	}

	type route struct {
		sender worker.Sender
		levels []string
	}
	var routes []route

	if len(cfg.Dispatch.LogLevels) > 0 {
		routes = append(routes, route{sender.NewLogSender(logger), cfg.Dispatch.LogLevels})
	}
	if ch.feed != nil {
		routes = append(routes, route{ch.feed, cfg.Dispatch.FeedLevels})
	}
	if cfg.Telegram.Enabled() {
		tg := sender.NewTelegramSender(cfg.Telegram.Token, cfg.Telegram.BaseURL, cfg.Telegram.Timeout, logger)
		routes = append(routes, route{guard(tg), cfg.Telegram.Levels})
	}
	if cfg.Webhook.Enabled() {
		wh := sender.NewWebhookSender(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout)
		routes = append(routes, route{guard(wh), cfg.Webhook.Levels})
	}
	if ch.publisher != nil {
		routes = append(routes, route{sender.NewNATSSender(ch.publisher, cfg.NATS.SubjectPrefix), cfg.NATS.Levels})
	}

	for _, r := range routes {
		levels, err := domain.ParseLevels(r.levels)
		if err != nil {
			return nil, fmt.Errorf("levels for %s: %w", r.sender.Name(), err)
		}
		for _, level := range levels {
			if err := registry.Register(level, r.sender); err != nil {
				return nil, err
			}
		}
		logger.Info("sender registered", "sender", r.sender.Name(), "levels", r.levels)
	}
	return registry, nil
}
