package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/config"
	"github.com/kailas-cloud/expensify-os/internal/db/redis"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
	"github.com/kailas-cloud/expensify-os/internal/notify"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/plugin/builtin"
	"github.com/kailas-cloud/expensify-os/internal/ratelimit"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
	"github.com/kailas-cloud/expensify-os/internal/repository/ledger"
	"github.com/kailas-cloud/expensify-os/internal/transport/expensify"
	healthuc "github.com/kailas-cloud/expensify-os/internal/usecase/health"
	runuc "github.com/kailas-cloud/expensify-os/internal/usecase/run"
	validateuc "github.com/kailas-cloud/expensify-os/internal/usecase/validate"
)

// app is the composition root shared by the commands.
type app struct {
	cfg          config.Config
	logger       *zap.Logger
	registry     *plugin.Registry
	backend      *expensify.Client
	receipts     *receipt.Command
	placeholders *receipt.Placeholder
	store        *redis.Store  // nil when no ledger is configured
	ledger       *ledger.Store // nil when no ledger is configured
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	metrics.Register()

	limiter := ratelimit.New(ratelimit.Config{
		ShortLimit:  cfg.RateLimit.ShortLimit,
		ShortWindow: time.Duration(cfg.RateLimit.ShortWindowSec) * time.Second,
		LongLimit:   cfg.RateLimit.LongLimit,
		LongWindow:  time.Duration(cfg.RateLimit.LongWindowSec) * time.Second,
	}, log.Named("ratelimit"))

	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: builtin.Registry(),
		backend: expensify.NewClient(&expensify.Config{
			PartnerUserID:     cfg.Expensify.PartnerUserID,
			PartnerUserSecret: cfg.Expensify.PartnerUserSecret,
			EmployeeEmail:     cfg.Expensify.EmployeeEmail,
			BaseURL:           cfg.Expensify.BaseURL,
			Limiter:           limiter,
			Logger:            log.Named("expensify"),
		}),
		receipts: receipt.NewCommand(receipt.CommandConfig{
			Argv:               cfg.Browser.Command,
			DownloadsDir:       cfg.Browser.DownloadsDir,
			StateDir:           cfg.Browser.StateDir,
			Headless:           *cfg.Browser.Headless,
			ActionTimeout:      time.Duration(cfg.Browser.TimeoutMS) * time.Millisecond,
			Timeout:            time.Duration(cfg.Browser.CommandTimeoutSec) * time.Second,
			ScreenshotsOnError: *cfg.Browser.ScreenshotsOnError,
			Logger:             log.Named("receipt"),
		}),
		placeholders: receipt.NewPlaceholder(cfg.Browser.DownloadsDir),
	}

	if cfg.Ledger.Enabled() {
		store, err := redis.NewStore(redis.Config{
			Addrs:    cfg.Ledger.Addrs,
			Username: cfg.Ledger.Username,
			Password: cfg.Ledger.Password,
			DB:       cfg.Ledger.DB,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.Ledger.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			a.close()
			return nil, fmt.Errorf("ledger not ready: %w", err)
		}
		a.store = store
		a.ledger = ledger.New(store, cfg.Ledger.KeyPrefix, time.Duration(cfg.Ledger.TTLDays)*24*time.Hour)
		log.Info("Ledger connected", zap.Strings("addrs", cfg.Ledger.Addrs))
	}

	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
}

func (a *app) settings(p config.PluginConfig) plugin.Settings {
	return plugin.Settings{
		Credentials: p.Credentials,
		Category:    p.Category,
		BaseURL:     p.BaseURL,
		Timeout:     time.Duration(p.TimeoutSec) * time.Second,
	}
}

// runTargets returns configured plugins in name order.
func (a *app) runTargets() []runuc.Target {
	targets := make([]runuc.Target, 0, len(a.cfg.Plugins))
	for _, name := range sortedKeys(a.cfg.Plugins) {
		p := a.cfg.Plugins[name]
		targets = append(targets, runuc.Target{Name: name, Enabled: p.IsEnabled(), Settings: a.settings(p)})
	}
	return targets
}

func (a *app) validateTargets() []validateuc.Target {
	targets := make([]validateuc.Target, 0, len(a.cfg.Plugins))
	for _, name := range sortedKeys(a.cfg.Plugins) {
		p := a.cfg.Plugins[name]
		targets = append(targets, validateuc.Target{Name: name, Enabled: p.IsEnabled(), Settings: a.settings(p)})
	}
	return targets
}

func (a *app) notifiers() []runuc.Notifier {
	var out []runuc.Notifier
	if a.cfg.Notifications.SlackWebhookURL != "" {
		out = append(out, notify.NewSlack(notify.SlackConfig{
			WebhookURL: a.cfg.Notifications.SlackWebhookURL,
			Logger:     a.logger.Named("slack"),
		}))
	}
	if a.cfg.Notifications.Desktop {
		out = append(out, notify.NewDesktop())
	}
	return out
}

func (a *app) runService() *runuc.Service {
	cfg := runuc.Config{
		Plugins:      a.registry,
		Submitter:    a.backend,
		Notifiers:    a.notifiers(),
		Receipts:     a.receipts,
		Placeholders: a.placeholders,
		Logger:       a.logger.Named("run"),
	}
	// Pass nil interface, not typed nil pointer
	if a.ledger != nil {
		cfg.Ledger = a.ledger
	}
	return runuc.New(cfg)
}

func (a *app) validateService() *validateuc.Service {
	return validateuc.New(validateuc.Config{
		Plugins:  a.registry,
		Receipts: a.receipts,
		Logger:   a.logger.Named("validate"),
	})
}

func (a *app) healthService() *healthuc.Service {
	if a.store != nil {
		return healthuc.New(a.backend, a.store)
	}
	return healthuc.New(a.backend, nil)
}
