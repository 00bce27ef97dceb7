package main

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/go-chatgraph/internal/chat"
	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
	"github.com/petasbytes/go-chatgraph/internal/config"
	"github.com/petasbytes/go-chatgraph/internal/events"
	"github.com/petasbytes/go-chatgraph/internal/intent"
	"github.com/petasbytes/go-chatgraph/internal/logger"
	"github.com/petasbytes/go-chatgraph/internal/provider"
	"github.com/petasbytes/go-chatgraph/internal/tracing"
)

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	saver     checkpoint.Saver
	publisher events.Publisher
	bot       *chat.Bot
	closers   []func()
}

type appOptions struct {
	// needModel requires the API key; read-only commands skip it.
	needModel bool
	// quietLogs defaults the level to warn so logs do not interleave with the REPL.
	quietLogs bool
}

func loadConfig(gf *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, err
	}
	if gf.store != "" {
		cfg.Store.Backend = gf.store
	}
	if gf.dsn != "" {
		cfg.Store.DSN = gf.dsn
	}
	if gf.logMode != "" {
		cfg.LogMode = gf.logMode
	}
	return cfg, nil
}

func newApp(ctx context.Context, gf *globalFlags, opts appOptions) (*app, error) {
	cfg, err := loadConfig(gf)
	if err != nil {
		return nil, err
	}
	if opts.needModel {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateOffline()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if level == "" && opts.quietLogs {
		level = "warn"
	}
	log, err := logger.NewWithLevel(cfg.LogMode, level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, publisher: events.Nop{}}
	a.closers = append(a.closers, log.Sync)

	shutdownTrace, err := tracing.Setup(cfg.Trace, os.Stderr)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = shutdownTrace(context.Background()) })

	a.saver, err = checkpoint.Open(ctx, cfg.Store)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := a.saver.Close(); err != nil {
			log.Warn("close checkpoint store", "error", err)
		}
	})

	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Token, cfg.NATS.Subject, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	client := provider.NewAnthropicClient(option.WithAPIKey(cfg.APIKey))
	model := anthropic.Model(cfg.Model)
	responder := provider.NewResponder(client, model)
	responder.System = cfg.SystemPrompt
	responder.Temperature = cfg.Temperature
	responder.MaxTokens = cfg.MaxTokens
	responder.Budget = cfg.HistoryBudget

	var classifier intent.Classifier = intent.Keyword{}
	if cfg.IntentMode == config.IntentModeLLM {
		classifier = intent.NewToolClassifier(client, model)
	}

	a.bot, err = chat.New(responder, a.saver,
		chat.WithClassifier(classifier),
		chat.WithPublisher(a.publisher),
		chat.WithLogger(log),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	log.Debug("chatgraph ready",
		"model", cfg.Model,
		"store", cfg.Store.Backend,
		"intent_mode", cfg.IntentMode,
		"nats", cfg.NATS.URL != "",
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
