package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/NgigiN/ledgerbot/internal/amqp"
	"github.com/NgigiN/ledgerbot/internal/bot"
	"github.com/NgigiN/ledgerbot/internal/config"
	"github.com/NgigiN/ledgerbot/internal/dialogue"
	"github.com/NgigiN/ledgerbot/internal/discord"
	"github.com/NgigiN/ledgerbot/internal/health"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/log"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger := log.New(logCfg)
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting ledgerbot", log.FieldOperation, log.OpStartup, "database", cfg.DatabasePath)

	db, err := storage.NewDatabase(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize the database: %w", err)
	}
	defer db.Close()

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		defer events.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(events))
	} else {
		logger.InfoContext(ctx, "ledger events disabled - no AMQP_URL provided")
	}
	l := ledger.New(db, ledgerOpts...)

	// Validated by config.Load; empty means the calendar month.
	var defaultPeriod ledger.Period
	if cfg.DefaultPeriod != "" {
		if defaultPeriod, err = ledger.ParsePeriod(cfg.DefaultPeriod); err != nil {
			return fmt.Errorf("invalid DEFAULT_PERIOD: %w", err)
		}
	}

	machine := dialogue.NewMachine(l, dialogue.Config{
		Catalog: dialogue.Catalog{Categories: cfg.Categories, Accounts: cfg.Accounts},
		TTL:     cfg.PendingEntryTTL,
		Months:  dialogue.NewMonthBook(defaultPeriod, l.Now),
		Now:     l.Now,
		Logger:  logger,
	})
	router := bot.NewRouter(l, machine, bot.Config{
		Prefix:         cfg.CommandPrefix,
		DeleteListSize: cfg.DeleteListSize,
		Logger:         logger,
	})

	discordBot, err := discord.NewBot(cfg, router, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize the discord bot: %w", err)
	}

	checks := health.Checks{Discord: discordBot.Connected, Database: db.Ping}
	if events != nil {
		checks.Events = events.Connected
	}
	healthServer := health.NewServer(cfg.HealthAddr, checks, logger)
	scheduler := ledger.NewScheduler(l, cfg.RolloverInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return discordBot.Run(gctx) })
	g.Go(func() error { return healthServer.Run(gctx) })
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	logger.InfoContext(ctx, "bot is running", log.FieldChannelID, cfg.DiscordChannelId)
	err = g.Wait()
	logger.Info("bot stopped", log.FieldOperation, log.OpShutdown)
	return err
}
