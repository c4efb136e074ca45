package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jusunglee/hearth/internal/bot"
	"github.com/jusunglee/hearth/internal/cooldown"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/db/postgres"
	"github.com/jusunglee/hearth/internal/db/sqlite"
	"github.com/jusunglee/hearth/internal/envsetup"
	"github.com/jusunglee/hearth/internal/health"
	"github.com/jusunglee/hearth/internal/logger"
	"github.com/jusunglee/hearth/internal/metrics"
	"github.com/jusunglee/hearth/internal/notify"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := mainE(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func mainE() error {
	forceSetup := slices.Contains(os.Args[1:], "--setup")
	if forceSetup || (envsetup.NeedsSetup(envsetup.DefaultPath) && os.Getenv("DISCORD_TOKEN") == "") {
		completed, err := envsetup.Run(envsetup.DefaultPath)
		if err != nil {
			return fmt.Errorf("running setup: %w", err)
		}
		if !completed {
			return errors.New("setup cancelled")
		}
	}

	_ = godotenv.Load(envsetup.DefaultPath)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	log := logger.New()

	repo, poolStats, err := openRepository(ctx, cfg.databaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.InfoContext(ctx, "connected to database", "postgres", poolStats != nil)

	dg, err := discordgo.New("Bot " + cfg.discordToken)
	if err != nil {
		return fmt.Errorf("creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	tracker := cooldown.New(cooldown.WithDefaultDuration(cfg.defaultCooldown))
	defer tracker.ClearAll()

	notifier := notify.New(cfg.notifyWebhookURL, cfg.notifyRate, cfg.discordToken)
	if !notifier.Enabled() {
		log.InfoContext(ctx, "no notify webhook configured, operator events are only logged")
	}

	b := bot.New(bot.NewLogger(log), bot.NewDiscordSession(dg), repo, tracker, notifier, bot.Config{
		GuildID:               cfg.guildID,
		OwnerID:               cfg.ownerID,
		DefaultCooldown:       cfg.defaultCooldown,
		PremiumCooldownFactor: cfg.premiumCooldownFactor,
		PremiumSweepInterval:  cfg.premiumSweepInterval,
	})

	healthServer := health.New(cfg.healthPort, tracker)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel(errors.New("signal received"))
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting health server", "port", cfg.healthPort)
		return healthServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return b.Run(gctx)
	})
	if poolStats != nil {
		g.Go(func() error {
			exportPoolStats(gctx, poolStats)
			return nil
		})
	}

	return g.Wait()
}

// openRepository picks PostgreSQL for postgres:// URLs and SQLite otherwise.
// poolStats is nil for SQLite.
func openRepository(ctx context.Context, url string) (db.Repository, func() *pgxpool.Stat, error) {
	if isPostgresURL(url) {
		repo, err := postgres.New(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		return repo, repo.PoolStats, nil
	}

	repo, err := sqlite.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return repo, nil, nil
}

// exportPoolStats periodically exports pgxpool stats as Prometheus gauges.
func exportPoolStats(ctx context.Context, stats func() *pgxpool.Stat) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s := stats()
			metrics.DBPoolTotalConns.Set(float64(s.TotalConns()))
			metrics.DBPoolAcquiredConns.Set(float64(s.AcquiredConns()))
		case <-ctx.Done():
			return
		}
	}
}
