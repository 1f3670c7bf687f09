package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/bot"
	"github.com/iamwavecut/ngmod/internal/cache"
	"github.com/iamwavecut/ngmod/internal/config"
	"github.com/iamwavecut/ngmod/internal/db/postgres"
	"github.com/iamwavecut/ngmod/internal/db/relational"
	"github.com/iamwavecut/ngmod/internal/db/sqlite"
	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
	"github.com/iamwavecut/ngmod/internal/lifecycle"
	"github.com/iamwavecut/ngmod/internal/observability"
	"github.com/iamwavecut/ngmod/internal/rpc"
	"github.com/iamwavecut/ngmod/internal/timers"
)

const (
	shutdownTimeout = 30 * time.Second
	// messageCacheSize keeps recent messages per channel so edits carry their previous content.
	messageCacheSize = 100

	intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentAutoModerationConfiguration |
		discordgo.IntentAutoModerationExecution
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatalln("exiting")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("cant close db")
		}
	}()

	telemetry, err := observability.New(cfg.RPC.MetricsAddr)
	if err != nil {
		return errors.Wrap(err, "cant initialize telemetry")
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return errors.Wrap(err, "cant initialize discord session")
	}
	session.Identify.Intents = intents
	session.ShardID = cfg.ShardID
	session.ShardCount = cfg.ShardCount
	session.State.MaxMessageCount = messageCacheSize
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		session.LogLevel = discordgo.LogDebug
	}

	ops := discord.NewOperations(session)
	configs := cache.NewManager(store)
	queue := timers.New(store, timers.Options{
		Window: cfg.Moderation.TimerWindow,
		Idle:   cfg.Moderation.TimerIdle,
	})

	audit := moderation.NewAuditLogger(ops, store, configs)
	executor := moderation.NewExecutor(ops, queue, audit)
	ledger := moderation.NewLedger(store, cfg.Moderation.PointsThreshold, cfg.Moderation.PointsExpiry)
	enforcer := moderation.NewEnforcer(executor, ledger, audit, cfg.Moderation.InflightTTL)
	invites := moderation.NewInviteResolver(ops, cfg.Moderation.InviteTTL, cfg.Moderation.InviteNegativeTTL)
	automod := moderation.NewAutomod(ops, configs, invites, enforcer)
	commands := moderation.NewCommands(ops, configs, executor, enforcer, ledger, audit, moderation.CommandOptions{
		ClearLimit:  cfg.Moderation.ClearLimit,
		ClearWindow: cfg.Moderation.ClearWindow,
	})
	events := moderation.NewEvents(ops, store, configs, queue)
	events.RegisterTimers(queue)

	processor := bot.NewUpdateProcessor(ops, automod, events, bot.NewInteractions(session, commands))
	service := bot.NewService(session, ops, processor, bot.Options{
		ApplicationID:   cfg.ApplicationID,
		DevGuildID:      cfg.DevGuildID,
		EnabledHandlers: cfg.EnabledHandlers,
	})

	runtime := lifecycle.NewRuntime().
		Register("telemetry", telemetry).
		Register("timers", queue).
		Register("rpc", rpc.NewServer(cfg.RPC.Addr, configs, telemetry.Logger)).
		Register("bot", service)

	replaced := make(chan struct{})
	go func() {
		select {
		case <-infra.ExecutableReplaced(ctx):
			log.Warn("executable file was modified, shutting down")
			close(replaced)
		case <-ctx.Done():
		}
	}()

	log.WithField("shard", cfg.ShardID).Info("ngmod starting")
	return runtime.Run(ctx, replaced, shutdownTimeout)
}

func openStore(ctx context.Context, cfg config.Config) (*relational.Client, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.NewPostgresClient(ctx, postgres.Options{
			URL:          cfg.Database.URL,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			Migrate:      cfg.Database.Migrate,
		})
	case "sqlite":
		dir, err := infra.GetWorkDir(cfg.DotPath)
		if err != nil {
			return nil, errors.Wrap(err, "cant prepare work dir")
		}
		return sqlite.NewSQLiteClient(ctx, dir, cfg.Database.SQLiteFile)
	default:
		return nil, errors.Errorf("unknown db driver %q", cfg.Database.Driver)
	}
}
