package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"guild-warden/internal/bot"
	"guild-warden/internal/config"
	"guild-warden/internal/crash"
	"guild-warden/internal/gateway/discord"
	"guild-warden/internal/handler"
	"guild-warden/internal/keylock"
	"guild-warden/internal/logger"
	"guild-warden/internal/notify"
	"guild-warden/internal/scheduler"
	"guild-warden/internal/service"
	"guild-warden/internal/status"
	"guild-warden/internal/storage"
)

// eventTimeout bounds the handling of one event, several REST calls included
const eventTimeout = 2 * time.Minute

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the moderation workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	defer crash.RecoverWithStackAndExit("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Setup(cfg); err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer logger.Sync()

	db, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	if err := storage.Migrate(db); err != nil {
		return err
	}
	store := storage.NewStore(db)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warningf("Failed to close database: %v", err)
		}
	}()

	session, err := bot.NewSession(cfg)
	if err != nil {
		return err
	}
	gw := discord.New(session, cfg.Bot.RequestTimeout)

	locks, closeLocks, err := newLocker(cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLocks()

	modlog, err := newModLog(cfg, gw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.NewModeration(store, gw, locks, modlog, cfg.Moderation)

	dispatcher := handler.NewDispatcher(handler.NewRouter(svc), cfg.Bot.Workers, cfg.Bot.QueueSize, eventTimeout)
	dispatcher.Start(ctx)

	botService := bot.Initialize(session, cfg, dispatcher)
	if err := botService.Start(ctx); err != nil {
		return err
	}

	mutes := scheduler.NewMuteExpiry(store.Mutes, svc, cfg.Moderation.MuteSweepInterval)
	permabans := scheduler.NewPermabanExecution(store.Permabans, svc, cfg.Moderation.PermabanSweepInterval)
	crash.SafeGoroutine("mute-expiry", func() { mutes.Run(ctx) })
	crash.SafeGoroutine("permaban-execution", func() { permabans.Run(ctx) })
	crash.SafeGoroutine("processing-stats", func() { dispatcher.Stats().LogProcessingStats(ctx, 10*time.Minute) })

	var server *status.Server
	if cfg.Status.Enabled {
		src := status.Sources{
			Processing: dispatcher.Stats(),
			Schedulers: map[string]func() scheduler.Stats{
				"mute_expiry":        mutes.Stats,
				"permaban_execution": permabans.Stats,
			},
			Records: map[string]status.Counter{
				"quarantines": store.Quarantines.Count,
				"mutes":       store.Mutes.Count,
				"permabans":   store.Permabans.Count,
			},
		}
		if mem, ok := locks.(*keylock.Memory); ok {
			src.Locks = mem.Held
		}
		server = status.New(cfg.Status, src)
		crash.SafeGoroutine("status-server", func() {
			if err := server.Start(); err != nil {
				logger.Errorf("Status server error: %v", err)
			}
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigChan
	logger.Infof("Received signal: %v, shutting down...", sig)

	// no new events, then let queued ones finish before the schedulers stop
	botService.Stop()

	logger.Info("Waiting for event handlers to complete...")
	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All event handlers completed")
	case <-time.After(30 * time.Second):
		logger.Warning("Timeout waiting for event handlers, proceeding with shutdown")
	}
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warningf("Status server shutdown error: %v", err)
		}
	}

	logger.Info("guild-warden stopped")
	return nil
}

// newLocker picks the Redis locker when several processes share the guilds
func newLocker(rc config.RedisConfig) (keylock.Locker, func(), error) {
	if !rc.Enabled {
		return keylock.NewMemory(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
	}

	logger.Infof("Using redis locks at %s", rc.Addr)
	return keylock.NewRedis(client, rc.Prefix, rc.LockTTL), func() { _ = client.Close() }, nil
}

func newModLog(cfg *config.Config, gw *discord.Gateway) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewChannelSink(gw, cfg.Moderation.ModLogChannel)}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		logger.Infof("Relaying the moderation log to telegram chat %d", cfg.Telegram.ChatID)
	}
	return sinks, nil
}
