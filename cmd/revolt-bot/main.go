package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nevi/revolt-chess-bot/internal/chessmatch"
	"github.com/nevi/revolt-chess-bot/internal/command"
	"github.com/nevi/revolt-chess-bot/internal/config"
	"github.com/nevi/revolt-chess-bot/internal/entitycache"
	"github.com/nevi/revolt-chess-bot/internal/gateway"
	"github.com/nevi/revolt-chess-bot/internal/msgcat"
	"github.com/nevi/revolt-chess-bot/internal/obslog"
	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		panic(err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config_load_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_url_invalid", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis_unreachable", zap.Error(err))
	}

	client := revoltfast.NewClient(cfg.APIBaseURL, cfg.BotToken, cfg.IsBot)
	cache := entitycache.New(rdb, client.FetchRaw, logger.Named("cache"))

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		logger.Fatal("msgcat_load_failed", zap.Error(err))
	}

	var repo *chessmatch.Repository
	if cfg.DatabaseURL != "" {
		repo, err = chessmatch.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db_connect_failed", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
	} else {
		logger.Info("db_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	matches := chessmatch.NewManager(ctx, client, cat, cfg.BotPrefix,
		cfg.SessionIdleTTL, repo, logger.Named("chess"))

	self, err := client.FetchSelf(ctx)
	if err != nil {
		logger.Fatal("identity_check_failed", zap.Error(err))
	}
	logger.Info("bot_identity", zap.String("user_id", self.ID), zap.String("username", self.Username))

	env := &command.Env{
		Client:  client,
		Cache:   cache,
		Cat:     cat,
		Matches: matches,
		Prefix:  cfg.BotPrefix,
		SelfID:  self.ID,
	}
	router := command.NewRouter(env, command.Registry(), 8, logger.Named("command"))

	sock := revoltfast.NewSocket(cfg.WSURL)
	sock.OnStateChange(func(state revoltfast.SocketState) {
		logger.Debug("socket_state", zap.String("state", string(state)))
	})
	sup := gateway.NewSupervisor(gateway.Config{
		Token:                cfg.BotToken,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HeartbeatDelay:       cfg.HeartbeatDelay,
	}, sock, cache, client, router, logger.Named("gateway"))

	err = sup.Run(ctx)

	matches.Shutdown()
	router.Stop()

	if err != nil && ctx.Err() == nil {
		logger.Error("gateway_exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}
