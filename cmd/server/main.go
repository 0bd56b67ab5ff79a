package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridplay/tictac-server-go/internal/config"
	"github.com/gridplay/tictac-server-go/internal/game"
	"github.com/gridplay/tictac-server-go/internal/invite"
	"github.com/gridplay/tictac-server-go/internal/repository"
	"github.com/gridplay/tictac-server-go/internal/server"
	"github.com/gridplay/tictac-server-go/internal/session"
	"github.com/gridplay/tictac-server-go/internal/stats"
	"github.com/gridplay/tictac-server-go/internal/user"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting gridplay server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	db, err := repository.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	poolStats := db.Stats()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", poolStats.TotalConns()),
		zap.Int32("idle_conns", poolStats.IdleConns()),
	)

	sessionMgr := session.NewManager(cfg.Auth.SessionLease, logger)
	logger.Info("session manager initialized",
		zap.Duration("lease", cfg.Auth.SessionLease),
	)
	go sessionMgr.CleanupExpiredSessions(ctx)

	userRepo := repository.NewUserRepository(db)
	gameRepo := repository.NewGameRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	userMgr := user.NewManager(userRepo, logger)
	logger.Info("user manager initialized")

	inviteMgr := invite.NewManager(cfg.Auth.InvitationTTL, logger)
	logger.Info("invitation manager initialized",
		zap.Duration("ttl", cfg.Auth.InvitationTTL),
	)
	go inviteMgr.CleanupExpired(ctx)

	updater := stats.NewUpdater(statsRepo, cfg.Game.WinPoints, cfg.Game.LossPenalty, logger)

	gameMgr := game.NewManager(gameRepo, updater, logger)
	logger.Info("game manager initialized",
		zap.Duration("bot_move_delay", cfg.Game.BotMoveDelay),
	)

	gateway := server.NewGateway(cfg, sessionMgr, userMgr, gameMgr, inviteMgr, statsRepo, gameRepo, logger)

	go func() {
		if runErr := gateway.Run(ctx); runErr != nil {
			logger.Error("gateway error", zap.Error(runErr))
		}
	}()

	logger.Info("gridplay server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown error", zap.Error(err))
	}

	sessionMgr.CloseAll()

	logger.Info("gridplay server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
