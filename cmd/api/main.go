package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/auth"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/cache"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/services/tetris"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cmd := &cli.Command{
		Name:  "tetris-api",
		Usage: "Tetris game server (WebSocket + REST)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "HTTP listen port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "database-url", Usage: "PostgreSQL connection URL", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the token denylist (in-process if empty)", Sources: cli.EnvVars("REDIS_ADDR")},
			&cli.StringFlag{Name: "log-level", Usage: "logrus level", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Usage: "text or json", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.DurationFlag{Name: "token-ttl", Usage: "lifetime of issued tokens", Sources: cli.EnvVars("TOKEN_TTL")},
			&cli.DurationFlag{Name: "time-attack-limit", Usage: "time limit of a time attack game", Sources: cli.EnvVars("TIME_ATTACK_LIMIT")},
			&cli.BoolFlag{Name: "migrate", Value: true, Usage: "create tables on startup"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "check-db",
				Usage:  "connect to the database and print its version",
				Action: checkDB,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Fatal("server exited with error")
	}
}

// loadConfig は環境変数の設定にコマンドラインフラグを上書きします。
func loadConfig(cmd *cli.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
	}
	if cmd.IsSet("database-url") {
		cfg.DatabaseURL = cmd.String("database-url")
	}
	if cmd.IsSet("redis-addr") {
		cfg.RedisAddr = cmd.String("redis-addr")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("token-ttl") {
		cfg.TokenTTL = cmd.Duration("token-ttl")
	}
	if cmd.IsSet("time-attack-limit") {
		cfg.TimeAttackLimit = cmd.Duration("time-attack-limit")
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := database.NewDatabaseService(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if cmd.Bool("migrate") {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	var denylist auth.Denylist
	if cfg.RedisAddr != "" {
		var rdb *redis.Client
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		denylist = cache.NewRedisDenylist(rdb)
		logger.WithField("addr", cfg.RedisAddr).Info("using Redis token denylist")
	} else {
		logger.Warn("REDIS_ADDR is not set, revoked tokens are kept in process memory")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, denylist)
	if err != nil {
		return err
	}

	scores := database.NewScoreRepository(db.DB)
	sm := tetris.NewSessionManager(tetris.NewScoreRecorder(scores), cfg.SessionConfig(), logger)

	router := api.NewRouter(api.Dependencies{
		SessionManager: sm,
		Tokens:         tokens,
		Users:          database.NewUserRepository(db.DB),
		Scores:         scores,
		Health:         db,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			sm.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown did not complete")
	}
	// WebSocket はハイジャック済みのため Shutdown では閉じられない
	sm.Shutdown()
	return nil
}

// checkDB はデータベースへの接続を確認し、バージョンを表示します。
func checkDB(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	db, err := database.NewDatabaseService(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.Version(ctx)
	if err != nil {
		return err
	}
	logger.WithField("version", version).Info("database connection OK")
	return nil
}
