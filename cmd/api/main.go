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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/config"
	"github.com/shinyyama/safedeal/internal/db"
	"github.com/shinyyama/safedeal/internal/logging"
	appmw "github.com/shinyyama/safedeal/internal/middleware"
	"github.com/shinyyama/safedeal/internal/server"
	"golang.org/x/sync/errgroup"
)

var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

// run serves until ctx is done or a component fails.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	verifier, err := appmw.NewVerifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	srv := server.New(cfg, server.Deps{
		Verifier:  verifier,
		Redis:     rdb,
		Logger:    logger,
		GitSHA:    gitSHA,
		BuildTime: buildTime,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// The server answers health checks while the database comes up; the
	// sweeper starts once it is reachable.
	g.Go(func() error {
		conn, err := db.Connect(cfg)
		if err != nil {
			return err
		}
		if err := db.Migrate(conn); err != nil {
			return err
		}
		srv.SetDB(conn)
		logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")
		return srv.Sweeper().Run(gctx)
	})

	if broker := srv.Broker(); broker != nil {
		g.Go(func() error {
			return broker.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
