package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/otklabs/otk-auth/internal/adapter/cache"
	googleadapter "github.com/otklabs/otk-auth/internal/adapter/google"
	"github.com/otklabs/otk-auth/internal/adapter/mail"
	"github.com/otklabs/otk-auth/internal/config"
	httptransport "github.com/otklabs/otk-auth/internal/http"
	"github.com/otklabs/otk-auth/internal/http/handler"
	"github.com/otklabs/otk-auth/internal/middleware"
	"github.com/otklabs/otk-auth/internal/namespace"
	"github.com/otklabs/otk-auth/internal/otp"
	"github.com/otklabs/otk-auth/internal/repository"
	"github.com/otklabs/otk-auth/internal/server"
	"github.com/otklabs/otk-auth/internal/service"
	"github.com/otklabs/otk-auth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newUserRepository,
			newOTPRepository,
			newOTPIssuer,
			newMailer,
			newGoogleVerifier,
			newRateLimiter,
			newNamespaceResolver,
			service.NewAuthService,
			handler.NewAuthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

// newUserRepository backs accounts with Postgres when DATABASE_URL is set
// and falls back to the in-memory store otherwise.
func newUserRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.UserRepository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; user accounts are held in memory and lost on restart")
		return repository.NewMemoryUserRepo(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repository.NewPostgresUserRepo(pool), nil
}

// newOTPRepository backs pending codes with Redis when REDIS_ADDR is set,
// delegating expiry to key TTLs; the in-memory fallback runs an eviction
// janitor instead.
func newOTPRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.OTPRepository, error) {
	if cfg.RedisAddr == "" {
		repo := repository.NewMemoryOTPRepo(cfg.OTPSweepInterval, logger)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				repo.Stop()
				return nil
			},
		})
		return repo, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisOTPStore(client), nil
}

func newOTPIssuer(repo repository.OTPRepository, cfg config.Config) *otp.Issuer {
	return otp.NewIssuer(repo, cfg.OTPTTL)
}

func newMailer(cfg config.Config, logger *zap.Logger) mail.Sender {
	if cfg.SMTPUser == "" || cfg.SMTPPass == "" {
		logger.Warn("SMTP credentials missing; OTP emails will not be delivered")
		return mail.NewDisabledSender(logger)
	}
	return mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
}

func newGoogleVerifier(cfg config.Config, logger *zap.Logger) googleadapter.Verifier {
	if cfg.GoogleClientID == "" {
		logger.Warn("GOOGLE_CLIENT_ID not set; Google ID tokens cannot be verified")
	}
	return googleadapter.NewJWKSVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL, nil)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newNamespaceResolver(cfg config.Config) *namespace.Resolver {
	return namespace.NewResolver(cfg.Namespaces)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				logger.Info("http server listening", zap.String("addr", addr))
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
