// Command api serves the sealed-note transfer API.
//
// @title                       Sealnote Transfer API
// @version                     1.0
// @description                 Money transfers with end-to-end sealed notes.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
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

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sealnote/transfer-service/internal/api"
	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/core/secondfactor"
	"github.com/sealnote/transfer-service/internal/core/service"
	"github.com/sealnote/transfer-service/internal/infrastructure/config"
	"github.com/sealnote/transfer-service/internal/infrastructure/db/memory"
	mongostore "github.com/sealnote/transfer-service/internal/infrastructure/db/mongo"
	redisstore "github.com/sealnote/transfer-service/internal/infrastructure/db/redis"
	"github.com/sealnote/transfer-service/internal/infrastructure/http/handlers"
	"github.com/sealnote/transfer-service/internal/infrastructure/queue"
	"github.com/sealnote/transfer-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "sealnote-transfer-service",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

// backend is the storage selected by STORE.
type backend struct {
	users     ports.UserRepository
	txs       ports.TransactionRepository
	keys      ports.APIKeyRepository
	rotations ports.RotationStore
	locker    ports.UserLocker
	guard     secondfactor.ReplayGuard
	checks    map[string]handlers.Check
	close     func(context.Context)
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &backend{
			users:     store.Users(),
			txs:       store.Transactions(),
			keys:      store.APIKeys(),
			rotations: store,
			locker:    memory.NewLocker(),
			guard:     memory.NewReplayGuard(time.Now),
			close:     func(context.Context) {},
		}, nil
	}

	client, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.StoreTimeout,
	})
	if err != nil {
		return nil, err
	}
	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	store := mongostore.NewStore(client, db)
	indexCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := store.EnsureIndexes(indexCtx); err != nil {
		_ = rdb.Close()
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &backend{
		users:     store.Users(),
		txs:       store.Transactions(),
		keys:      store.APIKeys(),
		rotations: store,
		locker:    redisstore.NewLocker(rdb, cfg.Rotation.LeaseTTL, log),
		guard:     redisstore.NewReplayGuard(rdb),
		checks: map[string]handlers.Check{
			"mongodb": handlers.MongoCheck(db),
			"redis":   handlers.RedisCheck(rdb),
		},
		close: func(ctx context.Context) {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("close redis")
			}
			if err := client.Disconnect(ctx); err != nil {
				log.Error().Err(err).Msg("disconnect mongo")
			}
		},
	}, nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	creds, err := credential.NewStore(credential.Config{
		BcryptCost: cfg.Crypto.BcryptCost,
		KeyBits:    cfg.Crypto.RSAKeyBits,
		KDF: credential.KDFParams{
			Time:     cfg.Crypto.KDFTime,
			MemoryKB: cfg.Crypto.KDFMemoryKB,
			Threads:  cfg.Crypto.KDFThreads,
		},
	})
	if err != nil {
		return err
	}

	totpKey, err := cfg.TOTPKey()
	if err != nil {
		return err
	}
	codes, err := secondfactor.New(secondfactor.Config{
		Issuer:        cfg.TOTP.Issuer,
		Period:        cfg.TOTP.Period,
		Skew:          cfg.TOTP.Skew,
		EncryptionKey: totpKey,
	}, be.guard)
	if err != nil {
		return err
	}

	tokens, err := gateway.NewTokenIssuer(gateway.TokenConfig{
		Secret: []byte(cfg.JWT.Secret),
		TTL:    cfg.JWT.TTL,
		Leeway: cfg.JWT.Leeway,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	pool := queue.NewPool(cfg.Crypto.Workers, logger.Component("crypto_pool"))
	// Stopped explicitly after the server drains, so in-flight requests
	// can finish their crypto work.
	pool.Start(context.Background())

	svc := api.Services{
		Accounts:  service.NewAccountService(be.users, be.locker, creds, pool, codes, tokens, log),
		APIKeys:   service.NewAPIKeyService(be.keys, cfg.APIKeyMaxTTL, log),
		Transfers: service.NewTransferService(be.users, be.txs, be.locker, pool, log),
		Rotations: service.NewRotationService(be.users, be.txs, be.rotations, be.locker, creds, pool, service.RotationConfig{
			Timeout:       cfg.Rotation.Timeout,
			CommitTimeout: cfg.StoreTimeout,
		}, log),
	}
	gw := gateway.New(be.users, be.keys, tokens, creds, codes, logger.Component("gateway"))

	e := api.NewRouter(svc, gw, be.checks, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		pool.Stop()
		be.close(shutdownCtx)
		return err
	})
	return g.Wait()
}
