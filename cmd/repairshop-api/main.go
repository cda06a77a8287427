// cmd/repairshop-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"repairshop/internal/access"
	"repairshop/internal/adminapi"
	"repairshop/internal/catalog"
	"repairshop/internal/possync"
	"repairshop/internal/zettle"
	"repairshop/pkg/config"
	"repairshop/pkg/db"
	"repairshop/pkg/logger"
	"repairshop/pkg/middleware"
	"repairshop/pkg/problems"
	"repairshop/pkg/secretbox"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, adminapi.ServiceName)
	defer log.Sync()

	problems.SetBase(cfg.PublicBaseURL + "/problems")

	ctx := context.Background()
	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)
	if pool != nil {
		for name, ensure := range map[string]func(context.Context, *pgxpool.Pool) error{
			"zettle":  zettle.EnsureSchema,
			"catalog": catalog.EnsureSchema,
			"possync": possync.EnsureSchema,
		} {
			if err := ensure(ctx, pool); err != nil {
				log.Fatalw("schema", "module", name, "err", err)
			}
		}
	}

	backend, store := tokenStore(cfg, pool, rdb, log)
	client := zettle.NewClient(cfg.Zettle, store, log)

	var services catalog.Repository
	if pool != nil {
		services = catalog.NewPostgresRepository(pool)
	} else {
		services = catalog.NewMemoryRepository()
	}

	cats, err := possync.LoadCategoryMap(cfg.CategoryMapFile)
	if err != nil {
		log.Fatalw("category map", "file", cfg.CategoryMapFile, "err", err)
	}
	syncer := possync.NewSyncer(client, services, locker(pool, rdb, log), cats, possync.Options{
		Currency: cfg.Zettle.Currency,
		UnitName: cfg.Zettle.UnitName,
		LeaseTTL: cfg.SyncLeaseTTL,
	}, log)

	authz, err := access.New(ctx, cfg.AccessPolicyFile)
	if err != nil {
		log.Fatalw("access policy", "file", cfg.AccessPolicyFile, "err", err)
	}

	app := adminapi.New(log, cfg, adminapi.Deps{
		Zettle:       client,
		Syncer:       syncer,
		Services:     services,
		Access:       authz,
		TokenBackend: backend,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("repairshop-api listening", "addr", cfg.HTTPAddr, "token_store", backend, "zettle_env", cfg.Zettle.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	_ = middleware.ShutdownTracing(sctx)
	if pool != nil {
		pool.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	fmt.Println("repairshop-api stopped")
}

func tokenStore(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *zap.SugaredLogger) (zettle.TokenBackend, zettle.TokenStore) {
	backend, err := zettle.PickBackend(cfg.TokenStore, pool != nil, rdb != nil)
	if err != nil {
		log.Fatalw("token store", "err", err)
	}
	box, err := secretbox.New(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatalw("token encryption key", "err", err)
	}
	if !box.Enabled() && backend != zettle.BackendMemory {
		log.Warnw("TOKEN_ENCRYPTION_KEY not set, tokens are stored in plaintext")
	}
	switch backend {
	case zettle.BackendPostgres:
		return backend, zettle.NewPostgresTokenStore(pool, box)
	case zettle.BackendRedis:
		return backend, zettle.NewRedisTokenStore(rdb, zettle.DefaultTokenKey, box)
	}
	return backend, zettle.NewMemoryTokenStore()
}

// locker prefers redis, then postgres. The memory lease only guards a single process.
func locker(pool *pgxpool.Pool, rdb *redis.Client, log *zap.SugaredLogger) possync.Locker {
	switch {
	case rdb != nil:
		return possync.NewRedisLocker(rdb)
	case pool != nil:
		return possync.NewPostgresLocker(pool)
	}
	log.Warnw("no redis or postgres, sync lease is process-local")
	return possync.NewMemoryLocker()
}
