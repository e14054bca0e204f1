package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/nutrition-api/nutrition-api/internal/auth"
	"github.com/nutrition-api/nutrition-api/internal/observability"
	"github.com/nutrition-api/nutrition-api/internal/platform/cache"
	"github.com/nutrition-api/nutrition-api/internal/platform/db"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/roles"
	"github.com/nutrition-api/nutrition-api/internal/seed"
	"github.com/nutrition-api/nutrition-api/internal/store/postgres"
	"github.com/nutrition-api/nutrition-api/internal/store/sqlite"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

// Storage bundles the credential store with its health probe and teardown.
type Storage struct {
	Store  rbac.Store
	Health Pinger
	close  func()
}

// Close releases the underlying connections.
func (s *Storage) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStorage connects the configured driver and applies migrations.
func OpenStorage(ctx context.Context, cfg *Config) (*Storage, error) {
	switch cfg.DBDriver {
	case DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Storage{Store: store, Health: store, close: func() { _ = store.Close() }}, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Storage{Store: store, Health: store, close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// OpenSeedLock returns a Redis-backed seed lock when REDIS_ADDR is set. The
// returned client must be closed by the caller; both are nil without Redis.
func OpenSeedLock(ctx context.Context, cfg *Config) (seed.Locker, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil, nil
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewLock(client), client, nil
}

// NewPasswordHasher returns the argon2id hasher used by every component.
func NewPasswordHasher() *auth.Hasher {
	return auth.NewHasher(auth.DefaultHashParams)
}

// Seed bootstraps the permission catalog, base roles and admin account.
func Seed(ctx context.Context, cfg *Config, logger *slog.Logger, store rbac.Store, hasher seed.PasswordHasher, locker seed.Locker) (seed.Report, error) {
	var opts []seed.Option
	if locker != nil {
		opts = append(opts, seed.WithLocker(locker))
	}
	seeder := seed.New(store, hasher, logger, seed.Config{
		Admin: seed.AdminAccount{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		},
	}, opts...)
	return seeder.Run(ctx)
}

// Deps carries the collaborators NewHandler wires into the router.
type Deps struct {
	Store   rbac.Store
	Health  Pinger
	Hasher  *auth.Hasher
	Metrics *observability.Metrics
}

// NewHandler assembles services, handlers and middleware into the HTTP handler.
func NewHandler(cfg *Config, logger *slog.Logger, deps Deps) (http.Handler, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.AccessTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = NewPasswordHasher()
	}

	var recorder rbac.DenialRecorder
	var logins auth.LoginRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
		logins = deps.Metrics
	}

	authn := auth.Middleware{
		Resolver: auth.NewResolver(tokens, deps.Store),
		Logger:   logger,
		Recorder: recorder,
	}
	guard := rbac.Middleware{Logger: logger, Recorder: recorder}

	rbacService := rbac.NewService(deps.Store)
	userService := users.NewService(deps.Store, hasher)
	authService := auth.NewService(deps.Store, userService, hasher, tokens, cfg.AllowSignup)

	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService, authn, logins),
		UsersHandler:       users.NewHandler(logger, userService, guard),
		RolesHandler:       roles.NewHandler(logger, rbacService, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, guard),
		Authn:              authn,
		Store:              deps.Health,
		Metrics:            deps.Metrics,
	}), nil
}
