// Package seed bootstraps the minimum RBAC state the service needs before it
// accepts traffic: the permission catalog, the base roles and one admin account.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

// DefaultAdminPassword is the placeholder used when no admin password is configured.
const DefaultAdminPassword = "ChangeMe123!"

const lockKey = "nutrition:seed"

// PasswordHasher derives password digests.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// Locker serializes bootstrap runs across processes. ok is false when another
// holder owns the lock.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// AdminAccount describes the bootstrap administrator.
type AdminAccount struct {
	Username string
	Email    string
	Password string
}

// Config controls a Seeder.
type Config struct {
	Admin AdminAccount
	// LockTTL bounds how long a crashed holder can block others.
	LockTTL time.Duration
	// LockWait bounds how long Run waits for a busy lock.
	LockWait time.Duration
	// PollInterval is the delay between lock attempts.
	PollInterval time.Duration
}

// Report summarises what a run created.
type Report struct {
	PermissionsCreated int
	RolesCreated       []string
	AdminCreated       bool
}

// Changed reports whether the run wrote anything.
func (r Report) Changed() bool {
	return r.PermissionsCreated > 0 || len(r.RolesCreated) > 0 || r.AdminCreated
}

type baseRole struct {
	name        string
	description string
	grant       rbac.PermissionFilter
}

func baseRoles() []baseRole {
	return []baseRole{
		{name: shared.RoleAdmin, description: "System administrator", grant: rbac.AllPermissions},
		{name: shared.RoleUser, description: "Default role for registered users", grant: rbac.NoPermissions},
		{name: shared.RoleSpecialist, description: "Nutrition specialist", grant: func(p rbac.Permission) bool {
			return shared.NutritionScopes(p.Name)
		}},
	}
}

// Seeder runs the idempotent bootstrap.
type Seeder struct {
	store  rbac.Store
	hasher PasswordHasher
	logger *slog.Logger
	locker Locker
	cfg    Config
}

// Option customises a Seeder.
type Option func(*Seeder)

// WithLocker serializes runs through locker.
func WithLocker(locker Locker) Option {
	return func(s *Seeder) { s.locker = locker }
}

// New constructs a Seeder.
func New(store rbac.Store, hasher PasswordHasher, logger *slog.Logger, cfg Config, opts ...Option) *Seeder {
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = DefaultAdminPassword
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Seeder{store: store, hasher: hasher, logger: logger, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ensures catalog permissions, base roles and the admin account exist.
// Existing rows are never overwritten; a second run is a no-op.
func (s *Seeder) Run(ctx context.Context) (Report, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if release == nil {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("release seed lock", slog.Any("error", err))
		}
	}()

	var report Report
	for _, entry := range shared.PermissionCatalog() {
		created, err := s.store.EnsurePermission(ctx, entry.Name, entry.Description)
		if err != nil {
			return report, fmt.Errorf("seed: ensure permission %s: %w", entry.Name, err)
		}
		if created {
			report.PermissionsCreated++
		}
	}

	var admin rbac.Role
	for _, base := range baseRoles() {
		role, created, err := s.store.EnsureRole(ctx, base.name, base.description, base.grant)
		if err != nil {
			return report, fmt.Errorf("seed: ensure role %s: %w", base.name, err)
		}
		if created {
			report.RolesCreated = append(report.RolesCreated, role.Name)
			s.logger.Info("seeded role", slog.String("role", role.Name), slog.Int("permissions", len(role.Permissions)))
		}
		if base.name == shared.RoleAdmin {
			admin = role
		}
	}

	created, err := s.ensureAdmin(ctx, admin)
	if err != nil {
		return report, err
	}
	report.AdminCreated = created

	if err := s.Verify(ctx); err != nil {
		return report, err
	}
	s.logger.Info("seed complete",
		slog.Int("permissions_created", report.PermissionsCreated),
		slog.Any("roles_created", report.RolesCreated),
		slog.Bool("admin_created", report.AdminCreated),
	)
	return report, nil
}

// Verify confirms the seeded state that request handling depends on.
func (s *Seeder) Verify(ctx context.Context) error {
	for _, name := range []string{shared.RoleAdmin, shared.RoleUser} {
		if _, err := s.store.GetRoleByName(ctx, name); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: role %q missing", shared.ErrSeedingPrecondition, name)
			}
			return fmt.Errorf("seed: verify role %s: %w", name, err)
		}
	}
	return nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, admin rbac.Role) (bool, error) {
	if admin.ID == 0 {
		return false, fmt.Errorf("%w: admin role missing", shared.ErrSeedingPrecondition)
	}
	username, err := users.NormalizeUsername(s.cfg.Admin.Username)
	if err != nil {
		return false, fmt.Errorf("seed: admin username: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(s.cfg.Admin.Email))
	if email == "" {
		return false, fmt.Errorf("%w: admin email required", shared.ErrValidation)
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return false, fmt.Errorf("seed: lookup admin: %w", err)
	}

	hash, err := s.hasher.Hash(s.cfg.Admin.Password)
	if err != nil {
		return false, fmt.Errorf("seed: hash admin password: %w", err)
	}
	user, created, err := s.store.EnsureUser(ctx, rbac.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleIDs:      []int64{admin.ID},
	})
	if err != nil {
		return false, fmt.Errorf("seed: ensure admin: %w", err)
	}
	if created {
		s.logger.Info("seeded admin user", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
		if s.cfg.Admin.Password == DefaultAdminPassword {
			s.logger.Warn("admin account uses the default password; set ADMIN_PASSWORD and rotate it", slog.String("username", user.Username))
		}
	}
	return created, nil
}

func (s *Seeder) lock(ctx context.Context) (func(context.Context) error, error) {
	if s.locker == nil {
		return nil, nil
	}
	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		release, ok, err := s.locker.TryAcquire(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("seed: acquire lock: %w", err)
		}
		if ok {
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("seed: lock %s still held after %s", lockKey, s.cfg.LockWait)
		}
		s.logger.Debug("seed lock busy, waiting")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}
