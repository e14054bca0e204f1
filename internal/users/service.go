package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/secure/precis"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

const maxUsernameLength = 64

// Hasher derives password digests.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Service handles user business logic.
type Service struct {
	store     rbac.Store
	hasher    Hasher
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(store rbac.Store, hasher Hasher) *Service {
	return &Service{store: store, hasher: hasher, validator: validator.New()}
}

// List returns a page of users and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]rbac.User, int, error) {
	return s.store.ListUsers(ctx, limit, offset)
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (rbac.User, error) {
	return s.store.GetUser(ctx, id)
}

// Create registers a user. Without explicit role IDs the default role is
// assigned; a missing default role means bootstrap never ran.
func (s *Service) Create(ctx context.Context, in CreateInput) (rbac.User, error) {
	username, err := NormalizeUsername(in.Username)
	if err != nil {
		return rbac.User{}, err
	}
	email, err := s.normalizeEmail(in.Email)
	if err != nil {
		return rbac.User{}, err
	}
	if in.Password == "" {
		return rbac.User{}, fmt.Errorf("%w: password required", shared.ErrValidation)
	}
	roleIDs := in.RoleIDs
	if len(roleIDs) == 0 {
		role, err := s.store.GetRoleByName(ctx, shared.RoleUser)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return rbac.User{}, fmt.Errorf("%w: default role %q missing", shared.ErrSeedingPrecondition, shared.RoleUser)
			}
			return rbac.User{}, err
		}
		roleIDs = []int64{role.ID}
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return rbac.User{}, err
	}
	return s.store.CreateUser(ctx, rbac.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleIDs:      roleIDs,
	})
}

// Replace overwrites username, email and password. Roles are replaced only when provided.
func (s *Service) Replace(ctx context.Context, id int64, in CreateInput, roleIDs *[]int64) (rbac.User, error) {
	return s.Patch(ctx, id, Patch{
		Username: &in.Username,
		Email:    &in.Email,
		Password: &in.Password,
		RoleIDs:  roleIDs,
	})
}

// Patch applies the provided fields and commits them with any role reassignment as one unit.
func (s *Service) Patch(ctx context.Context, id int64, p Patch) (rbac.User, error) {
	if p.IsEmpty() {
		return s.store.GetUser(ctx, id)
	}
	var changes rbac.UserChanges
	if p.Username != nil {
		username, err := NormalizeUsername(*p.Username)
		if err != nil {
			return rbac.User{}, err
		}
		changes.Username = &username
	}
	if p.Email != nil {
		email, err := s.normalizeEmail(*p.Email)
		if err != nil {
			return rbac.User{}, err
		}
		changes.Email = &email
	}
	if p.Password != nil {
		if *p.Password == "" {
			return rbac.User{}, fmt.Errorf("%w: password required", shared.ErrValidation)
		}
		hash, err := s.hasher.Hash(*p.Password)
		if err != nil {
			return rbac.User{}, err
		}
		changes.PasswordHash = &hash
	}
	if p.RoleIDs != nil {
		ids := append([]int64{}, (*p.RoleIDs)...)
		changes.RoleIDs = &ids
	}
	return s.store.UpdateUser(ctx, id, changes)
}

// Delete removes a user. Roles and permissions are left untouched.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

// NormalizeUsername applies the PRECIS case-mapped username profile.
func NormalizeUsername(raw string) (string, error) {
	username, err := precis.UsernameCaseMapped.String(strings.TrimSpace(raw))
	if err != nil || username == "" {
		return "", fmt.Errorf("%w: invalid username", shared.ErrValidation)
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("%w: username too long", shared.ErrValidation)
	}
	return username, nil
}

func (s *Service) normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := s.validator.Var(email, "required,email,max=254"); err != nil {
		return "", fmt.Errorf("%w: invalid email", shared.ErrValidation)
	}
	return email, nil
}
