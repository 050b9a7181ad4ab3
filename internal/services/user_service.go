package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"console-service/internal/models"
	"console-service/internal/repository"
)

// UserService manages console user profiles within tenants. Credentials
// and sessions are the identity provider's concern, not ours.
type UserService struct {
	users   *repository.UserRepository
	tenants *TenantService
	logger  *logrus.Logger
}

// NewUserService creates a new user service
func NewUserService(users *repository.UserRepository, tenants *TenantService, logger *logrus.Logger) *UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &UserService{users: users, tenants: tenants, logger: logger}
}

// CreateUserRequest holds the fields for user creation
type CreateUserRequest struct {
	TenantID  uuid.UUID `json:"tenant_id" binding:"required"`
	Email     string    `json:"email" binding:"required,email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Timezone  string    `json:"timezone"`
	Locale    string    `json:"locale"`
}

// UpdateUserRequest holds the mutable user fields
type UpdateUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	Status    *string `json:"status"`
	Timezone  *string `json:"timezone"`
	Locale    *string `json:"locale"`
}

// Create adds a user to a tenant, enforcing the tenant's user quota
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	tenant, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.IsDeleted() {
		return nil, NewNotFoundError("tenant", req.TenantID.String())
	}

	role := req.Role
	if role == "" {
		role = models.UserRoleViewer
	}
	if !isValidUserRole(role) {
		return nil, NewValidationError("role", "unknown role "+role)
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, NewStorageError("find user", err)
	}
	if existing != nil {
		return nil, NewValidationError("email", "already registered")
	}

	count, err := s.users.CountByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, NewStorageError("count users", err)
	}
	if tenant.MaxUsers > 0 && count >= int64(tenant.MaxUsers) {
		return nil, NewValidationError("tenant_id", fmt.Sprintf("user quota of %d reached", tenant.MaxUsers))
	}

	user := &models.User{
		TenantID:  tenant.ID,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		Status:    models.UserStatusActive,
		Timezone:  defaultString(req.Timezone, "UTC"),
		Locale:    defaultString(req.Locale, "en"),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, NewStorageError("create user", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":   user.ID,
		"tenant": tenant.ID,
	}).Info("User created")
	return user, nil
}

// Get fetches a user by id
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, NewStorageError("find user", err)
	}
	if user == nil {
		return nil, NewNotFoundError("user", id.String())
	}
	return user, nil
}

// Update applies profile changes to a user
func (s *UserService) Update(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Role != nil {
		if !isValidUserRole(*req.Role) {
			return nil, NewValidationError("role", "unknown role "+*req.Role)
		}
		user.Role = *req.Role
	}
	if req.Status != nil {
		if !isValidUserStatus(*req.Status) {
			return nil, NewValidationError("status", "unknown status "+*req.Status)
		}
		user.Status = *req.Status
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Timezone != nil {
		user.Timezone = *req.Timezone
	}
	if req.Locale != nil {
		user.Locale = *req.Locale
	}

	if err := s.users.Save(ctx, user); err != nil {
		return nil, NewStorageError("save user", err)
	}
	return user, nil
}

// ListByTenant returns the users of a tenant
func (s *UserService) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	users, err := s.users.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, NewStorageError("list users", err)
	}
	return users, nil
}

// Delete permanently removes a user
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return NewStorageError("delete user", err)
	}
	return nil
}

func isValidUserRole(r string) bool {
	return r == models.UserRoleAdmin || r == models.UserRoleOperator || r == models.UserRoleViewer
}

func isValidUserStatus(s string) bool {
	return s == models.UserStatusActive || s == models.UserStatusInactive || s == models.UserStatusLocked
}
