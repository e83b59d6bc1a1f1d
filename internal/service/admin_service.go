package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
)

// AdminService handles admin business logic.
type AdminService struct {
	adminRepo *repository.AdminRepository
	roleRepo  *repository.RoleRepository
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo *repository.AdminRepository, roleRepo *repository.RoleRepository) *AdminService {
	return &AdminService{adminRepo: adminRepo, roleRepo: roleRepo}
}

// GetByEmail retrieves an admin by email.
func (s *AdminService) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return s.adminRepo.GetByEmail(ctx, normalizeEmail(email))
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// GetPermissions retrieves permission codes for an admin's role.
func (s *AdminService) GetPermissions(ctx context.Context, roleID int) ([]string, error) {
	return s.roleRepo.GetPermissionsByRoleID(ctx, roleID)
}

// Create creates a new admin.
func (s *AdminService) Create(ctx context.Context, admin *model.Admin) error {
	admin.Email = normalizeEmail(admin.Email)
	return s.adminRepo.Create(ctx, admin)
}

// UpdatePassword replaces an admin's password hash.
func (s *AdminService) UpdatePassword(ctx context.Context, id int, hash string) error {
	return s.adminRepo.UpdatePassword(ctx, id, hash)
}

// EnsureRole makes sure the named role exists and holds permissions,
// returning its ID.
func (s *AdminService) EnsureRole(ctx context.Context, name string, permissions []string) (int, error) {
	roleID, err := s.roleRepo.EnsureRole(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("ensure role %q: %w", name, err)
	}
	if err := s.roleRepo.AssignPermissionsToRole(ctx, roleID, permissions); err != nil {
		return 0, fmt.Errorf("assign permissions: %w", err)
	}
	return roleID, nil
}
