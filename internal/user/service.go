package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/approver"
	"github.com/frahmantamala/leave-portal/internal/core/common/validation"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
)

type Repository interface {
	ListUsers(ctx context.Context) ([]*coreUser.User, error)
	GetUser(ctx context.Context, id string) (*coreUser.User, error)
	GetUserByEmail(ctx context.Context, email string) (*coreUser.User, error)
	UpsertUser(ctx context.Context, u *coreUser.User) (*coreUser.User, error)
	DeleteUser(ctx context.Context, id string) error
	WithinTx(ctx context.Context, fn func(tx store.Repository) error) error
}

type AccessCodeVerifier interface {
	Verify(ctx context.Context, code string) error
}

type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

type Service struct {
	repo          Repository
	codes         AccessCodeVerifier
	hasher        PasswordHasher
	defaultQuotas quota.Set
	logger        *slog.Logger
}

func NewService(repo Repository, codes AccessCodeVerifier, hasher PasswordHasher, defaultQuotas quota.Set, logger *slog.Logger) *Service {
	if defaultQuotas == nil || defaultQuotas.Validate() != nil {
		defaultQuotas = quota.Default()
	}
	return &Service{
		repo:          repo,
		codes:         codes,
		hasher:        hasher,
		defaultQuotas: defaultQuotas.Clone(),
		logger:        logger,
	}
}

// Register creates an account through self-service signup. Admin roles
// must present the current access code.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*coreUser.User, error) {
	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	if coreUser.Role(dto.Role).IsAdmin() {
		if err := s.codes.Verify(ctx, dto.AccessCode); err != nil {
			s.logger.Warn("admin signup rejected: access code mismatch", "email", dto.Email)
			return nil, err
		}
	}

	return s.create(ctx, dto)
}

// AddStaff creates an account on behalf of an admin.
func (s *Service) AddStaff(ctx context.Context, actorID string, dto AddStaffDTO) (*coreUser.User, error) {
	reg := dto.toRegister()
	reg.normalize()
	if err := validation.Struct(reg); err != nil {
		return nil, err
	}

	u, err := s.create(ctx, reg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("staff added by admin", "user_id", u.ID, "actor_id", actorID)
	return u, nil
}

func (s *Service) create(ctx context.Context, dto RegisterDTO) (*coreUser.User, error) {
	role := coreUser.Role(dto.Role)
	approverRole := coreUser.ApproverRole(dto.ApproverRole)
	approverID := dto.ApproverID

	// Principals and admins are routed by role; only staff pick an approver,
	// and only an Admin approver can be chosen by id.
	if role.IsAdmin() || role.IsPrincipal() {
		approverRole, approverID = coreUser.ApproverNone, ""
	} else if approverRole != coreUser.ApproverAdmin {
		approverID = ""
	}

	hash, err := s.hasher.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	var created *coreUser.User
	err = s.repo.WithinTx(ctx, func(tx store.Repository) error {
		if _, err := tx.GetUserByEmail(ctx, dto.Email); err == nil {
			return internal.ErrDuplicateEmail
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if approverID != "" {
			chosen, err := tx.GetUser(ctx, approverID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && !chosen.IsAdmin()) {
				return internal.ErrInvalidApprover
			}
			if err != nil {
				return err
			}
		}

		created, err = tx.UpsertUser(ctx, &coreUser.User{
			ID:            uuid.NewString(),
			Name:          dto.Name,
			Email:         dto.Email,
			PasswordHash:  hash,
			Role:          role,
			Department:    coreUser.Department(dto.Department),
			DateOfJoining: dto.DateOfJoining,
			ApproverRole:  approverRole,
			ApproverID:    approverID,
			Quotas:        s.defaultQuotas.Clone(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, internal.ErrDuplicateEmail
		}
		return nil, s.mapError("create user", err)
	}

	s.logger.Info("user registered", "user_id", created.ID, "role", created.Role, "department", created.Department)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*coreUser.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, s.mapError("get user", err)
	}
	return u, nil
}

// List returns users in creation order, narrowed by filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*coreUser.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, s.mapError("list users", err)
	}

	out := make([]*coreUser.User, 0, len(users))
	for _, u := range users {
		if filter.match(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

// ListApprovers returns the admins a staff member may name as approver.
func (s *Service) ListApprovers(ctx context.Context) ([]ApproverView, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, s.mapError("list approvers", err)
	}

	candidates := approver.Candidates(users)
	out := make([]ApproverView, 0, len(candidates))
	for _, u := range candidates {
		out = append(out, ApproverView{ID: u.ID, Name: u.Name, Role: string(u.Role), Department: string(u.Department)})
	}
	return out, nil
}

// Delete removes a user together with their leave requests. Admins cannot
// remove themselves.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return internal.ErrCannotDeleteSelf
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return s.mapError("delete user", err)
	}

	s.logger.Info("user deleted", "user_id", id, "actor_id", actorID)
	return nil
}

// UpdateQuotas replaces the named balances and keeps the rest.
func (s *Service) UpdateQuotas(ctx context.Context, actorID, id string, dto UpdateQuotasDTO) (*coreUser.User, error) {
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	return s.rewriteQuotas(ctx, actorID, id, func(current quota.Set) (quota.Set, error) {
		next, err := quota.FromMap(dto.Quotas, current)
		if err != nil {
			if errors.Is(err, quota.ErrUnknownCategory) {
				return nil, internal.ErrUnknownCategory.Wrap(err)
			}
			return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidQuota)
		}
		return next, nil
	})
}

// AdjustQuota adds a signed number of days to one category, never going
// below zero.
func (s *Service) AdjustQuota(ctx context.Context, actorID, id string, dto AdjustQuotaDTO) (*coreUser.User, error) {
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}
	cat, err := quota.CategoryKeyOf(dto.Category)
	if err != nil {
		return nil, internal.ErrUnknownCategory.Wrap(err)
	}

	return s.rewriteQuotas(ctx, actorID, id, func(current quota.Set) (quota.Set, error) {
		return current.Adjust(cat, dto.Delta), nil
	})
}

func (s *Service) rewriteQuotas(ctx context.Context, actorID, id string, next func(quota.Set) (quota.Set, error)) (*coreUser.User, error) {
	var updated *coreUser.User
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		quotas, err := next(u.Quotas)
		if err != nil {
			return err
		}
		if err := tx.SetUserQuotas(ctx, id, quotas); err != nil {
			return err
		}
		u.Quotas = quotas
		updated = u
		return nil
	})
	if err != nil {
		return nil, s.mapError("update quotas", err)
	}

	s.logger.Info("quotas updated", "user_id", id, "actor_id", actorID, "quotas", updated.Quotas)
	return updated, nil
}

// mapError turns store failures into API errors; AppErrors pass through.
func (s *Service) mapError(op string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return internal.ErrUserNotFound
	case errors.Is(err, store.ErrConflict):
		return internal.ErrDuplicateEmail
	case errors.Is(err, store.ErrPersistenceUnavailable):
		s.logger.Error("storage unavailable", "op", op, "error", err)
		return internal.ErrPersistenceUnavailable.Wrap(err)
	}
	s.logger.Error("user operation failed", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op, err)
}
