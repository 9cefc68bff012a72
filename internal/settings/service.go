// Package settings manages portal-wide settings, currently the admin
// access code that gates self-registration of admin accounts.
package settings

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/core/common/validation"
	"github.com/frahmantamala/leave-portal/internal/store"
)

// DefaultAccessCode is used until an admin sets another one.
const DefaultAccessCode = "SCOE2024"

type Repository interface {
	GetAccessCode(ctx context.Context) (string, error)
	SetAccessCode(ctx context.Context, code string) error
}

type UpdateAccessCodeDTO struct {
	AccessCode string `json:"access_code" validate:"required,min=4,max=64"`
}

type AccessCodeView struct {
	AccessCode string `json:"access_code"`
}

type Service struct {
	repo        Repository
	defaultCode string
	logger      *slog.Logger
}

func NewService(repo Repository, defaultCode string, logger *slog.Logger) *Service {
	if strings.TrimSpace(defaultCode) == "" {
		defaultCode = DefaultAccessCode
	}
	return &Service{repo: repo, defaultCode: defaultCode, logger: logger}
}

// AccessCode returns the stored code, or the configured default when none
// was ever stored.
func (s *Service) AccessCode(ctx context.Context) (string, error) {
	code, err := s.repo.GetAccessCode(ctx)
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, store.ErrNotFound):
		return s.defaultCode, nil
	case errors.Is(err, store.ErrPersistenceUnavailable):
		s.logger.Error("failed to read access code", "error", err)
		return "", internal.ErrPersistenceUnavailable.Wrap(err)
	}
	return "", internal.NewInternalError("failed to read access code", err)
}

// Verify reports ErrInvalidAccessCode unless code matches the current one.
func (s *Service) Verify(ctx context.Context, code string) error {
	current, err := s.AccessCode(ctx)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(current)) != 1 {
		return internal.ErrInvalidAccessCode
	}
	return nil
}

func (s *Service) UpdateAccessCode(ctx context.Context, actorID string, dto UpdateAccessCodeDTO) error {
	dto.AccessCode = strings.TrimSpace(dto.AccessCode)
	if err := validation.Struct(dto); err != nil {
		return err
	}

	if err := s.repo.SetAccessCode(ctx, dto.AccessCode); err != nil {
		s.logger.Error("failed to update access code", "error", err, "actor_id", actorID)
		if errors.Is(err, store.ErrPersistenceUnavailable) {
			return internal.ErrPersistenceUnavailable.Wrap(err)
		}
		return internal.NewInternalError("failed to update access code", err)
	}

	s.logger.Info("admin access code updated", "actor_id", actorID)
	return nil
}

// EnsureAccessCode stores the default code when none exists yet.
func (s *Service) EnsureAccessCode(ctx context.Context) error {
	_, err := s.repo.GetAccessCode(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.repo.SetAccessCode(ctx, s.defaultCode)
}
