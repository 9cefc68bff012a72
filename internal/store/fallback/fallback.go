// Package fallback composes a primary Repository with an in-process mirror.
// The primary is always tried first; when it reports
// store.ErrPersistenceUnavailable the call is served by the mirror.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
)

type Repository struct {
	primary store.Repository
	mirror  store.Repository
	logger  *slog.Logger
}

func New(primary, mirror store.Repository, logger *slog.Logger) *Repository {
	return &Repository{primary: primary, mirror: mirror, logger: logger}
}

// Warm copies everything the primary holds into the mirror.
func (r *Repository) Warm(ctx context.Context) error {
	users, err := r.primary.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("warm users: %w", err)
	}
	requests, err := r.primary.ListLeaveRequests(ctx, store.LeaveFilter{})
	if err != nil {
		return fmt.Errorf("warm leave requests: %w", err)
	}
	code, codeErr := r.primary.GetAccessCode(ctx)
	if codeErr != nil && !errors.Is(codeErr, store.ErrNotFound) {
		return fmt.Errorf("warm access code: %w", codeErr)
	}

	err = r.mirror.WithinTx(ctx, func(tx store.Repository) error {
		for _, u := range users {
			if _, err := tx.UpsertUser(ctx, u); err != nil {
				return err
			}
		}
		for _, req := range requests {
			if existing, err := tx.GetLeaveRequest(ctx, req.ID); err == nil {
				if existing.Status == req.Status && existing.QuotaDeducted == req.QuotaDeducted {
					continue
				}
				if err := tx.SetLeaveRequestStatus(ctx, req.ID, req.Status, decisionOf(req)); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.CreateLeaveRequest(ctx, req); err != nil {
				return err
			}
		}
		if codeErr == nil {
			return tx.SetAccessCode(ctx, code)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("warm mirror: %w", err)
	}

	r.logger.Info("fallback mirror warmed", "users", len(users), "leave_requests", len(requests))
	return nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]*user.User, error) {
	return read(r, "list users", func(repo store.Repository) ([]*user.User, error) {
		return repo.ListUsers(ctx)
	})
}

func (r *Repository) GetUser(ctx context.Context, id string) (*user.User, error) {
	return read(r, "get user", func(repo store.Repository) (*user.User, error) {
		return repo.GetUser(ctx, id)
	})
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return read(r, "get user by email", func(repo store.Repository) (*user.User, error) {
		return repo.GetUserByEmail(ctx, email)
	})
}

func (r *Repository) UpsertUser(ctx context.Context, u *user.User) (*user.User, error) {
	saved, err := r.primary.UpsertUser(ctx, u)
	if err == nil {
		snapshot := *saved
		r.replay(ctx, "upsert user", func(repo store.Repository) error {
			_, err := repo.UpsertUser(ctx, &snapshot)
			return err
		})
		return saved, nil
	}
	return fallbackValue(r, "upsert user", err, func() (*user.User, error) {
		return r.mirror.UpsertUser(ctx, u)
	})
}

func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.write(ctx, "delete user", func(repo store.Repository) error {
		return repo.DeleteUser(ctx, id)
	})
}

func (r *Repository) SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error {
	return r.write(ctx, "set user quotas", func(repo store.Repository) error {
		return repo.SetUserQuotas(ctx, id, quotas)
	})
}

func (r *Repository) ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*leave.Request, error) {
	return read(r, "list leave requests", func(repo store.Repository) ([]*leave.Request, error) {
		return repo.ListLeaveRequests(ctx, filter)
	})
}

func (r *Repository) GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error) {
	return read(r, "get leave request", func(repo store.Repository) (*leave.Request, error) {
		return repo.GetLeaveRequest(ctx, id)
	})
}

func (r *Repository) CreateLeaveRequest(ctx context.Context, req *leave.Request) (*leave.Request, error) {
	created, err := r.primary.CreateLeaveRequest(ctx, req)
	if err == nil {
		snapshot := *created
		r.replay(ctx, "create leave request", func(repo store.Repository) error {
			_, err := repo.CreateLeaveRequest(ctx, &snapshot)
			return err
		})
		return created, nil
	}
	return fallbackValue(r, "create leave request", err, func() (*leave.Request, error) {
		return r.mirror.CreateLeaveRequest(ctx, req)
	})
}

func (r *Repository) SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error {
	return r.write(ctx, "set leave request status", func(repo store.Repository) error {
		return repo.SetLeaveRequestStatus(ctx, id, status, d)
	})
}

func (r *Repository) GetAccessCode(ctx context.Context) (string, error) {
	return read(r, "get access code", func(repo store.Repository) (string, error) {
		return repo.GetAccessCode(ctx)
	})
}

func (r *Repository) SetAccessCode(ctx context.Context, code string) error {
	return r.write(ctx, "set access code", func(repo store.Repository) error {
		return repo.SetAccessCode(ctx, code)
	})
}

// WithinTx runs fn against a primary transaction. Writes made through it are
// recorded and replayed onto the mirror after commit. When the primary is
// unavailable fn is re-run inside a mirror transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	var rec *recorder
	err := r.primary.WithinTx(ctx, func(tx store.Repository) error {
		rec = &recorder{Repository: tx}
		return fn(rec)
	})
	if err == nil {
		if rec != nil {
			r.replay(ctx, "transaction", rec.ops...)
		}
		return nil
	}
	if !errors.Is(err, store.ErrPersistenceUnavailable) {
		return err
	}

	r.logger.Warn("primary store unavailable, running transaction on mirror", "error", err)
	if mirrorErr := r.mirror.WithinTx(ctx, fn); mirrorErr != nil {
		return mirrorFailure("transaction", err, mirrorErr)
	}
	return nil
}

func read[T any](r *Repository, op string, call func(store.Repository) (T, error)) (T, error) {
	out, err := call(r.primary)
	if err == nil {
		return out, nil
	}
	return fallbackValue(r, op, err, func() (T, error) {
		return call(r.mirror)
	})
}

// fallbackValue serves a call from the mirror after the primary failed with
// primaryErr. Errors other than unavailability are returned untouched.
func fallbackValue[T any](r *Repository, op string, primaryErr error, call func() (T, error)) (T, error) {
	if !errors.Is(primaryErr, store.ErrPersistenceUnavailable) {
		var zero T
		return zero, primaryErr
	}

	r.logger.Warn("primary store unavailable, serving from mirror", "op", op, "error", primaryErr)
	out, mirrorErr := call()
	if mirrorErr != nil {
		if errors.Is(mirrorErr, store.ErrNotFound) || errors.Is(mirrorErr, store.ErrConflict) {
			return out, mirrorErr
		}
		return out, mirrorFailure(op, primaryErr, mirrorErr)
	}
	return out, nil
}

func (r *Repository) write(ctx context.Context, op string, call func(store.Repository) error) error {
	err := call(r.primary)
	if err == nil {
		r.replay(ctx, op, call)
		return nil
	}
	if !errors.Is(err, store.ErrPersistenceUnavailable) {
		return err
	}

	r.logger.Warn("primary store unavailable, writing to mirror", "op", op, "error", err)
	if mirrorErr := call(r.mirror); mirrorErr != nil {
		if errors.Is(mirrorErr, store.ErrNotFound) || errors.Is(mirrorErr, store.ErrConflict) {
			return mirrorErr
		}
		return mirrorFailure(op, err, mirrorErr)
	}
	return nil
}

// replay applies writes that already succeeded on the primary to the mirror.
// Mirror drift is logged, never returned.
func (r *Repository) replay(ctx context.Context, op string, ops ...func(store.Repository) error) {
	if len(ops) == 0 {
		return
	}
	err := r.mirror.WithinTx(ctx, func(tx store.Repository) error {
		for _, apply := range ops {
			if err := apply(tx); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to update fallback mirror", "op", op, "error", err)
	}
}

func mirrorFailure(op string, primaryErr, mirrorErr error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(store.ErrPersistenceUnavailable, primaryErr, mirrorErr))
}

func decisionOf(req *leave.Request) leave.Decision {
	d := leave.Decision{
		DeciderID:     req.DecidedByID,
		DeciderName:   req.DecidedByName,
		QuotaDeducted: req.QuotaDeducted,
		DeductedDays:  req.DeductedDays,
	}
	if req.DecidedAt != nil {
		d.DecidedAt = *req.DecidedAt
	}
	return d
}

// recorder forwards to a primary transaction and remembers successful writes.
type recorder struct {
	store.Repository
	ops []func(store.Repository) error
}

func (t *recorder) record(op func(store.Repository) error) {
	t.ops = append(t.ops, op)
}

func (t *recorder) UpsertUser(ctx context.Context, u *user.User) (*user.User, error) {
	saved, err := t.Repository.UpsertUser(ctx, u)
	if err == nil {
		snapshot := *saved
		t.record(func(repo store.Repository) error {
			_, err := repo.UpsertUser(ctx, &snapshot)
			return err
		})
	}
	return saved, err
}

func (t *recorder) DeleteUser(ctx context.Context, id string) error {
	err := t.Repository.DeleteUser(ctx, id)
	if err == nil {
		t.record(func(repo store.Repository) error { return repo.DeleteUser(ctx, id) })
	}
	return err
}

func (t *recorder) SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error {
	err := t.Repository.SetUserQuotas(ctx, id, quotas)
	if err == nil {
		snapshot := quotas.Clone()
		t.record(func(repo store.Repository) error { return repo.SetUserQuotas(ctx, id, snapshot) })
	}
	return err
}

func (t *recorder) CreateLeaveRequest(ctx context.Context, req *leave.Request) (*leave.Request, error) {
	created, err := t.Repository.CreateLeaveRequest(ctx, req)
	if err == nil {
		snapshot := *created
		t.record(func(repo store.Repository) error {
			_, err := repo.CreateLeaveRequest(ctx, &snapshot)
			return err
		})
	}
	return created, err
}

func (t *recorder) SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error {
	err := t.Repository.SetLeaveRequestStatus(ctx, id, status, d)
	if err == nil {
		t.record(func(repo store.Repository) error { return repo.SetLeaveRequestStatus(ctx, id, status, d) })
	}
	return err
}

func (t *recorder) SetAccessCode(ctx context.Context, code string) error {
	err := t.Repository.SetAccessCode(ctx, code)
	if err == nil {
		t.record(func(repo store.Repository) error { return repo.SetAccessCode(ctx, code) })
	}
	return err
}

func (t *recorder) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return fn(t)
}
