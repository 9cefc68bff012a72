// Package store defines the persistence contract of the portal.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
	// ErrPersistenceUnavailable marks failures of the storage backend itself.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// Unavailable wraps a backend error so callers can match it with
// errors.Is(err, ErrPersistenceUnavailable).
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceUnavailable, err)
}

// LeaveFilter narrows ListLeaveRequests. Zero fields match everything.
type LeaveFilter struct {
	UserID     string
	ApproverID string
	Status     leave.Status
	// NeedsSettlement selects approved requests without a recorded deduction.
	NeedsSettlement bool
}

func (f LeaveFilter) Match(r *leave.Request) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.ApproverID != "" && r.ApproverID != f.ApproverID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.NeedsSettlement && !r.NeedsSettlement() {
		return false
	}
	return true
}

// Repository is implemented by every storage backend. Reads return
// ErrNotFound for missing records; backend failures wrap
// ErrPersistenceUnavailable.
type Repository interface {
	ListUsers(ctx context.Context) ([]*user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)
	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	UpsertUser(ctx context.Context, u *user.User) (*user.User, error)
	// DeleteUser removes the user and all of their leave requests.
	DeleteUser(ctx context.Context, id string) error
	// SetUserQuotas replaces the whole quota set of a user.
	SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error

	// ListLeaveRequests returns the most recently applied requests first.
	ListLeaveRequests(ctx context.Context, filter LeaveFilter) ([]*leave.Request, error)
	GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error)
	// CreateLeaveRequest assigns an id when the request has none.
	CreateLeaveRequest(ctx context.Context, r *leave.Request) (*leave.Request, error)
	SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error

	GetAccessCode(ctx context.Context) (string, error)
	SetAccessCode(ctx context.Context, code string) error

	// WithinTx runs fn as one unit of work. The Repository passed to fn is
	// bound to the transaction; any error rolls every write back.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}
