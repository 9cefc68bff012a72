package leave

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/approver"
	"github.com/frahmantamala/leave-portal/internal/core/common/validation"
	"github.com/frahmantamala/leave-portal/internal/core/events"
	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/ledger"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
	"github.com/frahmantamala/leave-portal/internal/workday"
)

// recentLimit is how many requests the dashboard shows.
const recentLimit = 5

type Repository interface {
	GetUser(ctx context.Context, id string) (*coreUser.User, error)
	ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*coreLeave.Request, error)
	GetLeaveRequest(ctx context.Context, id string) (*coreLeave.Request, error)
	WithinTx(ctx context.Context, fn func(tx store.Repository) error) error
}

type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and stores a new request for userID. The approver is
// resolved here once. A Principal's request is approved on the spot and
// charged in the same transaction.
func (s *Service) Submit(ctx context.Context, userID string, dto SubmitDTO) (*coreLeave.Request, error) {
	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	cat, err := quota.CategoryKeyOf(dto.LeaveType)
	if err != nil {
		return nil, internal.ErrUnknownCategory.Wrap(err)
	}

	start, end, err := parseRange(dto.StartDate, dto.EndDate, dto.ManualDays)
	if err != nil {
		return nil, err
	}

	days := workday.ChargeableDays(start, end, dto.ManualDays)
	if days <= 0 {
		return nil, internal.ErrNoWorkingDays
	}

	var (
		created    *coreLeave.Request
		resolution approver.Resolution
		entry      ledger.Entry
	)
	err = s.repo.WithinTx(ctx, func(tx store.Repository) error {
		requester, err := tx.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return internal.ErrUserNotFound
			}
			return err
		}

		if !requester.Quotas.HasSufficientBalance(cat, days) {
			return internal.ErrInsufficientQuota
		}

		users, err := tx.ListUsers(ctx)
		if err != nil {
			return err
		}
		resolution = approver.Resolve(requester, users)

		now := s.now()
		req := &coreLeave.Request{
			UserID:     requester.ID,
			UserName:   requester.Name,
			Department: string(requester.Department),
			LeaveType:  cat.Label(),
			StartDate:  start,
			EndDate:    end,
			ManualDays: dto.ManualDays,
			Days:       days,
			Reason:     dto.Reason,
			Status:     coreLeave.StatusPending,
			AppliedAt:  now,
			ApproverID: resolution.ApproverID,
		}

		if resolution.AutoApprove {
			entry, err = ledger.OnApproved(req, requester.Quotas)
			if err != nil {
				return err
			}
			req.Apply(coreLeave.StatusApproved, coreLeave.Decision{
				DeciderID:     requester.ID,
				DeciderName:   requester.Name,
				DecidedAt:     now,
				QuotaDeducted: true,
				DeductedDays:  entry.Days,
			})
			if err := tx.SetUserQuotas(ctx, requester.ID, entry.After); err != nil {
				return err
			}
		}

		created, err = tx.CreateLeaveRequest(ctx, req)
		return err
	})
	if err != nil {
		return nil, s.mapError("submit leave", err)
	}

	if !resolution.AutoApprove && !resolution.Resolved() {
		s.logger.Warn("no approver resolved for leave request", "leave_id", created.ID, "user_id", userID)
	}

	s.logger.Info("leave request submitted",
		"leave_id", created.ID,
		"user_id", userID,
		"category", cat,
		"days", days,
		"status", created.Status)

	s.publish(ctx, events.NewLeaveSubmittedEvent(created.ID, userID, created.ApproverID, string(cat), days, string(created.Status)))
	if resolution.AutoApprove {
		s.publish(ctx, events.NewLeaveApprovedEvent(created.ID, userID, userID))
		s.publishDeduction(ctx, created, entry)
	}
	return created, nil
}

// parseRange checks both dates and returns them in calendar form. A positive
// manual day count allows an inverted range.
func parseRange(start, end string, manualDays int) (string, string, error) {
	from, err := workday.ParseDate(start)
	if err != nil {
		return "", "", internal.NewValidationFieldError("start_date", "start_date must be a calendar date", internal.ErrCodeInvalidDateRange)
	}
	to, err := workday.ParseDate(end)
	if err != nil {
		return "", "", internal.NewValidationFieldError("end_date", "end_date must be a calendar date", internal.ErrCodeInvalidDateRange)
	}
	if manualDays <= 0 && to.Before(from) {
		return "", "", internal.ErrInvalidDateRange
	}
	return from.Format(workday.DateLayout), to.Format(workday.DateLayout), nil
}

// Get returns a request visible to viewer: its owner, its approver or any
// admin.
func (s *Service) Get(ctx context.Context, viewer *coreUser.User, id string) (*coreLeave.Request, error) {
	req, err := s.repo.GetLeaveRequest(ctx, id)
	if err != nil {
		return nil, s.mapError("get leave", err)
	}

	if req.UserID != viewer.ID && req.ApproverID != viewer.ID && !viewer.IsAdmin() {
		s.logger.Warn("unauthorized access to leave request", "leave_id", id, "user_id", viewer.ID)
		return nil, internal.ErrUnauthorizedAccess
	}
	return req, nil
}

// ListMine returns userID's own requests, newest first.
func (s *Service) ListMine(ctx context.Context, userID string) ([]*coreLeave.Request, error) {
	requests, err := s.repo.ListLeaveRequests(ctx, store.LeaveFilter{UserID: userID})
	if err != nil {
		return nil, s.mapError("list leaves", err)
	}
	return requests, nil
}

// Queue returns the requests routed to approverID.
func (s *Service) Queue(ctx context.Context, approverID string, filter QueueFilter) ([]*coreLeave.Request, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, internal.NewValidationFieldError("status", "status must be Pending, Approved or Rejected", internal.ErrCodeValidationFailed)
	}

	requests, err := s.repo.ListLeaveRequests(ctx, store.LeaveFilter{ApproverID: approverID, Status: filter.Status})
	if err != nil {
		return nil, s.mapError("list queue", err)
	}

	out := make([]*coreLeave.Request, 0, len(requests))
	for _, r := range requests {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) QueueStats(ctx context.Context, approverID string) (Stats, error) {
	requests, err := s.repo.ListLeaveRequests(ctx, store.LeaveFilter{ApproverID: approverID})
	if err != nil {
		return Stats{}, s.mapError("queue stats", err)
	}
	return statsOf(requests), nil
}

// Approve moves a pending request to Approved and charges the requester's
// balance in the same transaction.
func (s *Service) Approve(ctx context.Context, decider *coreUser.User, id string) (*coreLeave.Request, error) {
	var (
		approved *coreLeave.Request
		entry    ledger.Entry
	)
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		req, err := s.pendingFor(ctx, tx, decider, id)
		if err != nil {
			return err
		}

		owner, err := tx.GetUser(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return internal.ErrUserNotFound
			}
			return err
		}

		entry, err = ledger.OnApproved(req, owner.Quotas)
		if err != nil {
			return err
		}
		if entry.Applied {
			if err := tx.SetUserQuotas(ctx, owner.ID, entry.After); err != nil {
				return err
			}
		}

		decision := coreLeave.Decision{
			DeciderID:     decider.ID,
			DeciderName:   decider.Name,
			DecidedAt:     s.now(),
			QuotaDeducted: true,
			DeductedDays:  entry.Days,
		}
		if err := tx.SetLeaveRequestStatus(ctx, id, coreLeave.StatusApproved, decision); err != nil {
			return err
		}
		req.Apply(coreLeave.StatusApproved, decision)
		approved = req
		return nil
	})
	if err != nil {
		return nil, s.mapError("approve leave", err)
	}

	s.logger.Info("leave request approved",
		"leave_id", id,
		"user_id", approved.UserID,
		"decider_id", decider.ID,
		"days", entry.Days)

	s.publish(ctx, events.NewLeaveApprovedEvent(id, approved.UserID, decider.ID))
	if entry.Applied {
		s.publishDeduction(ctx, approved, entry)
	}
	return approved, nil
}

// Reject moves a pending request to Rejected. Balances are untouched.
func (s *Service) Reject(ctx context.Context, decider *coreUser.User, id string) (*coreLeave.Request, error) {
	var rejected *coreLeave.Request
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		req, err := s.pendingFor(ctx, tx, decider, id)
		if err != nil {
			return err
		}

		decision := coreLeave.Decision{
			DeciderID:   decider.ID,
			DeciderName: decider.Name,
			DecidedAt:   s.now(),
		}
		if err := tx.SetLeaveRequestStatus(ctx, id, coreLeave.StatusRejected, decision); err != nil {
			return err
		}
		req.Apply(coreLeave.StatusRejected, decision)
		rejected = req
		return nil
	})
	if err != nil {
		return nil, s.mapError("reject leave", err)
	}

	s.logger.Info("leave request rejected", "leave_id", id, "user_id", rejected.UserID, "decider_id", decider.ID)
	s.publish(ctx, events.NewLeaveRejectedEvent(id, rejected.UserID, decider.ID))
	return rejected, nil
}

// ApproveAll approves every pending request in decider's queue, one by one.
func (s *Service) ApproveAll(ctx context.Context, decider *coreUser.User) (BulkResult, error) {
	pending, err := s.repo.ListLeaveRequests(ctx, store.LeaveFilter{ApproverID: decider.ID, Status: coreLeave.StatusPending})
	if err != nil {
		return BulkResult{}, s.mapError("list queue", err)
	}

	result := BulkResult{Approved: []string{}, Failed: []BulkFailure{}}
	for _, req := range pending {
		if _, err := s.Approve(ctx, decider, req.ID); err != nil {
			s.logger.Warn("bulk approval skipped request", "leave_id", req.ID, "error", err)
			result.Failed = append(result.Failed, BulkFailure{ID: req.ID, Error: err.Error()})
			continue
		}
		result.Approved = append(result.Approved, req.ID)
	}

	s.logger.Info("bulk approval finished", "decider_id", decider.ID, "approved", len(result.Approved), "failed", len(result.Failed))
	return result, nil
}

// SettleDeduction charges an approved request whose deduction was never
// recorded. It reports whether a deduction was applied; settled and
// non-approved requests are left alone.
func (s *Service) SettleDeduction(ctx context.Context, id string) (bool, error) {
	var (
		settled *coreLeave.Request
		entry   ledger.Entry
	)
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		req, err := tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if !req.NeedsSettlement() {
			return nil
		}

		owner, err := tx.GetUser(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return internal.ErrUserNotFound
			}
			return err
		}

		entry, err = ledger.OnApproved(req, owner.Quotas)
		if err != nil {
			return err
		}
		if err := tx.SetUserQuotas(ctx, owner.ID, entry.After); err != nil {
			return err
		}

		decision := coreLeave.Decision{
			DeciderID:     req.DecidedByID,
			DeciderName:   req.DecidedByName,
			QuotaDeducted: true,
			DeductedDays:  entry.Days,
		}
		if req.DecidedAt != nil {
			decision.DecidedAt = *req.DecidedAt
		}
		if err := tx.SetLeaveRequestStatus(ctx, id, coreLeave.StatusApproved, decision); err != nil {
			return err
		}
		req.Apply(coreLeave.StatusApproved, decision)
		settled = req
		return nil
	})
	if err != nil {
		return false, s.mapError("settle deduction", err)
	}
	if settled == nil {
		return false, nil
	}

	s.logger.Info("leave deduction settled", "leave_id", id, "user_id", settled.UserID, "days", entry.Days)
	s.publishDeduction(ctx, settled, entry)
	return true, nil
}

// Dashboard summarises userID's balances and requests.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, s.mapError("dashboard", err)
	}

	mine, err := s.ListMine(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.ListLeaveRequests(ctx, store.LeaveFilter{ApproverID: userID, Status: coreLeave.StatusPending})
	if err != nil {
		return nil, s.mapError("dashboard", err)
	}

	recent := mine
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	return &Dashboard{
		Quotas:           u.Quotas.Clone(),
		Requests:         statsOf(mine),
		PendingApprovals: len(pending),
		Recent:           recent,
	}, nil
}

// pendingFor loads id and checks that decider may decide it now.
func (s *Service) pendingFor(ctx context.Context, tx store.Repository, decider *coreUser.User, id string) (*coreLeave.Request, error) {
	req, err := tx.GetLeaveRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ApproverID == "" || req.ApproverID != decider.ID || req.UserID == decider.ID {
		s.logger.Warn("decision denied: not the approver", "leave_id", id, "decider_id", decider.ID, "approver_id", req.ApproverID)
		return nil, internal.ErrNotApprover
	}
	if !req.CanBeDecided() {
		s.logger.Warn("cannot decide leave in current status", "leave_id", id, "current_status", req.Status)
		return nil, internal.ErrInvalidLeaveStatus
	}
	return req, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func (s *Service) publishDeduction(ctx context.Context, req *coreLeave.Request, entry ledger.Entry) {
	s.publish(ctx, events.NewQuotaDeductedEvent(
		req.ID, req.UserID, string(entry.Category), entry.Days,
		entry.Before.Balance(entry.Category), entry.After.Balance(entry.Category),
	))
}

func (s *Service) mapError(op string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return internal.ErrLeaveNotFound
	case errors.Is(err, quota.ErrUnknownCategory):
		return internal.ErrUnknownCategory.Wrap(err)
	case errors.Is(err, store.ErrPersistenceUnavailable):
		s.logger.Error("storage unavailable", "op", op, "error", err)
		return internal.ErrPersistenceUnavailable.Wrap(err)
	}
	s.logger.Error("leave operation failed", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op, err)
}
