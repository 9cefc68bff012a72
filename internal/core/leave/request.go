package leave

import (
	"time"

	"github.com/frahmantamala/leave-portal/internal/quota"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Request is a leave application. UserName and Department are snapshots
// taken at submission.
type Request struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Department string    `json:"department"`
	LeaveType  string    `json:"leave_type"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	ManualDays int       `json:"manual_days,omitempty"`
	Days       int       `json:"days"`
	Reason     string    `json:"reason"`
	Status     Status    `json:"status"`
	AppliedAt  time.Time `json:"applied_at"`
	// ApproverID is resolved once at submission and never recomputed.
	ApproverID    string     `json:"approver_id,omitempty"`
	DecidedByID   string     `json:"decided_by_id,omitempty"`
	DecidedByName string     `json:"decided_by_name,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	QuotaDeducted bool       `json:"quota_deducted"`
	DeductedDays  int        `json:"deducted_days,omitempty"`
}

// Category resolves the quota category of the request's leave type.
func (r *Request) Category() (quota.Category, error) {
	return quota.CategoryKeyOf(r.LeaveType)
}

// CanBeDecided reports whether the request still awaits a decision.
func (r *Request) CanBeDecided() bool {
	return r.Status.Valid() && !r.Status.Terminal()
}

// NeedsSettlement reports an approved request whose deduction was never
// recorded.
func (r *Request) NeedsSettlement() bool {
	return r.Status == StatusApproved && !r.QuotaDeducted
}

// Decision is what gets stamped on a request when it changes status.
type Decision struct {
	DeciderID     string
	DeciderName   string
	DecidedAt     time.Time
	QuotaDeducted bool
	DeductedDays  int
}

// Apply copies the decision onto r.
func (r *Request) Apply(status Status, d Decision) {
	r.Status = status
	r.DecidedByID = d.DeciderID
	r.DecidedByName = d.DeciderName
	if !d.DecidedAt.IsZero() {
		at := d.DecidedAt
		r.DecidedAt = &at
	}
	r.QuotaDeducted = d.QuotaDeducted
	r.DeductedDays = d.DeductedDays
}
