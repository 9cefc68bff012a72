package leave

import (
	"strings"

	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/quota"
)

// SubmitDTO is the leave application form. LeaveType accepts a category
// code or its display label.
type SubmitDTO struct {
	LeaveType  string `json:"leave_type" validate:"required,leave_category"`
	StartDate  string `json:"start_date" validate:"required"`
	EndDate    string `json:"end_date" validate:"required"`
	ManualDays int    `json:"manual_days" validate:"gte=0,max=366"`
	Reason     string `json:"reason" validate:"required,max=1000"`
}

func (d *SubmitDTO) normalize() {
	d.LeaveType = strings.TrimSpace(d.LeaveType)
	d.StartDate = strings.TrimSpace(d.StartDate)
	d.EndDate = strings.TrimSpace(d.EndDate)
	d.Reason = strings.TrimSpace(d.Reason)
}

// QueueFilter narrows an approver's queue.
type QueueFilter struct {
	Status coreLeave.Status
	// Query matches the requester name, case-insensitively.
	Query string
}

func (f QueueFilter) match(r *coreLeave.Request) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	return q == "" || strings.Contains(strings.ToLower(r.UserName), q)
}

// Stats counts requests by status.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

func statsOf(requests []*coreLeave.Request) Stats {
	var s Stats
	for _, r := range requests {
		switch r.Status {
		case coreLeave.StatusPending:
			s.Pending++
		case coreLeave.StatusApproved:
			s.Approved++
		case coreLeave.StatusRejected:
			s.Rejected++
		}
	}
	s.Total = len(requests)
	return s
}

// Dashboard is the landing view of a signed-in user.
type Dashboard struct {
	Quotas           quota.Set            `json:"quotas"`
	Requests         Stats                `json:"requests"`
	PendingApprovals int                  `json:"pending_approvals"`
	Recent           []*coreLeave.Request `json:"recent"`
}

// BulkResult reports the outcome of approving a whole queue. Each request
// is approved independently; one failure does not undo the others.
type BulkResult struct {
	Approved []string      `json:"approved"`
	Failed   []BulkFailure `json:"failed"`
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
