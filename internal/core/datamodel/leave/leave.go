package leave

import "time"

type LeaveRequest struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)"`
	UserID        string     `gorm:"column:user_id;not null;index"`
	UserName      string     `gorm:"column:user_name"`
	Department    string     `gorm:"column:department"`
	LeaveType     string     `gorm:"column:leave_type;not null"`
	StartDate     string     `gorm:"column:start_date"`
	EndDate       string     `gorm:"column:end_date"`
	ManualDays    int        `gorm:"column:manual_days;not null;default:0"`
	Days          int        `gorm:"column:days;not null;default:0"`
	Reason        string     `gorm:"column:reason"`
	Status        string     `gorm:"column:status;not null;index"`
	AppliedAt     time.Time  `gorm:"column:applied_at;not null;index"`
	ApproverID    string     `gorm:"column:approver_id;index"`
	DecidedByID   string     `gorm:"column:decided_by_id"`
	DecidedByName string     `gorm:"column:decided_by_name"`
	DecidedAt     *time.Time `gorm:"column:decided_at"`
	QuotaDeducted bool       `gorm:"column:quota_deducted;not null;default:false"`
	DeductedDays  int        `gorm:"column:deducted_days;not null;default:0"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (LeaveRequest) TableName() string {
	return "leave_requests"
}
