package user

import (
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/leave-portal/internal/quota"
)

type User struct {
	ID            string                        `gorm:"primaryKey;type:varchar(64)"`
	Email         string                        `gorm:"column:email;uniqueIndex;not null"`
	Name          string                        `gorm:"column:name;not null"`
	PasswordHash  string                        `gorm:"column:password_hash;not null"`
	Role          string                        `gorm:"column:role;not null;index"`
	Department    string                        `gorm:"column:department;not null"`
	DateOfJoining string                        `gorm:"column:date_of_joining"`
	ApproverRole  string                        `gorm:"column:approver_role"`
	ApproverID    string                        `gorm:"column:approver_id"`
	Quotas        datatypes.JSONType[quota.Set] `gorm:"column:quotas;not null"`
	CreatedAt     time.Time                     `gorm:"column:created_at"`
	UpdatedAt     time.Time                     `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
