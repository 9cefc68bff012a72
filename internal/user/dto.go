package user

import (
	"strings"

	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
)

// RegisterDTO is the self-service signup payload. AccessCode is required
// for admin roles only.
type RegisterDTO struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,min=4,max=72"`
	Role          string `json:"role" validate:"required,staff_role"`
	Department    string `json:"department" validate:"required,department"`
	DateOfJoining string `json:"date_of_joining" validate:"omitempty,datetime=2006-01-02"`
	ApproverRole  string `json:"approver_role" validate:"omitempty,approver_role"`
	ApproverID    string `json:"approver_id" validate:"omitempty,max=64"`
	AccessCode    string `json:"access_code,omitempty"`
}

func (d *RegisterDTO) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = coreUser.NormalizeEmail(d.Email)
	d.ApproverID = strings.TrimSpace(d.ApproverID)
}

// AddStaffDTO is used by admins to create accounts; no access code applies.
type AddStaffDTO struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,min=4,max=72"`
	Role          string `json:"role" validate:"required,staff_role"`
	Department    string `json:"department" validate:"required,department"`
	DateOfJoining string `json:"date_of_joining" validate:"omitempty,datetime=2006-01-02"`
	ApproverRole  string `json:"approver_role" validate:"omitempty,approver_role"`
	ApproverID    string `json:"approver_id" validate:"omitempty,max=64"`
}

func (d AddStaffDTO) toRegister() RegisterDTO {
	return RegisterDTO{
		Name:          d.Name,
		Email:         d.Email,
		Password:      d.Password,
		Role:          d.Role,
		Department:    d.Department,
		DateOfJoining: d.DateOfJoining,
		ApproverRole:  d.ApproverRole,
		ApproverID:    d.ApproverID,
	}
}

// UpdateQuotasDTO replaces balances. Categories left out keep their value.
type UpdateQuotasDTO struct {
	Quotas map[string]int `json:"quotas" validate:"required,min=1,dive,gte=0"`
}

// AdjustQuotaDTO adds Delta days to one category. Category accepts a code
// ("CL") or a label ("Casual Leave (CL)").
type AdjustQuotaDTO struct {
	Category string `json:"category" validate:"required,leave_category"`
	Delta    int    `json:"delta" validate:"ne=0"`
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Role       string
	Department string
	// Query matches name or email, case-insensitively.
	Query string
}

func (f ListFilter) match(u *coreUser.User) bool {
	if f.Role != "" && string(u.Role) != f.Role {
		return false
	}
	if f.Department != "" && string(u.Department) != f.Department {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
			return false
		}
	}
	return true
}

// ApproverView is the public projection used by the signup form.
type ApproverView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}
