package user

import (
	"strings"
	"time"

	"github.com/frahmantamala/leave-portal/internal/quota"
)

type Role string

const (
	RoleTeachingStaff    Role = "Teaching Staff"
	RoleNonTeachingStaff Role = "Non-Teaching Staff"
	RoleHOD              Role = "HOD"
	RolePrincipal        Role = "Principal"
	RoleAdmin            Role = "Admin"
	RoleAdmin1           Role = "Admin 1"
	RoleAdmin2           Role = "Admin 2"
)

var Roles = []Role{RoleTeachingStaff, RoleNonTeachingStaff, RoleHOD, RolePrincipal, RoleAdmin, RoleAdmin1, RoleAdmin2}

// AdminRoles are the Admin variants.
var AdminRoles = []Role{RoleAdmin, RoleAdmin1, RoleAdmin2}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleAdmin1 || r == RoleAdmin2
}

func (r Role) IsPrincipal() bool {
	return r == RolePrincipal
}

type Department string

const (
	DeptAIML           Department = "AIML"
	DeptAIDA           Department = "AIDA"
	DeptCOMPS          Department = "COMPS"
	DeptIT             Department = "IT"
	DeptCivil          Department = "CIVIL"
	DeptMech           Department = "MECH"
	DeptAutomobile     Department = "AUTOMOBILE"
	DeptStudentSection Department = "Student Section"
	DeptTPO            Department = "TPO"
	DeptExamCell       Department = "Exam Cell"
	DeptNotApplicable  Department = "Not Applicable"
)

var Departments = []Department{
	DeptAIML, DeptAIDA, DeptCOMPS, DeptIT, DeptCivil, DeptMech, DeptAutomobile,
	DeptStudentSection, DeptTPO, DeptExamCell, DeptNotApplicable,
}

func (d Department) Valid() bool {
	for _, v := range Departments {
		if v == d {
			return true
		}
	}
	return false
}

// ApproverRole is the kind of approver a staff member asked for at
// registration.
type ApproverRole string

const (
	ApproverNone      ApproverRole = ""
	ApproverHOD       ApproverRole = "HOD"
	ApproverPrincipal ApproverRole = "Principal"
	ApproverAdmin     ApproverRole = "Admin"
)

func (a ApproverRole) Valid() bool {
	switch a {
	case ApproverNone, ApproverHOD, ApproverPrincipal, ApproverAdmin:
		return true
	}
	return false
}

type User struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	PasswordHash  string       `json:"-"`
	Role          Role         `json:"role"`
	Department    Department   `json:"department"`
	DateOfJoining string       `json:"date_of_joining,omitempty"`
	ApproverRole  ApproverRole `json:"approver_role,omitempty"`
	// ApproverID is the Admin explicitly chosen at registration, if any.
	ApproverID string    `json:"approver_id,omitempty"`
	Quotas     quota.Set `json:"quotas"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role.IsAdmin()
}

func (u *User) IsPrincipal() bool {
	return u != nil && u.Role.IsPrincipal()
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
