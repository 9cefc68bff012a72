// Package approver decides which single user is responsible for approving
// a requester's leave.
package approver

import (
	"sort"

	"github.com/frahmantamala/leave-portal/internal/core/user"
)

// Resolution is the outcome of resolving an approver for a requester.
type Resolution struct {
	// ApproverID is empty when nobody could be resolved.
	ApproverID string
	// AutoApprove is set for requesters whose own leave needs no approver.
	AutoApprove bool
}

func (r Resolution) Resolved() bool {
	return r.ApproverID != ""
}

// Resolve picks the approver for requester among users. Users are scanned
// in (CreatedAt, ID) order so "first" matches are stable across calls.
// The requester never approves their own leave. Failing to find anyone is
// not an error.
func Resolve(requester *user.User, users []*user.User) Resolution {
	if requester == nil {
		return Resolution{}
	}

	ordered := sorted(users, requester.ID)

	switch {
	case requester.Role.IsAdmin():
		return Resolution{ApproverID: firstID(ordered, func(u *user.User) bool {
			return u.Role.IsPrincipal()
		})}
	case requester.Role.IsPrincipal():
		return Resolution{AutoApprove: true}
	}

	switch requester.ApproverRole {
	case user.ApproverHOD:
		return Resolution{ApproverID: firstID(ordered, func(u *user.User) bool {
			return u.Role == user.RoleHOD && u.Department == requester.Department
		})}
	case user.ApproverPrincipal:
		return Resolution{ApproverID: firstID(ordered, func(u *user.User) bool {
			return u.Role.IsPrincipal()
		})}
	case user.ApproverAdmin:
		if requester.ApproverID != "" {
			chosen := firstID(ordered, func(u *user.User) bool {
				return u.ID == requester.ApproverID && u.Role.IsAdmin()
			})
			if chosen != "" {
				return Resolution{ApproverID: chosen}
			}
		}
		return Resolution{ApproverID: firstID(ordered, func(u *user.User) bool {
			return u.Role.IsAdmin()
		})}
	}

	return Resolution{}
}

// Candidates lists users that can be picked as an explicit Admin approver.
func Candidates(users []*user.User) []*user.User {
	out := make([]*user.User, 0)
	for _, u := range sorted(users, "") {
		if u.Role.IsAdmin() {
			out = append(out, u)
		}
	}
	return out
}

// sorted orders users by (CreatedAt, ID), dropping nils and the user with
// the excluded id.
func sorted(users []*user.User, exclude string) []*user.User {
	out := make([]*user.User, 0, len(users))
	for _, u := range users {
		if u != nil && (exclude == "" || u.ID != exclude) {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func firstID(users []*user.User, match func(*user.User) bool) string {
	for _, u := range users {
		if match(u) {
			return u.ID
		}
	}
	return ""
}
