package approver_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal/approver"
	"github.com/frahmantamala/leave-portal/internal/core/user"
)

func TestApprover(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Approver Suite")
}

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newUser(id string, role user.Role, dept user.Department, offset int) *user.User {
	return &user.User{
		ID:         id,
		Name:       id,
		Role:       role,
		Department: dept,
		CreatedAt:  base.Add(time.Duration(offset) * time.Hour),
	}
}

var _ = Describe("Resolve", func() {
	var users []*user.User

	BeforeEach(func() {
		users = []*user.User{
			newUser("admin-2", user.RoleAdmin2, user.DeptCOMPS, 3),
			newUser("principal-1", user.RolePrincipal, user.DeptCOMPS, 1),
			newUser("admin-1", user.RoleAdmin1, user.DeptCOMPS, 0),
			newUser("hod-it", user.RoleHOD, user.DeptIT, 4),
			newUser("hod-comps", user.RoleHOD, user.DeptCOMPS, 5),
			newUser("principal-2", user.RolePrincipal, user.DeptIT, 6),
		}
	})

	It("sends admin requests to the first principal", func() {
		res := approver.Resolve(newUser("x", user.RoleAdmin, user.DeptCOMPS, 9), users)
		Expect(res.ApproverID).To(Equal("principal-1"))
		Expect(res.AutoApprove).To(BeFalse())
	})

	It("resolves nobody for admins when no principal exists", func() {
		res := approver.Resolve(newUser("x", user.RoleAdmin1, user.DeptCOMPS, 9), users[:1])
		Expect(res.Resolved()).To(BeFalse())
	})

	It("auto-approves principals", func() {
		res := approver.Resolve(users[1], users)
		Expect(res.AutoApprove).To(BeTrue())
		Expect(res.ApproverID).To(BeEmpty())
	})

	Context("staff asking for their HOD", func() {
		It("matches the HOD of the same department", func() {
			staff := newUser("t1", user.RoleTeachingStaff, user.DeptIT, 9)
			staff.ApproverRole = user.ApproverHOD
			Expect(approver.Resolve(staff, users).ApproverID).To(Equal("hod-it"))
		})

		It("never routes a HOD to themselves", func() {
			hod := users[4]
			hod.ApproverRole = user.ApproverHOD
			res := approver.Resolve(hod, users)
			Expect(res.ApproverID).To(BeEmpty())
			Expect(res.AutoApprove).To(BeFalse())
		})

		It("picks another HOD of the department when there is one", func() {
			hod := users[4]
			hod.ApproverRole = user.ApproverHOD
			second := newUser("hod-comps-2", user.RoleHOD, user.DeptCOMPS, 7)
			Expect(approver.Resolve(hod, append(users, second)).ApproverID).To(Equal("hod-comps-2"))
		})

		It("returns none when the department has no HOD", func() {
			staff := newUser("t1", user.RoleTeachingStaff, user.DeptMech, 9)
			staff.ApproverRole = user.ApproverHOD
			res := approver.Resolve(staff, users)
			Expect(res.Resolved()).To(BeFalse())
			Expect(res.AutoApprove).To(BeFalse())
		})
	})

	It("routes staff asking for the principal to the earliest principal", func() {
		staff := newUser("n1", user.RoleNonTeachingStaff, user.DeptTPO, 9)
		staff.ApproverRole = user.ApproverPrincipal
		Expect(approver.Resolve(staff, users).ApproverID).To(Equal("principal-1"))
	})

	Context("staff asking for an admin", func() {
		It("uses the admin chosen at registration", func() {
			staff := newUser("t1", user.RoleTeachingStaff, user.DeptIT, 9)
			staff.ApproverRole = user.ApproverAdmin
			staff.ApproverID = "admin-2"
			Expect(approver.Resolve(staff, users).ApproverID).To(Equal("admin-2"))
		})

		It("falls back to the first admin when none was chosen", func() {
			staff := newUser("t1", user.RoleTeachingStaff, user.DeptIT, 9)
			staff.ApproverRole = user.ApproverAdmin
			Expect(approver.Resolve(staff, users).ApproverID).To(Equal("admin-1"))
		})

		It("falls back when the chosen user is no longer an admin", func() {
			staff := newUser("t1", user.RoleTeachingStaff, user.DeptIT, 9)
			staff.ApproverRole = user.ApproverAdmin
			staff.ApproverID = "hod-it"
			Expect(approver.Resolve(staff, users).ApproverID).To(Equal("admin-1"))
		})
	})

	It("resolves nobody for staff without an approver preference", func() {
		staff := newUser("t1", user.RoleTeachingStaff, user.DeptIT, 9)
		Expect(approver.Resolve(staff, users).Resolved()).To(BeFalse())
	})

	It("is independent of the input order", func() {
		reversed := make([]*user.User, len(users))
		for i, u := range users {
			reversed[len(users)-1-i] = u
		}
		staff := newUser("n1", user.RoleNonTeachingStaff, user.DeptTPO, 9)
		staff.ApproverRole = user.ApproverPrincipal
		Expect(approver.Resolve(staff, reversed)).To(Equal(approver.Resolve(staff, users)))
	})
})

var _ = Describe("Candidates", func() {
	It("lists admins oldest first", func() {
		users := []*user.User{
			newUser("b", user.RoleAdmin2, user.DeptCOMPS, 2),
			newUser("p", user.RolePrincipal, user.DeptCOMPS, 0),
			newUser("a", user.RoleAdmin, user.DeptCOMPS, 1),
		}
		out := approver.Candidates(users)
		Expect(out).To(HaveLen(2))
		Expect(out[0].ID).To(Equal("a"))
		Expect(out[1].ID).To(Equal("b"))
	})
})
