// Package storetest holds behaviour shared by every store.Repository
// implementation, expressed as ginkgo specs.
package storetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
)

// Factory builds a fresh, empty repository for each test.
type Factory func() store.Repository

func NewUser(id, email string, role user.Role) *user.User {
	return &user.User{
		ID:         id,
		Name:       "User " + id,
		Email:      email,
		Role:       role,
		Department: user.DeptCOMPS,
		Quotas:     quota.Default(),
	}
}

func NewRequest(id, userID, approverID string, appliedAt time.Time) *leave.Request {
	return &leave.Request{
		ID:         id,
		UserID:     userID,
		UserName:   "User " + userID,
		Department: string(user.DeptCOMPS),
		LeaveType:  quota.CL.Label(),
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-03",
		Days:       3,
		Reason:     "family",
		Status:     leave.StatusPending,
		AppliedAt:  appliedAt,
		ApproverID: approverID,
	}
}

// DescribeRepository registers the shared repository specs.
func DescribeRepository(name string, factory Factory) bool {
	return Describe(name+" repository contract", func() {
		var (
			ctx  context.Context
			repo store.Repository
		)

		BeforeEach(func() {
			ctx = context.Background()
			repo = factory()
		})

		Describe("users", func() {
			It("stores and reads back a user", func() {
				saved, err := repo.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleTeachingStaff))
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.CreatedAt.IsZero()).To(BeFalse())

				got, err := repo.GetUser(ctx, "u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Email).To(Equal("a@scoe.edu"))
				Expect(got.Quotas).To(Equal(quota.Default()))
			})

			It("assigns an id when missing", func() {
				saved, err := repo.UpsertUser(ctx, NewUser("", "b@scoe.edu", user.RoleHOD))
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.ID).NotTo(BeEmpty())
			})

			It("finds users by email regardless of case", func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "mixed@scoe.edu", user.RoleHOD))
				Expect(err).NotTo(HaveOccurred())

				got, err := repo.GetUserByEmail(ctx, "MIXED@scoe.EDU")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal("u1"))
			})

			It("reports missing users", func() {
				_, err := repo.GetUser(ctx, "nope")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				_, err = repo.GetUserByEmail(ctx, "nope@scoe.edu")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})

			It("updates an existing user in place", func() {
				u := NewUser("u1", "a@scoe.edu", user.RoleTeachingStaff)
				_, err := repo.UpsertUser(ctx, u)
				Expect(err).NotTo(HaveOccurred())

				u.Name = "Renamed"
				_, err = repo.UpsertUser(ctx, u)
				Expect(err).NotTo(HaveOccurred())

				users, err := repo.ListUsers(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(users).To(HaveLen(1))
				Expect(users[0].Name).To(Equal("Renamed"))
			})

			It("rejects a second user with the same email", func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "dup@scoe.edu", user.RoleHOD))
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.UpsertUser(ctx, NewUser("u2", "dup@scoe.edu", user.RoleHOD))
				Expect(errors.Is(err, store.ErrConflict)).To(BeTrue())
			})

			It("replaces quotas as a whole", func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleHOD))
				Expect(err).NotTo(HaveOccurred())

				next := quota.Default().Deduct(quota.ML, 4)
				Expect(repo.SetUserQuotas(ctx, "u1", next)).To(Succeed())

				got, err := repo.GetUser(ctx, "u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Quotas[quota.ML]).To(Equal(6))
				Expect(got.Quotas[quota.CL]).To(Equal(12))
			})

			It("cascades deletes to leave requests", func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleTeachingStaff))
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.UpsertUser(ctx, NewUser("u2", "b@scoe.edu", user.RoleTeachingStaff))
				Expect(err).NotTo(HaveOccurred())
				now := time.Now()
				_, err = repo.CreateLeaveRequest(ctx, NewRequest("r1", "u1", "", now))
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.CreateLeaveRequest(ctx, NewRequest("r2", "u2", "", now))
				Expect(err).NotTo(HaveOccurred())

				Expect(repo.DeleteUser(ctx, "u1")).To(Succeed())

				reqs, err := repo.ListLeaveRequests(ctx, store.LeaveFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(reqs).To(HaveLen(1))
				Expect(reqs[0].ID).To(Equal("r2"))

				Expect(errors.Is(repo.DeleteUser(ctx, "u1"), store.ErrNotFound)).To(BeTrue())
			})
		})

		Describe("leave requests", func() {
			BeforeEach(func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleTeachingStaff))
				Expect(err).NotTo(HaveOccurred())
			})

			It("lists newest first and filters", func() {
				t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
				_, err := repo.CreateLeaveRequest(ctx, NewRequest("old", "u1", "hod", t0))
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.CreateLeaveRequest(ctx, NewRequest("new", "u1", "hod", t0.Add(time.Hour)))
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.CreateLeaveRequest(ctx, NewRequest("other", "u1", "principal", t0.Add(30*time.Minute)))
				Expect(err).NotTo(HaveOccurred())

				all, err := repo.ListLeaveRequests(ctx, store.LeaveFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect([]string{all[0].ID, all[1].ID, all[2].ID}).To(Equal([]string{"new", "other", "old"}))

				queue, err := repo.ListLeaveRequests(ctx, store.LeaveFilter{ApproverID: "hod"})
				Expect(err).NotTo(HaveOccurred())
				Expect(queue).To(HaveLen(2))
			})

			It("assigns an id when missing", func() {
				created, err := repo.CreateLeaveRequest(ctx, NewRequest("", "u1", "", time.Now()))
				Expect(err).NotTo(HaveOccurred())
				Expect(created.ID).NotTo(BeEmpty())

				got, err := repo.GetLeaveRequest(ctx, created.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LeaveType).To(Equal(quota.CL.Label()))
			})

			It("stamps status and decision together", func() {
				_, err := repo.CreateLeaveRequest(ctx, NewRequest("r1", "u1", "hod", time.Now()))
				Expect(err).NotTo(HaveOccurred())

				at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
				err = repo.SetLeaveRequestStatus(ctx, "r1", leave.StatusApproved, leave.Decision{
					DeciderID: "hod", DeciderName: "Head", DecidedAt: at, QuotaDeducted: true, DeductedDays: 3,
				})
				Expect(err).NotTo(HaveOccurred())

				got, err := repo.GetLeaveRequest(ctx, "r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal(leave.StatusApproved))
				Expect(got.DecidedByName).To(Equal("Head"))
				Expect(got.QuotaDeducted).To(BeTrue())
				Expect(got.DeductedDays).To(Equal(3))
				Expect(got.DecidedAt).NotTo(BeNil())

				settle, err := repo.ListLeaveRequests(ctx, store.LeaveFilter{NeedsSettlement: true})
				Expect(err).NotTo(HaveOccurred())
				Expect(settle).To(BeEmpty())
			})

			It("reports unknown requests", func() {
				_, err := repo.GetLeaveRequest(ctx, "missing")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				err = repo.SetLeaveRequestStatus(ctx, "missing", leave.StatusRejected, leave.Decision{})
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})
		})

		Describe("access code", func() {
			It("is not found until set", func() {
				_, err := repo.GetAccessCode(ctx)
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

				Expect(repo.SetAccessCode(ctx, "SCOE2024")).To(Succeed())
				Expect(repo.SetAccessCode(ctx, "NEW-CODE")).To(Succeed())

				code, err := repo.GetAccessCode(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(code).To(Equal("NEW-CODE"))
			})
		})

		Describe("WithinTx", func() {
			It("commits all writes", func() {
				err := repo.WithinTx(ctx, func(tx store.Repository) error {
					if _, err := tx.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleHOD)); err != nil {
						return err
					}
					return tx.SetUserQuotas(ctx, "u1", quota.Default().Deduct(quota.CL, 2))
				})
				Expect(err).NotTo(HaveOccurred())

				got, err := repo.GetUser(ctx, "u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Quotas[quota.CL]).To(Equal(10))
			})

			It("rolls back every write on error", func() {
				_, err := repo.UpsertUser(ctx, NewUser("u1", "a@scoe.edu", user.RoleHOD))
				Expect(err).NotTo(HaveOccurred())

				boom := errors.New("boom")
				err = repo.WithinTx(ctx, func(tx store.Repository) error {
					if err := tx.SetUserQuotas(ctx, "u1", quota.Default().Deduct(quota.CL, 12)); err != nil {
						return err
					}
					if _, err := tx.CreateLeaveRequest(ctx, NewRequest("r1", "u1", "", time.Now())); err != nil {
						return err
					}
					return boom
				})
				Expect(errors.Is(err, boom)).To(BeTrue())

				got, err := repo.GetUser(ctx, "u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Quotas[quota.CL]).To(Equal(12))
				_, err = repo.GetLeaveRequest(ctx, "r1")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})
		})
	})
}
