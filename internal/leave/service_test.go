package leave_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/core/events"
	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/leave"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
	"github.com/frahmantamala/leave-portal/internal/store/memory"
)

func TestLeave(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Leave Suite")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type downStore struct {
	*memory.Store
}

func (downStore) WithinTx(context.Context, func(tx store.Repository) error) error {
	return store.Unavailable("begin", errors.New("connection refused"))
}

func (downStore) ListLeaveRequests(context.Context, store.LeaveFilter) ([]*coreLeave.Request, error) {
	return nil, store.Unavailable("list leave requests", errors.New("connection refused"))
}

func withApprover(u *coreUser.User, role coreUser.ApproverRole) *coreUser.User {
	c := *u
	c.ApproverRole = role
	return &c
}

// 2024-01-01 is a Monday.
func casual(start, end string) leave.SubmitDTO {
	return leave.SubmitDTO{LeaveType: "Casual Leave (CL)", StartDate: start, EndDate: end, Reason: "family function"}
}

var _ = Describe("Leave Service", func() {
	var (
		ctx       context.Context
		repo      *memory.Store
		publisher *recordingPublisher
		service   *leave.Service

		principal, hod, teacher, admin, otherHOD *coreUser.User
	)

	seed := func(u *coreUser.User) *coreUser.User {
		u.Quotas = quota.Default()
		stored, err := repo.UpsertUser(ctx, u)
		Expect(err).NotTo(HaveOccurred())
		return stored
	}

	balance := func(id string, c quota.Category) int {
		u, err := repo.GetUser(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return u.Quotas[c]
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = memory.New()
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = leave.NewService(repo, publisher, logger)

		principal = seed(&coreUser.User{ID: "u1-principal", Name: "Dr. Deshmukh", Email: "principal@scoe.edu", Role: coreUser.RolePrincipal, Department: coreUser.DeptCOMPS})
		admin = seed(&coreUser.User{ID: "u2-admin", Name: "College Admin", Email: "admin@scoe.edu", Role: coreUser.RoleAdmin1, Department: coreUser.DeptCOMPS})
		hod = seed(&coreUser.User{ID: "u3-hod", Name: "Prof. Rao", Email: "hod@scoe.edu", Role: coreUser.RoleHOD, Department: coreUser.DeptCOMPS})
		otherHOD = seed(&coreUser.User{ID: "u4-hod", Name: "Prof. Iyer", Email: "hod.it@scoe.edu", Role: coreUser.RoleHOD, Department: coreUser.DeptIT})
		teacher = seed(&coreUser.User{ID: "u5-teacher", Name: "Asha Patil", Email: "asha@scoe.edu", Role: coreUser.RoleTeachingStaff, Department: coreUser.DeptCOMPS, ApproverRole: coreUser.ApproverHOD})
	})

	Describe("Submit", func() {
		It("stores a pending request routed to the department HOD", func() {
			// When
			req, err := service.Submit(ctx, teacher.ID, casual("2024-01-01", "2024-01-07"))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(req.ID).NotTo(BeEmpty())
			Expect(req.Status).To(Equal(coreLeave.StatusPending))
			Expect(req.ApproverID).To(Equal(hod.ID))
			Expect(req.Days).To(Equal(5))
			Expect(req.UserName).To(Equal("Asha Patil"))
			Expect(req.Department).To(Equal("COMPS"))
			Expect(req.LeaveType).To(Equal("Casual Leave (CL)"))
			Expect(balance(teacher.ID, quota.CL)).To(Equal(12))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeLeaveSubmitted}))
		})

		It("normalises timestamps to calendar dates", func() {
			req, err := service.Submit(ctx, teacher.ID, casual("2024-01-01T09:30:00Z", "2024-01-02T18:00:00+05:30"))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.StartDate).To(Equal("2024-01-01"))
			Expect(req.EndDate).To(Equal("2024-01-02"))
			Expect(req.Days).To(Equal(2))
		})

		It("rejects requests beyond the remaining balance before writing", func() {
			dto := casual("2024-01-01", "2024-01-01")
			dto.ManualDays = 13

			_, err := service.Submit(ctx, teacher.ID, dto)

			Expect(errors.Is(err, internal.ErrInsufficientQuota)).To(BeTrue())
			requests, _ := repo.ListLeaveRequests(ctx, store.LeaveFilter{})
			Expect(requests).To(BeEmpty())
		})

		It("rejects an inverted range", func() {
			_, err := service.Submit(ctx, teacher.ID, casual("2024-01-05", "2024-01-01"))
			Expect(errors.Is(err, internal.ErrInvalidDateRange)).To(BeTrue())
		})

		It("accepts an inverted range with a manual day count", func() {
			dto := casual("2024-01-05", "2024-01-01")
			dto.ManualDays = 2

			req, err := service.Submit(ctx, teacher.ID, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Days).To(Equal(2))
		})

		It("rejects a weekend-only range", func() {
			_, err := service.Submit(ctx, teacher.ID, casual("2024-01-06", "2024-01-07"))
			Expect(errors.Is(err, internal.ErrNoWorkingDays)).To(BeTrue())
		})

		It("rejects malformed dates", func() {
			_, err := service.Submit(ctx, teacher.ID, casual("01/02/2024", "2024-01-07"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			details := appErr.Details.(internal.ValidationErrors)
			Expect(details.Errors[0].Field).To(Equal("start_date"))
			Expect(details.Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidDateRange)))
		})

		It("rejects an unknown leave type", func() {
			dto := casual("2024-01-01", "2024-01-02")
			dto.LeaveType = "Overtime"

			_, err := service.Submit(ctx, teacher.ID, dto)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			details := appErr.Details.(internal.ValidationErrors)
			Expect(details.Errors[0].Field).To(Equal("leave_type"))
			Expect(details.Errors[0].Code).To(Equal(string(internal.ErrCodeUnknownCategory)))
			Expect(details.Errors[0].Message).To(ContainSubstring("Casual Leave (CL), Compensatory Off (CO)"))
		})

		It("keeps requests without a resolvable approver", func() {
			orphan := seed(&coreUser.User{ID: "u6-civil", Name: "Kiran", Email: "kiran@scoe.edu", Role: coreUser.RoleTeachingStaff, Department: coreUser.DeptCivil, ApproverRole: coreUser.ApproverHOD})

			req, err := service.Submit(ctx, orphan.ID, casual("2024-01-01", "2024-01-01"))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.ApproverID).To(BeEmpty())
			Expect(req.Status).To(Equal(coreLeave.StatusPending))
		})

		It("does not route a HOD's own request back to them", func() {
			_, err := repo.UpsertUser(ctx, withApprover(hod, coreUser.ApproverHOD))
			Expect(err).NotTo(HaveOccurred())

			req, err := service.Submit(ctx, hod.ID, casual("2024-01-01", "2024-01-02"))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.ApproverID).To(BeEmpty())
			Expect(req.Status).To(Equal(coreLeave.StatusPending))

			_, err = service.Approve(ctx, hod, req.ID)
			Expect(errors.Is(err, internal.ErrNotApprover)).To(BeTrue())
			Expect(balance(hod.ID, quota.CL)).To(Equal(12))
		})

		It("refuses a self-decision on a request stored with the requester as approver", func() {
			stored, err := repo.CreateLeaveRequest(ctx, &coreLeave.Request{
				UserID:     hod.ID,
				UserName:   hod.Name,
				Department: string(hod.Department),
				LeaveType:  "Casual Leave (CL)",
				StartDate:  "2024-01-01",
				EndDate:    "2024-01-01",
				Days:       1,
				Status:     coreLeave.StatusPending,
				ApproverID: hod.ID,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Approve(ctx, hod, stored.ID)
			Expect(errors.Is(err, internal.ErrNotApprover)).To(BeTrue())
		})

		It("routes admin requests to the principal", func() {
			req, err := service.Submit(ctx, admin.ID, casual("2024-01-01", "2024-01-01"))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.ApproverID).To(Equal(principal.ID))
		})

		It("auto-approves and charges a principal's own request", func() {
			req, err := service.Submit(ctx, principal.ID, casual("2024-01-01", "2024-01-03"))

			Expect(err).NotTo(HaveOccurred())
			Expect(req.Status).To(Equal(coreLeave.StatusApproved))
			Expect(req.DecidedByID).To(Equal(principal.ID))
			Expect(req.DecidedByName).To(Equal("Dr. Deshmukh"))
			Expect(req.QuotaDeducted).To(BeTrue())
			Expect(req.DeductedDays).To(Equal(3))
			Expect(balance(principal.ID, quota.CL)).To(Equal(9))
			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeLeaveSubmitted,
				events.EventTypeLeaveApproved,
				events.EventTypeQuotaDeducted,
			}))
		})

		It("fails for unknown users", func() {
			_, err := service.Submit(ctx, "ghost", casual("2024-01-01", "2024-01-01"))
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("decisions", func() {
		var pending *coreLeave.Request

		BeforeEach(func() {
			var err error
			pending, err = service.Submit(ctx, teacher.ID, casual("2024-01-01", "2024-01-05"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("approves once and deducts once", func() {
			// When
			approved, err := service.Approve(ctx, hod, pending.ID)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.Status).To(Equal(coreLeave.StatusApproved))
			Expect(approved.DecidedByName).To(Equal("Prof. Rao"))
			Expect(approved.DecidedAt).NotTo(BeNil())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(7))
			Expect(balance(teacher.ID, quota.ML)).To(Equal(10))

			// And a second approval is refused without charging again
			_, err = service.Approve(ctx, hod, pending.ID)
			Expect(errors.Is(err, internal.ErrInvalidLeaveStatus)).To(BeTrue())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(7))

			stored, err := repo.GetLeaveRequest(ctx, pending.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.QuotaDeducted).To(BeTrue())
			Expect(stored.DeductedDays).To(Equal(5))
		})

		It("clamps the balance at zero", func() {
			Expect(repo.SetUserQuotas(ctx, teacher.ID, quota.Set{quota.CL: 2, quota.CO: 5, quota.ML: 10, quota.VL: 15, quota.EL: 15})).To(Succeed())

			_, err := service.Approve(ctx, hod, pending.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(0))
		})

		It("only lets the resolved approver decide", func() {
			_, err := service.Approve(ctx, otherHOD, pending.ID)
			Expect(errors.Is(err, internal.ErrNotApprover)).To(BeTrue())

			_, err = service.Reject(ctx, principal, pending.ID)
			Expect(errors.Is(err, internal.ErrNotApprover)).To(BeTrue())
		})

		It("rejects without touching balances", func() {
			rejected, err := service.Reject(ctx, hod, pending.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rejected.Status).To(Equal(coreLeave.StatusRejected))
			Expect(rejected.QuotaDeducted).To(BeFalse())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(12))

			_, err = service.Approve(ctx, hod, pending.ID)
			Expect(errors.Is(err, internal.ErrInvalidLeaveStatus)).To(BeTrue())
		})

		It("reports missing requests", func() {
			_, err := service.Approve(ctx, hod, "missing")
			Expect(errors.Is(err, internal.ErrLeaveNotFound)).To(BeTrue())
		})

		It("approves a whole queue independently", func() {
			second, err := service.Submit(ctx, teacher.ID, casual("2024-01-08", "2024-01-09"))
			Expect(err).NotTo(HaveOccurred())
			third, err := service.Submit(ctx, teacher.ID, casual("2024-01-10", "2024-01-10"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Reject(ctx, hod, third.ID)
			Expect(err).NotTo(HaveOccurred())

			result, err := service.ApproveAll(ctx, hod)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Approved).To(ConsistOf(pending.ID, second.ID))
			Expect(result.Failed).To(BeEmpty())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(5))
		})

		It("publishes decision and deduction events", func() {
			_, err := service.Approve(ctx, hod, pending.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeLeaveSubmitted,
				events.EventTypeLeaveApproved,
				events.EventTypeQuotaDeducted,
			}))
			deducted, ok := publisher.events[2].(*events.QuotaDeductedEvent)
			Expect(ok).To(BeTrue())
			Expect(deducted.Before).To(Equal(12))
			Expect(deducted.After).To(Equal(7))
		})
	})

	Describe("SettleDeduction", func() {
		It("charges an approved request once", func() {
			// Given an approval whose deduction was never recorded
			decidedAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
			req, err := repo.CreateLeaveRequest(ctx, &coreLeave.Request{
				UserID: teacher.ID, UserName: teacher.Name, LeaveType: "Medical Leave (ML)",
				StartDate: "2024-01-01", EndDate: "2024-01-02", Days: 2, Reason: "flu",
				Status: coreLeave.StatusApproved, ApproverID: hod.ID,
				DecidedByID: hod.ID, DecidedByName: hod.Name, DecidedAt: &decidedAt,
			})
			Expect(err).NotTo(HaveOccurred())

			// When
			applied, err := service.SettleDeduction(ctx, req.ID)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(balance(teacher.ID, quota.ML)).To(Equal(8))

			stored, _ := repo.GetLeaveRequest(ctx, req.ID)
			Expect(stored.QuotaDeducted).To(BeTrue())
			Expect(stored.DecidedByID).To(Equal(hod.ID))
			Expect(stored.DecidedAt.Equal(decidedAt)).To(BeTrue())

			applied, err = service.SettleDeduction(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(balance(teacher.ID, quota.ML)).To(Equal(8))
		})

		It("leaves pending requests alone", func() {
			req, err := service.Submit(ctx, teacher.ID, casual("2024-01-01", "2024-01-01"))
			Expect(err).NotTo(HaveOccurred())

			applied, err := service.SettleDeduction(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(balance(teacher.ID, quota.CL)).To(Equal(12))
		})
	})

	Describe("views", func() {
		BeforeEach(func() {
			ravi := seed(&coreUser.User{ID: "u7-ravi", Name: "Ravi Kulkarni", Email: "ravi@scoe.edu", Role: coreUser.RoleTeachingStaff, Department: coreUser.DeptCOMPS, ApproverRole: coreUser.ApproverHOD})

			first, err := service.Submit(ctx, teacher.ID, casual("2024-01-01", "2024-01-01"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Submit(ctx, teacher.ID, casual("2024-01-02", "2024-01-02"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Submit(ctx, ravi.ID, casual("2024-01-03", "2024-01-03"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, hod, first.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("filters the queue by status and requester name", func() {
			pending, err := service.Queue(ctx, hod.ID, leave.QueueFilter{Status: coreLeave.StatusPending})
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(2))

			byName, err := service.Queue(ctx, hod.ID, leave.QueueFilter{Query: "ravi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(byName).To(HaveLen(1))
			Expect(byName[0].UserName).To(Equal("Ravi Kulkarni"))
		})

		It("rejects unknown status filters", func() {
			_, err := service.Queue(ctx, hod.ID, leave.QueueFilter{Status: "Archived"})
			_, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
		})

		It("counts the queue by status", func() {
			stats, err := service.QueueStats(ctx, hod.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(leave.Stats{Pending: 2, Approved: 1, Total: 3}))
		})

		It("summarises the dashboard", func() {
			dash, err := service.Dashboard(ctx, teacher.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dash.Quotas[quota.CL]).To(Equal(11))
			Expect(dash.Requests).To(Equal(leave.Stats{Pending: 1, Approved: 1, Total: 2}))
			Expect(dash.Recent).To(HaveLen(2))

			approverDash, err := service.Dashboard(ctx, hod.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(approverDash.PendingApprovals).To(Equal(2))
		})

		It("lists only the caller's own requests", func() {
			mine, err := service.ListMine(ctx, teacher.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(2))
			for _, r := range mine {
				Expect(r.UserID).To(Equal(teacher.ID))
			}
		})

		It("hides requests from unrelated users", func() {
			mine, err := service.ListMine(ctx, teacher.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Get(ctx, otherHOD, mine[0].ID)
			Expect(errors.Is(err, internal.ErrUnauthorizedAccess)).To(BeTrue())

			for _, viewer := range []*coreUser.User{teacher, hod, admin} {
				got, err := service.Get(ctx, viewer, mine[0].ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(mine[0].ID))
			}
		})
	})

	Describe("storage outage", func() {
		BeforeEach(func() {
			service = leave.NewService(downStore{Store: repo}, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))
		})

		It("reports persistence unavailable on writes", func() {
			_, err := service.Submit(ctx, teacher.ID, casual("2024-01-01", "2024-01-01"))
			Expect(errors.Is(err, internal.ErrPersistenceUnavailable)).To(BeTrue())
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.StatusCode).To(Equal(503))
		})

		It("reports persistence unavailable on reads", func() {
			_, err := service.ListMine(ctx, teacher.ID)
			Expect(errors.Is(err, internal.ErrPersistenceUnavailable)).To(BeTrue())
		})
	})
})
