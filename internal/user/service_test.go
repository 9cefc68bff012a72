package user_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/settings"
	"github.com/frahmantamala/leave-portal/internal/store"
	"github.com/frahmantamala/leave-portal/internal/store/memory"
	"github.com/frahmantamala/leave-portal/internal/user"
)

func TestUser(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Suite")
}

type plainHasher struct {
	err error
}

func (h plainHasher) HashPassword(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func staff(email string) user.RegisterDTO {
	return user.RegisterDTO{
		Name:         "Asha Patil",
		Email:        email,
		Password:     "secret1",
		Role:         string(coreUser.RoleTeachingStaff),
		Department:   string(coreUser.DeptCOMPS),
		ApproverRole: string(coreUser.ApproverHOD),
	}
}

var _ = Describe("User Service", func() {
	var (
		ctx     context.Context
		repo    *memory.Store
		codes   *settings.Service
		service *user.Service
		logger  *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = memory.New()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		codes = settings.NewService(repo, settings.DefaultAccessCode, logger)
		service = user.NewService(repo, codes, plainHasher{}, nil, logger)
	})

	Describe("Register", func() {
		It("creates staff with default quotas and a normalised email", func() {
			// Given
			dto := staff("  Asha@SCOE.edu ")

			// When
			u, err := service.Register(ctx, dto)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).NotTo(BeEmpty())
			Expect(u.Email).To(Equal("asha@scoe.edu"))
			Expect(u.PasswordHash).To(Equal("hashed:secret1"))
			Expect(u.Quotas).To(Equal(quota.Default()))
			Expect(u.ApproverRole).To(Equal(coreUser.ApproverHOD))
		})

		It("rejects a duplicate email regardless of case", func() {
			_, err := service.Register(ctx, staff("asha@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Register(ctx, staff("ASHA@scoe.edu"))
			Expect(errors.Is(err, internal.ErrDuplicateEmail)).To(BeTrue())

			users, _ := repo.ListUsers(ctx)
			Expect(users).To(HaveLen(1))
		})

		It("requires the access code for admin roles", func() {
			dto := staff("admin2@scoe.edu")
			dto.Role = string(coreUser.RoleAdmin2)

			_, err := service.Register(ctx, dto)
			Expect(errors.Is(err, internal.ErrInvalidAccessCode)).To(BeTrue())

			dto.AccessCode = "SCOE2024"
			u, err := service.Register(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ApproverRole).To(Equal(coreUser.ApproverNone))
		})

		It("drops the approver preference of a principal", func() {
			dto := staff("principal@scoe.edu")
			dto.Role = string(coreUser.RolePrincipal)

			u, err := service.Register(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ApproverRole).To(Equal(coreUser.ApproverNone))
		})

		It("accepts an explicitly chosen admin approver", func() {
			admin := staff("admin@scoe.edu")
			admin.Role = string(coreUser.RoleAdmin1)
			admin.AccessCode = "SCOE2024"
			created, err := service.Register(ctx, admin)
			Expect(err).NotTo(HaveOccurred())

			dto := staff("clerk@scoe.edu")
			dto.Role = string(coreUser.RoleNonTeachingStaff)
			dto.ApproverRole = string(coreUser.ApproverAdmin)
			dto.ApproverID = created.ID

			u, err := service.Register(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ApproverID).To(Equal(created.ID))
		})

		It("rejects a chosen approver that is not an admin", func() {
			other, err := service.Register(ctx, staff("hod@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())

			dto := staff("clerk@scoe.edu")
			dto.ApproverRole = string(coreUser.ApproverAdmin)
			dto.ApproverID = other.ID

			_, err = service.Register(ctx, dto)
			Expect(errors.Is(err, internal.ErrInvalidApprover)).To(BeTrue())
		})

		It("ignores an approver id unless the Admin approver role is chosen", func() {
			dto := staff("clerk@scoe.edu")
			dto.ApproverID = "whoever"

			u, err := service.Register(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ApproverID).To(BeEmpty())
		})

		It("reports every invalid field", func() {
			_, err := service.Register(ctx, user.RegisterDTO{Email: "nope", Role: "Janitor", Department: "Physics"})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
			details, ok := appErr.Details.(internal.ValidationErrors)
			Expect(ok).To(BeTrue())
			fields := make([]string, 0, len(details.Errors))
			for _, e := range details.Errors {
				fields = append(fields, e.Field)
			}
			Expect(fields).To(ContainElements("name", "email", "password", "role", "department"))
		})

		It("surfaces hashing failures as internal errors", func() {
			service = user.NewService(repo, codes, plainHasher{err: errors.New("boom")}, nil, logger)

			_, err := service.Register(ctx, staff("asha@scoe.edu"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
		})
	})

	Describe("AddStaff", func() {
		It("creates admins without an access code", func() {
			u, err := service.AddStaff(ctx, "admin-1", user.AddStaffDTO{
				Name:       "Office Admin",
				Email:      "office@scoe.edu",
				Password:   "secret1",
				Role:       string(coreUser.RoleAdmin),
				Department: string(coreUser.DeptNotApplicable),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(coreUser.RoleAdmin))
		})

		It("uses configured default quotas", func() {
			custom := quota.Default()
			custom[quota.CL] = 8
			service = user.NewService(repo, codes, plainHasher{}, custom, logger)

			u, err := service.Register(ctx, staff("asha@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Quotas[quota.CL]).To(Equal(8))
		})
	})

	Describe("List and ListApprovers", func() {
		BeforeEach(func() {
			_, err := service.Register(ctx, staff("asha@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())

			it := staff("ravi@scoe.edu")
			it.Name = "Ravi Kulkarni"
			it.Department = string(coreUser.DeptIT)
			_, err = service.Register(ctx, it)
			Expect(err).NotTo(HaveOccurred())

			admin := staff("admin@scoe.edu")
			admin.Name = "College Admin"
			admin.Role = string(coreUser.RoleAdmin1)
			admin.AccessCode = "SCOE2024"
			_, err = service.Register(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
		})

		It("filters by department", func() {
			users, err := service.List(ctx, user.ListFilter{Department: string(coreUser.DeptIT)})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Email).To(Equal("ravi@scoe.edu"))
		})

		It("filters by role and free text", func() {
			users, err := service.List(ctx, user.ListFilter{Role: string(coreUser.RoleTeachingStaff), Query: "ASHA"})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Name).To(Equal("Asha Patil"))
		})

		It("lists admins as approver candidates", func() {
			approvers, err := service.ListApprovers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(approvers).To(HaveLen(1))
			Expect(approvers[0].Name).To(Equal("College Admin"))
		})
	})

	Describe("Delete", func() {
		It("refuses to delete the acting admin", func() {
			err := service.Delete(ctx, "admin-1", "admin-1")
			Expect(errors.Is(err, internal.ErrCannotDeleteSelf)).To(BeTrue())
		})

		It("removes the user", func() {
			u, err := service.Register(ctx, staff("asha@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, "admin-1", u.ID)).To(Succeed())

			_, err = service.Get(ctx, u.ID)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("quotas", func() {
		var target *coreUser.User

		BeforeEach(func() {
			var err error
			target, err = service.Register(ctx, staff("asha@scoe.edu"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces only the named categories", func() {
			u, err := service.UpdateQuotas(ctx, "admin-1", target.ID, user.UpdateQuotasDTO{Quotas: map[string]int{"cl": 3}})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Quotas[quota.CL]).To(Equal(3))
			Expect(u.Quotas[quota.ML]).To(Equal(10))

			stored, _ := repo.GetUser(ctx, target.ID)
			Expect(stored.Quotas[quota.CL]).To(Equal(3))
		})

		It("rejects unknown categories", func() {
			_, err := service.UpdateQuotas(ctx, "admin-1", target.ID, user.UpdateQuotasDTO{Quotas: map[string]int{"XL": 3}})
			Expect(errors.Is(err, internal.ErrUnknownCategory)).To(BeTrue())
		})

		It("rejects negative balances", func() {
			_, err := service.UpdateQuotas(ctx, "admin-1", target.ID, user.UpdateQuotasDTO{Quotas: map[string]int{"CL": -1}})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("adjusts one category and clamps at zero", func() {
			u, err := service.AdjustQuota(ctx, "admin-1", target.ID, user.AdjustQuotaDTO{Category: "Casual Leave (CL)", Delta: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Quotas[quota.CL]).To(Equal(14))

			u, err = service.AdjustQuota(ctx, "admin-1", target.ID, user.AdjustQuotaDTO{Category: "CO", Delta: -50})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Quotas[quota.CO]).To(Equal(0))
		})

		It("reports a missing user", func() {
			_, err := service.AdjustQuota(ctx, "admin-1", "missing", user.AdjustQuotaDTO{Category: "CL", Delta: 1})
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})
})

type stubService struct {
	user.ServiceAPI
	deleted  []string
	quotaErr error
}

func (s *stubService) Delete(_ context.Context, actorID, id string) error {
	s.deleted = append(s.deleted, actorID+"->"+id)
	return nil
}

func (s *stubService) UpdateQuotas(context.Context, string, string, user.UpdateQuotasDTO) (*coreUser.User, error) {
	return nil, s.quotaErr
}

func (s *stubService) Register(_ context.Context, dto user.RegisterDTO) (*coreUser.User, error) {
	return &coreUser.User{ID: "new", Email: dto.Email, Role: coreUser.Role(dto.Role)}, nil
}

var _ = Describe("User Handler", func() {
	var (
		stub    *stubService
		handler *user.Handler
		router  chi.Router
	)

	BeforeEach(func() {
		stub = &stubService{}
		handler = user.NewHandler(stub)
		router = chi.NewRouter()
		router.Post("/auth/signup", handler.Signup)
		router.Delete("/admin/users/{id}", handler.DeleteUser)
		router.Put("/admin/users/{id}/quotas", handler.UpdateQuotas)
	})

	It("creates accounts on signup", func() {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"a@scoe.edu","role":"HOD"}`))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(rec.Body.String()).To(ContainSubstring(`"email":"a@scoe.edu"`))
		Expect(rec.Body.String()).NotTo(ContainSubstring("password"))
	})

	It("rejects unknown fields", func() {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"a@scoe.edu","is_root":true}`))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("passes the acting admin and path id on delete", func() {
		req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-9", nil)
		req = req.WithContext(internal.ContextWithUserID(req.Context(), "admin-1"))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(stub.deleted).To(ConsistOf("admin-1->u-9"))
	})

	It("renders service errors with their status", func() {
		stub.quotaErr = internal.ErrUserNotFound
		req := httptest.NewRequest(http.MethodPut, "/admin/users/u-9/quotas", strings.NewReader(`{"quotas":{"CL":1}}`))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeUserNotFound)))
	})

	It("maps storage outages to 503", func() {
		stub.quotaErr = internal.ErrPersistenceUnavailable.Wrap(store.ErrPersistenceUnavailable)
		req := httptest.NewRequest(http.MethodPut, "/admin/users/u-9/quotas", strings.NewReader(`{"quotas":{"CL":1}}`))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})
