package leave_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/auth"
	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/leave"
)

type stubService struct {
	leave.ServiceAPI
	submitted   leave.SubmitDTO
	decidedBy   string
	decidedID   string
	queueFilter leave.QueueFilter
	err         error
}

func (s *stubService) Submit(_ context.Context, userID string, dto leave.SubmitDTO) (*coreLeave.Request, error) {
	s.submitted = dto
	if s.err != nil {
		return nil, s.err
	}
	return &coreLeave.Request{ID: "l1", UserID: userID, Status: coreLeave.StatusPending}, nil
}

func (s *stubService) Approve(_ context.Context, decider *coreUser.User, id string) (*coreLeave.Request, error) {
	s.decidedBy, s.decidedID = decider.ID, id
	if s.err != nil {
		return nil, s.err
	}
	return &coreLeave.Request{ID: id, Status: coreLeave.StatusApproved}, nil
}

func (s *stubService) Queue(_ context.Context, _ string, filter leave.QueueFilter) ([]*coreLeave.Request, error) {
	s.queueFilter = filter
	return []*coreLeave.Request{{ID: "l1"}, {ID: "l2"}}, nil
}

var _ = Describe("Handler", func() {
	var (
		svc    *stubService
		router chi.Router
		caller *coreUser.User
	)

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if caller != nil {
			req = req.WithContext(auth.ContextWithUser(req.Context(), caller))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		svc = &stubService{}
		caller = &coreUser.User{ID: "hod", Name: "Prof. Kulkarni", Role: coreUser.RoleHOD}

		h := leave.NewHandler(svc)
		r := chi.NewRouter()
		r.Post("/leaves", h.Submit)
		r.Get("/approvals", h.Queue)
		r.Post("/approvals/{id}/approve", h.Approve)
		router = r
	})

	It("creates a request for the caller", func() {
		rec := serve(http.MethodPost, "/leaves",
			`{"leave_type":"CL","start_date":"2024-01-01","end_date":"2024-01-01","reason":"fever"}`)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(svc.submitted.LeaveType).To(Equal("CL"))

		var body coreLeave.Request
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.UserID).To(Equal("hod"))
	})

	It("rejects bodies with unknown fields", func() {
		rec := serve(http.MethodPost, "/leaves", `{"leave_type":"CL","days":3}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("requires an authenticated caller", func() {
		caller = nil
		rec := serve(http.MethodPost, "/approvals/l1/approve", "")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("passes the decider and the path id through", func() {
		rec := serve(http.MethodPost, "/approvals/l9/approve", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.decidedBy).To(Equal("hod"))
		Expect(svc.decidedID).To(Equal("l9"))
	})

	It("maps service errors to their status", func() {
		svc.err = internal.ErrNotApprover
		rec := serve(http.MethodPost, "/approvals/l9/approve", "")

		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeNotApprover)))
	})

	It("reads queue filters from the query string", func() {
		rec := serve(http.MethodGet, "/approvals?status=Pending&q=asha", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.queueFilter.Status).To(Equal(coreLeave.StatusPending))
		Expect(svc.queueFilter.Query).To(Equal("asha"))
		Expect(rec.Body.String()).To(ContainSubstring(`"total":2`))
	})
})
