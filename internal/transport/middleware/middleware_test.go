package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chiMiddleware "github.com/go-chi/chi/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal/transport/middleware"
	"github.com/frahmantamala/leave-portal/pkg/logger"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var _ = Describe("Middleware", func() {
	var (
		buf  *bytes.Buffer
		base *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		base = slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})

	Describe("RequestID", func() {
		It("echoes an incoming trace id and exposes it to handlers", func() {
			var seen string
			h := middleware.RequestID(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = chiMiddleware.GetReqID(r.Context())
				logger.From(r.Context()).Info("inside")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(middleware.TraceHeader, "trace-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
			Expect(seen).To(Equal("trace-123"))
			Expect(buf.String()).To(ContainSubstring(`"trace_id":"trace-123"`))
		})

		It("mints a trace id when none is sent", func() {
			h := middleware.RequestID(base)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Header().Get(middleware.TraceHeader)).To(HaveLen(36))
		})
	})

	Describe("Logging", func() {
		It("masks credentials in bodies and headers and keeps the body readable", func() {
			var body []byte
			h := middleware.RequestID(base)(middleware.Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"access_token":"abc.def.ghi","user":{"name":"Asha"}}`))
			})))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup",
				strings.NewReader(`{"email":"a@scoe.edu","password":"hunter22","access_code":"SCOE2024"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer secret-token")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(string(body)).To(ContainSubstring("hunter22"))
			logs := buf.String()
			Expect(logs).NotTo(ContainSubstring("hunter22"))
			Expect(logs).NotTo(ContainSubstring("SCOE2024"))
			Expect(logs).NotTo(ContainSubstring("secret-token"))
			Expect(logs).NotTo(ContainSubstring("abc.def.ghi"))
			Expect(logs).To(ContainSubstring("a@scoe.edu"))
			Expect(logs).To(ContainSubstring(`"status_code":201`))
		})
	})

	Describe("Recovery", func() {
		It("answers 500 without leaking the panic value", func() {
			h := middleware.RequestID(base)(middleware.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("db password is hunter22")
			})))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(ContainSubstring("INTERNAL_ERROR"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("hunter22"))
			Expect(buf.String()).To(ContainSubstring("panic recovered"))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests for allowed origins", func() {
			h := middleware.CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/leaves", nil)
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:5173"))
		})
	})
})
