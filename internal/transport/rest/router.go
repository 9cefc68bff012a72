package rest

import (
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/leave-portal/internal/auth"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/leave"
	"github.com/frahmantamala/leave-portal/internal/settings"
	"github.com/frahmantamala/leave-portal/internal/transport/middleware"
	"github.com/frahmantamala/leave-portal/internal/transport/swagger"
	"github.com/frahmantamala/leave-portal/internal/user"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health   *HealthHandler
	Auth     *auth.Handler
	User     *user.Handler
	Leave    *leave.Handler
	Settings *settings.Handler
}

func RegisterAllRoutes(router chi.Router, h Handlers, allowedOrigins []string, logger *slog.Logger) {
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.Logging)

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", h.Health.Ping)
		r.Get("/health", h.Health.Health)

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.RefreshToken)
			ar.Post("/signup", h.User.Signup)
			ar.Post("/logout", h.Auth.Logout)
		})
		r.Get("/directory/approvers", h.User.ListApprovers)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.User.GetCurrentUser)
			pr.Get("/dashboard", h.Leave.Dashboard)

			pr.Route("/leaves", func(lr chi.Router) {
				lr.Post("/", h.Leave.Submit)
				lr.Get("/", h.Leave.ListMine)
				lr.Get("/{id}", h.Leave.Get)
			})

			pr.Route("/approvals", func(qr chi.Router) {
				qr.Get("/", h.Leave.Queue)
				qr.Get("/stats", h.Leave.QueueStats)
				qr.Post("/approve-all", h.Leave.ApproveAll)
				qr.Post("/{id}/approve", h.Leave.Approve)
				qr.Post("/{id}/reject", h.Leave.Reject)
			})

			pr.Route("/admin", func(adm chi.Router) {
				adm.Use(h.Auth.RequireRoles(coreUser.AdminRoles...))

				adm.Get("/users", h.User.ListUsers)
				adm.Post("/users", h.User.AddStaff)
				adm.Delete("/users/{id}", h.User.DeleteUser)
				adm.Put("/users/{id}/quotas", h.User.UpdateQuotas)
				adm.Post("/users/{id}/quotas/adjust", h.User.AdjustQuota)

				adm.Get("/settings/access-code", h.Settings.GetAccessCode)
				adm.Put("/settings/access-code", h.Settings.UpdateAccessCode)
			})
		})
	})
}
