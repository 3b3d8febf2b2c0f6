package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/auth"
	"github.com/wolfman30/clinicdesk/internal/dashboard"
	"github.com/wolfman30/clinicdesk/internal/employees"
	"github.com/wolfman30/clinicdesk/internal/files"
	httpmiddleware "github.com/wolfman30/clinicdesk/internal/http/middleware"
	"github.com/wolfman30/clinicdesk/internal/invoices"
	"github.com/wolfman30/clinicdesk/internal/masterdata"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/rbac"
	"github.com/wolfman30/clinicdesk/internal/search"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/internal/visits"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Config holds router configuration. Nil handlers are not mounted.
type Config struct {
	Logger             *logging.Logger
	HTTPMetrics        *metrics.HTTPMetrics
	MetricsHandler     http.Handler
	Health             *HealthHandler
	CORSAllowedOrigins []string

	Tokens       httpmiddleware.TokenParser
	LoginLimiter *httpmiddleware.RateLimiter

	Auth         *auth.Handler
	Patients     *patients.Handler
	Employees    *employees.Handler
	Leaves       *employees.LeaveHandler
	Appointments *appointments.Handler
	Visits       *visits.Handler
	Invoices     *invoices.Handler
	MasterData   *masterdata.Handler
	RBAC         *rbac.Handler
	Files        *files.Handler
	Search       *search.Handler
	Dashboard    *dashboard.Handler
	Settings     *settings.Handler
	Audit        *audit.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(httpmiddleware.Metrics(cfg.HTTPMetrics))

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.ServeHTTP)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Compress(5, "application/json"))

		if cfg.Auth != nil {
			api.With(httpmiddleware.RateLimit(cfg.LoginLimiter)).Post("/auth/login", cfg.Auth.Login)
		}

		api.Group(func(p chi.Router) {
			p.Use(httpmiddleware.Authenticate(cfg.Tokens))
			mountAuthenticated(p, cfg)
		})
	})

	return r
}

func mountAuthenticated(r chi.Router, cfg *Config) {
	can := httpmiddleware.RequirePermission

	if cfg.Auth != nil {
		r.Get("/auth/me", cfg.Auth.Me)
	}
	if cfg.Auth != nil || cfg.RBAC != nil {
		r.Route("/users", func(r chi.Router) {
			if h := cfg.Auth; h != nil {
				r.With(can(rbac.UsersManage)).Get("/", h.ListUsers)
				r.With(can(rbac.UsersManage)).Post("/", h.CreateUser)
				r.With(can(rbac.UsersManage)).Patch("/{id}/status", h.SetActive)
			}
			if h := cfg.RBAC; h != nil {
				r.With(can(rbac.RolesManage)).Get("/{id}/roles", h.UserRoles)
				r.With(can(rbac.RolesManage)).Put("/{id}/roles", h.SetUserRoles)
			}
		})
	}

	if h := cfg.Patients; h != nil {
		r.Route("/patients", func(r chi.Router) {
			r.With(can(rbac.PatientsRead)).Get("/", h.List)
			r.With(can(rbac.PatientsWrite)).Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(can(rbac.PatientsRead)).Get("/", h.Get)
				r.With(can(rbac.PatientsWrite)).Patch("/", h.Update)
				r.With(can(rbac.PatientsWrite)).Delete("/", h.Delete)
				if f := cfg.Files; f != nil {
					r.With(can(rbac.FilesRead)).Get("/files", f.List)
					r.With(can(rbac.FilesWrite)).Post("/files", f.Upload)
				}
			})
		})
	}
	if f := cfg.Files; f != nil {
		r.With(can(rbac.FilesRead)).Get("/files/{id}", f.Download)
		r.With(can(rbac.FilesWrite)).Delete("/files/{id}", f.Delete)
	}

	if h := cfg.Employees; h != nil {
		r.Route("/employees", func(r chi.Router) {
			r.With(can(rbac.EmployeesRead)).Get("/", h.List)
			r.With(can(rbac.EmployeesWrite)).Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(can(rbac.EmployeesRead)).Get("/", h.Get)
				r.With(can(rbac.EmployeesWrite)).Patch("/", h.Update)
				r.With(can(rbac.EmployeesWrite)).Delete("/", h.Delete)
				if l := cfg.Leaves; l != nil {
					r.With(can(rbac.EmployeesRead)).Get("/leaves", l.List)
					r.With(can(rbac.EmployeesWrite)).Post("/leaves", l.Create)
				}
			})
		})
	}
	if l := cfg.Leaves; l != nil {
		r.With(can(rbac.LeavesApprove)).Post("/leaves/{id}/{action}", l.Decide)
	}

	if h := cfg.Appointments; h != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.With(can(rbac.AppointmentsRead)).Get("/", h.List)
			r.With(can(rbac.AppointmentsWrite)).Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(can(rbac.AppointmentsRead)).Get("/", h.Get)
				r.With(can(rbac.AppointmentsWrite)).Patch("/", h.Update)
				r.With(can(rbac.AppointmentsWrite)).Delete("/", h.Delete)
				r.With(can(rbac.AppointmentsWrite)).Post("/{action}", h.Transition)
			})
		})
	}

	if h := cfg.Visits; h != nil {
		r.Route("/visits", func(r chi.Router) {
			r.With(can(rbac.VisitsRead)).Get("/", h.List)
			r.With(can(rbac.VisitsWrite)).Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(can(rbac.VisitsRead)).Get("/", h.Get)
				r.With(can(rbac.VisitsWrite)).Patch("/", h.Update)
				r.With(can(rbac.VisitsWrite)).Delete("/", h.Delete)
				r.With(can(rbac.VisitsWrite)).Post("/{action}", h.Transition)
			})
		})
	}

	if h := cfg.Invoices; h != nil {
		r.Route("/invoices", func(r chi.Router) {
			r.With(can(rbac.InvoicesRead)).Get("/", h.List)
			r.With(can(rbac.InvoicesWrite)).Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(can(rbac.InvoicesRead)).Get("/", h.Get)
				r.With(can(rbac.InvoicesWrite)).Patch("/", h.Update)
				r.With(can(rbac.InvoicesWrite)).Delete("/", h.Delete)
				r.With(can(rbac.InvoicesWrite)).Post("/issue", h.Issue)
				r.With(can(rbac.InvoicesWrite)).Post("/void", h.Void)
				r.With(can(rbac.InvoicesRead)).Get("/payments", h.ListPayments)
				r.With(can(rbac.InvoicesWrite)).Post("/payments", h.RecordPayment)
			})
		})
	}

	if h := cfg.MasterData; h != nil {
		r.Route("/master-data", func(r chi.Router) {
			r.With(can(rbac.MasterDataManage)).Post("/seed", h.Seed)
			reference := func(path string, list, create, update, remove http.HandlerFunc) {
				r.Get(path, list)
				r.With(can(rbac.MasterDataManage)).Post(path, create)
				r.With(can(rbac.MasterDataManage)).Patch(path+"/{id}", update)
				r.With(can(rbac.MasterDataManage)).Delete(path+"/{id}", remove)
			}
			reference("/appointment-types", h.ListAppointmentTypes, h.CreateAppointmentType, h.UpdateAppointmentType, h.DeleteAppointmentType)
			reference("/cancel-reasons", h.ListCancelReasons, h.CreateCancelReason, h.UpdateCancelReason, h.DeleteCancelReason)
			reference("/leave-types", h.ListLeaveTypes, h.CreateLeaveType, h.UpdateLeaveType, h.DeleteLeaveType)
			reference("/holidays", h.ListHolidays, h.CreateHoliday, h.UpdateHoliday, h.DeleteHoliday)
		})
	}

	if h := cfg.RBAC; h != nil {
		r.Get("/permissions", h.ListPermissions)
		r.Route("/roles", func(r chi.Router) {
			r.Use(can(rbac.RolesManage))
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Get("/{id}", h.GetRole)
			r.Patch("/{id}", h.UpdateRole)
			r.Delete("/{id}", h.DeleteRole)
		})
	}

	if h := cfg.Search; h != nil {
		r.Get("/global-search", h.ServeHTTP)
	}
	if h := cfg.Dashboard; h != nil {
		r.With(can(rbac.DashboardRead)).Get("/dashboard/summary", h.Summary)
	}
	if h := cfg.Settings; h != nil {
		r.Get("/settings", h.Get)
		r.With(can(rbac.SettingsManage)).Put("/settings", h.Put)
	}
	if h := cfg.Audit; h != nil {
		r.With(can(rbac.AuditRead)).Get("/audit-events", h.List)
	}
}
