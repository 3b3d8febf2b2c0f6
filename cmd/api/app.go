package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicdesk/internal/api/router"
	"github.com/wolfman30/clinicdesk/internal/app/bootstrap"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/auth"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/dashboard"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/employees"
	"github.com/wolfman30/clinicdesk/internal/events"
	"github.com/wolfman30/clinicdesk/internal/files"
	httpmiddleware "github.com/wolfman30/clinicdesk/internal/http/middleware"
	"github.com/wolfman30/clinicdesk/internal/invoices"
	"github.com/wolfman30/clinicdesk/internal/masterdata"
	"github.com/wolfman30/clinicdesk/internal/notify"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/rbac"
	"github.com/wolfman30/clinicdesk/internal/search"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/internal/visits"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type appDeps struct {
	cfg            *appconfig.Config
	pool           database.Pool
	sqlDB          *sql.DB
	redis          *redis.Client
	awsCfg         *aws.Config
	httpMetrics    *metrics.HTTPMetrics
	domainMetrics  *metrics.DomainMetrics
	metricsHandler http.Handler
	health         map[string]router.Pinger
	logger         *logging.Logger
}

type app struct {
	router    *router.Config
	deliverer *events.Deliverer
	close     func() error
}

// buildApp wires repositories, services and handlers on top of the shared
// connections.
func buildApp(d appDeps) (*app, error) {
	if d.cfg == nil || d.pool == nil {
		return nil, fmt.Errorf("api: config and database are required")
	}
	cfg, pool, logger := d.cfg, d.pool, d.logger
	if logger == nil {
		logger = logging.Default()
	}

	var trail *audit.Trail
	var recorder audit.Recorder
	if d.sqlDB != nil {
		trail = audit.NewTrail(d.sqlDB)
		recorder = trail
	}
	settingsStore := bootstrap.BuildSettingsStore(d.redis, logger)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	rbacRepo := rbac.NewRepository(pool)
	authSvc := auth.NewService(auth.NewUserRepository(pool), rbacRepo, tokens, logger)

	patientRepo := patients.NewRepository(pool)
	appointmentSvc := appointments.NewService(appointments.NewRepository(pool), settingsStore, d.domainMetrics, logger)
	invoiceSvc := invoices.NewService(invoices.NewRepository(pool), settingsStore, d.domainMetrics, logger)
	seeder := masterdata.NewSeeder(pool, d.domainMetrics, logger)
	objects := bootstrap.BuildObjectStore(cfg, d.awsCfg, logger)
	searchSvc := search.NewService(search.NewRepository(pool), d.domainMetrics, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		HTTPMetrics:        d.httpMetrics,
		MetricsHandler:     d.metricsHandler,
		Health:             router.NewHealthHandler(d.health, logger),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Tokens:             tokens,
		LoginLimiter:       httpmiddleware.NewRateLimiter(cfg.LoginRatePerSec, cfg.LoginRateBurst),

		Auth:         auth.NewHandler(authSvc, logger),
		Patients:     patients.NewHandler(patientRepo, recorder, logger),
		Employees:    employees.NewHandler(employees.NewRepository(pool), recorder, logger),
		Leaves:       employees.NewLeaveHandler(employees.NewLeaveRepository(pool), recorder, logger),
		Appointments: appointments.NewHandler(appointmentSvc, recorder, logger),
		Visits:       visits.NewHandler(visits.NewRepository(pool, logger), recorder, d.domainMetrics, logger),
		Invoices:     invoices.NewHandler(invoiceSvc, recorder, logger),
		MasterData:   masterdata.NewHandler(masterdata.NewRepository(pool), seeder, rbacRepo, recorder, logger),
		RBAC:         rbac.NewHandler(rbacRepo, logger),
		Files:        files.NewHandler(files.NewService(files.NewRepository(pool), objects, logger), recorder, cfg.FilesMaxUploadMB, logger),
		Search:       search.NewHandler(searchSvc, cfg.SearchDefaultLimit, logger),
		Dashboard:    dashboard.NewHandler(dashboard.NewRepository(pool), settingsStore, logger),
		Settings:     settings.NewHandler(settingsStore, recorder, logger),
	}
	if trail != nil {
		routerCfg.Audit = audit.NewHandler(trail, logger)
	}

	email, err := bootstrap.BuildEmailSender(cfg, d.awsCfg, logger)
	if err != nil {
		return nil, err
	}
	publisher, closePublisher, err := bootstrap.BuildEventPublisher(cfg, d.awsCfg, logger)
	if err != nil {
		return nil, err
	}
	notifier := notify.NewAppointmentNotifier(email, patientRepo, settingsStore, events.NewProcessedStore(pool), logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), bootstrap.ComposeDeliveryHandler(publisher, notifier), logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithMetrics(d.domainMetrics)

	return &app{router: routerCfg, deliverer: deliverer, close: closePublisher}, nil
}

// redisPinger keeps a typed nil client out of the health checks.
func redisPinger(client *redis.Client) router.Pinger {
	if client == nil {
		return nil
	}
	return router.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
