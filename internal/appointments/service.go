package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clinicdesk.internal.appointments")

var errOutsideHours = apperr.Invalid("appointment is outside the clinic's working hours")

// defaultSlot sizes untyped appointments when no settings reader is wired.
const defaultSlot = 15 * time.Minute

// Service applies scheduling rules on top of Repository.
type Service struct {
	repo     *Repository
	settings settings.Reader
	metrics  *metrics.DomainMetrics
	logger   *logging.Logger
}

func NewService(repo *Repository, cfg settings.Reader, m *metrics.DomainMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, settings: cfg, metrics: m, logger: logger}
}

func (s *Service) Create(ctx context.Context, orgID string, req *CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinicdesk.org_id", orgID))

	cfg, err := s.config(ctx, orgID)
	if err != nil {
		return nil, recordSpan(span, err)
	}
	if req.EndsAt == nil {
		d := defaultSlot
		if cfg != nil {
			d = cfg.SlotLength()
		}
		if req.AppointmentTypeID != nil {
			if d, err = s.repo.TypeDuration(ctx, orgID, *req.AppointmentTypeID); err != nil {
				return nil, recordSpan(span, err)
			}
		}
		end := req.StartsAt.Add(d)
		req.EndsAt = &end
	}
	if err := checkSchedule(cfg, req.StartsAt, *req.EndsAt, true); err != nil {
		return nil, recordSpan(span, err)
	}
	a, err := s.repo.Create(ctx, orgID, req)
	if err != nil {
		return nil, recordSpan(span, err)
	}
	span.SetAttributes(attribute.String("clinicdesk.appointment_id", a.ID))
	return a, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*Appointment, error) {
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Appointment, int64, error) {
	return s.repo.List(ctx, orgID, filter, params)
}

func (s *Service) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update")
	defer span.End()

	if req.StartsAt != nil || req.EndsAt != nil {
		current, err := s.repo.Get(ctx, orgID, id)
		if err != nil {
			return nil, recordSpan(span, err)
		}
		start, end := current.StartsAt, current.EndsAt
		if req.StartsAt != nil {
			// Moving the start keeps the booked length unless a new end is given.
			start = *req.StartsAt
			end = start.Add(current.EndsAt.Sub(current.StartsAt))
		}
		if req.EndsAt != nil {
			end = *req.EndsAt
		}
		moved := req.StartsAt != nil
		req.StartsAt, req.EndsAt = &start, &end
		cfg, err := s.config(ctx, orgID)
		if err != nil {
			return nil, recordSpan(span, err)
		}
		if err := checkSchedule(cfg, start, end, moved); err != nil {
			return nil, recordSpan(span, err)
		}
	}
	a, err := s.repo.Update(ctx, orgID, id, req)
	if err != nil {
		return nil, recordSpan(span, err)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.Delete(ctx, orgID, id)
}

// Transition applies a workflow action such as confirm or cancel.
func (s *Service) Transition(ctx context.Context, orgID, id, action string, cancel *CancelRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicdesk.org_id", orgID),
		attribute.String("clinicdesk.appointment_id", id),
		attribute.String("clinicdesk.action", action),
	)

	a, err := s.repo.Transition(ctx, orgID, id, action, cancel)
	if t, ok := transitions[action]; ok {
		if err == nil {
			s.metrics.ObserveTransition("appointment", t.to, true)
		} else if apperr.Is(err, apperr.KindConflict) {
			s.metrics.ObserveTransition("appointment", t.to, false)
		}
	}
	if err != nil {
		return nil, recordSpan(span, err)
	}
	s.logger.Info("appointment status changed", "org_id", orgID, "appointment_id", id, "status", a.Status)
	return a, nil
}

// config loads the org's settings; nil when no reader is wired.
func (s *Service) config(ctx context.Context, orgID string) (*settings.Settings, error) {
	if s.settings == nil {
		return nil, nil
	}
	cfg, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("appointments: load settings: %w", err)
	}
	return cfg, nil
}

// checkSchedule applies the clinic's booking grid to a new start and its
// working hours to the whole booking.
func checkSchedule(cfg *settings.Settings, start, end time.Time, newStart bool) error {
	if cfg == nil {
		return nil
	}
	if newStart && !cfg.OnSlot(start) {
		return apperr.Invalidf("starts_at must fall on a %d-minute slot boundary", int(cfg.SlotLength()/time.Minute))
	}
	if cfg.EnforceWorkingHours && !cfg.Within(start, end) {
		return errOutsideHours
	}
	return nil
}

// recordSpan marks span as failed for unexpected errors. Client errors are
// left unmarked.
func recordSpan(span trace.Span, err error) error {
	if kind, _ := apperr.KindOf(err); kind == apperr.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
