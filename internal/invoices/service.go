package invoices

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("clinicdesk.internal.invoices")

// Service applies organization settings and records workflow metrics on top
// of Repository.
type Service struct {
	repo     *Repository
	settings settings.Reader
	metrics  *metrics.DomainMetrics
	logger   *logging.Logger
}

func NewService(repo *Repository, cfg settings.Reader, m *metrics.DomainMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("invoices: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, settings: cfg, metrics: m, logger: logger}
}

func (s *Service) numbering(ctx context.Context, orgID string) (Numbering, error) {
	cfg := settings.Default(orgID)
	if s.settings != nil {
		loaded, err := s.settings.Get(ctx, orgID)
		if err != nil {
			return Numbering{}, fmt.Errorf("invoices: load settings: %w", err)
		}
		cfg = loaded
	}
	return Numbering{Prefix: cfg.InvoicePrefix, Currency: cfg.Currency}, nil
}

func (s *Service) Create(ctx context.Context, orgID string, req *CreateRequest) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "invoices.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinicdesk.org_id", orgID))

	numbering, err := s.numbering(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	inv, err := s.repo.Create(ctx, orgID, req, numbering)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("clinicdesk.invoice_number", inv.Number))
	return inv, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*Invoice, error) {
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Invoice, int64, error) {
	return s.repo.List(ctx, orgID, filter, params)
}

func (s *Service) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Invoice, error) {
	return s.repo.Update(ctx, orgID, id, req)
}

func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.Delete(ctx, orgID, id)
}

func (s *Service) Issue(ctx context.Context, orgID, id string) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "invoices.issue")
	defer span.End()
	inv, err := s.repo.Issue(ctx, orgID, id)
	s.observe(StatusIssued, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("invoice issued", "org_id", orgID, "invoice_id", id, "number", inv.Number, "total_cents", inv.TotalCents)
	return inv, nil
}

func (s *Service) Void(ctx context.Context, orgID, id string) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "invoices.void")
	defer span.End()
	inv, err := s.repo.Void(ctx, orgID, id)
	s.observe(StatusVoid, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("invoice voided", "org_id", orgID, "invoice_id", id, "number", inv.Number)
	return inv, nil
}

func (s *Service) RecordPayment(ctx context.Context, orgID, id string, req *PaymentRequest) (*Payment, *Invoice, error) {
	ctx, span := tracer.Start(ctx, "invoices.record_payment")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinicdesk.amount_cents", req.AmountCents))

	payment, inv, err := s.repo.RecordPayment(ctx, orgID, id, req)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.ObserveTransition("invoice", StatusPaid, false)
		}
		span.RecordError(err)
		return nil, nil, err
	}
	s.metrics.ObserveTransition("invoice", inv.Status, true)
	return payment, inv, nil
}

func (s *Service) ListPayments(ctx context.Context, orgID, id string) ([]*Payment, error) {
	return s.repo.ListPayments(ctx, orgID, id)
}

func (s *Service) observe(to string, err error) {
	if err == nil {
		s.metrics.ObserveTransition("invoice", to, true)
	} else if apperr.Is(err, apperr.KindConflict) {
		s.metrics.ObserveTransition("invoice", to, false)
	}
}
