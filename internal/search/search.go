// Package search answers the global search box: patients and employees
// matching a free-text term, looked up concurrently.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/pkg/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 50
)

type PatientHit struct {
	ID            string     `json:"id"`
	PatientNumber string     `json:"patient_number"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Email         *string    `json:"email,omitempty"`
}

type EmployeeHit struct {
	ID             string  `json:"id"`
	EmployeeNumber string  `json:"employee_number"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Department     *string `json:"department,omitempty"`
	Position       *string `json:"position,omitempty"`
}

// Result holds one list per category. Lists are never nil.
type Result struct {
	Patients  []PatientHit  `json:"patients"`
	Employees []EmployeeHit `json:"employees"`
}

func emptyResult() *Result {
	return &Result{Patients: []PatientHit{}, Employees: []EmployeeHit{}}
}

// Source runs the per-category lookups.
type Source interface {
	Patients(ctx context.Context, orgID, pattern string, limit int) ([]PatientHit, error)
	Employees(ctx context.Context, orgID, pattern string, limit int) ([]EmployeeHit, error)
}

// ClampLimit bounds limit to [MinLimit, MaxLimit].
func ClampLimit(limit int) int {
	return min(max(limit, MinLimit), MaxLimit)
}

type Service struct {
	source  Source
	metrics *metrics.DomainMetrics
	logger  *logging.Logger
}

func NewService(source Source, m *metrics.DomainMetrics, logger *logging.Logger) *Service {
	if source == nil {
		panic("search: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{source: source, metrics: m, logger: logger}
}

// Search trims term and, when anything is left, queries both categories in
// parallel. The first failure cancels the other query and fails the search.
func (s *Service) Search(ctx context.Context, orgID, term string, limit int) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return emptyResult(), nil
	}
	limit = ClampLimit(limit)
	pattern := database.ContainsPattern(term)

	out := emptyResult()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		hits, err := s.source.Patients(gctx, orgID, pattern, limit)
		s.metrics.ObserveSearch("patients", time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("search: patients: %w", err)
		}
		if hits != nil {
			out.Patients = hits
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		hits, err := s.source.Employees(gctx, orgID, pattern, limit)
		s.metrics.ObserveSearch("employees", time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("search: employees: %w", err)
		}
		if hits != nil {
			out.Employees = hits
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug("global search", "org_id", orgID, "patients", len(out.Patients), "employees", len(out.Employees))
	return out, nil
}
