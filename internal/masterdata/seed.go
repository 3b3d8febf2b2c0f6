package masterdata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const (
	UnitAppointmentTypes = "appointment_types"
	UnitLeaveTypes       = "leave_types"
	UnitHolidays         = "holidays"
)

type seedAppointmentType struct {
	name     string
	minutes  int
	price    int64
	color    string
	describe string
}

var defaultAppointmentTypes = []seedAppointmentType{
	{"General Consultation", 30, 5000, "#1e88e5", "Routine consultation with a general practitioner"},
	{"Follow-up Visit", 15, 3000, "#43a047", "Review after a previous consultation"},
	{"Annual Physical", 45, 12000, "#8e24aa", "Yearly preventive examination"},
	{"Vaccination", 15, 2500, "#00acc1", "Immunization appointment"},
	{"Lab Test", 20, 4000, "#fdd835", "Sample collection for laboratory analysis"},
	{"Specialist Consultation", 30, 7500, "#fb8c00", "Consultation with a specialist"},
	{"Telehealth", 20, 4000, "#3949ab", "Remote video consultation"},
	{"Emergency Visit", 60, 15000, "#e53935", "Same day urgent care"},
}

var defaultCancelReasons = [][2]string{
	{"Patient request", "Cancelled at the patient's request"},
	{"Patient illness", "Patient is unwell and cannot attend"},
	{"Provider unavailable", "The assigned provider is not available"},
	{"Scheduling conflict", "Conflicts with another commitment"},
	{"Weather", "Severe weather or travel disruption"},
	{"Insurance issue", "Coverage could not be confirmed"},
	{"Duplicate booking", "Appointment was booked twice"},
	{"Other", "Any other reason"},
}

type seedLeaveType struct {
	name string
	days int
	paid bool
}

var defaultLeaveTypes = []seedLeaveType{
	{"Annual Leave", 20, true},
	{"Sick Leave", 10, true},
	{"Maternity Leave", 90, true},
	{"Paternity Leave", 10, true},
	{"Bereavement Leave", 5, true},
	{"Study Leave", 5, true},
	{"Unpaid Leave", 30, false},
}

type seedHoliday struct {
	name  string
	month time.Month
	day   int
}

var defaultHolidays = []seedHoliday{
	{"New Year's Day", time.January, 1},
	{"Labour Day", time.May, 1},
	{"Christmas Day", time.December, 25},
	{"Boxing Day", time.December, 26},
}

// SeedResult reports what one seed unit did for an organization.
type SeedResult struct {
	Unit     string `json:"unit"`
	Inserted int    `json:"inserted"`
	Skipped  bool   `json:"skipped"`
}

type seedUnit struct {
	name  string
	guard string
	run   func(ctx context.Context, tx pgx.Tx, orgID string) (int, error)
}

// Seeder inserts the default reference data for an organization. Every unit
// is skipped when its table already holds rows for the organization, so
// running it repeatedly is a no-op.
type Seeder struct {
	pool    database.Pool
	metrics *metrics.DomainMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewSeeder(pool database.Pool, m *metrics.DomainMetrics, logger *logging.Logger) *Seeder {
	if pool == nil {
		panic("masterdata: database required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Seeder{pool: pool, metrics: m, logger: logger, now: time.Now}
}

func (s *Seeder) units() []seedUnit {
	return []seedUnit{
		{name: UnitAppointmentTypes, guard: "appointment_types", run: seedAppointmentTypes},
		{name: UnitLeaveTypes, guard: "leave_types", run: seedLeaveTypes},
		{name: UnitHolidays, guard: "holidays", run: s.seedHolidays},
	}
}

// Seed runs every unit for orgID. Each unit commits on its own, so a failure
// leaves earlier units in place and a rerun picks up where it stopped.
func (s *Seeder) Seed(ctx context.Context, orgID string) ([]SeedResult, error) {
	results := make([]SeedResult, 0, 3)
	for _, unit := range s.units() {
		res, err := s.runUnit(ctx, orgID, unit)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) runUnit(ctx context.Context, orgID string, unit seedUnit) (SeedResult, error) {
	res := SeedResult{Unit: unit.name}
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Serializes concurrent seeders for the same org and unit.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "seed:"+unit.name+":"+orgID); err != nil {
			return fmt.Errorf("masterdata: lock %s: %w", unit.name, err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+unit.guard+` WHERE org_id = $1)`, orgID).Scan(&exists); err != nil {
			return fmt.Errorf("masterdata: check %s: %w", unit.name, err)
		}
		if exists {
			res.Skipped = true
			return nil
		}
		n, err := unit.run(ctx, tx, orgID)
		if err != nil {
			return fmt.Errorf("masterdata: seed %s: %w", unit.name, err)
		}
		res.Inserted = n
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	if res.Skipped {
		s.logger.Info("seed unit skipped", "org_id", orgID, "unit", unit.name)
	} else {
		s.metrics.AddSeeded(unit.name, res.Inserted)
		s.logger.Info("seed unit applied", "org_id", orgID, "unit", unit.name, "inserted", res.Inserted)
	}
	return res, nil
}

func seedAppointmentTypes(ctx context.Context, tx pgx.Tx, orgID string) (int, error) {
	typeRows := make([][]any, 0, len(defaultAppointmentTypes))
	for _, t := range defaultAppointmentTypes {
		typeRows = append(typeRows, []any{uuid.NewString(), orgID, t.name, t.describe, t.minutes, t.price, t.color, true})
	}
	types, err := tx.CopyFrom(ctx, pgx.Identifier{"appointment_types"},
		[]string{"id", "org_id", "name", "description", "duration_minutes", "price_cents", "color", "active"},
		pgx.CopyFromRows(typeRows))
	if err != nil {
		return 0, err
	}

	reasonRows := make([][]any, 0, len(defaultCancelReasons))
	for _, c := range defaultCancelReasons {
		reasonRows = append(reasonRows, []any{uuid.NewString(), orgID, c[0], c[1], true})
	}
	reasons, err := tx.CopyFrom(ctx, pgx.Identifier{"cancel_reasons"},
		[]string{"id", "org_id", "name", "description", "active"},
		pgx.CopyFromRows(reasonRows))
	if err != nil {
		return 0, err
	}
	return int(types + reasons), nil
}

func seedLeaveTypes(ctx context.Context, tx pgx.Tx, orgID string) (int, error) {
	rows := make([][]any, 0, len(defaultLeaveTypes))
	for _, l := range defaultLeaveTypes {
		rows = append(rows, []any{uuid.NewString(), orgID, l.name, l.days, l.paid, true})
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"leave_types"},
		[]string{"id", "org_id", "name", "days_per_year", "paid", "active"},
		pgx.CopyFromRows(rows))
	return int(n), err
}

func (s *Seeder) seedHolidays(ctx context.Context, tx pgx.Tx, orgID string) (int, error) {
	year := s.now().UTC().Year()
	rows := make([][]any, 0, len(defaultHolidays))
	for _, h := range defaultHolidays {
		rows = append(rows, []any{uuid.NewString(), orgID, h.name, time.Date(year, h.month, h.day, 0, 0, 0, 0, time.UTC), true})
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"holidays"},
		[]string{"id", "org_id", "name", "date", "recurring"},
		pgx.CopyFromRows(rows))
	return int(n), err
}

// Organizations lists every organization id, oldest first.
func (s *Seeder) Organizations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM organizations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list organizations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("masterdata: scan organization: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
