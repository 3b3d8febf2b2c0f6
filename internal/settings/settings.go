// Package settings stores per-organization clinic preferences in Redis.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinicdesk/internal/apperr"
)

// DayHours is an opening window in clinic-local "15:04" time.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WorkingHours holds opening windows per weekday; nil means closed.
type WorkingHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// Settings holds clinic-wide preferences.
type Settings struct {
	OrgID                  string       `json:"org_id"`
	ClinicName             string       `json:"clinic_name"`
	Email                  string       `json:"email,omitempty"`
	Phone                  string       `json:"phone,omitempty"`
	Address                string       `json:"address,omitempty"`
	Timezone               string       `json:"timezone"`
	Currency               string       `json:"currency"`
	InvoicePrefix          string       `json:"invoice_prefix"`
	AppointmentSlotMinutes int          `json:"appointment_slot_minutes"`
	EnforceWorkingHours    bool         `json:"enforce_working_hours"`
	NotifyPatients         bool         `json:"notify_patients"`
	WorkingHours           WorkingHours `json:"working_hours"`
	UpdatedAt              *time.Time   `json:"updated_at,omitempty"`
}

// Default returns the settings used until an organization saves its own.
func Default(orgID string) *Settings {
	weekday := &DayHours{Open: "08:00", Close: "17:00"}
	return &Settings{
		OrgID:                  orgID,
		ClinicName:             "Clinic",
		Timezone:               "UTC",
		Currency:               "USD",
		InvoicePrefix:          "INV",
		AppointmentSlotMinutes: 15,
		NotifyPatients:         true,
		WorkingHours: WorkingHours{
			Monday:    weekday,
			Tuesday:   weekday,
			Wednesday: weekday,
			Thursday:  weekday,
			Friday:    weekday,
		},
	}
}

// Validate normalizes s in place.
func (s *Settings) Validate() error {
	s.ClinicName = strings.TrimSpace(s.ClinicName)
	if s.ClinicName == "" {
		return apperr.Invalid("clinic_name is required")
	}
	s.Timezone = strings.TrimSpace(s.Timezone)
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return apperr.Invalidf("unknown timezone %q", s.Timezone)
	}
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if len(s.Currency) != 3 {
		return apperr.Invalid("currency must be a 3 letter ISO code")
	}
	s.InvoicePrefix = strings.ToUpper(strings.TrimSpace(s.InvoicePrefix))
	if s.InvoicePrefix == "" || len(s.InvoicePrefix) > 10 {
		return apperr.Invalid("invoice_prefix must be 1-10 characters")
	}
	if s.AppointmentSlotMinutes < 5 || s.AppointmentSlotMinutes > 240 {
		return apperr.Invalid("appointment_slot_minutes must be between 5 and 240")
	}
	for _, day := range s.WorkingHours.days() {
		if day == nil {
			continue
		}
		open, err1 := time.Parse("15:04", day.Open)
		closeAt, err2 := time.Parse("15:04", day.Close)
		if err1 != nil || err2 != nil {
			return apperr.Invalid("working hours must use HH:MM")
		}
		if !open.Before(closeAt) {
			return apperr.Invalid("working hours must open before they close")
		}
	}
	return nil
}

// Location returns the clinic time zone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HoursFor returns the opening window for weekday, nil when closed.
func (w WorkingHours) HoursFor(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return nil
	}
}

func (w WorkingHours) days() []*DayHours {
	return []*DayHours{w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday, w.Sunday}
}

// SlotLength is the booking grid step.
func (s *Settings) SlotLength() time.Duration {
	if s.AppointmentSlotMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.AppointmentSlotMinutes) * time.Minute
}

// OnSlot reports whether t starts a slot on the clinic's local booking grid.
func (s *Settings) OnSlot(t time.Time) bool {
	local := t.In(s.Location())
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return false
	}
	slot := int(s.SlotLength() / time.Minute)
	return (local.Hour()*60+local.Minute())%slot == 0
}

// Within reports whether [start, end) falls inside one day's working hours.
func (s *Settings) Within(start, end time.Time) bool {
	loc := s.Location()
	localStart, localEnd := start.In(loc), end.In(loc)
	if localStart.YearDay() != localEnd.YearDay() || localStart.Year() != localEnd.Year() {
		return false
	}
	hours := s.WorkingHours.HoursFor(localStart.Weekday())
	if hours == nil {
		return false
	}
	open, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return false
	}
	closeAt, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return false
	}
	startMin := localStart.Hour()*60 + localStart.Minute()
	endMin := localEnd.Hour()*60 + localEnd.Minute()
	return startMin >= open.Hour()*60+open.Minute() && endMin <= closeAt.Hour()*60+closeAt.Minute()
}

// ErrStoreDisabled is returned by Set when no Redis client is configured.
var ErrStoreDisabled = apperr.Conflict("settings storage is not configured")

// Store persists settings as JSON under one key per organization.
type Store struct {
	redis *redis.Client
	now   func() time.Time
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, now: time.Now}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("clinicdesk:settings:%s", orgID)
}

// Get returns the stored settings or the defaults when none are saved.
func (s *Store) Get(ctx context.Context, orgID string) (*Settings, error) {
	if s == nil || s.redis == nil {
		return Default(orgID), nil
	}
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return Default(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("settings: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Set stores cfg, stamping UpdatedAt.
func (s *Store) Set(ctx context.Context, cfg *Settings) error {
	if s == nil || s.redis == nil {
		return ErrStoreDisabled
	}
	now := s.now().UTC()
	cfg.UpdatedAt = &now
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}
