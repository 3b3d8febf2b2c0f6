package patients

import (
	"net/mail"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	genders  = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}
	statuses = map[string]bool{StatusActive: true, StatusInactive: true}
)

// Patient is a person receiving care at the clinic.
type Patient struct {
	ID                    string     `json:"id"`
	OrgID                 string     `json:"org_id"`
	PatientNumber         string     `json:"patient_number"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Gender                string     `json:"gender"`
	Phone                 *string    `json:"phone,omitempty"`
	Email                 *string    `json:"email,omitempty"`
	Address               *string    `json:"address,omitempty"`
	BloodGroup            *string    `json:"blood_group,omitempty"`
	Allergies             *string    `json:"allergies,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
	Status                string     `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreateRequest is the body of POST /patients.
type CreateRequest struct {
	PatientNumber         string  `json:"patient_number"`
	FirstName             string  `json:"first_name"`
	LastName              string  `json:"last_name"`
	DateOfBirth           string  `json:"date_of_birth"`
	Gender                string  `json:"gender"`
	Phone                 *string `json:"phone"`
	Email                 *string `json:"email"`
	Address               *string `json:"address"`
	BloodGroup            *string `json:"blood_group"`
	Allergies             *string `json:"allergies"`
	EmergencyContactName  *string `json:"emergency_contact_name"`
	EmergencyContactPhone *string `json:"emergency_contact_phone"`
	Notes                 *string `json:"notes"`

	dob *time.Time
}

// Validate normalizes the request and checks required fields.
func (r *CreateRequest) Validate(now time.Time) error {
	r.PatientNumber = strings.ToUpper(strings.TrimSpace(r.PatientNumber))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.FirstName == "" || r.LastName == "" {
		return apperr.Invalid("first_name and last_name are required")
	}
	r.Gender = strings.ToLower(strings.TrimSpace(r.Gender))
	if r.Gender == "" {
		r.Gender = "unknown"
	}
	if !genders[r.Gender] {
		return apperr.Invalid("gender must be one of male, female, other, unknown")
	}
	dob, err := parseBirthDate(r.DateOfBirth, now)
	if err != nil {
		return err
	}
	r.dob = dob
	r.Email = normalizeEmail(r.Email)
	if err := checkEmail(r.Email); err != nil {
		return err
	}
	r.Phone = trimOptional(r.Phone)
	r.Address = trimOptional(r.Address)
	r.BloodGroup = trimOptional(r.BloodGroup)
	r.Allergies = trimOptional(r.Allergies)
	r.EmergencyContactName = trimOptional(r.EmergencyContactName)
	r.EmergencyContactPhone = trimOptional(r.EmergencyContactPhone)
	r.Notes = trimOptional(r.Notes)
	return nil
}

// UpdateRequest is the body of PATCH /patients/{id}. Nil fields are left unchanged.
type UpdateRequest struct {
	FirstName             *string `json:"first_name"`
	LastName              *string `json:"last_name"`
	DateOfBirth           *string `json:"date_of_birth"`
	Gender                *string `json:"gender"`
	Phone                 *string `json:"phone"`
	Email                 *string `json:"email"`
	Address               *string `json:"address"`
	BloodGroup            *string `json:"blood_group"`
	Allergies             *string `json:"allergies"`
	EmergencyContactName  *string `json:"emergency_contact_name"`
	EmergencyContactPhone *string `json:"emergency_contact_phone"`
	Notes                 *string `json:"notes"`
	Status                *string `json:"status"`

	dob *time.Time
}

func (r *UpdateRequest) Validate(now time.Time) error {
	for _, name := range []*string{r.FirstName, r.LastName} {
		if name != nil && strings.TrimSpace(*name) == "" {
			return apperr.Invalid("first_name and last_name cannot be blank")
		}
	}
	r.FirstName = trimOptional(r.FirstName)
	r.LastName = trimOptional(r.LastName)
	if r.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*r.Gender))
		if !genders[g] {
			return apperr.Invalid("gender must be one of male, female, other, unknown")
		}
		r.Gender = &g
	}
	if r.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*r.Status))
		if !statuses[s] {
			return apperr.Invalid("status must be active or inactive")
		}
		r.Status = &s
	}
	if r.DateOfBirth != nil {
		dob, err := parseBirthDate(*r.DateOfBirth, now)
		if err != nil {
			return err
		}
		r.dob = dob
	}
	r.Email = normalizeEmail(r.Email)
	return checkEmail(r.Email)
}

// Filter narrows list results.
type Filter struct {
	Status string
	Gender string
}

func parseBirthDate(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	dob, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Invalid("date_of_birth must be YYYY-MM-DD")
	}
	if dob.After(now) {
		return nil, apperr.Invalid("date_of_birth cannot be in the future")
	}
	return &dob, nil
}

func normalizeEmail(email *string) *string {
	email = trimOptional(email)
	if email != nil {
		lower := strings.ToLower(*email)
		email = &lower
	}
	return email
}

func checkEmail(email *string) error {
	if email == nil {
		return nil
	}
	if _, err := mail.ParseAddress(*email); err != nil {
		return apperr.Invalid("email is not a valid address")
	}
	return nil
}

// trimOptional trims s and maps blank strings to nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
