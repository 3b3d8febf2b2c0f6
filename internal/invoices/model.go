// Package invoices bills patients and tracks payments against invoices.
package invoices

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	StatusDraft         = "draft"
	StatusIssued        = "issued"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
	StatusVoid          = "void"
)

var paymentMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"insurance":     true,
	"bank_transfer": true,
	"other":         true,
}

const (
	maxItems          = 100
	maxQuantity       = 100000
	maxUnitPriceCents = 10_000_000_000
)

type Item struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

type Invoice struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"org_id"`
	Number        string     `json:"number"`
	PatientID     string     `json:"patient_id"`
	VisitID       *string    `json:"visit_id,omitempty"`
	Status        string     `json:"status"`
	Currency      string     `json:"currency"`
	IssueDate     *time.Time `json:"issue_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TaxRateBps    int        `json:"tax_rate_bps"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaidCents     int64      `json:"paid_cents"`
	BalanceCents  int64      `json:"balance_cents"`
	Notes         *string    `json:"notes,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PatientName   string     `json:"patient_name"`
	Items         []Item     `json:"items"`
}

type Payment struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Reference   *string   `json:"reference,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type ItemRequest struct {
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Totals are the derived amounts of an invoice.
type Totals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Total    int64
}

// ComputeTotals prices items, applies the discount and then tax in basis
// points, rounding tax half away from zero.
func ComputeTotals(items []ItemRequest, discount int64, taxBps int) (Totals, error) {
	var subtotal int64
	for _, it := range items {
		amount, ok := lineAmount(it)
		if !ok || subtotal > math.MaxInt64-amount {
			return Totals{}, apperr.Invalid("invoice total is too large")
		}
		subtotal += amount
	}
	if discount > subtotal {
		return Totals{}, apperr.Invalid("discount_cents cannot exceed the subtotal")
	}
	taxable := subtotal - discount
	tax := int64(math.Round(float64(taxable) * float64(taxBps) / 10000))
	return Totals{Subtotal: subtotal, Discount: discount, Tax: tax, Total: taxable + tax}, nil
}

// lineAmount is quantity times unit price, false when the product does not
// fit in int64.
func lineAmount(it ItemRequest) (int64, bool) {
	if it.Quantity < 0 || it.UnitPriceCents < 0 {
		return 0, false
	}
	q := int64(it.Quantity)
	if q != 0 && it.UnitPriceCents > math.MaxInt64/q {
		return 0, false
	}
	return q * it.UnitPriceCents, true
}

type CreateRequest struct {
	PatientID     string        `json:"patient_id"`
	VisitID       *string       `json:"visit_id"`
	DueDate       *string       `json:"due_date"`
	DiscountCents int64         `json:"discount_cents"`
	TaxRateBps    int           `json:"tax_rate_bps"`
	Notes         *string       `json:"notes"`
	Items         []ItemRequest `json:"items"`

	due *time.Time
}

func (r *CreateRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	if _, err := uuid.Parse(r.PatientID); err != nil {
		return apperr.Invalid("patient_id must be a valid id")
	}
	if r.VisitID = trimOptional(r.VisitID); r.VisitID != nil {
		if _, err := uuid.Parse(*r.VisitID); err != nil {
			return apperr.Invalid("visit_id must be a valid id")
		}
	}
	var err error
	if r.due, err = parseDate(r.DueDate, "due_date"); err != nil {
		return err
	}
	if err := checkAmounts(r.DiscountCents, r.TaxRateBps); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return apperr.Invalid("at least one item is required")
	}
	if err := checkItems(r.Items); err != nil {
		return err
	}
	r.Notes = trimOptional(r.Notes)
	return nil
}

// UpdateRequest edits a draft. Items, when present, replace the existing lines.
type UpdateRequest struct {
	VisitID       *string       `json:"visit_id"`
	DueDate       *string       `json:"due_date"`
	DiscountCents *int64        `json:"discount_cents"`
	TaxRateBps    *int          `json:"tax_rate_bps"`
	Notes         *string       `json:"notes"`
	Items         []ItemRequest `json:"items"`

	due *time.Time
}

func (r *UpdateRequest) Validate() error {
	if r.VisitID = trimOptional(r.VisitID); r.VisitID != nil {
		if _, err := uuid.Parse(*r.VisitID); err != nil {
			return apperr.Invalid("visit_id must be a valid id")
		}
	}
	var err error
	if r.due, err = parseDate(r.DueDate, "due_date"); err != nil {
		return err
	}
	var discount int64
	var tax int
	if r.DiscountCents != nil {
		discount = *r.DiscountCents
	}
	if r.TaxRateBps != nil {
		tax = *r.TaxRateBps
	}
	if err := checkAmounts(discount, tax); err != nil {
		return err
	}
	if r.Items != nil {
		if len(r.Items) == 0 {
			return apperr.Invalid("at least one item is required")
		}
		if err := checkItems(r.Items); err != nil {
			return err
		}
	}
	r.Notes = trimOptional(r.Notes)
	return nil
}

type PaymentRequest struct {
	AmountCents int64   `json:"amount_cents"`
	Method      string  `json:"method"`
	Reference   *string `json:"reference"`
	PaidAt      *string `json:"paid_at"`

	paidAt *time.Time
}

func (r *PaymentRequest) Validate() error {
	if r.AmountCents <= 0 {
		return apperr.Invalid("amount_cents must be greater than zero")
	}
	r.Method = strings.ToLower(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = "cash"
	}
	if !paymentMethods[r.Method] {
		return apperr.Invalid("method must be one of cash, card, insurance, bank_transfer, other")
	}
	r.Reference = trimOptional(r.Reference)
	if r.PaidAt = trimOptional(r.PaidAt); r.PaidAt != nil {
		t, err := time.Parse(time.RFC3339, *r.PaidAt)
		if err != nil {
			return apperr.Invalid("paid_at must be an RFC3339 timestamp")
		}
		r.paidAt = &t
	}
	return nil
}

type Filter struct {
	Status    string
	PatientID string
	From      *time.Time
	To        *time.Time
}

func validStatus(s string) bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPartiallyPaid, StatusPaid, StatusVoid:
		return true
	}
	return false
}

func checkAmounts(discount int64, taxBps int) error {
	if discount < 0 {
		return apperr.Invalid("discount_cents cannot be negative")
	}
	if taxBps < 0 || taxBps > 10000 {
		return apperr.Invalid("tax_rate_bps must be between 0 and 10000")
	}
	return nil
}

func checkItems(items []ItemRequest) error {
	if len(items) > maxItems {
		return apperr.Invalidf("an invoice can have at most %d items", maxItems)
	}
	for i := range items {
		items[i].Description = strings.TrimSpace(items[i].Description)
		if items[i].Description == "" {
			return apperr.Invalidf("items[%d].description is required", i)
		}
		if items[i].Quantity < 1 || items[i].Quantity > maxQuantity {
			return apperr.Invalidf("items[%d].quantity must be between 1 and %d", i, maxQuantity)
		}
		if items[i].UnitPriceCents < 0 || items[i].UnitPriceCents > maxUnitPriceCents {
			return apperr.Invalidf("items[%d].unit_price_cents must be between 0 and %d", i, int64(maxUnitPriceCents))
		}
	}
	return nil
}

func parseDate(raw *string, field string) (*time.Time, error) {
	raw = trimOptional(raw)
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, apperr.Invalidf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

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
