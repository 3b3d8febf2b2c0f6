package invoices

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/events"
)

var (
	ErrNotFound         = apperr.NotFound("invoice not found")
	ErrNotDraft         = apperr.Conflict("only draft invoices can be changed")
	ErrExceedsBalance   = apperr.Invalid("payment exceeds the outstanding balance")
	ErrNotPayable       = apperr.Conflict("payments can only be recorded on issued or partially paid invoices")
	defaultPaymentTerms = 30 * 24 * time.Hour
)

const invoiceFrom = `
	FROM invoices i
	JOIN patients p ON p.id = i.patient_id`

const invoiceSelect = `
	SELECT i.id, i.org_id, i.number, i.patient_id, i.visit_id, i.status, i.currency, i.issue_date, i.due_date,
		i.subtotal_cents, i.discount_cents, i.tax_rate_bps, i.tax_cents, i.total_cents, i.paid_cents,
		i.notes, i.issued_at, i.voided_at, i.created_at, i.updated_at,
		p.first_name || ' ' || p.last_name` + invoiceFrom

var sortColumns = map[string]string{
	"number":      "i.number",
	"created_at":  "i.created_at",
	"issue_date":  "i.issue_date",
	"due_date":    "i.due_date",
	"total_cents": "i.total_cents",
	"status":      "i.status",
}

// Numbering carries the organization settings applied to new invoices.
type Numbering struct {
	Prefix   string
	Currency string
}

// Repository stores invoices, their items and payments in Postgres.
type Repository struct {
	pool database.Pool
	now  func() time.Time
}

func NewRepository(pool database.Pool) *Repository {
	if pool == nil {
		panic("invoices: database required")
	}
	return &Repository{pool: pool, now: time.Now}
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Number, &inv.PatientID, &inv.VisitID, &inv.Status, &inv.Currency, &inv.IssueDate, &inv.DueDate,
		&inv.SubtotalCents, &inv.DiscountCents, &inv.TaxRateBps, &inv.TaxCents, &inv.TotalCents, &inv.PaidCents,
		&inv.Notes, &inv.IssuedAt, &inv.VoidedAt, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.PatientName)
	if err != nil {
		return nil, err
	}
	inv.BalanceCents = inv.TotalCents - inv.PaidCents
	if inv.Status == StatusVoid {
		inv.BalanceCents = 0
	}
	inv.Items = []Item{}
	return &inv, nil
}

func loadItems(ctx context.Context, q database.Querier, inv *Invoice) error {
	rows, err := q.Query(ctx, `
		SELECT id, description, quantity, unit_price_cents, amount_cents
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return fmt.Errorf("invoices: items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPriceCents, &it.AmountCents); err != nil {
			return fmt.Errorf("invoices: scan item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	return rows.Err()
}

func get(ctx context.Context, q database.Querier, orgID, id string) (*Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, invoiceSelect+` WHERE i.id = $1 AND i.org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("invoices: select: %w", err)
	}
	if err := loadItems(ctx, q, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*Invoice, error) {
	return get(ctx, r.pool, orgID, id)
}

// nextNumber allocates the next per-organization invoice number.
func nextNumber(ctx context.Context, tx pgx.Tx, orgID, prefix string) (string, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO invoice_counters (org_id, next_value) VALUES ($1, 2)
		ON CONFLICT (org_id) DO UPDATE SET next_value = invoice_counters.next_value + 1
		RETURNING next_value - 1`, orgID).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("invoices: allocate number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func replaceItems(ctx context.Context, tx pgx.Tx, invoiceID string, items []ItemRequest) error {
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("invoices: clear items: %w", err)
	}
	rows := make([][]any, 0, len(items))
	for i, it := range items {
		amount, ok := lineAmount(it)
		if !ok {
			return apperr.Invalidf("items[%d] amount is too large", i)
		}
		rows = append(rows, []any{uuid.NewString(), invoiceID, i, it.Description, it.Quantity, it.UnitPriceCents, amount})
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"invoice_items"},
		[]string{"id", "invoice_id", "position", "description", "quantity", "unit_price_cents", "amount_cents"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("invoices: insert items: %w", err)
	}
	return nil
}

// Create stores a draft invoice with its items.
func (r *Repository) Create(ctx context.Context, orgID string, req *CreateRequest, numbering Numbering) (*Invoice, error) {
	totals, err := ComputeTotals(req.Items, req.DiscountCents, req.TaxRateBps)
	if err != nil {
		return nil, err
	}
	var out *Invoice
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextNumber(ctx, tx, orgID, numbering.Prefix)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO invoices (id, org_id, number, patient_id, visit_id, status, currency, due_date,
				subtotal_cents, discount_cents, tax_rate_bps, tax_cents, total_cents, paid_cents, notes)
			VALUES ($1, $2, $3, $4, $5, 'draft', $6, $7, $8, $9, $10, $11, $12, 0, $13)`,
			id, orgID, number, req.PatientID, req.VisitID, numbering.Currency, req.due,
			totals.Subtotal, totals.Discount, req.TaxRateBps, totals.Tax, totals.Total, req.Notes)
		if err != nil {
			return fmt.Errorf("invoices: insert: %w", database.Classify(err))
		}
		if err := replaceItems(ctx, tx, id, req.Items); err != nil {
			return err
		}
		out, err = get(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Invoice, int64, error) {
	where := database.NewWhere("i.org_id", orgID)
	if filter.Status != "" {
		where.Add("i.status = ?", filter.Status)
	}
	if filter.PatientID != "" {
		where.Add("i.patient_id = ?", filter.PatientID)
	}
	if filter.From != nil {
		where.Add("i.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.Add("i.created_at < ?", *filter.To)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "i.number", "p.first_name", "p.last_name")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+invoiceFrom+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoices: count: %w", err)
	}
	query := invoiceSelect + where.SQL() +
		` ORDER BY ` + params.OrderBy(sortColumns, "i.created_at DESC") + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.pool.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	// List responses omit items; Get returns them.
	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("invoices: scan: %w", err)
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

type lockedInvoice struct {
	status   string
	total    int64
	paid     int64
	discount int64
	taxBps   int
}

func lock(ctx context.Context, tx pgx.Tx, orgID, id string) (lockedInvoice, error) {
	var l lockedInvoice
	err := tx.QueryRow(ctx, `
		SELECT status, total_cents, paid_cents, discount_cents, tax_rate_bps
		FROM invoices WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).
		Scan(&l.status, &l.total, &l.paid, &l.discount, &l.taxBps)
	if err != nil {
		if database.IsNoRows(err) {
			return l, ErrNotFound
		}
		return l, fmt.Errorf("invoices: lock: %w", err)
	}
	return l, nil
}

func currentItems(ctx context.Context, tx pgx.Tx, id string) ([]ItemRequest, error) {
	rows, err := tx.Query(ctx, `SELECT description, quantity, unit_price_cents FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("invoices: items: %w", err)
	}
	defer rows.Close()
	var items []ItemRequest
	for rows.Next() {
		var it ItemRequest
		if err := rows.Scan(&it.Description, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("invoices: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update edits a draft invoice and recomputes its totals.
func (r *Repository) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Invoice, error) {
	var out *Invoice
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cur.status != StatusDraft {
			return ErrNotDraft
		}
		items := req.Items
		if items == nil {
			if items, err = currentItems(ctx, tx, id); err != nil {
				return err
			}
		} else if err := replaceItems(ctx, tx, id, items); err != nil {
			return err
		}
		discount, taxBps := cur.discount, cur.taxBps
		if req.DiscountCents != nil {
			discount = *req.DiscountCents
		}
		if req.TaxRateBps != nil {
			taxBps = *req.TaxRateBps
		}
		totals, err := ComputeTotals(items, discount, taxBps)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE invoices SET
				visit_id = COALESCE($3, visit_id),
				due_date = COALESCE($4, due_date),
				notes = COALESCE($5, notes),
				subtotal_cents = $6,
				discount_cents = $7,
				tax_rate_bps = $8,
				tax_cents = $9,
				total_cents = $10,
				updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status = 'draft'`,
			id, orgID, req.VisitID, req.due, req.Notes, totals.Subtotal, totals.Discount, taxBps, totals.Tax, totals.Total)
		if err != nil {
			return fmt.Errorf("invoices: update: %w", database.Classify(err))
		}
		out, err = get(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a draft invoice.
func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cur.status != StatusDraft {
			return ErrNotDraft
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND org_id = $2 AND status = 'draft'`, id, orgID); err != nil {
			return fmt.Errorf("invoices: delete: %w", database.ClassifyDelete(err))
		}
		return nil
	})
}

func appendEvent(ctx context.Context, tx pgx.Tx, inv *Invoice, eventType string, payment int64) error {
	_, err := events.Append(ctx, tx, inv.OrgID, events.Aggregate("invoice", inv.ID), events.InvoiceChangedV1{
		Type:         eventType,
		InvoiceID:    inv.ID,
		PatientID:    inv.PatientID,
		Number:       inv.Number,
		Status:       inv.Status,
		TotalCents:   inv.TotalCents,
		PaidCents:    inv.PaidCents,
		PaymentCents: payment,
		OccurredAt:   inv.UpdatedAt,
	})
	return err
}

// Issue moves a draft to issued, stamping the issue date and defaulting the
// due date to 30 days later. A zero-total draft goes straight to paid.
func (r *Repository) Issue(ctx context.Context, orgID, id string) (*Invoice, error) {
	var out *Invoice
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cur.status != StatusDraft {
			return apperr.Conflictf("cannot issue an invoice that is %s", strings.ReplaceAll(cur.status, "_", " "))
		}
		// Nothing is owed on a zero total, so it settles on issue.
		next := StatusIssued
		if cur.total == 0 {
			next = StatusPaid
		}
		today := r.now().UTC().Truncate(24 * time.Hour)
		tag, err := tx.Exec(ctx, `
			UPDATE invoices SET status = $5, issue_date = $3, due_date = COALESCE(due_date, $4::date),
				issued_at = now(), updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status = 'draft'`,
			id, orgID, today, today.Add(defaultPaymentTerms), next)
		if err != nil {
			return fmt.Errorf("invoices: issue: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotDraft
		}
		if out, err = get(ctx, tx, orgID, id); err != nil {
			return err
		}
		return appendEvent(ctx, tx, out, events.InvoiceIssued, 0)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var voidable = []string{StatusDraft, StatusIssued, StatusPartiallyPaid}

// Void cancels any invoice that is not fully paid.
func (r *Repository) Void(ctx context.Context, orgID, id string) (*Invoice, error) {
	var out *Invoice
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if !slices.Contains(voidable, cur.status) {
			return apperr.Conflictf("cannot void an invoice that is %s", strings.ReplaceAll(cur.status, "_", " "))
		}
		_, err = tx.Exec(ctx, `
			UPDATE invoices SET status = 'void', voided_at = now(), updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status = ANY($3)`, id, orgID, voidable)
		if err != nil {
			return fmt.Errorf("invoices: void: %w", err)
		}
		if out, err = get(ctx, tx, orgID, id); err != nil {
			return err
		}
		return appendEvent(ctx, tx, out, events.InvoiceVoided, 0)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordPayment adds a payment and recomputes the invoice status.
func (r *Repository) RecordPayment(ctx context.Context, orgID, id string, req *PaymentRequest) (*Payment, *Invoice, error) {
	var payment Payment
	var out *Invoice
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cur.status != StatusIssued && cur.status != StatusPartiallyPaid {
			return ErrNotPayable
		}
		if req.AmountCents > cur.total-cur.paid {
			return ErrExceedsBalance
		}
		paidAt := r.now().UTC()
		if req.paidAt != nil {
			paidAt = *req.paidAt
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO payments (id, org_id, invoice_id, amount_cents, method, reference, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, invoice_id, amount_cents, method, reference, paid_at, created_at`,
			uuid.NewString(), orgID, id, req.AmountCents, req.Method, req.Reference, paidAt).
			Scan(&payment.ID, &payment.InvoiceID, &payment.AmountCents, &payment.Method, &payment.Reference, &payment.PaidAt, &payment.CreatedAt)
		if err != nil {
			return fmt.Errorf("invoices: insert payment: %w", database.Classify(err))
		}
		paid := cur.paid + req.AmountCents
		status := StatusPartiallyPaid
		if paid >= cur.total {
			status = StatusPaid
		}
		if _, err := tx.Exec(ctx, `UPDATE invoices SET paid_cents = $3, status = $4, updated_at = now() WHERE id = $1 AND org_id = $2`,
			id, orgID, paid, status); err != nil {
			return fmt.Errorf("invoices: apply payment: %w", err)
		}
		if out, err = get(ctx, tx, orgID, id); err != nil {
			return err
		}
		return appendEvent(ctx, tx, out, events.InvoicePaymentRecorded, req.AmountCents)
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, out, nil
}

func (r *Repository) ListPayments(ctx context.Context, orgID, id string) ([]*Payment, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND org_id = $2)`, id, orgID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("invoices: check: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, amount_cents, method, reference, paid_at, created_at
		FROM payments WHERE invoice_id = $1 AND org_id = $2 ORDER BY paid_at`, id, orgID)
	if err != nil {
		return nil, fmt.Errorf("invoices: payments: %w", err)
	}
	defer rows.Close()

	out := []*Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.AmountCents, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("invoices: scan payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
