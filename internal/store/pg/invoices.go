package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"quoteguard.org/internal/invoice"
)

// InvoiceStore persists invoices in the invoices and invoice_items tables.
type InvoiceStore struct {
	db *sql.DB
}

var _ invoice.Store = (*InvoiceStore)(nil)

func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

const invoiceColumns = `id, public_id, issuer_id, invoice_number, issuer_name, client_id, client_name,
	issue_date, due_date, currency, subtotal, tax, total_amount, content_fingerprint, status,
	revoked_reason, revoked_at, revoked_by, created_at`

func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if s.db == nil {
		return invoice.Invoice{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return invoice.Invoice{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c := inv.Content
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = tx.QueryRowContext(ctx, `
		insert into invoices (public_id, issuer_id, invoice_number, issuer_name, client_id, client_name,
			issue_date, due_date, currency, subtotal, tax, total_amount, content_fingerprint, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		returning id, created_at
	`, inv.PublicID, inv.IssuerID, c.InvoiceNumber, c.IssuerName, c.ClientID, c.ClientName,
		dateValue(c.IssueDate), dateValue(c.DueDate), c.Currency, c.Subtotal, c.Tax, c.Total,
		inv.Fingerprint, string(inv.Status), createdAt,
	).Scan(&inv.InternalID, &inv.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return invoice.Invoice{}, invoice.ErrDuplicatePublicID
			case pgErrForeignKeyViolation:
				return invoice.Invoice{}, fmt.Errorf("%w: unknown issuer", invoice.ErrInvalidArgument)
			}
		}
		return invoice.Invoice{}, err
	}

	for i, it := range c.Items {
		if _, err := tx.ExecContext(ctx, `
			insert into invoice_items (invoice_id, position, product, quantity, unit_price)
			values ($1, $2, $3, $4, $5)
		`, inv.InternalID, i, it.Product, it.Quantity, it.UnitPrice); err != nil {
			return invoice.Invoice{}, fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return invoice.Invoice{}, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

func (s *InvoiceStore) GetByPublicID(ctx context.Context, publicID string) (invoice.Invoice, error) {
	return s.getOne(ctx, `select `+invoiceColumns+` from invoices where public_id = $1`, publicID)
}

func (s *InvoiceStore) GetByInternalID(ctx context.Context, id int64) (invoice.Invoice, error) {
	return s.getOne(ctx, `select `+invoiceColumns+` from invoices where id = $1`, id)
}

func (s *InvoiceStore) getOne(ctx context.Context, query string, arg any) (invoice.Invoice, error) {
	if s.db == nil {
		return invoice.Invoice{}, errNoDB
	}
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	if err != nil {
		return invoice.Invoice{}, err
	}
	items, err := s.loadItems(ctx, inv.InternalID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv.Content.Items = items
	return inv, nil
}

func (s *InvoiceStore) loadItems(ctx context.Context, invoiceID int64) ([]invoice.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		select product, quantity, unit_price
		from invoice_items
		where invoice_id = $1
		order by position
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []invoice.LineItem
	for rows.Next() {
		var it invoice.LineItem
		if err := rows.Scan(&it.Product, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *InvoiceStore) ListByIssuer(ctx context.Context, issuerID string, limit int, beforeID int64) ([]invoice.Invoice, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+invoiceColumns+`
		from invoices
		where issuer_id = $1 and ($2 = 0 or id < $2)
		order by id desc
		limit $3
	`, issuerID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

// CompareAndSetRevoked relies on the row lock taken by the conditional
// update, so concurrent revocations of one invoice serialize in PostgreSQL.
func (s *InvoiceStore) CompareAndSetRevoked(ctx context.Context, publicID string, expected invoice.Status, rev invoice.Revocation) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update invoices
		set status = 'REVOKED', revoked_reason = $2, revoked_at = $3, revoked_by = $4
		where public_id = $1 and status = $5
	`, publicID, rev.Reason, rev.RevokedAt, rev.RevokedBy, string(expected))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `select 1 from invoices where public_id = $1`, publicID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, invoice.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (s *InvoiceStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (invoice.Invoice, error) {
	var (
		inv               invoice.Invoice
		issue, due        time.Time
		status            string
		reason, revokedBy sql.NullString
		revokedAt         sql.NullTime
	)
	c := &inv.Content
	if err := row.Scan(&inv.InternalID, &inv.PublicID, &inv.IssuerID, &c.InvoiceNumber, &c.IssuerName,
		&c.ClientID, &c.ClientName, &issue, &due, &c.Currency, &c.Subtotal, &c.Tax, &c.Total,
		&inv.Fingerprint, &status, &reason, &revokedAt, &revokedBy, &inv.CreatedAt); err != nil {
		return invoice.Invoice{}, err
	}
	c.IssueDate = civil.DateOf(issue)
	c.DueDate = civil.DateOf(due)
	inv.Status = invoice.Status(status)
	inv.CreatedAt = inv.CreatedAt.UTC()
	if revokedAt.Valid {
		inv.Revocation = &invoice.Revocation{
			Reason:    reason.String,
			RevokedAt: revokedAt.Time.UTC(),
			RevokedBy: revokedBy.String,
		}
	}
	return inv, nil
}

// dateValue passes a civil date as midnight UTC, which pgx encodes as a date.
func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}
