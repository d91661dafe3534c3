package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxReasonRunes        = 500
	maxInvoiceNumberRunes = 64
	defaultListLimit      = 20
	maxListLimit          = 100
	allocateAttempts      = 3
)

// Service implements invoice issuance, revocation and public verification.
type Service struct {
	store Store
	ids   *Allocator
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creation, revocation and verification timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAllocator overrides the public id allocator.
func WithAllocator(a *Allocator) Option {
	return func(s *Service) {
		if a != nil {
			s.ids = a
		}
	}
}

// WithLogger sets the logger used for issuance and integrity warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		ids:   NewAllocator(nil),
		now:   func() time.Time { return time.Now().UTC() },
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("service", "invoice"))
	return s
}

// Create validates content, snapshots the issuer name into it, fingerprints
// it and persists a new ACTIVE invoice under a freshly allocated public id.
func (s *Service) Create(ctx context.Context, issuer Issuer, content Content) (Invoice, error) {
	if strings.TrimSpace(issuer.ID) == "" {
		return Invoice{}, fmt.Errorf("%w: issuer id is required", ErrInvalidArgument)
	}
	now := s.now()

	c := normalizeContent(content)
	c.IssuerName = strings.TrimSpace(issuer.Name)
	if c.InvoiceNumber == "" {
		c.InvoiceNumber = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	if err := validateContent(c); err != nil {
		return Invoice{}, err
	}
	fp, err := Fingerprint(c)
	if err != nil {
		return Invoice{}, err
	}

	for attempt := 0; attempt < allocateAttempts; attempt++ {
		publicID, err := s.ids.Allocate()
		if err != nil {
			return Invoice{}, err
		}
		stored, err := s.store.Create(ctx, Invoice{
			PublicID:    publicID,
			IssuerID:    issuer.ID,
			Content:     c,
			Fingerprint: fp,
			Status:      StatusActive,
			CreatedAt:   now,
		})
		if errors.Is(err, ErrDuplicatePublicID) {
			continue
		}
		if err != nil {
			return Invoice{}, fmt.Errorf("create invoice: %w", err)
		}
		s.log.Info("invoice created",
			zap.String("public_id", stored.PublicID),
			zap.Int64("invoice_id", stored.InternalID),
			zap.String("issuer_id", stored.IssuerID),
		)
		return stored, nil
	}
	return Invoice{}, fmt.Errorf("create invoice: %w", ErrDuplicatePublicID)
}

// Get returns one of the requester's invoices by public id or internal id.
// Invoices owned by other issuers are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, requesterID, ref string) (Invoice, error) {
	ref = strings.TrimSpace(ref)

	var (
		inv Invoice
		err error
	)
	if publicID, ok := ParsePublicID(ref); ok {
		inv, err = s.store.GetByPublicID(ctx, publicID)
	} else if id, ok := parseInternalID(ref); ok {
		inv, err = s.store.GetByInternalID(ctx, id)
	} else {
		return Invoice{}, ErrNotFound
	}
	if errors.Is(err, ErrNotFound) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	if inv.IssuerID != requesterID {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

// List returns the requester's invoices, newest first, without line items.
func (s *Service) List(ctx context.Context, requesterID string, limit int, beforeID int64) ([]Invoice, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: requester id is required", ErrInvalidArgument)
	}
	if beforeID < 0 {
		return nil, fmt.Errorf("%w: before id must not be negative", ErrInvalidArgument)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	items, err := s.store.ListByIssuer(ctx, requesterID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return items, nil
}

// Revoke moves an ACTIVE invoice to REVOKED on behalf of its issuer.
// Preconditions are checked in order: existence, ownership, reason, status.
func (s *Service) Revoke(ctx context.Context, publicID, requesterID, reason string) (Invoice, error) {
	id, ok := ParsePublicID(publicID)
	if !ok {
		return Invoice{}, ErrNotFound
	}
	inv, err := s.store.GetByPublicID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("revoke invoice: %w", err)
	}
	if inv.IssuerID != requesterID {
		return Invoice{}, ErrForbidden
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invoice{}, fmt.Errorf("%w: revocation reason is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(reason) > maxReasonRunes {
		return Invoice{}, fmt.Errorf("%w: revocation reason exceeds %d characters", ErrInvalidArgument, maxReasonRunes)
	}
	if inv.Status != StatusActive {
		return Invoice{}, ErrAlreadyRevoked
	}

	rev := Revocation{Reason: reason, RevokedAt: s.now(), RevokedBy: requesterID}
	swapped, err := s.store.CompareAndSetRevoked(ctx, id, StatusActive, rev)
	if errors.Is(err, ErrNotFound) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("revoke invoice: %w", err)
	}
	if !swapped {
		return Invoice{}, ErrAlreadyRevoked
	}

	inv.Status = StatusRevoked
	inv.Revocation = &rev
	s.log.Info("invoice revoked",
		zap.String("public_id", inv.PublicID),
		zap.String("issuer_id", inv.IssuerID),
	)
	return inv, nil
}

// Verify recomputes the fingerprint of the stored content and reports the
// invoice state. Content mismatch takes precedence over revocation.
// Unknown or malformed ids yield NotFound; store failures are returned as errors.
func (s *Service) Verify(ctx context.Context, publicID string) (Outcome, error) {
	id, ok := ParsePublicID(publicID)
	if !ok {
		return NotFound{CheckedAt: s.now()}, nil
	}
	inv, err := s.store.GetByPublicID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return NotFound{CheckedAt: s.now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify invoice: %w", err)
	}
	checkedAt := s.now()
	summary := summarize(inv.Content)

	fp, err := Fingerprint(inv.Content)
	if err != nil || fp != inv.Fingerprint {
		fields := []zap.Field{
			zap.String("public_id", inv.PublicID),
			zap.Int64("invoice_id", inv.InternalID),
			zap.String("stored_fingerprint", inv.Fingerprint),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.String("computed_fingerprint", fp))
		}
		s.log.Warn("invoice content does not match fingerprint", fields...)
		return Modified{Summary: summary, CheckedAt: checkedAt}, nil
	}

	if inv.Status == StatusRevoked {
		out := Revoked{Summary: summary, CheckedAt: checkedAt}
		if inv.Revocation != nil {
			out.Reason = inv.Revocation.Reason
			out.RevokedAt = inv.Revocation.RevokedAt
		}
		return out, nil
	}
	return Verified{Summary: summary, CheckedAt: checkedAt}, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func normalizeContent(c Content) Content {
	out := c
	out.InvoiceNumber = strings.TrimSpace(c.InvoiceNumber)
	out.ClientID = strings.TrimSpace(c.ClientID)
	out.ClientName = strings.TrimSpace(c.ClientName)
	out.Currency = normalizeCurrency(c.Currency)
	out.Items = make([]LineItem, len(c.Items))
	for i, it := range c.Items {
		it.Product = strings.TrimSpace(it.Product)
		out.Items[i] = it
	}
	return out
}

func validateContent(c Content) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidContent}, args...)...)
	}

	if utf8.RuneCountInString(c.InvoiceNumber) > maxInvoiceNumberRunes {
		return invalid("invoice number exceeds %d characters", maxInvoiceNumberRunes)
	}
	if c.ClientID == "" || c.ClientName == "" {
		return invalid("client reference and name are required")
	}
	if !c.IssueDate.IsValid() || !c.DueDate.IsValid() {
		return invalid("issue date and due date are required")
	}
	if c.DueDate.Before(c.IssueDate) {
		return invalid("due date %s is before issue date %s", c.DueDate, c.IssueDate)
	}
	if !isCurrencyCode(c.Currency) {
		return invalid("currency %q is not a three-letter code", c.Currency)
	}
	if len(c.Items) == 0 {
		return invalid("at least one line item is required")
	}

	sum := decimal.Zero
	for i, it := range c.Items {
		switch {
		case it.Product == "":
			return invalid("item %d: product is required", i+1)
		case it.Quantity <= 0:
			return invalid("item %d: quantity must be positive", i+1)
		case it.UnitPrice.IsNegative():
			return invalid("item %d: unit price must not be negative", i+1)
		case !isCents(it.UnitPrice):
			return invalid("item %d: unit price has more than two decimal places", i+1)
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}

	amounts := []struct {
		name  string
		value decimal.Decimal
	}{{"subtotal", c.Subtotal}, {"tax", c.Tax}, {"total", c.Total}}
	for _, a := range amounts {
		if !isCents(a.value) {
			return invalid("%s has more than two decimal places", a.name)
		}
	}
	if c.Tax.IsNegative() {
		return invalid("tax must not be negative")
	}
	if !c.Subtotal.Equal(sum) {
		return invalid("subtotal %s does not match line items %s", c.Subtotal.StringFixed(amountScale), sum.StringFixed(amountScale))
	}
	if !c.Total.Equal(c.Subtotal.Add(c.Tax)) {
		return invalid("total %s does not equal subtotal plus tax", c.Total.StringFixed(amountScale))
	}
	if !c.Total.IsPositive() {
		return invalid("total amount must be positive")
	}
	return nil
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(amountScale))
}

func isCurrencyCode(c string) bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

func parseInternalID(ref string) (int64, bool) {
	if ref == "" {
		return 0, false
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] < '0' || ref[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
