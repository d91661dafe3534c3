package invoice

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// VerificationStatus is the public result of a verification.
type VerificationStatus string

const (
	OutcomeVerified VerificationStatus = "VERIFIED"
	OutcomeModified VerificationStatus = "MODIFIED"
	OutcomeRevoked  VerificationStatus = "REVOKED"
	OutcomeNotFound VerificationStatus = "NOT_FOUND"
)

// Outcome is one of Verified, Revoked, Modified or NotFound.
type Outcome interface {
	Status() VerificationStatus
	Checked() time.Time
	outcome()
}

// Summary is the subset of an invoice shown to anonymous verifiers.
type Summary struct {
	IssuerName    string
	InvoiceNumber string
	IssueDate     civil.Date
	DueDate       civil.Date
	Currency      string
	Total         decimal.Decimal
}

func summarize(c Content) Summary {
	return Summary{
		IssuerName:    c.IssuerName,
		InvoiceNumber: c.InvoiceNumber,
		IssueDate:     c.IssueDate,
		DueDate:       c.DueDate,
		Currency:      c.Currency,
		Total:         c.Total,
	}
}

// Verified means the stored content matches its fingerprint and the invoice is active.
type Verified struct {
	Summary
	CheckedAt time.Time
}

// Revoked means the content is intact but the issuer withdrew the invoice.
type Revoked struct {
	Summary
	Reason    string
	RevokedAt time.Time
	CheckedAt time.Time
}

// Modified means the stored content no longer matches its fingerprint.
type Modified struct {
	Summary
	CheckedAt time.Time
}

// NotFound carries no invoice data.
type NotFound struct {
	CheckedAt time.Time
}

func (Verified) Status() VerificationStatus { return OutcomeVerified }
func (Revoked) Status() VerificationStatus  { return OutcomeRevoked }
func (Modified) Status() VerificationStatus { return OutcomeModified }
func (NotFound) Status() VerificationStatus { return OutcomeNotFound }

func (o Verified) Checked() time.Time { return o.CheckedAt }
func (o Revoked) Checked() time.Time  { return o.CheckedAt }
func (o Modified) Checked() time.Time { return o.CheckedAt }
func (o NotFound) Checked() time.Time { return o.CheckedAt }

func (Verified) outcome() {}
func (Revoked) outcome()  {}
func (Modified) outcome() {}
func (NotFound) outcome() {}
