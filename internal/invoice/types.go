// Package invoice binds issued invoices to a tamper-evident identity and
// answers public verification requests for them.
//
// An invoice is issued once with a content fingerprint and an unguessable
// public id. Afterwards it can only move from ACTIVE to REVOKED, and any
// change to its financial content is reported as MODIFIED by Verify.
package invoice

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// LineItem is a single billed product or service.
type LineItem struct {
	Product   string          `json:"product"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Content holds every fingerprint-covered field. Issuer and client display
// names are snapshots taken when the invoice is issued.
type Content struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	IssuerName    string          `json:"issuerName"`
	ClientID      string          `json:"clientId"`
	ClientName    string          `json:"clientName"`
	IssueDate     civil.Date      `json:"issueDate"`
	DueDate       civil.Date      `json:"dueDate"`
	Currency      string          `json:"currency"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"totalAmount"`
}

// Revocation is the audit record written when an issuer revokes an invoice.
type Revocation struct {
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revokedAt"`
	RevokedBy string    `json:"revokedBy"`
}

// Invoice is the stored record.
type Invoice struct {
	InternalID  int64       `json:"id"`
	PublicID    string      `json:"publicId"`
	IssuerID    string      `json:"issuerId"`
	Content     Content     `json:"content"`
	Fingerprint string      `json:"fingerprint"`
	Status      Status      `json:"status"`
	Revocation  *Revocation `json:"revocation,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Issuer identifies the party creating an invoice.
type Issuer struct {
	ID   string
	Name string
}

func (inv Invoice) clone() Invoice {
	out := inv
	if inv.Content.Items != nil {
		out.Content.Items = append([]LineItem(nil), inv.Content.Items...)
	}
	if inv.Revocation != nil {
		rev := *inv.Revocation
		out.Revocation = &rev
	}
	return out
}
