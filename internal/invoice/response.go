package invoice

import "time"

const (
	messageVerified = "Invoice is valid and has not been tampered with."
	messageRevoked  = "This invoice has been revoked by the issuer."
	messageModified = "WARNING: Invoice has been modified after issuance. Do not trust this invoice."
	messageNotFound = "Invoice not found. This may be a fake invoice."

	warningModified = "The invoice content does not match the fingerprint recorded when it was issued. Do not pay it before confirming with the issuer."
)

// VerificationResponse is the public verification payload.
type VerificationResponse struct {
	Status                VerificationStatus `json:"status"`
	Message               string             `json:"message"`
	Warning               string             `json:"warning,omitempty"`
	FreelancerName        string             `json:"freelancerName,omitempty"`
	InvoiceNumber         string             `json:"invoiceNumber,omitempty"`
	IssueDate             string             `json:"issueDate,omitempty"`
	DueDate               string             `json:"dueDate,omitempty"`
	Currency              string             `json:"currency,omitempty"`
	TotalAmount           string             `json:"totalAmount,omitempty"`
	RevokedAt             *time.Time         `json:"revokedAt,omitempty"`
	RevokedReason         string             `json:"revokedReason,omitempty"`
	VerificationTimestamp time.Time          `json:"verificationTimestamp"`
}

// NewVerificationResponse maps an outcome to the public payload. NOT_FOUND
// carries only status, message and timestamp; unknown outcomes are treated
// the same way.
func NewVerificationResponse(o Outcome) VerificationResponse {
	switch v := o.(type) {
	case Verified:
		r := withSummary(v.Summary)
		r.Status, r.Message = OutcomeVerified, messageVerified
		r.VerificationTimestamp = v.CheckedAt.UTC()
		return r
	case Revoked:
		r := withSummary(v.Summary)
		r.Status, r.Message = OutcomeRevoked, messageRevoked
		r.RevokedReason = v.Reason
		if !v.RevokedAt.IsZero() {
			at := v.RevokedAt.UTC()
			r.RevokedAt = &at
		}
		r.VerificationTimestamp = v.CheckedAt.UTC()
		return r
	case Modified:
		r := withSummary(v.Summary)
		r.Status, r.Message = OutcomeModified, messageModified
		r.Warning = warningModified
		r.VerificationTimestamp = v.CheckedAt.UTC()
		return r
	case NotFound:
		return notFoundResponse(v.CheckedAt)
	default:
		var at time.Time
		if o != nil {
			at = o.Checked()
		}
		return notFoundResponse(at)
	}
}

func notFoundResponse(at time.Time) VerificationResponse {
	if at.IsZero() {
		at = time.Now()
	}
	return VerificationResponse{
		Status:                OutcomeNotFound,
		Message:               messageNotFound,
		VerificationTimestamp: at.UTC(),
	}
}

func withSummary(s Summary) VerificationResponse {
	r := VerificationResponse{
		FreelancerName: s.IssuerName,
		InvoiceNumber:  s.InvoiceNumber,
		Currency:       s.Currency,
		TotalAmount:    canonicalAmount(s.Total),
	}
	if s.IssueDate.IsValid() {
		r.IssueDate = s.IssueDate.String()
	}
	if s.DueDate.IsValid() {
		r.DueDate = s.DueDate.String()
	}
	return r
}
