package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"quoteguard.org/internal/audit"
	"quoteguard.org/internal/auth"
	"quoteguard.org/internal/invoice"
	"quoteguard.org/internal/obs"
)

type lineItemRequest struct {
	Product   string          `json:"product"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// createInvoiceRequest omits the issuer: it comes from the bearer token.
type createInvoiceRequest struct {
	InvoiceNumber string            `json:"invoiceNumber"`
	ClientID      string            `json:"clientId"`
	ClientName    string            `json:"clientName"`
	IssueDate     civil.Date        `json:"issueDate"`
	DueDate       civil.Date        `json:"dueDate"`
	Currency      string            `json:"currency"`
	Items         []lineItemRequest `json:"items"`
	Subtotal      *decimal.Decimal  `json:"subtotal"`
	Tax           *decimal.Decimal  `json:"tax"`
	TotalAmount   *decimal.Decimal  `json:"totalAmount"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type lineItemResponse struct {
	Product   string `json:"product"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type invoiceResponse struct {
	ID                 int64              `json:"id"`
	PublicID           string             `json:"publicId"`
	InvoiceNumber      string             `json:"invoiceNumber"`
	FreelancerName     string             `json:"freelancerName"`
	ClientID           string             `json:"clientId"`
	ClientName         string             `json:"clientName"`
	IssueDate          string             `json:"issueDate"`
	DueDate            string             `json:"dueDate"`
	Currency           string             `json:"currency"`
	Items              []lineItemResponse `json:"items,omitempty"`
	Subtotal           string             `json:"subtotal"`
	Tax                string             `json:"tax"`
	TotalAmount        string             `json:"totalAmount"`
	ContentFingerprint string             `json:"contentFingerprint"`
	Status             invoice.Status     `json:"status"`
	RevokedAt          *time.Time         `json:"revokedAt,omitempty"`
	RevokedReason      string             `json:"revokedReason,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	VerificationURL    string             `json:"verificationUrl"`
}

type listInvoicesResponse struct {
	Items      []invoiceResponse `json:"items"`
	NextBefore int64             `json:"nextBefore,omitempty"`
}

type revokeResponse struct {
	Message   string         `json:"message"`
	PublicID  string         `json:"publicId"`
	Status    invoice.Status `json:"status"`
	RevokedAt time.Time      `json:"revokedAt"`
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createInvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	issuer, err := a.issuerFor(r, caller)
	if errors.Is(err, auth.ErrNotFound) {
		unauthorized(w, r, "issuer account no longer exists")
		return
	}
	if err != nil {
		a.handleInvoiceError(w, r, err)
		return
	}
	inv, err := a.invoices.Create(r.Context(), issuer, req.content())
	if err != nil {
		a.handleInvoiceError(w, r, err)
		return
	}

	obs.ObserveInvoiceCreated()
	_ = audit.LogEvent(r.Context(), "invoice.created", map[string]any{
		"public_id":      inv.PublicID,
		"invoice_id":     inv.InternalID,
		"invoice_number": inv.Content.InvoiceNumber,
		"fingerprint":    inv.Fingerprint,
	})
	w.Header().Set("Location", "/v1/invoices/"+inv.PublicID)
	writeJSON(w, http.StatusCreated, newInvoiceResponse(inv))
}

// issuerFor resolves the current display name of the caller; the token's
// name claim is used when no account store is wired.
func (a *API) issuerFor(r *http.Request, caller auth.Identity) (invoice.Issuer, error) {
	if a.accounts == nil {
		return invoice.Issuer{ID: caller.ID, Name: caller.Name}, nil
	}
	iss, err := a.accounts.Issuer(r.Context(), caller.ID)
	if err != nil {
		return invoice.Issuer{}, err
	}
	return invoice.Issuer{ID: iss.ID, Name: iss.Name}, nil
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parseIntParam(q.Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, "limit must be between 1 and 100")
		return
	}
	before, err := parseIntParam(q.Get("before"), 0, 1, 1<<62)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, "before must be a positive invoice id")
		return
	}

	items, err := a.invoices.List(r.Context(), caller.ID, int(limit), before)
	if err != nil {
		a.handleInvoiceError(w, r, err)
		return
	}
	resp := listInvoicesResponse{Items: make([]invoiceResponse, 0, len(items))}
	for _, inv := range items {
		resp.Items = append(resp.Items, newInvoiceResponse(inv))
	}
	if len(items) == int(limit) {
		resp.NextBefore = items[len(items)-1].InternalID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	inv, err := a.invoices.Get(r.Context(), caller.ID, r.PathValue("ref"))
	if err != nil {
		a.handleInvoiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}

func (a *API) handleRevokeInvoice(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	publicID := r.PathValue("publicId")
	inv, err := a.invoices.Revoke(r.Context(), publicID, caller.ID, req.Reason)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, invoice.ErrNotFound):
			result = "not_found"
		case errors.Is(err, invoice.ErrForbidden):
			result = "forbidden"
		case errors.Is(err, invoice.ErrInvalidArgument):
			result = "invalid"
		case errors.Is(err, invoice.ErrAlreadyRevoked):
			result = "already_revoked"
		}
		obs.ObserveRevocation(result)
		_ = audit.LogEvent(r.Context(), "invoice.revoke.rejected", map[string]any{
			"public_id": publicID,
			"result":    result,
		})
		a.handleInvoiceError(w, r, err)
		return
	}

	obs.ObserveRevocation("revoked")
	_ = audit.LogEvent(r.Context(), "invoice.revoked", map[string]any{
		"public_id":  inv.PublicID,
		"invoice_id": inv.InternalID,
		"reason":     inv.Revocation.Reason,
	})
	writeJSON(w, http.StatusOK, revokeResponse{
		Message:   "Invoice revoked successfully",
		PublicID:  inv.PublicID,
		Status:    inv.Status,
		RevokedAt: inv.Revocation.RevokedAt,
	})
}

// content fills in subtotal and total from the line items when the client omits them.
func (req createInvoiceRequest) content() invoice.Content {
	c := invoice.Content{
		InvoiceNumber: req.InvoiceNumber,
		ClientID:      req.ClientID,
		ClientName:    req.ClientName,
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Currency:      req.Currency,
		Items:         make([]invoice.LineItem, 0, len(req.Items)),
	}
	sum := decimal.Zero
	for _, it := range req.Items {
		c.Items = append(c.Items, invoice.LineItem{
			Product:   it.Product,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	c.Subtotal = sum
	if req.Subtotal != nil {
		c.Subtotal = *req.Subtotal
	}
	if req.Tax != nil {
		c.Tax = *req.Tax
	}
	c.Total = c.Subtotal.Add(c.Tax)
	if req.TotalAmount != nil {
		c.Total = *req.TotalAmount
	}
	return c
}

func newInvoiceResponse(inv invoice.Invoice) invoiceResponse {
	c := inv.Content
	resp := invoiceResponse{
		ID:                 inv.InternalID,
		PublicID:           inv.PublicID,
		InvoiceNumber:      c.InvoiceNumber,
		FreelancerName:     c.IssuerName,
		ClientID:           c.ClientID,
		ClientName:         c.ClientName,
		IssueDate:          c.IssueDate.String(),
		DueDate:            c.DueDate.String(),
		Currency:           c.Currency,
		Subtotal:           c.Subtotal.StringFixed(2),
		Tax:                c.Tax.StringFixed(2),
		TotalAmount:        c.Total.StringFixed(2),
		ContentFingerprint: inv.Fingerprint,
		Status:             inv.Status,
		CreatedAt:          inv.CreatedAt,
		VerificationURL:    "/v1/verify/" + inv.PublicID,
	}
	for _, it := range c.Items {
		resp.Items = append(resp.Items, lineItemResponse{
			Product:   it.Product,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	if inv.Revocation != nil {
		at := inv.Revocation.RevokedAt
		resp.RevokedAt = &at
		resp.RevokedReason = inv.Revocation.Reason
	}
	return resp
}

func parseIntParam(raw string, def, min, max int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if val < min || val > max {
		return 0, strconv.ErrRange
	}
	return val, nil
}
