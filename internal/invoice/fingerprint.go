package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// contentVersion prefixes the canonical encoding. Changing any rule below
// requires a new version, otherwise every issued invoice verifies as MODIFIED.
const contentVersion = "quoteguard/invoice-content/v1"

// amountScale is the number of fractional digits amounts are rendered with.
const amountScale = 2

// Fingerprint returns the lowercase hex SHA-256 digest of the canonical
// encoding of c. Equal content always yields an equal fingerprint.
func Fingerprint(c Content) (string, error) {
	canonical, err := canonicalContent(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalContent renders c with a fixed field order, quoted strings, ISO
// dates, fixed-scale amounts and line items sorted by their encoding.
func canonicalContent(c Content) (string, error) {
	currency := normalizeCurrency(c.Currency)
	switch {
	case currency == "":
		return "", fmt.Errorf("%w: currency is required", ErrInvalidContent)
	case len(c.Items) == 0:
		return "", fmt.Errorf("%w: at least one line item is required", ErrInvalidContent)
	case c.Total.IsZero():
		return "", fmt.Errorf("%w: total amount is required", ErrInvalidContent)
	}

	var b strings.Builder
	b.WriteString(contentVersion)
	b.WriteByte('\n')
	writeField(&b, "invoice_number", strconv.Quote(c.InvoiceNumber))
	writeField(&b, "issuer_name", strconv.Quote(c.IssuerName))
	writeField(&b, "client_id", strconv.Quote(c.ClientID))
	writeField(&b, "client_name", strconv.Quote(c.ClientName))
	writeField(&b, "issue_date", c.IssueDate.String())
	writeField(&b, "due_date", c.DueDate.String())
	writeField(&b, "currency", strconv.Quote(currency))
	writeField(&b, "subtotal", canonicalAmount(c.Subtotal))
	writeField(&b, "tax", canonicalAmount(c.Tax))
	writeField(&b, "total", canonicalAmount(c.Total))

	items := make([]string, len(c.Items))
	for i, it := range c.Items {
		items[i] = fmt.Sprintf("{product=%s,quantity=%d,unit_price=%s}",
			strconv.Quote(it.Product), it.Quantity, canonicalAmount(it.UnitPrice))
	}
	sort.Strings(items)
	for _, it := range items {
		writeField(&b, "item", it)
	}
	return b.String(), nil
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

// canonicalAmount renders d with exactly two fractional digits. Values with
// more precision keep their exact form so sub-cent edits are not rounded away.
func canonicalAmount(d decimal.Decimal) string {
	if d.Equal(d.Truncate(amountScale)) {
		return d.StringFixed(amountScale)
	}
	return d.String()
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
