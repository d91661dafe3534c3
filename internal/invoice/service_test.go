package invoice

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	ada = Issuer{ID: "01J9ZQ6Y7W8X9A0B1C2D3E4F5G", Name: "Ada Freelance"}
	eve = Issuer{ID: "01J9ZQ6Y7W8X9A0B1C2D3E4F5H", Name: "Eve Freelance"}
)

func fixedClock() func() time.Time {
	now := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewService(store, opts...), store
}

func mustCreate(t *testing.T, svc *Service, iss Issuer) Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), iss, sampleContent())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return inv
}

func TestCreateThenVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inv := mustCreate(t, svc, ada)
	if inv.Status != StatusActive || inv.InternalID == 0 {
		t.Fatalf("unexpected stored invoice: %+v", inv)
	}
	if _, ok := ParsePublicID(inv.PublicID); !ok {
		t.Fatalf("public id %q is not canonical", inv.PublicID)
	}
	if inv.PublicID == strconv.FormatInt(inv.InternalID, 10) {
		t.Fatalf("public id derived from internal id")
	}
	if inv.Fingerprint != mustFingerprint(t, inv.Content) {
		t.Fatalf("stored fingerprint does not match content")
	}

	out, err := svc.Verify(ctx, inv.PublicID)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := out.(Verified)
	if !ok {
		t.Fatalf("expected Verified, got %T", out)
	}
	if v.IssuerName != "Ada Freelance" || v.InvoiceNumber != "INV-1001" || !v.Total.Equal(decimal.NewFromInt(1180)) {
		t.Fatalf("unexpected summary: %+v", v.Summary)
	}
	if !v.CheckedAt.Equal(fixedClock()()) {
		t.Fatalf("checked at = %v", v.CheckedAt)
	}
}

func TestCreateSnapshotsIssuerAndNormalizes(t *testing.T) {
	svc, _ := newTestService(t)
	c := sampleContent()
	c.IssuerName = "Someone Else"
	c.InvoiceNumber = ""
	c.Currency = "usd"
	c.ClientName = "  Globex Ltd "

	inv, err := svc.Create(context.Background(), ada, c)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Content.IssuerName != "Ada Freelance" {
		t.Fatalf("issuer name not snapshotted: %q", inv.Content.IssuerName)
	}
	if want := "INV-" + strconv.FormatInt(fixedClock()().UnixMilli(), 10); inv.Content.InvoiceNumber != want {
		t.Fatalf("invoice number = %q, want %q", inv.Content.InvoiceNumber, want)
	}
	if inv.Content.Currency != "USD" || inv.Content.ClientName != "Globex Ltd" {
		t.Fatalf("content not normalized: %+v", inv.Content)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]func(c *Content){
		"missing client id":   func(c *Content) { c.ClientID = " " },
		"missing client name": func(c *Content) { c.ClientName = "" },
		"missing issue date":  func(c *Content) { c.IssueDate.Month = 0 },
		"due before issue":    func(c *Content) { c.DueDate = c.IssueDate.AddDays(-1) },
		"bad currency":        func(c *Content) { c.Currency = "DOLLARS" },
		"no items":            func(c *Content) { c.Items = nil },
		"empty product":       func(c *Content) { c.Items[0].Product = "  " },
		"zero quantity":       func(c *Content) { c.Items[0].Quantity = 0 },
		"negative price":      func(c *Content) { c.Items[1].UnitPrice = decimal.NewFromInt(-1) },
		"sub-cent price":      func(c *Content) { c.Items[1].UnitPrice = decimal.RequireFromString("100.001") },
		"subtotal mismatch":   func(c *Content) { c.Subtotal = decimal.NewFromInt(999) },
		"total mismatch":      func(c *Content) { c.Total = decimal.NewFromInt(1200) },
		"negative tax":        func(c *Content) { c.Tax = decimal.NewFromInt(-1); c.Total = decimal.NewFromInt(999) },
		"sub-cent tax":        func(c *Content) { c.Tax = decimal.RequireFromString("0.001"); c.Total = decimal.RequireFromString("1000.001") },
		"long invoice number": func(c *Content) { c.InvoiceNumber = strings.Repeat("9", 65) },
		"zero total":          func(c *Content) { c.Items = []LineItem{{Product: "Gift", Quantity: 1}}; c.Subtotal, c.Tax, c.Total = decimal.Zero, decimal.Zero, decimal.Zero },
	}
	for name, mutate := range cases {
		c := sampleContent()
		mutate(&c)
		if _, err := svc.Create(context.Background(), ada, c); !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("%s: expected ErrInvalidContent, got %v", name, err)
		}
	}
	if _, err := svc.Create(context.Background(), Issuer{}, sampleContent()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing issuer, got %v", err)
	}
}

func TestCreateRetriesPublicIDCollision(t *testing.T) {
	entropy := append(make([]byte, 32), bytes.Repeat([]byte{0x01}, 16)...)
	svc, _ := newTestService(t, WithAllocator(NewAllocator(bytes.NewReader(entropy))))

	first := mustCreate(t, svc, ada)
	second := mustCreate(t, svc, ada)
	if first.PublicID == second.PublicID {
		t.Fatalf("collision not retried: %s", first.PublicID)
	}
}

func TestVerifyUnknownAndMalformedIDs(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, ada)
	for _, id := range []string{"", "1", "garbage", "0b6f4a9c-3c1e-4d2b-9f7a-5e8d1c2b3a4f"} {
		out, err := svc.Verify(context.Background(), id)
		if err != nil {
			t.Fatalf("%q: %v", id, err)
		}
		if _, ok := out.(NotFound); !ok {
			t.Fatalf("%q: expected NotFound, got %T", id, out)
		}
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc, store := newTestService(t, WithLogger(zap.New(core)))
	inv := mustCreate(t, svc, ada)

	store.mu.Lock()
	store.byID[inv.InternalID].Content.Total = decimal.NewFromInt(11800)
	store.mu.Unlock()

	out, err := svc.Verify(context.Background(), inv.PublicID)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := out.(Modified)
	if !ok {
		t.Fatalf("expected Modified, got %T", out)
	}
	if m.InvoiceNumber != "INV-1001" {
		t.Fatalf("unexpected summary: %+v", m.Summary)
	}
	entries := logs.FilterMessage("invoice content does not match fingerprint").All()
	if len(entries) != 1 {
		t.Fatalf("expected one integrity warning, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["public_id"]; got != inv.PublicID {
		t.Fatalf("warning public_id = %v", got)
	}
}

func TestVerifyTreatsUnfingerprintableContentAsModified(t *testing.T) {
	svc, store := newTestService(t)
	inv := mustCreate(t, svc, ada)

	store.mu.Lock()
	store.byID[inv.InternalID].Content.Items = nil
	store.mu.Unlock()

	out, err := svc.Verify(context.Background(), inv.PublicID)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status() != OutcomeModified {
		t.Fatalf("expected MODIFIED, got %s", out.Status())
	}
}

func TestRevokeThenVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := mustCreate(t, svc, ada)

	revoked, err := svc.Revoke(ctx, inv.PublicID, ada.ID, "  duplicate ")
	if err != nil {
		t.Fatal(err)
	}
	if revoked.Status != StatusRevoked || revoked.Revocation == nil || revoked.Revocation.Reason != "duplicate" {
		t.Fatalf("unexpected revoked invoice: %+v", revoked)
	}
	if revoked.Fingerprint != inv.Fingerprint {
		t.Fatalf("revocation changed fingerprint")
	}

	out, err := svc.Verify(ctx, inv.PublicID)
	if err != nil {
		t.Fatal(err)
	}
	r, ok := out.(Revoked)
	if !ok {
		t.Fatalf("expected Revoked, got %T", out)
	}
	if r.Reason != "duplicate" || !r.RevokedAt.Equal(fixedClock()()) {
		t.Fatalf("unexpected revocation details: %+v", r)
	}

	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, "again"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestRevokePreconditionOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := mustCreate(t, svc, ada)

	if _, err := svc.Revoke(ctx, "0b6f4a9c-3c1e-4d2b-9f7a-5e8d1c2b3a4f", ada.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Revoke(ctx, "not-an-id", ada.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("malformed id: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Revoke(ctx, inv.PublicID, eve.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign issuer: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, " \t "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank reason: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, strings.Repeat("é", 501)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("long reason: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, strings.Repeat("é", 500)); err != nil {
		t.Fatalf("500-rune reason rejected: %v", err)
	}
	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("reason is checked before status: got %v", err)
	}
}

func TestConcurrentRevokeHasOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	inv := mustCreate(t, svc, ada)

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		lost int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Revoke(context.Background(), inv.PublicID, ada.ID, "reason "+strconv.Itoa(i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyRevoked):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || lost != n-1 {
		t.Fatalf("wins=%d lost=%d", wins, lost)
	}
}

func TestModifiedTakesPrecedenceOverRevoked(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	inv := mustCreate(t, svc, ada)
	if _, err := svc.Revoke(ctx, inv.PublicID, ada.ID, "sent twice"); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	store.byID[inv.InternalID].Content.ClientName = "Initech"
	store.mu.Unlock()

	out, err := svc.Verify(ctx, inv.PublicID)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status() != OutcomeModified {
		t.Fatalf("expected MODIFIED, got %s", out.Status())
	}
}

type brokenStore struct {
	*MemoryStore
	err error
}

func (s brokenStore) GetByPublicID(ctx context.Context, publicID string) (Invoice, error) {
	return Invoice{}, s.err
}

func TestVerifyStoreFailureIsNotNotFound(t *testing.T) {
	cause := errors.New("connection refused")
	svc := NewService(brokenStore{MemoryStore: NewMemoryStore(), err: cause})

	out, err := svc.Verify(context.Background(), "0b6f4a9c-3c1e-4d2b-9f7a-5e8d1c2b3a4f")
	if out != nil {
		t.Fatalf("expected no outcome, got %T", out)
	}
	if !errors.Is(err, cause) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestGetIsScopedToIssuer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := mustCreate(t, svc, ada)

	byPublic, err := svc.Get(ctx, ada.ID, strings.ToUpper(inv.PublicID))
	if err != nil || byPublic.InternalID != inv.InternalID {
		t.Fatalf("get by public id: %+v, %v", byPublic, err)
	}
	byInternal, err := svc.Get(ctx, ada.ID, strconv.FormatInt(inv.InternalID, 10))
	if err != nil || byInternal.PublicID != inv.PublicID {
		t.Fatalf("get by internal id: %+v, %v", byInternal, err)
	}
	if len(byInternal.Content.Items) != 2 {
		t.Fatalf("expected line items on single read")
	}
	for _, ref := range []string{inv.PublicID, strconv.FormatInt(inv.InternalID, 10)} {
		if _, err := svc.Get(ctx, eve.ID, ref); !errors.Is(err, ErrNotFound) {
			t.Fatalf("foreign read of %q: expected ErrNotFound, got %v", ref, err)
		}
	}
	for _, ref := range []string{"", "-1", "+1", "abc", "999"} {
		if _, err := svc.Get(ctx, ada.ID, ref); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", ref, err)
		}
	}
}

func TestListNewestFirstWithCursor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var created []Invoice
	for i := 0; i < 5; i++ {
		created = append(created, mustCreate(t, svc, ada))
	}
	mustCreate(t, svc, eve)

	page, err := svc.List(ctx, ada.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].InternalID != created[4].InternalID || page[1].InternalID != created[3].InternalID {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page[0].Content.Items != nil {
		t.Fatalf("list must not load line items")
	}

	rest, err := svc.List(ctx, ada.ID, 0, page[1].InternalID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 || rest[0].InternalID != created[2].InternalID {
		t.Fatalf("unexpected second page: %+v", rest)
	}

	if _, err := svc.List(ctx, ada.ID, 10, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative cursor, got %v", err)
	}
}
