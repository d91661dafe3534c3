package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quoteguard.org/internal/auth"
	"quoteguard.org/internal/invoice"
	"quoteguard.org/internal/obs"
)

const serviceName = "quoteguard-api"

// ReadinessChecker reports whether the service can take traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Pinger is implemented by the backing stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the invoice store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Invoices *invoice.Service
	Accounts *auth.Service
	Tokens   *auth.Tokens
	Ready    ReadinessChecker
	Logger   *zap.Logger
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	invoices   *invoice.Service
	accounts   *auth.Service
	tokens     *auth.Tokens
	readyProbe ReadinessChecker
	log        *zap.Logger
	version    string

	rateBurst  int
	ratePerSec float64
	maxBody    int64
}

// Option tunes the HTTP layer.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func New(d Deps, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		invoices:   d.Invoices,
		accounts:   d.Accounts,
		tokens:     d.Tokens,
		readyProbe: d.Ready,
		log:        d.Logger,
		version:    d.Version,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.log == nil {
		a.log = obs.Logger()
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// issuer accounts
	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)

	// issuer-side invoices (bearer token required, see withAuth)
	a.mux.HandleFunc("POST /v1/invoices", a.handleCreateInvoice)
	a.mux.HandleFunc("GET /v1/invoices", a.handleListInvoices)
	a.mux.HandleFunc("GET /v1/invoices/{ref}", a.handleGetInvoice)
	a.mux.HandleFunc("POST /v1/invoices/{publicId}/revoke", a.handleRevokeInvoice)

	// public verification
	a.mux.HandleFunc("GET /v1/verify/{publicId}", a.handleVerify)
	a.mux.HandleFunc("GET /v1/verify", a.handleVerify)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "dependency unavailable",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
