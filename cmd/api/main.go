package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quoteguard.org/internal/auth"
	"quoteguard.org/internal/config"
	"quoteguard.org/internal/httpapi"
	"quoteguard.org/internal/invoice"
	"quoteguard.org/internal/obs"
	"quoteguard.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// the logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	cfg.Log(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		invoiceStore invoice.Store
		issuerStore  auth.IssuerStore
		db           *sql.DB
	)
	if cfg.PGDSN != "" {
		var err error
		db, err = pg.Open(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		invoiceStore = pg.NewInvoiceStore(db)
		issuerStore = pg.NewIssuerStore(db)
		logger.Info("using postgres stores")
	} else {
		invoiceStore = invoice.NewMemoryStore()
		issuerStore = auth.NewMemoryIssuerStore()
		logger.Warn("QUOTEGUARD_PG_DSN not set, using in-memory stores")
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		return err
	}
	invoices := invoice.NewService(invoiceStore, invoice.WithLogger(logger))
	ready := httpapi.ReadyProbe{Store: invoiceStore}

	api := httpapi.New(httpapi.Deps{
		Invoices: invoices,
		Accounts: auth.NewService(issuerStore),
		Tokens:   tokens,
		Ready:    ready,
		Logger:   logger,
		Version:  version,
	},
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := httpapi.NewGRPCServer(ready, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
