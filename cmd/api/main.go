package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatepass.org/internal/auth"
	"gatepass.org/internal/badge"
	"gatepass.org/internal/checkin"
	"gatepass.org/internal/httpapi"
	"gatepass.org/internal/notify"
	"gatepass.org/internal/obs"
	"gatepass.org/internal/registration"
	"gatepass.org/internal/registry"
	"gatepass.org/internal/store/pg"
	"gatepass.org/internal/stream"
)

// Overridden at build time via -ldflags.
var (
	version = "1.2.0"
	commit  = ""
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Storage: PostgreSQL when a DSN is set, in-memory otherwise. The
	// in-memory store is for local development and demos only.
	var (
		store registry.Store
		users auth.UserStore
		db    *sql.DB
	)
	if dsn := os.Getenv("GATEPASS_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		users = auth.NewPGUsers(pgStore.DB())
		db = pgStore.DB()
	} else {
		log.Print("GATEPASS_PG_DSN not set, using in-memory store")
		store = registry.NewInMemory()
		users = auth.NewInMemoryUsers()
	}

	authSvc := auth.NewService(users)
	feed := stream.New()

	badgeDir := envOr("GATEPASS_BADGE_DIR", "data/badges")
	issuer := badge.NewIssuer(store, badgeDir)

	notifier := buildNotifier()

	registrations := registration.NewService(store, authSvc, issuer, notifier)

	var scanOpts []checkin.Option
	scanOpts = append(scanOpts, checkin.WithFeed(feed))
	if d := envDuration("GATEPASS_SCAN_WINDOW"); d > 0 {
		scanOpts = append(scanOpts, checkin.WithFreshnessWindow(d))
	}
	if d := envDuration("GATEPASS_SCAN_TIMEOUT"); d > 0 {
		scanOpts = append(scanOpts, checkin.WithScanDeadline(d))
	}
	checkins := checkin.NewService(store, scanOpts...)

	api := httpapi.New(httpapi.Config{
		Version:       version,
		Ready:         httpapi.ReadyProbe{DB: db},
		Auth:          authSvc,
		Store:         store,
		Registrations: registrations,
		Checkin:       checkins,
		Badges:        issuer,
		Feed:          feed,
	})

	srv := &http.Server{
		Addr:              envOr("GATEPASS_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatepass-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// buildNotifier wires the SMS and email channels from the environment.
// Either channel may be left unconfigured; the notifier skips it.
func buildNotifier() *notify.Service {
	sms := notify.NewSMSSender(
		os.Getenv("GATEPASS_SMS_USERNAME"),
		os.Getenv("GATEPASS_SMS_PASSWORD"),
		os.Getenv("GATEPASS_SMS_SENDER"),
		os.Getenv("GATEPASS_SMS_URL"),
	)
	email := notify.NewEmailSender(
		os.Getenv("GATEPASS_SMTP_HOST"),
		envOr("GATEPASS_SMTP_PORT", "587"),
		os.Getenv("GATEPASS_SMTP_USERNAME"),
		os.Getenv("GATEPASS_SMTP_PASSWORD"),
		os.Getenv("GATEPASS_SMTP_FROM"),
	)
	base := envOr("GATEPASS_PUBLIC_BASE_URL", "http://localhost:8080")
	return notify.NewService(sms, email, base)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}
