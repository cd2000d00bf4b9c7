package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/cases"
	"kycdesk.org/internal/extract"
	"kycdesk.org/internal/httpapi"
	"kycdesk.org/internal/obs"
	"kycdesk.org/internal/risk"
	"kycdesk.org/internal/store/pg"
	"kycdesk.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Without a DSN the service runs fully in memory, which is enough
	// for local development and the smoke binary.
	var db *sql.DB
	if dsn := os.Getenv("KYCDESK_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		caseStore cases.Store
		userStore auth.UserStore
	)
	if db != nil {
		caseStore = pg.New(db)
		userStore = auth.NewPGStore(db)
	} else {
		caseStore = cases.NewInMemory()
		userStore = auth.NewMemoryStore()
	}

	var extractor extract.Extractor
	if url := os.Getenv("KYCDESK_EXTRACTOR_URL"); url != "" {
		var err error
		extractor, err = extract.NewRemoteClient(url)
		if err != nil {
			log.Fatalf("extractor client: %v", err)
		}
	} else {
		extractor = extract.NewStatic()
	}

	var scorerOpts []risk.Option
	if raw := os.Getenv("KYCDESK_RISK_WEIGHTS"); raw != "" {
		w, err := risk.ParseWeights(raw)
		if err != nil {
			log.Fatalf("KYCDESK_RISK_WEIGHTS: %v", err)
		}
		scorerOpts = append(scorerOpts, risk.WithWeights(w))
	}

	events := stream.New()
	caseOpts := []cases.ServiceOption{cases.WithEvents(events)}
	if raw := os.Getenv("KYCDESK_EXTRACTOR_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			log.Fatalf("KYCDESK_EXTRACTOR_TIMEOUT: invalid duration %q", raw)
		}
		caseOpts = append(caseOpts, cases.WithExtractTimeout(d))
	}

	caseSvc := cases.NewService(caseStore, extractor, risk.NewScorer(scorerOpts...), caseOpts...)
	authSvc := auth.NewService(userStore)

	cfg := httpapi.Config{
		Ready:   httpapi.ReadyProbe{DB: db},
		Version: version,
		Auth:    authSvc,
		Cases:   caseSvc,
		Events:  events,
	}
	if raw := os.Getenv("KYCDESK_RATE_BURST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Fatalf("KYCDESK_RATE_BURST: invalid value %q", raw)
		}
		cfg.RateBurst = n
	}
	api := httpapi.New(cfg)

	addr := os.Getenv("KYCDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting kycdesk-api %s on %s", version, srv.Addr)

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
