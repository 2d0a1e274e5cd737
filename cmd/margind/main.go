package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"margin/api/internal/app"
	"margin/api/internal/config"
	"margin/api/internal/crawl"
	"margin/api/internal/email"
	"margin/api/internal/export"
	"margin/api/internal/search"
	"margin/api/internal/session"
	"margin/api/internal/store"
	"margin/api/internal/textrepo"
	"margin/api/internal/users"
)

// sessionPurger is the slice of the relational store the sweep loop uses.
type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

const sessionSweepInterval = time.Hour

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, driver, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()
	log.Printf("margind: connected (%s)", driver)

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	texts := textrepo.New(cfg.ReposDir)
	crawler := crawl.New()
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("margind: SMTP not configured, notifications disabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
		defer meiliClient.Close()
	}

	// Refresh tokens live in Redis when configured, in the database otherwise.
	var redisStore *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		log.Printf("margind: using Redis for refresh token storage")
	}

	var (
		service       *app.Service
		searchService *search.Service
		purger        sessionPurger
	)
	switch driver {
	case store.DriverPostgres:
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		st := store.NewPostgresStore(db)
		searchService = search.NewService(meiliClient, search.NewPgFTS(db))
		var sessions session.Store = st
		if redisStore != nil {
			sessions = redisStore
		}
		service = app.New(cfg, st, st, app.Deps{
			Sessions: sessions,
			Users:    users.NewService(st),
			Search:   searchService,
			Texts:    texts,
			Crawler:  crawler,
			Exporter: export.NewService(st),
			Email:    mailer,
		})
		purger = st
	case store.DriverSQLite:
		st := store.NewSQLiteStore(db)
		if err := st.InitSchema(ctx); err != nil {
			log.Fatalf("schema init failed: %v", err)
		}
		searchService = search.NewService(meiliClient, search.NewSQLiteLike(db))
		var sessions session.Store = st
		if redisStore != nil {
			sessions = redisStore
		}
		service = app.New(cfg, st, st, app.Deps{
			Sessions: sessions,
			Users:    users.NewService(st),
			Search:   searchService,
			Texts:    texts,
			Crawler:  crawler,
			Exporter: export.NewService(st),
			Email:    mailer,
		})
		purger = st
	default:
		log.Fatalf("unknown driver %q", driver)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go searchService.ReindexAllFromDB(runCtx)
	go crawlLoop(runCtx, service, cfg.CrawlInterval)
	go sweepLoop(runCtx, purger)

	log.Printf("margind: running (crawl every %s)", cfg.CrawlInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("margind: shutting down")
	cancel()
}

// crawlLoop polls for documents created by URL that still have no text
// and fetches them in small batches.
func crawlLoop(ctx context.Context, service *app.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := service.ProcessCrawlQueue(ctx, 5)
			if err != nil {
				log.Printf("margind: crawl queue: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("margind: crawled %d document(s)", n)
			}
		}
	}
}

// sweepLoop drops expired refresh sessions from the database. A no-op
// when Redis holds the sessions; its keys expire on their own.
func sweepLoop(ctx context.Context, purger sessionPurger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Printf("margind: session sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("margind: purged %d expired session(s)", n)
			}
		}
	}
}
