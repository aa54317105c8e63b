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

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"github.com/QuoteArtHQ/quoteart-backend/internal/autopost"
	"github.com/QuoteArtHQ/quoteart-backend/internal/handlers"
	"github.com/QuoteArtHQ/quoteart-backend/internal/media"
	"github.com/QuoteArtHQ/quoteart-backend/internal/middleware"
	"github.com/QuoteArtHQ/quoteart-backend/internal/quotes"
	"github.com/QuoteArtHQ/quoteart-backend/internal/render"
	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
	"github.com/QuoteArtHQ/quoteart-backend/internal/social"
	"github.com/QuoteArtHQ/quoteart-backend/internal/workers"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Root context for background workers and graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Run migrations on startup
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to init migration driver: %v", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Database migration failed: %v", err)
	}
	log.Println("Database is up-to-date")

	// The runner shared by the cron endpoints and the periodic workers.
	runner := &autopost.Runner{
		DB:     db,
		Quotes: quotes.NewProvider(),
		Render: render.QuoteImage,
		Media:  media.NewUploaderFromEnv(),
		Social: social.NewClient(),
		Policy: retry.DefaultPolicy(),
	}

	h := handlers.New(db, runner)
	runner.Notify = h

	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health).Methods("GET")

	// User endpoints
	r.HandleFunc("/api/users", h.CreateUser).Methods("POST")
	r.HandleFunc("/api/users/{id}", h.GetUser).Methods("GET")
	r.HandleFunc("/api/users/{id}", h.UpdateUser).Methods("PUT")

	// Social connections endpoints
	r.HandleFunc("/api/social-connections", h.CreateSocialConnection).Methods("POST")
	r.HandleFunc("/api/social-connections/user/{userId}", h.GetUserSocialConnections).Methods("GET")
	r.HandleFunc("/api/social-connections/{id}", h.DeleteSocialConnection).Methods("DELETE")

	// Auto-post campaign endpoints
	r.HandleFunc("/api/campaigns", h.CreateCampaign).Methods("POST")
	r.HandleFunc("/api/campaigns/user/{userId}", h.GetUserCampaigns).Methods("GET")
	r.HandleFunc("/api/campaigns/{id}", h.UpdateCampaign).Methods("PUT")
	r.HandleFunc("/api/campaigns/{id}", h.DeleteCampaign).Methods("DELETE")

	// Scheduled post endpoints
	r.HandleFunc("/api/scheduled-posts", h.CreateScheduledPost).Methods("POST")
	r.HandleFunc("/api/scheduled-posts/user/{userId}", h.ListScheduledPosts).Methods("GET")
	r.HandleFunc("/api/scheduled-posts/{id}", h.GetScheduledPost).Methods("GET")
	r.HandleFunc("/api/scheduled-posts/{id}", h.UpdateScheduledPost).Methods("PUT")
	r.HandleFunc("/api/scheduled-posts/{id}/cancel", h.CancelScheduledPost).Methods("POST")

	// Metrics
	r.HandleFunc("/api/metrics/platforms/user/{userId}", h.GetPlatformMetrics).Methods("GET")

	// Cron entrypoints (the in-process workers call the same sweeps)
	r.HandleFunc("/api/cron/auto-post", h.AutoPostCron).Methods("GET")
	r.HandleFunc("/api/cron/scheduled-posts", h.ScheduledPostsCron).Methods("GET")
	r.HandleFunc("/api/cron/run-auto-post", h.RunAutoPostLegacy).Methods("GET")

	// Realtime events (internal, proxied by the frontend worker)
	r.HandleFunc("/api/events/ws", h.EventsWebSocket)

	handlers.RegisterBillingRoutes(h, r)

	// Tier limits on campaign / scheduled post creation
	enforcer := middleware.NewSubscriptionEnforcer(db)

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(enforcer.Middleware(r))

	port := os.Getenv("PORT")
	if port == "" {
		port = "18911"
	}

	srv := &http.Server{
		Handler:      handler,
		Addr:         ":" + port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	// Handle graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Background: auto-post and scheduled-post sweeps, gated independently
	interval := envInterval("AUTOPOST_WORKER_INTERVAL_SECONDS", time.Minute)
	if envEnabled("AUTO_POST_ENABLED") {
		go runner.StartCampaignWorker(rootCtx, interval)
	} else {
		log.Printf("[AutoPost] campaign worker disabled via AUTO_POST_ENABLED=%q", os.Getenv("AUTO_POST_ENABLED"))
	}
	if envEnabled("SCHEDULED_POSTS_ENABLED") {
		go runner.StartScheduledPostsWorker(rootCtx, interval)
	} else {
		log.Printf("[ScheduledPosts] worker disabled via SCHEDULED_POSTS_ENABLED=%q", os.Getenv("SCHEDULED_POSTS_ENABLED"))
	}

	// Background: prune old publish results
	go (&workers.ResultsCleanupWorker{DB: db}).Start(rootCtx)

	go func() {
		<-stop
		log.Println("Shutting down server...")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

// envEnabled treats unset and "true" as on; anything else disables.
func envEnabled(name string) bool {
	v := os.Getenv(name)
	return v == "" || v == "true"
}

func envInterval(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
