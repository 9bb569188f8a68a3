// main.go
// FormKeeper survey backend - composition root.
// Wires the connection initializer, the readiness-gated store proxy, the
// configuration verifier, and the session cleanup loop, then serves the
// admin and session APIs.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formkeeper/auth"
	"formkeeper/cleanup"
	"formkeeper/config"
	"formkeeper/db"
	"formkeeper/handlers"
	"formkeeper/middleware"
	"formkeeper/models"
	"formkeeper/verify"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	// Load configuration
	cfg := config.Load()
	cfg.Validate()

	log.Printf("🚀 Starting FormKeeper API Server")
	log.Printf("📍 Environment: %s", cfg.Server.Environment)
	log.Printf("🔧 Port: %s", cfg.Server.Port)

	// Establish the backend connection exactly once, with bounded retries.
	// Everything downstream reaches the store through the readiness-gated
	// proxy, so nothing can race the initialization.
	ctx := context.Background()
	initializer := db.NewInitializer(ctx, db.FirestoreConnect(cfg))
	if err := initializer.RetryInitialization(cfg.Backend.MaxRetryAttempts, cfg.Backend.RetryBaseDelay); err != nil {
		log.Fatalf("❌ Failed to initialize backend: %v", err)
	}
	defer initializer.Close()

	store := db.NewProxy(initializer)
	log.Printf("✅ Backend store ready")

	// Initialize JWT Manager
	jwtManager := auth.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.Expiration,
		cfg.JWT.RefreshTokenExpiration,
	)
	log.Printf("🔐 JWT Manager initialized (expiration: %v)", cfg.JWT.Expiration)

	// Configuration verifier: run one silent pass at startup so instance
	// activation state converges with the current catalogs.
	verifier := verify.NewVerifier(store)
	go func() {
		summary, err := verifier.VerifyConfigs(true)
		if err != nil {
			log.Printf("⚠️  Startup verification failed: %v", err)
			return
		}
		log.Printf("✅ Startup verification: %d/%d configs valid, %d reactivated, %d deactivated",
			summary.ValidConfigs, summary.TotalConfigs, summary.Reactivated, summary.Deactivated)
	}()

	// Session cleanup loop; only started now that the connection is ready.
	cleanupSvc := cleanup.NewService(store, cfg.Cleanup.SessionTimeout, cfg.Cleanup.SweepInterval, cfg.Cleanup.BatchSize)
	cleanupSvc.Start()
	defer cleanupSvc.Stop()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(store, jwtManager)
	adminHandler := handlers.NewAdminHandler(store, verifier, cleanupSvc)
	catalogHandler := handlers.NewCatalogHandler(store)
	sessionHandler := handlers.NewSessionHandler(store)
	log.Printf("✅ Handlers initialized")

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters()
	log.Printf("🛡️  Rate limiter initialized (%d requests per %v)", cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Set up router
	mux := http.NewServeMux()

	// Public routes (no authentication required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","ready":%t,"timestamp":%d}`, initializer.Ready(), time.Now().Unix())
	})
	mux.HandleFunc("/api/login", authHandler.Login)
	mux.HandleFunc("/api/refresh", authHandler.RefreshToken)

	// Session lifecycle (public, rate-limited like everything else)
	mux.HandleFunc("/api/sessions/start", sessionHandler.StartSession)
	mux.HandleFunc("/api/sessions/heartbeat", sessionHandler.Heartbeat)
	mux.HandleFunc("/api/sessions/complete", sessionHandler.CompleteSession)
	mux.HandleFunc("/api/sessions/abandon", sessionHandler.AbandonSession)

	// Protected routes (authentication required)
	authMiddleware := middleware.AuthMiddleware(jwtManager, store)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	editorOrAdmin := middleware.RequireRole(models.RoleEditor, models.RoleAdmin)

	// Config and instance management (editor or admin)
	mux.Handle("/api/admin/configs", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.GetConfigs))))
	mux.Handle("/api/admin/configs/create", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.CreateConfig))))
	mux.Handle("/api/admin/configs/update", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.UpdateConfig))))
	mux.Handle("/api/admin/configs/delete", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.DeleteConfig))))
	mux.Handle("/api/admin/instances", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.GetInstances))))
	mux.Handle("/api/admin/instances/create", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.CreateInstance))))
	mux.Handle("/api/admin/instances/update", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.UpdateInstance))))
	mux.Handle("/api/admin/instances/delete", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.DeleteInstance))))
	mux.Handle("/api/admin/instances/activate", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.ActivateInstance))))
	mux.Handle("/api/admin/instances/deactivate", authMiddleware(editorOrAdmin(http.HandlerFunc(adminHandler.DeactivateInstance))))

	// Option-set catalogs (editor or admin)
	mux.Handle("/api/admin/optionsets", authMiddleware(editorOrAdmin(http.HandlerFunc(catalogHandler.GetOptionSets))))
	mux.Handle("/api/admin/optionsets/create", authMiddleware(editorOrAdmin(http.HandlerFunc(catalogHandler.CreateOptionSet))))
	mux.Handle("/api/admin/optionsets/update", authMiddleware(editorOrAdmin(http.HandlerFunc(catalogHandler.UpdateOptionSet))))
	mux.Handle("/api/admin/optionsets/delete", authMiddleware(editorOrAdmin(http.HandlerFunc(catalogHandler.DeleteOptionSet))))

	// Verification and cleanup (admin only)
	mux.Handle("/api/admin/verify", authMiddleware(adminOnly(http.HandlerFunc(adminHandler.VerifyConfigs))))
	mux.Handle("/api/admin/cleanup", authMiddleware(adminOnly(http.HandlerFunc(adminHandler.RunCleanup))))
	mux.Handle("/api/admin/cleanup/stats", authMiddleware(adminOnly(http.HandlerFunc(adminHandler.CleanupStats))))

	// Apply global middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := corsHandler.Handler(mux)
	handler = rateLimiter.Middleware()(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
