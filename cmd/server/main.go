package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/zazaki-quiz/backend/internal/auth"
	"github.com/zazaki-quiz/backend/internal/config"
	"github.com/zazaki-quiz/backend/internal/dailyquiz"
	"github.com/zazaki-quiz/backend/internal/database"
	"github.com/zazaki-quiz/backend/internal/gamification"
	"github.com/zazaki-quiz/backend/internal/generator"
	"github.com/zazaki-quiz/backend/internal/middleware"
	"github.com/zazaki-quiz/backend/internal/notify"
	"github.com/zazaki-quiz/backend/internal/quizzes"
	"github.com/zazaki-quiz/backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Services
	notifier := notify.NewService(notify.NewStore(db))
	gamificationSvc := gamification.NewService(gamification.NewStore(db), unlockQueue(cfg.RedisURL))
	quizSvc := quizzes.NewService(quizzes.NewStore(db), gamificationSvc, cfg.Location)
	dailySvc := dailyquiz.NewService(dailyquiz.NewStore(db), notifier, dailyquiz.Options{
		Location:         cfg.Location,
		TimeLimitSeconds: cfg.DailyTimeLimitSeconds,
		LowPoolThreshold: cfg.LowPoolThreshold,
	})
	generatorSvc := generator.NewService(
		generator.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MockGenerator), quizSvc)

	// Handlers
	secret := []byte(cfg.JWTSecret)
	authStore := auth.NewStore(db)
	authHandler := auth.NewHandler(authStore, secret)
	dailyHandler := dailyquiz.NewHandler(dailySvc)
	gamificationHandler := gamification.NewHandler(gamificationSvc)
	quizHandler := quizzes.NewHandler(quizSvc)
	generatorHandler := generator.NewHandler(generatorSvc)
	notifyHandler := notify.NewHandler(notifier)

	avatarUpload := storageDisabled
	if cfg.StorageEnabled() {
		uploader := storage.NewSupabaseUploader(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		avatarHandler := storage.NewHandler(storage.NewAvatarService(uploader, storage.NewStore(db), gamificationSvc))
		avatarUpload = avatarHandler.UploadAvatar
	} else {
		log.Println("[storage] SUPABASE_URL/SUPABASE_KEY not set, avatar uploads disabled")
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging)

	// Scheduler
	cron := r.PathPrefix("/cron").Subrouter()
	cron.Use(middleware.CronSecret(cfg.CronSecret))
	cron.HandleFunc("/daily-quiz-generate", dailyHandler.Generate).Methods("POST")

	// Public routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Authenticate(secret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	protected.HandleFunc("/quizzes/daily", dailyHandler.GetDaily).Methods("GET")
	protected.HandleFunc("/quizzes/{id:[0-9]+}/attempts", quizHandler.StartAttempt).Methods("POST")
	protected.HandleFunc("/attempts/{id}/answers", quizHandler.SubmitAnswer).Methods("POST")
	protected.HandleFunc("/attempts/{id}/complete", quizHandler.CompleteAttempt).Methods("POST")
	protected.HandleFunc("/me/gamification", gamificationHandler.GetGamification).Methods("GET")
	protected.HandleFunc("/me/unlocks", gamificationHandler.GetUnlocks).Methods("GET")
	protected.HandleFunc("/me/avatar", avatarUpload).Methods("POST")
	protected.HandleFunc("/me/notifications", notifyHandler.List).Methods("GET")
	protected.HandleFunc("/me/notifications/{id}/read", notifyHandler.MarkRead).Methods("POST")

	// Admin routes
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Authenticate(secret), middleware.RequireAdmin(authStore))
	admin.HandleFunc("/daily-quiz/reset", dailyHandler.Reset).Methods("POST")
	admin.HandleFunc("/daily-quiz/status", dailyHandler.Status).Methods("GET")
	admin.HandleFunc("/maintenance/fix-xp", gamificationHandler.FixXP).Methods("POST")
	admin.HandleFunc("/badges", gamificationHandler.ListBadges).Methods("GET")
	admin.HandleFunc("/badges", gamificationHandler.CreateBadge).Methods("POST")
	admin.HandleFunc("/badges/{id}", gamificationHandler.UpdateBadge).Methods("PUT")
	admin.HandleFunc("/users/{id}/badges/reset", gamificationHandler.ResetUserBadges).Methods("POST")
	admin.HandleFunc("/questions", quizHandler.CreateQuestion).Methods("POST")
	admin.HandleFunc("/questions/pool", quizHandler.ListPool).Methods("GET")
	admin.HandleFunc("/questions/generate", generatorHandler.Generate).Methods("POST")
	admin.HandleFunc("/questions/{id}/assign", quizHandler.AssignQuestion).Methods("POST")
	admin.HandleFunc("/questions/{id}/unassign", quizHandler.UnassignQuestion).Methods("POST")
	admin.HandleFunc("/quizzes", quizHandler.CreateQuiz).Methods("POST")
	admin.HandleFunc("/quizzes/{id}", quizHandler.GetQuiz).Methods("GET")
	admin.HandleFunc("/quizzes/{id}/questions/order", quizHandler.ReorderQuestions).Methods("PUT")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"database unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Cron-Secret"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}

// unlockQueue returns a Redis-backed queue when REDIS_URL is set and
// reachable, and an in-process queue otherwise.
func unlockQueue(redisURL string) gamification.UnlockQueue {
	if redisURL == "" {
		log.Println("[gamification] REDIS_URL not set, keeping badge unlocks in memory")
		return gamification.NewMemoryUnlockQueue()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[gamification] redis unreachable (%v), keeping badge unlocks in memory", err)
		client.Close()
		return gamification.NewMemoryUnlockQueue()
	}
	return gamification.NewRedisUnlockQueue(client)
}

func storageDisabled(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"Avatar uploads are not configured"}`))
}
