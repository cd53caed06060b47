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

	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/config"
	"studygroup-backend/internal/database"
	"studygroup-backend/internal/handlers"
	"studygroup-backend/internal/llm"
	"studygroup-backend/internal/lock"
	"studygroup-backend/internal/metrics"
	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
	"studygroup-backend/internal/queue"
	"studygroup-backend/internal/repository"
	"studygroup-backend/internal/router"
	"studygroup-backend/internal/services"
	"studygroup-backend/internal/websocket"
	"studygroup-backend/internal/worker"
)

// app holds everything both the API and the worker need.
type app struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	redis   *database.RedisClients
	metrics *metrics.Metrics

	userRepo *repository.UserRepo
	jobRepo  *repository.JobRepo
	queue    *queue.RedisQueue

	posts    *services.PostService
	sessions *services.SessionService
	analysis *services.AnalysisService
	media    *services.MediaService
	users    *services.UserService

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	log.Println("🚀 Starting Studygroup Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	a := &app{cfg: cfg, metrics: metrics.New()}

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQL connection failed: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}
	a.redis = redisClients
	a.closers = append(a.closers, redisClients.Close)
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	applied, err := database.RunMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Printf("✓ Database migrations applied (%d new)", applied)

	// ──── Step 5: Initialize Language Model ────
	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("language model initialization failed: %w", err)
	}
	a.closers = append(a.closers, closeProvider)
	provider = llm.NewLimited(provider, cfg.LLMConcurrentReqs, a.metrics.ObserveProviderCall)
	log.Printf("✓ Language model client initialized (%s)", provider.Name())

	// ──── Initialize Repositories ────
	a.userRepo = repository.NewUserRepo(pool)
	a.jobRepo = repository.NewJobRepo(pool)
	postRepo := repository.NewPostRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	noteRepo := repository.NewNoteRepo(pool)
	mediaRepo := repository.NewMediaRepo(pool)

	// ──── Initialize Services ────
	a.queue = queue.NewRedisQueue(redisClients.Queue)
	locker := newLocker(cfg, redisClients)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	publisher := websocket.NewPublisher(redisClients.PubSub)

	a.posts = services.NewPostService(postRepo)
	a.sessions = services.NewSessionService(postRepo, sessionRepo, noteRepo, locker, a.metrics)
	a.media = services.NewMediaService(mediaRepo, provider, a.metrics, cfg.CertificateAITimeout)
	a.users = services.NewUserService(a.userRepo, a.media)
	a.analysis = services.NewAnalysisService(
		sessionRepo,
		a.jobRepo,
		a.queue,
		noteRepo,
		a.userRepo,
		provider,
		publisher,
		emailService,
		a.metrics,
		cfg.AnalysisTimeout,
	)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, func(), error) {
	switch cfg.LLMProvider {
	case "gemini":
		p, err := llm.NewGeminiProvider(ctx, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai", "groq":
		return llm.NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newLocker serialises joins across instances with redis, or within this process only.
func newLocker(cfg *config.Config, redisClients *database.RedisClients) lock.Locker {
	if cfg.SessionLock == "local" {
		return lock.NewLocal()
	}
	return lock.NewRedis(redisClients.Queue, "session_join_lock:", 10*time.Second)
}

func (a *app) workerPool() *worker.Pool {
	return worker.NewPool(
		a.queue,
		a.jobRepo,
		map[string]worker.Processor{
			models.JobTypeConversationAnalysis: a.analysis,
		},
		a.cfg.WorkerCount,
	)
}

func runServe(ctx context.Context, noWorkers bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	// ──── Step 6: Start Job Worker Pool ────
	var workerPool *worker.Pool
	if cfg.RunWorkers && !noWorkers {
		workerPool = a.workerPool()
		workerPool.Start()
		log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)
	}

	scheduler := services.NewMaintenanceScheduler(a.jobRepo, a.metrics, cfg.StaleJobAfter)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("maintenance scheduler failed to start: %w", err)
	}
	log.Println("✓ Maintenance scheduler started")

	// ──── Step 7: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(a.redis.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		a.userRepo,
		handlers.NewPostHandler(a.posts, a.sessions),
		handlers.NewSessionHandler(a.sessions, a.analysis),
		handlers.NewNoteHandler(a.sessions),
		handlers.NewMediaHandler(a.media),
		handlers.NewUserHandler(a.users),
		handlers.NewJobHandler(a.analysis),
		wsHub,
		a.metrics.Handler(),
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Certificate uploads wait on the model before responding.
		WriteTimeout: cfg.CertificateAITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		if workerPool != nil {
			workerPool.Stop()
		}
		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Studygroup Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runWorker(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	workerPool := a.workerPool()
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", a.cfg.WorkerCount)

	scheduler := services.NewMaintenanceScheduler(a.jobRepo, a.metrics, a.cfg.StaleJobAfter)
	if err := scheduler.Start(); err != nil {
		workerPool.Stop()
		return fmt.Errorf("maintenance scheduler failed to start: %w", err)
	}
	log.Println("✓ Maintenance scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	workerPool.Stop()
	scheduler.Stop()
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg := config.Load()

	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("PostgreSQL connection failed: %w", err)
	}
	defer pool.Close()

	applied, err := database.RunMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Printf("✓ %d migration(s) applied", applied)
	return nil
}
