package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"remote-lab-api/internal/auth"
	"remote-lab-api/internal/config"
	"remote-lab-api/internal/database"
	"remote-lab-api/internal/handler"
	"remote-lab-api/internal/mailer"
	"remote-lab-api/internal/notify"
	"remote-lab-api/internal/ports"
	"remote-lab-api/internal/repository"
	"remote-lab-api/internal/router"
	"remote-lab-api/internal/service"
	"remote-lab-api/internal/timer"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := log.Default()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Repositories
	scheduleRepo := repository.NewScheduleRepository(db)
	computerRepo := repository.NewComputerRepository(db)
	commandRepo := repository.NewCommandRepository(db)
	userRepo := repository.NewUserRepository(db)

	// In-memory lifecycle state
	portAllocator, err := ports.NewAllocator(cfg.Lab.RDPPortMin, cfg.Lab.RDPPortMax)
	if err != nil {
		log.Fatalf("Failed to create port allocator: %v", err)
	}
	timers := timer.NewScheduler(logger)
	defer timers.Stop()

	// Event fan-out: SSE hub always, NATS mirror when configured.
	hub := notify.NewHub(logger)
	var bus notify.Bus = hub
	if cfg.NATS.URL != "" {
		natsPub, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			log.Fatalf("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)
		}
		defer natsPub.Close()
		bus = notify.NewFanout(hub, natsPub)
		logger.Printf("Mirroring events to NATS (%s)", cfg.NATS.URL)
	}

	mailClient := mailer.NewClient(mailer.Config{
		URL:            cfg.Mailer.URL,
		Timeout:        cfg.Mailer.Timeout,
		RetryAttempts:  cfg.Mailer.RetryAttempts,
		RetryDelay:     cfg.Mailer.RetryDelay,
		MaxPayloadSize: cfg.Mailer.MaxPayloadSize,
	}, logger)

	// Services
	commandSvc := service.NewCommandService(commandRepo, computerRepo, bus, logger, cfg.Lab.CommandRetention)
	scheduleSvc := service.NewScheduleService(scheduleRepo, computerRepo, commandSvc,
		portAllocator, timers, bus, mailClient, logger, cfg.Lab, cfg.Mailer.AdminEmail)

	// Rebuild timers and the port exclusion set from persisted sessions.
	if err := scheduleSvc.Recover(context.Background()); err != nil {
		log.Fatalf("Failed to recover session state: %v", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go commandSvc.RunRetentionSweeper(sweepCtx, cfg.Lab.PurgeInterval)

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)

	handlers := router.Handlers{
		Schedule: handler.NewScheduleHandler(scheduleSvc, logger),
		Computer: handler.NewComputerHandler(computerRepo, logger),
		Command:  handler.NewCommandHandler(commandSvc, logger),
		Auth:     handler.NewAuthHandler(userRepo, tokens, logger),
		Events:   handler.NewEventsHandler(hub, logger),
	}

	r := router.NewRouter(handlers, tokens, cfg, logger)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// SSE connections stay open indefinitely; per-request deadlines come
		// from the timeout middleware instead.
		WriteTimeout:   0,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %d", cfg.Port)
		log.Printf("Security: Rate limit=%d RPS, Burst=%d, CORS=%v, Timeout=%v",
			cfg.Security.RateLimitRPS,
			cfg.Security.RateLimitBurst,
			cfg.Security.EnableCORS,
			cfg.Security.RequestTimeout,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-done
	log.Println("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Security.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	} else {
		log.Println("Server exited gracefully")
	}
}
