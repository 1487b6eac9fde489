package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presencehub/crypto"
	"presencehub/infrastructure/ws"
	"presencehub/internal"
	"presencehub/push"
	"presencehub/repositories"
	"presencehub/runtime"
	"presencehub/runtime/workers"
	"presencehub/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Collaborators
	box, err := crypto.NewBox([]byte(config.MessageSecret))
	if err != nil {
		return fmt.Errorf("message cipher init failed: %w", err)
	}
	publisher, err := push.New(ctx, push.ConnectionOptions{
		URL:           config.BrokerURL,
		Exchange:      config.PushExchange,
		RetryAttempts: config.BrokerRetryAttempts,
		Delay:         config.BrokerRetryDelay,
	}, log)
	if err != nil {
		return fmt.Errorf("push broker connection failed: %w", err)
	}
	defer publisher.Close()

	messageRepository := repositories.NewMessageRepository(db, log)
	notificationRepository := repositories.NewNotificationRepository(db)
	scheduleRepository := repositories.NewScheduleRepository(db)
	directory := repositories.NewUserDirectory(db)

	// 5. Presence, services, workers
	registry := runtime.NewRegistry(log)
	outbox := workers.NewPushOutbox(log, publisher, config.BufferSize)

	messageService := services.NewMessageService(
		log, messageRepository, registry, registry, box, directory, outbox)
	notificationService := services.NewNotificationService(
		log, notificationRepository, scheduleRepository, registry, registry, directory, outbox)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(outbox)
	sup.Add(workers.NewReaper(log, registry, config.ReaperInterval))
	sup.Add(workers.NewScheduler(log, scheduleRepository,
		notificationService.DeliverScheduled, config.SchedulerInterval))
	go sup.Run(ctx)

	// 6. Transport
	hub := ws.NewHub(log, registry, func(conn *ws.Client) *runtime.Session {
		return runtime.NewSession(log, registry, directory, conn)
	}, messageService, config.ConnectionBufferSize)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
