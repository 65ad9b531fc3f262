/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll calculation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build the regulation's script controller
  4. Create the payrun job runner and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: payroll.db)
             Use ":memory:" for in-memory database
  -canton    Company canton code (default: ZH)
  -drain     Retro job drain interval (default: 1h, 0 disables)
  -log-level Log level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the retro job drain
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database, Geneva company
  ./server -db=":memory:" -canton=GE

SEE ALSO:
  - api/server.go: Router configuration
  - api/runner.go: Payrun job runner
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "payroll.db", "SQLite database path")
	canton := flag.String("canton", "ZH", "company canton code")
	drain := flag.Duration("drain", time.Hour, "retro job drain interval (0 disables)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Build the regulation's script controller
	controller, err := factory.BuildController(factory.DefaultSwissRegulation())
	if err != nil {
		log.WithError(err).Fatal("failed to build regulation")
	}

	company := &payroll.Company{ID: "default", Name: "Default Company", Canton: *canton}
	national := &payroll.National{Currency: "CHF"}

	// Payrun job runner with background retro drain
	runner := api.NewRunner(store, controller, company, national)
	runner.Log = log
	runner.DrainInterval = *drain
	runner.Start()
	defer runner.Stop()

	// Router and server
	handler := api.NewHandler(store, runner)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}
