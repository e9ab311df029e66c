// Command capture-server runs a local PostHog-compatible capture endpoint
// that keeps every received event in memory.
//
// Usage:
//
//	capture-server [flags]
//
// Flags:
//
//	-port      Port to listen on (default: 8010)
//	-host      Host to bind to (default: localhost)
//	-api-key   Require this api_key on every request (default: $POSTHOG_API_KEY)
//	-max       Maximum number of events kept (default: 100000)
//	-debug     Log every request
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hogsim/internal/capture"
	"hogsim/internal/logging"
)

func main() {
	port := flag.Int("port", 8010, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	apiKey := flag.String("api-key", os.Getenv("POSTHOG_API_KEY"), "api_key required on every request")
	maxEvents := flag.Int("max", 100_000, "maximum number of events kept")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	logger, err := logging.New(logging.Config{Debug: *debug, Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}
	server := capture.NewServer(capture.Config{APIKey: *apiKey, MaxEvents: *maxEvents, Logger: logger})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("HogSim Capture Server")
	fmt.Println("=====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health        - Health check")
	fmt.Println("  POST   /capture/      - Capture one event")
	fmt.Println("  POST   /i/v0/e/       - Capture one event")
	fmt.Println("  POST   /batch/        - Capture a batch of events")
	fmt.Println("  GET    /api/events    - List events (?event=&distinct_id=&limit=)")
	fmt.Println("  DELETE /api/events    - Delete all events")
	fmt.Println("  GET    /api/stats     - Counts by event name")
	fmt.Println()

	srv := &http.Server{Addr: addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
	st := server.Stats()
	logger.Info("stopped", zap.Int("received", st.Received), zap.Int("stored", st.Stored), zap.Int("rejected", st.Rejected))
}
