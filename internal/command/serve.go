package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fixunreads/internal/handlers"
	"fixunreads/internal/middleware"
)

const (
	adminRequestsPerSecond = 1
	adminBurst             = 5
	limiterIdle            = time.Hour
	shutdownTimeout        = 10 * time.Second
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin repair API",
		Long: `Serve an HTTP API that repairs one user per request.

  GET  /health             store connectivity
  POST /api/admin/repair   {"email", "realm", "apply_pre_marker", "dry_run"}

Repair requests need "Authorization: Bearer $ADMIN_TOKEN".`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("port", "", "port to listen on (default: $PORT or 8080)")
	cmd.Flags().Bool("apply-pre-marker", false, "default for requests that do not set apply_pre_marker")
	cmd.Flags().Bool("dry-run", false, "default for requests that do not set dry_run")
	cmd.Flags().Bool("explain", false, "log the query plan of every analysis query")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer a.Close()

	if a.cfg.AdminToken == "" {
		return writeCommandError(cmd, errors.New("ADMIN_TOKEN must be set to serve the admin API"))
	}

	port := a.cfg.Port
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	if os.Getenv("GAE_ENV") == "standard" || os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	runner, repairer := a.newRunner(a.repairOptions(cmd))
	h := handlers.NewRepairHandler(runner, repairer, a.db, a.log)

	limiter := middleware.NewRateLimiter(rate.Limit(adminRequestsPerSecond), adminBurst, limiterIdle)
	done := make(chan struct{})
	defer close(done)
	go limiter.Run(limiterIdle/4, done)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handlers.NewRouter(h, a.cfg.AdminToken, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("port", port))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return writeCommandError(cmd, fmt.Errorf("server failed: %w", err))
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return writeCommandError(cmd, fmt.Errorf("shutdown failed: %w", err))
	}
	return nil
}
