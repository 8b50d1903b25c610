package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/dashboard"
	"github.com/immahesh111/modelerror-dashboard/internal/middleware"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the read-only dashboard API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		defer closeStore(st, a.logger)

		logger := a.logger.WithField("component", "dashboard")
		service := dashboard.NewService(st, logger)

		corsHandler := cors.New(cors.Options{
			AllowedOrigins: a.cfg.Dashboard.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		})
		handler := corsHandler.Handler(middleware.LoggingMiddleware(logger)(dashboard.NewHTTPHandler(service, logger)))

		server := &http.Server{
			Addr:         a.cfg.Dashboard.Addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.WithField("addr", server.Addr).Info("starting dashboard server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down dashboard server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("dashboard server exited")
		return nil
	},
}
