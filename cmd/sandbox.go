package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payfast-itn/internal/sandbox"
	"github.com/frahmantamala/payfast-itn/internal/transport"
	"github.com/frahmantamala/payfast-itn/internal/transport/middleware"
	"github.com/frahmantamala/payfast-itn/pkg/logger"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Start a local gateway simulator",
	Long: `Start a local gateway that signs notifications, posts them to the
receiver through a worker pool and answers validate queries for them.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSandbox()
	},
}

var (
	sandboxPort    int
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
	notifyURL      string
)

func startSandbox() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	defaultNotifyURL := config.Sandbox.NotifyURL
	if defaultNotifyURL == "" {
		defaultNotifyURL = fmt.Sprintf("http://localhost:%d%s", config.Server.Port, config.ITN.Path)
	}

	// Use command line flags if provided, otherwise use config values
	gatewayConfig := sandbox.Config{
		NotifyURL:       getStringFlag(notifyURL, defaultNotifyURL),
		MerchantID:      config.ITN.MerchantID,
		Passphrase:      config.ITN.Passphrase,
		DeliveryTimeout: config.Sandbox.DeliveryTimeout,
		MaxAttempts:     config.Sandbox.MaxAttempts,
		MaxWorkers:      getIntFlag(maxWorkers, config.Sandbox.MaxWorkers),
		JobQueueSize:    getIntFlag(jobQueueSize, config.Sandbox.JobQueueSize),
		WorkerPoolSize:  getIntFlag(workerPoolSize, config.Sandbox.WorkerPoolSize),
	}
	port := getIntFlag(sandboxPort, config.Sandbox.Port)

	lg.Info("starting sandbox gateway",
		"port", port,
		"notify_url", gatewayConfig.NotifyURL,
		"max_workers", gatewayConfig.MaxWorkers,
		"job_queue_size", gatewayConfig.JobQueueSize)

	gateway := sandbox.NewGateway(gatewayConfig, lg)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(lg))
	router.Use(middleware.RecoveryMiddleware(lg))
	sandbox.NewHandler(transport.NewBaseHandler(lg), gateway).Routes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down sandbox", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("sandbox server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		lg.Error("sandbox server shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		gateway.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("sandbox worker pool shutdown complete", "stats", gateway.Stats())
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sandboxCmd.Flags().IntVar(&sandboxPort, "port", 0, "Port for the sandbox HTTP server")
	sandboxCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of delivery workers")
	sandboxCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Size of the delivery queue")
	sandboxCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Size of the worker pool")
	sandboxCmd.Flags().StringVar(&notifyURL, "notify-url", "", "Receiver URL notifications are posted to")

	rootCmd.AddCommand(sandboxCmd)
}
