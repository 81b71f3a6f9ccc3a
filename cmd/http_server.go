package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/account"
	accountPostgres "github.com/frahmantamala/payfast-itn/internal/account/postgres"
	"github.com/frahmantamala/payfast-itn/internal/core/events"
	"github.com/frahmantamala/payfast-itn/internal/itn"
	itnPostgres "github.com/frahmantamala/payfast-itn/internal/itn/postgres"
	"github.com/frahmantamala/payfast-itn/internal/transport"
	"github.com/frahmantamala/payfast-itn/internal/transport/rest"
	"github.com/frahmantamala/payfast-itn/internal/transport/swagger"
	"github.com/frahmantamala/payfast-itn/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives gateway notifications`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	GormDB    *gorm.DB
	Router    *chi.Mux
	EventBus  *events.EventBus
	Forwarder *events.KafkaForwarder
	Registry  *prometheus.Registry
	Logger    *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "itn_path", deps.Config.ITN.Path)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.EventBus.Drain(ctx); err != nil {
			deps.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
		if deps.Forwarder != nil {
			if err := deps.Forwarder.Close(); err != nil {
				deps.Logger.Error("Kafka writer close error", "error", err)
			}
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config

	if _, err := swagger.Load(context.Background()); err != nil {
		return err
	}

	source, err := itn.NewSourceValidator(cfg.ITN.AllowedNetworks)
	if err != nil {
		return fmt.Errorf("allowed networks: %w", err)
	}
	if source.Permissive() {
		deps.Logger.Warn("no allowed networks configured, source address checks are disabled")
	}

	signer := itn.NewSigner(cfg.ITN.Passphrase)
	if !signer.Configured() {
		deps.Logger.Warn("no passphrase configured, signatures will not be evaluated")
	}

	confirmer := itn.NewHTTPConfirmer(itn.ConfirmerConfig{
		ValidateURL:         cfg.ITN.ValidateURL,
		Timeout:             cfg.ITN.ConfirmTimeout,
		BreakerMaxRequests:  cfg.ITN.Breaker.MaxRequests,
		BreakerInterval:     cfg.ITN.Breaker.Interval,
		BreakerTimeout:      cfg.ITN.Breaker.Timeout,
		BreakerMinRequests:  cfg.ITN.Breaker.MinRequests,
		BreakerFailureRatio: cfg.ITN.Breaker.FailureRatio,
	}, deps.Logger)

	ledger := itnPostgres.NewLedger(deps.GormDB, deps.Logger)

	accountService := account.NewService(accountPostgres.NewAccountRepository(deps.GormDB))
	account.NewEventHandler(accountService, ledger, deps.Logger).RegisterEventHandlers(deps.EventBus)

	if deps.Forwarder != nil {
		deps.Forwarder.Register(deps.EventBus, events.EventTypeTransactionRecorded)
	}

	service := itn.NewService(itn.ServiceDeps{
		Signer:     signer,
		Confirmer:  confirmer,
		Source:     source,
		Ledger:     ledger,
		Publisher:  deps.EventBus,
		Metrics:    itn.NewMetrics(deps.Registry),
		Logger:     deps.Logger,
		MerchantID: cfg.ITN.MerchantID,
	})

	baseHandler := transport.NewBaseHandler(deps.Logger)
	itnHandler := itn.NewHandler(baseHandler, service, cfg.ITN.MaxBodyBytes)

	routerDeps := rest.RouterDeps{
		DB:                deps.DB.DB,
		ITNHandler:        itnHandler,
		ITNPath:           cfg.ITN.Path,
		TrustForwardedFor: cfg.ITN.TrustForwardedFor,
		Logger:            deps.Logger,
	}
	if cfg.Observability.Metrics.Enabled {
		routerDeps.MetricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
		routerDeps.MetricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, routerDeps)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		GormDB:   gormDB,
		Router:   chi.NewRouter(),
		EventBus: events.NewEventBus(lg),
		Registry: registry,
	}

	if config.Events.Kafka.Enabled {
		writer := events.NewKafkaWriter(config.Events.Kafka.Brokers, config.Events.Kafka.Topic)
		deps.Forwarder = events.NewKafkaForwarder(writer, lg)
		lg.Info("forwarding ledger events to kafka",
			"brokers", config.Events.Kafka.Brokers,
			"topic", config.Events.Kafka.Topic)
	}

	return deps, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm. TranslateError maps unique
// violations to gorm.ErrDuplicatedKey, which the ledger retries on.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}
