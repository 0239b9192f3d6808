package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/auth"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/config"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/database"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/events"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/logging"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/metrics"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile  string
	envFiles []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "diamond-api",
		Short: "Ananta diamond catalog service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the supplier feed once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd)
		},
	}
	syncCmd.Flags().String("feed-url", "", "Feed URL (overrides feed.url)")
	if err := viper.BindPFlag("feed.url", syncCmd.Flags().Lookup("feed-url")); err != nil {
		panic(err)
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, syncCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default .env)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("namespace", defaults.GetString("http.namespace"), "Route prefix of the read API")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL DSN")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("kafka-brokers", defaults.GetString("kafka.brokers"), "Comma separated Kafka brokers for sync reports")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.namespace", "namespace")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "kafka.brokers", "kafka-brokers")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// syncStack is the wiring shared by the server and the one-shot sync command.
type syncStack struct {
	db           *gorm.DB
	store        *diamonds.GormStore
	runs         *diamonds.GormRunRecorder
	synchronizer *diamonds.Synchronizer
	dispatcher   *events.Dispatcher
	kafka        *events.KafkaPublisher
}

func (s *syncStack) close(logger *zap.Logger) {
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func buildSyncStack(appConfig config.AppConfig, observer diamonds.SyncObserver, logger *zap.Logger) (*syncStack, error) {
	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, err
	}
	stack := &syncStack{db: db, dispatcher: events.NewDispatcher()}

	if stack.store, err = diamonds.NewGormStore(db); err != nil {
		stack.close(logger)
		return nil, err
	}
	if stack.runs, err = diamonds.NewGormRunRecorder(db); err != nil {
		stack.close(logger)
		return nil, err
	}

	notifiers := []diamonds.SyncNotifier{stack.dispatcher}
	if len(appConfig.KafkaBrokers) > 0 {
		stack.kafka, err = events.NewKafkaPublisher(events.KafkaPublisherConfig{
			Brokers: appConfig.KafkaBrokers,
			Topic:   appConfig.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			stack.close(logger)
			return nil, err
		}
		notifiers = append(notifiers, stack.kafka)
	}

	stack.synchronizer, err = diamonds.NewSynchronizer(diamonds.SynchronizerConfig{
		Store: stack.store,
		FeedClient: diamonds.NewHTTPFeedClient(diamonds.HTTPFeedClientConfig{
			Timeout:  appConfig.FeedTimeout,
			MaxBytes: appConfig.FeedMaxBytes,
		}),
		Runs:       stack.runs,
		IDProvider: diamonds.NewUUIDProvider(),
		Observer:   observer,
		Notifiers:  notifiers,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		stack.close(logger)
		return nil, err
	}
	return stack, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if logging.ParseLevel(appConfig.LogLevel) != zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.NewSyncMetrics(registry)

	stack, err := buildSyncStack(appConfig, syncMetrics, logger)
	if err != nil {
		return err
	}
	defer stack.close(logger)

	catalog, err := diamonds.NewCatalog(diamonds.CatalogConfig{Store: stack.store, Logger: logger})
	if err != nil {
		return err
	}

	nonces, err := auth.NewNonces(auth.NonceConfig{
		SigningSecret: []byte(appConfig.AdminNonceSecret),
		Issuer:        auth.NonceIssuer,
		TTL:           appConfig.AdminNonceTTL,
	})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Catalog:         catalog,
		Synchronizer:    stack.synchronizer,
		Runs:            stack.runs,
		Nonces:          nonces,
		Events:          stack.dispatcher,
		RequestObserver: syncMetrics,
		HealthCheck:     pingDatabase(stack.db),
		FeedURL:         appConfig.FeedURL,
		Namespace:       appConfig.Namespace,
		AdminUsername:   appConfig.AdminUsername,
		AdminPassword:   appConfig.AdminPassword,
		Logger:          logger,
	}
	if appConfig.MetricsEnabled {
		deps.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	if !appConfig.AdminAuthEnabled() {
		logger.Warn("admin pages are not protected by basic auth")
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("namespace", appConfig.Namespace))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSync(cmd *cobra.Command) error {
	appConfig, err := config.LoadForSync(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	stack, err := buildSyncStack(appConfig, nil, logger)
	if err != nil {
		return err
	}
	defer stack.close(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, syncErr := stack.synchronizer.Sync(ctx, appConfig.FeedURL)
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return err
	}
	return syncErr
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
