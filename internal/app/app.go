// Package app wires configuration, database, repositories and the delivery
// services into a runnable worker process.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Postroom/postroom/config"
	"github.com/Postroom/postroom/internal/database"
	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/internal/repository"
	"github.com/Postroom/postroom/internal/service/listener"
	"github.com/Postroom/postroom/internal/service/queue"
	"github.com/Postroom/postroom/internal/service/webhook"
	"github.com/Postroom/postroom/pkg/logger"
	"github.com/Postroom/postroom/pkg/smtpclient"
)

// App encapsulates the application dependencies and configuration
type App struct {
	config *config.Config
	logger logger.Logger
	db     *sql.DB

	// Repositories
	messageRepo       domain.MessageRepository
	apiKeyRepo        domain.APIKeyRepository
	suppressionRepo   domain.SuppressionRepository
	sendingDomainRepo domain.SendingDomainRepository
	webhookRepo       domain.WebhookRepository
	deliveryRepo      domain.WebhookDeliveryRepository

	// Services
	smtpClient *smtpclient.Client
	sender     queue.EmailSender
	worker     *queue.Worker
	dispatcher *webhook.Dispatcher
	pgListener *listener.Listener
}

// AppOption defines a functional option for configuring the App
type AppOption func(*App)

// WithMockDB configures the app to use a mock database
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

// WithMockSender configures the app to use a mock email sender
func WithMockSender(s queue.EmailSender) AppOption {
	return func(a *App) {
		a.sender = s
	}
}

// WithLogger sets a custom logger
func WithLogger(log logger.Logger) AppOption {
	return func(a *App) {
		a.logger = log
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	app := &App{
		config: cfg,
		logger: logger.NewLoggerWithLevel(cfg.LogLevel),
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// InitDB connects to Postgres and ensures the schema and notify triggers
// exist. Skipped when a mock database was injected.
func (a *App) InitDB() error {
	if a.db != nil {
		return nil
	}

	db, err := database.Connect(a.config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.InitializeDatabase(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	a.db = db
	a.logger.Info("Database initialized")
	return nil
}

// InitRepositories initializes all repositories
func (a *App) InitRepositories() error {
	if a.db == nil {
		return fmt.Errorf("database must be initialized before repositories")
	}

	a.messageRepo = repository.NewMessageRepository(a.db)
	a.apiKeyRepo = repository.NewAPIKeyRepository(a.db)
	a.suppressionRepo = repository.NewSuppressionRepository(a.db)
	a.sendingDomainRepo = repository.NewSendingDomainRepository(a.db, a.config.SecretKey)
	a.webhookRepo = repository.NewWebhookRepository(a.db, a.config.SecretKey)
	a.deliveryRepo = repository.NewWebhookDeliveryRepository(a.db)

	return nil
}

// InitServices initializes the SMTP client, the worker, the webhook
// dispatcher and the notification listener.
func (a *App) InitServices() error {
	if a.sender == nil {
		a.smtpClient = smtpclient.NewClient(smtpclient.Config{
			Host:           a.config.SMTP.Host,
			Port:           a.config.SMTP.Port,
			Username:       a.config.SMTP.Username,
			Password:       a.config.SMTP.Password,
			UseTLS:         a.config.SMTP.UseTLS,
			MaxConnections: a.config.SMTP.MaxConnections,
			SystemDomain:   a.config.SystemDomain,
		}, a.logger)
		a.sender = a.smtpClient
	}

	workerConfig := queue.DefaultWorkerConfig()
	workerConfig.Concurrency = a.config.Worker.Concurrency
	workerConfig.PollInterval = a.config.Worker.PollInterval
	workerConfig.MaxRetries = a.config.Worker.MaxRetries
	workerConfig.RetryDelay = a.config.Worker.RetryDelay
	workerConfig.VisibilityTimeout = a.config.Worker.VisibilityTimeout
	workerConfig.SystemDomain = a.config.SystemDomain

	a.worker = queue.NewWorker(
		a.messageRepo,
		a.apiKeyRepo,
		a.suppressionRepo,
		a.sendingDomainRepo,
		a.webhookRepo,
		a.deliveryRepo,
		a.sender,
		workerConfig,
		a.logger,
	)

	dispatcherConfig := webhook.DefaultDispatcherConfig()
	dispatcherConfig.MaxRetries = a.config.Webhook.MaxRetries
	dispatcherConfig.RequestTimeout = a.config.Webhook.RequestTimeout
	dispatcherConfig.PollInterval = a.config.Worker.PollInterval

	a.dispatcher = webhook.NewDispatcher(a.deliveryRepo, a.webhookRepo, dispatcherConfig, a.logger)

	a.pgListener = listener.NewListener(a.config.DatabaseURL, a.logger)
	a.pgListener.Subscribe(listener.ChannelMessageQueued, func(string) {
		a.worker.Wake()
	})
	a.pgListener.Subscribe(listener.ChannelWebhookPending, func(string) {
		a.dispatcher.Wake()
	})

	return nil
}

// Initialize sets up all components of the application
func (a *App) Initialize() error {
	a.logger.WithField("version", a.config.Version).Info("Starting Postroom worker")

	if err := a.InitDB(); err != nil {
		return err
	}
	if err := a.InitRepositories(); err != nil {
		return err
	}
	if err := a.InitServices(); err != nil {
		return err
	}

	a.logger.Info("Application successfully initialized")
	return nil
}

// Start brings up the worker, the webhook dispatcher and the notification
// listener. The listener is an optimization: if it fails to start, delivery
// continues on the polling safety net alone.
func (a *App) Start(ctx context.Context) error {
	if a.smtpClient != nil {
		verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.smtpClient.Verify(verifyCtx); err != nil {
			a.logger.WithField("error", err.Error()).Warn("SMTP relay verification failed, continuing anyway")
		}
		cancel()
	}

	g := new(errgroup.Group)
	g.Go(func() error { return a.worker.Start(ctx) })
	g.Go(func() error { return a.dispatcher.Start(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	if err := a.pgListener.Start(ctx); err != nil {
		a.logger.WithField("error", err.Error()).Warn("Postgres listener failed to start, relying on polling")
	}

	return nil
}

// Shutdown stops accepting new work and waits for in-flight deliveries,
// bounded by the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Starting graceful shutdown...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Stop the wake-up source first so nothing nudges the workers while
		// they drain.
		if a.pgListener != nil {
			a.pgListener.Stop()
		}
		if a.worker != nil {
			a.worker.Stop()
		}
		if a.dispatcher != nil {
			a.dispatcher.Stop()
		}
		if a.smtpClient != nil {
			a.smtpClient.Close()
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout reached, abandoning in-flight work")
		return fmt.Errorf("shutdown timeout exceeded")
	}

	if a.db != nil {
		a.logger.Info("Closing database connection")
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	a.logger.Info("Graceful shutdown completed")
	return nil
}

// GetConfig returns the app's configuration
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetLogger returns the app's logger
func (a *App) GetLogger() logger.Logger {
	return a.logger
}

// GetDB returns the app's database connection
func (a *App) GetDB() *sql.DB {
	return a.db
}

// Repository getters for testing
func (a *App) GetMessageRepository() domain.MessageRepository {
	return a.messageRepo
}

func (a *App) GetAPIKeyRepository() domain.APIKeyRepository {
	return a.apiKeyRepo
}

func (a *App) GetSuppressionRepository() domain.SuppressionRepository {
	return a.suppressionRepo
}

func (a *App) GetSendingDomainRepository() domain.SendingDomainRepository {
	return a.sendingDomainRepo
}

func (a *App) GetWebhookRepository() domain.WebhookRepository {
	return a.webhookRepo
}

func (a *App) GetWebhookDeliveryRepository() domain.WebhookDeliveryRepository {
	return a.deliveryRepo
}

// GetWorker returns the message worker
func (a *App) GetWorker() *queue.Worker {
	return a.worker
}

// GetDispatcher returns the webhook dispatcher
func (a *App) GetDispatcher() *webhook.Dispatcher {
	return a.dispatcher
}
