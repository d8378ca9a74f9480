package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wabridge/internal/adapters/http/router"
	"wabridge/internal/adapters/repository"
	"wabridge/internal/adapters/sink"
	"wabridge/internal/adapters/waclient"
	"wabridge/internal/core/account"
	"wabridge/internal/services"
	"wabridge/internal/services/shared/validation"
	"wabridge/platform/config"
	"wabridge/platform/database"
	"wabridge/platform/logger"
)

// Container é o container principal de Dependency Injection
type Container struct {
	// Platform dependencies
	config   *config.Config
	logger   *logger.Logger
	database *database.Database

	// Core
	manager *account.Manager

	// Application services
	accountService *services.AccountService

	// Adapters
	accountRepo account.Repository
	waContainer *sqlstore.Container
}

// Config estrutura de configuração para o container
type Config struct {
	AppConfig *config.Config
	Logger    *logger.Logger
	Database  *database.Database
}

// New cria uma nova instância do container
func New(cfg *Config) (*Container, error) {
	container := &Container{
		config:   cfg.AppConfig,
		logger:   cfg.Logger,
		database: cfg.Database,
	}

	if err := container.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	cfg.Logger.Info("Dependency injection container initialized successfully")
	return container, nil
}

// initialize inicializa todos os componentes
func (c *Container) initialize() error {
	c.logger.Debug("Initializing container...")

	// 1. Repositório de contas
	c.accountRepo = repository.NewAccountRepository(c.database.DB)

	// 2. Armazenamento de credenciais whatsmeow
	waContainer, err := c.createWhatsAppContainer()
	if err != nil {
		return fmt.Errorf("failed to create WhatsApp container: %w", err)
	}
	c.waContainer = waContainer

	// 3. Fábrica de adapters
	qrGenerator := waclient.NewQRGenerator(c.logger, c.config.WhatsApp.QRInTerminal)
	factory := waclient.NewFactory(waContainer, c.accountRepo, c.logger, qrGenerator)

	// 4. Sinks externos
	statusSink := sink.NewStatusSink(c.config.StatusURL(), c.config.Sink.WebhookSecret, c.logger)
	webhookSink := sink.NewWebhookSink(c.config.WebhookURL(), c.config.Sink.WebhookSecret, c.logger)
	mediaFetcher := sink.NewHTTPMediaFetcher(c.logger)

	// 5. Manager
	c.manager = account.NewManager(
		factory,
		c.accountRepo,
		statusSink,
		webhookSink,
		mediaFetcher,
		c.logger,
		account.ManagerConfig{
			TeardownGrace: c.config.WhatsApp.TeardownGrace,
			QRTTL:         account.DefaultManagerConfig().QRTTL,
		},
	)

	// 6. Validator e serviço de aplicação
	validator := validation.New()
	c.accountService = services.NewAccountService(c.manager, validator, c.logger)

	c.logger.Debug("Container initialized successfully")
	return nil
}

// createWhatsAppContainer prepara o sqlstore do whatsmeow sobre a mesma
// conexão da aplicação
func (c *Container) createWhatsAppContainer() (*sqlstore.Container, error) {
	waContainer := sqlstore.NewWithDB(c.database.DB.DB, c.config.Database.Driver, waLog.Noop)
	if waContainer == nil {
		return nil, fmt.Errorf("sqlstore.NewWithDB returned nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := waContainer.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade whatsmeow schema: %w", err)
	}

	return waContainer, nil
}

// ===== MÉTODOS PÚBLICOS =====

// GetConfig retorna a configuração da aplicação
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger retorna o logger da aplicação
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase retorna a instância do banco de dados
func (c *Container) GetDatabase() *database.Database {
	return c.database
}

// GetManager retorna o gerenciador de contas
func (c *Container) GetManager() *account.Manager {
	return c.manager
}

// GetAccountService retorna o service de contas
func (c *Container) GetAccountService() *services.AccountService {
	return c.accountService
}

// ===== LIFECYCLE METHODS =====

// Start sobe os componentes e restaura as contas persistidas
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("Starting container components...")

	if err := c.manager.RestoreAll(ctx); err != nil {
		c.logger.ErrorWithFields("Failed to restore persisted accounts", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.logger.Info("Container components started successfully")
	return nil
}

// Stop para todos os componentes gracefully
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("Stopping container components...")

	c.manager.Stop()

	if err := c.database.Close(); err != nil {
		c.logger.ErrorWithFields("Failed to close database connection", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.logger.Info("Container components stopped successfully")
	return nil
}

// Handler retorna um handler HTTP completo com todas as rotas
func (c *Container) Handler() http.Handler {
	return router.SetupRoutes(c.config, c.logger, c.accountService)
}
