package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // driver PostgreSQL
	_ "github.com/mattn/go-sqlite3" // driver sqlite (desenvolvimento)

	"wabridge/platform/config"
	"wabridge/platform/logger"
)

// Database wrapper para sqlx.DB com funcionalidades específicas
type Database struct {
	*sqlx.DB
	config config.DatabaseConfig
	logger *logger.Logger
}

// New cria nova conexão com banco de dados
func New(cfg config.DatabaseConfig, log *logger.Logger) (*Database, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		DB:     db,
		config: cfg,
		logger: log,
	}, nil
}

// NewFromAppConfig cria database a partir da configuração da aplicação
func NewFromAppConfig(appConfig *config.Config, log *logger.Logger) (*Database, error) {
	return New(appConfig.Database, log)
}

// Close fecha conexão com banco de dados
func (d *Database) Close() error {
	d.logger.InfoWithFields("Closing database connection", map[string]interface{}{
		"module": "database",
	})
	return d.DB.Close()
}

// Health verifica saúde da conexão
func (d *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return d.PingContext(ctx)
}

// GetConfig retorna configuração do banco
func (d *Database) GetConfig() config.DatabaseConfig {
	return d.config
}

// Stats retorna estatísticas do pool de conexões
func (d *Database) Stats() sql.DBStats {
	return d.DB.Stats()
}
