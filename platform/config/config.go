package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config configuração completa da aplicação
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Log         LogConfig
	Sink        SinkConfig
	WhatsApp    WhatsAppConfig
	Security    SecurityConfig
}

// ServerConfig configuração do servidor HTTP
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

// DatabaseConfig configuração do banco de dados
// A URL também é usada pelo sqlstore do whatsmeow (credenciais das sessões)
type DatabaseConfig struct {
	URL             string
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	AutoMigrate     bool
}

// LogConfig configuração de logging
type LogConfig struct {
	Level  string
	Format string
	Output string
	Caller bool
}

// SinkConfig endpoints externos do CRM (webhook de mensagens e status)
type SinkConfig struct {
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
}

// WhatsAppConfig ajustes do adaptador whatsmeow
type WhatsAppConfig struct {
	LogLevel      string
	QRInTerminal  bool
	TeardownGrace time.Duration
}

// SecurityConfig autenticação da API de controle
type SecurityConfig struct {
	APIKey string
}

// Load carrega configuração a partir do ambiente (.env é opcional)
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env ausente não é erro
		_ = err
	}

	cfg := &Config{
		Environment: getEnv("WB_ENV", "development"),
		Server: ServerConfig{
			Host:         getEnv("WB_HOST", "0.0.0.0"),
			Port:         getEnvInt("WB_PORT", 8080),
			ReadTimeout:  getEnvInt("WB_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("WB_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvInt("WB_IDLE_TIMEOUT", 120),
		},
		Database: DatabaseConfig{
			URL:             getEnv("WB_DATABASE_URL", "file:wabridge.db?_foreign_keys=on"),
			MaxOpenConns:    getEnvInt("WB_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("WB_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("WB_DB_CONN_MAX_LIFETIME", 300),
			AutoMigrate:     getEnvBool("WB_DB_AUTO_MIGRATE", true),
		},
		Log: LogConfig{
			Level:  getEnv("WB_LOG_LEVEL", "info"),
			Format: getEnv("WB_LOG_FORMAT", "console"),
			Output: getEnv("WB_LOG_OUTPUT", "stdout"),
			Caller: getEnvBool("WB_LOG_CALLER", false),
		},
		Sink: SinkConfig{
			BaseURL:       getEnv("WB_CRM_BASE_URL", "http://localhost:3000"),
			WebhookSecret: getEnv("WB_WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(getEnvInt("WB_SINK_TIMEOUT", 30)) * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			LogLevel:      getEnv("WB_WA_LOG_LEVEL", "INFO"),
			QRInTerminal:  getEnvBool("WB_WA_QR_TERMINAL", true),
			TeardownGrace: time.Duration(getEnvInt("WB_WA_TEARDOWN_GRACE_MS", 1000)) * time.Millisecond,
		},
		Security: SecurityConfig{
			APIKey: getEnv("WB_API_KEY", ""),
		},
	}

	cfg.Database.Driver = driverForURL(cfg.Database.URL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate verifica valores obrigatórios e consistência
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Sink.BaseURL == "" {
		return fmt.Errorf("CRM base URL is required")
	}

	if !strings.HasPrefix(c.Sink.BaseURL, "http://") && !strings.HasPrefix(c.Sink.BaseURL, "https://") {
		return fmt.Errorf("CRM base URL must start with http:// or https://")
	}

	return nil
}

// GetServerAddress retorna endereço de escuta do servidor HTTP
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WebhookURL endpoint do CRM para envelopes de mensagens
func (c *Config) WebhookURL() string {
	return strings.TrimSuffix(c.Sink.BaseURL, "/") + "/api/whatsapp/webhook"
}

// StatusURL endpoint do CRM para atualizações de status
func (c *Config) StatusURL() string {
	return strings.TrimSuffix(c.Sink.BaseURL, "/") + "/api/whatsapp/status"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// driverForURL escolhe driver SQL a partir do formato da URL
// postgres:// usa lib/pq; DSNs file: caem no sqlite3 (desenvolvimento)
func driverForURL(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
