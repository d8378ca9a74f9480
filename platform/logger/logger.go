package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wabridge/platform/config"
)

// Logger wrapper para zerolog com funcionalidades específicas do wabridge
type Logger struct {
	logger zerolog.Logger
	config config.LogConfig
}

// New cria um novo logger baseado na configuração
func New(cfg config.LogConfig) *Logger {
	cfg = validateLogConfig(cfg)

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		writer = os.Stderr
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}

	return &Logger{
		logger: ctx.Logger(),
		config: cfg,
	}
}

// NewFromAppConfig cria logger a partir da configuração da aplicação
func NewFromAppConfig(appConfig *config.Config) *Logger {
	return New(appConfig.Log)
}

// WithModule cria um novo logger com módulo específico
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", module).Logger(),
		config: l.config,
	}
}

// WithAccount adiciona ID da conta ao contexto
func (l *Logger) WithAccount(accountID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("account_id", accountID).Logger(),
		config: l.config,
	}
}

// WithError adiciona erro ao contexto
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		logger: l.logger.With().Err(err).Logger(),
		config: l.config,
	}
}

// WithFields adiciona múltiplos campos ao contexto
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
		config: l.config,
	}
}

// ===== MÉTODOS DE LOGGING =====

// Debug registra mensagem de debug
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Debugf registra mensagem de debug formatada
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// DebugWithFields registra mensagem de debug com campos
func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Debug()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Info registra mensagem informativa
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof registra mensagem informativa formatada
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// InfoWithFields registra mensagem informativa com campos
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Warn registra mensagem de aviso
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Warnf registra mensagem de aviso formatada
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// WarnWithFields registra mensagem de aviso com campos
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Warn()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Error registra mensagem de erro
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Errorf registra mensagem de erro formatada
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// ErrorWithFields registra mensagem de erro com campos
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Error()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Fatal registra mensagem fatal e termina aplicação
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// ===== MÉTODOS UTILITÁRIOS =====

// GetZerologLogger retorna logger zerolog subjacente
func (l *Logger) GetZerologLogger() zerolog.Logger {
	return l.logger
}

// IsDebugEnabled verifica se debug está habilitado
func (l *Logger) IsDebugEnabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

// ===== FUNÇÕES AUXILIARES =====

// parseLogLevel converte string para zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// validateLogConfig valida e corrige configuração de log
func validateLogConfig(cfg config.LogConfig) config.LogConfig {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "disabled": true,
	}
	if !validLevels[strings.ToLower(cfg.Level)] {
		cfg.Level = "info"
	}

	if cfg.Format != "console" && cfg.Format != "json" {
		cfg.Format = "json"
	}

	if cfg.Output != "stdout" && cfg.Output != "stderr" {
		cfg.Output = "stdout"
	}

	return cfg
}

// ===== CONFIGURAÇÕES PRÉ-DEFINIDAS =====

// DevelopmentConfig retorna configuração para desenvolvimento
func DevelopmentConfig() config.LogConfig {
	return config.LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "stdout",
		Caller: true,
	}
}

// TestConfig retorna configuração para testes
func TestConfig() config.LogConfig {
	return config.LogConfig{
		Level:  "disabled",
		Format: "json",
		Output: "stdout",
		Caller: false,
	}
}
