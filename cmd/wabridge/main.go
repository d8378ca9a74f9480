package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/platform/config"
	"wabridge/platform/container"
	"wabridge/platform/database"
	"wabridge/platform/logger"
)

const (
	appName    = "wabridge"
	appVersion = "1.0.0"
)

func main() {
	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Carregar configuração
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Inicializar logger
	log := logger.NewFromAppConfig(cfg)
	log.InfoWithFields("Starting wabridge application", map[string]interface{}{
		"version":     appVersion,
		"environment": cfg.Environment,
		"port":        cfg.Server.Port,
	})

	// Inicializar banco de dados
	log.Info("Initializing database connection...")
	db, err := database.NewFromAppConfig(cfg, log)
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to initialize database: %v", err))
	}
	defer func() { _ = db.Close() }()

	// Executar migrações se habilitado
	if cfg.Database.AutoMigrate {
		log.Info("Running database migrations...")
		migrator := database.NewMigrator(db, log)
		if err := migrator.RunMigrations(); err != nil {
			log.Fatal(fmt.Sprintf("Failed to run migrations: %v", err))
		}
	}

	// Inicializar container de DI
	log.Info("Initializing dependency injection container...")
	diContainer, err := container.New(&container.Config{
		AppConfig: cfg,
		Logger:    log,
		Database:  db,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to initialize DI container: %v", err))
	}

	// Restaurar contas persistidas e subir componentes
	if err := diContainer.Start(ctx); err != nil {
		log.Fatal(fmt.Sprintf("Failed to start container components: %v", err))
	}

	// Configurar servidor HTTP
	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      diContainer.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)

	go func() {
		log.InfoWithFields("Starting HTTP server", map[string]interface{}{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case sig := <-sigChan:
		log.InfoWithFields("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errChan:
		log.ErrorWithFields("Application error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Graceful shutdown
	log.Info("Initiating graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithFields("Error shutting down HTTP server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := diContainer.Stop(shutdownCtx); err != nil {
		log.ErrorWithFields("Error stopping container components", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Application shutdown completed successfully")
}

// printBanner exibe o banner da aplicação
func printBanner() {
	banner := `
 ██╗    ██╗ █████╗ ██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗
 ██║    ██║██╔══██╗██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝
 ██║ █╗ ██║███████║██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗
 ██║███╗██║██╔══██║██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝
 ╚███╔███╔╝██║  ██║██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗
  ╚══╝╚══╝ ╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝

 Multi-tenant WhatsApp connectivity layer
 Version: %s`

	fmt.Printf(banner+"\n\n", appVersion)
}
