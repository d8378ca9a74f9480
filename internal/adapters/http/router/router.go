package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wabridge/internal/services"
	"wabridge/platform/config"
	"wabridge/platform/logger"
)

// SetupRoutes configura todas as rotas da aplicação
func SetupRoutes(cfg *config.Config, log *logger.Logger, accountService *services.AccountService) http.Handler {
	r := chi.NewRouter()

	setupMiddlewares(r, cfg, log)
	setupHealthRoutes(r)
	setupAccountRoutes(r, accountService, log)

	return r
}

// setupHealthRoutes configura rotas de health check
func setupHealthRoutes(r *chi.Mux) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"wabridge","version":"1.0.0"}`))
	})
}
