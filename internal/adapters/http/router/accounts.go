package router

import (
	"github.com/go-chi/chi/v5"

	"wabridge/internal/adapters/http/handler"
	"wabridge/internal/services"
	"wabridge/platform/logger"
)

// setupAccountRoutes configura as rotas da Control API de contas
func setupAccountRoutes(r *chi.Mux, accountService *services.AccountService, log *logger.Logger) {
	accountHandler := handler.NewAccountHandler(accountService, log)

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/initialize", accountHandler.Initialize)
		r.Post("/send", accountHandler.Send)
		r.Post("/disconnect", accountHandler.Disconnect)
		r.Get("/status", accountHandler.StatusAll)
		r.Get("/{accountId}/status", accountHandler.StatusOne)
	})
}
