package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"wabridge/internal/adapters/http/shared"
	"wabridge/platform/config"
	"wabridge/platform/logger"
)

// APIKeyAuth middleware para autenticação via API key.
// Sem API key configurada, a autenticação é desligada.
func APIKeyAuth(cfg *config.Config, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if cfg.Security.APIKey == "" || isPublicRoute(path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := extractAPIKey(r)
			if apiKey == "" {
				log.WarnWithFields("Missing API key", map[string]interface{}{
					"path":   path,
					"method": r.Method,
					"ip":     getClientIP(r),
				})
				writeUnauthorizedResponse(w, "API key is required. Provide it via Authorization header or X-API-Key header", "MISSING_API_KEY")
				return
			}

			if apiKey != cfg.Security.APIKey {
				log.WarnWithFields("Invalid API key", map[string]interface{}{
					"path":    path,
					"method":  r.Method,
					"ip":      getClientIP(r),
					"api_key": maskAPIKey(apiKey),
				})
				writeUnauthorizedResponse(w, "Invalid API key", "INVALID_API_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isPublicRoute verifica se a rota é pública (não requer autenticação)
func isPublicRoute(path string) bool {
	publicRoutes := []string{
		"/health",
	}

	for _, route := range publicRoutes {
		if strings.HasPrefix(path, route) {
			return true
		}
	}

	return false
}

// extractAPIKey extrai API key dos headers da requisição
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.Header.Get("X-API-Key")
}

// writeUnauthorizedResponse escreve resposta de não autorizado
func writeUnauthorizedResponse(w http.ResponseWriter, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	response := shared.ErrorResponse{
		Success: false,
		Error:   "Unauthorized",
		Code:    code,
		Details: message,
	}

	_ = json.NewEncoder(w).Encode(response)
}

// maskAPIKey mascara API key para logs
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}

	return apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
}

// getClientIP extrai IP do cliente considerando proxies
func getClientIP(r *http.Request) string {
	headers := []string{
		"X-Forwarded-For",
		"X-Real-IP",
		"X-Client-IP",
	}

	for _, header := range headers {
		ip := r.Header.Get(header)
		if ip != "" {
			if strings.Contains(ip, ",") {
				ip = strings.TrimSpace(strings.Split(ip, ",")[0])
			}
			return ip
		}
	}

	return r.RemoteAddr
}
