package middleware

import (
	"net/http"
	"time"

	"wabridge/platform/logger"
)

// responseWriter wrapper para capturar status code e tamanho da resposta
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captura status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captura tamanho da resposta
func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// HTTPLogger middleware para logging de requisições HTTP
func HTTPLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"query":       r.URL.RawQuery,
				"status_code": ww.statusCode,
				"duration_ms": duration.Milliseconds(),
				"size_bytes":  ww.size,
				"ip":          getClientIP(r),
				"user_agent":  r.Header.Get("User-Agent"),
			}

			message := "HTTP request processed"
			switch {
			case ww.statusCode >= 500:
				log.ErrorWithFields(message, fields)
			case ww.statusCode >= 400:
				log.WarnWithFields(message, fields)
			default:
				if r.URL.Path == "/health" {
					log.DebugWithFields(message, fields)
				} else {
					log.InfoWithFields(message, fields)
				}
			}
		})
	}
}
