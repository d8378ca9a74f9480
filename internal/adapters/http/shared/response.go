package shared

import (
	"encoding/json"
	"net/http"

	"wabridge/platform/logger"
)

// SuccessResponse estrutura padrão para respostas de sucesso
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Success bool        `json:"success"`
}

// ErrorResponse estrutura padrão para respostas de erro
type ErrorResponse struct {
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Success bool        `json:"success"`
}

// HealthResponse resposta para health check
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// ResponseWriter utilitário para escrever respostas HTTP
type ResponseWriter struct {
	logger *logger.Logger
}

// NewResponseWriter cria nova instância do response writer
func NewResponseWriter(logger *logger.Logger) *ResponseWriter {
	return &ResponseWriter{
		logger: logger,
	}
}

// WriteSuccess escreve resposta de sucesso
func (rw *ResponseWriter) WriteSuccess(w http.ResponseWriter, data interface{}, message ...string) {
	rw.writeJSON(w, http.StatusOK, NewSuccessResponse(data, message...))
}

// WriteError escreve resposta de erro
func (rw *ResponseWriter) WriteError(w http.ResponseWriter, statusCode int, message string, details ...interface{}) {
	rw.writeJSON(w, statusCode, NewErrorResponse(message, details...))
}

// WriteBadRequest escreve resposta de bad request (400)
func (rw *ResponseWriter) WriteBadRequest(w http.ResponseWriter, message string, details ...interface{}) {
	rw.WriteError(w, http.StatusBadRequest, message, details...)
}

// WriteNotFound escreve resposta de não encontrado (404)
func (rw *ResponseWriter) WriteNotFound(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusNotFound, message)
}

// WriteServiceUnavailable escreve resposta de indisponibilidade (503)
func (rw *ResponseWriter) WriteServiceUnavailable(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusServiceUnavailable, message)
}

// WriteInternalError escreve resposta de erro interno (500)
func (rw *ResponseWriter) WriteInternalError(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusInternalServerError, message)
}

// writeJSON escreve resposta JSON
func (rw *ResponseWriter) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		rw.logger.ErrorWithFields("Failed to encode JSON response", map[string]interface{}{
			"error":       err.Error(),
			"status_code": statusCode,
		})
	}
}

// NewSuccessResponse cria nova resposta de sucesso
func NewSuccessResponse(data interface{}, message ...string) *SuccessResponse {
	response := &SuccessResponse{
		Success: true,
		Data:    data,
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	return response
}

// NewErrorResponse cria nova resposta de erro
func NewErrorResponse(message string, details ...interface{}) *ErrorResponse {
	response := &ErrorResponse{
		Success: false,
		Error:   message,
	}

	if len(details) > 0 {
		response.Details = details[0]
	}

	return response
}
