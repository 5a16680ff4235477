// Пакет errors — ответы с ошибками в едином формате datashare.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromService.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/datashare/internal/service"
)

// Коды ошибок HTTP-слоя, не связанные с сервисным слоем.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeMethodNotAllow  = "METHOD_NOT_ALLOWED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// internalMessage — сообщение для 5xx, детали остаются в логах.
const internalMessage = "Внутренняя ошибка сервера"

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// StatusFor возвращает HTTP-статус для ошибки сервисного слоя.
func StatusFor(kind service.Kind) int {
	switch kind.Category() {
	case service.CategoryClientInput:
		return http.StatusBadRequest
	case service.CategoryPolicy:
		if kind == service.KindTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case service.CategoryNotFound:
		return http.StatusNotFound
	case service.CategoryGone:
		return http.StatusGone
	case service.CategoryUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromService записывает ответ для ошибки сервисного слоя.
// Для внутренних ошибок клиент получает общее сообщение.
// Возвращает HTTP-статус, чтобы вызывающий код мог решить, логировать ли ошибку.
func FromService(w http.ResponseWriter, err error) int {
	kind := service.KindOf(err)
	status := StatusFor(kind)

	message := internalMessage
	var se *service.Error
	if status < http.StatusInternalServerError && stderrors.As(err, &se) {
		message = se.Message
	}

	WriteError(w, status, kind.Code(), message)
	return status
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// MethodNotAllowed — 405 метод не поддерживается.
func MethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllow, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
