package dto

import "net/http"

// ErrorResponse ответ с ошибкой
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewErrorResponse создаёт ответ с ошибкой, текст статуса берётся из net/http
func NewErrorResponse(status int, code string, message string) *ErrorResponse {
	if code == "" {
		code = http.StatusText(status)
	}
	return &ErrorResponse{
		Status:  status,
		Error:   code,
		Message: message,
	}
}
