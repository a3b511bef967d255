package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки домена
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidJobStatus   = errors.New("invalid job status")
	ErrInvalidPageStatus  = errors.New("invalid page status")
	ErrEmptyFileKey       = errors.New("file key cannot be empty")
	ErrInvalidDetailLevel = errors.New("invalid detail level")

	// ErrDocumentParse документ повреждён или не поддерживается, обработка невозможна
	ErrDocumentParse = errors.New("document parse error")
	// ErrPageOutOfRange номер страницы вне диапазона 1..PageCount
	ErrPageOutOfRange = errors.New("page number out of range")
)

// TransformErrorKind класс ошибки удалённого преобразования
type TransformErrorKind string

const (
	TransformRateLimited TransformErrorKind = "rate_limited" // Превышен лимит запросов или квота
	TransformTransient   TransformErrorKind = "transient"    // Временная ошибка (сеть, 5xx)
	TransformFatal       TransformErrorKind = "fatal"        // Ошибка, повтор которой не поможет
)

// TransformError ошибка удалённого вызова, классифицированная на границе адаптера
type TransformError struct {
	Kind    TransformErrorKind
	Message string
	Err     error
}

func (e *TransformError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// NewTransformError создаёт классифицированную ошибку преобразования
func NewTransformError(kind TransformErrorKind, err error) *TransformError {
	te := &TransformError{Kind: kind, Err: err}
	if err != nil {
		te.Message = err.Error()
	}
	return te
}

// rateLimitSignifiers признаки превышения лимитов в тексте ошибки
var rateLimitSignifiers = []string{
	"429",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"quota",
	"too many requests",
	"resource exhausted",
	"resource_exhausted",
}

// ClassifyMessage определяет класс ошибки по тексту сообщения.
// Используется только для ошибок, которые адаптер не классифицировал сам.
func ClassifyMessage(msg string) TransformErrorKind {
	lower := strings.ToLower(msg)
	for _, s := range rateLimitSignifiers {
		if strings.Contains(lower, s) {
			return TransformRateLimited
		}
	}
	return TransformFatal
}

// ClassifyTransformError возвращает класс ошибки удалённого вызова
func ClassifyTransformError(err error) TransformErrorKind {
	if err == nil {
		return ""
	}
	var te *TransformError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ClassifyMessage(err.Error())
}

// IsRateLimited проверяет, вызвана ли ошибка превышением лимита запросов
func IsRateLimited(err error) bool {
	return ClassifyTransformError(err) == TransformRateLimited
}

// NewDocumentParseError оборачивает причину в ErrDocumentParse
func NewDocumentParseError(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrDocumentParse, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrDocumentParse, msg, cause)
}
