package domain

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// Поддерживаемые MIME типы
var supportedContentTypes = map[string]bool{
	"application/pdf":   true,
	"application/x-pdf": true,
}

// Маппинг расширений на MIME типы
var extToContentType = map[string]string{
	".pdf": "application/pdf",
}

// ValidateContentType проверяет поддерживается ли тип файла
func ValidateContentType(contentType string) error {
	if !supportedContentTypes[normalizeContentType(contentType)] {
		return ErrUnsupportedFileType
	}
	return nil
}

// ContentTypeFromFileName определяет MIME тип по имени файла
func ContentTypeFromFileName(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	ct, ok := extToContentType[ext]
	if !ok {
		return "", ErrUnsupportedFileType
	}
	return ct, nil
}

// IsPDF проверяет, является ли файл PDF
func IsPDF(contentType string) bool {
	return supportedContentTypes[normalizeContentType(contentType)]
}

// normalizeContentType убирает параметры типа charset
func normalizeContentType(contentType string) string {
	ct := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(ct))
}
