package usecase

import (
	"io"

	"github.com/plastinin/pagesolver/internal/domain"
)

// CreateJobInput входные данные для создания задания
type CreateJobInput struct {
	FileName    string             // Имя файла
	ContentType string             // MIME тип
	FileSize    int64              // Размер файла
	FileReader  io.Reader          // Содержимое файла
	DetailLevel domain.DetailLevel // Уровень детализации ответа
}

// PageRequest запрос на преобразование одной страницы
type PageRequest struct {
	Image       []byte // PNG страницы
	PageNumber  int
	TotalPages  int
	DetailLevel domain.DetailLevel
}

// DocumentRequest запрос на преобразование документа целиком
type DocumentRequest struct {
	Document    []byte   // Исходный файл
	ContentType string   // MIME тип исходного файла
	Pages       [][]byte // PNG всех страниц по порядку
	DetailLevel domain.DetailLevel
}
