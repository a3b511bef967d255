package pdf

import (
	"bytes"
	"fmt"
	"image/png"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/plastinin/pagesolver/internal/usecase"
)

// baseDPI разрешение страницы PDF при масштабе 1
const baseDPI = 72.0

// Extractor открывает PDF: число страниц по структуре документа (pdfcpu), рендеринг через MuPDF (go-fitz)
type Extractor struct{}

// NewExtractor создаёт новый экстрактор
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Open разбирает документ и готовит его к рендерингу
func (e *Extractor) Open(data []byte) (usecase.Document, error) {
	if len(data) == 0 {
		return nil, domain.NewDocumentParseError("empty document", nil)
	}

	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, domain.NewDocumentParseError("failed to read page count", err)
	}
	if pageCount < 1 {
		return nil, domain.NewDocumentParseError("PDF has no pages", nil)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.NewDocumentParseError("failed to open PDF", err)
	}

	// MuPDF и pdfcpu могут разойтись на битых xref, рендерить можно только то, что видит MuPDF
	if n := doc.NumPage(); n < pageCount {
		pageCount = n
	}
	if pageCount < 1 {
		doc.Close()
		return nil, domain.NewDocumentParseError("PDF has no renderable pages", nil)
	}

	return &Document{doc: doc, pageCount: pageCount}, nil
}

// Document открытый PDF документ. Рендеринг последовательный.
type Document struct {
	mu        sync.Mutex
	doc       *fitz.Document
	pageCount int
}

// PageCount возвращает число страниц
func (d *Document) PageCount() int {
	return d.pageCount
}

// RenderPage рендерит страницу (с 1) в PNG с заданным масштабом
func (d *Document) RenderPage(pageNumber int, scale float64) ([]byte, error) {
	if pageNumber < 1 || pageNumber > d.pageCount {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrPageOutOfRange, pageNumber, d.pageCount)
	}
	if scale <= 0 {
		scale = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return nil, domain.NewDocumentParseError("document is closed", nil)
	}

	img, err := d.doc.ImageDPI(pageNumber-1, baseDPI*scale)
	if err != nil {
		return nil, domain.NewDocumentParseError(fmt.Sprintf("failed to render page %d", pageNumber), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.NewDocumentParseError(fmt.Sprintf("failed to encode page %d", pageNumber), err)
	}

	return buf.Bytes(), nil
}

// Close освобождает ресурсы MuPDF
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
