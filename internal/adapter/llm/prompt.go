package llm

import (
	"fmt"
	"strings"

	"github.com/plastinin/pagesolver/internal/domain"
)

// detailInstructions указания по объёму ответа для каждого уровня детализации
var detailInstructions = map[domain.DetailLevel]string{
	domain.DetailBrief:    "Give only the final answer for each question, with at most one line of working.",
	domain.DetailStandard: "Give the answer for each question with a short explanation of the key steps.",
	domain.DetailDetailed: "Give a complete step-by-step solution for each question and explain the reasoning behind every step.",
}

const basePrompt = `You are an expert tutor solving an exam booklet from scanned page images.

INSTRUCTIONS:
1. Read every question visible on the page(s), including sub-questions
2. Keep the original question numbering
3. Write each solution in Markdown, use LaTeX ($...$) for formulas
4. If a question continues from a previous page or onto the next one, solve the visible part and say so
5. If a page has no questions (cover, instructions, blank), reply with a one-line description of the page
6. Return ONLY the solutions, no preamble`

// buildPagePrompt формирует промпт для одной страницы
func buildPagePrompt(pageNumber, totalPages int, detail domain.DetailLevel) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\nDETAIL LEVEL: ")
	sb.WriteString(detailInstruction(detail))
	fmt.Fprintf(&sb, "\n\nThis is page %d of %d of the booklet. Solve the questions on this page.", pageNumber, totalPages)
	return sb.String()
}

// buildDocumentPrompt формирует промпт для документа целиком
func buildDocumentPrompt(pageCount int, detail domain.DetailLevel) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\nDETAIL LEVEL: ")
	sb.WriteString(detailInstruction(detail))
	fmt.Fprintf(&sb, "\n\nThe booklet has %d page(s), attached in order. Solve all questions in the booklet.", pageCount)
	return sb.String()
}

func detailInstruction(detail domain.DetailLevel) string {
	if s, ok := detailInstructions[detail]; ok {
		return s
	}
	return detailInstructions[domain.DetailStandard]
}

// cleanResponse убирает markdown-обёртку, которую модели иногда добавляют вокруг ответа
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") && len(response) > 6 {
		response = strings.TrimPrefix(response, "```markdown")
		response = strings.TrimPrefix(response, "```md")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}

// classifyStatus классифицирует HTTP статус удалённого сервиса
func classifyStatus(status int) domain.TransformErrorKind {
	switch {
	case status == 429:
		return domain.TransformRateLimited
	case status == 408 || status >= 500:
		return domain.TransformTransient
	default:
		return domain.TransformFatal
	}
}

// classifyResponse классифицирует ответ с ошибкой по статусу и тексту.
// Квоты часто приходят с 403/400/503, поэтому текст проверяется всегда.
func classifyResponse(status int, message string) domain.TransformErrorKind {
	kind := classifyStatus(status)
	if kind != domain.TransformRateLimited && domain.ClassifyMessage(message) == domain.TransformRateLimited {
		return domain.TransformRateLimited
	}
	return kind
}
