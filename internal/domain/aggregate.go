package domain

import (
	"fmt"
	"sort"
	"strings"
)

// PageSeparator разделитель страниц в итоговом тексте
const PageSeparator = "\n\n---\n\n"

// PageHeader заголовок страницы в итоговом тексте
func PageHeader(pageNumber int) string {
	return fmt.Sprintf("## Page %d", pageNumber)
}

// PageErrorNotice текст на месте страницы, которую не удалось обработать
func PageErrorNotice(pageNumber int, errMsg string) string {
	return fmt.Sprintf("> Error processing page %d: %s", pageNumber, errMsg)
}

// Aggregate собирает итоговый текст из страниц в порядке возрастания номера.
// Страницы, не дошедшие до финального статуса, пропускаются.
func Aggregate(pages []*PageTask) string {
	done := make([]*PageTask, 0, len(pages))
	for _, p := range pages {
		if p.Status.IsFinal() {
			done = append(done, p)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].PageNumber < done[j].PageNumber
	})

	entries := make([]string, 0, len(done))
	for _, p := range done {
		body := p.Result
		if p.Status == PageStatusError {
			body = PageErrorNotice(p.PageNumber, p.Error)
		}
		entries = append(entries, PageHeader(p.PageNumber)+"\n\n"+strings.TrimSpace(body))
	}

	return strings.Join(entries, PageSeparator)
}

// Summarize собирает итог задания
func Summarize(pages []*PageTask, cancelled bool) Result {
	r := Result{
		CombinedText: Aggregate(pages),
		Cancelled:    cancelled,
	}
	for _, p := range pages {
		switch p.Status {
		case PageStatusCompleted:
			r.Completed++
		case PageStatusError:
			r.Failed++
		default:
			r.Pending++
		}
	}
	return r
}
