package app

import (
	"strings"
	"unicode/utf8"

	"timed-quiz-bot/internal/domain"
)

// DefaultPageChars is the page size used when none is configured.
const DefaultPageChars = 900

const emptyTheoryPage = "(theory text is not configured yet)"

// TheoryBook serves the configured theory text as fixed-size pages, split on
// paragraph boundaries with a hard-wrap fallback for oversized paragraphs.
type TheoryBook struct {
	pages []string
}

func NewTheoryBook(text string, maxChars int) *TheoryBook {
	if maxChars <= 0 {
		maxChars = DefaultPageChars
	}
	return &TheoryBook{pages: paginate(text, maxChars)}
}

// PageCount returns the number of pages; always at least 1.
func (t *TheoryBook) PageCount() int {
	return len(t.pages)
}

// Page returns the page at index, clamped into range.
func (t *TheoryBook) Page(page int) domain.TheoryPage {
	if page < 0 {
		page = 0
	}
	if page > len(t.pages)-1 {
		page = len(t.pages) - 1
	}
	return domain.TheoryPage{Page: page, Pages: len(t.pages), Text: t.pages[page]}
}

func paginate(text string, maxChars int) []string {
	s := strings.TrimSpace(text)
	if s == "" {
		return []string{emptyTheoryPage}
	}

	var paragraphs []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	// Page sizes count characters, not bytes: the theory body is expected
	// to contain non-ASCII text.
	var pages []string
	buf := ""
	for _, p := range paragraphs {
		candidate := p
		if buf != "" {
			candidate = buf + "\n\n" + p
		}
		if utf8.RuneCountInString(candidate) <= maxChars {
			buf = candidate
			continue
		}
		if buf != "" {
			pages = append(pages, buf)
			buf = ""
		}
		// Hard-wrap a paragraph that cannot fit a page on its own.
		runes := []rune(p)
		for len(runes) > maxChars {
			pages = append(pages, string(runes[:maxChars]))
			runes = runes[maxChars:]
		}
		buf = string(runes)
	}
	if buf != "" {
		pages = append(pages, buf)
	}
	return pages
}
