package textproc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrExtraction marks an unreadable or unparseable PDF. Callers must not
// persist partial text when extraction fails.
var ErrExtraction = errors.New("pdf text extraction failed")

// ExtractText reads every page of the PDF at path and returns one cleaned
// string, pages joined by a blank line. An empty string (and nil error) means
// the file parsed but no page yielded text.
func ExtractText(path string) (string, error) {
	if err := pdfcpu.ValidateFile(path, nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return "", nil
	}
	return CleanText(strings.Join(pages, "\n\n")), nil
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes common PDF extraction artifacts: runs of horizontal
// whitespace collapse to single spaces, broken hyphenation is rejoined,
// mid-paragraph line breaks become spaces and consecutive blank lines are
// capped at one. Blank-line paragraph boundaries survive.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = horizontalSpace.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " - ", "-")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")

	paragraphs := strings.Split(text, "\n\n")
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.ReplaceAll(p, "\n", " ")
		p = strings.TrimSpace(horizontalSpace.ReplaceAllString(p, " "))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n\n")
}
