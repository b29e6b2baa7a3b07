package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	mdCodeFence = regexp.MustCompile("(?s)```.*?```")
	mdInline    = regexp.MustCompile("[*_`#>]+")
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
)

// extractMarkdown strips markdown syntax for cleaner semantic content.
func (e *Extractor) extractMarkdown(path string) string {
	raw := e.extractText(path)
	if raw == "" {
		return ""
	}

	clean := mdCodeFence.ReplaceAllStringFunc(raw, func(block string) string {
		return strings.Trim(block, "`")
	})
	clean = mdImage.ReplaceAllString(clean, "$1")
	clean = mdLink.ReplaceAllString(clean, "$1")
	clean = htmlTag.ReplaceAllString(clean, "")
	clean = mdInline.ReplaceAllString(clean, "")
	return clean
}

// csvSampleRows bounds how much of a CSV is rendered for embedding.
const csvSampleRows = 200

// extractCSV renders a CSV's header and a sample of rows as text.
func (e *Extractor) extractCSV(path string) string {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Error("csv extraction failed", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err != io.EOF {
			e.logger.Error("csv extraction failed", "path", path, "error", err)
		}
		return ""
	}

	var rows [][]string
	for len(rows) < csvSampleRows {
		rec, err := r.Read()
		if err != nil {
			break
		}
		rows = append(rows, rec)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(header, ", "))
	fmt.Fprintf(&b, "Rows: %d\n", len(rows))
	b.WriteString("Sample data:\n")
	for i, rec := range rows {
		if i >= 10 {
			break
		}
		b.WriteString(strings.Join(rec, ", "))
		b.WriteByte('\n')
	}
	return b.String()
}
