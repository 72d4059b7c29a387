// Package export writes analysis reports to a directory or an
// S3-compatible bucket.
package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yildizm/contractis/internal/render"
)

// Report is one exported analysis
type Report struct {
	Filename string // analyzed document
	Model    string // "type: model"
	Date     time.Time
	Content  string // analysis text as returned by the backend
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Name is the object or file name the report is stored under
func (r Report) Name() string {
	stem := strings.TrimSuffix(filepath.Base(r.Filename), filepath.Ext(r.Filename))
	stem = strings.Trim(unsafeName.ReplaceAllString(stem, "-"), "-")
	if stem == "" || stem == "." {
		stem = "contract"
	}

	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	return fmt.Sprintf("analysis-report-%s-%s.md", stem, date.Format("20060102-150405"))
}

// Markdown renders the report document
func (r Report) Markdown() []byte {
	var b bytes.Buffer

	b.WriteString("# Contract Analysis\n\n")
	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&b, "- **Date**: %s\n", date.Format("2006-01-02"))
	if r.Filename != "" {
		fmt.Fprintf(&b, "- **File**: %s\n", r.Filename)
	}
	if r.Model != "" {
		fmt.Fprintf(&b, "- **Model**: %s\n", r.Model)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(render.FormatAnalysis(r.Content))
	b.WriteString("\n")
	return b.Bytes()
}
