// Package document describes the file a user selected for analysis.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for files whose declared type is not PDF
var ErrNotPDF = errors.New("file is not a PDF")

// MaxSize matches the backend upload limit
const MaxSize = 10 * 1024 * 1024

// File is a selected input file. It is never persisted.
type File struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
	Pages       int // 0 when the page count could not be determined
}

// Open inspects the file at path. The declared type comes from the file
// extension, the same way a browser labels a picked file.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f := &File{
		Name:        filepath.Base(path),
		Path:        path,
		ContentType: DeclaredType(path),
		Size:        info.Size(),
	}
	if !f.IsPDF() {
		return f, ErrNotPDF
	}

	f.Pages = countPages(path, info.Size())
	return f, nil
}

// DeclaredType returns the MIME type implied by the file name
func DeclaredType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// IsPDF reports whether the declared type indicates PDF content
func (f *File) IsPDF() bool {
	return f != nil && strings.Contains(strings.ToLower(f.ContentType), "pdf")
}

// FileName is the name sent with uploads
func (f *File) FileName() string {
	return f.Name
}

// Open returns a reader over the file contents
func (f *File) Open() (io.ReadCloser, error) {
	// #nosec G304 - path was chosen by the user
	return os.Open(f.Path)
}

func countPages(path string, size int64) int {
	// #nosec G304 - path was chosen by the user
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer func() { _ = file.Close() }()

	r, err := pdf.NewReader(file, size)
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// ExtractText returns the plain text of every readable page
func ExtractText(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}

	return strings.TrimSpace(text.String()), numPages, nil
}
