package document

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestOpenRejectsNonPDF(t *testing.T) {
	tests := []string{"notes.txt", "contract.docx", "scan.png", "README"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Open(writeFile(t, name, []byte("hello")))
			if !errors.Is(err, ErrNotPDF) {
				t.Fatalf("Expected ErrNotPDF, got %v", err)
			}
			if f == nil || f.IsPDF() {
				t.Errorf("Expected file info with non-PDF type, got %+v", f)
			}
		})
	}
}

func TestOpenPDF(t *testing.T) {
	data := Sample("CONTRATO DE ARRENDAMIENTO", "Clausula segunda")
	path := writeFile(t, "Contract.PDF", data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if f.Name != "Contract.PDF" {
		t.Errorf("Expected name Contract.PDF, got %s", f.Name)
	}
	if !f.IsPDF() {
		t.Errorf("Expected PDF content type, got %s", f.ContentType)
	}
	if f.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), f.Size)
	}
	if f.Pages != 2 {
		t.Errorf("Expected 2 pages, got %d", f.Pages)
	}

	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open reader failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, _ := io.ReadAll(rc)
	if len(got) != len(data) {
		t.Errorf("Expected %d bytes, got %d", len(data), len(got))
	}
}

func TestOpenDeclaredTypeOnly(t *testing.T) {
	// Declared type wins even when the bytes are not a readable PDF
	f, err := Open(writeFile(t, "broken.pdf", []byte("not really a pdf")))
	if err != nil {
		t.Fatalf("Expected broken.pdf to be accepted, got %v", err)
	}
	if f.Pages != 0 {
		t.Errorf("Expected unknown page count, got %d", f.Pages)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.pdf")); err == nil || errors.Is(err, ErrNotPDF) {
		t.Errorf("Expected stat error, got %v", err)
	}
}

func TestExtractTextPageCount(t *testing.T) {
	_, pages, err := ExtractText(Sample("one", "two", "three"))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}

	if _, _, err := ExtractText([]byte("garbage")); err == nil {
		t.Error("Expected error for non-PDF data")
	}
}
