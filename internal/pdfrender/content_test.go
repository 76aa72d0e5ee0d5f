package pdfrender

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocumentContentRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-pdf.txt")
	if err := os.WriteFile(path, []byte("plain text, no pdf header"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadDocumentContent(path); err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}

func TestLoadDocumentContentMissingFile(t *testing.T) {
	if _, err := loadDocumentContent(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
