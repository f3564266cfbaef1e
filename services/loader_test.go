package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFilePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored-name")
	if err := os.WriteFile(path, []byte("plain text content"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	docs, err := LoadFile(path, "notes.txt")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].PageContent != "plain text content" {
		t.Errorf("unexpected content %q", docs[0].PageContent)
	}
	if docs[0].Metadata["name"] != "notes.txt" || docs[0].Metadata["source"] != "notes.txt" {
		t.Errorf("expected filename metadata, got %v", docs[0].Metadata)
	}
}

func TestLoadFileLegacyExcelRejected(t *testing.T) {
	_, err := LoadFile("/nonexistent/book.xls", "book.xls")
	if err == nil {
		t.Fatal("expected error for legacy .xls upload")
	}
	if !strings.Contains(err.Error(), ".xlsx") {
		t.Errorf("expected conversion hint in error, got %q", err.Error())
	}
}

func TestLoadFileHTMLStripsMarkup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page")
	html := `<html><head><style>body{color:red}</style></head>` +
		`<body><script>alert(1)</script><p>visible text</p></body></html>`
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	docs, err := LoadFile(path, "page.html")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	content := docs[0].PageContent
	if !strings.Contains(content, "visible text") {
		t.Errorf("expected body text, got %q", content)
	}
	if strings.Contains(content, "alert") || strings.Contains(content, "color:red") {
		t.Errorf("expected script and style content stripped, got %q", content)
	}
}
