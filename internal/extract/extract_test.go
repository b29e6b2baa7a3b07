package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsSupported(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/root/notes.txt", true},
		{"/root/paper.pdf", true},
		{"/root/readme.md", true},
		{"/root/main.go", true},
		{"/root/data.csv", true},
		{"/root/Makefile", true},
		{"/root/Dockerfile", true},
		{"/root/.gitignore", true},
		{"/root/.hidden", false},
		{"/root/archive.zip", false},
		{"/root/photo.png", false},
		{"/root/binary", false},
	}

	for _, tc := range cases {
		if got := IsSupported(tc.path); got != tc.want {
			t.Errorf("IsSupported(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestExtract_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dog.txt")
	content := "the dog barks loudly at night"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	res, err := e.Extract(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != content {
		t.Errorf("expected text %q, got %q", content, res.Text)
	}
	if res.WordCount != 6 {
		t.Errorf("expected 6 words, got %d", res.WordCount)
	}
	if res.PageCount != 1 {
		t.Errorf("expected 1 page, got %d", res.PageCount)
	}
	if res.FileType != "txt" {
		t.Errorf("expected file type txt, got %q", res.FileType)
	}
	if res.ContentHash == "" {
		t.Error("expected non-empty content hash")
	}
	if res.SizeBytes != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), res.SizeBytes)
	}
}

func TestExtract_HashStableForUnextractableFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	res, err := e.Extract(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "" {
		t.Errorf("expected empty text for pdf, got %q", res.Text)
	}
	if res.PageCount != 0 {
		t.Errorf("expected 0 pages, got %d", res.PageCount)
	}
	if res.ContentHash == "" {
		t.Error("expected stable hash even with zero-text result")
	}
}

func TestExtract_ExtensionlessFileType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Makefile")
	if err := os.WriteFile(path, []byte("all:\n\tgo build ./...\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	res, err := e.Extract(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.FileType != "makefile" {
		t.Errorf("expected file type makefile, got %q", res.FileType)
	}
	if res.Text == "" {
		t.Error("expected non-empty text for Makefile")
	}
}

func TestExtract_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Title\n\nSome **bold** text with a [link](https://example.com).\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	res, err := e.Extract(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, forbidden := range []string{"#", "**", "]("} {
		if strings.Contains(res.Text, forbidden) {
			t.Errorf("expected markdown syntax %q to be stripped, text: %q", forbidden, res.Text)
		}
	}
	if !strings.Contains(res.Text, "link") {
		t.Errorf("expected link text preserved, got %q", res.Text)
	}
}

func TestExtract_CSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("name,age\nalice,30\nbob,25\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	res, err := e.Extract(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(res.Text, "Columns: name, age") {
		t.Errorf("expected column summary, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "alice") {
		t.Errorf("expected sample rows, got %q", res.Text)
	}
}

func TestComputeHash_IdenticalContent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")
	for _, p := range []string{p1, p2} {
		if err := os.WriteFile(p, []byte("same bytes"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	h1, err := ComputeHash(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeHash(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %s and %s", h1, h2)
	}
}
