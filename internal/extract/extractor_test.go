package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExtractBytes_plain(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"txt", []byte("Hello world\nLine 2"), ".txt", "Hello world\nLine 2"},
		{"utf8", []byte("caf\xc3\xa9"), ".md", "café"},
		{"invalid utf8", []byte("hello\x80world"), ".rst", "hello�world"},
		{"bom", []byte("\xef\xbb\xbfPIB release"), ".txt", "PIB release"},
		{"unknown extension", []byte("raw content"), ".xyz", "raw content"},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "File content" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Maize output rose </w:t></w:r><w:r><w:t>12 percent.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
</w:body></w:document>`

func TestExtractBytes_docx(t *testing.T) {
	contentTypes := func(part string) string {
		return `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
<Override PartName="/` + part + `" ContentType="` + docxMainContentType + `"/>
</Types>`
	}
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"default part", map[string]string{"word/document.xml": docxBody}},
		{"content types", map[string]string{
			contentTypesPath:    contentTypes("word/document2.xml"),
			"word/document2.xml": docxBody,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExtractor().ExtractBytes(zipArchive(t, tt.files), ".docx")
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			want := "Maize output rose 12 percent.\nSecond paragraph."
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip content")
	}
	if _, err := e.ExtractBytes(zipArchive(t, map[string]string{"other.xml": "<a/>"}), ".docx"); err == nil {
		t.Error("expected error when document part is missing")
	}
}

func TestSupported(t *testing.T) {
	for ext, want := range map[string]bool{".pdf": true, ".DOCX": true, ".rtf": true, ".txt": true, ".xlsx": false, ".png": false} {
		if got := Supported(ext); got != want {
			t.Errorf("Supported(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "  \n ", nil},
		{
			"basic",
			"The ministry disbursed KES 2.5 billion. Farmers received   fertilizer! Was it enough?",
			[]string{"The ministry disbursed KES 2.5 billion.", "Farmers received fertilizer!", "Was it enough?"},
		},
		{
			"abbreviation",
			"Dr. Otieno opened the clinic. It serves 4,000 people.",
			[]string{"Dr. Otieno opened the clinic.", "It serves 4,000 people."},
		},
		{
			"lowercase continuation",
			"Output grew 3 p.c. in the quarter.",
			[]string{"Output grew 3 p.c. in the quarter."},
		},
		{
			"paragraphs",
			"Heading without stop\nBody sentence here.",
			[]string{"Heading without stop", "Body sentence here."},
		},
		{
			"digit start",
			"Roads were built. 120 km were paved.",
			[]string{"Roads were built.", "120 km were paved."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sentences(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  a \t b\n\nc  "); got != "a b c" {
		t.Errorf("Normalize() = %q", got)
	}
}
