// Package docparse turns an input requirements document into normalized raw
// text with fresh document/version identifiers. Only plain text and markdown
// readers ship here; PDF/DOCX extraction is an external collaborator that
// can be plugged in through the Parser interface.
package docparse

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is a parsed input document.
type Document struct {
	DocumentID string
	VersionID  string
	Filename   string
	Ext        string
	RawText    string
}

// Parser reads a document file into normalized text.
type Parser interface {
	Parse(path string) (*Document, error)
}

// FileParser reads .txt and .md files.
type FileParser struct{}

// NewFileParser returns the plain-text parser.
func NewFileParser() *FileParser { return &FileParser{} }

// Parse reads the file at path.
func (p *FileParser) Parse(path string) (*Document, error) {
	filename := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md":
	default:
		return nil, fmt.Errorf("unsupported document format %q: use .txt or .md", ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	return &Document{
		DocumentID: "doc_" + uuid.NewString(),
		VersionID:  "v_" + time.Now().UTC().Format(time.RFC3339),
		Filename:   filename,
		Ext:        ext,
		RawText:    NormalizeText(string(raw)),
	}, nil
}

var (
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText unifies line endings, collapses horizontal whitespace and
// squeezes blank-line runs.
func NormalizeText(input string) string {
	out := strings.ReplaceAll(input, "\r\n", "\n")
	out = spacesRe.ReplaceAllString(out, " ")
	out = newlinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
