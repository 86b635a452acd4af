package docparse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTxt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requisitos.txt")
	require.NoError(t, os.WriteFile(path, []byte("Línea uno\r\n\r\n\r\n\r\nLínea    dos"), 0644))

	doc, err := NewFileParser().Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "requisitos.txt", doc.Filename)
	assert.Equal(t, ".txt", doc.Ext)
	assert.Equal(t, "Línea uno\n\nLínea dos", doc.RawText)
	assert.Contains(t, doc.DocumentID, "doc_")
	assert.Contains(t, doc.VersionID, "v_")
}

func TestParseUnsupportedExt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0644))

	_, err := NewFileParser().Parse(path)
	assert.Error(t, err)
}
