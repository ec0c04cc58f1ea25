package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	path := writeTemp(t, "a.txt", []byte("hello world\nsecond line"))
	text, err := Extract(path, "text/plain")
	require.NoError(t, err)
	require.Equal(t, "hello world\nsecond line", text)
}

func TestExtractContentTypeParameters(t *testing.T) {
	path := writeTemp(t, "a.txt", []byte("data"))
	text, err := Extract(path, "text/plain; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "data", text)
}

func TestExtractHTMLStripsChrome(t *testing.T) {
	page := `<html><head><style>.x{color:red}</style><script>alert(1)</script></head>
<body><nav>menu</nav><h1>Title</h1><p>Body text</p><footer>legal</footer></body></html>`
	path := writeTemp(t, "a.html", []byte(page))
	text, err := Extract(path, "text/html")
	require.NoError(t, err)
	require.Contains(t, text, "Title")
	require.Contains(t, text, "Body text")
	require.NotContains(t, text, "alert")
	require.NotContains(t, text, "color:red")
	require.NotContains(t, text, "menu")
	require.NotContains(t, text, "legal")
}

func TestExtractMarkdown(t *testing.T) {
	md := "# Heading\n\nSome *emphasised* paragraph.\n\n- item one\n- item two\n"
	path := writeTemp(t, "a.md", []byte(md))
	text, err := Extract(path, "text/markdown")
	require.NoError(t, err)
	require.Contains(t, text, "Heading")
	require.Contains(t, text, "emphasised")
	require.Contains(t, text, "item two")
	require.NotContains(t, text, "#")
	require.NotContains(t, text, "*")
}

func TestExtractDOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	doc, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = doc.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t> paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	text, err := Extract(path, contentTypeDOCX)
	require.NoError(t, err)
	require.Contains(t, text, "First paragraph.")
	require.Contains(t, text, "Second paragraph.")
}

func TestExtractDOCXMissingDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	other, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = other.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Extract(path, contentTypeDOCX)
	require.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := writeTemp(t, "a.bin", []byte{0x00, 0x01})
	_, err := Extract(path, "application/octet-stream")
	require.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("application/pdf"))
	require.True(t, Supported("text/plain; charset=utf-8"))
	require.True(t, Supported(contentTypeDOCX))
	require.False(t, Supported("application/zip"))
}
