package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	mdast "github.com/yuin/goldmark/ast"
	mdtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

const (
	contentTypePDF      = "application/pdf"
	contentTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	contentTypeHTML     = "text/html"
	contentTypeMarkdown = "text/markdown"
)

// Extract turns the raw bytes at path into plain text, keyed by content type.
// Unknown types return ErrUnsupportedFormat. No cleanup beyond newline joins,
// downstream chunking handles segmentation.
func Extract(path string, contentType string) (string, error) {
	ct := normalizeContentType(contentType)
	switch {
	case ct == contentTypePDF:
		return fromPDF(path)
	case ct == contentTypeDOCX:
		return fromDOCX(path)
	case ct == contentTypeHTML:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return fromHTML(string(data))
	case ct == contentTypeMarkdown:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return fromMarkdown(data), nil
	case strings.HasPrefix(ct, "text/"):
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", apperr.ErrUnsupportedFormat, contentType)
	}
}

func normalizeContentType(ct string) string {
	// Strip parameters like "; charset=utf-8".
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func fromPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// docx files are zip archives; paragraph text lives in word/document.xml as
// <w:t> runs inside <w:p> elements.
func fromDOCX(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxParagraphs(rc)
	}
	return "", fmt.Errorf("%w: docx missing word/document.xml", apperr.ErrUnsupportedFormat)
}

func docxParagraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

var skippedHTMLElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

func fromHTML(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedHTMLElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n"), nil
}

func fromMarkdown(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(mdtext.NewReader(source))

	var parts []string
	_ = mdast.Walk(doc, func(node mdast.Node, entering bool) (mdast.WalkStatus, error) {
		if !entering {
			return mdast.WalkContinue, nil
		}
		if node.Kind() == mdast.KindText {
			if text := strings.TrimSpace(string(node.(*mdast.Text).Segment.Value(source))); text != "" {
				parts = append(parts, text)
			}
		}
		return mdast.WalkContinue, nil
	})
	return strings.Join(parts, "\n")
}

// Supported reports whether content type would be accepted by Extract.
func Supported(contentType string) bool {
	ct := normalizeContentType(contentType)
	return ct == contentTypePDF || ct == contentTypeDOCX || strings.HasPrefix(ct, "text/")
}
