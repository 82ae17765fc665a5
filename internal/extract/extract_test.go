package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<w:p><w:r><w:t>%s</w:t></w:r></w:p>", p)
	}
	return buildDOCXBody(t, body.String())
}

func buildDOCXBody(t *testing.T, body string) []byte {
	t.Helper()
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a single page PDF with a correct xref table.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestContentType(t *testing.T) {
	assert.Equal(t, ContentTypePDF, ContentType("report.PDF", ""))
	assert.Equal(t, ContentTypeDOCX, ContentType("notes.docx", "application/octet-stream"))
	assert.Equal(t, ContentTypeMarkdown, ContentType("README.md", ""))
	assert.Equal(t, ContentTypePDF, ContentType("scan", "application/pdf"))
	assert.Equal(t, ContentTypePlain, ContentType("data.csv", "text/csv; charset=utf-8"))
	assert.Equal(t, ContentTypePlain, ContentType("noext", ""))
}

func TestExtract_PlainTextIsVerbatim(t *testing.T) {
	ex := New(Options{})
	raw := "line one\r\n  line two\t\n\n多字节"
	doc, err := ex.Extract(&model.RawFile{ID: "f1", Name: "a.txt", ContentType: ContentTypePlain, Data: []byte(raw)})
	require.NoError(t, err)
	assert.Equal(t, raw, doc.Text)
	assert.Equal(t, "a.txt", doc.Metadata[model.MetaSource])
	assert.Equal(t, "f1", doc.Metadata[model.MetaFileID])
}

func TestExtract_InvalidUTF8(t *testing.T) {
	ex := New(Options{})
	_, err := ex.Extract(&model.RawFile{Name: "bin.txt", Data: []byte{0xff, 0xfe, 0x00}})
	require.Error(t, err)
	var parseErr *appErr.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "bin.txt", parseErr.Name)
	assert.ErrorIs(t, err, appErr.ErrDocumentParse)
}

func TestExtract_DOCX(t *testing.T) {
	ex := New(Options{})
	data := buildDOCX(t, "First paragraph.", "Second paragraph.")
	doc, err := ex.Extract(&model.RawFile{Name: "a.docx", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", doc.Text)
}

func TestExtract_DOCXNestedRuns(t *testing.T) {
	body := `<w:p><w:r><w:t xml:space="preserve">See </w:t></w:r>` +
		`<w:hyperlink w:anchor="docs"><w:r><w:t>the docs</w:t></w:r></w:hyperlink>` +
		`<w:r><w:t xml:space="preserve"> now</w:t></w:r></w:p>` +
		`<w:p><w:ins><w:r><w:t>inserted</w:t></w:r></w:ins><w:del><w:r><w:delText>gone</w:delText></w:r></w:del>` +
		`<w:r><w:tab/><w:t>tabbed</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>anchor</w:t><w:pict><w:txbxContent><w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></w:pict></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p/>`
	doc, err := New(Options{}).Extract(&model.RawFile{Name: "links.docx", Data: buildDOCXBody(t, body)})
	require.NoError(t, err)
	assert.Equal(t, "See the docs now\ninserted\ttabbed\nanchor\n", doc.Text)
}

func TestExtract_DOCXWithoutDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New(Options{}).Extract(&model.RawFile{Name: "empty.docx", Data: buf.Bytes()})
	assert.ErrorIs(t, err, appErr.ErrDocumentParse)
}

func TestExtract_PDF(t *testing.T) {
	doc, err := New(Options{}).Extract(&model.RawFile{Name: "hello.pdf", Data: buildPDF("Hello PDF")})
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Hello")
}

func TestExtract_MalformedPDF(t *testing.T) {
	_, err := New(Options{}).Extract(&model.RawFile{Name: "broken.pdf", Data: []byte("%PDF-1.4\nnot really a pdf")})
	require.Error(t, err)
	var parseErr *appErr.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "broken.pdf", parseErr.Name)
	assert.Equal(t, ContentTypePDF, parseErr.ContentType)
}

func TestExtract_Markdown(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and `code`.\n\n- item one\n- item two\n"
	raw := &model.RawFile{Name: "doc.md", Data: []byte(src)}

	doc, err := New(Options{}).Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, src, doc.Text)

	doc, err = New(Options{MarkdownAsText: true}).Extract(raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Title")
	assert.Contains(t, doc.Text, "emphasis")
	assert.Contains(t, doc.Text, "item one")
	assert.NotContains(t, doc.Text, "#")
	assert.NotContains(t, doc.Text, "*")
}
