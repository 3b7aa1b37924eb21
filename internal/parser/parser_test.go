package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExtractPlainText(t *testing.T) {
	p := New()

	for _, name := range []string{"notes.txt", "main.py", "data.json", "rows.csv", "README"} {
		got, err := p.Extract(name, []byte("hello world"))
		require.NoError(t, err, name)
		assert.Equal(t, "hello world", got, name)
	}
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	p := New()

	got, err := p.Extract("bad.txt", []byte("ab\xffcd\xfe"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", got)
}

func TestExtractUnknownExtensionFallsBackToText(t *testing.T) {
	p := New()

	got, err := p.Extract("config.toml", []byte("key = \"value\""))
	require.NoError(t, err)
	assert.Equal(t, "key = \"value\"", got)
}

func TestExtractMarkdown(t *testing.T) {
	p := New()
	src := "# Title\n\nSome *bold* text.\n\n```go\nfmt.Println(1)\n```\n"

	got, err := p.Extract("doc.md", []byte(src))
	require.NoError(t, err)

	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "Some bold text.")
	assert.Contains(t, got, "fmt.Println(1)")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "```")
}

func TestExtractPPTX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	slides := map[string]string{
		"ppt/slides/slide2.xml":  `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>second</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide10.xml": `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>tenth</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide1.xml":  `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>first</a:t></a:r></a:p></p:sld>`,
		"ppt/presentation.xml":   `<p:presentation xmlns:p="p"/>`,
	}
	for name, body := range slides {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	got, err := New().Extract("deck.pptx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\ntenth\n", got)
}

func TestExtractWorkbook(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "apple"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 3))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := New().Extract("stock.xlsm", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "## Sheet: Sheet1\nname\tqty\napple\t3\n", got)
}

func TestExtractCorruptBinaryFails(t *testing.T) {
	p := New()

	for _, name := range []string{"broken.pdf", "broken.docx", "broken.pptx", "broken.xlsx"} {
		_, err := p.Extract(name, []byte("not a real document"))
		assert.Error(t, err, name)
	}
}

func TestExtractTextFromXML(t *testing.T) {
	content := `<w:document xmlns:w="w"><w:body>` +
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t><w:br/><w:t>line</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	got, err := extractTextFromXML(content)
	require.NoError(t, err)
	assert.Equal(t, "Hello\t world\nSecond\nline\n", got)
}

func TestExtractTextFromXMLMalformed(t *testing.T) {
	_, err := extractTextFromXML("<w:p><w:t>open")
	assert.Error(t, err)
}

// buildPDF lays out objects 1..n with a matching xref table. Object 1 must be
// the catalog.
func buildPDF(objects ...string) []byte {
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

func contentStream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

// extractWithin fails the test instead of hanging when extraction does not
// return in time.
func extractWithin(t *testing.T, name string, data []byte) (string, error) {
	t.Helper()
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := New().Extract(name, data)
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-time.After(5 * time.Second):
		t.Fatalf("extracting %s did not return", name)
		return "", nil
	}
}

func TestExtractPDF(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R "+
			"/Resources << /Font << /F1 5 0 R >> >> >>",
		contentStream("BT /F1 12 Tf 72 712 Td (Hello) Tj ET"),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)

	got, err := extractWithin(t, "doc.pdf", data)
	require.NoError(t, err)
	assert.Contains(t, got, "Hello")
}

func TestExtractPDFCorruptPageTree(t *testing.T) {
	tests := []struct {
		name  string
		pages string
		extra []string
	}{
		{
			name:  "count larger than kids",
			pages: "<< /Type /Pages /Kids [] /Count 3 >>",
		},
		{
			name:  "kid is not a dictionary",
			pages: "<< /Type /Pages /Kids [5] /Count 1 >>",
		},
		{
			name:  "kids missing",
			pages: "<< /Type /Pages /Count 1 >>",
		},
		{
			name:  "node refers to itself",
			pages: "<< /Type /Pages /Kids [2 0 R 2 0 R] /Count 1 >>",
		},
		{
			name:  "count smaller than kids",
			pages: "<< /Type /Pages /Kids [3 0 R 3 0 R] /Count 1 >>",
			extra: []string{"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>", contentStream("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := append([]string{"<< /Type /Catalog /Pages 2 0 R >>", tt.pages}, tt.extra...)

			_, err := extractWithin(t, "broken.pdf", buildPDF(objects...))
			assert.Error(t, err)
		})
	}
}
