package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Parser turns the bytes of a file into plain text.
type Parser interface {
	Extract(name string, data []byte) (string, error)
}

// FileParser dispatches on the file extension. Unknown extensions are read as
// text.
type FileParser struct {
	markdown goldmark.Markdown
}

func New() *FileParser {
	return &FileParser{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

var plainTextExts = map[string]bool{
	".txt":  true,
	".py":   true,
	".json": true,
	".csv":  true,
}

func (p *FileParser) Extract(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case plainTextExts[ext]:
		return parseText(data), nil
	case ext == ".md":
		return p.parseMarkdown(data), nil
	case ext == ".pdf":
		return parsePDF(data)
	case ext == ".docx":
		return parseDOCX(data)
	case ext == ".pptx":
		return parsePPTX(data)
	case ext == ".xlsx":
		return parseXLSX(data)
	case ext == ".xlsm" || ext == ".xltx" || ext == ".xltm":
		return parseExcelize(data)
	default:
		return parseText(data), nil
	}
}

// parseText decodes data as UTF-8, dropping invalid byte sequences.
func parseText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

// maxPageTreeDepth bounds the nesting of /Pages nodes; real documents stay
// far below it.
const maxPageTreeDepth = 32

func parsePDF(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages, err := pageLeaves(reader.Trailer().Key("Root").Key("Pages"), numPages)
	if err != nil {
		return "", err
	}
	if len(pages) != numPages {
		return "", fmt.Errorf("corrupt pdf page tree: /Count is %d but %d pages are reachable", numPages, len(pages))
	}

	var b strings.Builder
	for i, leaf := range pages {
		pageText, err := pdf.Page{V: leaf}.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i+1, err)
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

// pageLeaves collects the page dictionaries under root in document order.
// The walk gives up once it has visited more nodes than a tree holding limit
// pages can contain, so cyclic or inconsistent trees fail instead of spinning.
func pageLeaves(root pdf.Value, limit int) ([]pdf.Value, error) {
	if root.Kind() != pdf.Dict {
		return nil, errors.New("corrupt pdf: missing page tree")
	}

	var (
		pages  []pdf.Value
		budget = 2*max(limit, 0) + 16
		walk   func(node pdf.Value, depth int) error
	)
	walk = func(node pdf.Value, depth int) error {
		if depth > maxPageTreeDepth {
			return errors.New("corrupt pdf page tree: nesting too deep")
		}
		kids := node.Key("Kids")
		if kids.Kind() != pdf.Array {
			return errors.New("corrupt pdf page tree: /Kids is not an array")
		}
		for i := 0; i < kids.Len(); i++ {
			budget--
			if budget < 0 {
				return errors.New("corrupt pdf page tree: more nodes than /Count allows")
			}
			kid := kids.Index(i)
			if kid.Kind() != pdf.Dict {
				return fmt.Errorf("corrupt pdf page tree: kid %d is not a dictionary", i)
			}
			if kid.Key("Type").Name() == "Pages" {
				if err := walk(kid, depth+1); err != nil {
					return err
				}
				continue
			}
			pages = append(pages, kid)
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	return extractTextFromXML(r.Editable().GetContent())
}

func parsePPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}

	var slides []*zip.File
	for _, file := range zr.File {
		if strings.HasPrefix(file.Name, "ppt/slides/slide") && strings.HasSuffix(file.Name, ".xml") {
			slides = append(slides, file)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	var parts []string
	for _, file := range slides {
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slideText, err := extractTextFromXML(string(content))
		if err != nil {
			continue
		}
		if strings.TrimSpace(slideText) != "" {
			parts = append(parts, slideText)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func slideNumber(name string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(name, "ppt/slides/slide"), "%d", &n)
	return n
}

func parseXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}

	var b strings.Builder
	for _, sheet := range f.Sheets {
		fmt.Fprintf(&b, "## Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func parseExcelize(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// parseMarkdown renders markdown source as plain text: block structure becomes
// line breaks and inline markup is dropped.
func (p *FileParser) parseMarkdown(data []byte) string {
	src := []byte(parseText(data))
	doc := p.markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			if !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// extractTextFromXML collects the character data of text runs (<w:t>, <a:t>)
// and turns paragraph ends into newlines.
func extractTextFromXML(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
