package chunking

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// page is an intermediate unit between loading and splitting. Single-page
// formats (txt, md, html) produce one page labeled "1".
type page struct {
	Text  string
	Label string
}

// load extracts text pages from raw bytes according to the mime type.
// Extraction failures are permanent: the bytes will not get better on retry.
func load(mimeType string, data []byte) ([]page, error) {
	switch normalizeMime(mimeType) {
	case "application/pdf":
		return loadPDF(data)
	case "text/plain", "text/markdown", "text/csv":
		return []page{{Text: string(data), Label: "1"}}, nil
	case "text/html":
		return loadHTML(data)
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return loadXLSX(data)
	default:
		return nil, fmt.Errorf("mime type '%s': %w", mimeType, ErrUnsupportedMime)
	}
}

func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func loadPDF(data []byte) ([]page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf parse failed: %w: %v", ErrCorruptContent, err)
	}

	var pages []page
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("pdf page %d text extraction failed: %w: %v", i, ErrCorruptContent, err)
		}
		pages = append(pages, page{Text: text, Label: fmt.Sprintf("%d", i)})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf contains no readable pages: %w", ErrCorruptContent)
	}
	return pages, nil
}

func loadHTML(data []byte) ([]page, error) {
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return nil, fmt.Errorf("html conversion failed: %w: %v", ErrCorruptContent, err)
	}
	return []page{{Text: markdown, Label: "1"}}, nil
}

func loadXLSX(data []byte) ([]page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx parse failed: %w: %v", ErrCorruptContent, err)
	}
	defer f.Close()

	var pages []page
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("xlsx sheet '%s' read failed: %w: %v", sheet, ErrCorruptContent, err)
		}
		var sb strings.Builder
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		pages = append(pages, page{Text: sb.String(), Label: fmt.Sprintf("%d", i+1)})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("xlsx contains no sheets: %w", ErrCorruptContent)
	}
	return pages, nil
}
