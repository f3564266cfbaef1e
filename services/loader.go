package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// LoadFile reads a local file into Documents based on its extension.
// Plain text formats load as-is; PDFs and spreadsheets are extracted.
func LoadFile(path, filename string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	metadata := map[string]interface{}{
		"name":   filename,
		"source": filename,
	}

	switch ext {
	case ".pdf":
		return loadPDF(path, metadata)
	case ".xlsx":
		return loadSpreadsheet(path, metadata)
	case ".xls":
		// excelize reads OOXML workbooks only.
		return nil, fmt.Errorf("legacy .xls files are not supported, convert to .xlsx")
	case ".html", ".htm":
		return loadHTMLFile(path, metadata)
	default:
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return []Document{{PageContent: string(content), Metadata: metadata}}, nil
	}
}

func loadPDF(path string, metadata map[string]interface{}) ([]Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var docs []Document
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pageMetadata := make(map[string]interface{}, len(metadata)+1)
		for k, v := range metadata {
			pageMetadata[k] = v
		}
		pageMetadata["page"] = i

		docs = append(docs, Document{PageContent: text, Metadata: pageMetadata})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	return docs, nil
}

func loadSpreadsheet(path string, metadata map[string]interface{}) ([]Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var docs []Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		var builder strings.Builder
		for _, row := range rows {
			builder.WriteString(strings.Join(row, "\t"))
			builder.WriteString("\n")
		}
		if strings.TrimSpace(builder.String()) == "" {
			continue
		}

		sheetMetadata := make(map[string]interface{}, len(metadata)+1)
		for k, v := range metadata {
			sheetMetadata[k] = v
		}
		sheetMetadata["sheet"] = sheet

		docs = append(docs, Document{PageContent: builder.String(), Metadata: sheetMetadata})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no content extracted from spreadsheet")
	}
	return docs, nil
}

func loadHTMLFile(path string, metadata map[string]interface{}) ([]Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text, err := extractHTMLText(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return []Document{{PageContent: text, Metadata: metadata}}, nil
}

// LoadWeb fetches a URL and extracts its visible text into one Document.
func LoadWeb(url string) ([]Document, error) {
	c := colly.NewCollector(
		colly.MaxDepth(1),
	)

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	c.Wait()

	if len(body) == 0 {
		return nil, fmt.Errorf("no content fetched from %s", url)
	}

	text, err := extractHTMLText(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return []Document{{
		PageContent: text,
		Metadata: map[string]interface{}{
			"name":   url,
			"source": url,
		},
	}}, nil
}

func extractHTMLText(reader *bytes.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	if len(parts) == 0 {
		parts = append(parts, doc.Text())
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", fmt.Errorf("no text content in HTML")
	}
	return text, nil
}
