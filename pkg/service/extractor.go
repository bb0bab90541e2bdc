package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// TruncationMarker is appended to extracted text cut at the word ceiling.
const TruncationMarker = "[Content truncated]"

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor turns a stored file into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, path, mimeType string, wordLimit int) (string, error)
}

// ContentExtractor reads PDF, DOCX, XLSX and plain-text files.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

func (e *ContentExtractor) ExtractText(ctx context.Context, path, mimeType string, wordLimit int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch detectFormat(path, mimeType) {
	case "pdf":
		text, err = extractPDF(path)
	case "docx":
		text, err = extractDOCX(path)
	case "xlsx":
		text, err = extractXLSX(path)
	case "text":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}
	return truncateWords(strings.TrimSpace(text), wordLimit), nil
}

func detectFormat(path, mimeType string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".xlsx":
		return "xlsx"
	}

	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case mimeType == "application/pdf":
		return "pdf"
	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case strings.HasPrefix(mimeType, "text/"),
		mimeType == "application/json",
		mimeType == "application/xml",
		mimeType == "application/javascript":
		return "text"
	}

	// Fall back to sniffing the content.
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return "text"
		}
	}
	return ""
}

// truncateWords keeps the first limit whitespace-separated words and appends
// TruncationMarker when anything was dropped. limit <= 0 disables the ceiling.
func truncateWords(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ") + "\n\n" + TruncationMarker
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		sb.WriteString("Sheet: " + sheet + "\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// extractDOCX reads word/document.xml and emits one line per paragraph.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", fmt.Errorf("word/document.xml not found")
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
