package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/loresmith/loresmith-be/types"
	"github.com/loresmith/loresmith-be/utils"
)

// A multi-page PDF yielding fewer extracted characters than this is almost
// certainly a scan; OCR is out of scope so we reject it outright.
const minPlausiblePDFChars = 100

var tableSpacingPattern = regexp.MustCompile(`\t| {3,}`)

// ExtractService converts raw files into ordered pages of plain text plus
// whatever document metadata the format carries.
type ExtractService struct {
	logger *slog.Logger
}

func NewExtractService(logger *slog.Logger) *ExtractService {
	return &ExtractService{logger: logger}
}

func (s *ExtractService) Extract(ctx context.Context, filePath string) (*types.ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return s.extractPDF(filePath)
	case ".docx":
		return s.extractDOCX(filePath)
	case ".txt", ".md":
		return s.extractPlainText(filePath, strings.TrimPrefix(ext, "."))
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrFormatUnsupported, ext)
	}
}

func (s *ExtractService) extractPDF(filePath string) (*types.ExtractedDocument, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("%w: %s", types.ErrPasswordProtected, filepath.Base(filePath))
		}
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]types.ExtractedPage, 0, totalPages)
	totalChars := 0
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, types.ExtractedPage{PageNumber: pageNum})
			continue
		}
		text := cleanExtractedText(s.pageText(page, pageNum))
		totalChars += len(text)
		pages = append(pages, types.ExtractedPage{
			PageNumber: pageNum,
			Text:       text,
			HasImages:  pageHasImages(page),
			HasTables:  hasTableRegion(text),
		})
	}

	if totalPages > 1 && totalChars < minPlausiblePDFChars {
		return nil, fmt.Errorf("%w: %d characters across %d pages", types.ErrLikelyScannedDocument, totalChars, totalPages)
	}

	doc := &types.ExtractedDocument{Pages: pages, Format: "pdf"}
	readPDFInfo(reader, doc)
	if doc.Title == "" {
		doc.Title = utils.FileNameWithoutExt(filePath)
	}
	return doc, nil
}

// pageText wraps GetPlainText because the pdf library panics on some
// malformed content streams instead of returning an error.
func (s *ExtractService) pageText(page pdf.Page, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("failed to extract pdf page text", "page", pageNum, "panic", r)
			text = ""
		}
	}()
	content, err := page.GetPlainText(nil)
	if err != nil {
		s.logger.Warn("failed to extract pdf page text", "page", pageNum, "error", err)
		return ""
	}
	return content
}

func readPDFInfo(reader *pdf.Reader, doc *types.ExtractedDocument) {
	defer func() {
		// Malformed xref tables panic inside the library.
		recover() //nolint:errcheck
	}()
	info := reader.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return
	}
	if title := info.Key("Title"); title.Kind() == pdf.String {
		doc.Title = strings.TrimSpace(title.Text())
	}
	if author := info.Key("Author"); author.Kind() == pdf.String {
		doc.Author = strings.TrimSpace(author.Text())
	}
}

func pageHasImages(page pdf.Page) (has bool) {
	defer func() {
		if recover() != nil {
			has = false
		}
	}()
	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return false
	}
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Kind() == pdf.Stream && obj.Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}

func (s *ExtractService) extractDOCX(filePath string) (*types.ExtractedDocument, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: .docx (not a valid archive)", types.ErrFormatUnsupported)
	}

	body, err := readDocumentXML(reader)
	if err != nil {
		return nil, err
	}

	text := cleanExtractedText(flattenDocumentXML(body))
	title, author := readCoreProperties(reader)
	if title == "" {
		title = utils.FileNameWithoutExt(filePath)
	}

	return &types.ExtractedDocument{
		Pages: []types.ExtractedPage{
			{
				PageNumber: 1,
				Text:       text,
				HasImages:  docxHasMedia(reader),
				HasTables:  len(body.Body.Tables) > 0 || hasTableRegion(text),
			},
		},
		Title:  title,
		Author: author,
		Format: "docx",
	}, nil
}

func (s *ExtractService) extractPlainText(filePath, format string) (*types.ExtractedDocument, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", format, err)
	}

	text := cleanExtractedText(string(content))
	return &types.ExtractedDocument{
		Pages: []types.ExtractedPage{
			{
				PageNumber: 1,
				Text:       text,
				HasTables:  hasTableRegion(text),
			},
		},
		Title:  utils.FileNameWithoutExt(filePath),
		Format: format,
	}, nil
}

// documentXML mirrors the parts of word/document.xml we care about.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []struct{}      `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

type corePropertiesXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

func readDocumentXML(reader *zip.Reader) (*documentXML, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read document.xml: %w", err)
		}
		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("%w: .docx (malformed document.xml)", types.ErrFormatUnsupported)
		}
		return &doc, nil
	}
	return nil, fmt.Errorf("%w: .docx (missing document.xml)", types.ErrFormatUnsupported)
}

func flattenDocumentXML(doc *documentXML) string {
	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				result.WriteString(text.Content)
			}
		}
	}
	return result.String()
}

func readCoreProperties(reader *zip.Reader) (title, author string) {
	for _, file := range reader.File {
		if file.Name != "docProps/core.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", ""
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", ""
		}
		var core corePropertiesXML
		if err := xml.Unmarshal(content, &core); err != nil {
			return "", ""
		}
		return strings.TrimSpace(core.Title), strings.TrimSpace(core.Creator)
	}
	return "", ""
}

func docxHasMedia(reader *zip.Reader) bool {
	for _, file := range reader.File {
		if strings.HasPrefix(file.Name, "word/media/") {
			return true
		}
	}
	return false
}

// hasTableRegion flags text where at least 3 consecutive lines carry tab
// characters or runs of 3+ spaces, the usual footprint of column layout.
func hasTableRegion(text string) bool {
	consecutive := 0
	for _, line := range strings.Split(text, "\n") {
		if tableSpacingPattern.MatchString(line) {
			consecutive++
			if consecutive >= 3 {
				return true
			}
		} else {
			consecutive = 0
		}
	}
	return false
}

// extractedTextCleaner strips control characters extractors tend to leak.
// Spacing is preserved because the table heuristic depends on it; the CRLF
// pair must be handled before the bare carriage return.
var extractedTextCleaner = strings.NewReplacer(
	"\x00", "", // Null character
	"\ufffd", "", // Unicode replacement character
	"\x1b", "", // Escape character
	"\r\n", "\n", // Windows line endings
	"\r", "\n", // Bare carriage return
	"\f", "\n", // Form feed to newline
)

func cleanExtractedText(text string) string {
	return strings.TrimSpace(extractedTextCleaner.Replace(text))
}
