package extraction

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"docstitch/tables"
)

// GoogleDocAIProvider implements extraction using Google Document AI
type GoogleDocAIProvider struct {
	projectID   string
	location    string
	processorID string
	client      *documentai.DocumentProcessorClient
}

func newGoogleDocAIProvider(config Config) (*GoogleDocAIProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"location":     config.GoogleLocation,
		"processor_id": config.GoogleProcessorID,
	})
	logger.Info("Creating new Google Document AI provider")

	ctx := context.Background()
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.GoogleLocation)

	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		logger.WithError(err).Error("Failed to create Document AI client")
		return nil, fmt.Errorf("error creating Document AI client: %w", err)
	}

	provider := &GoogleDocAIProvider{
		projectID:   config.GoogleProjectID,
		location:    config.GoogleLocation,
		processorID: config.GoogleProcessorID,
		client:      client,
	}

	logger.Info("Successfully initialized Google Document AI provider")
	return provider, nil
}

func (p *GoogleDocAIProvider) ExtractPage(ctx context.Context, imageContent []byte, pageNumber int) (*PageResult, error) {
	logger := log.WithFields(logrus.Fields{
		"project_id":   p.projectID,
		"location":     p.location,
		"processor_id": p.processorID,
		"page":         pageNumber,
	})
	logger.Debug("Starting Document AI extraction")

	mtype := mimetype.Detect(imageContent)
	logger.WithField("mime_type", mtype.String()).Debug("Detected file type")

	if !isImageMIMEType(mtype.String()) {
		logger.WithField("mime_type", mtype.String()).Error("Unsupported file type")
		return nil, fmt.Errorf("unsupported file type: %s", mtype.String())
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.projectID, p.location, p.processorID)

	req := &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  imageContent,
				MimeType: mtype.String(),
			},
		},
	}

	logger.Debug("Sending request to Document AI")
	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		logger.WithError(err).Error("Failed to process document")
		return nil, fmt.Errorf("error processing document: %w", err)
	}

	if resp == nil || resp.Document == nil {
		logger.Error("Received nil response or document from Document AI")
		return nil, fmt.Errorf("received nil response or document from Document AI")
	}

	if resp.Document.Error != nil {
		logger.WithField("error", resp.Document.Error.Message).Error("Document processing error")
		return nil, fmt.Errorf("document processing error: %s", resp.Document.Error.Message)
	}

	result := docAIPageResult(resp.Document, pageNumber)
	result.Metadata = map[string]string{
		"provider":     "google_docai",
		"mime_type":    mtype.String(),
		"processor_id": p.processorID,
	}
	if pages := resp.Document.GetPages(); len(pages) > 0 {
		if langs := pages[0].GetDetectedLanguages(); len(langs) > 0 {
			result.Metadata["lang_code"] = langs[0].GetLanguageCode()
		}
	}

	logger.WithFields(logrus.Fields{
		"fields": len(result.Fields),
		"tables": len(result.Tables),
	}).Info("Successfully extracted page")
	return result, nil
}

// docAIPageResult flattens the Document AI response for a single page image
// into the provider-neutral page shape.
func docAIPageResult(doc *documentaipb.Document, pageNumber int) *PageResult {
	result := &PageResult{}

	for _, page := range doc.GetPages() {
		for i, ff := range page.GetFormFields() {
			name := anchorText(doc, ff.GetFieldName().GetTextAnchor())
			if strings.TrimSpace(name) == "" {
				continue
			}
			result.Fields = append(result.Fields, Field{
				ID:         fmt.Sprintf("docai-field-%d-%d", pageNumber, i+1),
				Page:       pageNumber,
				Name:       strings.TrimSpace(name),
				Value:      strings.TrimSpace(anchorText(doc, ff.GetFieldValue().GetTextAnchor())),
				Confidence: QuantizeConfidence(float64(ff.GetFieldValue().GetConfidence())),
				BBox:       layoutBBox(ff.GetFieldValue()),
				SourceType: "form_field",
			})
		}

		for i, table := range page.GetTables() {
			result.Tables = append(result.Tables, docAITableCandidate(doc, table, pageNumber, i))
		}
	}

	return result
}

func docAITableCandidate(doc *documentaipb.Document, table *documentaipb.Document_Page_Table, pageNumber, index int) tables.Candidate {
	candidate := tables.Candidate{
		ID:         fmt.Sprintf("docai-table-%d-%d", pageNumber, index+1),
		Page:       pageNumber,
		Confidence: QuantizeConfidence(float64(table.GetLayout().GetConfidence())),
		BBox:       layoutBBox(table.GetLayout()),
	}

	if headerRows := table.GetHeaderRows(); len(headerRows) > 0 {
		for col, cell := range headerRows[0].GetCells() {
			header := strings.TrimSpace(anchorText(doc, cell.GetLayout().GetTextAnchor()))
			key := NormalizeColumnKey(header)
			if key == "" {
				key = fmt.Sprintf("column_%d", col)
			}
			candidate.Columns = append(candidate.Columns, tables.Column{
				Key:    key,
				Header: header,
			})
		}
	}

	for _, row := range table.GetBodyRows() {
		cells := make([]tables.Cell, 0, len(row.GetCells()))
		for _, cell := range row.GetCells() {
			cells = append(cells, tables.Cell{
				Value: strings.TrimSpace(anchorText(doc, cell.GetLayout().GetTextAnchor())),
			})
		}
		candidate.Rows = append(candidate.Rows, cells)
	}

	return candidate
}

// anchorText resolves a text anchor's segments against the document text.
func anchorText(doc *documentaipb.Document, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	text := doc.GetText()
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start > end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

// layoutBBox converts a layout's normalized bounding polygon into an
// axis-aligned page-relative box.
func layoutBBox(layout *documentaipb.Document_Page_Layout) *tables.BoundingBox {
	vertices := layout.GetBoundingPoly().GetNormalizedVertices()
	if len(vertices) == 0 {
		return nil
	}
	minX, minY := vertices[0].GetX(), vertices[0].GetY()
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		if v.GetX() < minX {
			minX = v.GetX()
		}
		if v.GetX() > maxX {
			maxX = v.GetX()
		}
		if v.GetY() < minY {
			minY = v.GetY()
		}
		if v.GetY() > maxY {
			maxY = v.GetY()
		}
	}
	return &tables.BoundingBox{
		X:      float64(minX),
		Y:      float64(minY),
		Width:  float64(maxX - minX),
		Height: float64(maxY - minY),
	}
}

// isImageMIMEType checks if the given MIME type is a supported image type
func isImageMIMEType(mimeType string) bool {
	supportedTypes := map[string]bool{
		"image/jpeg":      true,
		"image/jpg":       true,
		"image/png":       true,
		"image/tiff":      true,
		"image/bmp":       true,
		"application/pdf": true,
	}
	return supportedTypes[mimeType]
}

// Close releases resources used by the provider
func (p *GoogleDocAIProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
