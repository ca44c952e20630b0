package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"docstitch/tables"
)

const (
	azureAPIVersion      = "2024-11-30"
	azureDefaultModelID  = "prebuilt-layout"
	azureDefaultTimeout  = 120
	azurePollingInterval = 2 * time.Second
)

// AzureProvider implements extraction using Azure Document Intelligence
type AzureProvider struct {
	endpoint   string
	apiKey     string
	modelID    string
	timeout    time.Duration
	httpClient *retryablehttp.Client
}

// Request body for Azure Document Intelligence
type azureAnalyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

func newAzureProvider(config Config) (*AzureProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"endpoint": config.AzureEndpoint,
		"model_id": config.AzureModelID,
	})
	logger.Info("Creating new Azure Document Intelligence provider")

	if config.AzureEndpoint == "" || config.AzureAPIKey == "" {
		logger.Error("Missing required configuration")
		return nil, fmt.Errorf("missing required Azure Document Intelligence configuration")
	}

	modelID := azureDefaultModelID
	if config.AzureModelID != "" {
		modelID = config.AzureModelID
	}

	timeout := azureDefaultTimeout
	if config.AzureTimeout > 0 {
		timeout = config.AzureTimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 5 * time.Second
	client.Logger = logger

	provider := &AzureProvider{
		endpoint:   config.AzureEndpoint,
		apiKey:     config.AzureAPIKey,
		modelID:    modelID,
		timeout:    time.Duration(timeout) * time.Second,
		httpClient: client,
	}

	logger.Info("Successfully initialized Azure Document Intelligence provider")
	return provider, nil
}

func (p *AzureProvider) ExtractPage(ctx context.Context, imageContent []byte, pageNumber int) (*PageResult, error) {
	logger := log.WithFields(logrus.Fields{
		"model_id": p.modelID,
		"page":     pageNumber,
	})
	logger.Debug("Starting Azure Document Intelligence extraction")

	mtype := mimetype.Detect(imageContent)
	logger.WithField("mime_type", mtype.String()).Debug("Detected file type")

	if !strings.HasPrefix(mtype.String(), "image/") {
		logger.WithField("mime_type", mtype.String()).Error("Unsupported file type")
		return nil, fmt.Errorf("unsupported file type: %s", mtype.String())
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	operationLocation, err := p.submitDocument(ctx, imageContent)
	if err != nil {
		return nil, fmt.Errorf("error submitting document: %w", err)
	}

	result, err := p.pollForResults(ctx, operationLocation)
	if err != nil {
		return nil, fmt.Errorf("error polling for results: %w", err)
	}

	pageResult := p.toPageResult(&result.AnalyzeResult, pageNumber)
	logger.WithFields(logrus.Fields{
		"fields": len(pageResult.Fields),
		"tables": len(pageResult.Tables),
	}).Info("Successfully extracted page")
	return pageResult, nil
}

func (p *AzureProvider) submitDocument(ctx context.Context, imageContent []byte) (string, error) {
	requestURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		p.endpoint, p.modelID, azureAPIVersion)

	requestBody := azureAnalyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(imageContent),
	}
	requestBodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	operationLocation := resp.Header.Get("Operation-Location")
	if operationLocation == "" {
		return "", fmt.Errorf("no Operation-Location header in response")
	}

	return operationLocation, nil
}

func (p *AzureProvider) pollForResults(ctx context.Context, operationLocation string) (*AzureDocumentResult, error) {
	logger := log.WithField("operation_location", operationLocation)
	logger.Debug("Starting to poll for results")

	ticker := time.NewTicker(azurePollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("operation timed out after %v: %w", p.timeout, ctx.Err())
		case <-ticker.C:
			req, err := retryablehttp.NewRequestWithContext(ctx, "GET", operationLocation, nil)
			if err != nil {
				return nil, fmt.Errorf("error creating poll request: %w", err)
			}
			req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

			resp, err := p.httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("error polling for results: %w", err)
			}

			var result AzureDocumentResult
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				resp.Body.Close()
				logger.WithError(err).Error("Failed to decode response")
				return nil, fmt.Errorf("error decoding response: %w", err)
			}
			resp.Body.Close()

			logger.WithFields(logrus.Fields{
				"status_code": resp.StatusCode,
				"table_count": len(result.AnalyzeResult.Tables),
				"status":      result.Status,
			}).Debug("Poll response received")

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status code %d while polling", resp.StatusCode)
			}

			switch result.Status {
			case "succeeded":
				return &result, nil
			case "failed":
				return nil, fmt.Errorf("document processing failed")
			case "running":
			// Continue polling
			default:
				return nil, fmt.Errorf("unexpected status: %s", result.Status)
			}
		}
	}
}

// toPageResult maps the Azure layout response onto the provider-neutral page
// shape. The request carried a single page image, so every element belongs to
// pageNumber regardless of the pageNumber Azure reports.
func (p *AzureProvider) toPageResult(ar *AzureAnalyzeResult, pageNumber int) *PageResult {
	result := &PageResult{
		Metadata: map[string]string{
			"provider":    "azure",
			"model_id":    ar.ModelID,
			"api_version": ar.APIVersion,
		},
	}

	var pageW, pageH float64
	if len(ar.Pages) > 0 {
		pageW = ar.Pages[0].Width
		pageH = ar.Pages[0].Height
	}

	for i, kv := range ar.KeyValuePairs {
		if kv.Key == nil {
			continue
		}
		field := Field{
			ID:         fmt.Sprintf("azure-field-%d-%d", pageNumber, i+1),
			Page:       pageNumber,
			Name:       kv.Key.Content,
			Confidence: QuantizeConfidence(kv.Confidence),
			SourceType: "key_value",
		}
		if kv.Value != nil {
			field.Value = kv.Value.Content
			field.BBox = polygonBBox(kv.Value.BoundingRegions, pageW, pageH)
		}
		result.Fields = append(result.Fields, field)
	}

	for i, t := range ar.Tables {
		result.Tables = append(result.Tables, azureTableCandidate(t, pageNumber, i, pageW, pageH))
	}

	return result
}

func azureTableCandidate(t AzureTable, pageNumber, index int, pageW, pageH float64) tables.Candidate {
	candidate := tables.Candidate{
		ID:   fmt.Sprintf("azure-table-%d-%d", pageNumber, index+1),
		Page: pageNumber,
		BBox: polygonBBox(t.BoundingRegions, pageW, pageH),
	}
	if t.Caption != nil {
		candidate.Caption = strings.TrimSpace(t.Caption.Content)
	}

	headers := make([]string, t.ColumnCount)
	headerRows := 0
	grid := make(map[int]map[int]string)
	hasHeader := false

	for _, cell := range t.Cells {
		if cell.Kind == "columnHeader" {
			hasHeader = true
			if cell.ColumnIndex < len(headers) && headers[cell.ColumnIndex] == "" {
				headers[cell.ColumnIndex] = cell.Content
			}
			if cell.RowIndex+1 > headerRows {
				headerRows = cell.RowIndex + 1
			}
			continue
		}
		row, ok := grid[cell.RowIndex]
		if !ok {
			row = make(map[int]string)
			grid[cell.RowIndex] = row
		}
		row[cell.ColumnIndex] = cell.Content
	}

	if hasHeader {
		for col, header := range headers {
			candidate.Columns = append(candidate.Columns, tables.Column{
				Key:    NormalizeColumnKey(header),
				Header: strings.TrimSpace(header),
			})
			if candidate.Columns[col].Key == "" {
				candidate.Columns[col].Key = fmt.Sprintf("column_%d", col)
			}
		}
	}

	for rowIndex := headerRows; rowIndex < t.RowCount; rowIndex++ {
		cells := make([]tables.Cell, t.ColumnCount)
		for col := 0; col < t.ColumnCount; col++ {
			cells[col] = tables.Cell{Value: grid[rowIndex][col]}
		}
		candidate.Rows = append(candidate.Rows, cells)
	}

	// Confidence is not reported at table level; treat recognized layout
	// tables as high confidence so the matcher does not discount them.
	candidate.Confidence = QuantizeConfidence(0.9)
	return candidate
}

// polygonBBox converts the first bounding region's polygon into an
// axis-aligned box in page-relative units.
func polygonBBox(regions []AzureBoundingBox, pageW, pageH float64) *tables.BoundingBox {
	if len(regions) == 0 || len(regions[0].Polygon) < 4 || pageW <= 0 || pageH <= 0 {
		return nil
	}
	poly := regions[0].Polygon
	minX, minY := poly[0], poly[1]
	maxX, maxY := poly[0], poly[1]
	for i := 2; i+1 < len(poly); i += 2 {
		x, y := poly[i], poly[i+1]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return &tables.BoundingBox{
		X:      minX / pageW,
		Y:      minY / pageH,
		Width:  (maxX - minX) / pageW,
		Height: (maxY - minY) / pageH,
	}
}
