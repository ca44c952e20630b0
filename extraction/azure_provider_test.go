package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestNewAzureProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config",
			config: Config{
				AzureEndpoint: "https://test.cognitiveservices.azure.com/",
				AzureAPIKey:   "test-key",
			},
			wantErr: false,
		},
		{
			name: "valid config with custom model and timeout",
			config: Config{
				AzureEndpoint: "https://test.cognitiveservices.azure.com/",
				AzureAPIKey:   "test-key",
				AzureModelID:  "custom-model",
				AzureTimeout:  60,
			},
			wantErr: false,
		},
		{
			name: "missing endpoint",
			config: Config{
				AzureAPIKey: "test-key",
			},
			wantErr:     true,
			errContains: "missing required Azure Document Intelligence configuration",
		},
		{
			name: "missing api key",
			config: Config{
				AzureEndpoint: "https://test.cognitiveservices.azure.com/",
			},
			wantErr:     true,
			errContains: "missing required Azure Document Intelligence configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := newAzureProvider(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, provider)

			// Verify default values
			if tt.config.AzureModelID == "" {
				assert.Equal(t, azureDefaultModelID, provider.modelID)
			} else {
				assert.Equal(t, tt.config.AzureModelID, provider.modelID)
			}

			if tt.config.AzureTimeout == 0 {
				assert.Equal(t, time.Duration(azureDefaultTimeout)*time.Second, provider.timeout)
			} else {
				assert.Equal(t, time.Duration(tt.config.AzureTimeout)*time.Second, provider.timeout)
			}
		})
	}
}

func TestAzureProvider_ExtractPage(t *testing.T) {
	successResult := AzureDocumentResult{
		Status: "succeeded",
		AnalyzeResult: AzureAnalyzeResult{
			APIVersion: azureAPIVersion,
			ModelID:    azureDefaultModelID,
			Pages: []AzurePage{
				{PageNumber: 1, Width: 8.5, Height: 11, Unit: "inch"},
			},
			KeyValuePairs: []AzureKeyValuePair{
				{
					Key:        &AzureKeyValueElement{Content: "Invoice Number"},
					Value:      &AzureKeyValueElement{Content: "INV-42"},
					Confidence: 0.92,
				},
			},
			Tables: []AzureTable{
				{
					RowCount:    3,
					ColumnCount: 2,
					Caption:     &AzureCaption{Content: "Line Items"},
					BoundingRegions: []AzureBoundingBox{
						{PageNumber: 1, Polygon: []float64{1, 2, 7, 2, 7, 8, 1, 8}},
					},
					Cells: []AzureTableCell{
						{Kind: "columnHeader", RowIndex: 0, ColumnIndex: 0, Content: "Qty"},
						{Kind: "columnHeader", RowIndex: 0, ColumnIndex: 1, Content: "Unit Price"},
						{RowIndex: 1, ColumnIndex: 0, Content: "2"},
						{RowIndex: 1, ColumnIndex: 1, Content: "10.00"},
						{RowIndex: 2, ColumnIndex: 0, Content: "1"},
						{RowIndex: 2, ColumnIndex: 1, Content: "3.50"},
					},
				},
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
			w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/op-1")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(successResult))
		}
	}))
	defer server.Close()

	provider, err := newAzureProvider(Config{
		AzureEndpoint: server.URL,
		AzureAPIKey:   "test-key",
	})
	require.NoError(t, err)

	result, err := provider.ExtractPage(context.Background(), pngBytes(t), 4)
	require.NoError(t, err)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, "Invoice Number", result.Fields[0].Name)
	assert.Equal(t, "INV-42", result.Fields[0].Value)
	assert.Equal(t, 4, result.Fields[0].Page)
	assert.Equal(t, 1.0, result.Fields[0].Confidence)

	require.Len(t, result.Tables, 1)
	table := result.Tables[0]
	assert.Equal(t, 4, table.Page)
	assert.Equal(t, "Line Items", table.Caption)

	require.Len(t, table.Columns, 2)
	assert.Equal(t, "Qty", table.Columns[0].Header)
	assert.Equal(t, "unit_price", table.Columns[1].Key)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2", table.Rows[0][0].Value)
	assert.Equal(t, "3.50", table.Rows[1][1].Value)

	require.NotNil(t, table.BBox)
	assert.InDelta(t, 1.0/8.5, table.BBox.X, 1e-9)
	assert.InDelta(t, 6.0/8.5, table.BBox.Width, 1e-9)
	assert.InDelta(t, 2.0/11.0, table.BBox.Y, 1e-9)
	assert.InDelta(t, 6.0/11.0, table.BBox.Height, 1e-9)
}

func TestAzureProvider_ExtractPageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/op-2")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(AzureDocumentResult{Status: "failed"}))
		}
	}))
	defer server.Close()

	provider, err := newAzureProvider(Config{
		AzureEndpoint: server.URL,
		AzureAPIKey:   "test-key",
	})
	require.NoError(t, err)

	_, err = provider.ExtractPage(context.Background(), pngBytes(t), 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "document processing failed")
}

func TestAzureProvider_RejectsNonImageContent(t *testing.T) {
	provider, err := newAzureProvider(Config{
		AzureEndpoint: "https://example.invalid",
		AzureAPIKey:   "test-key",
	})
	require.NoError(t, err)

	_, err = provider.ExtractPage(context.Background(), []byte("plain text"), 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
