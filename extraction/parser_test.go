package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain JSON object",
			content: `{"fields": []}`,
			want:    `{"fields": []}`,
		},
		{
			name:    "fenced JSON",
			content: "```json\n{\"fields\": []}\n```",
			want:    `{"fields": []}`,
		},
		{
			name:    "fenced without language tag",
			content: "```\n{\"fields\": []}\n```",
			want:    `{"fields": []}`,
		},
		{
			name:    "prose around the object",
			content: "Here is the extraction result:\n{\"fields\": [], \"tables\": []}\nLet me know if you need anything else!",
			want:    `{"fields": [], "tables": []}`,
		},
		{
			name:    "no JSON at all",
			content: "I could not read the page.",
			want:    "",
		},
		{
			name:    "empty response",
			content: "   ",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestParsePayload(t *testing.T) {
	payload := []byte(`{
		"documentType": {"label": "invoice", "confidence": 0.83, "reasons": ["totals block"]},
		"fields": [
			{"id": "f1", "name": "Invoice Number", "value": "INV-42", "confidence": 0.95, "sourceType": "printed"},
			{"name": "  ", "value": "orphan"}
		],
		"tables": [
			{
				"caption": " Line Items ",
				"confidence": 0.7,
				"columns": [
					{"header": "Qty"},
					{"key": "unit_price", "header": "Unit Price", "type": "number"}
				],
				"rows": [
					[{"value": "2"}, {"value": "10.00", "confidence": 0.55}],
					[{"value": "1"}, {"value": "3.50"}]
				],
				"bbox": {"x": 0.1, "y": 0.2, "width": 0.8, "height": 0.4}
			}
		]
	}`)

	result, err := ParsePayload(3, payload)
	require.NoError(t, err)

	require.NotNil(t, result.DocumentType)
	assert.Equal(t, "invoice", result.DocumentType.Label)
	assert.Equal(t, 0.8, result.DocumentType.Confidence)

	require.Len(t, result.Fields, 2)
	assert.Equal(t, "f1", result.Fields[0].ID)
	assert.Equal(t, 3, result.Fields[0].Page)
	assert.Equal(t, 1.0, result.Fields[0].Confidence)
	// A blank name gets a positional fallback instead of being dropped.
	assert.Equal(t, "Field 2", result.Fields[1].Name)

	require.Len(t, result.Tables, 1)
	table := result.Tables[0]
	assert.NotEmpty(t, table.ID)
	assert.Equal(t, 3, table.Page)
	assert.Equal(t, "Line Items", table.Caption)
	assert.Equal(t, 0.6, table.Confidence)

	require.Len(t, table.Columns, 2)
	assert.Equal(t, "qty", table.Columns[0].Key)
	assert.Equal(t, "unit_price", table.Columns[1].Key)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "10.00", table.Rows[0][1].Value)
	require.NotNil(t, table.Rows[0][1].Confidence)
	assert.Equal(t, 0.6, *table.Rows[0][1].Confidence)

	require.NotNil(t, table.BBox)
	assert.Equal(t, 0.8, table.BBox.Width)
}

func TestParsePayloadHeaderlessTable(t *testing.T) {
	payload := []byte(`{
		"tables": [
			{"id": "t-cont", "columns": [], "rows": [[{"value": "4"}, {"value": "delta"}]]}
		]
	}`)

	result, err := ParsePayload(2, payload)
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Empty(t, result.Tables[0].Columns)
	assert.False(t, result.Tables[0].HasHeaders())
	assert.Equal(t, 2, result.Tables[0].ColumnCount())
}

func TestParsePayloadRejectsMalformedJSON(t *testing.T) {
	_, err := ParsePayload(1, []byte(`{"tables": [`))
	assert.Error(t, err)
}

func TestNormalizeColumnKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Unit Price", "unit_price"},
		{"  Total (USD)  ", "total_usd"},
		{"Qty", "qty"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeColumnKey(tt.header), "header %q", tt.header)
	}
}

func TestQuantizeConfidence(t *testing.T) {
	tests := []struct {
		value float64
		want  float64
	}{
		{0.0, 0.0},
		{0.09, 0.0},
		{0.11, 0.2},
		{0.5, 0.4},
		{0.83, 0.8},
		{0.95, 1.0},
		{1.7, 1.0},
		{-0.3, 0.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, QuantizeConfidence(tt.value), "value %v", tt.value)
	}
}
