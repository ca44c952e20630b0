package extraction

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docAITestText = "Invoice Number INV-7 Qty Price 2 4.50"

func anchor(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: start, EndIndex: end},
		},
	}
}

func cellLayout(start, end int64) *documentaipb.Document_Page_Table_TableCell {
	return &documentaipb.Document_Page_Table_TableCell{
		Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(start, end)},
	}
}

func TestDocAIPageResult(t *testing.T) {
	doc := &documentaipb.Document{
		Text: docAITestText,
		Pages: []*documentaipb.Document_Page{
			{
				FormFields: []*documentaipb.Document_Page_FormField{
					{
						FieldName: &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 14)},
						FieldValue: &documentaipb.Document_Page_Layout{
							TextAnchor: anchor(15, 20),
							Confidence: 0.87,
						},
					},
					{
						// Unnamed field, should be skipped
						FieldValue: &documentaipb.Document_Page_Layout{TextAnchor: anchor(15, 20)},
					},
				},
				Tables: []*documentaipb.Document_Page_Table{
					{
						Layout: &documentaipb.Document_Page_Layout{
							Confidence: 0.66,
							BoundingPoly: &documentaipb.BoundingPoly{
								NormalizedVertices: []*documentaipb.NormalizedVertex{
									{X: 0.1, Y: 0.2},
									{X: 0.9, Y: 0.2},
									{X: 0.9, Y: 0.7},
									{X: 0.1, Y: 0.7},
								},
							},
						},
						HeaderRows: []*documentaipb.Document_Page_Table_TableRow{
							{Cells: []*documentaipb.Document_Page_Table_TableCell{
								cellLayout(21, 24), // Qty
								cellLayout(25, 30), // Price
							}},
						},
						BodyRows: []*documentaipb.Document_Page_Table_TableRow{
							{Cells: []*documentaipb.Document_Page_Table_TableCell{
								cellLayout(31, 32), // 2
								cellLayout(33, 37), // 4.50
							}},
						},
					},
				},
			},
		},
	}

	result := docAIPageResult(doc, 3)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, "Invoice Number", result.Fields[0].Name)
	assert.Equal(t, "INV-7", result.Fields[0].Value)
	assert.Equal(t, 3, result.Fields[0].Page)
	assert.Equal(t, 0.8, result.Fields[0].Confidence)
	assert.Equal(t, "form_field", result.Fields[0].SourceType)

	require.Len(t, result.Tables, 1)
	table := result.Tables[0]
	assert.Equal(t, 3, table.Page)
	assert.Equal(t, 0.6, table.Confidence)

	require.Len(t, table.Columns, 2)
	assert.Equal(t, "qty", table.Columns[0].Key)
	assert.Equal(t, "Price", table.Columns[1].Header)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "2", table.Rows[0][0].Value)
	assert.Equal(t, "4.50", table.Rows[0][1].Value)

	require.NotNil(t, table.BBox)
	assert.InDelta(t, 0.1, table.BBox.X, 1e-6)
	assert.InDelta(t, 0.2, table.BBox.Y, 1e-6)
	assert.InDelta(t, 0.8, table.BBox.Width, 1e-6)
	assert.InDelta(t, 0.5, table.BBox.Height, 1e-6)
}

func TestAnchorText(t *testing.T) {
	doc := &documentaipb.Document{Text: docAITestText}

	assert.Equal(t, "", anchorText(doc, nil))
	assert.Equal(t, "Qty", anchorText(doc, anchor(21, 24)))

	// Out-of-range segments are ignored
	assert.Equal(t, "", anchorText(doc, anchor(10, 9999)))

	multi := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 21, EndIndex: 24},
			{StartIndex: 24, EndIndex: 30},
		},
	}
	assert.Equal(t, "Qty Price", anchorText(doc, multi))
}

func TestIsImageMIMEType(t *testing.T) {
	assert.True(t, isImageMIMEType("image/png"))
	assert.True(t, isImageMIMEType("image/jpeg"))
	assert.True(t, isImageMIMEType("application/pdf"))
	assert.False(t, isImageMIMEType("text/plain"))
	assert.False(t, isImageMIMEType("image/webp"))
}

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "tesseract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extraction provider")
}
