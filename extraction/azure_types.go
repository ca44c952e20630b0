package extraction

import "time"

// AzureDocumentResult represents the root response from Azure Document Intelligence
type AzureDocumentResult struct {
	Status              string             `json:"status"`
	CreatedDateTime     time.Time          `json:"createdDateTime"`
	LastUpdatedDateTime time.Time          `json:"lastUpdatedDateTime"`
	AnalyzeResult       AzureAnalyzeResult `json:"analyzeResult"`
}

// AzureAnalyzeResult represents the analyze result part of the Azure Document Intelligence response
type AzureAnalyzeResult struct {
	APIVersion      string               `json:"apiVersion"`
	ModelID         string               `json:"modelId"`
	StringIndexType string               `json:"stringIndexType"`
	Content         string               `json:"content"`
	Pages           []AzurePage          `json:"pages"`
	Tables          []AzureTable         `json:"tables"`
	KeyValuePairs   []AzureKeyValuePair  `json:"keyValuePairs"`
	Paragraphs      []AzureParagraph     `json:"paragraphs"`
	Styles          []interface{}        `json:"styles"`
	ContentFormat   string               `json:"contentFormat"`
}

// AzurePage represents a single page in the document
type AzurePage struct {
	PageNumber int         `json:"pageNumber"`
	Angle      float64     `json:"angle"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Unit       string      `json:"unit"`
	Words      []AzureWord `json:"words"`
	Lines      []AzureLine `json:"lines"`
	Spans      []AzureSpan `json:"spans"`
}

// AzureTable represents one recognized table
type AzureTable struct {
	RowCount        int                `json:"rowCount"`
	ColumnCount     int                `json:"columnCount"`
	Cells           []AzureTableCell   `json:"cells"`
	Caption         *AzureCaption      `json:"caption"`
	BoundingRegions []AzureBoundingBox `json:"boundingRegions"`
	Spans           []AzureSpan        `json:"spans"`
}

// AzureTableCell is one cell of a table; Kind is "columnHeader" for header cells
type AzureTableCell struct {
	Kind            string             `json:"kind"`
	RowIndex        int                `json:"rowIndex"`
	ColumnIndex     int                `json:"columnIndex"`
	RowSpan         int                `json:"rowSpan"`
	ColumnSpan      int                `json:"columnSpan"`
	Content         string             `json:"content"`
	BoundingRegions []AzureBoundingBox `json:"boundingRegions"`
	Spans           []AzureSpan        `json:"spans"`
}

// AzureCaption is the optional caption recognized for a table
type AzureCaption struct {
	Content         string             `json:"content"`
	BoundingRegions []AzureBoundingBox `json:"boundingRegions"`
	Spans           []AzureSpan        `json:"spans"`
}

// AzureKeyValuePair is one recognized form field
type AzureKeyValuePair struct {
	Key        *AzureKeyValueElement `json:"key"`
	Value      *AzureKeyValueElement `json:"value"`
	Confidence float64               `json:"confidence"`
}

// AzureKeyValueElement is the key or value side of a form field
type AzureKeyValueElement struct {
	Content         string             `json:"content"`
	BoundingRegions []AzureBoundingBox `json:"boundingRegions"`
	Spans           []AzureSpan        `json:"spans"`
}

// AzureWord represents a single word with its properties
type AzureWord struct {
	Content    string    `json:"content"`
	Polygon    []float64 `json:"polygon"`
	Confidence float64   `json:"confidence"`
	Span       AzureSpan `json:"span"`
}

// AzureLine represents a line of text
type AzureLine struct {
	Content string      `json:"content"`
	Polygon []float64   `json:"polygon"`
	Spans   []AzureSpan `json:"spans"`
}

// AzureSpan represents a span of text with offset and length
type AzureSpan struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// AzureParagraph represents a paragraph of text
type AzureParagraph struct {
	Content         string             `json:"content"`
	Spans           []AzureSpan        `json:"spans"`
	BoundingRegions []AzureBoundingBox `json:"boundingRegions"`
}

// AzureBoundingBox represents the location of content on a page
type AzureBoundingBox struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}
