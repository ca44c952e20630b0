package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"docstitch/internal/constants"
	"docstitch/tables"
)

var (
	jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
	columnKeyPattern  = regexp.MustCompile(`[^a-z0-9]+`)
)

// payload mirrors the JSON schema the extraction prompt demands.
type payload struct {
	DocumentType *documentTypePayload `json:"documentType"`
	Fields       []fieldPayload       `json:"fields"`
	Tables       []tablePayload       `json:"tables"`
}

type documentTypePayload struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type fieldPayload struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Value      string       `json:"value"`
	Confidence *float64     `json:"confidence"`
	SourceType string       `json:"sourceType"`
	BBox       *bboxPayload `json:"bbox"`
}

type tablePayload struct {
	ID         string          `json:"id"`
	Caption    string          `json:"caption"`
	Confidence *float64        `json:"confidence"`
	Columns    []columnPayload `json:"columns"`
	Rows       [][]cellPayload `json:"rows"`
	BBox       *bboxPayload    `json:"bbox"`
}

type columnPayload struct {
	Key        string   `json:"key"`
	Header     string   `json:"header"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
}

type cellPayload struct {
	Value      string       `json:"value"`
	Confidence *float64     `json:"confidence"`
	BBox       *bboxPayload `json:"bbox"`
}

type bboxPayload struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// ExtractJSON recovers the JSON object from a model response that may be
// wrapped in a markdown code fence or surrounded by prose. It returns an
// empty string when no parseable object is present.
func ExtractJSON(content string) string {
	text := strings.TrimSpace(content)
	if text == "" {
		return ""
	}
	if json.Valid([]byte(text)) {
		return text
	}

	if fenced := stripCodeFence(text); fenced != text && json.Valid([]byte(fenced)) {
		return fenced
	}

	if match := jsonObjectPattern.FindString(text); match != "" && json.Valid([]byte(match)) {
		return match
	}
	return ""
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// ParsePayload converts a raw extraction payload into a PageResult. Unknown
// or malformed entries are skipped rather than failing the page.
func ParsePayload(pageNumber int, data []byte) (*PageResult, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error decoding extraction payload: %w", err)
	}

	result := &PageResult{}

	if p.DocumentType != nil && p.DocumentType.Label != "" {
		result.DocumentType = &DocumentTypeHint{
			Label:      p.DocumentType.Label,
			Confidence: QuantizeConfidence(deref(p.DocumentType.Confidence)),
			Reasons:    p.DocumentType.Reasons,
		}
	}

	for i, f := range p.Fields {
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("field-%d-%d", pageNumber, i+1)
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = fmt.Sprintf("Field %d", i+1)
		}
		result.Fields = append(result.Fields, Field{
			ID:         id,
			Page:       pageNumber,
			Name:       name,
			Value:      f.Value,
			Confidence: QuantizeConfidence(deref(f.Confidence)),
			BBox:       parseBBox(f.BBox),
			SourceType: f.SourceType,
		})
	}

	for _, t := range p.Tables {
		result.Tables = append(result.Tables, parseTable(pageNumber, t))
	}

	return result, nil
}

func parseTable(pageNumber int, t tablePayload) tables.Candidate {
	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}

	candidate := tables.Candidate{
		ID:         id,
		Page:       pageNumber,
		Caption:    strings.TrimSpace(t.Caption),
		Confidence: QuantizeConfidence(deref(t.Confidence)),
		BBox:       parseBBox(t.BBox),
	}

	for i, col := range t.Columns {
		key := col.Key
		if key == "" {
			key = NormalizeColumnKey(col.Header)
		}
		if key == "" {
			key = fmt.Sprintf("column_%d", i)
		}
		candidate.Columns = append(candidate.Columns, tables.Column{
			Key:        key,
			Header:     strings.TrimSpace(col.Header),
			Type:       col.Type,
			Confidence: quantizePtr(col.Confidence),
		})
	}

	for _, row := range t.Rows {
		cells := make([]tables.Cell, 0, len(row))
		for _, cell := range row {
			cells = append(cells, tables.Cell{
				Value:      cell.Value,
				Confidence: quantizePtr(cell.Confidence),
				BBox:       parseBBox(cell.BBox),
			})
		}
		candidate.Rows = append(candidate.Rows, cells)
	}

	// Recognizers sometimes emit rows without column definitions; keep the
	// candidate anyway so header propagation can resolve it downstream.
	return candidate
}

func parseBBox(b *bboxPayload) *tables.BoundingBox {
	if b == nil || b.X == nil || b.Y == nil || b.Width == nil || b.Height == nil {
		return nil
	}
	return &tables.BoundingBox{X: *b.X, Y: *b.Y, Width: *b.Width, Height: *b.Height}
}

// NormalizeColumnKey lowercases a header label and collapses every
// non-alphanumeric run into a single underscore.
func NormalizeColumnKey(header string) string {
	text := strings.ToLower(strings.TrimSpace(header))
	if text == "" {
		return ""
	}
	return strings.Trim(columnKeyPattern.ReplaceAllString(text, "_"), "_")
}

// QuantizeConfidence clamps a confidence to [0,1] and snaps it to the
// nearest allowed step.
func QuantizeConfidence(value float64) float64 {
	clamped := math.Max(0, math.Min(1, value))
	best := constants.ConfidenceSteps[0]
	bestDist := math.Abs(best - clamped)
	for _, step := range constants.ConfidenceSteps[1:] {
		if dist := math.Abs(step - clamped); dist < bestDist {
			best = step
			bestDist = dist
		}
	}
	return best
}

func quantizePtr(value *float64) *float64 {
	if value == nil {
		return nil
	}
	q := QuantizeConfidence(*value)
	return &q
}

func deref(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
