package tables

import "strings"

// BoundingBox describes a table's location on the page in page-relative units.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Cell is one value in a table row.
type Cell struct {
	Value      string       `json:"value"`
	Confidence *float64     `json:"confidence,omitempty"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// Column describes one column of a table, including its header label.
type Column struct {
	Key        string   `json:"key"`
	Header     string   `json:"header"`
	Type       string   `json:"type,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Candidate is one table fragment as returned by the recognizer for a single
// page. Candidates are immutable once observed by a Matcher; the matcher
// produces derived copies when it trims rows or propagates headers.
type Candidate struct {
	ID         string       `json:"id"`
	Page       int          `json:"page"`
	Caption    string       `json:"caption,omitempty"`
	Confidence float64      `json:"confidence"`
	Columns    []Column     `json:"columns"`
	Rows       [][]Cell     `json:"rows"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// HasHeaders reports whether the candidate carries at least one non-blank
// header label.
func (c Candidate) HasHeaders() bool {
	for _, col := range c.Columns {
		if strings.TrimSpace(col.Header) != "" {
			return true
		}
	}
	return false
}

// ColumnCount returns the number of columns, falling back to the widest row
// when the recognizer returned no column definitions.
func (c Candidate) ColumnCount() int {
	if len(c.Columns) > 0 {
		return len(c.Columns)
	}
	widest := 0
	for _, row := range c.Rows {
		if len(row) > widest {
			widest = len(row)
		}
	}
	return widest
}

// Assignment records the matcher's verdict for one observed candidate.
type Assignment struct {
	GroupID         string `json:"tableGroupId"`
	ContinuationOf  string `json:"continuationOf,omitempty"`
	InferredHeaders bool   `json:"inferredHeaders"`
	RowTrimmed      bool   `json:"rowTrimmed"`
}

// Group is one continuation chain: a group identifier plus its member
// candidate identifiers in strictly increasing page order.
type Group struct {
	ID      string   `json:"tableGroupId"`
	Members []string `json:"members"`
}

// Fragment traces one original candidate inside a merged table.
type Fragment struct {
	CandidateID     string `json:"id"`
	Page            int    `json:"page"`
	ContinuationOf  string `json:"continuationOf,omitempty"`
	RowStart        int    `json:"rowStartIndex"`
	InferredHeaders bool   `json:"inferredHeaders"`
	TrimmedRows     int    `json:"trimmedRows"`
}

// Merged is the logical table assembled from all fragments of one group.
type Merged struct {
	GroupID         string     `json:"tableGroupId"`
	Page            int        `json:"page"`
	Caption         string     `json:"caption,omitempty"`
	Columns         []Column   `json:"columns"`
	Rows            [][]Cell   `json:"rows"`
	Fragments       []Fragment `json:"fragments"`
	InferredHeaders bool       `json:"inferredHeaders"`
}

// rowSignature builds the normalized representation used to detect rows that
// were re-captured at a fragment boundary. Cell values are trimmed,
// case-folded and whitespace-collapsed so that formatting jitter between two
// captures of the same physical row does not defeat the comparison.
func rowSignature(row []Cell) string {
	parts := make([]string, len(row))
	for i, cell := range row {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(cell.Value)), " ")
	}
	return strings.Join(parts, "\x1f")
}
