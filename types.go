package main

import (
	"docstitch/extraction"
	"docstitch/tables"
)

// PageResponse is the response payload for a single processed page.
// Field names are part of the external contract; downstream consumers key on
// rotationApplied and the table identifiers verbatim.
type PageResponse struct {
	Page                  int                `json:"page"`
	RotationApplied       int                `json:"rotationApplied"`
	DeskewApplied         float64            `json:"deskewApplied"`
	OrientationConfidence float64            `json:"orientationConfidence"`
	OrientationMargin     float64            `json:"orientationMargin"`
	OrientationMethod     string             `json:"orientationMethod,omitempty"`
	DocumentType          string             `json:"documentType,omitempty"`
	Fields                []extraction.Field `json:"fields"`
	Tables                []AssignedTable    `json:"tables"`
}

// AssignedTable is a page's table candidate together with the matcher's
// verdict for it.
type AssignedTable struct {
	tables.Candidate
	TableGroupID    string `json:"tableGroupId"`
	ContinuationOf  string `json:"continuationOf,omitempty"`
	InferredHeaders bool   `json:"inferredHeaders"`
}

// TableGroupSummary is the condensed view of one stitched table chain,
// reported on the job detail endpoint.
type TableGroupSummary struct {
	TableGroupID string   `json:"tableGroupId"`
	Pages        []int    `json:"pages"`
	Fragments    int      `json:"fragments"`
	RowCount     int      `json:"rowCount"`
	Headers      []string `json:"headers,omitempty"`
	Caption      string   `json:"caption,omitempty"`
}

// MergedTableResponse is one fully stitched table on the tables endpoint.
type MergedTableResponse struct {
	TableGroupID    string            `json:"tableGroupId"`
	Page            int               `json:"page"`
	Caption         string            `json:"caption,omitempty"`
	Columns         []tables.Column   `json:"columns"`
	Rows            [][]tables.Cell   `json:"rows"`
	Fragments       []tables.Fragment `json:"fragments"`
	InferredHeaders bool              `json:"inferredHeaders"`
}
