package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRows(values ...[]string) [][]Cell {
	rows := make([][]Cell, 0, len(values))
	for _, rowValues := range values {
		row := make([]Cell, 0, len(rowValues))
		for _, v := range rowValues {
			row = append(row, Cell{Value: v})
		}
		rows = append(rows, row)
	}
	return rows
}

func makeColumns(headers ...string) []Column {
	columns := make([]Column, 0, len(headers))
	for _, h := range headers {
		columns = append(columns, Column{Key: h, Header: h})
	}
	return columns
}

func headerlessColumns(n int) []Column {
	columns := make([]Column, 0, n)
	for i := 0; i < n; i++ {
		columns = append(columns, Column{})
	}
	return columns
}

func TestMatcherContinuesAdjacentPages(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	first := m.Observe(Candidate{
		ID:      "t1",
		Page:    1,
		Columns: makeColumns("Rev", "Desc", "Total"),
		Rows:    makeRows([]string{"1", "a", "10"}),
	})
	second := m.Observe(Candidate{
		ID:      "t2",
		Page:    2,
		Columns: makeColumns("Rev", "Desc", "Total"),
		Rows:    makeRows([]string{"2", "b", "20"}),
	})

	assert.Equal(t, first.GroupID, second.GroupID)
	assert.Equal(t, "t1", second.ContinuationOf)
	assert.Empty(t, first.ContinuationOf)
	assert.Len(t, m.Groups(), 1)
}

func TestMatcherPageGapBreaksGroup(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	first := m.Observe(Candidate{ID: "t1", Page: 1, Rows: makeRows([]string{"a"})})
	// Page 2 produced no candidates; page 3 must start a fresh group even
	// with an otherwise identical shape.
	third := m.Observe(Candidate{ID: "t3", Page: 3, Rows: makeRows([]string{"b"})})

	assert.NotEqual(t, first.GroupID, third.GroupID)
	assert.Empty(t, third.ContinuationOf)
	assert.Len(t, m.Groups(), 2)
}

func TestMatcherWidthRatio(t *testing.T) {
	tests := []struct {
		name      string
		prevBBox  *BoundingBox
		currBBox  *BoundingBox
		sameGroup bool
	}{
		{
			name:      "similar widths continue",
			prevBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.5},
			currBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.76, Height: 0.6},
			sameGroup: true,
		},
		{
			name:      "too narrow breaks",
			prevBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.5},
			currBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.4, Height: 0.5},
			sameGroup: false,
		},
		{
			name:      "too wide breaks",
			prevBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.5},
			currBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.7, Height: 0.5},
			sameGroup: false,
		},
		{
			name:      "missing bbox passes the width rule",
			prevBBox:  &BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.5},
			currBBox:  nil,
			sameGroup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(DefaultConfig())
			first := m.Observe(Candidate{ID: "t1", Page: 1, BBox: tt.prevBBox, Rows: makeRows([]string{"a"})})
			second := m.Observe(Candidate{ID: "t2", Page: 2, BBox: tt.currBBox, Rows: makeRows([]string{"b"})})

			if tt.sameGroup {
				assert.Equal(t, first.GroupID, second.GroupID)
			} else {
				assert.NotEqual(t, first.GroupID, second.GroupID)
			}
		})
	}
}

func TestMatcherHeaderRules(t *testing.T) {
	tests := []struct {
		name        string
		prevColumns []Column
		currColumns []Column
		sameGroup   bool
	}{
		{
			name:        "matching headers continue",
			prevColumns: makeColumns("Rev", "Desc", "Total"),
			currColumns: makeColumns("Rev", "Desc", "Total"),
			sameGroup:   true,
		},
		{
			name:        "low overlap breaks",
			prevColumns: makeColumns("Rev", "Desc", "Total"),
			currColumns: makeColumns("Name", "Qty", "Price"),
			sameGroup:   false,
		},
		{
			name:        "headerless continuation passes",
			prevColumns: makeColumns("Rev", "Desc", "Total"),
			currColumns: nil,
			sameGroup:   true,
		},
		{
			name:        "column count mismatch with headers on both sides breaks",
			prevColumns: makeColumns("Rev", "Desc", "Total"),
			currColumns: makeColumns("Rev", "Desc", "Total", "Notes"),
			sameGroup:   false,
		},
		{
			name:        "headerless candidate ignores column count rule",
			prevColumns: makeColumns("Rev", "Desc", "Total"),
			currColumns: headerlessColumns(4),
			sameGroup:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(DefaultConfig())
			first := m.Observe(Candidate{ID: "t1", Page: 1, Columns: tt.prevColumns, Rows: makeRows([]string{"a", "b", "c"})})
			second := m.Observe(Candidate{ID: "t2", Page: 2, Columns: tt.currColumns, Rows: makeRows([]string{"d", "e", "f"})})

			if tt.sameGroup {
				assert.Equal(t, first.GroupID, second.GroupID)
			} else {
				assert.NotEqual(t, first.GroupID, second.GroupID)
			}
		})
	}
}

func TestMatcherCaptionRule(t *testing.T) {
	tests := []struct {
		name        string
		prevCaption string
		currCaption string
		sameGroup   bool
	}{
		{name: "equal captions continue", prevCaption: "Revenue by Region", currCaption: "Revenue by Region", sameGroup: true},
		{name: "captions compare case-insensitively", prevCaption: "Revenue by Region", currCaption: "REVENUE BY REGION", sameGroup: true},
		{name: "different captions break", prevCaption: "Revenue by Region", currCaption: "Expenses", sameGroup: false},
		{name: "one empty caption continues", prevCaption: "Revenue by Region", currCaption: "", sameGroup: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(DefaultConfig())
			first := m.Observe(Candidate{ID: "t1", Page: 1, Caption: tt.prevCaption, Rows: makeRows([]string{"a"})})
			second := m.Observe(Candidate{ID: "t2", Page: 2, Caption: tt.currCaption, Rows: makeRows([]string{"b"})})

			if tt.sameGroup {
				assert.Equal(t, first.GroupID, second.GroupID)
			} else {
				assert.NotEqual(t, first.GroupID, second.GroupID)
			}
		})
	}
}

func TestMatcherTrimsBoundaryRowExactlyOnce(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	m.Observe(Candidate{
		ID:   "t1",
		Page: 1,
		Rows: makeRows([]string{"1", "a"}, []string{"2", "b"}),
	})
	second := m.Observe(Candidate{
		ID:   "t2",
		Page: 2,
		Rows: makeRows([]string{"2", "B "}, []string{"3", "c"}), // same row, formatting jitter
	})

	assert.True(t, second.RowTrimmed)

	merged := m.MergeGroups()
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Rows, 3)
	assert.Equal(t, "3", merged[0].Rows[2][0].Value)
	assert.Equal(t, 1, merged[0].Fragments[1].TrimmedRows)
}

func TestMatcherHeaderPropagation(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	m.Observe(Candidate{
		ID:      "t1",
		Page:    1,
		Columns: makeColumns("Rev", "Desc", "Total"),
		Rows:    makeRows([]string{"1", "a", "10"}),
	})
	second := m.Observe(Candidate{
		ID:   "t2",
		Page: 2,
		Rows: makeRows([]string{"2", "b", "20"}),
	})

	assert.True(t, second.InferredHeaders)

	merged := m.MergeGroups()
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Columns, 3)
	assert.Equal(t, "Rev", merged[0].Columns[0].Header)
	assert.True(t, merged[0].InferredHeaders)
	assert.True(t, merged[0].Fragments[1].InferredHeaders)
	assert.False(t, merged[0].Fragments[0].InferredHeaders)
}

func TestMatcherAdoptsLateHeaders(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	m.Observe(Candidate{ID: "t1", Page: 1, Rows: makeRows([]string{"1", "a"})})
	m.Observe(Candidate{
		ID:      "t2",
		Page:    2,
		Columns: makeColumns("Rev", "Desc"),
		Rows:    makeRows([]string{"2", "b"}),
	})

	merged := m.MergeGroups()
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Columns, 2)
	assert.Equal(t, "Rev", merged[0].Columns[0].Header)
}

func TestMatcherMostRecentTailWins(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	m.Observe(Candidate{ID: "a", Page: 1, Rows: makeRows([]string{"1"})})
	m.Observe(Candidate{ID: "b", Page: 1, Rows: makeRows([]string{"2"})})

	// Both open tails qualify; the most recently observed one must win.
	third := m.Observe(Candidate{ID: "c", Page: 2, Rows: makeRows([]string{"3"})})
	assert.Equal(t, "b", third.ContinuationOf)

	// No backtracking: the remaining page-2 candidate picks the older tail.
	fourth := m.Observe(Candidate{ID: "d", Page: 2, Rows: makeRows([]string{"4"})})
	assert.Equal(t, "a", fourth.ContinuationOf)
}

func TestMatcherSessionsAreIndependent(t *testing.T) {
	m1 := NewMatcher(DefaultConfig())
	m2 := NewMatcher(DefaultConfig())

	a1 := m1.Observe(Candidate{ID: "doc1-t1", Page: 1, Rows: makeRows([]string{"x"})})
	a2 := m2.Observe(Candidate{ID: "doc2-t1", Page: 1, Rows: makeRows([]string{"y"})})
	b1 := m1.Observe(Candidate{ID: "doc1-t2", Page: 2, Rows: makeRows([]string{"x"})})
	b2 := m2.Observe(Candidate{ID: "doc2-t2", Page: 2, Rows: makeRows([]string{"y"})})

	assert.Equal(t, a1.GroupID, b1.GroupID)
	assert.Equal(t, a2.GroupID, b2.GroupID)
	assert.NotEqual(t, a1.GroupID, a2.GroupID)
	assert.Equal(t, "doc1-t1", b1.ContinuationOf)
	assert.Equal(t, "doc2-t1", b2.ContinuationOf)
	assert.Len(t, m1.Groups(), 1)
	assert.Len(t, m2.Groups(), 1)
}

func TestMatcherChainContinuationOfPointsAtPredecessor(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	m.Observe(Candidate{ID: "t1", Page: 1, Rows: makeRows([]string{"1"})})
	second := m.Observe(Candidate{ID: "t2", Page: 2, Rows: makeRows([]string{"2"})})
	third := m.Observe(Candidate{ID: "t3", Page: 3, Rows: makeRows([]string{"3"})})

	assert.Equal(t, "t1", second.ContinuationOf)
	assert.Equal(t, "t2", third.ContinuationOf)

	groups := m.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, groups[0].Members)
}
