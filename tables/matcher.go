package tables

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the tables package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Config holds the continuation-matching thresholds.
type Config struct {
	// MinWidthRatio and MaxWidthRatio bound the bounding-box width ratio
	// between a fragment and the tail it continues.
	MinWidthRatio float64
	MaxWidthRatio float64

	// MinHeaderOverlap is the minimum shared-label ratio (shared labels
	// divided by the larger header count) for two headered fragments to be
	// considered the same table.
	MinHeaderOverlap float64
}

// DefaultConfig returns the matching thresholds used in production.
func DefaultConfig() Config {
	return Config{
		MinWidthRatio:    0.65,
		MaxWidthRatio:    1.35,
		MinHeaderOverlap: 0.60,
	}
}

// segment is the state the matcher keeps per group: the group's identity,
// its current tail, and the derived fragments accumulated for merging.
type segment struct {
	group     Group
	tail      Candidate
	columns   []Column // effective headers after propagation
	caption   string
	fragments []Fragment
	rows      [][][]Cell // per-fragment rows, boundary duplicates already trimmed
}

// Matcher groups sequential table fragments into continuation chains. It is
// an explicit per-document session: candidates must be observed in
// non-decreasing page order, and one Matcher must not be shared across
// documents. Feeding pages out of order violates the contract; the matcher
// does not attempt to recover from it.
//
// Only open tails are retained for matching, so memory is bounded by the
// number of groups still continuable on the latest page, not by document
// length.
type Matcher struct {
	cfg      Config
	open     []*segment // most recently observed tail last
	closed   []*segment
	lastPage int
}

// NewMatcher creates a matcher session for a single document.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Observe assigns the candidate to an existing open group or starts a new
// one, returning the assignment. A page for which the recognizer returned
// nothing simply never reaches Observe; the adjacency rule then closes the
// affected groups when the next page is seen.
func (m *Matcher) Observe(c Candidate) Assignment {
	if c.Page > m.lastPage {
		m.lastPage = c.Page
	}
	m.closeStale(c.Page)

	if seg := m.findContinuation(c); seg != nil {
		return m.extend(seg, c)
	}
	return m.openGroup(c)
}

// closeStale retires every open segment whose tail can no longer satisfy the
// adjacency rule for the given page.
func (m *Matcher) closeStale(page int) {
	remaining := m.open[:0]
	for _, seg := range m.open {
		if page-seg.tail.Page > 1 {
			m.closed = append(m.closed, seg)
		} else {
			remaining = append(remaining, seg)
		}
	}
	m.open = remaining
}

// findContinuation returns the open segment the candidate continues, or nil.
// When several tails qualify the most recently observed one wins; there is
// no backtracking once a candidate has been assigned.
func (m *Matcher) findContinuation(c Candidate) *segment {
	for i := len(m.open) - 1; i >= 0; i-- {
		seg := m.open[i]
		if m.isContinuation(seg, c) {
			return seg
		}
	}
	return nil
}

func (m *Matcher) isContinuation(seg *segment, c Candidate) bool {
	// Continuation only across exactly one page boundary.
	if c.Page != seg.tail.Page+1 {
		return false
	}

	if ratio, ok := widthRatio(seg.tail, c); ok {
		if ratio < m.cfg.MinWidthRatio || ratio > m.cfg.MaxWidthRatio {
			return false
		}
	}

	tailHasHeaders := len(seg.columns) > 0 && columnsHaveHeaders(seg.columns)
	if c.HasHeaders() && tailHasHeaders {
		if headerOverlap(seg.columns, c.Columns) < m.cfg.MinHeaderOverlap {
			return false
		}
	}
	// A headerless candidate defers to header propagation.

	if c.HasHeaders() && tailHasHeaders {
		// Both sides fully specified: the shapes must agree.
		if len(c.Columns) != len(seg.columns) {
			return false
		}
	}

	tailCaption := strings.TrimSpace(seg.caption)
	caption := strings.TrimSpace(c.Caption)
	if tailCaption != "" && caption != "" && !strings.EqualFold(tailCaption, caption) {
		return false
	}

	return true
}

// extend appends the candidate to an existing segment, trimming the
// re-captured boundary row and propagating headers when needed.
func (m *Matcher) extend(seg *segment, c Candidate) Assignment {
	assignment := Assignment{
		GroupID:        seg.group.ID,
		ContinuationOf: seg.tail.ID,
	}

	rows := c.Rows
	if len(seg.rows) > 0 {
		prevRows := seg.rows[len(seg.rows)-1]
		if len(prevRows) > 0 && len(rows) > 0 &&
			rowSignature(prevRows[len(prevRows)-1]) == rowSignature(rows[0]) {
			rows = rows[1:]
			assignment.RowTrimmed = true
		}
	}

	if !c.HasHeaders() {
		assignment.InferredHeaders = true
	} else if !columnsHaveHeaders(seg.columns) {
		// The chain started headerless; adopt the first real header set.
		seg.columns = append([]Column(nil), c.Columns...)
	}

	fragment := Fragment{
		CandidateID:     c.ID,
		Page:            c.Page,
		ContinuationOf:  seg.tail.ID,
		InferredHeaders: assignment.InferredHeaders,
	}
	if assignment.RowTrimmed {
		fragment.TrimmedRows = 1
	}

	seg.group.Members = append(seg.group.Members, c.ID)
	seg.tail = c
	seg.fragments = append(seg.fragments, fragment)
	seg.rows = append(seg.rows, rows)
	if seg.caption == "" {
		seg.caption = c.Caption
	}

	log.WithFields(logrus.Fields{
		"group":       seg.group.ID,
		"candidate":   c.ID,
		"page":        c.Page,
		"row_trimmed": assignment.RowTrimmed,
	}).Debug("Table fragment matched to open group")

	return assignment
}

// openGroup starts a new group with the candidate as sole member and tail.
func (m *Matcher) openGroup(c Candidate) Assignment {
	groupID := uuid.New().String()
	seg := &segment{
		group:   Group{ID: groupID, Members: []string{c.ID}},
		tail:    c,
		columns: append([]Column(nil), c.Columns...),
		caption: c.Caption,
		fragments: []Fragment{{
			CandidateID: c.ID,
			Page:        c.Page,
		}},
		rows: [][][]Cell{c.Rows},
	}
	m.open = append(m.open, seg)

	log.WithFields(logrus.Fields{
		"group":     groupID,
		"candidate": c.ID,
		"page":      c.Page,
	}).Debug("Opened new table group")

	return Assignment{GroupID: groupID}
}

// Groups returns every continuation chain observed so far, in the order the
// chains were opened.
func (m *Matcher) Groups() []Group {
	segments := m.allSegments()
	groups := make([]Group, 0, len(segments))
	for _, seg := range segments {
		groups = append(groups, seg.group)
	}
	return groups
}

func (m *Matcher) allSegments() []*segment {
	all := make([]*segment, 0, len(m.closed)+len(m.open))
	all = append(all, m.closed...)
	all = append(all, m.open...)
	return all
}

func widthRatio(prev, curr Candidate) (float64, bool) {
	if prev.BBox == nil || curr.BBox == nil || prev.BBox.Width == 0 {
		return 0, false
	}
	return curr.BBox.Width / prev.BBox.Width, true
}

func columnsHaveHeaders(columns []Column) bool {
	for _, col := range columns {
		if strings.TrimSpace(col.Header) != "" {
			return true
		}
	}
	return false
}

// headerOverlap is the shared-label count divided by the larger header count.
func headerOverlap(prev, curr []Column) float64 {
	prevSet := headerSet(prev)
	currSet := headerSet(curr)
	if len(prevSet) == 0 || len(currSet) == 0 {
		return 0
	}
	shared := 0
	for header := range currSet {
		if prevSet[header] {
			shared++
		}
	}
	larger := len(prevSet)
	if len(currSet) > larger {
		larger = len(currSet)
	}
	return float64(shared) / float64(larger)
}

func headerSet(columns []Column) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, col := range columns {
		header := strings.ToLower(strings.TrimSpace(col.Header))
		if header != "" {
			set[header] = true
		}
	}
	return set
}
