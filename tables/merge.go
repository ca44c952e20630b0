package tables

import "github.com/sirupsen/logrus"

// MergeGroups collapses every observed group into one logical table per
// continuation chain. Fragment rows were already trimmed at match time; the
// merge re-checks adjacent rows across fragment boundaries anyway, because a
// recognizer occasionally re-captures a boundary row with headers attached
// so the match-time trim misses it. Removing more rows than the match-time
// trims predicted is a data anomaly: it is logged and the merge continues.
func (m *Matcher) MergeGroups() []Merged {
	segments := m.allSegments()
	merged := make([]Merged, 0, len(segments))
	for _, seg := range segments {
		merged = append(merged, mergeSegment(seg))
	}
	return merged
}

func mergeSegment(seg *segment) Merged {
	first := seg.fragments[0]
	out := Merged{
		GroupID: seg.group.ID,
		Page:    first.Page,
		Caption: seg.caption,
		Columns: append([]Column(nil), seg.columns...),
	}

	// A sole member passes through untouched.
	if len(seg.fragments) == 1 {
		out.Rows = seg.rows[0]
		out.Fragments = []Fragment{first}
		return out
	}

	dropped := 0
	for i, fragment := range seg.fragments {
		fragment.RowStart = len(out.Rows)
		rows := seg.rows[i]
		// Only the first row of a fragment can duplicate the tail of the
		// previous one; identical adjacent rows within a page are real data.
		if i > 0 && len(rows) > 0 && len(out.Rows) > 0 &&
			rowSignature(rows[0]) == rowSignature(out.Rows[len(out.Rows)-1]) {
			rows = rows[1:]
			fragment.TrimmedRows++
			dropped++
		}
		out.Rows = append(out.Rows, rows...)
		if fragment.InferredHeaders {
			out.InferredHeaders = true
		}
		out.Fragments = append(out.Fragments, fragment)
	}

	if dropped > 0 {
		log.WithFields(logrus.Fields{
			"group":        seg.group.ID,
			"rows_dropped": dropped,
		}).Warn("Merge removed duplicate rows not caught at match time")
	}

	return out
}
