package normalizer

import "strings"

// Anchor cells identifying the header row. The row position varies between
// report layouts, the column positions do not.
const (
	ntfAnchorColumn      = 2
	ntfAnchorText        = "NTF?"
	testcodeAnchorColumn = 9
	testcodeAnchorText   = "Testcode"
)

// Report column names.
const (
	colTrackID        = "Track Id"
	colNTF            = "NTF?"
	colFamily         = "Family"
	colProcess        = "Process"
	colTestcode       = "Testcode"
	colTestValue      = "Test Val"
	colLowerLimit     = "LL"
	colUpperLimit     = "UL"
	colSecondPassFail = "2nd P/F"
	colThirdPassFail  = "3rd P/F"
)

// RequiredColumns is the projection every report must provide.
var RequiredColumns = []string{
	colTrackID, colNTF, colFamily, colProcess, colTestcode,
	colTestValue, colLowerLimit, colUpperLimit, colSecondPassFail, colThirdPassFail,
}

// headerMatch is the outcome of a header search. Found is false when no row
// carried both anchors; Offset and Columns are meaningless in that case.
type headerMatch struct {
	Found   bool
	Offset  int
	Columns []string
}

// locateHeader scans rows top-down for the first row holding both anchors.
func locateHeader(rows [][]string) headerMatch {
	for idx, row := range rows {
		if cellAt(row, ntfAnchorColumn) == ntfAnchorText && cellAt(row, testcodeAnchorColumn) == testcodeAnchorText {
			columns := make([]string, len(row))
			for i, value := range row {
				columns[i] = strings.TrimSpace(value)
			}
			return headerMatch{Found: true, Offset: idx, Columns: columns}
		}
	}
	return headerMatch{}
}

// bindColumns maps each required column to its index in the header. The
// first occurrence of a repeated name wins. Missing names are returned.
func bindColumns(columns []string) (map[string]int, []string) {
	positions := make(map[string]int, len(columns))
	for idx, name := range columns {
		if name == "" {
			continue
		}
		if _, seen := positions[name]; !seen {
			positions[name] = idx
		}
	}

	bound := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, name := range RequiredColumns {
		idx, ok := positions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		bound[name] = idx
	}
	return bound, missing
}

// cellAt returns the trimmed cell, treating cells past a ragged row end as blank.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
