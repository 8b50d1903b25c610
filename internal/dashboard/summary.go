package dashboard

import (
	"math"
	"sort"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
)

const topTestcodeLimit = 5

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityGood     Severity = "good"
)

func severityFor(count int) Severity {
	switch {
	case count >= 10:
		return SeverityCritical
	case count >= 5:
		return SeverityWarning
	default:
		return SeverityGood
	}
}

type TestcodeCount struct {
	Testcode string   `json:"testcode"`
	Count    int      `json:"count"`
	Severity Severity `json:"severity"`
}

type ProcessShare struct {
	Process string  `json:"process"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary holds the headline figures for one dataset view.
type Summary struct {
	Collection      string          `json:"collection"`
	TotalErrors     int             `json:"total_errors"`
	UniqueTestcodes int             `json:"unique_testcodes"`
	AffectedUnits   int             `json:"affected_units"`
	ErrorRate       float64         `json:"error_rate"`
	TopTestcodes    []TestcodeCount `json:"top_testcodes"`
	Processes       []ProcessShare  `json:"processes"`
	Message         string          `json:"message,omitempty"`
}

// Summarize computes the summary of a dataset view. The headline figures
// come from headline; the top testcodes and process shares come from
// detail, which is headline narrowed by any process filter. Error rate is
// errors per affected unit, as a percentage.
func Summarize(collection string, headline, detail []domain.ErrorRecord) Summary {
	summary := Summary{
		Collection:   collection,
		TotalErrors:  len(headline),
		TopTestcodes: []TestcodeCount{},
		Processes:    []ProcessShare{},
	}
	if len(headline) == 0 {
		summary.Message = noDataMessage
		return summary
	}

	codes := map[string]struct{}{}
	units := map[string]struct{}{}
	for _, r := range headline {
		codes[r.TestCode] = struct{}{}
		units[r.TrackID] = struct{}{}
	}
	summary.UniqueTestcodes = len(codes)
	summary.AffectedUnits = len(units)
	summary.ErrorRate = round1(float64(summary.TotalErrors) / float64(summary.AffectedUnits) * 100)

	testcodes := map[string]int{}
	processes := map[string]int{}
	for _, r := range detail {
		testcodes[r.TestCode]++
		processes[r.Process]++
	}
	for i, count := range rankCounts(testcodes) {
		if i >= topTestcodeLimit {
			break
		}
		summary.TopTestcodes = append(summary.TopTestcodes, TestcodeCount{
			Testcode: count.key,
			Count:    count.n,
			Severity: severityFor(count.n),
		})
	}
	for _, count := range rankCounts(processes) {
		summary.Processes = append(summary.Processes, ProcessShare{
			Process: count.key,
			Count:   count.n,
			Percent: round1(float64(count.n) / float64(len(detail)) * 100),
		})
	}
	return summary
}

type keyCount struct {
	key string
	n   int
}

// rankCounts orders by count descending, then key ascending.
func rankCounts(counts map[string]int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, keyCount{key: k, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
