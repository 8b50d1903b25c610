// Package normalizer turns a downloaded error report into per-family
// ErrorRecord partitions.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/sirupsen/logrus"
)

// Result is the normalized content of one report.
type Result struct {
	Engine        string
	HeaderRow     int
	Families      []string // first-seen order
	Partitions    map[string][]domain.ErrorRecord
	TotalRows     int
	NTFDiscarded  int
	Duplicates    int
	MissingFamily int
	BadNumbers    int
}

// Records returns the number of retained records across all families.
func (r Result) Records() int {
	total := 0
	for _, records := range r.Partitions {
		total += len(records)
	}
	return total
}

// Normalizer reads report files. It is safe for sequential reuse.
type Normalizer struct {
	sheet   string
	engines []engine
	now     func() time.Time
	logger  logrus.FieldLogger
}

type Option func(*Normalizer)

// WithClock overrides the ingestion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// New returns a normalizer reading the named workbook sheet.
func New(sheet string, logger logrus.FieldLogger, opts ...Option) *Normalizer {
	n := &Normalizer{
		sheet:   sheet,
		engines: defaultEngines(),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	if strings.TrimSpace(n.sheet) == "" {
		n.sheet = "Total"
	}
	return n
}

// Normalize parses the batch file. Every failure is a *domain.FormatError and
// no partial result is returned with it.
func (n *Normalizer) Normalize(ctx context.Context, batch domain.ReportBatch) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log := n.logger.WithFields(logrus.Fields{"file": batch.Path, "shift": batch.Shift})

	rows, engineName, err := n.readRows(batch.Path)
	if err != nil {
		return Result{}, domain.NewFormatError(batch.Path, err)
	}
	log = log.WithField("engine", engineName)

	header := locateHeader(rows)
	if !header.Found {
		log.WithField("rows", len(rows)).Error("no header row found")
		return Result{}, domain.NewFormatError(batch.Path, fmt.Errorf(
			"no header row with %q in column %d and %q in column %d",
			ntfAnchorText, ntfAnchorColumn+1, testcodeAnchorText, testcodeAnchorColumn+1,
		))
	}
	log.WithFields(logrus.Fields{"header_row": header.Offset, "columns": header.Columns}).Info("header row found")

	positions, missing := bindColumns(header.Columns)
	if len(missing) > 0 {
		return Result{}, domain.NewFormatError(batch.Path, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	result := n.transform(rows[header.Offset+1:], positions, batch.Shift)
	result.Engine = engineName
	result.HeaderRow = header.Offset

	log.WithFields(logrus.Fields{
		"rows":           result.TotalRows,
		"ntf_discarded":  result.NTFDiscarded,
		"duplicates":     result.Duplicates,
		"missing_family": result.MissingFamily,
		"retained":       result.Records(),
	}).Info("filtered report rows")
	if result.BadNumbers > 0 {
		log.WithField("cells", result.BadNumbers).Warn("non-numeric values in numeric columns stored as empty")
	}
	log.WithField("families", result.Families).Info("found models")

	return result, nil
}

func (n *Normalizer) readRows(path string) ([][]string, string, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read report: %w", err)
	}

	var attempts []error
	for _, e := range n.engines {
		rows, err := e.ReadRows(path, head, n.sheet)
		if err == nil {
			return rows, e.Name(), nil
		}
		if errors.Is(err, errNotThisFormat) {
			continue
		}
		n.logger.WithFields(logrus.Fields{"engine": e.Name(), "file": path}).WithError(err).Warn("engine could not read report")
		attempts = append(attempts, fmt.Errorf("%s: %w", e.Name(), err))
	}

	if len(attempts) == 0 {
		return nil, "", errors.New("no engine recognises the file format")
	}
	return nil, "", fmt.Errorf("failed to read report with any engine: %w", errors.Join(attempts...))
}

// transform filters, deduplicates, and partitions the data rows below the header.
func (n *Normalizer) transform(rows [][]string, positions map[string]int, shift domain.Shift) Result {
	result := Result{Partitions: make(map[string][]domain.ErrorRecord)}
	ingestedAt := n.now()
	seen := make(map[string]struct{})

	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		result.TotalRows++

		if cellAt(row, positions[colNTF]) != "" {
			result.NTFDiscarded++
			continue
		}

		trackID := cellAt(row, positions[colTrackID])
		if _, dup := seen[trackID]; dup {
			result.Duplicates++
			continue
		}
		seen[trackID] = struct{}{}

		family := cellAt(row, positions[colFamily])
		if family == "" {
			result.MissingFamily++
			continue
		}

		record := domain.ErrorRecord{
			TrackID:        trackID,
			Family:         family,
			Process:        cellAt(row, positions[colProcess]),
			TestCode:       cellAt(row, positions[colTestcode]),
			SecondPassFail: cellAt(row, positions[colSecondPassFail]),
			ThirdPassFail:  cellAt(row, positions[colThirdPassFail]),
			Shift:          shift,
			IngestedAt:     ingestedAt,
		}
		record.TestValue = result.number(cellAt(row, positions[colTestValue]))
		record.LowerLimit = result.number(cellAt(row, positions[colLowerLimit]))
		record.UpperLimit = result.number(cellAt(row, positions[colUpperLimit]))

		if _, ok := result.Partitions[family]; !ok {
			result.Families = append(result.Families, family)
		}
		result.Partitions[family] = append(result.Partitions[family], record)
	}

	return result
}

// number parses a numeric cell. Blank is absent; unparseable text is absent and counted.
func (r *Result) number(raw string) *float64 {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.BadNumbers++
		return nil
	}
	return &value
}
