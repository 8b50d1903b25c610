// Package dashboard serves read-only views over the stored model datasets.
package dashboard

import (
	"context"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/sirupsen/logrus"
)

const noDataMessage = "no data"

type Service struct {
	reader store.Reader
	now    func() time.Time
	logger logrus.FieldLogger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(reader store.Reader, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{reader: reader, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Models(ctx context.Context) ([]domain.ModelDataset, error) {
	return s.reader.ListDatasets(ctx)
}

// RecordsView is a filtered dataset. An empty view carries a message
// instead of an error.
type RecordsView struct {
	Collection string               `json:"collection"`
	Count      int                  `json:"count"`
	Records    []domain.ErrorRecord `json:"records"`
	Message    string               `json:"message,omitempty"`
}

func (s *Service) Records(ctx context.Context, collection string, filter domain.RecordFilter) (RecordsView, error) {
	records, err := s.reader.Records(ctx, collection, filter)
	if err != nil {
		return RecordsView{}, err
	}
	view := RecordsView{Collection: collection, Count: len(records), Records: records}
	if len(records) == 0 {
		view.Records = []domain.ErrorRecord{}
		view.Message = noDataMessage
	}
	return view, nil
}

// Summary computes headline figures over the shift view and narrows only
// the testcode and process breakdowns by the process filter.
func (s *Service) Summary(ctx context.Context, collection string, filter domain.RecordFilter) (Summary, error) {
	headline, err := s.reader.Records(ctx, collection, domain.RecordFilter{Shift: filter.Shift})
	if err != nil {
		return Summary{}, err
	}
	detail := headline
	if filter.Process != "" {
		detail = make([]domain.ErrorRecord, 0, len(headline))
		for _, r := range headline {
			if filter.Matches(r) {
				detail = append(detail, r)
			}
		}
	}
	return Summarize(collection, headline, detail), nil
}

// Export returns the records to download and the file name to offer.
func (s *Service) Export(ctx context.Context, collection string, filter domain.RecordFilter) ([]domain.ErrorRecord, string, error) {
	records, err := s.reader.Records(ctx, collection, filter)
	if err != nil {
		return nil, "", err
	}
	s.logger.WithFields(logrus.Fields{"collection": collection, "records": len(records)}).Info("exporting dataset")
	return records, ExportFilename(collection, s.now()), nil
}

func (s *Service) Runs(ctx context.Context, limit int) ([]domain.CycleRun, error) {
	return s.reader.LatestRuns(ctx, limit)
}
