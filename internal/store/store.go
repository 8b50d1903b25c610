// Package store persists one snapshot collection per product family.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/sirupsen/logrus"
)

// ErrCollectionNotFound is returned when reading a collection that was never written.
var ErrCollectionNotFound = errors.New("collection not found")

// ModelStore replaces the stored snapshot for a family.
type ModelStore interface {
	Replace(ctx context.Context, family string, records []domain.ErrorRecord) error
}

// Reader is the read-only side used by the dashboard.
type Reader interface {
	ListDatasets(ctx context.Context) ([]domain.ModelDataset, error)
	Records(ctx context.Context, collection string, filter domain.RecordFilter) ([]domain.ErrorRecord, error)
	LatestRuns(ctx context.Context, limit int) ([]domain.CycleRun, error)
}

// RunRecorder keeps the cycle audit trail.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.CycleRun) error
}

// Store is a storage backend. Close releases the underlying connection.
type Store interface {
	ModelStore
	Reader
	RunRecorder
	Close() error
}

// Open connects the backend selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.Database, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Storage.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// recordColumns is the physical column order of a collection table.
var recordColumns = []string{
	"position", "track_id", "family", "process", "test_code",
	"test_value", "lower_limit", "upper_limit",
	"second_pass_fail", "third_pass_fail", "shift", "ingested_at",
}

func snapshotShift(records []domain.ErrorRecord) domain.Shift {
	if len(records) == 0 {
		return 0
	}
	return records[0].Shift
}

func logReplace(logger logrus.FieldLogger, family, collection string, records []domain.ErrorRecord) {
	log := logger.WithFields(logrus.Fields{"family": family, "collection": collection})
	if len(records) == 0 {
		log.Warn("no data to push, collection cleared")
		return
	}
	log.WithFields(logrus.Fields{"records": len(records), "shift": records[0].Shift}).Info("replaced collection snapshot")
}

func defaultRunLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
