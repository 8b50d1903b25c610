package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/immahesh111/modelerror-dashboard/internal/db"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"
)

const postgresSchema = "error_data"

// PostgresStore keeps each collection as a table in the error_data schema.
type PostgresStore struct {
	conn   *db.Connection
	logger logrus.FieldLogger
}

// OpenPostgres connects, migrates, and returns a store owning the pool.
func OpenPostgres(ctx context.Context, cfg db.Config, logger logrus.FieldLogger) (*PostgresStore, error) {
	if err := db.RunMigrations(cfg, logger); err != nil {
		return nil, domain.NewStoreError("", err)
	}
	conn, err := db.NewConnection(ctx, cfg, logger)
	if err != nil {
		return nil, domain.NewStoreError("", err)
	}
	return NewPostgresStore(conn, logger), nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(conn *db.Connection, logger logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{conn: conn, logger: logger}
}

func (s *PostgresStore) Close() error {
	s.conn.Close()
	return nil
}

func collectionTable(collection string) pgx.Identifier {
	return pgx.Identifier{postgresSchema, collection}
}

// Replace clears the family's collection and writes records in one transaction.
func (s *PostgresStore) Replace(ctx context.Context, family string, records []domain.ErrorRecord) error {
	collection := domain.CollectionName(family)
	if collection == "" {
		return domain.NewStoreError(collection, errors.New("empty family"))
	}
	table := collectionTable(collection)

	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			position         INTEGER NOT NULL,
			track_id         TEXT NOT NULL,
			family           TEXT NOT NULL,
			process          TEXT NOT NULL DEFAULT '',
			test_code        TEXT NOT NULL DEFAULT '',
			test_value       DOUBLE PRECISION,
			lower_limit      DOUBLE PRECISION,
			upper_limit      DOUBLE PRECISION,
			second_pass_fail TEXT NOT NULL DEFAULT '',
			third_pass_fail  TEXT NOT NULL DEFAULT '',
			shift            SMALLINT NOT NULL,
			ingested_at      TIMESTAMPTZ NOT NULL
		)`, table.Sanitize())
		if _, err := tx.Exec(ctx, create); err != nil {
			return fmt.Errorf("failed to ensure table: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM "+table.Sanitize()); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}

		if len(records) > 0 {
			copied, err := tx.CopyFrom(ctx, table, recordColumns, pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				r := records[i]
				return []any{
					i, r.TrackID, r.Family, r.Process, r.TestCode,
					r.TestValue, r.LowerLimit, r.UpperLimit,
					r.SecondPassFail, r.ThirdPassFail, int16(r.Shift), r.IngestedAt,
				}, nil
			}))
			if err != nil {
				return fmt.Errorf("failed to insert records: %w", err)
			}
			if int(copied) != len(records) {
				return fmt.Errorf("inserted %d of %d records", copied, len(records))
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO model_datasets (collection, family, shift, record_count, replaced_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (collection) DO UPDATE
			 SET family = EXCLUDED.family,
			     shift = EXCLUDED.shift,
			     record_count = EXCLUDED.record_count,
			     replaced_at = EXCLUDED.replaced_at`,
			collection, family, int16(snapshotShift(records)), len(records),
		)
		if err != nil {
			return fmt.Errorf("failed to update dataset registry: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError(collection, err)
	}

	logReplace(s.logger, family, collection, records)
	return nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context) ([]domain.ModelDataset, error) {
	rows, err := s.conn.Pool.Query(ctx,
		`SELECT collection, family, shift, record_count, replaced_at
		 FROM model_datasets
		 ORDER BY collection`)
	if err != nil {
		return nil, domain.NewStoreError("", fmt.Errorf("failed to list datasets: %w", err))
	}
	defer rows.Close()

	datasets := []domain.ModelDataset{}
	for rows.Next() {
		var (
			ds    domain.ModelDataset
			shift int16
		)
		if err := rows.Scan(&ds.Collection, &ds.Family, &shift, &ds.RecordCount, &ds.ReplacedAt); err != nil {
			return nil, domain.NewStoreError("", fmt.Errorf("failed to scan dataset: %w", err))
		}
		ds.Shift = domain.Shift(shift)
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("", fmt.Errorf("failed to iterate datasets: %w", err))
	}
	return datasets, nil
}

func (s *PostgresStore) Records(ctx context.Context, collection string, filter domain.RecordFilter) ([]domain.ErrorRecord, error) {
	var exists bool
	if err := s.conn.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM model_datasets WHERE collection = $1)`, collection,
	).Scan(&exists); err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to look up collection: %w", err))
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}

	query := fmt.Sprintf(`SELECT track_id, family, process, test_code, test_value, lower_limit, upper_limit,
		second_pass_fail, third_pass_fail, shift, ingested_at
		FROM %s
		WHERE ($1::smallint IS NULL OR shift = $1)
		  AND ($2 = '' OR process = $2)
		ORDER BY position`, collectionTable(collection).Sanitize())

	var shift pgtype.Int2
	if filter.Shift != nil {
		shift = pgtype.Int2{Int16: int16(*filter.Shift), Valid: true}
	}

	rows, err := s.conn.Pool.Query(ctx, query, shift, filter.Process)
	if err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to query records: %w", err))
	}
	defer rows.Close()

	records := []domain.ErrorRecord{}
	for rows.Next() {
		var (
			r        domain.ErrorRecord
			rowShift int16
		)
		if err := rows.Scan(
			&r.TrackID, &r.Family, &r.Process, &r.TestCode,
			&r.TestValue, &r.LowerLimit, &r.UpperLimit,
			&r.SecondPassFail, &r.ThirdPassFail, &rowShift, &r.IngestedAt,
		); err != nil {
			return nil, domain.NewStoreError(collection, fmt.Errorf("failed to scan record: %w", err))
		}
		r.Shift = domain.Shift(rowShift)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to iterate records: %w", err))
	}
	return records, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run domain.CycleRun) error {
	_, err := s.conn.Pool.Exec(ctx,
		`INSERT INTO cycle_runs (id, shift, status, stage, families, records, error_message, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, int16(run.Shift), string(run.Status), run.Stage, run.Families, run.Records,
		run.ErrorMessage, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return domain.NewStoreError("cycle_runs", fmt.Errorf("failed to record cycle run: %w", err))
	}
	return nil
}

func (s *PostgresStore) LatestRuns(ctx context.Context, limit int) ([]domain.CycleRun, error) {
	rows, err := s.conn.Pool.Query(ctx,
		`SELECT id, shift, status, COALESCE(stage, ''), families, records, error_message, started_at, finished_at
		 FROM cycle_runs
		 ORDER BY started_at DESC
		 LIMIT $1`, defaultRunLimit(limit))
	if err != nil {
		return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to list cycle runs: %w", err))
	}
	defer rows.Close()

	runs := []domain.CycleRun{}
	for rows.Next() {
		var (
			run    domain.CycleRun
			shift  int16
			status string
		)
		if err := rows.Scan(&run.ID, &shift, &status, &run.Stage, &run.Families, &run.Records,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to scan cycle run: %w", err))
		}
		run.Shift = domain.Shift(shift)
		run.Status = domain.CycleRunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to iterate cycle runs: %w", err))
	}
	return runs, nil
}
