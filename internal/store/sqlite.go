package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLite has no schemas, so collection tables carry a prefix instead.
const sqliteTablePrefix = "ds_"

// SQLiteStore is a single-file backend for local runs and tests.
type SQLiteStore struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.NewStoreError("", fmt.Errorf("failed to open sqlite: %w", err))
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	database.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			database.Close()
			return nil, domain.NewStoreError("", fmt.Errorf("failed to initialise sqlite schema: %w", err))
		}
	}
	return &SQLiteStore{db: database, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteTable(collection string) string {
	return `"` + strings.ReplaceAll(sqliteTablePrefix+collection, `"`, `""`) + `"`
}

func (s *SQLiteStore) Replace(ctx context.Context, family string, records []domain.ErrorRecord) error {
	collection := domain.CollectionName(family)
	if collection == "" {
		return domain.NewStoreError(collection, errors.New("empty family"))
	}
	if err := s.replace(ctx, family, collection, records); err != nil {
		return domain.NewStoreError(collection, err)
	}
	logReplace(s.logger, family, collection, records)
	return nil
}

func (s *SQLiteStore) replace(ctx context.Context, family, collection string, records []domain.ErrorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := sqliteTable(collection)
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position         INTEGER NOT NULL,
		track_id         TEXT NOT NULL,
		family           TEXT NOT NULL,
		process          TEXT NOT NULL DEFAULT '',
		test_code        TEXT NOT NULL DEFAULT '',
		test_value       REAL,
		lower_limit      REAL,
		upper_limit      REAL,
		second_pass_fail TEXT NOT NULL DEFAULT '',
		third_pass_fail  TEXT NOT NULL DEFAULT '',
		shift            INTEGER NOT NULL,
		ingested_at      TEXT NOT NULL
	)`, table)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to ensure table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}

	if len(records) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(recordColumns, ", "), placeholders))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx,
				i, r.TrackID, r.Family, r.Process, r.TestCode,
				r.TestValue, r.LowerLimit, r.UpperLimit,
				r.SecondPassFail, r.ThirdPassFail, int(r.Shift), formatStoredTime(r.IngestedAt),
			); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_datasets (collection, family, shift, record_count, replaced_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection) DO UPDATE
		 SET family = excluded.family,
		     shift = excluded.shift,
		     record_count = excluded.record_count,
		     replaced_at = excluded.replaced_at`,
		collection, family, int(snapshotShift(records)), len(records), formatStoredTime(time.Now()),
	); err != nil {
		return fmt.Errorf("failed to update dataset registry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]domain.ModelDataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, family, shift, record_count, replaced_at FROM model_datasets ORDER BY collection`)
	if err != nil {
		return nil, domain.NewStoreError("", fmt.Errorf("failed to list datasets: %w", err))
	}
	defer rows.Close()

	datasets := []domain.ModelDataset{}
	for rows.Next() {
		var (
			ds         domain.ModelDataset
			shift      int
			replacedAt string
		)
		if err := rows.Scan(&ds.Collection, &ds.Family, &shift, &ds.RecordCount, &replacedAt); err != nil {
			return nil, domain.NewStoreError("", fmt.Errorf("failed to scan dataset: %w", err))
		}
		ds.Shift = domain.Shift(shift)
		ds.ReplacedAt = parseStoredTime(replacedAt)
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("", fmt.Errorf("failed to iterate datasets: %w", err))
	}
	return datasets, nil
}

func (s *SQLiteStore) Records(ctx context.Context, collection string, filter domain.RecordFilter) ([]domain.ErrorRecord, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM model_datasets WHERE collection = ?`, collection,
	).Scan(&exists); err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to look up collection: %w", err))
	}
	if exists == 0 {
		return nil, ErrCollectionNotFound
	}

	var shift any
	if filter.Shift != nil {
		shift = int(*filter.Shift)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT track_id, family, process, test_code,
		test_value, lower_limit, upper_limit, second_pass_fail, third_pass_fail, shift, ingested_at
		FROM %s
		WHERE (? IS NULL OR shift = ?)
		  AND (? = '' OR process = ?)
		ORDER BY position`, sqliteTable(collection)),
		shift, shift, filter.Process, filter.Process,
	)
	if err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to query records: %w", err))
	}
	defer rows.Close()

	records := []domain.ErrorRecord{}
	for rows.Next() {
		var (
			r               domain.ErrorRecord
			value, ll, ul   sql.NullFloat64
			rowShift        int
			ingestedAtValue string
		)
		if err := rows.Scan(&r.TrackID, &r.Family, &r.Process, &r.TestCode, &value, &ll, &ul,
			&r.SecondPassFail, &r.ThirdPassFail, &rowShift, &ingestedAtValue); err != nil {
			return nil, domain.NewStoreError(collection, fmt.Errorf("failed to scan record: %w", err))
		}
		r.TestValue = nullFloat(value)
		r.LowerLimit = nullFloat(ll)
		r.UpperLimit = nullFloat(ul)
		r.Shift = domain.Shift(rowShift)
		r.IngestedAt = parseStoredTime(ingestedAtValue)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(collection, fmt.Errorf("failed to iterate records: %w", err))
	}
	return records, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run domain.CycleRun) error {
	var errorMessage sql.NullString
	if run.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *run.ErrorMessage, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycle_runs (id, shift, status, stage, families, records, error_message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), int(run.Shift), string(run.Status), run.Stage, run.Families, run.Records, errorMessage,
		formatStoredTime(run.StartedAt), formatStoredTime(run.FinishedAt),
	)
	if err != nil {
		return domain.NewStoreError("cycle_runs", fmt.Errorf("failed to record cycle run: %w", err))
	}
	return nil
}

func (s *SQLiteStore) LatestRuns(ctx context.Context, limit int) ([]domain.CycleRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shift, status, stage, families, records, error_message, started_at, finished_at
		 FROM cycle_runs ORDER BY started_at DESC LIMIT ?`, defaultRunLimit(limit))
	if err != nil {
		return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to list cycle runs: %w", err))
	}
	defer rows.Close()

	runs := []domain.CycleRun{}
	for rows.Next() {
		var (
			run                   domain.CycleRun
			id, status            string
			shift                 int
			errorMessage          sql.NullString
			startedAt, finishedAt string
		)
		if err := rows.Scan(&id, &shift, &status, &run.Stage, &run.Families, &run.Records,
			&errorMessage, &startedAt, &finishedAt); err != nil {
			return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to scan cycle run: %w", err))
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("invalid cycle run id %q: %w", id, err))
		}
		run.ID = parsed
		run.Shift = domain.Shift(shift)
		run.Status = domain.CycleRunStatus(status)
		if errorMessage.Valid {
			msg := errorMessage.String
			run.ErrorMessage = &msg
		}
		run.StartedAt = parseStoredTime(startedAt)
		run.FinishedAt = parseStoredTime(finishedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("cycle_runs", fmt.Errorf("failed to iterate cycle runs: %w", err))
	}
	return runs, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// storedTimeLayout is fixed width so text order matches time order.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseStoredTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
