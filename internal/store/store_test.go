package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func sampleRecords(family string, shift domain.Shift, at time.Time) []domain.ErrorRecord {
	return []domain.ErrorRecord{
		{TrackID: "T-001", Family: family, Process: "FT1", TestCode: "VBAT", TestValue: float(3.1), LowerLimit: float(3.3), UpperLimit: float(4.2), SecondPassFail: "FAIL", Shift: shift, IngestedAt: at},
		{TrackID: "T-002", Family: family, Process: "FT2", TestCode: "RSSI", SecondPassFail: "PASS", ThirdPassFail: "FAIL", Shift: shift, IngestedAt: at},
		{TrackID: "T-003", Family: family, Process: "FT1", TestCode: "VBAT", TestValue: float(-1.5), Shift: shift, IngestedAt: at},
	}
}

// runStoreConformance exercises the behaviour every backend must share.
func runStoreConformance(t *testing.T, open func(t *testing.T, logger logrus.FieldLogger) Store) {
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("replace is idempotent", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		records := sampleRecords("Moto G/54", domain.ShiftDay, at)
		require.NoError(t, s.Replace(ctx, "Moto G/54", records))
		require.NoError(t, s.Replace(ctx, "Moto G/54", records))

		got, err := s.Records(ctx, "Moto_G_54", domain.RecordFilter{})
		require.NoError(t, err)
		if diff := cmp.Diff(records, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
			t.Fatalf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("replace overwrites previous snapshot", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		require.NoError(t, s.Replace(ctx, "Edge 50", sampleRecords("Edge 50", domain.ShiftDay, at)))
		next := sampleRecords("Edge 50", domain.ShiftNight, at.Add(12*time.Hour))[:1]
		require.NoError(t, s.Replace(ctx, "Edge 50", next))

		got, err := s.Records(ctx, "Edge_50", domain.RecordFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, domain.ShiftNight, got[0].Shift)
	})

	t.Run("empty replace clears and warns", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		s := open(t, logger)

		require.NoError(t, s.Replace(ctx, "Razr", sampleRecords("Razr", domain.ShiftDay, at)))
		hook.Reset()
		require.NoError(t, s.Replace(ctx, "Razr", nil))

		got, err := s.Records(ctx, "Razr", domain.RecordFilter{})
		require.NoError(t, err)
		require.Empty(t, got)

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		require.Equal(t, logrus.WarnLevel, entry.Level)
		require.Equal(t, "Razr", entry.Data["collection"])

		datasets, err := s.ListDatasets(ctx)
		require.NoError(t, err)
		require.Len(t, datasets, 1)
		require.Equal(t, 0, datasets[0].RecordCount)
		require.Equal(t, domain.Shift(0), datasets[0].Shift)
	})

	t.Run("filters by shift and process", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)
		require.NoError(t, s.Replace(ctx, "G85", sampleRecords("G85", domain.ShiftDay, at)))

		day, night := domain.ShiftDay, domain.ShiftNight
		got, err := s.Records(ctx, "G85", domain.RecordFilter{Shift: &day, Process: "FT1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			require.Equal(t, "FT1", r.Process)
		}

		got, err = s.Records(ctx, "G85", domain.RecordFilter{Shift: &night})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("lists datasets", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)
		require.NoError(t, s.Replace(ctx, "B Model", sampleRecords("B Model", domain.ShiftNight, at)))
		require.NoError(t, s.Replace(ctx, "A/Model", sampleRecords("A/Model", domain.ShiftNight, at)[:2]))

		datasets, err := s.ListDatasets(ctx)
		require.NoError(t, err)
		require.Len(t, datasets, 2)
		require.Equal(t, "A_Model", datasets[0].Collection)
		require.Equal(t, "A/Model", datasets[0].Family)
		require.Equal(t, 2, datasets[0].RecordCount)
		require.Equal(t, domain.ShiftNight, datasets[0].Shift)
		require.Equal(t, "B_Model", datasets[1].Collection)
		require.Equal(t, 3, datasets[1].RecordCount)
	})

	t.Run("unknown collection", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		_, err := s.Records(ctx, "missing", domain.RecordFilter{})
		require.True(t, errors.Is(err, ErrCollectionNotFound))
	})

	t.Run("empty family is rejected", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		err := s.Replace(ctx, "  ", nil)
		var storeErr *domain.StoreError
		require.ErrorAs(t, err, &storeErr)
	})

	t.Run("records cycle runs newest first", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		first := domain.NewCycleRun(domain.ShiftDay, at)
		first.Status = domain.CycleRunStatusCompleted
		first.Families, first.Records = 2, 40
		first.FinishedAt = at.Add(time.Minute)

		second := domain.NewCycleRun(domain.ShiftDay, at.Add(30*time.Minute)).
			Fail("fetch", errors.New("portal unreachable"), at.Add(31*time.Minute))

		require.NoError(t, s.RecordRun(ctx, first))
		require.NoError(t, s.RecordRun(ctx, second))

		runs, err := s.LatestRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		require.Equal(t, second.ID, runs[0].ID)
		require.Equal(t, domain.CycleRunStatusFailed, runs[0].Status)
		require.Equal(t, "fetch", runs[0].Stage)
		require.NotNil(t, runs[0].ErrorMessage)
		require.Equal(t, "portal unreachable", *runs[0].ErrorMessage)
		require.Equal(t, first.ID, runs[1].ID)
		require.Nil(t, runs[1].ErrorMessage)
		require.Equal(t, 40, runs[1].Records)
		require.True(t, runs[1].FinishedAt.Equal(first.FinishedAt))

		runs, err = s.LatestRuns(ctx, 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
	})

	t.Run("orders runs within the same second", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		s := open(t, logger)

		base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		whole := domain.NewCycleRun(domain.ShiftDay, base)
		whole.Status, whole.FinishedAt = domain.CycleRunStatusCompleted, base
		half := domain.NewCycleRun(domain.ShiftDay, base.Add(500*time.Millisecond))
		half.Status, half.FinishedAt = domain.CycleRunStatusCompleted, half.StartedAt

		require.NoError(t, s.RecordRun(ctx, whole))
		require.NoError(t, s.RecordRun(ctx, half))

		runs, err := s.LatestRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		require.Equal(t, half.ID, runs[0].ID)
		require.True(t, runs[0].StartedAt.Equal(half.StartedAt))
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreConformance(t, func(t *testing.T, logger logrus.FieldLogger) Store {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "modelerror.db"), logger)
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteTableQuoting(t *testing.T) {
	if got := sqliteTable(`odd"name`); got != `"ds_odd""name"` {
		t.Fatalf("sqliteTable() = %s", got)
	}
}

func TestDefaultRunLimit(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 10: 10, 500: 500, 501: 50}
	for in, want := range cases {
		if got := defaultRunLimit(in); got != want {
			t.Fatalf("defaultRunLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStoredTimeSortsLikeTime(t *testing.T) {
	whole := formatStoredTime(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	half := formatStoredTime(time.Date(2026, 3, 14, 10, 0, 0, 500_000_000, time.UTC))
	if !(whole < half) {
		t.Fatalf("%s should sort before %s", whole, half)
	}
	if got := parseStoredTime(half); !got.Equal(time.Date(2026, 3, 14, 10, 0, 0, 500_000_000, time.UTC)) {
		t.Fatalf("parseStoredTime(%s) = %s", half, got)
	}
}
