package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/retry"
	"github.com/sirupsen/logrus/hooks/test"
)

type stubSession struct {
	browser *stubBrowser
	dir     string
}

func (s *stubSession) Configure(ctx context.Context, params Params) error {
	s.browser.params = append(s.browser.params, params)
	return s.browser.configureErr
}

func (s *stubSession) Trigger(ctx context.Context) error {
	b := s.browser
	b.triggers++
	if b.triggers <= b.failTriggers {
		return errors.New("generate button not found")
	}
	if b.skipDownload {
		return nil
	}
	return os.WriteFile(filepath.Join(s.dir, "ErrorReport.xlsx"), []byte("report"), 0o644)
}

func (s *stubSession) Close() error {
	s.browser.closed++
	return nil
}

type stubBrowser struct {
	opened       int
	closed       int
	triggers     int
	failTriggers int
	skipDownload bool
	configureErr error
	params       []Params
}

func (b *stubBrowser) Open(ctx context.Context, dir string) (Session, error) {
	b.opened++
	return &stubSession{browser: b, dir: dir}, nil
}

type stubProber struct{ err error }

func (p stubProber) Probe(ctx context.Context, url string) error { return p.err }

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.Portal.URL = "http://portal.local/report"
	cfg.Fetch.DownloadDir = t.TempDir()
	cfg.Fetch.DownloadTimeout = 50 * time.Millisecond
	cfg.Fetch.PollInterval = 5 * time.Millisecond
	return cfg
}

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2, MaxDelay: 2 * time.Millisecond}

func TestFetchSucceedsAfterRetry(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	browser := &stubBrowser{failTriggers: 1}
	fetchedAt := time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC)

	f := New(cfg, browser, logger,
		WithProber(stubProber{}),
		WithPolicy(fastPolicy),
		WithClock(func() time.Time { return fetchedAt }),
	)

	batch, err := f.Fetch(context.Background(), domain.ShiftNight)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if batch.Path != filepath.Join(cfg.Fetch.DownloadDir, "ErrorReport.xlsx") {
		t.Fatalf("unexpected path %q", batch.Path)
	}
	if batch.Shift != domain.ShiftNight || !batch.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if browser.opened != 2 || browser.closed != 2 {
		t.Fatalf("expected every session closed, opened=%d closed=%d", browser.opened, browser.closed)
	}
	last := browser.params[len(browser.params)-1]
	if last.StartTime != "19:00:00" || last.EndTime != "07:00:00" {
		t.Fatalf("unexpected shift window %s-%s", last.StartTime, last.EndTime)
	}
	if last.URL != cfg.Portal.URL {
		t.Fatalf("unexpected url %q", last.URL)
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	browser := &stubBrowser{skipDownload: true}

	f := New(cfg, browser, logger, WithProber(stubProber{}), WithPolicy(fastPolicy))

	_, err := f.Fetch(context.Background(), domain.ShiftDay)
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Op != "await download" || !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("unexpected error %v", err)
	}
	if browser.opened != 3 || browser.closed != 3 {
		t.Fatalf("expected 3 closed sessions, opened=%d closed=%d", browser.opened, browser.closed)
	}
}

func TestFetchProbeFailureSkipsBrowser(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	browser := &stubBrowser{}

	f := New(cfg, browser, logger,
		WithProber(stubProber{err: errors.New("connection refused")}),
		WithPolicy(fastPolicy),
	)

	_, err := f.Fetch(context.Background(), domain.ShiftDay)
	if domain.Stage(err) != "fetch" {
		t.Fatalf("expected fetch stage, got %v", err)
	}
	if browser.opened != 0 {
		t.Fatalf("browser should not be opened, opened=%d", browser.opened)
	}
}

func TestFetchClosesSessionOnConfigureError(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	browser := &stubBrowser{configureErr: errors.New("element not found")}

	f := New(cfg, browser, logger, WithProber(nil), WithPolicy(retry.Policy{MaxAttempts: 1}))

	_, err := f.Fetch(context.Background(), domain.ShiftDay)
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Op != "configure" {
		t.Fatalf("expected configure FetchError, got %v", err)
	}
	if browser.closed != 1 {
		t.Fatalf("expected session closed, closed=%d", browser.closed)
	}
}

func TestFetchRejectsInvalidShift(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	browser := &stubBrowser{}

	_, err := New(cfg, browser, logger).Fetch(context.Background(), domain.Shift(3))
	if domain.Stage(err) != "fetch" || browser.opened != 0 {
		t.Fatalf("expected early FetchError, got %v", err)
	}
}

func TestFetchRemovesStaleReports(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()
	stale := filepath.Join(cfg.Fetch.DownloadDir, "old.xls")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(cfg, &stubBrowser{}, logger, WithProber(nil), WithPolicy(fastPolicy))
	if _, err := f.Fetch(context.Background(), domain.ShiftDay); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale report should be removed, stat err = %v", err)
	}
}

func TestAwaitArtifactPicksNewestFinishedFile(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "a.xls")
	newer := filepath.Join(dir, "b.xlsx")
	partial := filepath.Join(dir, "c.xlsx.crdownload")
	for _, p := range []string{older, newer, partial} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour))
	os.Chtimes(newer, now.Add(-time.Minute), now.Add(-time.Minute))
	os.Chtimes(partial, now, now)

	got, err := AwaitArtifact(context.Background(), dir, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitArtifact() error = %v", err)
	}
	if got != newer {
		t.Fatalf("AwaitArtifact() = %s, want %s", got, newer)
	}
}

func TestAwaitArtifactIgnoresInProgressDownloads(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.xls.crdownload"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := AwaitArtifact(context.Background(), dir, 30*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
}

func TestAwaitArtifactWaitsForLateFile(t *testing.T) {
	dir := t.TempDir()
	go func() {
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "late.xlsx"), []byte("x"), 0o644)
	}()

	got, err := AwaitArtifact(context.Background(), dir, 2*time.Second, 5*time.Millisecond)
	if err != nil || filepath.Base(got) != "late.xlsx" {
		t.Fatalf("AwaitArtifact() = %q, %v", got, err)
	}
}

func TestAwaitArtifactCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitArtifact(ctx, t.TempDir(), time.Second, 5*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProber(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	p := NewProber(time.Second)
	if err := p.Probe(context.Background(), server.URL); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	status.Store(http.StatusNotFound)
	if err := p.Probe(context.Background(), server.URL); err != nil {
		t.Fatalf("4xx should count as reachable, got %v", err)
	}

	status.Store(http.StatusBadGateway)
	if err := p.Probe(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 5xx response")
	}

	server.Close()
	if err := p.Probe(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for closed server")
	}
}
