// Package fetcher downloads the shift report from the portal.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/retry"
	"github.com/sirupsen/logrus"
)

// Fetcher produces a ReportBatch for a shift, retrying whole attempts.
type Fetcher struct {
	browser         Browser
	prober          Prober
	portal          config.PortalConfig
	downloadDir     string
	downloadTimeout time.Duration
	pollInterval    time.Duration
	policy          retry.Policy
	now             func() time.Time
	logger          logrus.FieldLogger
}

type Option func(*Fetcher)

// WithProber replaces the reachability check. A nil prober disables it.
func WithProber(p Prober) Option {
	return func(f *Fetcher) { f.prober = p }
}

func WithPolicy(p retry.Policy) Option {
	return func(f *Fetcher) { f.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func New(cfg config.Config, browser Browser, logger logrus.FieldLogger, opts ...Option) *Fetcher {
	f := &Fetcher{
		browser:         browser,
		prober:          NewProber(cfg.Portal.ProbeTimeout),
		portal:          cfg.Portal,
		downloadDir:     cfg.Fetch.DownloadDir,
		downloadTimeout: cfg.Fetch.DownloadTimeout,
		pollInterval:    cfg.Fetch.PollInterval,
		policy: retry.Policy{
			MaxAttempts:  cfg.Fetch.MaxAttempts,
			InitialDelay: cfg.Fetch.InitialDelay,
			Factor:       cfg.Fetch.BackoffFactor,
			MaxDelay:     cfg.Fetch.MaxDelay,
		},
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch drives the portal for shift and returns the downloaded report.
func (f *Fetcher) Fetch(ctx context.Context, shift domain.Shift) (domain.ReportBatch, error) {
	if !shift.Valid() {
		return domain.ReportBatch{}, domain.NewFetchError("params", fmt.Errorf("invalid shift %d", shift))
	}
	if err := os.MkdirAll(f.downloadDir, 0o755); err != nil {
		return domain.ReportBatch{}, domain.NewFetchError("prepare", fmt.Errorf("failed to create download dir: %w", err))
	}

	log := f.logger.WithField("shift", shift)
	var batch domain.ReportBatch
	err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		log.WithField("attempt", attempt).Info("fetching report")
		path, err := f.attempt(ctx, shift)
		if err != nil {
			return err
		}
		batch = domain.ReportBatch{Path: path, Shift: shift, FetchedAt: f.now()}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait}).Warn("fetch attempt failed")
	})
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = domain.NewFetchError("attempt", err)
		}
		log.WithError(err).Error("giving up on report fetch")
		return domain.ReportBatch{}, err
	}

	log.WithField("file", batch.Path).Info("report downloaded")
	return batch, nil
}

func (f *Fetcher) attempt(ctx context.Context, shift domain.Shift) (string, error) {
	if err := clearStale(f.downloadDir, f.logger); err != nil {
		return "", domain.NewFetchError("prepare", err)
	}

	if f.prober != nil {
		if err := f.prober.Probe(ctx, f.portal.URL); err != nil {
			return "", domain.NewFetchError("probe", err)
		}
	}

	session, err := f.browser.Open(ctx, f.downloadDir)
	if err != nil {
		return "", domain.NewFetchError("open browser", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			f.logger.WithError(err).Warn("failed to close browser session")
		}
	}()

	if err := session.Configure(ctx, NewParams(f.portal, shift)); err != nil {
		return "", domain.NewFetchError("configure", err)
	}
	if err := session.Trigger(ctx); err != nil {
		return "", domain.NewFetchError("trigger", err)
	}

	path, err := AwaitArtifact(ctx, f.downloadDir, f.downloadTimeout, f.pollInterval)
	if err != nil {
		return "", domain.NewFetchError("await download", err)
	}
	return path, nil
}
