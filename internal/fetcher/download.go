package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoArtifact is returned when nothing was downloaded within the wait budget.
var ErrNoArtifact = errors.New("no report downloaded")

const (
	artifactPattern   = "*.xls*"
	inProgressSuffix  = ".crdownload"
	defaultPollPeriod = 2 * time.Second
)

// AwaitArtifact polls dir until a finished report appears or timeout elapses.
// When several are present the most recently modified one wins.
func AwaitArtifact(ctx context.Context, dir string, timeout, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = defaultPollPeriod
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		path, err := newestArtifact(dir)
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s", ErrNoArtifact, timeout)
		case <-ticker.C:
		}
	}
}

func newestArtifact(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, artifactPattern))
	if err != nil {
		return "", err
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, path := range matches {
		if strings.HasSuffix(path, inProgressSuffix) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = path, info.ModTime()
		}
	}
	return newest, nil
}

// clearStale removes reports left behind by earlier attempts.
func clearStale(dir string, logger logrus.FieldLogger) error {
	matches, err := filepath.Glob(filepath.Join(dir, artifactPattern))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale report %s: %w", path, err)
		}
		logger.WithField("file", path).Info("removed stale report")
	}
	return nil
}
