package domain

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// ReportBatch is a downloaded report waiting to be normalized. The file is
// ephemeral and removed once the cycle that fetched it is done.
type ReportBatch struct {
	Path      string
	Shift     Shift
	FetchedAt time.Time
}

// Remove deletes the underlying file. A file that is already gone is not an error.
func (b ReportBatch) Remove() error {
	if b.Path == "" {
		return nil
	}
	if err := os.Remove(b.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
