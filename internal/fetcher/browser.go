package fetcher

import (
	"context"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
)

// Params is what a session needs to fill the report form for one shift.
type Params struct {
	URL       string
	Selectors config.Selectors
	Shift     domain.Shift
	StartTime string
	EndTime   string
}

// NewParams derives the form values for shift from the portal config.
func NewParams(portal config.PortalConfig, shift domain.Shift) Params {
	start, end := shift.Window()
	return Params{
		URL:       portal.URL,
		Selectors: portal.Selectors,
		Shift:     shift,
		StartTime: start,
		EndTime:   end,
	}
}

// Browser opens automation sessions that download into downloadDir.
type Browser interface {
	Open(ctx context.Context, downloadDir string) (Session, error)
}

// Session drives one report form. Close must be safe to call on every path.
type Session interface {
	Configure(ctx context.Context, params Params) error
	Trigger(ctx context.Context) error
	Close() error
}
