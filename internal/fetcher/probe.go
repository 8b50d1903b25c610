package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prober checks that the portal answers before a browser is launched.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

type restyProber struct {
	client *resty.Client
}

// NewProber returns a Prober issuing a plain GET with the given timeout.
// Any response below 500 counts as reachable.
func NewProber(timeout time.Duration) Prober {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &restyProber{client: client}
}

func (p *restyProber) Probe(ctx context.Context, url string) error {
	res, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	if res.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("portal returned %s", res.Status())
	}
	return nil
}
