package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/sirupsen/logrus"
)

// ChromeBrowser drives a local Chrome through the DevTools protocol.
type ChromeBrowser struct {
	headless    bool
	pageTimeout time.Duration
	elementWait time.Duration
	settleDelay time.Duration
	logger      logrus.FieldLogger
}

func NewChromeBrowser(portal config.PortalConfig, headless bool, logger logrus.FieldLogger) *ChromeBrowser {
	return &ChromeBrowser{
		headless:    headless,
		pageTimeout: portal.PageTimeout,
		elementWait: portal.ElementWait,
		settleDelay: portal.SettleDelay,
		logger:      logger,
	}
}

func (b *ChromeBrowser) Open(ctx context.Context, downloadDir string) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:     taskCtx,
		browser: b,
		cancel: func() {
			cancelTask()
			cancelAlloc()
		},
	}

	// The first Run starts the browser and must not carry a timeout.
	err := chromedp.Run(taskCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	b.logger.WithField("download_dir", downloadDir).Debug("browser started")
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	browser *ChromeBrowser
	cancel  context.CancelFunc
	params  Params
}

func (s *chromeSession) Configure(ctx context.Context, params Params) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	s.params = params
	if err := s.run(s.browser.pageTimeout, "load portal", chromedp.Navigate(params.URL)); err != nil {
		return err
	}

	sel := params.Selectors
	steps := []struct {
		name    string
		actions []chromedp.Action
	}{
		{"select unit", []chromedp.Action{s.click(sel.UnitSelect), s.click(sel.UnitOption)}},
		{"set start date", []chromedp.Action{s.click(sel.StartDateInput), s.click(sel.StartToday)}},
		{"set end date", []chromedp.Action{s.click(sel.EndDateInput), s.click(sel.EndToday)}},
		{"set start time", s.typeInto(sel.StartTimeInput, params.StartTime)},
		{"set end time", s.typeInto(sel.EndTimeInput, params.EndTime)},
	}
	for _, step := range steps {
		if err := s.run(s.browser.elementWait*time.Duration(len(step.actions)), step.name, step.actions...); err != nil {
			return err
		}
		s.browser.logger.WithField("step", step.name).Debug("form step done")
	}
	return nil
}

func (s *chromeSession) Trigger(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	return s.run(s.browser.elementWait, "generate report", s.click(s.params.Selectors.GenerateButton))
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

func (s *chromeSession) run(timeout time.Duration, step string, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func (s *chromeSession) click(xpath string) chromedp.Action {
	return chromedp.Tasks{
		chromedp.Click(xpath, chromedp.BySearch),
		chromedp.Sleep(s.browser.settleDelay),
	}
}

func (s *chromeSession) typeInto(xpath, value string) []chromedp.Action {
	return []chromedp.Action{
		chromedp.Clear(xpath, chromedp.BySearch),
		chromedp.SendKeys(xpath, value, chromedp.BySearch),
		chromedp.Sleep(s.browser.settleDelay),
	}
}
