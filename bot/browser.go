package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Driver is the browser capability the session needs. Implementations are
// not safe for concurrent use; the supervisor issues one command at a time.
type Driver interface {
	Open(url string, timeout time.Duration) error
	WaitIdle(timeout time.Duration) error
	// WaitClickable waits until selector is visible and enabled. A wait that
	// expires is KindTimeout; anything else is KindElementNotFound.
	WaitClickable(selector string, timeout time.Duration) (Element, error)
	PressKey(selector, key string) error
	// DismissVisible clicks every visible match and reports how many.
	DismissVisible(selector string) (int, error)
	WaitForURL(match func(string) bool, timeout time.Duration) error
	URL() string
	GrantPermissions(origin string, permissions []string) error
	Screenshot(path string) error
	Quit() error
}

type Element interface {
	Click() error
	SendKeys(text string) error
	Press(key string) error
}

// LaunchOptions configures the Chromium instance.
type LaunchOptions struct {
	Headless bool
	Width    int
	Height   int
	Attempts int
	Timeout  time.Duration
}

// PlaywrightDriver drives Chromium through playwright-go.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     zerolog.Logger
}

var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-infobars",
	"--disable-extensions",
	"--disable-application-cache",
	"--use-fake-ui-for-media-stream",
	"--autoplay-policy=no-user-gesture-required",
}

// Launch starts playwright, a Chromium browser, one context and one page.
// On failure everything already started is torn down. Cancelling ctx stops
// the retry loop between attempts.
func Launch(ctx context.Context, opts LaunchOptions, log zerolog.Logger) (_ *PlaywrightDriver, err error) {
	log = log.With().Str("component", "browser").Logger()
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, newError(KindBrowser, "run playwright", err)
	}
	d := &PlaywrightDriver{pw: pw, log: log}
	defer func() {
		if err != nil {
			_ = d.Quit()
		}
	}()

	args := append([]string{fmt.Sprintf("--window-size=%d,%d", opts.Width, opts.Height)}, launchArgs...)
	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
		Timeout:  playwright.Float(float64(opts.Timeout.Milliseconds())),
	}

	var browser playwright.Browser
	err = retry(ctx, opts.Attempts, launchRetryDelay, func(attempt int) error {
		log.Info().Int("attempt", attempt).Int("max_attempts", opts.Attempts).Msg("Launching Chromium")
		var lerr error
		browser, lerr = pw.Chromium.Launch(launchOptions)
		if lerr != nil {
			log.Warn().Err(lerr).Int("attempt", attempt).Msg("Launch attempt failed")
		}
		return lerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindInterrupt, "launch chromium", err)
		}
		return nil, newError(KindBrowser, "launch chromium", fmt.Errorf("after %d attempts: %w", opts.Attempts, err))
	}
	d.browser = browser

	browser.On("disconnected", func() {
		log.Warn().Msg("Browser disconnected")
	})

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Permissions: []string{"camera", "microphone"},
		Viewport:    &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		return nil, newError(KindBrowser, "new context", err)
	}
	d.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		return nil, newError(KindBrowser, "new page", err)
	}
	d.page = page

	log.Info().Msg("Browser initialized")
	return d, nil
}

const launchRetryDelay = 2 * time.Second

// retry calls fn up to attempts times, waiting delay between failures. It
// gives up early with ctx.Err() once ctx is done.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return fmt.Errorf("%w (last error: %v)", cerr, err)
			}
			return cerr
		}
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt < attempts {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return err
}

// ms converts a wait to playwright milliseconds. Playwright reads 0 as
// "no timeout", so anything positive is kept at 1ms or more.
func ms(d time.Duration) *float64 {
	millis := d.Milliseconds()
	if millis < 1 {
		millis = 1
	}
	return playwright.Float(float64(millis))
}

func classify(op string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return newError(KindTimeout, op, err)
	}
	return newError(KindElementNotFound, op, err)
}

func (d *PlaywrightDriver) Open(url string, timeout time.Duration) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	if err != nil {
		return newError(KindBrowser, "open "+url, err)
	}
	return nil
}

func (d *PlaywrightDriver) WaitIdle(timeout time.Duration) error {
	err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
	if err != nil {
		return classify("wait for network idle", err)
	}
	return nil
}

func (d *PlaywrightDriver) WaitClickable(selector string, timeout time.Duration) (Element, error) {
	op := "wait clickable " + selector
	deadline := time.Now().Add(timeout)
	loc := d.page.Locator(selector).First()

	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
	if err != nil {
		return nil, classify(op, err)
	}

	for {
		enabled, err := loc.IsEnabled()
		if err == nil && enabled {
			return &locatorElement{loc: loc}, nil
		}
		if time.Now().After(deadline) {
			return nil, newError(KindTimeout, op, fmt.Errorf("visible but not enabled after %s", timeout))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (d *PlaywrightDriver) PressKey(selector, key string) error {
	if err := d.page.Locator(selector).Press(key); err != nil {
		return classify("press "+key, err)
	}
	return nil
}

func (d *PlaywrightDriver) DismissVisible(selector string) (int, error) {
	elements, err := d.page.Locator(selector).All()
	if err != nil {
		return 0, classify("list "+selector, err)
	}

	clicked := 0
	for _, element := range elements {
		visible, err := element.IsVisible()
		if err != nil || !visible {
			continue
		}
		if err := element.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(1000)}); err != nil {
			d.log.Debug().Err(err).Str("selector", selector).Msg("Failed to dismiss popup")
			continue
		}
		clicked++
	}
	return clicked, nil
}

func (d *PlaywrightDriver) WaitForURL(match func(string) bool, timeout time.Duration) error {
	err := d.page.WaitForURL(match, playwright.PageWaitForURLOptions{Timeout: ms(timeout)})
	if err != nil {
		return classify("wait for url", err)
	}
	return nil
}

func (d *PlaywrightDriver) URL() string {
	return d.page.URL()
}

// GrantPermissions uses CDP so capabilities playwright does not model,
// such as displayCapture, are granted too. The grant is scoped to the
// page's own browser context, since CDP otherwise targets the default one.
func (d *PlaywrightDriver) GrantPermissions(origin string, permissions []string) error {
	session, err := d.context.NewCDPSession(d.page)
	if err != nil {
		return newError(KindBrowser, "new cdp session", err)
	}
	defer session.Detach()

	info, err := session.Send("Target.getTargetInfo", map[string]interface{}{})
	if err != nil {
		return newError(KindBrowser, "get target info", err)
	}
	contextID, err := browserContextID(info)
	if err != nil {
		return newError(KindBrowser, "get target info", err)
	}

	if _, err = session.Send("Browser.grantPermissions", grantParams(origin, permissions, contextID)); err != nil {
		return newError(KindBrowser, "grant permissions", err)
	}
	return nil
}

// browserContextID reads targetInfo.browserContextId from a
// Target.getTargetInfo result.
func browserContextID(result interface{}) (string, error) {
	reply, ok := result.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected target info %T", result)
	}
	info, ok := reply["targetInfo"].(map[string]interface{})
	if !ok {
		return "", errors.New("target info missing")
	}
	id, _ := info["browserContextId"].(string)
	if id == "" {
		return "", errors.New("target has no browser context id")
	}
	return id, nil
}

func grantParams(origin string, permissions []string, contextID string) map[string]interface{} {
	return map[string]interface{}{
		"origin":           origin,
		"permissions":      permissions,
		"browserContextId": contextID,
	}
}

func (d *PlaywrightDriver) Screenshot(path string) error {
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return newError(KindBrowser, "screenshot", err)
	}
	return nil
}

// Quit closes the browser and stops the playwright driver. It is safe to
// call on a partially launched driver.
func (d *PlaywrightDriver) Quit() error {
	var errs []error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping playwright: %w", err))
		}
		d.pw = nil
	}
	return errors.Join(errs...)
}

type locatorElement struct {
	loc playwright.Locator
}

func (e *locatorElement) Click() error {
	return e.loc.Click()
}

func (e *locatorElement) SendKeys(text string) error {
	return e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(50),
	})
}

func (e *locatorElement) Press(key string) error {
	return e.loc.Press(key)
}
