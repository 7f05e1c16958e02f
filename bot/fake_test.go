package bot

import (
	"errors"
	"os"
	"time"
)

// fakeElement becomes clickable appearsAfter into a wait.
type fakeElement struct {
	appearsAfter time.Duration
	clickErr     error
	clicks       int
	typed        []string
	pressed      []string
}

func (e *fakeElement) Click() error {
	e.clicks++
	return e.clickErr
}

func (e *fakeElement) SendKeys(text string) error {
	e.typed = append(e.typed, text)
	return nil
}

func (e *fakeElement) Press(key string) error {
	e.pressed = append(e.pressed, key)
	return nil
}

// fakeDriver is a scripted page with a simulated clock: waits advance the
// clock instead of sleeping.
type fakeDriver struct {
	clock    time.Time
	elements map[string]*fakeElement

	url string
	// urlAfterSubmit is what the page shows once WaitForURL is called.
	urlAfterSubmit string

	openErr    error
	grantErr   error
	pressErr   func(call int) error
	popupCount map[string]int

	opened      []string
	waited      []string
	waitTimes   []time.Duration
	pressed     []string
	granted     map[string][]string
	screenshots []string
	quits       int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		clock:      time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
		elements:   make(map[string]*fakeElement),
		granted:    make(map[string][]string),
		popupCount: make(map[string]int),
	}
}

func (f *fakeDriver) now() time.Time { return f.clock }

func (f *fakeDriver) add(selector string, after time.Duration) *fakeElement {
	el := &fakeElement{appearsAfter: after}
	f.elements[selector] = el
	return el
}

// signInReady scripts a page where every login field is present at once.
func (f *fakeDriver) signInReady() {
	f.add(emailFieldCandidates[0].Selector, 0)
	f.add(emailNextCandidates[0].Selector, 0)
	f.add(passwordFieldCandidates[0].Selector, 0)
	f.urlAfterSubmit = "https://myaccount.google.com/?pli=1"
}

func (f *fakeDriver) Open(url string, timeout time.Duration) error {
	f.opened = append(f.opened, url)
	if f.openErr != nil {
		return f.openErr
	}
	f.url = url
	return nil
}

func (f *fakeDriver) WaitIdle(timeout time.Duration) error { return nil }

func (f *fakeDriver) WaitClickable(selector string, timeout time.Duration) (Element, error) {
	f.waited = append(f.waited, selector)
	f.waitTimes = append(f.waitTimes, timeout)
	el, ok := f.elements[selector]
	if !ok || el.appearsAfter > timeout {
		f.clock = f.clock.Add(timeout)
		return nil, newError(KindTimeout, "wait clickable "+selector, errors.New("timeout"))
	}
	f.clock = f.clock.Add(el.appearsAfter)
	return el, nil
}

func (f *fakeDriver) PressKey(selector, key string) error {
	f.pressed = append(f.pressed, selector+":"+key)
	if f.pressErr != nil {
		return f.pressErr(len(f.pressed))
	}
	return nil
}

func (f *fakeDriver) DismissVisible(selector string) (int, error) {
	return f.popupCount[selector], nil
}

func (f *fakeDriver) WaitForURL(match func(string) bool, timeout time.Duration) error {
	if f.urlAfterSubmit != "" {
		f.url = f.urlAfterSubmit
	}
	if match(f.url) {
		return nil
	}
	f.clock = f.clock.Add(timeout)
	return newError(KindTimeout, "wait for url", errors.New("timeout"))
}

func (f *fakeDriver) URL() string { return f.url }

func (f *fakeDriver) GrantPermissions(origin string, permissions []string) error {
	if f.grantErr != nil {
		return f.grantErr
	}
	f.granted[origin] = permissions
	return nil
}

func (f *fakeDriver) Screenshot(path string) error {
	f.screenshots = append(f.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (f *fakeDriver) Quit() error {
	f.quits++
	return nil
}
