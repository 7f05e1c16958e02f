package bot

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"meetbot-recorder/diagnostics"
)

const GoogleSignInURL = "https://accounts.google.com"

// Authenticator signs in through the Google identity page. A field that
// cannot be found is fatal; retrying the same locator would not help.
type Authenticator struct {
	Driver      Driver
	Diagnostics *diagnostics.Store
	SignInURL   string
	Timeouts    Timeouts
	Log         zerolog.Logger
}

func (a *Authenticator) SignIn(email, password string) error {
	signInURL := a.SignInURL
	if signInURL == "" {
		signInURL = GoogleSignInURL
	}

	if err := a.Driver.Open(signInURL, a.Timeouts.Page); err != nil {
		return err
	}

	_, field, err := firstClickable(a.Driver, emailFieldCandidates, a.Timeouts.Field, a.Log)
	if err != nil {
		return newError(KindElementNotFound, "locate identifier field", err)
	}
	if err := field.SendKeys(email); err != nil {
		return newError(KindBrowser, "enter identifier", err)
	}
	a.capture("email")

	_, next, err := firstClickable(a.Driver, emailNextCandidates, a.Timeouts.Field, a.Log)
	if err != nil {
		return newError(KindElementNotFound, "locate identifier next", err)
	}
	if err := next.Click(); err != nil {
		return newError(KindBrowser, "submit identifier", err)
	}
	a.Log.Info().Str("step", "CLICK_EMAIL_NEXT").Msg("Submitted identifier")

	_, field, err = firstClickable(a.Driver, passwordFieldCandidates, a.Timeouts.Field, a.Log)
	if err != nil {
		return newError(KindElementNotFound, "locate password field", err)
	}
	if err := field.Click(); err != nil {
		return newError(KindBrowser, "focus password", err)
	}
	if err := field.SendKeys(password); err != nil {
		return newError(KindBrowser, "enter password", err)
	}
	a.capture("password")

	if err := field.Press("Enter"); err != nil {
		return newError(KindBrowser, "submit password", err)
	}
	a.Log.Info().Str("step", "SUBMIT_PASSWORD").Msg("Submitted password")

	return a.awaitCompletion()
}

// awaitCompletion waits for the browser to leave the sign-in flow. A
// verification challenge is reported as its own kind.
func (a *Authenticator) awaitCompletion() error {
	err := a.Driver.WaitForURL(func(u string) bool {
		return !signInPending(u) || isChallenge(u)
	}, a.Timeouts.SignIn)

	current := a.Driver.URL()
	if isChallenge(current) {
		a.capture("auth_challenge")
		return newError(KindAuthChallenge, "sign in", fmt.Errorf("verification required at %s", redact(current)))
	}
	if err != nil {
		a.capture("sign_in_timeout")
		return newError(KindTimeout, "sign in", fmt.Errorf("still on %s after %s", redact(current), a.Timeouts.SignIn))
	}

	a.capture("signed_in")
	a.Log.Info().Msg("Google login successful")
	return nil
}

func (a *Authenticator) capture(checkpoint string) {
	if err := a.Diagnostics.Capture(a.Driver, checkpoint); err != nil {
		a.Log.Warn().Err(err).Str("checkpoint", checkpoint).Msg("Failed to capture diagnostic")
	}
}

func signInPending(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "accounts.google.com" {
		return false
	}
	p := u.Path
	if strings.Contains(p, "/signin/oauth") {
		return false
	}
	return p == "" || p == "/" || strings.Contains(p, "/signin") || strings.Contains(p, "/challenge/")
}

// isChallenge matches verification steps. challenge/pwd is the ordinary
// password page and does not count.
func isChallenge(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "accounts.google.com" {
		return false
	}
	return strings.Contains(u.Path, "/challenge/") && !strings.Contains(u.Path, "/challenge/pwd")
}

// redact drops the query string, which carries session tokens.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
