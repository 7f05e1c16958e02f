package bot

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"meetbot-recorder/diagnostics"
)

// MeetingPermissions are granted to the meeting origin ahead of time so no
// consent prompt appears.
var MeetingPermissions = []string{
	"geolocation",
	"audioCapture",
	"displayCapture",
	"videoCapture",
}

// Navigator opens the meeting and waits for the pre-join screen to settle.
type Navigator struct {
	Driver      Driver
	Diagnostics *diagnostics.Store
	Timeouts    Timeouts
	Log         zerolog.Logger
}

func (n *Navigator) Navigate(meetingURL string) error {
	origin, err := Origin(meetingURL)
	if err != nil {
		return newError(KindConfiguration, "parse meeting url", err)
	}

	if err := n.Driver.GrantPermissions(origin, MeetingPermissions); err != nil {
		return err
	}
	n.Log.Info().Str("origin", origin).Strs("permissions", MeetingPermissions).Msg("Granted media permissions")

	if err := n.Driver.Open(meetingURL, n.Timeouts.Page); err != nil {
		return err
	}
	if err := n.Driver.WaitIdle(n.Timeouts.Settle); err != nil {
		n.Log.Warn().Err(err).Msg("Meeting page did not reach network idle, continuing")
	}

	n.ClearPopups()

	if err := n.Diagnostics.Capture(n.Driver, "initial"); err != nil {
		n.Log.Warn().Err(err).Msg("Failed to capture initial screenshot")
	}
	return nil
}

// ClearPopups dismisses notices that can sit on top of the join controls.
func (n *Navigator) ClearPopups() {
	total := 0
	for _, selector := range popupSelectors {
		clicked, err := n.Driver.DismissVisible(selector)
		if err != nil {
			continue
		}
		if clicked > 0 {
			n.Log.Info().Str("step", "POPUP_CLEARING").Str("selector", selector).Int("count", clicked).Msg("Dismissed popup")
		}
		total += clicked
	}
	n.Log.Debug().Int("dismissed", total).Msg("Popup clearing completed")
}

// Origin reduces a URL to scheme://host[:port].
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q has no scheme or host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Muter toggles microphone and camera with generic keyboard navigation:
// Tab to the next control, then Enter. It relies on the pre-join tab
// order and cannot confirm which control was toggled.
type Muter struct {
	Driver      Driver
	Diagnostics *diagnostics.Store
	Attempts    int
	KeyDelay    time.Duration
	Log         zerolog.Logger
}

// Mute never fails the session. It returns the attempts that failed.
func (m *Muter) Mute() []error {
	attempts := m.Attempts
	if attempts <= 0 {
		attempts = 2
	}

	var failures []error
	for i := 1; i <= attempts; i++ {
		if err := m.toggle(); err != nil {
			err = newError(KindToggle, fmt.Sprintf("toggle attempt %d", i), err)
			m.Log.Warn().Err(err).Int("attempt", i).Msg("Could not toggle mic/camera")
			if cerr := m.Diagnostics.Capture(m.Driver, "toggle_error"); cerr != nil {
				m.Log.Warn().Err(cerr).Msg("Failed to capture toggle diagnostic")
			}
			failures = append(failures, err)
		}
	}
	return failures
}

func (m *Muter) toggle() error {
	for _, key := range []string{"Tab", "Enter"} {
		if err := m.Driver.PressKey("body", key); err != nil {
			return err
		}
		if m.KeyDelay > 0 {
			time.Sleep(m.KeyDelay)
		}
	}
	return nil
}

// JoinResolver finds and clicks the control that starts participation.
type JoinResolver struct {
	Driver      Driver
	Diagnostics *diagnostics.Store
	Candidates  []Candidate
	// Timeout is the wait allowed per candidate.
	Timeout time.Duration
	// Budget, when set, bounds the whole search. Candidates that would
	// start after it is spent are skipped.
	Budget time.Duration
	Now    func() time.Time
	Log    zerolog.Logger
}

func (j *JoinResolver) Join() (Candidate, error) {
	now := j.Now
	if now == nil {
		now = time.Now
	}
	candidates := j.Candidates
	if len(candidates) == 0 {
		candidates = DefaultJoinCandidates
	}

	if err := j.Diagnostics.Capture(j.Driver, "before_join"); err != nil {
		j.Log.Warn().Err(err).Msg("Failed to capture pre-join screenshot")
	}

	var deadline time.Time
	if j.Budget > 0 {
		deadline = now().Add(j.Budget)
	}

	for _, c := range candidates {
		timeout := j.Timeout
		if !deadline.IsZero() {
			remaining := deadline.Sub(now())
			if remaining <= 0 {
				j.Log.Warn().Dur("budget", j.Budget).Msg("Join wait budget exhausted")
				break
			}
			if remaining < timeout {
				timeout = remaining
			}
		}

		el, err := j.Driver.WaitClickable(c.Selector, timeout)
		if err != nil {
			j.Log.Debug().Str("candidate", c.Name).Err(err).Msg("Join candidate not clickable")
			continue
		}

		j.Log.Info().Str("candidate", c.Name).Str("selector", c.Selector).Msg("Found join button, clicking")
		if err := el.Click(); err != nil {
			if cerr := j.Diagnostics.Capture(j.Driver, "join_error"); cerr != nil {
				j.Log.Warn().Err(cerr).Msg("Failed to capture join diagnostic")
			}
			return c, newError(KindBrowser, "click "+c.Name, err)
		}
		j.Diagnostics.Note("joined", "clicked "+c.Name)
		j.Log.Info().Str("step", "JOIN_MEETING").Msg("Join button clicked successfully")
		return c, nil
	}

	if err := j.Diagnostics.Capture(j.Driver, "no_join_button"); err != nil {
		j.Log.Warn().Err(err).Msg("Failed to capture join diagnostic")
	}
	return Candidate{}, newError(KindJoinNotFound, "join", fmt.Errorf("no join button among %d candidates", len(candidates)))
}

// Leave tries the leave controls, then the Ctrl+D shortcut. It is used
// only during teardown, so every failure is swallowed after logging.
func Leave(drv Driver, timeout time.Duration, log zerolog.Logger) {
	c, el, err := firstClickable(drv, leaveCandidates, timeout, log)
	if err == nil {
		if err = el.Click(); err == nil {
			log.Info().Str("candidate", c.Name).Msg("Left the meeting")
			return
		}
	}
	log.Debug().Err(err).Msg("Leave button not usable, trying Ctrl+D")
	if err := drv.PressKey("body", "Control+d"); err != nil {
		log.Warn().Err(err).Msg("Could not leave the meeting")
	}
}
