package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Candidate is one possible rendering of a control.
type Candidate struct {
	Name     string
	Selector string
}

// DefaultJoinCandidates is ordered by preference: the exact "Join now" wins
// over the ambiguous bare "Join" when both are on the page.
var DefaultJoinCandidates = []Candidate{
	{Name: "Join now", Selector: `xpath=//span[contains(text(), "Join now")]`},
	{Name: "Ask to join", Selector: `xpath=//span[contains(text(), "Ask to join")]`},
	{Name: "Join", Selector: `xpath=//span[text()="Join"]`},
}

var emailFieldCandidates = []Candidate{
	{Name: "identifier", Selector: "input[name='identifier']"},
	{Name: "identifierId", Selector: "input#identifierId"},
	{Name: "email", Selector: "input[type='email']"},
}

var emailNextCandidates = []Candidate{
	{Name: "identifierNext", Selector: "#identifierNext"},
	{Name: "next", Selector: "button:has-text('Next')"},
}

var passwordFieldCandidates = []Candidate{
	{Name: "Passwd", Selector: "input[name='Passwd']"},
	{Name: "current-password", Selector: "input[type='password']:not([aria-hidden='true'])"},
}

var leaveCandidates = []Candidate{
	{Name: "leave call", Selector: "button[aria-label*='Leave call']"},
	{Name: "leave tooltip", Selector: "div[data-tooltip*='Leave call']"},
	{Name: "end call", Selector: "button[aria-label*='End call']"},
}

// popups that cover the pre-join screen.
var popupSelectors = []string{
	"button:has-text('Got it')",
	"button:has-text('Dismiss')",
	"button:has-text('Not now')",
	"button:has-text('Maybe later')",
	"button:has-text(\"Don't use a phone\")",
	"[aria-label='Close']",
	"[aria-label='Dismiss']",
}

// firstClickable tries each candidate in order with its own bounded wait
// and returns the first one that becomes clickable. Later candidates are
// never evaluated once one matches.
func firstClickable(drv Driver, candidates []Candidate, timeout time.Duration, log zerolog.Logger) (Candidate, Element, error) {
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		el, err := drv.WaitClickable(c.Selector, timeout)
		if err == nil {
			log.Debug().Str("candidate", c.Name).Str("selector", c.Selector).Msg("Found element")
			return c, el, nil
		}
		log.Debug().Str("candidate", c.Name).Err(err).Msg("Candidate not clickable")
		tried = append(tried, c.Name)
	}
	return Candidate{}, nil, fmt.Errorf("none of [%s] clickable within %s", strings.Join(tried, ", "), timeout)
}
