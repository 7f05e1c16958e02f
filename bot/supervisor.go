package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetbot-recorder/config"
	"meetbot-recorder/diagnostics"
	"meetbot-recorder/recorder"
)

type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateAuthenticating
	StateNavigating
	StateMuting
	StateJoining
	StateRecording
	StateIdling
	StateTerminating
)

var stateNames = [...]string{
	"idle", "configuring", "authenticating", "navigating", "muting",
	"joining", "recording", "idling", "terminating",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Launcher creates the one browser session of a run.
type Launcher func(ctx context.Context) (Driver, error)

type Recorder interface {
	Record(ctx context.Context, minutes int) (*recorder.Result, error)
}

// Timeouts bounds every wait the session performs.
type Timeouts struct {
	Page      time.Duration
	Field     time.Duration
	SignIn    time.Duration
	Settle    time.Duration
	Candidate time.Duration
	KeyDelay  time.Duration
	Leave     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Page:      30 * time.Second,
		Field:     10 * time.Second,
		SignIn:    15 * time.Second,
		Settle:    10 * time.Second,
		Candidate: 5 * time.Second,
		KeyDelay:  time.Second,
		Leave:     2 * time.Second,
	}
}

// Supervisor runs one session end to end. It alone creates and releases
// the browser session, and Run returns only after the release.
type Supervisor struct {
	Config     *config.Config
	Launch     Launcher
	Recorder   Recorder
	Timeouts   Timeouts
	Candidates []Candidate
	SignInURL  string
	// Now is the clock for the join budget.
	Now func() time.Time
	Log zerolog.Logger

	runID   string
	state   State
	history []State
	result  *recorder.Result
}

func NewSupervisor(cfg *config.Config, launch Launcher, rec Recorder, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		Config:   cfg,
		Launch:   launch,
		Recorder: rec,
		Timeouts: DefaultTimeouts(),
		Log:      log,
	}
}

func (s *Supervisor) State() State { return s.state }

// History lists every state entered, in order.
func (s *Supervisor) History() []State {
	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Supervisor) RunID() string { return s.runID }

// Result is the finished recording, nil until Recording succeeds.
func (s *Supervisor) Result() *recorder.Result { return s.result }

func (s *Supervisor) enter(state State) {
	s.state = state
	s.history = append(s.history, state)
	s.Log.Debug().Str("state", state.String()).Msg("State transition")
}

// Run drives the session until the context is cancelled after recording,
// or until a stage fails. An interrupt while idling returns nil.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	if s.state != StateIdle {
		return fmt.Errorf("supervisor already ran (state %s)", s.state)
	}
	s.runID = uuid.NewString()
	s.Log = s.Log.With().Str("run_id", s.runID).Logger()

	s.enter(StateConfiguring)
	if s.Config == nil {
		s.enter(StateTerminating)
		return newError(KindConfiguration, "configure", errors.New("no configuration"))
	}
	if err := s.Config.Validate(); err != nil {
		s.enter(StateTerminating)
		return newError(KindConfiguration, "configure", err)
	}
	if err := diagnostics.ResetDirs(s.Config.DiagnosticsDir, s.Config.RecordingsDir); err != nil {
		s.enter(StateTerminating)
		return newError(KindConfiguration, "prepare directories", err)
	}
	store := diagnostics.NewStore(s.Config.DiagnosticsDir, s.runID)

	s.Log.Info().Msg("Starting Chrome")
	drv, err := s.Launch(ctx)
	if err != nil {
		s.enter(StateTerminating)
		if ctx.Err() != nil || KindOf(err) == KindInterrupt {
			err = newError(KindInterrupt, "launch", err)
			s.Log.Warn().Err(err).Msg("Interrupted during browser launch")
		} else {
			err = newError(KindBrowser, "launch", err)
			s.Log.Error().Err(err).Msg("Browser launch failed")
			store.Note("error", err.Error())
		}
		if werr := store.WriteManifest(outcomeOf(err)); werr != nil {
			s.Log.Warn().Err(werr).Msg("Failed to write manifest")
		}
		return err
	}

	joined := false
	defer func() {
		s.terminate(drv, store, joined, err)
	}()

	joined, err = s.runStages(ctx, drv, store)
	if err != nil {
		if KindOf(err) == KindInterrupt {
			s.Log.Warn().Err(err).Str("state", s.state.String()).Msg("Interrupted")
			return err
		}
		s.Log.Error().Err(err).Str("state", s.state.String()).Str("kind", KindOf(err).String()).Msg("Session failed")
		if cerr := store.Capture(drv, "on_error"); cerr != nil {
			s.Log.Warn().Err(cerr).Msg("Failed to capture error screenshot")
		}
		store.Note("error", err.Error())
		return err
	}
	return nil
}

func (s *Supervisor) runStages(ctx context.Context, drv Driver, store *diagnostics.Store) (joined bool, err error) {
	log := s.Log
	cfg := s.Config

	s.enter(StateAuthenticating)
	if err := interrupted(ctx, s.state); err != nil {
		return false, err
	}
	log.Info().Msg("Signing in to Google")
	auth := &Authenticator{
		Driver:      drv,
		Diagnostics: store,
		SignInURL:   s.SignInURL,
		Timeouts:    s.Timeouts,
		Log:         log.With().Str("component", "authenticator").Logger(),
	}
	if err := auth.SignIn(cfg.Email, cfg.Password); err != nil {
		return false, err
	}

	s.enter(StateNavigating)
	if err := interrupted(ctx, s.state); err != nil {
		return false, err
	}
	log.Info().Str("url", cfg.MeetURL).Msg("Joining meeting")
	nav := &Navigator{
		Driver:      drv,
		Diagnostics: store,
		Timeouts:    s.Timeouts,
		Log:         log.With().Str("component", "navigator").Logger(),
	}
	if err := nav.Navigate(cfg.MeetURL); err != nil {
		return false, err
	}

	s.enter(StateMuting)
	if err := interrupted(ctx, s.state); err != nil {
		return false, err
	}
	log.Info().Msg("Turning off microphone and camera")
	muter := &Muter{
		Driver:      drv,
		Diagnostics: store,
		Attempts:    2,
		KeyDelay:    s.Timeouts.KeyDelay,
		Log:         log.With().Str("component", "muter").Logger(),
	}
	if failures := muter.Mute(); len(failures) > 0 {
		store.Note("mute", fmt.Sprintf("%d toggle attempt(s) failed", len(failures)))
	}

	s.enter(StateJoining)
	if err := interrupted(ctx, s.state); err != nil {
		return false, err
	}
	log.Info().Msg("Looking for Join button")
	resolver := &JoinResolver{
		Driver:      drv,
		Diagnostics: store,
		Candidates:  s.Candidates,
		Timeout:     s.Timeouts.Candidate,
		Budget:      time.Duration(cfg.MaxWaitMinutes) * time.Minute,
		Now:         s.Now,
		Log:         log.With().Str("component", "join").Logger(),
	}
	if _, err := resolver.Join(); err != nil {
		return false, err
	}

	s.enter(StateRecording)
	if err := interrupted(ctx, s.state); err != nil {
		return true, err
	}
	log.Info().Int("minutes", cfg.DurationMinutes).Msg("In meeting, recording")
	res, err := s.Recorder.Record(ctx, cfg.DurationMinutes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true, newError(KindInterrupt, "record", err)
		}
		return true, newError(KindRecorder, "record", err)
	}
	s.result = res
	store.Note("recording", "saved to "+res.Path)
	log.Info().Str("path", res.Path).Dur("elapsed", res.Elapsed).Msg("Recording completed successfully")

	s.enter(StateIdling)
	log.Info().Msg("Waiting for interrupt to exit")
	<-ctx.Done()
	log.Info().Msg("Exiting")
	return true, nil
}

// terminate is the single release point for the browser session.
func (s *Supervisor) terminate(drv Driver, store *diagnostics.Store, joined bool, runErr error) {
	s.enter(StateTerminating)

	if joined {
		Leave(drv, s.Timeouts.Leave, s.Log.With().Str("component", "leave").Logger())
	}

	outcome := outcomeOf(runErr)
	if err := store.WriteManifest(outcome); err != nil {
		s.Log.Warn().Err(err).Str("path", filepath.Join(store.Dir(), diagnostics.ManifestFile)).Msg("Failed to write manifest")
	}

	if err := drv.Quit(); err != nil {
		s.Log.Error().Err(err).Msg("Failed to release browser")
	}
	s.Log.Info().Str("outcome", outcome).Msg("Done")
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case KindOf(err) == KindInterrupt:
		return "interrupted"
	default:
		return "failed: " + KindOf(err).String()
	}
}

func interrupted(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return newError(KindInterrupt, state.String(), err)
	}
	return nil
}
