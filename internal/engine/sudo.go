package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSudoUnattended = errors.New("sudo password required but no sink is attached")

// Validator runs the privilege check the Sudo Session relies on. In
// production this shells out to `sudo -n true` / `sudo -v`; tests inject a
// fake to avoid touching the real sudo binary.
type Validator interface {
	// NonInteractive reports whether cached sudo credentials are already
	// valid (`sudo -n true`).
	NonInteractive(ctx context.Context) bool
	// Validate performs interactive validation with the given password
	// (`sudo -v`), returning an error if it's rejected.
	Validate(ctx context.Context, password string) error
}

// sudoSession implements the §4.8 sudo handling: once credentials are
// validated, a refresher loop keeps them warm every 60s until close() is
// called at the end of the run; the first step that needs a password
// triggers a sudo_prompt event.
type sudoSession struct {
	validator Validator
	sink      Sink
	mu        sync.Mutex
	validated bool
	refreshing bool
	stop       chan struct{}
}

func newSudoSession(v Validator, sink Sink) *sudoSession {
	return &sudoSession{validator: v, sink: sink}
}

// ensure blocks until sudo credentials are valid, prompting through the
// sink at most once per session. The lock is held across the whole
// non-interactive-check-through-interactive-validation sequence (including
// the blocking AwaitSudoPassword wait) so that two steps admitted in the
// same scheduler tick can't both observe validated=false and both reach
// the sudo_prompt: the second caller simply blocks until the first has
// finished validating, then sees validated=true and returns immediately.
func (s *sudoSession) ensure(ctx context.Context, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.validated {
		return nil
	}
	if s.validator.NonInteractive(ctx) {
		s.validated = true
		s.startRefresher()
		return nil
	}

	s.sink.Emit(Event{Kind: EventSudoPrompt, StepID: stepID})
	password, err := s.sink.AwaitSudoPassword(stepID)
	if err != nil {
		return err
	}
	if err := s.validator.Validate(ctx, password); err != nil {
		return err
	}

	s.validated = true
	s.startRefresher()
	return nil
}

// startRefresher must be called with s.mu held.
func (s *sudoSession) startRefresher() {
	if s.refreshing {
		return
	}
	s.refreshing = true
	s.stop = make(chan struct{})
	stop := s.stop
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.validator.NonInteractive(context.Background())
			}
		}
	}()
}

func (s *sudoSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		close(s.stop)
		s.refreshing = false
	}
}
