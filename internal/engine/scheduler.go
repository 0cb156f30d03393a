package engine

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/outfit-dev/outfit/internal/log"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/plan"
)

// Config tunes the scheduler's concurrency caps and failure behavior (§4.8).
type Config struct {
	MaxParallelSteps     int
	MaxParallelDownloads int
	MaxParallelBuilds    int
	AbortOnFailure       bool
	MaxDrainSec          int
}

// DefaultConfig returns the §4.8 defaults, scaling MaxParallelBuilds to the
// host's CPU count.
func DefaultConfig() Config {
	builds := runtime.NumCPU() / 4
	if builds < 1 {
		builds = 1
	}
	return Config{
		MaxParallelSteps:     4,
		MaxParallelDownloads: 2,
		MaxParallelBuilds:    builds,
		AbortOnFailure:       false,
		MaxDrainSec:          30,
	}
}

var pmLockNames = map[string]string{
	"apt-get": "apt", "apt": "apt",
	"dnf": "dnf", "yum": "yum",
	"pacman": "pacman", "apk": "apk",
	"zypper": "zypper", "snap": "snap",
}

// Scheduler runs a Plan's step DAG to completion (§4.8).
type Scheduler struct {
	cfg    Config
	runner Runner
	sink   Sink
	logger log.Logger
	sudo   *sudoSession

	mu       sync.Mutex
	statuses map[string]plan.StepStatus
	results  map[string]*plan.StepResult
	wake     chan struct{}

	// stepSem/downloadSem/buildSem bound global and per-category parallelism
	// (§4.8). TryAcquire is called under s.mu from readyStepsLocked so an
	// admission decision and its reservation happen atomically; Release
	// happens once the step's goroutine finishes, from releaseSlotLocked.
	stepSem     *semaphore.Weighted
	downloadSem *semaphore.Weighted
	buildSem    *semaphore.Weighted
	pmLocks     map[string]*sync.Mutex
	pmLocksMu   sync.Mutex

	onResult func(plan.StepResult) // called after each terminal transition, before ready-set recompute
}

// NewScheduler builds a Scheduler with the given config, command runner,
// sudo validator, and event sink.
func NewScheduler(cfg Config, runner Runner, validator Validator, sink Sink, logger log.Logger) *Scheduler {
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = log.NewNoop()
	}
	s := &Scheduler{
		cfg:         cfg,
		runner:      runner,
		sink:        sink,
		logger:      logger,
		statuses:    make(map[string]plan.StepStatus),
		results:     make(map[string]*plan.StepResult),
		wake:        make(chan struct{}, 1),
		stepSem:     semaphore.NewWeighted(int64(cfg.MaxParallelSteps)),
		downloadSem: semaphore.NewWeighted(int64(cfg.MaxParallelDownloads)),
		buildSem:    semaphore.NewWeighted(int64(cfg.MaxParallelBuilds)),
		pmLocks:     make(map[string]*sync.Mutex),
	}
	if validator != nil {
		s.sudo = newSudoSession(validator, sink)
	}
	return s
}

// Run executes p's step DAG to completion, honoring ctx cancellation.
// onResult, if non-nil, is called synchronously after every terminal step
// transition (the State Store's save hook, §4.9) before that result is
// used to compute the next ready set.
func (s *Scheduler) Run(ctx context.Context, p *plan.Plan, onResult func(plan.StepResult)) (plan.Phase, []plan.StepResult, error) {
	s.onResult = onResult
	byID := make(map[string]plan.Step, len(p.Steps))
	for _, st := range p.Steps {
		byID[st.ID] = st
		s.statuses[st.ID] = plan.StatusPending
	}

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	cancelled := false
	var g errgroup.Group

	for {
		s.mu.Lock()
		if allTerminal(s.statuses) {
			s.mu.Unlock()
			break
		}
		if runCtx.Err() != nil && !cancelled {
			cancelled = true
			s.cancelPendingLocked()
		}

		ready := s.readyStepsLocked(byID)
		for _, id := range ready {
			s.statuses[id] = plan.StatusRunning
			step := byID[id]
			g.Go(func() error {
				s.runStep(runCtx, step, abort)
				return nil
			})
		}
		s.mu.Unlock()

		if len(ready) == 0 {
			select {
			case <-s.wake:
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	drained := make(chan struct{})
	go func() { g.Wait(); close(drained) }()
	drainLimit := time.Duration(s.cfg.MaxDrainSec) * time.Second
	if drainLimit <= 0 {
		drainLimit = 30 * time.Second
	}
	select {
	case <-drained:
	case <-time.After(drainLimit):
		s.logger.Debug("drain budget exceeded, returning with steps still terminating", "max_drain_sec", s.cfg.MaxDrainSec)
	}
	if s.sudo != nil {
		s.sudo.close()
	}

	results := make([]plan.StepResult, 0, len(p.Steps))
	phase := plan.PhaseSucceeded
	for _, st := range p.Steps {
		r := s.results[st.ID]
		if r == nil {
			r = &plan.StepResult{StepID: st.ID, Status: s.statuses[st.ID]}
		}
		results = append(results, *r)
		switch r.Status {
		case plan.StatusFailed:
			if phase != plan.PhaseCancelled {
				phase = plan.PhaseFailed
			}
		case plan.StatusCancelled:
			phase = plan.PhaseCancelled
		}
	}
	return phase, results, nil
}

// readyStepsLocked returns pending steps whose dependencies are all
// terminal-success, admitting them against the global and per-category
// concurrency caps (§4.8) by acquiring their semaphores immediately so a
// later call in the same tick can't over-admit. Caller must hold s.mu.
func (s *Scheduler) readyStepsLocked(byID map[string]plan.Step) []string {
	var ready []string

	for id, status := range s.statuses {
		if status != plan.StatusPending {
			continue
		}
		step := byID[id]
		if !s.depsSatisfiedLocked(step) {
			continue
		}
		if !s.stepSem.TryAcquire(1) {
			break // global cap reached; no candidate can be admitted this tick
		}

		var categorySem *semaphore.Weighted
		switch step.Type {
		case plan.StepSource, plan.StepTool:
			categorySem = s.downloadSem
		case plan.StepBuild:
			categorySem = s.buildSem
		}
		if categorySem != nil && !categorySem.TryAcquire(1) {
			s.stepSem.Release(1)
			continue
		}

		ready = append(ready, id)
	}

	return ready
}

// releaseSlotLocked returns a finished step's concurrency-cap reservations.
// Caller must hold s.mu.
func (s *Scheduler) releaseSlotLocked(t plan.StepType) {
	s.stepSem.Release(1)
	switch t {
	case plan.StepSource, plan.StepTool:
		s.downloadSem.Release(1)
	case plan.StepBuild:
		s.buildSem.Release(1)
	}
}

func (s *Scheduler) depsSatisfiedLocked(step plan.Step) bool {
	for _, dep := range step.DependsOn {
		switch s.statuses[dep] {
		case plan.StatusSuccess:
			continue
		case plan.StatusFailed, plan.StatusSkipped, plan.StatusCancelled:
			s.statuses[step.ID] = plan.StatusSkipped
			s.recordResultLocked(plan.StepResult{StepID: step.ID, Status: plan.StatusSkipped, ErrorKind: string(outfiterr.KindDepFailed)})
			return false
		default:
			return false
		}
	}
	return true
}

func (s *Scheduler) cancelPendingLocked() {
	for id, status := range s.statuses {
		if status == plan.StatusPending {
			s.statuses[id] = plan.StatusCancelled
			s.recordResultLocked(plan.StepResult{StepID: id, Status: plan.StatusCancelled})
		}
	}
}

func (s *Scheduler) recordResultLocked(r plan.StepResult) {
	s.results[r.StepID] = &r
	if s.onResult != nil {
		s.onResult(r)
	}
}

func (s *Scheduler) runStep(ctx context.Context, step plan.Step, abort context.CancelFunc) {
	defer s.signalWake()

	unlockPM := s.acquirePMLock(step)
	if unlockPM != nil {
		defer unlockPM()
	}

	if step.NeedsSudo && s.sudo != nil {
		if err := s.sudo.ensure(ctx, step.ID); err != nil {
			s.finishStep(step, plan.StatusFailed, -1, err.Error(), string(outfiterr.KindSudoRequired), 0)
			if s.cfg.AbortOnFailure {
				abort()
			}
			return
		}
	}

	result := s.execWithRetry(ctx, step)
	s.mu.Lock()
	s.statuses[step.ID] = result.Status
	s.recordResultLocked(result)
	s.releaseSlotLocked(step.Type)
	s.mu.Unlock()

	if s.cfg.AbortOnFailure && result.Status == plan.StatusFailed {
		abort()
	}
}

func (s *Scheduler) execWithRetry(ctx context.Context, step plan.Step) plan.StepResult {
	attempts := 1
	backoff := time.Duration(0)
	if step.Retry != nil {
		attempts = step.Retry.Max + 1
		backoff = time.Duration(step.Retry.BackoffMS) * time.Millisecond
	}

	var lastResult plan.StepResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.sink.Emit(Event{Kind: EventStepRetrying, StepID: step.ID, Attempt: attempt})
			select {
			case <-time.After(backoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
			}
		}

		lastResult = s.execOnce(ctx, step, attempt)
		if lastResult.Status == plan.StatusSuccess {
			return lastResult
		}
		if ctx.Err() != nil {
			return lastResult
		}
		if !outfiterr.IsRetryable(outfiterr.Kind(lastResult.ErrorKind)) {
			return lastResult
		}
	}
	return lastResult
}

func (s *Scheduler) execOnce(ctx context.Context, step plan.Step, attempt int) plan.StepResult {
	s.logger.Debug("running step", "step_id", step.ID, "type", step.Type, "attempt", attempt)
	s.sink.Emit(Event{Kind: EventStepStarted, StepID: step.ID})
	startedAt := clockNow()

	timeout := time.Duration(step.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tail strings.Builder
	onLine := func(stream, line string) {
		s.sink.Emit(Event{Kind: EventStepOutput, StepID: step.ID, Stream: stream, Line: line})
		tail.WriteString(line)
		tail.WriteString("\n")
	}

	exitCode := 0
	var runErr error
	if step.Command != "" {
		exitCode, runErr = s.runner.Run(stepCtx, step.Command, step.CWD, step.EnvOverrides, onLine)
	}
	endedAt := clockNow()

	status := plan.StatusSuccess
	errorKind := ""
	if runErr != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			errorKind = string(outfiterr.KindTimeout)
			status = plan.StatusFailed
		} else if ctx.Err() != nil {
			errorKind = string(outfiterr.KindCancelled)
			status = plan.StatusCancelled
		} else if exitCode != 0 && step.Type == plan.StepPackages && alreadyInstalledPattern(tail.String()) {
			status = plan.StatusSuccess
		} else {
			errorKind = string(outfiterr.KindExitNonzero)
			status = plan.StatusFailed
		}
	}

	result := plan.StepResult{
		StepID:      step.ID,
		Status:      status,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		ExitCode:    &exitCode,
		OutputTail:  tailLines(tail.String(), 50),
		ErrorKind:   errorKind,
		RetriesUsed: attempt,
	}
	s.sink.Emit(Event{Kind: EventStepFinished, StepID: step.ID, Status: status, ErrorKind: errorKind})
	return result
}

func (s *Scheduler) finishStep(step plan.Step, status plan.StepStatus, exitCode int, outputTail, errorKind string, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[step.ID] = status
	s.recordResultLocked(plan.StepResult{
		StepID: step.ID, Status: status, ExitCode: &exitCode,
		OutputTail: outputTail, ErrorKind: errorKind, RetriesUsed: retries,
	})
	s.releaseSlotLocked(step.Type)
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) acquirePMLock(step plan.Step) func() {
	if step.Type != plan.StepPackages {
		return nil
	}
	name := pmNameFromCommand(step.Command)
	if name == "" {
		return nil
	}
	s.pmLocksMu.Lock()
	l, ok := s.pmLocks[name]
	if !ok {
		l = &sync.Mutex{}
		s.pmLocks[name] = l
	}
	s.pmLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}

func pmNameFromCommand(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return pmLockNames[fields[0]]
}

func allTerminal(statuses map[string]plan.StepStatus) bool {
	for _, st := range statuses {
		if st == plan.StatusPending || st == plan.StatusRunning {
			return false
		}
	}
	return true
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func clockNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
