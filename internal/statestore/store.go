// Package statestore implements the Plan State & Resume Store (component
// J, spec §4.9): flat per-tool JSON files under .state/install_plans,
// written atomically and serialized through a single owner goroutine so
// concurrent Save/Load/Archive calls from the Execution Engine's result
// callbacks never race on the same file.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/outfit-dev/outfit/internal/plan"
)

// Store persists plan.PlanState under the install_plans directory it is
// given, with an archive/ subtree for completed plans moved out of the pending
// set. All disk access runs on a single owner goroutine reached through
// reqs, mirroring the teacher's animate-on-one-goroutine pattern used by
// internal/progress.Spinner.
type Store struct {
	dir     string
	archive string

	reqs     chan func()
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Store rooted at baseDir (the plan-state directory,
// config.Config.PlanStateDir), creating the directory tree (including
// archive/) if it doesn't exist yet.
func New(baseDir string) (*Store, error) {
	dir := baseDir
	archive := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archive, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create %s: %w", archive, err)
	}

	s := &Store{
		dir:     dir,
		archive: archive,
		reqs:    make(chan func(), 16),
		stop:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Close signals the owner goroutine to stop and returns without waiting;
// the goroutine runs any requests already queued before it exits.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) run() {
	for {
		select {
		case fn := <-s.reqs:
			fn()
		case <-s.stop:
			for {
				select {
				case fn := <-s.reqs:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do enqueues fn on the owner goroutine and blocks until it has run.
func (s *Store) do(fn func()) {
	done := make(chan struct{})
	s.reqs <- func() {
		fn()
		close(done)
	}
	<-done
}

func (s *Store) path(tool string) string {
	return filepath.Join(s.dir, tool+".json")
}

func (s *Store) archivePath(tool string) string {
	return filepath.Join(s.archive, tool+".json")
}

// Save writes state for state.Plan.Tool, stripping sensitive fields and
// writing via a tmp-file-plus-rename so a reader never observes a
// partial write (§4.9).
func (s *Store) Save(state *plan.PlanState) error {
	var err error
	s.do(func() { err = s.saveLocked(s.path(state.Plan.Tool), state) })
	return err
}

func (s *Store) saveLocked(path string, state *plan.PlanState) error {
	scrubbed := stripSensitive(state)
	data, err := json.MarshalIndent(scrubbed, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: rename %s: %w", path, err)
	}
	return nil
}

// Load reads the persisted state for tool, or (nil, os.ErrNotExist) if
// no plan has ever been saved for it.
func (s *Store) Load(tool string) (*plan.PlanState, error) {
	var state *plan.PlanState
	var err error
	s.do(func() { state, err = s.loadLocked(s.path(tool)) })
	return state, err
}

func (s *Store) loadLocked(path string) (*plan.PlanState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state plan.PlanState
	if jsonErr := json.Unmarshal(data, &state); jsonErr != nil {
		return nil, fmt.Errorf("statestore: parse %s: %w", path, jsonErr)
	}
	return &state, nil
}

// Resume loads tool's persisted state and demotes any step left in
// "running" (an interrupted process never recorded its outcome) back to
// "pending", marking the plan interrupted so the caller knows to
// re-announce rather than silently continue (§4.9).
func (s *Store) Resume(tool string) (*plan.PlanState, error) {
	state, err := s.Load(tool)
	if err != nil {
		return nil, err
	}

	resumed := false
	for i := range state.Results {
		if state.Results[i].Status == plan.StatusRunning {
			state.Results[i].Status = plan.StatusPending
			resumed = true
		}
	}
	if resumed {
		state.Phase = plan.PhaseQueued
		state.InterruptionReason = "resumed"
		if err := s.Save(state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// ListPending returns the tool IDs with a persisted plan whose phase is
// not yet terminal (queued, running, or paused).
func (s *Store) ListPending() ([]string, error) {
	var tools []string
	var err error
	s.do(func() { tools, err = s.listPendingLocked() })
	return tools, err
}

func (s *Store) listPendingLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("statestore: list %s: %w", s.dir, err)
	}

	var pending []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		state, err := s.loadLocked(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue // skip unreadable/corrupt files rather than fail the whole listing
		}
		switch state.Phase {
		case plan.PhaseQueued, plan.PhaseRunning, plan.PhasePaused:
			pending = append(pending, state.Plan.Tool)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// Archive moves tool's plan file out of the pending set once its phase
// is terminal, so ListPending's directory scan stays small over the
// life of a long-running installation.
func (s *Store) Archive(tool string) error {
	var err error
	s.do(func() { err = os.Rename(s.path(tool), s.archivePath(tool)) })
	return err
}
