package simd

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

// DefaultMaxRuns bounds the store when no size is configured
const DefaultMaxRuns = 256

var (
	ErrRunExists   = errors.New("run already exists")
	ErrRunNotFound = errors.New("run not found")
	ErrRunTerminal = errors.New("run is terminal")
)

// Run is the externally visible state of a simulation run
type Run struct {
	ID              string           `json:"id"`
	Status          models.RunStatus `json:"status"`
	CreatedAtUnixMs int64            `json:"created_at_unix_ms"`
	StartedAtUnixMs int64            `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64            `json:"ended_at_unix_ms,omitempty"`
	Error           string           `json:"error,omitempty"`
	PairsDone       int              `json:"pairs_done"`
	PairsTotal      int              `json:"pairs_total"`
}

// RunInput is what a run was created with. It is never modified after Create.
type RunInput struct {
	Scenario       *config.Scenario
	CallbackURL    string
	CallbackSecret string
}

// RunRecord is a snapshot of one stored run. Run is a copy; Input and Result
// are shared and read-only.
type RunRecord struct {
	Run    *Run
	Input  *RunInput
	Result *simulation.Outcome

	seq uint64
}

// RunStore keeps the most recently used runs in memory. When full, the least
// recently used run is evicted and the eviction hook, if any, is called with
// its ID.
type RunStore struct {
	mu      sync.Mutex
	runs    *lru.Cache
	seq     uint64
	onEvict func(runID string)
}

func NewRunStore(maxRuns int) *RunStore {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	s := &RunStore{}
	cache, err := lru.NewWithEvict(maxRuns, func(key, _ interface{}) {
		if s.onEvict != nil {
			s.onEvict(key.(string))
		}
	})
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	s.runs = cache
	return s
}

// SetEvictHook registers fn to be called, under the store lock, for every
// evicted run. fn must not call back into the store.
func (s *RunStore) SetEvictHook(fn func(runID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

func (s *RunStore) Create(runID string, input *RunInput) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	} else if err := utils.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if s.runs.Contains(runID) {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	s.seq++
	rec := &RunRecord{
		Run: &Run{
			ID:              runID,
			Status:          models.RunStatusPending,
			CreatedAtUnixMs: nowUnixMs(),
		},
		Input: input,
		seq:   s.seq,
	}
	if input != nil && input.Scenario != nil {
		rec.Run.PairsTotal = len(input.Scenario.MICs) * models.NewRegimenSet(input.Scenario.Regimens...).Len()
	}
	s.runs.Add(runID, rec)
	return rec.snapshot(), nil
}

func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.runs.Get(runID)
	if !ok {
		return nil, false
	}
	return v.(*RunRecord).snapshot(), true
}

// Len returns the number of stored runs
func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs.Len()
}

// List returns up to limit runs, newest first
func (s *RunStore) List(limit int) []*RunRecord {
	return s.ListFiltered(limit, 0, "")
}

// ListFiltered returns runs newest first, optionally restricted to one status,
// after skipping offset matches. A non-positive limit means 50.
func (s *RunStore) ListFiltered(limit, offset int, status models.RunStatus) []*RunRecord {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	all := make([]*RunRecord, 0, s.runs.Len())
	for _, key := range s.runs.Keys() {
		v, ok := s.runs.Peek(key)
		if !ok {
			continue
		}
		rec := v.(*RunRecord)
		if status != "" && rec.Run.Status != status {
			continue
		}
		all = append(all, rec.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	if offset >= len(all) {
		return []*RunRecord{}
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// SetStatus moves a run to status. Terminal runs never change status again.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	if rec.Run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}

	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}

	switch status {
	case models.RunStatusRunning:
		if rec.Run.StartedAtUnixMs == 0 {
			rec.Run.StartedAtUnixMs = nowUnixMs()
		}
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		rec.Run.EndedAtUnixMs = nowUnixMs()
	}

	return rec.snapshot(), nil
}

// SetProgress records how many pairs of a run have finished. Reports from
// concurrent workers may arrive out of order; the count never goes backwards.
func (s *RunStore) SetProgress(runID string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(runID)
	if err != nil {
		return err
	}
	if done > rec.Run.PairsDone {
		rec.Run.PairsDone = done
	}
	rec.Run.PairsTotal = total
	return nil
}

// SetResult attaches the simulation outcome to a run
func (s *RunStore) SetResult(runID string, result *simulation.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(runID)
	if err != nil {
		return err
	}
	rec.Result = result
	return nil
}

func (s *RunStore) lookup(runID string) (*RunRecord, error) {
	v, ok := s.runs.Peek(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return v.(*RunRecord), nil
}

func (r *RunRecord) snapshot() *RunRecord {
	run := *r.Run
	return &RunRecord{
		Run:    &run,
		Input:  r.Input,
		Result: r.Result,
		seq:    r.seq,
	}
}
