package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"

	"prizedraw/internal/models"
)

// DrawState is where the engine is in a draw cycle.
type DrawState int

const (
	StateIdle DrawState = iota
	StateSampling
	StateAwaitingCommit
	StateCommitted
)

func (s DrawState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateAwaitingCommit:
		return "awaiting_commit"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("DrawState(%d)", int(s))
	}
}

func (s DrawState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DrawState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateCommitted; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown draw state %q", text)
}

// PendingDraw describes a sampled batch that has not been committed yet.
// The winners themselves are only revealed by Commit.
type PendingDraw struct {
	PrizeID   string    `json:"prizeId"`
	PrizeName string    `json:"prizeName"`
	Requested int       `json:"requested"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	StartedAt time.Time `json:"startedAt"`
}

// DrawResult is the outcome of a committed draw.
type DrawResult struct {
	PrizeID   string                `json:"prizeId"`
	PrizeName string                `json:"prizeName"`
	Requested int                   `json:"requested"`
	Drawn     int                   `json:"drawn"`
	Winners   []models.WinnerRecord `json:"winners"`
	Remaining int                   `json:"remaining"`
}

// Engine runs one draw at a time against a Store:
// Idle -> Sampling -> AwaitingCommit -> Committed -> Idle.
// It never mutates entities itself; the sampled batch is handed to
// Store.CommitWinners, which re-validates it under the store lock.
type Engine struct {
	store *Store
	src   RandomSource
	now   func() time.Time

	mu         sync.Mutex
	state      DrawState
	committing bool
	pending    PendingDraw
	winners    []models.Person
}

// NewEngine returns an idle engine drawing from store with src.
func NewEngine(store *Store, src RandomSource) *Engine {
	return &Engine{
		store: store,
		src:   src,
		now:   time.Now,
	}
}

// State reports the current draw state.
func (e *Engine) State() DrawState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the batch awaiting commit, if any.
func (e *Engine) Pending() (PendingDraw, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAwaitingCommit {
		return PendingDraw{}, false
	}
	return e.pending, true
}

// Draw is the default flow: sample and commit straight away.
func (e *Engine) Draw(ctx context.Context, prizeID string, requested int) (DrawResult, error) {
	if _, err := e.Begin(prizeID, requested); err != nil {
		return DrawResult{}, err
	}
	return e.Commit(ctx)
}

// Begin checks every precondition, samples the winners and holds them for
// Commit. On any failure the engine stays Idle and nothing is sampled.
func (e *Engine) Begin(prizeID string, requested int) (PendingDraw, error) {
	if prizeID == "" {
		return PendingDraw{}, ErrNoPrizeSelected
	}
	if requested <= 0 {
		return PendingDraw{}, fmt.Errorf("%w: requested %d winners", ErrNothingToDraw, requested)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return PendingDraw{}, fmt.Errorf("%w (%s)", ErrDrawInProgress, e.state)
	}

	snap := e.store.Snapshot()
	pi := snap.prizeIndex(prizeID)
	if pi < 0 {
		return PendingDraw{}, fmt.Errorf("%w: %s", ErrPrizeNotFound, prizeID)
	}
	prize := snap.Prizes[pi]
	if !prize.Enabled {
		return PendingDraw{}, fmt.Errorf("%w: %s", ErrPrizeDisabled, prize.Name)
	}
	remaining := RemainingQuota(prize, snap.WinnerRecords)
	if remaining == 0 {
		return PendingDraw{}, &QuotaExhaustedError{PrizeID: prize.ID, Quota: prize.Quota}
	}
	pool := EligiblePersons(snap.Persons, snap.WinnerRecords)
	if len(pool) == 0 {
		return PendingDraw{}, ErrNoEligiblePersons
	}

	e.state = StateSampling
	count := ClampDrawCount(requested, remaining, len(pool))
	winners, err := Sample(pool, count, e.src)
	if err != nil {
		e.state = StateIdle
		return PendingDraw{}, fmt.Errorf("sample winners: %w", err)
	}

	e.winners = winners
	e.pending = PendingDraw{
		PrizeID:   prize.ID,
		PrizeName: prize.Name,
		Requested: requested,
		Count:     count,
		Remaining: remaining,
		StartedAt: e.now(),
	}
	e.state = StateAwaitingCommit
	logger.Infof("engine: sampled %d of %d requested for %q (remaining %d, pool %d)",
		count, requested, prize.Name, remaining, len(pool))
	return e.pending, nil
}

// Commit persists the pending batch. Success or failure, the engine is Idle
// afterwards. A context that is already done abandons the batch unwritten.
// The engine lock is not held during the store write, so observers and
// readers can call back into the engine; the committing flag keeps other
// commits and cancels out meanwhile.
func (e *Engine) Commit(ctx context.Context) (DrawResult, error) {
	e.mu.Lock()
	if e.state != StateAwaitingCommit {
		e.mu.Unlock()
		return DrawResult{}, ErrNoPendingDraw
	}
	if e.committing {
		e.mu.Unlock()
		return DrawResult{}, fmt.Errorf("%w (committing)", ErrDrawInProgress)
	}
	pending, winners := e.pending, e.winners
	if err := ctx.Err(); err != nil {
		e.reset()
		e.mu.Unlock()
		logger.Warningf("engine: draw for %q abandoned before commit: %v", pending.PrizeName, err)
		return DrawResult{}, err
	}
	e.committing = true
	e.mu.Unlock()

	ids := make([]string, len(winners))
	for i, w := range winners {
		ids[i] = w.ID
	}
	res, err := e.store.CommitWinners(ctx, WinnerBatch{PrizeID: pending.PrizeID, PersonIDs: ids})

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.reset()
	if err != nil {
		logger.Warningf("engine: commit for %q rejected: %v", pending.PrizeName, err)
		return DrawResult{}, err
	}
	e.state = StateCommitted
	logger.Infof("engine: committed %d winners for %q, %d remaining", len(res.Records), pending.PrizeName, res.Remaining)

	return DrawResult{
		PrizeID:   pending.PrizeID,
		PrizeName: pending.PrizeName,
		Requested: pending.Requested,
		Drawn:     len(res.Records),
		Winners:   res.Records,
		Remaining: res.Remaining,
	}, nil
}

// Cancel drops the pending batch without writing anything. A batch already
// being written can no longer be cancelled.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAwaitingCommit {
		return ErrNoPendingDraw
	}
	if e.committing {
		return fmt.Errorf("%w (committing)", ErrDrawInProgress)
	}
	logger.Infof("engine: draw for %q cancelled", e.pending.PrizeName)
	e.reset()
	return nil
}

func (e *Engine) reset() {
	e.state = StateIdle
	e.committing = false
	e.pending = PendingDraw{}
	e.winners = nil
}

// Preview returns up to k shuffled people from the current pool for the
// rolling display. It reads only and has no bearing on the actual draw.
func (e *Engine) Preview(k int) []models.Person {
	snap := e.store.Snapshot()
	pool := EligiblePersons(snap.Persons, snap.WinnerRecords)
	k = max(0, min(k, len(pool)))
	out, _ := Sample(pool, k, e.src)
	return out
}
