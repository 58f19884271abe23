package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"prizedraw/internal/models"
	"prizedraw/internal/storage"
)

// DefaultStateKey is the KV key the whole state is written under.
const DefaultStateKey = "lottery-storage"

// ErrEmployeeIDInUse is returned when a single added person reuses an employee ID.
var ErrEmployeeIDInUse = errors.New("employee id already in use")

// Snapshot is the serialisable state. It is what gets written to the KV
// on every mutation and what readers get copies of.
type Snapshot struct {
	Persons       []models.Person       `json:"persons"`
	Prizes        []models.Prize        `json:"prizes"`
	WinnerRecords []models.WinnerRecord `json:"winnerRecords"`
	Config        models.SystemConfig   `json:"config"`
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Persons:       make([]models.Person, len(s.Persons)),
		Prizes:        slices.Clone(s.Prizes),
		WinnerRecords: slices.Clone(s.WinnerRecords),
		Config:        s.Config,
	}
	for i, p := range s.Persons {
		out.Persons[i] = p.Clone()
	}
	if out.Prizes == nil {
		out.Prizes = []models.Prize{}
	}
	if out.WinnerRecords == nil {
		out.WinnerRecords = []models.WinnerRecord{}
	}
	return out
}

func (s *Snapshot) prizeIndex(id string) int {
	return slices.IndexFunc(s.Prizes, func(p models.Prize) bool { return p.ID == id })
}

func (s *Snapshot) personIndex(id string) int {
	return slices.IndexFunc(s.Persons, func(p models.Person) bool { return p.ID == id })
}

func (s *Snapshot) recordIndex(id string) int {
	return slices.IndexFunc(s.WinnerRecords, func(r models.WinnerRecord) bool { return r.ID == id })
}

// WinnerBatch is a sampled set of winners proposed for commit.
type WinnerBatch struct {
	PrizeID   string
	PersonIDs []string
}

// CommitResult is what a successful CommitWinners produced.
type CommitResult struct {
	Records   []models.WinnerRecord
	Remaining int
}

// PrizeUpdate carries the fields of a prize to change; nil fields are kept.
type PrizeUpdate struct {
	Name    *string `json:"name"`
	Quota   *int    `json:"quota"`
	Enabled *bool   `json:"enabled"`
}

// RecordFilter narrows ListWinnerRecords. Zero values match everything.
type RecordFilter struct {
	PrizeID string
	From    time.Time
	To      time.Time
}

func (f RecordFilter) match(r models.WinnerRecord) bool {
	if f.PrizeID != "" && r.PrizeID != f.PrizeID {
		return false
	}
	if !f.From.IsZero() && r.WonAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.WonAt.After(f.To) {
		return false
	}
	return true
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the KV key the state lives under.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store owns every entity collection. Mutations are serialized, applied to a
// copy, written through to the KV and only then made visible; a failed write
// leaves the previous state in place.
type Store struct {
	kv    storage.KV
	key   string
	now   func() time.Time
	newID func() string

	mu    sync.RWMutex
	state Snapshot

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// Open rehydrates a Store from kv, or starts empty when nothing is stored yet.
func Open(ctx context.Context, kv storage.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:        kv,
		key:       DefaultStateKey,
		now:       time.Now,
		newID:     uuid.NewString,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	state := Snapshot{Config: models.DefaultSystemConfig()}
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		state.Config = models.DefaultSystemConfig().Merge(state.Config)
	}
	s.state = state.clone()

	logger.Infof("store: loaded %d persons, %d prizes, %d winner records from %q",
		len(s.state.Persons), len(s.state.Prizes), len(s.state.WinnerRecords), s.key)
	return s, nil
}

// mutate applies fn to a copy of the state, persists it, swaps it in and
// notifies observers once the lock is released.
func (s *Store) mutate(ctx context.Context, kind ChangeKind, fn func(*Snapshot) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		logger.Errorf("store: persist %s change: %v", kind, err)
		return err
	}
	s.state = next
	ev := newChangeEvent(kind, s.now(), next)
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

func (s *Store) persist(ctx context.Context, state Snapshot) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// ListPersons returns the roster in import order.
func (s *Store) ListPersons() []models.Person {
	return s.Snapshot().Persons
}

// ListWinners returns persons flagged as winners.
func (s *Store) ListWinners() []models.Person {
	var out []models.Person
	for _, p := range s.ListPersons() {
		if p.IsWinner {
			out = append(out, p)
		}
	}
	return out
}

// ListPrizes returns prizes in creation order.
func (s *Store) ListPrizes() []models.Prize {
	return s.Snapshot().Prizes
}

// ListEnabledPrizes returns enabled prizes sorted by display order.
func (s *Store) ListEnabledPrizes() []models.Prize {
	var out []models.Prize
	for _, p := range s.ListPrizes() {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// Prize looks up one prize.
func (s *Store) Prize(id string) (models.Prize, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.prizeIndex(id); i >= 0 {
		return s.state.Prizes[i], true
	}
	return models.Prize{}, false
}

// ListWinnerRecords returns records matching f, newest batch first.
func (s *Store) ListWinnerRecords(f RecordFilter) []models.WinnerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WinnerRecord, 0, len(s.state.WinnerRecords))
	for _, r := range s.state.WinnerRecords {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Ledger returns the quota status of every prize.
func (s *Store) Ledger() []QuotaStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Ledger(s.state.Prizes, s.state.WinnerRecords)
}

// Config returns the display configuration.
func (s *Store) Config() models.SystemConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Config
}

// BulkSetPersons replaces the roster. People whose employee ID is already on
// the roster keep their ID and win status, so existing winner records still
// point at them and they stay out of the pool. An incoming ID is only kept
// when no existing person or winner record already uses it. The importer
// guarantees employee IDs are unique within persons.
func (s *Store) BulkSetPersons(ctx context.Context, persons []models.Person) error {
	return s.mutate(ctx, ChangePersons, func(st *Snapshot) error {
		existing := make(map[string]models.Person, len(st.Persons))
		taken := make(map[string]struct{}, len(st.Persons)+len(st.WinnerRecords))
		for _, p := range st.Persons {
			existing[p.EmployeeID] = p
			taken[p.ID] = struct{}{}
		}
		for _, r := range st.WinnerRecords {
			taken[r.PersonID] = struct{}{}
		}

		// matched people claim their old IDs before anyone else is placed
		usedIDs := make(map[string]struct{}, len(persons))
		for _, in := range persons {
			if old, ok := existing[in.EmployeeID]; ok {
				usedIDs[old.ID] = struct{}{}
			}
		}

		next := make([]models.Person, 0, len(persons))
		for _, in := range persons {
			p := models.Person{ID: in.ID, EmployeeID: in.EmployeeID, Name: in.Name}
			if old, ok := existing[in.EmployeeID]; ok {
				p.ID = old.ID
				p.IsWinner = old.IsWinner
				p.WonPrizeID = old.WonPrizeID
				p.WonAt = old.Clone().WonAt
				next = append(next, p)
				continue
			}
			_, inUse := usedIDs[p.ID]
			_, owned := taken[p.ID]
			if p.ID == "" || inUse || owned {
				p.ID = s.newID()
			}
			usedIDs[p.ID] = struct{}{}
			next = append(next, p)
		}
		st.Persons = next
		return nil
	})
}

// AddPerson appends one person to the roster.
func (s *Store) AddPerson(ctx context.Context, p models.Person) (models.Person, error) {
	var added models.Person
	err := s.mutate(ctx, ChangePersons, func(st *Snapshot) error {
		for _, existing := range st.Persons {
			if existing.EmployeeID == p.EmployeeID {
				return fmt.Errorf("%w: %s", ErrEmployeeIDInUse, p.EmployeeID)
			}
		}
		added = models.Person{ID: s.newID(), EmployeeID: p.EmployeeID, Name: p.Name}
		st.Persons = append(st.Persons, added)
		return nil
	})
	return added, err
}

// RemovePerson drops a person from the roster. Their winner records stay.
func (s *Store) RemovePerson(ctx context.Context, id string) error {
	return s.mutate(ctx, ChangePersons, func(st *Snapshot) error {
		i := st.personIndex(id)
		if i < 0 {
			return ErrPersonNotFound
		}
		st.Persons = slices.Delete(st.Persons, i, i+1)
		return nil
	})
}

// ClearPersons empties the roster. Winner records stay.
func (s *Store) ClearPersons(ctx context.Context) error {
	return s.mutate(ctx, ChangePersons, func(st *Snapshot) error {
		st.Persons = []models.Person{}
		return nil
	})
}

// AddPrize stores a new prize at the end of the display order.
func (s *Store) AddPrize(ctx context.Context, p models.Prize) (models.Prize, error) {
	if err := p.Validate(); err != nil {
		return models.Prize{}, fmt.Errorf("%w: %v", ErrInvalidPrize, err)
	}
	var added models.Prize
	err := s.mutate(ctx, ChangePrizes, func(st *Snapshot) error {
		added = p
		if added.ID == "" || st.prizeIndex(added.ID) >= 0 {
			added.ID = s.newID()
		}
		added.DisplayOrder = len(st.Prizes)
		added.CreatedAt = s.now()
		st.Prizes = append(st.Prizes, added)
		return nil
	})
	return added, err
}

// UpdatePrize changes a prize in place. Lowering the quota below the number
// already drawn is allowed; the prize then simply has nothing left to draw.
func (s *Store) UpdatePrize(ctx context.Context, id string, u PrizeUpdate) (models.Prize, error) {
	var updated models.Prize
	err := s.mutate(ctx, ChangePrizes, func(st *Snapshot) error {
		i := st.prizeIndex(id)
		if i < 0 {
			return ErrPrizeNotFound
		}
		p := st.Prizes[i]
		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.Quota != nil {
			p.Quota = *u.Quota
		}
		if u.Enabled != nil {
			p.Enabled = *u.Enabled
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPrize, err)
		}
		st.Prizes[i] = p
		updated = p
		return nil
	})
	return updated, err
}

// RemovePrize deletes a prize. Winner records keep their prize name snapshot.
func (s *Store) RemovePrize(ctx context.Context, id string) error {
	return s.mutate(ctx, ChangePrizes, func(st *Snapshot) error {
		i := st.prizeIndex(id)
		if i < 0 {
			return ErrPrizeNotFound
		}
		st.Prizes = slices.Delete(st.Prizes, i, i+1)
		return nil
	})
}

// ReorderPrizes sets display order to the position of each ID in ids, which
// must name every prize exactly once.
func (s *Store) ReorderPrizes(ctx context.Context, ids []string) error {
	return s.mutate(ctx, ChangePrizes, func(st *Snapshot) error {
		if len(ids) != len(st.Prizes) {
			return fmt.Errorf("%w: reorder needs all %d prizes, got %d", ErrInvalidPrize, len(st.Prizes), len(ids))
		}
		order := make(map[string]int, len(ids))
		for i, id := range ids {
			if _, dup := order[id]; dup {
				return fmt.Errorf("%w: prize %s listed twice", ErrInvalidPrize, id)
			}
			order[id] = i
		}
		for i := range st.Prizes {
			pos, ok := order[st.Prizes[i].ID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrPrizeNotFound, st.Prizes[i].ID)
			}
			st.Prizes[i].DisplayOrder = pos
		}
		return nil
	})
}

// CommitWinners turns a sampled batch into winner records, all or nothing.
// Everything the engine checked before sampling is checked again here under
// the mutation lock; if any of it stopped holding the batch is rejected with
// ErrConcurrentQuotaRace.
func (s *Store) CommitWinners(ctx context.Context, batch WinnerBatch) (CommitResult, error) {
	var res CommitResult
	err := s.mutate(ctx, ChangeWinners, func(st *Snapshot) error {
		pi := st.prizeIndex(batch.PrizeID)
		if pi < 0 {
			return fmt.Errorf("%w: %w", ErrConcurrentQuotaRace, ErrPrizeNotFound)
		}
		prize := st.Prizes[pi]
		if !prize.Enabled {
			return fmt.Errorf("%w: %w", ErrConcurrentQuotaRace, ErrPrizeDisabled)
		}
		if len(batch.PersonIDs) == 0 {
			return ErrNothingToDraw
		}
		remaining := RemainingQuota(prize, st.WinnerRecords)
		if len(batch.PersonIDs) > remaining {
			return fmt.Errorf("%w: %d winners proposed but prize %s has %d left",
				ErrConcurrentQuotaRace, len(batch.PersonIDs), prize.ID, remaining)
		}

		won := make(map[string]struct{}, len(st.WinnerRecords)+len(batch.PersonIDs))
		for _, r := range st.WinnerRecords {
			won[r.PersonID] = struct{}{}
		}

		at := s.now()
		records := make([]models.WinnerRecord, 0, len(batch.PersonIDs))
		for _, personID := range batch.PersonIDs {
			i := st.personIndex(personID)
			if i < 0 {
				return fmt.Errorf("%w: %w: %s", ErrConcurrentQuotaRace, ErrPersonNotFound, personID)
			}
			if _, ok := won[personID]; ok {
				return fmt.Errorf("%w: person %s already won", ErrConcurrentQuotaRace, personID)
			}
			won[personID] = struct{}{}

			p := &st.Persons[i]
			p.IsWinner = true
			p.WonPrizeID = prize.ID
			wonAt := at
			p.WonAt = &wonAt

			records = append(records, models.WinnerRecord{
				ID:         s.newID(),
				PersonID:   p.ID,
				PrizeID:    prize.ID,
				PersonName: p.Name,
				EmployeeID: p.EmployeeID,
				PrizeName:  prize.Name,
				WonAt:      at,
			})
		}

		st.WinnerRecords = append(slices.Clone(records), st.WinnerRecords...)
		res = CommitResult{Records: records, Remaining: remaining - len(records)}
		return nil
	})
	return res, err
}

// RemoveWinnerRecord deletes one record and nothing else: the person keeps
// their winner flag, but with no record pointing at them they are back in the
// pool and the prize gets one unit of quota back.
func (s *Store) RemoveWinnerRecord(ctx context.Context, id string) error {
	return s.mutate(ctx, ChangeWinners, func(st *Snapshot) error {
		i := st.recordIndex(id)
		if i < 0 {
			return ErrRecordNotFound
		}
		st.WinnerRecords = slices.Delete(st.WinnerRecords, i, i+1)
		return nil
	})
}

// RevertWinner deletes a record and clears the winner flag of its person.
func (s *Store) RevertWinner(ctx context.Context, id string) error {
	return s.mutate(ctx, ChangeWinners, func(st *Snapshot) error {
		i := st.recordIndex(id)
		if i < 0 {
			return ErrRecordNotFound
		}
		personID := st.WinnerRecords[i].PersonID
		st.WinnerRecords = slices.Delete(st.WinnerRecords, i, i+1)
		if pi := st.personIndex(personID); pi >= 0 {
			st.Persons[pi].ClearWin()
		}
		return nil
	})
}

// ClearWinnerRecords deletes the whole history. Winner flags are untouched.
func (s *Store) ClearWinnerRecords(ctx context.Context) error {
	return s.mutate(ctx, ChangeWinners, func(st *Snapshot) error {
		st.WinnerRecords = []models.WinnerRecord{}
		return nil
	})
}

// ResetAllWinnerFlags clears the winner flag on every person. Records are untouched.
func (s *Store) ResetAllWinnerFlags(ctx context.Context) error {
	return s.mutate(ctx, ChangePersons, func(st *Snapshot) error {
		for i := range st.Persons {
			st.Persons[i].ClearWin()
		}
		return nil
	})
}

// ResetDraws is the full reset: history and winner flags go together.
func (s *Store) ResetDraws(ctx context.Context) error {
	return s.mutate(ctx, ChangeWinners, func(st *Snapshot) error {
		st.WinnerRecords = []models.WinnerRecord{}
		for i := range st.Persons {
			st.Persons[i].ClearWin()
		}
		return nil
	})
}

// UpdateConfig merges the non-zero fields of c into the display configuration.
func (s *Store) UpdateConfig(ctx context.Context, c models.SystemConfig) (models.SystemConfig, error) {
	var updated models.SystemConfig
	err := s.mutate(ctx, ChangeConfig, func(st *Snapshot) error {
		st.Config = st.Config.Merge(c)
		updated = st.Config
		return nil
	})
	return updated, err
}
