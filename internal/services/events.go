package services

import (
	"time"

	"github.com/google/logger"
)

// ChangeKind names the collection a mutation touched.
type ChangeKind string

const (
	ChangePersons ChangeKind = "persons"
	ChangePrizes  ChangeKind = "prizes"
	ChangeWinners ChangeKind = "winners"
	ChangeConfig  ChangeKind = "config"
)

// ChangeEvent is sent to observers after every successful mutation.
type ChangeEvent struct {
	Kind          ChangeKind    `json:"kind"`
	At            time.Time     `json:"at"`
	Persons       int           `json:"persons"`
	Eligible      int           `json:"eligible"`
	Prizes        int           `json:"prizes"`
	WinnerRecords int           `json:"winnerRecords"`
	Quotas        []QuotaStatus `json:"quotas"`
}

func newChangeEvent(kind ChangeKind, at time.Time, st Snapshot) ChangeEvent {
	return ChangeEvent{
		Kind:          kind,
		At:            at,
		Persons:       len(st.Persons),
		Eligible:      len(EligiblePersons(st.Persons, st.WinnerRecords)),
		Prizes:        len(st.Prizes),
		WinnerRecords: len(st.WinnerRecords),
		Quotas:        Ledger(st.Prizes, st.WinnerRecords),
	}
}

// Observer receives change events. It runs on the mutating goroutine after
// the store lock is released and must not block for long.
type Observer func(ChangeEvent)

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(ev ChangeEvent) {
	s.obsMu.Lock()
	fns := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("store: observer panicked on %s change: %v", ev.Kind, r)
				}
			}()
			fn(ev)
		}()
	}
}
