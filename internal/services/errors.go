package services

import (
	"errors"
	"fmt"
)

// Draw and store errors. Every draw-time error leaves the engine Idle with
// nothing persisted, so callers can fix the precondition and retry.
var (
	ErrNoPrizeSelected     = errors.New("no prize selected")
	ErrNothingToDraw       = errors.New("nothing to draw")
	ErrQuotaExhausted      = errors.New("prize quota exhausted")
	ErrNoEligiblePersons   = errors.New("no eligible persons")
	ErrConcurrentQuotaRace = errors.New("draw no longer valid at commit time")
	ErrDrawInProgress      = errors.New("a draw is already in progress")
	ErrNoPendingDraw       = errors.New("no draw is awaiting commit")
	ErrPrizeNotFound       = errors.New("prize not found")
	ErrPrizeDisabled       = errors.New("prize is disabled")
	ErrPersonNotFound      = errors.New("person not found")
	ErrRecordNotFound      = errors.New("winner record not found")
	ErrInvalidPrize        = errors.New("invalid prize")
)

// QuotaExhaustedError reports which prize has no remaining quota.
type QuotaExhaustedError struct {
	PrizeID string
	Quota   int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("prize %s has no remaining quota (quota %d)", e.PrizeID, e.Quota)
}

// Is lets errors.Is(err, ErrQuotaExhausted) match.
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}
