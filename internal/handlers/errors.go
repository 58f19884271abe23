package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"prizedraw/internal/services"
)

// errBadRequest marks input the handler itself rejected.
var errBadRequest = errors.New("bad request")

type apiError struct {
	status int
	code   string
}

// classify maps an error to its HTTP status and code. Commit-time rejections
// wrap the precondition that failed, so the race check comes first.
func classify(err error) apiError {
	var qe *services.QuotaExhaustedError
	switch {
	case errors.Is(err, services.ErrConcurrentQuotaRace):
		return apiError{http.StatusConflict, "concurrent_quota_race"}
	case errors.As(err, &qe):
		return apiError{http.StatusConflict, "quota_exhausted"}
	case errors.Is(err, services.ErrNoPrizeSelected):
		return apiError{http.StatusBadRequest, "no_prize_selected"}
	case errors.Is(err, services.ErrNothingToDraw):
		return apiError{http.StatusBadRequest, "nothing_to_draw"}
	case errors.Is(err, services.ErrNoEligiblePersons):
		return apiError{http.StatusConflict, "no_eligible_persons"}
	case errors.Is(err, services.ErrDrawInProgress):
		return apiError{http.StatusConflict, "draw_in_progress"}
	case errors.Is(err, services.ErrNoPendingDraw):
		return apiError{http.StatusConflict, "no_pending_draw"}
	case errors.Is(err, services.ErrPrizeNotFound):
		return apiError{http.StatusNotFound, "prize_not_found"}
	case errors.Is(err, services.ErrPrizeDisabled):
		return apiError{http.StatusConflict, "prize_disabled"}
	case errors.Is(err, services.ErrPersonNotFound), errors.Is(err, services.ErrRecordNotFound):
		return apiError{http.StatusNotFound, "not_found"}
	case errors.Is(err, services.ErrEmployeeIDInUse):
		return apiError{http.StatusConflict, "duplicate_employee_id"}
	case errors.Is(err, services.ErrInvalidPrize), errors.Is(err, errBadRequest):
		return apiError{http.StatusBadRequest, "bad_request"}
	default:
		return apiError{http.StatusInternalServerError, "internal_error"}
	}
}

// respondError writes err as {"error": code, "message": text}.
func respondError(c *gin.Context, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(ae.status, gin.H{"error": ae.code, "message": err.Error()})
}
