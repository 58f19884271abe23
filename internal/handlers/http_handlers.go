package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"prizedraw/internal/models"
	"prizedraw/internal/roster"
	"prizedraw/internal/services"
)

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	store  *services.Store
	engine *services.Engine
	hub    *Hub
}

// NewHTTPHandler creates a new HTTPHandler. hub may be nil, in which case
// /ws is not registered.
func NewHTTPHandler(store *services.Store, engine *services.Engine, hub *Hub) *HTTPHandler {
	return &HTTPHandler{
		store:  store,
		engine: engine,
		hub:    hub,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.Health)

	persons := api.Group("/persons")
	persons.GET("", h.ListPersons)
	persons.PUT("", h.ReplacePersons)
	persons.POST("", h.AddPerson)
	persons.DELETE("", h.ClearPersons)
	persons.DELETE("/:id", h.RemovePerson)
	persons.POST("/import", h.ImportPersonsCSV)
	persons.GET("/winners", h.ListWinners)
	persons.POST("/reset-winners", h.ResetWinnerFlags)

	prizes := api.Group("/prizes")
	prizes.GET("", h.ListPrizes)
	prizes.GET("/enabled", h.ListEnabledPrizes)
	prizes.GET("/quota", h.QuotaLedger)
	prizes.POST("", h.AddPrize)
	prizes.POST("/reorder", h.ReorderPrizes)
	prizes.PUT("/:id", h.UpdatePrize)
	prizes.DELETE("/:id", h.RemovePrize)

	draws := api.Group("/draws")
	draws.POST("", h.Draw)
	draws.POST("/begin", h.BeginDraw)
	draws.POST("/commit", h.CommitDraw)
	draws.POST("/cancel", h.CancelDraw)
	draws.GET("/state", h.DrawState)
	draws.GET("/preview", h.Preview)

	winners := api.Group("/winners")
	winners.GET("", h.ListWinnerRecords)
	winners.GET("/export", h.ExportResultsCSV)
	winners.DELETE("", h.ClearWinnerRecords)
	winners.POST("/reset", h.ResetDraws)
	winners.DELETE("/:id", h.RemoveWinnerRecord)
	winners.POST("/:id/revert", h.RevertWinner)

	api.GET("/config", h.GetConfig)
	api.PUT("/config", h.UpdateConfig)

	if h.hub != nil {
		router.GET("/ws", h.hub.ServeWS)
	}
}

// Health reports that the server is up along with a few counts.
func (h *HTTPHandler) Health(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"persons": len(snap.Persons),
		"prizes":  len(snap.Prizes),
		"winners": len(snap.WinnerRecords),
		"state":   h.engine.State(),
	})
}

// ListPersons returns the whole roster.
func (h *HTTPHandler) ListPersons(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.ListPersons())
}

// ListWinners returns persons carrying the winner flag.
func (h *HTTPHandler) ListWinners(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.ListWinners())
}

type personRequest struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
}

func (r personRequest) person() (models.Person, error) {
	p := models.Person{
		ID:         strings.TrimSpace(r.ID),
		EmployeeID: strings.TrimSpace(r.EmployeeID),
		Name:       strings.TrimSpace(r.Name),
	}
	if p.EmployeeID == "" || p.Name == "" {
		return p, fmt.Errorf("%w: employeeId and name are required", errBadRequest)
	}
	return p, nil
}

// ReplacePersons replaces the roster with a JSON list. Win status in the
// body is ignored; people already on the roster keep theirs.
func (h *HTTPHandler) ReplacePersons(c *gin.Context) {
	var body []personRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	seen := make(map[string]struct{}, len(body))
	persons := make([]models.Person, 0, len(body))
	for _, r := range body {
		p, err := r.person()
		if err != nil {
			respondError(c, err)
			return
		}
		if _, dup := seen[p.EmployeeID]; dup {
			respondError(c, fmt.Errorf("%w: %s", services.ErrEmployeeIDInUse, p.EmployeeID))
			return
		}
		seen[p.EmployeeID] = struct{}{}
		persons = append(persons, p)
	}

	if err := h.store.BulkSetPersons(c.Request.Context(), persons); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.store.ListPersons())
}

// AddPerson adds one participant.
func (h *HTTPHandler) AddPerson(c *gin.Context) {
	var body personRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	p, err := body.person()
	if err != nil {
		respondError(c, err)
		return
	}

	added, err := h.store.AddPerson(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

// RemovePerson deletes one participant. Their winner records stay.
func (h *HTTPHandler) RemovePerson(c *gin.Context) {
	if err := h.store.RemovePerson(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearPersons empties the roster.
func (h *HTTPHandler) ClearPersons(c *gin.Context) {
	if err := h.store.ClearPersons(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetWinnerFlags clears every winner flag. Records are left alone.
func (h *HTTPHandler) ResetWinnerFlags(c *gin.Context) {
	if err := h.store.ResetAllWinnerFlags(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ImportPersonsCSV handles the CSV upload for the roster. With dryRun=true
// the parse result is returned without touching the roster, so the operator
// can review problems before confirming.
func (h *HTTPHandler) ImportPersonsCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("rosterCSV")
	if err != nil {
		respondError(c, fmt.Errorf("%w: error retrieving file: %v", errBadRequest, err))
		return
	}
	defer file.Close()

	res := roster.ParseCSV(file)
	body := gin.H{
		"persons":    res.Persons,
		"errors":     res.Messages(),
		"totalCount": res.TotalCount,
		"success":    res.Success,
		"applied":    false,
	}
	if res.TotalCount == 0 {
		c.JSON(http.StatusBadRequest, body)
		return
	}
	if dry, _ := strconv.ParseBool(c.Query("dryRun")); dry {
		c.JSON(http.StatusOK, body)
		return
	}

	if err := h.store.BulkSetPersons(c.Request.Context(), res.Persons); err != nil {
		respondError(c, err)
		return
	}
	logger.Infof("roster: imported %d persons (%d problems skipped)", res.TotalCount, len(res.Errors))
	body["persons"] = h.store.ListPersons()
	body["applied"] = true
	c.JSON(http.StatusOK, body)
}

// ListPrizes returns every prize in storage order.
func (h *HTTPHandler) ListPrizes(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.ListPrizes())
}

// ListEnabledPrizes returns the drawable prizes in display order.
func (h *HTTPHandler) ListEnabledPrizes(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.ListEnabledPrizes())
}

// QuotaLedger returns quota, committed and remaining counts per prize.
func (h *HTTPHandler) QuotaLedger(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Ledger())
}

type prizeRequest struct {
	Name    string `json:"name"`
	Quota   int    `json:"quota"`
	Enabled *bool  `json:"enabled"`
}

// AddPrize creates a prize. Prizes are enabled unless the body says otherwise.
func (h *HTTPHandler) AddPrize(c *gin.Context) {
	var body prizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	p := models.Prize{Name: strings.TrimSpace(body.Name), Quota: body.Quota, Enabled: true}
	if body.Enabled != nil {
		p.Enabled = *body.Enabled
	}

	added, err := h.store.AddPrize(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

// UpdatePrize applies a partial update.
func (h *HTTPHandler) UpdatePrize(c *gin.Context) {
	var body services.PrizeUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	updated, err := h.store.UpdatePrize(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RemovePrize deletes a prize. Its winner records stay.
func (h *HTTPHandler) RemovePrize(c *gin.Context) {
	if err := h.store.RemovePrize(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderPrizes takes {"ids": [...]} naming every prize once.
func (h *HTTPHandler) ReorderPrizes(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := h.store.ReorderPrizes(c.Request.Context(), body.IDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.store.ListEnabledPrizes())
}

type drawRequest struct {
	PrizeID string `json:"prizeId"`
	Count   int    `json:"count"`
}

func bindDraw(c *gin.Context) (drawRequest, bool) {
	var body drawRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return body, false
	}
	return body, true
}

// Draw samples and commits in one step.
func (h *HTTPHandler) Draw(c *gin.Context) {
	body, ok := bindDraw(c)
	if !ok {
		return
	}
	result, err := h.engine.Draw(c.Request.Context(), body.PrizeID, body.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BeginDraw samples and holds the batch until commit or cancel, so the
// display can roll in between.
func (h *HTTPHandler) BeginDraw(c *gin.Context) {
	body, ok := bindDraw(c)
	if !ok {
		return
	}
	pending, err := h.engine.Begin(body.PrizeID, body.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, pending)
}

// CommitDraw persists the pending batch.
func (h *HTTPHandler) CommitDraw(c *gin.Context) {
	result, err := h.engine.Commit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelDraw drops the pending batch.
func (h *HTTPHandler) CancelDraw(c *gin.Context) {
	if err := h.engine.Cancel(); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DrawState reports the engine state and the pending batch, if any.
func (h *HTTPHandler) DrawState(c *gin.Context) {
	body := gin.H{"state": h.engine.State()}
	if p, ok := h.engine.Pending(); ok {
		body["pending"] = p
	}
	c.JSON(http.StatusOK, body)
}

// Preview returns n random eligible names for the rolling display.
func (h *HTTPHandler) Preview(c *gin.Context) {
	n := 1
	if s := c.Query("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			respondError(c, fmt.Errorf("%w: invalid n %q", errBadRequest, s))
			return
		}
		n = v
	}
	c.JSON(http.StatusOK, h.engine.Preview(n))
}

func parseRecordFilter(c *gin.Context) (services.RecordFilter, error) {
	f := services.RecordFilter{PrizeID: c.Query("prizeId")}
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := c.Query(q.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, fmt.Errorf("%w: %s must be RFC3339: %v", errBadRequest, q.name, err)
		}
		*q.dst = t
	}
	return f, nil
}

// ListWinnerRecords returns the history, newest first, optionally filtered
// by prize and time range.
func (h *HTTPHandler) ListWinnerRecords(c *gin.Context) {
	f, err := parseRecordFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.store.ListWinnerRecords(f))
}

// RemoveWinnerRecord deletes one record; the person's winner flag stays.
func (h *HTTPHandler) RemoveWinnerRecord(c *gin.Context) {
	if err := h.store.RemoveWinnerRecord(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevertWinner deletes one record and clears the person's winner flag.
func (h *HTTPHandler) RevertWinner(c *gin.Context) {
	if err := h.store.RevertWinner(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearWinnerRecords deletes the history but leaves winner flags.
func (h *HTTPHandler) ClearWinnerRecords(c *gin.Context) {
	if err := h.store.ClearWinnerRecords(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetDraws clears the history and every winner flag.
func (h *HTTPHandler) ResetDraws(c *gin.Context) {
	if err := h.store.ResetDraws(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportResultsCSV handles the request to download the draw results as a CSV file.
func (h *HTTPHandler) ExportResultsCSV(c *gin.Context) {
	f, err := parseRecordFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	records := h.store.ListWinnerRecords(f)

	filename := fmt.Sprintf("中奖记录_%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Status(http.StatusOK)

	if err := roster.WriteWinnersCSV(c.Writer, records); err != nil {
		// Headers are already out; all we can do is log.
		logger.Errorf("Error writing CSV: %v", err)
	}
}

// GetConfig returns the display configuration and its animation timing.
func (h *HTTPHandler) GetConfig(c *gin.Context) {
	cfg := h.store.Config()
	c.JSON(http.StatusOK, gin.H{
		"config":    cfg,
		"animation": models.AnimationFor(cfg.AnimationEffect),
		"rollTick":  cfg.RollTick().Milliseconds(),
	})
}

// UpdateConfig merges the non-empty fields of the body into the configuration.
func (h *HTTPHandler) UpdateConfig(c *gin.Context) {
	var body models.SystemConfig
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	updated, err := h.store.UpdateConfig(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
