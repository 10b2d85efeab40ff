package handlers

import (
	"errors"
	"net/http"

	"device_tuner/internal/history"

	"github.com/gin-gonic/gin"
)

const (
	errRun     = "run failed"
	errScan    = "scan failed"
	errHistory = "failed to update history"
	errDiff    = "failed to compare runs"
)

type runRequest struct {
	Label string `json:"label" example:"baseline"`
}

// updateRecordRequest changes the label and/or the enabled flag of one record.
type updateRecordRequest struct {
	Label   *string `json:"label,omitempty" example:"hot soak"`
	Enabled *bool   `json:"enabled,omitempty" example:"false"`
}

// @Summary      Run the simulation once
// @Description  Evaluates the current effective values. The body is optional.
// @Tags         runs
// @Accept       json
// @Produce      json
// @Param        body  body      runRequest  false  "Run label"
// @Success      201   {object}  models.HistoryRecord
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/v1/runs [post]
// @Security     BearerAuth
func (h *Handler) run(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if ok := h.bindJSONOrBadRequest(c, &req); !ok {
			return
		}
	}
	rec, err := h.services.Tuning.Run(c.Request.Context(), operatorID(c), req.Label)
	if err != nil {
		h.respondError(c, err, errRun, "run_failed")
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// @Summary      Scan the enabled properties
// @Description  Runs every spot of the cartesian product of the enabled scan bounds and
// @Description  answers when the scan ends. Failed spots are listed in the report.
// @Tags         runs
// @Produce      json
// @Success      200  {object}  service.ScanReport
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/scans [post]
// @Security     BearerAuth
func (h *Handler) startScan(c *gin.Context) {
	report, err := h.services.Tuning.Scan(c.Request.Context(), operatorID(c))
	if err != nil && report.Spots == 0 {
		h.respondError(c, err, errScan, "scan_failed")
		return
	}
	if err != nil {
		h.log.Infow("scan_partial", "spots", report.Spots, "recorded", len(report.Records),
			"failed", len(report.Failures), "cancelled", report.Cancelled)
	}
	c.JSON(http.StatusOK, report)
}

// @Summary      Cancel the running scan
// @Tags         runs
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /api/v1/scans/cancel [post]
// @Security     BearerAuth
func (h *Handler) cancelScan(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.services.Tuning.CancelScan()})
}

// @Summary      List the run history
// @Description  Most recent first.
// @Tags         history
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, records"
// @Router       /api/v1/history [get]
// @Security     BearerAuth
func (h *Handler) getHistory(c *gin.Context) {
	recs := h.services.Tuning.History()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(recs),
		"records": recs,
	})
}

// @Summary      Relabel or enable/disable a record
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        id    path      string               true  "Record id"
// @Param        body  body      updateRecordRequest  true  "Changes"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/history/{id} [patch]
// @Security     BearerAuth
func (h *Handler) updateRecord(c *gin.Context) {
	var req updateRecordRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if req.Label == nil && req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update: give label or enabled"})
		return
	}
	id := c.Param("id")
	if req.Label != nil {
		if err := h.services.Tuning.SetLabel(id, *req.Label); err != nil {
			h.respondError(c, err, errHistory, "set_label_failed", "id", id)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.services.Tuning.SetEnabled(id, *req.Enabled); err != nil {
			h.respondError(c, err, errHistory, "set_enabled_failed", "id", id)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Remove a record
// @Tags         history
// @Produce      json
// @Param        id   path      string  true  "Record id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/history/{id} [delete]
// @Security     BearerAuth
func (h *Handler) removeRecord(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Tuning.RemoveRecord(id); err != nil {
		h.respondError(c, err, errHistory, "remove_record_failed", "id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Clear the history
// @Tags         history
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/history [delete]
// @Security     BearerAuth
func (h *Handler) clearHistory(c *gin.Context) {
	h.services.Tuning.ClearHistory()
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Diff two runs
// @Description  Without ids, compares the two most recently enabled records (newer minus older).
// @Tags         history
// @Produce      json
// @Param        a    query     string  false  "Minuend record id"
// @Param        b    query     string  false  "Subtrahend record id"
// @Success      200  {object}  models.Comparison
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/diff [get]
// @Security     BearerAuth
func (h *Handler) getDiff(c *gin.Context) {
	a, b := c.Query("a"), c.Query("b")
	if (a == "") != (b == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "give both 'a' and 'b' or neither"})
		return
	}
	cmp, err := h.services.Tuning.Compare(a, b)
	if err != nil {
		if errors.Is(err, history.ErrNotEnoughEnabled) {
			c.JSON(http.StatusConflict, gin.H{"error": "enable at least two runs to compare"})
			return
		}
		h.respondError(c, err, errDiff, "diff_failed", "a", a, "b", b)
		return
	}
	c.JSON(http.StatusOK, cmp)
}
