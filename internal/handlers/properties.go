package handlers

import (
	"net/http"

	"device_tuner/internal/models"
	"device_tuner/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errSelectSequence = "failed to select sequence"
	errEditProperty   = "failed to update property"
)

// Request DTOs. Pointers distinguish a missing field from a zero value.
type testValueRequest struct {
	Value *float64 `json:"value" binding:"required" example:"72.5"`
}

type scanRequest struct {
	Start   *float64 `json:"start" binding:"required" example:"60"`
	End     *float64 `json:"end" binding:"required" example:"90"`
	Steps   int      `json:"steps" example:"4"`
	Enabled bool     `json:"enabled" example:"true"`
}

type sequenceRequest struct {
	Name string `json:"name" binding:"required" example:"furnace-a"`
}

// PropertiesResponse is the payload of GET /api/v1/properties.
type PropertiesResponse struct {
	Sequence   string                `json:"sequence"`
	Sequences  []string              `json:"sequences"`
	Properties []models.PropertyView `json:"properties"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List properties of the selected sequence
// @Description  Design, live, test and effective value of every property.
// @Tags         properties
// @Produce      json
// @Success      200  {object}  PropertiesResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/properties [get]
// @Security     BearerAuth
func (h *Handler) getProperties(c *gin.Context) {
	c.JSON(http.StatusOK, PropertiesResponse{
		Sequence:   h.services.Monitoring.Sequence(),
		Sequences:  h.services.Tuning.Sequences(),
		Properties: h.services.Monitoring.Properties(),
	})
}

// @Summary      Select a sequence
// @Description  Rebuilds the properties and clears the run history.
// @Tags         properties
// @Accept       json
// @Produce      json
// @Param        body  body      sequenceRequest  true  "Sequence name"
// @Success      200   {object}  PropertiesResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/sequence [post]
// @Security     BearerAuth
func (h *Handler) selectSequence(c *gin.Context) {
	var req sequenceRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Tuning.SelectSequence(c.Request.Context(), operatorID(c), req.Name); err != nil {
		h.respondError(c, err, errSelectSequence, "select_sequence_failed", "sequence", req.Name)
		return
	}
	h.getProperties(c)
}

// @Summary      Set a test value
// @Tags         properties
// @Accept       json
// @Produce      json
// @Param        key   path      string            true  "Property key (device:attribute)"
// @Param        body  body      testValueRequest  true  "Value"
// @Success      200   {object}  models.PropertyView
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/properties/{key}/test [put]
// @Security     BearerAuth
func (h *Handler) setTestValue(c *gin.Context) {
	var req testValueRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	key := models.PropertyKey(c.Param("key"))
	if err := h.services.Tuning.SetTestValue(c.Request.Context(), operatorID(c), key, *req.Value); err != nil {
		h.respondError(c, err, errEditProperty, "set_test_value_failed", "key", key)
		return
	}
	h.respondProperty(c, key)
}

// @Summary      Clear a test value
// @Tags         properties
// @Produce      json
// @Param        key  path      string  true  "Property key (device:attribute)"
// @Success      200  {object}  models.PropertyView
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/properties/{key}/test [delete]
// @Security     BearerAuth
func (h *Handler) clearTestValue(c *gin.Context) {
	key := models.PropertyKey(c.Param("key"))
	if err := h.services.Tuning.ClearTestValue(c.Request.Context(), operatorID(c), key); err != nil {
		h.respondError(c, err, errEditProperty, "clear_test_value_failed", "key", key)
		return
	}
	h.respondProperty(c, key)
}

// @Summary      Configure the scan of a property
// @Description  steps may be 0 only when start equals end.
// @Tags         properties
// @Accept       json
// @Produce      json
// @Param        key   path      string       true  "Property key (device:attribute)"
// @Param        body  body      scanRequest  true  "Scan bounds"
// @Success      200   {object}  models.PropertyView
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/properties/{key}/scan [put]
// @Security     BearerAuth
func (h *Handler) configureScan(c *gin.Context) {
	var req scanRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	key := models.PropertyKey(c.Param("key"))
	p := service.ScanParams{Start: *req.Start, End: *req.End, Steps: req.Steps, Enabled: req.Enabled}
	if err := h.services.Tuning.ConfigureScan(c.Request.Context(), operatorID(c), key, p); err != nil {
		h.respondError(c, err, errEditProperty, "configure_scan_failed", "key", key)
		return
	}
	h.respondProperty(c, key)
}

// respondProperty answers with the view of key, or with an empty object
// if the sequence changed under the request.
func (h *Handler) respondProperty(c *gin.Context, key models.PropertyKey) {
	for _, v := range h.services.Monitoring.Properties() {
		if v.Key == key {
			c.JSON(http.StatusOK, v)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}
