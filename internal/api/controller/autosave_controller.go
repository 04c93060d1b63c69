package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_coalesce/internal/logger"
)

// AutosaveStatusResponse is the read-only projection of the scheduler state.
type AutosaveStatusResponse struct {
	Saving      bool   `json:"saving"`
	Pending     bool   `json:"pending"`
	LastSavedAt string `json:"lastSavedAt,omitempty"` // RFC3339, empty if never saved
	LastError   string `json:"lastError,omitempty"`
}

// AutosaveController exposes scheduler status and a manual flush.
type AutosaveController struct {
	autosaver Autosaver
}

// NewAutosaveController creates a controller over the given scheduler.
func NewAutosaveController(autosaver Autosaver) *AutosaveController {
	return &AutosaveController{autosaver: autosaver}
}

// Status handles GET /autosave/status.
func (ac *AutosaveController) Status(c *gin.Context) {
	resp := AutosaveStatusResponse{
		Saving:  ac.autosaver.IsSaving(),
		Pending: ac.autosaver.Pending(),
	}
	if at := ac.autosaver.LastSavedAt(); !at.IsZero() {
		resp.LastSavedAt = at.Format(time.RFC3339)
	}
	if err := ac.autosaver.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Flush handles POST /autosave/flush - persists pending changes right away.
func (ac *AutosaveController) Flush(c *gin.Context) {
	logger.WithComponent("api").Debugf("POST /autosave/flush handler called")
	if err := ac.autosaver.Flush(c.Request.Context()); err != nil {
		logger.WithComponent("api").Errorf("manual flush failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "flushed"})
}
