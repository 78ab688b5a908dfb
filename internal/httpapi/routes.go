package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/chatwheel/followup/internal/events"
	"github.com/chatwheel/followup/internal/schedule"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes wires all API endpoints.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/events", handleEvent(db))
	api.POST("/schedules", handleCreateSchedule(db))
	api.POST("/schedules/stop", handleStopSchedule(db))
	api.GET("/schedules/:conversation", handleGetSchedule(db))
}

// handleEvent decodes a typed platform event and routes it to the
// schedule lifecycle.
func handleEvent(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
			return
		}
		ev, err := events.Decode(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := events.Handle(db, ev); err != nil {
			status, msg := mapScheduleError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

type createScheduleRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	WorkspaceID    string `json:"workspace_id" binding:"required"`
	SettingID      string `json:"setting_id" binding:"required"`
	TeamID         string `json:"team_id"`
}

func handleCreateSchedule(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched, err := schedule.Create(db, schedule.CreateOpts{
			ConversationID: req.ConversationID,
			WorkspaceID:    req.WorkspaceID,
			SettingID:      req.SettingID,
			TeamID:         req.TeamID,
		})
		if err != nil {
			status, msg := mapScheduleError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusCreated, sched)
	}
}

type stopScheduleRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	ActorID        string `json:"actor_id"`
}

func handleStopSchedule(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stopScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := schedule.Stop(db, req.ConversationID, req.ActorID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleGetSchedule(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sched, err := schedule.LatestNonStopped(db, c.Param("conversation"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sched == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open schedule"})
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}

// mapScheduleError maps lifecycle validation errors to HTTP statuses.
func mapScheduleError(err error) (int, string) {
	switch {
	case errors.Is(err, schedule.ErrSettingNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, schedule.ErrAlreadyScheduled):
		return http.StatusConflict, err.Error()
	case errors.Is(err, schedule.ErrSettingInactive),
		errors.Is(err, schedule.ErrSettingWorkspaceMismatch),
		errors.Is(err, schedule.ErrTeamNotAllowed):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
