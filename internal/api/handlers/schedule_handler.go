package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/lamp"
)

// ScheduleStore is the device's schedule API.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]lamp.Schedule, error)
	CreateSchedule(ctx context.Context, schedule lamp.Schedule) (*lamp.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule lamp.Schedule) (*lamp.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// ScheduleHandler proxies schedule CRUD to the device.
type ScheduleHandler struct {
	store  ScheduleStore
	logger *zap.Logger
}

func NewScheduleHandler(store ScheduleStore, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{store: store, logger: logger}
}

// ListSchedules
// GET /api/v1/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.store.ListSchedules(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list schedules", zap.Error(err))
		abortWithError(c, err)
		return
	}
	if schedules == nil {
		schedules = []lamp.Schedule{}
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// CreateSchedule
// POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req lamp.Schedule
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.store.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Message: "Schedule created", Data: created})
}

// UpdateSchedule
// PUT /api/v1/schedules/:id
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req lamp.Schedule
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.ID = c.Param("id")

	updated, err := h.store.UpdateSchedule(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Schedule updated", Data: updated})
}

// DeleteSchedule
// DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.store.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
