package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/internal/services"
	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

// LampController sends commands over the live device connection.
type LampController interface {
	Start()
	Stats() connection.Stats
	Toggle(on bool) error
	SetBrightness(brightness int) error
	SetColor(color string) error
	ApplyPreset(name string) (services.Preset, error)
}

// StatusReader serves the last known lamp status.
type StatusReader interface {
	Snapshot() (services.StatusSnapshot, bool)
	Refresh(ctx context.Context) (services.StatusSnapshot, error)
}

// SensorReader fetches the sensor series from the device API.
type SensorReader interface {
	FetchSensorData(ctx context.Context) (*lamp.SensorData, error)
}

type LampHandler struct {
	controller LampController
	status     StatusReader
	sensors    SensorReader
	logger     *zap.Logger
}

func NewLampHandler(controller LampController, status StatusReader, sensors SensorReader, logger *zap.Logger) *LampHandler {
	return &LampHandler{
		controller: controller,
		status:     status,
		sensors:    sensors,
		logger:     logger,
	}
}

// StatusResponse is the last known status and where it came from.
type StatusResponse struct {
	lamp.Status
	BrightnessPercent int                   `json:"brightnessPercent"`
	Source            services.StatusSource `json:"source"`
	ObservedAt        time.Time             `json:"observedAt"`
	Stale             bool                  `json:"stale"`
	LastError         string                `json:"lastError,omitempty"`
}

func newStatusResponse(s services.StatusSnapshot) StatusResponse {
	resp := StatusResponse{
		Status:            s.Status,
		BrightnessPercent: s.Status.BrightnessPercent(),
		Source:            s.Source,
		ObservedAt:        s.ObservedAt,
		Stale:             s.Stale,
	}
	if s.LastError != nil {
		resp.LastError = s.LastError.Error()
	}
	return resp
}

// GetStatus returns the last known status, polling the API when nothing is
// known yet or when ?refresh=true is given.
// GET /api/v1/lamp/status
func (h *LampHandler) GetStatus(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	snapshot, ok := h.status.Snapshot()
	if refresh || !ok {
		fresh, err := h.status.Refresh(c.Request.Context())
		if err != nil && fresh.ObservedAt.IsZero() {
			h.logger.Warn("Failed to get lamp status", zap.Error(err))
			abortWithError(c, err)
			return
		}
		snapshot = fresh
	}

	c.JSON(http.StatusOK, newStatusResponse(snapshot))
}

type ToggleRequest struct {
	IsOn *bool `json:"isOn" binding:"required"`
}

// Toggle switches the lamp on or off.
// POST /api/v1/lamp/toggle
func (h *LampHandler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.controller.Toggle(*req.IsOn); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Toggle command sent", Data: req})
}

type BrightnessRequest struct {
	Brightness *int `json:"brightness" binding:"required,gte=0,lte=255"`
}

// SetBrightness sets the brightness on the 0..255 scale.
// POST /api/v1/lamp/brightness
func (h *LampHandler) SetBrightness(c *gin.Context) {
	var req BrightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.controller.SetBrightness(*req.Brightness); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Brightness command sent", Data: req})
}

type ColorRequest struct {
	Color string `json:"color" binding:"required,hexcolor,len=7"`
}

// SetColor sets the color as #RRGGBB.
// POST /api/v1/lamp/color
func (h *LampHandler) SetColor(c *gin.Context) {
	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.controller.SetColor(req.Color); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Color command sent", Data: req})
}

// ListPresets returns the built-in presets.
// GET /api/v1/presets
func (h *LampHandler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": services.Presets})
}

// ApplyPreset sends a preset's brightness and color.
// POST /api/v1/presets/:name
func (h *LampHandler) ApplyPreset(c *gin.Context) {
	preset, err := h.controller.ApplyPreset(c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Preset applied", Data: preset})
}

// GetConnection reports the live connection state.
// GET /api/v1/connection
func (h *LampHandler) GetConnection(c *gin.Context) {
	stats := h.controller.Stats()
	resp := gin.H{
		"state":      stats.State.String(),
		"online":     stats.State == connection.StateOpen,
		"endpoint":   stats.Endpoint,
		"retries":    stats.Retries,
		"generation": stats.Generation,
	}
	if !stats.OpenedAt.IsZero() {
		resp["openedAt"] = stats.OpenedAt
	}
	c.JSON(http.StatusOK, resp)
}

// Reconnect starts a fresh connection with a reset retry budget.
// POST /api/v1/connection/reconnect
func (h *LampHandler) Reconnect(c *gin.Context) {
	h.controller.Start()
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Reconnecting"})
}

// GetSensorData returns the light and energy series.
// GET /api/v1/lamp/sensor-data
func (h *LampHandler) GetSensorData(c *gin.Context) {
	data, err := h.sensors.FetchSensorData(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get sensor data", zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lightReadings": data.LightReadings,
		"energyUsage":   data.EnergyUsage,
		"totalEnergy":   data.TotalEnergy(),
	})
}
