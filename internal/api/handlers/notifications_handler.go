package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartlamp/lamplink/internal/services"
)

type NotificationsHandler struct {
	store *services.NotificationStore
}

func NewNotificationsHandler(store *services.NotificationStore) *NotificationsHandler {
	return &NotificationsHandler{store: store}
}

// ListNotifications returns the feed, newest first.
// GET /api/v1/notifications
func (h *NotificationsHandler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.store.List(),
		"unread":        h.store.UnreadCount(),
	})
}

// MarkRead marks one notification as read.
// POST /api/v1/notifications/:id/read
func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	if err := h.store.MarkRead(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks the whole feed as read.
// POST /api/v1/notifications/read-all
func (h *NotificationsHandler) MarkAllRead(c *gin.Context) {
	h.store.MarkAllRead()
	c.Status(http.StatusNoContent)
}

// DeleteNotification removes one notification.
// DELETE /api/v1/notifications/:id
func (h *NotificationsHandler) DeleteNotification(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearNotifications empties the feed.
// DELETE /api/v1/notifications
func (h *NotificationsHandler) ClearNotifications(c *gin.Context) {
	h.store.Clear()
	c.Status(http.StatusNoContent)
}

// GetPreferences returns which notification levels are kept.
// GET /api/v1/notifications/preferences
func (h *NotificationsHandler) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Prefs())
}

// UpdatePreferences replaces the notification filter.
// PUT /api/v1/notifications/preferences
func (h *NotificationsHandler) UpdatePreferences(c *gin.Context) {
	var prefs services.NotificationPrefs
	if err := c.ShouldBindJSON(&prefs); err != nil {
		badRequest(c, err)
		return
	}

	h.store.SetPrefs(prefs)
	c.JSON(http.StatusOK, prefs)
}
