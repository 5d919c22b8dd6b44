package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/smartlamp/lamplink/pkg/websocket/base"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is one entry in the feed.
type Notification struct {
	ID      string                 `json:"id"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Level   base.NotificationLevel `json:"level"`
	Time    time.Time              `json:"time"`
	Read    bool                   `json:"read"`
}

// NotificationPrefs selects which notification levels are kept.
type NotificationPrefs struct {
	StatusChanges     bool `json:"statusChanges"`     // status
	ScheduleReminders bool `json:"scheduleReminders"` // info
	BatteryAlerts     bool `json:"batteryAlerts"`     // alert
}

func (p NotificationPrefs) allows(level base.NotificationLevel) bool {
	switch level {
	case base.LevelStatus:
		return p.StatusChanges
	case base.LevelInfo:
		return p.ScheduleReminders
	case base.LevelAlert:
		return p.BatteryAlerts
	default:
		return true
	}
}

// NotificationStore is a bounded in-memory feed, newest first.
type NotificationStore struct {
	mu       sync.RWMutex
	items    []Notification
	capacity int
	prefs    NotificationPrefs
	clock    clockwork.Clock
}

func NewNotificationStore(capacity int, prefs NotificationPrefs, clock clockwork.Clock) *NotificationStore {
	if capacity <= 0 {
		capacity = 100
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NotificationStore{
		capacity: capacity,
		prefs:    prefs,
		clock:    clock,
	}
}

// Add stores n unless its level is filtered out by the preferences. A
// missing ID or time is filled in. The oldest entry is evicted when full.
func (ns *NotificationStore) Add(n Notification) (Notification, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.prefs.allows(n.Level) {
		return Notification{}, false
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = ns.clock.Now()
	}
	n.Read = false

	ns.items = append([]Notification{n}, ns.items...)
	if len(ns.items) > ns.capacity {
		ns.items = ns.items[:ns.capacity]
	}
	return n, true
}

func (ns *NotificationStore) List() []Notification {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return append([]Notification(nil), ns.items...)
}

func (ns *NotificationStore) UnreadCount() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	count := 0
	for _, n := range ns.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (ns *NotificationStore) MarkRead(id string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for i := range ns.items {
		if ns.items[i].ID == id {
			ns.items[i].Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (ns *NotificationStore) MarkAllRead() {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for i := range ns.items {
		ns.items[i].Read = true
	}
}

func (ns *NotificationStore) Delete(id string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for i := range ns.items {
		if ns.items[i].ID == id {
			ns.items = append(ns.items[:i], ns.items[i+1:]...)
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (ns *NotificationStore) Clear() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.items = nil
}

func (ns *NotificationStore) Prefs() NotificationPrefs {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.prefs
}

// SetPrefs changes the filter for future notifications; stored ones stay.
func (ns *NotificationStore) SetPrefs(prefs NotificationPrefs) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.prefs = prefs
}
