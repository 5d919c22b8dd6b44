package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/pkg/websocket/base"
	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

var (
	// ErrThrottled is returned when commands arrive faster than the session
	// rate allows. The command is dropped.
	ErrThrottled = errors.New("command rate exceeded")

	ErrUnknownPreset = errors.New("unknown preset")
)

// LowBatteryLevel is the battery percentage below which an alert is raised.
const LowBatteryLevel = 20

// Preset is a named brightness and color combination.
type Preset struct {
	Name       string `json:"name"`
	Brightness int    `json:"brightness"`
	Color      string `json:"color"`
}

// Presets are the built-in lighting presets.
var Presets = []Preset{
	{Name: "Warm", Brightness: 180, Color: "#FFB800"},
	{Name: "Cool", Brightness: 220, Color: "#E0F2FF"},
	{Name: "Reading", Brightness: 255, Color: "#FFFFFF"},
	{Name: "Movie", Brightness: 80, Color: "#FF9D00"},
	{Name: "Night", Brightness: 30, Color: "#FF5C00"},
}

// FindPreset looks a preset up by name, ignoring case.
func FindPreset(name string) (Preset, bool) {
	for _, p := range Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// SessionConfig throttles outbound commands.
type SessionConfig struct {
	CommandRate  float64 // commands per second
	CommandBurst int
}

// LampSession owns the live connection to one lamp. It turns inbound frames
// into events on the bus and sends validated, rate-limited commands.
type LampSession struct {
	manager       connection.ConnectionManager
	router        *base.HandlerRegistry
	bus           *EventBus
	tracker       *StatusTracker
	notifications *NotificationStore
	limiter       *rate.Limiter
	validate      *validator.Validate
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

func NewLampSession(
	manager connection.ConnectionManager,
	bus *EventBus,
	tracker *StatusTracker,
	notifications *NotificationStore,
	cfg SessionConfig,
	logger *zap.Logger,
) (*LampSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 4
	}
	if cfg.CommandBurst < 1 {
		cfg.CommandBurst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ls := &LampSession{
		manager:       manager,
		router:        base.NewHandlerRegistry(logger, nil),
		bus:           bus,
		tracker:       tracker,
		notifications: notifications,
		limiter:       rate.NewLimiter(rate.Limit(cfg.CommandRate), cfg.CommandBurst),
		validate:      validator.New(),
		logger:        logger.Named("session"),
		ctx:           ctx,
		cancel:        cancel,
	}

	handlers := []base.MessageHandler{
		base.NewTypedHandler(ls.handleStatus, base.TypeStatus),
		base.NewTypedHandler(ls.handleSensor, base.TypeSensor),
		base.NewTypedHandler(ls.handleNotification, base.TypeNotification),
		base.NewTypedHandler(ls.handleAck, base.TypeAck),
		base.NewTypedHandler(ls.handleDeviceError, base.TypeError),
	}
	for _, h := range handlers {
		if err := ls.router.RegisterHandler(h); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to register message handler: %w", err)
		}
	}

	return ls, nil
}

// Start opens the live connection. Calling it again reconnects.
func (ls *LampSession) Start() {
	ls.mu.Lock()
	ls.started = true
	ls.mu.Unlock()

	ls.manager.Connect("", connection.Handlers{
		OnMessage:     ls.onMessage,
		OnError:       ls.onError,
		OnStateChange: ls.onStateChange,
		OnGiveUp:      ls.onGiveUp,
	})
}

// Close drops the live connection. The session cannot be restarted after.
func (ls *LampSession) Close() {
	ls.mu.Lock()
	wasStarted := ls.started
	ls.started = false
	ls.mu.Unlock()

	ls.cancel()
	ls.manager.Close()

	if wasStarted {
		ls.tracker.MarkStale(nil)
		ls.publishConnectivity(connection.StateIdle, nil, false)
	}
}

func (ls *LampSession) State() connection.ConnectionState {
	return ls.manager.State()
}

func (ls *LampSession) Stats() connection.Stats {
	return ls.manager.Stats()
}

// WaitOpen blocks until the connection is open or ctx is done.
func (ls *LampSession) WaitOpen(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if ls.manager.State() == connection.StateOpen {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lamp connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (ls *LampSession) Toggle(on bool) error {
	return ls.send(1, base.NewToggleCommand(on))
}

func (ls *LampSession) SetBrightness(brightness int) error {
	if err := ls.validate.Var(brightness, "gte=0,lte=255"); err != nil {
		return fmt.Errorf("invalid brightness %d: %w", brightness, err)
	}
	return ls.send(1, base.NewBrightnessCommand(brightness))
}

func (ls *LampSession) SetColor(color string) error {
	if err := ls.validate.Var(color, "required,hexcolor,len=7"); err != nil {
		return fmt.Errorf("invalid color %q: %w", color, err)
	}
	return ls.send(1, base.NewColorCommand(strings.ToUpper(color)))
}

// ApplyPreset sends the preset's brightness and color as one throttled unit.
func (ls *LampSession) ApplyPreset(name string) (Preset, error) {
	preset, ok := FindPreset(name)
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	err := ls.send(2,
		base.NewBrightnessCommand(preset.Brightness),
		base.NewColorCommand(preset.Color))
	return preset, err
}

func (ls *LampSession) send(cost int, commands ...base.Command) error {
	if !ls.limiter.AllowN(time.Now(), cost) {
		ls.logger.Debug("Dropping throttled command", zap.String("cmd", string(commands[0].Cmd)))
		return ErrThrottled
	}

	for _, cmd := range commands {
		if err := ls.manager.Send(cmd); err != nil {
			return fmt.Errorf("send %s command: %w", cmd.Cmd, err)
		}
		ls.logger.Debug("Sent lamp command", zap.String("cmd", string(cmd.Cmd)), zap.String("id", cmd.ID))
	}
	return nil
}

func (ls *LampSession) onMessage(data any) {
	if err := ls.router.RouteMessage(ls.ctx, data); err != nil {
		ls.logger.Warn("Dropping unroutable lamp message", zap.Error(err))
	}
}

func (ls *LampSession) onError(err error) {
	ls.logger.Warn("Lamp connection error", zap.Error(err))
}

func (ls *LampSession) onStateChange(state connection.ConnectionState) {
	if state != connection.StateOpen {
		ls.tracker.MarkStale(nil)
	}
	ls.publishConnectivity(state, nil, false)
}

func (ls *LampSession) onGiveUp(err error) {
	ls.logger.Error("Lamp unreachable, automatic reconnection stopped", zap.Error(err))
	ls.tracker.MarkStale(err)
	ls.publishConnectivity(connection.StateIdle, err, true)

	if n, ok := ls.notifications.Add(Notification{
		Title:   "Lamp offline",
		Message: "The lamp stopped responding. Reconnect to resume live updates.",
		Level:   base.LevelAlert,
	}); ok {
		ls.publishNotification(n)
	}
}

func (ls *LampSession) publishConnectivity(state connection.ConnectionState, err error, gaveUp bool) {
	data := map[string]any{
		"state":   state.String(),
		"online":  state == connection.StateOpen,
		"gave_up": gaveUp,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	ls.bus.Publish(Event{Type: EventConnectivity, Data: data})
}

func (ls *LampSession) publishNotification(n Notification) {
	ls.bus.Publish(Event{Type: EventNotification, Data: map[string]any{
		"id":      n.ID,
		"title":   n.Title,
		"message": n.Message,
		"level":   string(n.Level),
		"time":    n.Time,
	}})
}

func (ls *LampSession) handleStatus(_ context.Context, msg base.StatusUpdate) error {
	status := lamp.Status{
		IsOn:         msg.IsOn,
		Brightness:   msg.Brightness,
		BatteryLevel: msg.BatteryLevel,
		WifiStrength: msg.WifiStrength,
		LastUpdated:  msg.LastUpdated,
	}
	if err := ls.validate.Struct(status); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	previous, hadPrevious := ls.tracker.Observe(status, SourceLive)

	ls.bus.Publish(Event{Type: EventLampStatus, Data: map[string]any{
		"isOn":         status.IsOn,
		"brightness":   status.Brightness,
		"color":        msg.Color,
		"batteryLevel": status.BatteryLevel,
		"wifiStrength": status.WifiStrength,
	}})

	if status.BatteryLevel < LowBatteryLevel && (!hadPrevious || previous.BatteryLevel >= LowBatteryLevel) {
		if n, ok := ls.notifications.Add(Notification{
			Title:   "Battery low",
			Message: fmt.Sprintf("Lamp battery is at %d%%.", status.BatteryLevel),
			Level:   base.LevelAlert,
		}); ok {
			ls.publishNotification(n)
		}
	}
	return nil
}

func (ls *LampSession) handleSensor(_ context.Context, msg base.SensorUpdate) error {
	light := make([]lamp.LightDataPoint, 0, len(msg.LightReadings))
	for _, r := range msg.LightReadings {
		light = append(light, lamp.LightDataPoint{Hour: r.Hour, Value: r.Value})
	}
	sort.Slice(light, func(i, j int) bool { return light[i].Hour < light[j].Hour })

	energy := make([]lamp.EnergyDataPoint, 0, len(msg.EnergyUsage))
	for _, r := range msg.EnergyUsage {
		energy = append(energy, lamp.EnergyDataPoint{Day: r.Day, Usage: r.Usage})
	}
	data := lamp.SensorData{LightReadings: light, EnergyUsage: energy}

	ls.bus.Publish(Event{Type: EventSensorReading, Data: map[string]any{
		"lightReadings": data.LightReadings,
		"energyUsage":   data.EnergyUsage,
		"totalEnergy":   data.TotalEnergy(),
	}})
	return nil
}

func (ls *LampSession) handleNotification(_ context.Context, msg base.NotificationMessage) error {
	level := msg.Level
	if level == "" {
		level = base.LevelInfo
	}

	n, ok := ls.notifications.Add(Notification{
		ID:      msg.ID,
		Title:   msg.Title,
		Message: msg.Message,
		Level:   level,
		Time:    msg.Time,
	})
	if !ok {
		ls.logger.Debug("Notification filtered by preferences", zap.String("level", string(level)))
		return nil
	}

	ls.publishNotification(n)
	return nil
}

func (ls *LampSession) handleAck(_ context.Context, msg base.AckMessage) error {
	ls.bus.Publish(Event{Type: EventCommandAck, Data: map[string]any{
		"id":      msg.ID,
		"ok":      msg.OK,
		"message": msg.Message,
	}})
	return nil
}

func (ls *LampSession) handleDeviceError(_ context.Context, msg base.ErrorMessage) error {
	ls.logger.Warn("Lamp reported an error", zap.Int("code", msg.Code), zap.String("message", msg.Message))
	ls.bus.Publish(Event{Type: EventDeviceError, Data: map[string]any{
		"id":      msg.ID,
		"code":    msg.Code,
		"message": msg.Message,
	}})
	return nil
}
