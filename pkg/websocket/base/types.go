package base

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the value of the "type" field on inbound frames.
type MessageType string

const (
	TypeStatus       MessageType = "status"
	TypeSensor       MessageType = "sensor"
	TypeNotification MessageType = "notification"
	TypeAck          MessageType = "ack"
	TypeError        MessageType = "error"
)

// KnownTypes lists every inbound type the lamp firmware emits.
var KnownTypes = []MessageType{TypeStatus, TypeSensor, TypeNotification, TypeAck, TypeError}

// BaseMessage represents the common structure of all inbound messages
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// StatusUpdate is pushed whenever the lamp changes state and periodically
// as a heartbeat.
type StatusUpdate struct {
	Type         MessageType `json:"type"`
	IsOn         bool        `json:"isOn"`
	Brightness   int         `json:"brightness"`
	Color        string      `json:"color,omitempty"`
	BatteryLevel int         `json:"batteryLevel"`
	WifiStrength int         `json:"wifiStrength"`
	LastUpdated  time.Time   `json:"lastUpdated"`
}

// LightReading is one ambient light sample.
type LightReading struct {
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

// EnergyReading is the energy used on one day.
type EnergyReading struct {
	Day   string  `json:"day"`
	Usage float64 `json:"usage"`
}

// SensorUpdate carries fresh sensor series.
type SensorUpdate struct {
	Type          MessageType     `json:"type"`
	LightReadings []LightReading  `json:"lightReadings"`
	EnergyUsage   []EnergyReading `json:"energyUsage"`
}

// NotificationLevel classifies device notifications.
type NotificationLevel string

const (
	LevelStatus NotificationLevel = "status"
	LevelAlert  NotificationLevel = "alert"
	LevelInfo   NotificationLevel = "info"
)

// NotificationMessage is a device-originated notification.
type NotificationMessage struct {
	Type    MessageType       `json:"type"`
	ID      string            `json:"id,omitempty"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Level   NotificationLevel `json:"level"`
	Time    time.Time         `json:"time"`
}

// AckMessage confirms a command by id.
type AckMessage struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
}

// ErrorMessage represents error responses from the device
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message"`
	ID      string      `json:"id,omitempty"`
}

// CommandName identifies an outbound command.
type CommandName string

const (
	CmdToggle     CommandName = "toggle"
	CmdBrightness CommandName = "brightness"
	CmdColor      CommandName = "color"
)

// Command is the outbound frame written to the lamp.
type Command struct {
	ID         string      `json:"id"`
	Cmd        CommandName `json:"cmd"`
	IsOn       *bool       `json:"isOn,omitempty"`
	Brightness *int        `json:"brightness,omitempty"`
	Color      string      `json:"color,omitempty"`
}

func NewToggleCommand(on bool) Command {
	return Command{ID: uuid.NewString(), Cmd: CmdToggle, IsOn: &on}
}

func NewBrightnessCommand(brightness int) Command {
	return Command{ID: uuid.NewString(), Cmd: CmdBrightness, Brightness: &brightness}
}

func NewColorCommand(color string) Command {
	return Command{ID: uuid.NewString(), Cmd: CmdColor, Color: color}
}
