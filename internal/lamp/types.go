package lamp

import (
	"time"
)

// MaxBrightness is full brightness on the lamp's 8-bit scale.
const MaxBrightness = 255

// Weekdays in the form schedules use.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Status is the lamp state reported by GET /lamp/status.
type Status struct {
	IsOn         bool      `json:"isOn"`
	Brightness   int       `json:"brightness" validate:"gte=0,lte=255"`
	BatteryLevel int       `json:"batteryLevel" validate:"gte=0,lte=100"`
	WifiStrength int       `json:"wifiStrength" validate:"gte=0,lte=100"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// BrightnessPercent converts the 0..255 brightness to a rounded percentage.
func (s Status) BrightnessPercent() int {
	return (s.Brightness*100 + MaxBrightness/2) / MaxBrightness
}

type LightDataPoint struct {
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

type EnergyDataPoint struct {
	Day   string  `json:"day"`
	Usage float64 `json:"usage"`
}

// SensorData is returned by GET /lamp/sensor-data.
type SensorData struct {
	LightReadings []LightDataPoint  `json:"lightReadings"`
	EnergyUsage   []EnergyDataPoint `json:"energyUsage"`
}

// TotalEnergy sums the energy series.
func (d SensorData) TotalEnergy() float64 {
	var total float64
	for _, p := range d.EnergyUsage {
		total += p.Usage
	}
	return total
}

// Schedule switches the lamp on at Time on each of Days.
type Schedule struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name" validate:"required,max=64"`
	Time       string   `json:"time" validate:"required,datetime=15:04"`
	Days       []string `json:"days" validate:"min=1,unique,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	Brightness int      `json:"brightness" validate:"gte=0,lte=255"`
	Enabled    bool     `json:"enabled"`
}

type toggleRequest struct {
	IsOn bool `json:"isOn"`
}

type brightnessRequest struct {
	Brightness int `json:"brightness" validate:"gte=0,lte=255"`
}

type colorRequest struct {
	Color string `json:"color" validate:"required,hexcolor,len=7"`
}
