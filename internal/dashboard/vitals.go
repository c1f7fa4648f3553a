package dashboard

import (
	"fmt"
	"strconv"
	"strings"
)

type VitalStatus string

const (
	StatusNormal  VitalStatus = "Normal"
	StatusMonitor VitalStatus = "Monitor"
)

// VitalReading is one point of the vitals trend chart.
type VitalReading struct {
	Time          string  `json:"time"`
	HeartRate     int     `json:"heartRate"`
	BloodPressure int     `json:"bloodPressure"`
	Temperature   float64 `json:"temperature"`
}

type RiskFactor struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

func DefaultVitalTrend() []VitalReading {
	return []VitalReading{
		{Time: "08:00", HeartRate: 72, BloodPressure: 120, Temperature: 98.6},
		{Time: "12:00", HeartRate: 78, BloodPressure: 125, Temperature: 99.1},
		{Time: "16:00", HeartRate: 75, BloodPressure: 118, Temperature: 98.8},
		{Time: "20:00", HeartRate: 70, BloodPressure: 115, Temperature: 98.4},
	}
}

func DefaultRiskFactors() []RiskFactor {
	return []RiskFactor{
		{Name: "Cardiovascular", Value: 35, Color: "#ef4444"},
		{Name: "Diabetes", Value: 25, Color: "#f97316"},
		{Name: "Respiratory", Value: 20, Color: "#eab308"},
		{Name: "Other", Value: 20, Color: "#22c55e"},
	}
}

// HeartRateStatus is Normal for a resting rate of 60-100 bpm.
func HeartRateStatus(bpm int) VitalStatus {
	if bpm >= 60 && bpm <= 100 {
		return StatusNormal
	}
	return StatusMonitor
}

// TemperatureStatus is Normal between 97.0 and 99.0 °F.
func TemperatureStatus(fahrenheit float64) VitalStatus {
	if fahrenheit >= 97.0 && fahrenheit <= 99.0 {
		return StatusNormal
	}
	return StatusMonitor
}

// BloodPressureStatus parses "systolic/diastolic" and flags readings at or
// above 130/85.
func BloodPressureStatus(reading string) (VitalStatus, error) {
	sys, dia, err := ParseBloodPressure(reading)
	if err != nil {
		return "", err
	}
	if sys < 130 && dia < 85 {
		return StatusNormal, nil
	}
	return StatusMonitor, nil
}

func ParseBloodPressure(reading string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(reading), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("blood pressure %q: want systolic/diastolic", reading)
	}
	sys, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("blood pressure %q: systolic: %w", reading, err)
	}
	dia, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("blood pressure %q: diastolic: %w", reading, err)
	}
	if sys <= 0 || dia <= 0 || dia >= sys {
		return 0, 0, fmt.Errorf("blood pressure %q: implausible reading", reading)
	}
	return sys, dia, nil
}

// VitalsSummary pairs the current patient readings with their status.
type VitalsSummary struct {
	HeartRate           int            `json:"heartRate"`
	HeartRateStatus     VitalStatus    `json:"heartRateStatus"`
	Temperature         float64        `json:"temperature"`
	TemperatureStatus   VitalStatus    `json:"temperatureStatus"`
	BloodPressure       string         `json:"bloodPressure"`
	BloodPressureStatus VitalStatus    `json:"bloodPressureStatus,omitempty"`
	Trend               []VitalReading `json:"trend"`
}

func summarizeVitals(p Patient) VitalsSummary {
	summary := VitalsSummary{
		HeartRate:         p.HeartRate,
		HeartRateStatus:   HeartRateStatus(p.HeartRate),
		Temperature:       p.Temperature,
		TemperatureStatus: TemperatureStatus(p.Temperature),
		BloodPressure:     p.BloodPressure,
		Trend:             DefaultVitalTrend(),
	}
	if status, err := BloodPressureStatus(p.BloodPressure); err == nil {
		summary.BloodPressureStatus = status
	}
	return summary
}
