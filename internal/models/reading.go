package models

import "time"

// Reading is one timestamped sensor observation. Only AlertID may change after
// creation, and only once.
type Reading struct {
	ID          string    `json:"id"`
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"timestamp"`
	CO2Value    float64   `json:"co2_value"`
	PM25Value   *float64  `json:"pm25_value,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	AlertID     *string   `json:"alert_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentReading is a Reading joined with the sensor it came from.
type RecentReading struct {
	Reading
	Location   string `json:"location"`
	SensorType string `json:"sensor_type"`
}
