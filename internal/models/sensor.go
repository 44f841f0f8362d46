package models

import "time"

const (
	SensorStatusActive   = "active"
	SensorStatusInactive = "inactive"
)

// Sensor is an installed measuring device owned by a user.
type Sensor struct {
	ID          string    `json:"id"`
	Type        string    `json:"sensor_type"`
	Location    string    `json:"location"`
	InstalledAt time.Time `json:"installed_at"`
	Status      string    `json:"status"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// SensorCreate is the input structure for registering a sensor.
type SensorCreate struct {
	ID          string     `json:"id" binding:"required"`
	Type        string     `json:"sensor_type" binding:"required"`
	Location    string     `json:"location"`
	InstalledAt *time.Time `json:"installed_at"`
	Status      string     `json:"status" binding:"omitempty,oneof=active inactive"`
	UserID      string     `json:"user_id" binding:"required"`
}
