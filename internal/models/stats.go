package models

// DashboardStats is the per-user dashboard summary.
type DashboardStats struct {
	CurrentCO2    float64 `json:"current_co2"`
	TotalCredits  float64 `json:"total_credits"`
	ActiveSensors int     `json:"active_sensors"`
	UnreadAlerts  int     `json:"unread_alerts"`
}
