// Package ingest turns raw producer records into validated readings and feeds
// them to the derivation engine.
package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/ids"
	"emission-service/internal/models"
	"emission-service/internal/repository"
)

// Record is one reading as sent by a producer. Optional fields are pointers so
// that absent and zero can be told apart.
type Record struct {
	ID          string     `json:"id,omitempty"`
	SensorID    string     `json:"sensor_id"`
	CO2Value    *float64   `json:"co2_value"`
	PM25Value   *float64   `json:"pm25_value,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type SensorLookup interface {
	GetSensor(ctx context.Context, id string) (*models.Sensor, error)
}

// Validator checks records and fills in the identifier and timestamp the
// producer left out.
type Validator struct {
	sensors SensorLookup
	ids     ids.Generator
	now     func() time.Time
}

func NewValidator(sensors SensorLookup, gen ids.Generator, now func() time.Time) *Validator {
	if gen == nil {
		gen = ids.UUIDv7{}
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{sensors: sensors, ids: gen, now: now}
}

// Validate returns the normalised reading and the sensor it belongs to.
func (v *Validator) Validate(ctx context.Context, rec Record) (models.Reading, *models.Sensor, error) {
	sensorID := strings.TrimSpace(rec.SensorID)
	if sensorID == "" {
		return models.Reading{}, nil, apperr.Validation("sensor_id is required", nil)
	}
	if rec.CO2Value == nil {
		return models.Reading{}, nil, apperr.Validation("co2_value is required", nil)
	}
	if !finite(*rec.CO2Value) {
		return models.Reading{}, nil, apperr.Validation("co2_value must be a finite number", nil)
	}
	if *rec.CO2Value < 0 {
		return models.Reading{}, nil, apperr.Validation("co2_value must not be negative", nil)
	}
	optional := []struct {
		name  string
		value *float64
	}{
		{"pm25_value", rec.PM25Value},
		{"temperature", rec.Temperature},
		{"humidity", rec.Humidity},
	}
	for _, f := range optional {
		if f.value != nil && !finite(*f.value) {
			return models.Reading{}, nil, apperr.Validation(f.name+" must be a finite number", nil)
		}
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = v.ids.NewID()
	} else if !ids.Valid(id) {
		return models.Reading{}, nil, apperr.Validation("id must be a UUID", nil)
	}

	sensor, err := v.sensors.GetSensor(ctx, sensorID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return models.Reading{}, nil, apperr.Validation("unknown sensor", err)
	case errors.Is(err, repository.ErrUnavailable):
		return models.Reading{}, nil, apperr.StoreUnavailable("store unavailable, retry later", err)
	case err != nil:
		return models.Reading{}, nil, apperr.Internal("sensor lookup failed", err)
	}

	ts := v.now().UTC()
	if rec.Timestamp != nil && !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.UTC()
	}
	return models.Reading{
		ID:          id,
		SensorID:    sensorID,
		Timestamp:   ts,
		CO2Value:    *rec.CO2Value,
		PM25Value:   rec.PM25Value,
		Temperature: rec.Temperature,
		Humidity:    rec.Humidity,
	}, sensor, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
