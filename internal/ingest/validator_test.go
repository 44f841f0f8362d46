package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/memstore"
	"emission-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIDs string

func (f fixedIDs) NewID() string { return string(f) }

const generatedID = "0190a4d2-7c3e-7abc-8def-0123456789ab"

var clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func sensorStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "op@example.com"}))
	require.NoError(t, s.CreateSensor(ctx, &models.Sensor{ID: "s1", Status: models.SensorStatusActive, UserID: "u1"}))
	require.NoError(t, s.CreateSensor(ctx, &models.Sensor{ID: "s2", Status: models.SensorStatusActive, UserID: "u1"}))
	return s
}

func newValidator(t *testing.T) *Validator {
	return NewValidator(sensorStore(t), fixedIDs(generatedID), func() time.Time { return clock })
}

func TestValidateAssignsIDAndTimestamp(t *testing.T) {
	v := newValidator(t)
	r, sensor, err := v.Validate(context.Background(), Record{SensorID: " s1 ", CO2Value: fptr(850), Humidity: fptr(40)})
	require.NoError(t, err)
	assert.Equal(t, generatedID, r.ID)
	assert.Equal(t, "s1", r.SensorID)
	assert.Equal(t, clock, r.Timestamp)
	assert.Equal(t, 850.0, r.CO2Value)
	require.NotNil(t, r.Humidity)
	assert.Equal(t, 40.0, *r.Humidity)
	assert.Nil(t, r.PM25Value)
	assert.Equal(t, "u1", sensor.UserID)
}

func TestValidateKeepsProducerIDAndTimestamp(t *testing.T) {
	v := newValidator(t)
	id := "0190a4d2-0000-7000-8000-000000000001"
	ts := time.Date(2024, 4, 30, 23, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	r, _, err := v.Validate(context.Background(), Record{ID: id, SensorID: "s1", CO2Value: fptr(0), Timestamp: &ts})
	require.NoError(t, err)
	assert.Equal(t, id, r.ID)
	assert.Equal(t, ts.UTC(), r.Timestamp)
	assert.Equal(t, time.UTC, r.Timestamp.Location())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		msg  string
	}{
		{"missing sensor", Record{CO2Value: fptr(1)}, "sensor_id is required"},
		{"blank sensor", Record{SensorID: "  ", CO2Value: fptr(1)}, "sensor_id is required"},
		{"unknown sensor", Record{SensorID: "nope", CO2Value: fptr(1)}, "unknown sensor"},
		{"missing co2", Record{SensorID: "s1"}, "co2_value is required"},
		{"nan co2", Record{SensorID: "s1", CO2Value: fptr(math.NaN())}, "co2_value must be a finite number"},
		{"inf co2", Record{SensorID: "s1", CO2Value: fptr(math.Inf(1))}, "co2_value must be a finite number"},
		{"negative co2", Record{SensorID: "s1", CO2Value: fptr(-5)}, "co2_value must not be negative"},
		{"non-finite humidity", Record{SensorID: "s1", CO2Value: fptr(1), Humidity: fptr(math.Inf(-1))}, "humidity must be a finite number"},
		{"bad id", Record{ID: "r-1", SensorID: "s1", CO2Value: fptr(1)}, "id must be a UUID"},
	}
	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.Validate(context.Background(), tt.rec)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tt.msg, apperr.Public(err))
		})
	}
}
