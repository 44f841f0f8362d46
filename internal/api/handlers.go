package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/auth"
	"emission-service/internal/ids"
	"emission-service/internal/ingest"
	"emission-service/internal/logging"
	"emission-service/internal/models"
	"emission-service/internal/repository"
	"github.com/gin-gonic/gin"
)

// listLimit caps the recent readings and alerts lists.
const listLimit = 50

type Store interface {
	repository.QueryStore
	repository.SensorStore
}

type Handler struct {
	store     Store
	auth      *auth.Service
	validator *ingest.Validator
	deriver   ingest.Deriver
	logger    *logging.Logger
}

func NewHandler(store Store, authSvc *auth.Service, validator *ingest.Validator, deriver ingest.Deriver, logger *logging.Logger) *Handler {
	return &Handler{store: store, auth: authSvc, validator: validator, deriver: deriver, logger: logger}
}

// respondError writes err as {"error", "type"} and aborts. Server-side
// failures are logged with their cause.
func respondError(c *gin.Context, logger *logging.Logger, err error) {
	status := apperr.Status(err)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Public(err), "type": apperr.KindOf(err)})
}

// storeError classifies errors from query and sensor stores.
func storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound, err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("resource already exists", err)
	case errors.Is(err, repository.ErrInvalid):
		return apperr.Validation("malformed identifier", err)
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperr.StoreUnavailable("store unavailable, retry later", err)
	default:
		return apperr.Internal("internal server error", err)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body", err))
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Infof("Registered user %s (%s)", user.ID, user.Role)
	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID})
}

func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body", err))
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

type emissionResponse struct {
	EmissionID string         `json:"emission_id"`
	Duplicate  bool           `json:"duplicate,omitempty"`
	Alert      *models.Alert  `json:"alert,omitempty"`
	Credit     *models.Credit `json:"credit,omitempty"`
}

// CreateEmission validates a reading, checks the caller may write to its
// sensor, and derives it synchronously.
func (h *Handler) CreateEmission(c *gin.Context) {
	var rec ingest.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body", err))
		return
	}
	ctx := c.Request.Context()
	p := principal(c)

	reading, sensor, err := h.validator.Validate(ctx, rec)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if sensor.UserID != p.UserID && !p.IsAdmin() {
		respondError(c, h.logger, apperr.Forbidden("sensor does not belong to user", nil))
		return
	}

	res, err := h.deriver.Ingest(ctx, reading)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if res.Duplicate {
		c.JSON(http.StatusOK, emissionResponse{EmissionID: res.ReadingID, Duplicate: true})
		return
	}
	c.JSON(http.StatusCreated, emissionResponse{EmissionID: res.ReadingID, Alert: res.Alert, Credit: res.Credit})
}

func (h *Handler) GetRecentEmissions(c *gin.Context) {
	readings, err := h.store.RecentReadings(c.Request.Context(), principal(c).UserID, listLimit)
	if err != nil {
		respondError(c, h.logger, storeError(err, "readings not found"))
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (h *Handler) GetDashboardStats(c *gin.Context) {
	stats, err := h.store.DashboardStats(c.Request.Context(), principal(c).UserID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "stats not found"))
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetMonthlyCredits(c *gin.Context) {
	months, err := h.store.MonthlyCredits(c.Request.Context(), principal(c).UserID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "credits not found"))
		return
	}
	c.JSON(http.StatusOK, months)
}

func (h *Handler) GetAlerts(c *gin.Context) {
	alerts, err := h.store.AlertsByUser(c.Request.Context(), principal(c).UserID, listLimit)
	if err != nil {
		respondError(c, h.logger, storeError(err, "alerts not found"))
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) MarkAlertRead(c *gin.Context) {
	var req struct {
		Read *bool `json:"read" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body", err))
		return
	}
	id := c.Param("id")
	if !ids.Valid(id) {
		respondError(c, h.logger, apperr.NotFound("alert not found", nil))
		return
	}
	if err := h.store.SetAlertRead(c.Request.Context(), principal(c).UserID, id, *req.Read); err != nil {
		respondError(c, h.logger, storeError(err, "alert not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": *req.Read})
}

func (h *Handler) GetSensors(c *gin.Context) {
	sensors, err := h.store.ListSensors(c.Request.Context(), principal(c).UserID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "sensors not found"))
		return
	}
	c.JSON(http.StatusOK, sensors)
}

func (h *Handler) CreateSensor(c *gin.Context) {
	var req models.SensorCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body", err))
		return
	}
	if !ids.Valid(req.UserID) {
		respondError(c, h.logger, apperr.Validation("user_id must be a UUID", nil))
		return
	}
	sensor := &models.Sensor{
		ID:       req.ID,
		Type:     req.Type,
		Location: req.Location,
		Status:   req.Status,
		UserID:   req.UserID,
	}
	if sensor.Status == "" {
		sensor.Status = models.SensorStatusActive
	}
	if req.InstalledAt != nil {
		sensor.InstalledAt = req.InstalledAt.UTC()
	} else {
		sensor.InstalledAt = time.Now().UTC()
	}

	if err := h.store.CreateSensor(c.Request.Context(), sensor); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.logger, apperr.Validation("unknown user", err))
			return
		}
		if errors.Is(err, repository.ErrDuplicate) {
			respondError(c, h.logger, apperr.Conflict("sensor already exists", err))
			return
		}
		respondError(c, h.logger, storeError(err, "sensor not found"))
		return
	}
	h.logger.Infof("Created sensor %s for user %s", sensor.ID, sensor.UserID)
	c.JSON(http.StatusCreated, sensor)
}
