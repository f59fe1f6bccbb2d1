package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/geofence"
	"github.com/benmeehan/geofence-agent/internal/services"
)

type geofenceService interface {
	Submit(ctx context.Context, rawCoordinates, rawRadius string) (*services.SubmitResult, error)
	Current() services.CurrentGeofence
	Address(ctx context.Context, lat, lon float64) string
}

// submitRequest carries the raw text the user typed; parsing is left to validation.
type submitRequest struct {
	Coordinates string `json:"coordinates"`
	Radius      string `json:"radius"`
}

// GeofenceHandler serves the geofence configuration endpoints.
type GeofenceHandler struct {
	svc geofenceService
}

// NewGeofenceHandler creates a GeofenceHandler backed by svc.
func NewGeofenceHandler(svc geofenceService) *GeofenceHandler {
	return &GeofenceHandler{svc: svc}
}

// Register mounts the geofence routes on r.
func (h *GeofenceHandler) Register(r *gin.RouterGroup) {
	r.POST("/geofence", h.Submit)
	r.GET("/geofence", h.Current)
	r.GET("/address", h.Address)
}

// Submit validates and registers a new geofence from the raw user input.
func (h *GeofenceHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), req.Coordinates, req.Radius)
	if err != nil {
		var vErr *geofence.ValidationError
		var regErr *services.RegistrationError
		switch {
		case errors.As(err, &vErr):
			writeValidationError(c, vErr)
		case errors.As(err, &regErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": constants.MessageGeofenceAddFailed, "detail": regErr.Err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, res)
}

// Current returns the active geofence, or 404 while none is configured.
func (h *GeofenceHandler) Current(c *gin.Context) {
	cur := h.svc.Current()
	if cur.Region == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no geofence configured", "state": cur.State})
		return
	}
	c.JSON(http.StatusOK, cur)
}

// Address resolves lat/lon to a display address.
func (h *GeofenceHandler) Address(c *gin.Context) {
	center, vErr := geofence.ParseCoordinates(c.Query("lat") + "," + c.Query("lon"))
	if vErr == nil {
		vErr = geofence.CheckRange(center)
	}
	if vErr != nil {
		writeValidationError(c, vErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": h.svc.Address(c.Request.Context(), center.Latitude, center.Longitude)})
}

func writeValidationError(c *gin.Context, err *geofence.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": err.Field, "reason": err.Reason})
}
