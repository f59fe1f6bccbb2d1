package geofence

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/models"
)

// Fields reported by ValidationError.
const (
	FieldCoordinates = "coordinates"
	FieldRadius      = "radius"
)

// Reasons reported by ValidationError.
const (
	ReasonMalformed  = "malformed"
	ReasonOutOfRange = "out of range"
	ReasonRadius     = "missing or non-numeric"
)

var (
	// decimalPattern matches one coordinate: optional sign, digits, optional fraction.
	decimalPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	// radiusPattern is decimalPattern without the sign.
	radiusPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ValidationError rejects user input before any side effect.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationResult is either a region ready to submit or the reason it was rejected.
type ValidationResult struct {
	Region *models.GeofenceRegion
	Err    *ValidationError
}

// Valid reports whether the input produced a region.
func (r ValidationResult) Valid() bool {
	return r.Err == nil && r.Region != nil
}

// Validate checks raw coordinate and radius text and builds the region they describe.
// It has no side effects.
func Validate(rawCoordinates, rawRadius string) ValidationResult {
	center, err := ParseCoordinates(rawCoordinates)
	if err != nil {
		return ValidationResult{Err: err}
	}
	if err := CheckRange(center); err != nil {
		return ValidationResult{Err: err}
	}

	radius, err := ParseRadius(rawRadius)
	if err != nil {
		return ValidationResult{Err: err}
	}

	region := NewRegion(center, radius)
	return ValidationResult{Region: &region}
}

// ParseCoordinates parses "lat,lon" with optional whitespace around each number.
// Range is not checked here, see CheckRange.
func ParseCoordinates(raw string) (models.Coordinates, *ValidationError) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return models.Coordinates{}, &ValidationError{Field: FieldCoordinates, Reason: ReasonMalformed}
	}

	values := make([]float64, 2)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !decimalPattern.MatchString(p) {
			return models.Coordinates{}, &ValidationError{Field: FieldCoordinates, Reason: ReasonMalformed}
		}
		// Overflow yields ±Inf with ErrRange; CheckRange rejects it as out of range.
		v, err := strconv.ParseFloat(p, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return models.Coordinates{}, &ValidationError{Field: FieldCoordinates, Reason: ReasonMalformed}
		}
		values[i] = v
	}

	return models.Coordinates{Latitude: values[0], Longitude: values[1]}, nil
}

// CheckRange requires latitude in [-90, 90] and longitude in [-180, 180].
func CheckRange(c models.Coordinates) *ValidationError {
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return &ValidationError{Field: FieldCoordinates, Reason: ReasonOutOfRange}
	}
	return nil
}

// ParseRadius requires a plain decimal that is finite and greater than zero.
func ParseRadius(raw string) (float64, *ValidationError) {
	raw = strings.TrimSpace(raw)
	if !radiusPattern.MatchString(raw) {
		return 0, &ValidationError{Field: FieldRadius, Reason: ReasonRadius}
	}

	radius, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return 0, &ValidationError{Field: FieldRadius, Reason: ReasonRadius}
	}
	return radius, nil
}

// NewRegion builds the single monitored region around center.
func NewRegion(center models.Coordinates, radiusMeters float64) models.GeofenceRegion {
	return models.GeofenceRegion{
		Center:       center,
		RadiusMeters: radiusMeters,
		RequestID:    constants.GeofenceRequestID,
		Transitions:  []models.TransitionKind{models.TransitionEnter, models.TransitionExit},
	}
}

// CheckRegion re-validates a region built outside Validate, e.g. read back from storage.
func CheckRegion(r models.GeofenceRegion) error {
	if err := CheckRange(r.Center); err != nil {
		return err
	}
	if math.IsNaN(r.RadiusMeters) || math.IsInf(r.RadiusMeters, 0) || r.RadiusMeters <= 0 {
		return &ValidationError{Field: FieldRadius, Reason: ReasonRadius}
	}
	return nil
}
