package economy

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientResources matches any *InsufficientResourcesError via errors.Is.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrUnknownBuildingKind is returned for a building kind missing from the catalog.
	ErrUnknownBuildingKind = errors.New("unknown building kind")

	// ErrInvalidAmount is returned when a debit is asked for a negative quantity.
	ErrInvalidAmount = errors.New("invalid amount")
)

// InsufficientResourcesError reports the first resource a debit could not cover.
type InsufficientResourcesError struct {
	Resource  Resource `json:"resource"`
	Required  float64  `json:"required"`
	Available float64  `json:"available"`
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient %s: need %.0f, have %.0f", e.Resource, e.Required, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientResources) match.
func (e *InsufficientResourcesError) Is(target error) bool {
	return target == ErrInsufficientResources
}

// Missing returns how much more of the resource is needed.
func (e *InsufficientResourcesError) Missing() float64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}
