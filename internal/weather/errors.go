package weather

import "errors"

var (
	// ErrNotFound is returned when a record id or location has no stored record.
	ErrNotFound = errors.New("weather record not found")

	// ErrDuplicateLocation is returned when a write would create a second
	// record for an already stored location.
	ErrDuplicateLocation = errors.New("weather record already exists for location")

	// ErrValidation marks input rejected before any store or network access.
	ErrValidation = errors.New("invalid input")

	// ErrNoData is returned when the provider has nothing for the query.
	ErrNoData = errors.New("no weather data found")

	// ErrUpstream wraps failures of the provider call itself.
	ErrUpstream = errors.New("upstream weather provider failed")

	// ErrInternal wraps store failures and recovered panics during reconciliation.
	ErrInternal = errors.New("internal reconciliation failure")
)
