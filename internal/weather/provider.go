package weather

import (
	"context"
)

// Provider abstracts an upstream weather data source (e.g. WeatherAPI, OpenWeatherMap).
//
// FetchCurrent returns (nil, nil) when the provider answered but had no data
// for the query, and a non-nil error when the call itself could not complete.
type Provider interface {
	Name() string
	FetchCurrent(ctx context.Context, query string) (*Observation, error)
}

// Store is the contract the persistent and in-memory stores must satisfy.
// Lookups report a missing record with ErrNotFound.
type Store interface {
	Get(ctx context.Context, id uint) (*Record, error)
	FindByLocation(ctx context.Context, location string) (*Record, error)
	Locations(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, rec *Record) error

	// SaveAll inserts records without an ID and updates the rest, atomically.
	SaveAll(ctx context.Context, recs []*Record) error
}
