package weather

import (
	"strings"
	"time"
)

// Record is the persisted weather state for a single location.
// At most one Record exists per Location.
type Record struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Location    string    `gorm:"size:255;uniqueIndex;not null" json:"location"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;not null" json:"updatedAt"`
	Temperature float64   `json:"temperature"`
	Description string    `json:"description,omitempty"`
	Humidity    int       `json:"humidity"`
}

// TableName overrides the gorm default ("records").
func (Record) TableName() string {
	return "weather_records"
}

// apply copies the observed conditions onto the record.
func (r *Record) apply(obs *Observation, at time.Time) {
	r.UpdatedAt = at
	r.Temperature = obs.TemperatureC
	r.Description = obs.Condition
	r.Humidity = obs.HumidityPct
}

// Observation is a provider's view of current conditions. It is consumed
// once per reconciliation attempt and never stored as-is.
type Observation struct {
	ProviderName string

	// Location is the name reported by the provider, which may differ from
	// the query used to fetch it (e.g. a zip code resolves to a city).
	Location string
	Region   string
	Country  string

	Timestamp    time.Time
	TemperatureC float64
	HumidityPct  int
	Condition    string
}

// RecordInput carries the client-editable fields of a Record.
type RecordInput struct {
	Location    string     `json:"location" validate:"required,max=255"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=255"`
	Humidity    *int       `json:"humidity,omitempty" validate:"omitempty,min=0,max=100"`
}

// SearchRequest identifies a single location by city name or zip code.
type SearchRequest struct {
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
}

// Query returns the provider query for the request, preferring the city.
func (r SearchRequest) Query() string {
	if city := strings.TrimSpace(r.City); city != "" {
		return city
	}
	return strings.TrimSpace(r.ZipCode)
}

// Summary describes the outcome of one reconciliation pass.
type Summary struct {
	RunID     string        `json:"runId"`
	Locations int           `json:"locations"`
	Updated   int           `json:"updated"`
	Created   int           `json:"created"`
	Missed    int           `json:"missed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
