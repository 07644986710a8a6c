package neo

import (
	"bytes"
	"encoding/json"
	"time"
)

// CatalogPage is one page of the NeoWs browse endpoint.
type CatalogPage struct {
	// PageIndex is the page number that was requested.
	PageIndex int
	// TotalPages is only known when the provider reports it.
	TotalPages *int
	// TotalElements mirrors page.total_elements when reported.
	TotalElements int
	// Records is empty once the catalog is exhausted.
	Records []SummaryRecord
}

// SummaryRecord is the lightweight object listed on a browse or feed page.
type SummaryRecord struct {
	ID                   string            `json:"id"`
	NeoReferenceID       string            `json:"neo_reference_id"`
	Name                 string            `json:"name"`
	PotentiallyHazardous bool              `json:"is_potentially_hazardous_asteroid"`
	Approaches           []json.RawMessage `json:"close_approach_data"`
}

// ReferenceID returns the identifier used for detail lookups.
func (s SummaryRecord) ReferenceID() string {
	if s.NeoReferenceID != "" {
		return s.NeoReferenceID
	}
	return s.ID
}

// DetailRecord is the full provider record returned by the lookup endpoint.
// Variable-shaped substructures stay raw until the normalizer extracts the
// parts it keeps.
type DetailRecord struct {
	ID                   string            `json:"id"`
	NeoReferenceID       string            `json:"neo_reference_id"`
	Name                 string            `json:"name"`
	NameLimited          string            `json:"name_limited,omitempty"`
	Designation          string            `json:"designation,omitempty"`
	NasaJPLURL           string            `json:"nasa_jpl_url,omitempty"`
	AbsoluteMagnitudeH   json.RawMessage   `json:"absolute_magnitude_h,omitempty"`
	PotentiallyHazardous bool              `json:"is_potentially_hazardous_asteroid"`
	SentryObject         bool              `json:"is_sentry_object"`
	EstimatedDiameter    json.RawMessage   `json:"estimated_diameter,omitempty"`
	Approaches           []json.RawMessage `json:"close_approach_data,omitempty"`
	OrbitalData          json.RawMessage   `json:"orbital_data,omitempty"`
	Links                json.RawMessage   `json:"links,omitempty"`
}

// NormalizedRecord is the sanitized, storage-ready form of an object.
type NormalizedRecord struct {
	ID                   string             `json:"id"`
	NeoReferenceID       string             `json:"neo_reference_id,omitempty"`
	Name                 string             `json:"name,omitempty"`
	NameLimited          string             `json:"name_limited,omitempty"`
	Designation          string             `json:"designation,omitempty"`
	NasaJPLURL           string             `json:"nasa_jpl_url,omitempty"`
	AbsoluteMagnitudeH   *float64           `json:"absolute_magnitude_h,omitempty"`
	PotentiallyHazardous bool               `json:"is_potentially_hazardous_asteroid"`
	SentryObject         bool               `json:"is_sentry_object"`
	EstimatedDiameter    *EstimatedDiameter `json:"estimated_diameter,omitempty"`
	Approaches           []Approach         `json:"close_approach_data"`
	OrbitalData          json.RawMessage    `json:"orbital_data,omitempty"`
}

// EstimatedDiameter holds the single canonical (kilometers) unit block.
type EstimatedDiameter struct {
	Kilometers DiameterRange `json:"kilometers"`
}

// DiameterRange is the provider's min/max diameter estimate.
type DiameterRange struct {
	Min *float64 `json:"estimated_diameter_min,omitempty"`
	Max *float64 `json:"estimated_diameter_max,omitempty"`
}

// Approach is a sanitized close-approach entry with metric units only.
type Approach struct {
	Date             string            `json:"close_approach_date,omitempty"`
	DateFull         string            `json:"close_approach_date_full,omitempty"`
	EpochDate        *int64            `json:"epoch_date_close_approach,omitempty"`
	RelativeVelocity *RelativeVelocity `json:"relative_velocity,omitempty"`
	MissDistance     *MissDistance     `json:"miss_distance,omitempty"`
	OrbitingBody     string            `json:"orbiting_body,omitempty"`
}

// RelativeVelocity keeps the km/s figure as the provider's decimal string.
type RelativeVelocity struct {
	KilometersPerSecond string `json:"kilometers_per_second"`
}

// MissDistance keeps the kilometers figure as the provider's decimal string.
type MissDistance struct {
	Kilometers string `json:"kilometers"`
}

// ArchivedRow is one persisted record.
type ArchivedRow struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"data"`
	InsertedAt time.Time       `json:"inserted_at"`
}

// EncodeRecord serializes a normalized record as stored in the archive.
// HTML escaping is disabled so names and URLs are kept byte-for-byte.
func EncodeRecord(rec NormalizedRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
