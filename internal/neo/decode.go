package neo

import (
	"bytes"
	"encoding/json"
)

// Provider records are decoded leniently: a scalar of the wrong JSON type is
// treated as absent instead of failing the whole record. Only a body that is
// not a JSON object is an error.

type summaryWire struct {
	ID                   json.RawMessage `json:"id"`
	NeoReferenceID       json.RawMessage `json:"neo_reference_id"`
	Name                 json.RawMessage `json:"name"`
	PotentiallyHazardous json.RawMessage `json:"is_potentially_hazardous_asteroid"`
	Approaches           json.RawMessage `json:"close_approach_data"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SummaryRecord) UnmarshalJSON(data []byte) error {
	var w summaryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = SummaryRecord{
		ID:                   identifier(w.ID),
		NeoReferenceID:       identifier(w.NeoReferenceID),
		Name:                 text(w.Name),
		PotentiallyHazardous: flag(w.PotentiallyHazardous),
		Approaches:           fragments(w.Approaches),
	}
	return nil
}

type detailWire struct {
	ID                   json.RawMessage `json:"id"`
	NeoReferenceID       json.RawMessage `json:"neo_reference_id"`
	Name                 json.RawMessage `json:"name"`
	NameLimited          json.RawMessage `json:"name_limited"`
	Designation          json.RawMessage `json:"designation"`
	NasaJPLURL           json.RawMessage `json:"nasa_jpl_url"`
	AbsoluteMagnitudeH   json.RawMessage `json:"absolute_magnitude_h"`
	PotentiallyHazardous json.RawMessage `json:"is_potentially_hazardous_asteroid"`
	SentryObject         json.RawMessage `json:"is_sentry_object"`
	EstimatedDiameter    json.RawMessage `json:"estimated_diameter"`
	Approaches           json.RawMessage `json:"close_approach_data"`
	OrbitalData          json.RawMessage `json:"orbital_data"`
	Links                json.RawMessage `json:"links"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DetailRecord) UnmarshalJSON(data []byte) error {
	var w detailWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = DetailRecord{
		ID:                   identifier(w.ID),
		NeoReferenceID:       identifier(w.NeoReferenceID),
		Name:                 text(w.Name),
		NameLimited:          text(w.NameLimited),
		Designation:          text(w.Designation),
		NasaJPLURL:           text(w.NasaJPLURL),
		AbsoluteMagnitudeH:   w.AbsoluteMagnitudeH,
		PotentiallyHazardous: flag(w.PotentiallyHazardous),
		SentryObject:         flag(w.SentryObject),
		EstimatedDiameter:    w.EstimatedDiameter,
		Approaches:           fragments(w.Approaches),
		OrbitalData:          w.OrbitalData,
		Links:                w.Links,
	}
	return nil
}

// identifier accepts a JSON string or number.
func identifier(raw json.RawMessage) string {
	if s := text(raw); s != "" {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func text(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func flag(raw json.RawMessage) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

// fragments splits a JSON array into its elements. Anything else yields nil.
func fragments(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var out []json.RawMessage
	if json.Unmarshal(raw, &out) != nil {
		return nil
	}
	return out
}
