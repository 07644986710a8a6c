// Package normalize turns provider records into the sanitized, metric-only
// form stored in the archive.
//
// Normalization never fails: fields that are missing or malformed are
// omitted rather than reported.
package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

// Record builds the normalized form of detail using approaches as the
// close-approach history. The inputs are not modified.
func Record(detail neo.DetailRecord, approaches []json.RawMessage) neo.NormalizedRecord {
	id := detail.ID
	if id == "" {
		id = detail.NeoReferenceID
	}
	out := neo.NormalizedRecord{
		ID:                   id,
		NeoReferenceID:       detail.NeoReferenceID,
		Name:                 detail.Name,
		NameLimited:          detail.NameLimited,
		Designation:          detail.Designation,
		NasaJPLURL:           detail.NasaJPLURL,
		AbsoluteMagnitudeH:   floatValue(detail.AbsoluteMagnitudeH),
		PotentiallyHazardous: detail.PotentiallyHazardous,
		SentryObject:         detail.SentryObject,
		EstimatedDiameter:    Diameter(detail.EstimatedDiameter),
		Approaches:           make([]neo.Approach, 0, len(approaches)),
		OrbitalData:          orbitalData(detail.OrbitalData),
	}
	for _, raw := range approaches {
		if a, ok := Approach(raw); ok {
			out.Approaches = append(out.Approaches, a)
		}
	}
	return out
}

type rawApproach struct {
	Date             json.RawMessage `json:"close_approach_date"`
	DateFull         json.RawMessage `json:"close_approach_date_full"`
	EpochDate        json.RawMessage `json:"epoch_date_close_approach"`
	RelativeVelocity json.RawMessage `json:"relative_velocity"`
	MissDistance     json.RawMessage `json:"miss_distance"`
	OrbitingBody     json.RawMessage `json:"orbiting_body"`
}

// Approach sanitizes one close-approach fragment. It reports false when the
// fragment is not a JSON object.
func Approach(raw json.RawMessage) (neo.Approach, bool) {
	var in rawApproach
	if !isObject(raw) || json.Unmarshal(raw, &in) != nil {
		return neo.Approach{}, false
	}
	out := neo.Approach{
		Date:         stringValue(in.Date),
		DateFull:     stringValue(in.DateFull),
		EpochDate:    intValue(in.EpochDate),
		OrbitingBody: stringValue(in.OrbitingBody),
	}
	if kms := field(in.RelativeVelocity, "kilometers_per_second"); kms != "" {
		out.RelativeVelocity = &neo.RelativeVelocity{KilometersPerSecond: kms}
	}
	if km := field(in.MissDistance, "kilometers"); km != "" {
		out.MissDistance = &neo.MissDistance{Kilometers: km}
	}
	return out, true
}

// Diameter keeps only the kilometers block of an estimated_diameter value.
// It returns nil when that block is absent or carries no usable bounds.
func Diameter(raw json.RawMessage) *neo.EstimatedDiameter {
	var units map[string]json.RawMessage
	if !isObject(raw) || json.Unmarshal(raw, &units) != nil {
		return nil
	}
	var km map[string]json.RawMessage
	if !isObject(units["kilometers"]) || json.Unmarshal(units["kilometers"], &km) != nil {
		return nil
	}
	r := neo.DiameterRange{
		Min: floatValue(km["estimated_diameter_min"]),
		Max: floatValue(km["estimated_diameter_max"]),
	}
	if r.Min == nil && r.Max == nil {
		return nil
	}
	return &neo.EstimatedDiameter{Kilometers: r}
}

// MinMissKilometers returns the smallest parseable miss distance across the
// record's approaches, or +Inf when there is none.
func MinMissKilometers(rec neo.NormalizedRecord) float64 {
	best := math.Inf(1)
	for _, a := range rec.Approaches {
		if a.MissDistance == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(a.MissDistance.Kilometers), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		if v < best {
			best = v
		}
	}
	return best
}

func orbitalData(raw json.RawMessage) json.RawMessage {
	if !isObject(raw) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

func field(raw json.RawMessage, key string) string {
	var obj map[string]json.RawMessage
	if !isObject(raw) || json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	return stringValue(obj[key])
}

// stringValue accepts a JSON string or number and returns its text.
func stringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func floatValue(raw json.RawMessage) *float64 {
	s := stringValue(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func intValue(raw json.RawMessage) *int64 {
	s := strings.TrimSpace(stringValue(raw))
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
