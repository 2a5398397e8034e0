package people

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize maps an enrichment payload onto a Record. Every column gets a
// plain scalar or nil; nested values the table does not model are dropped
// from the columns and survive only in Raw.
func Normalize(batchID uint64, sourceResultID *uint64, link string, payload map[string]any) (*Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}

	rec := &Record{
		SearchBatchID:  batchID,
		SourceResultID: sourceResultID,
		LinkedInURL:    link,
		Raw:            raw,

		PersonUUID:     scalar(payload["uuid"]),
		FirstName:      scalar(payload["first_name"]),
		LastName:       scalar(payload["last_name"]),
		FullName:       scalar(payload["full_name"]),
		Title:          scalar(payload["title"]),
		Headline:       scalar(payload["headline"]),
		PersonIndustry: scalar(payload["industry"]),
		ImageURL:       scalar(payload["image"]),
	}

	loc := flattenLocation(payload)
	rec.PersonCity, rec.PersonState, rec.PersonCountryCode, rec.PersonCountry, rec.PersonRegion =
		loc.city, loc.state, loc.countryCode, loc.country, loc.region

	org, _ := payload["organization"].(map[string]any)
	rec.OrgUUID = scalar(org["uuid"])
	rec.OrgName = scalar(org["name"])
	rec.OrgWebsite = scalar(org["website"])
	rec.OrgDomain = scalar(org["website_domain"])
	rec.OrgLinkedInURL = scalar(org["linkedin_url"])
	rec.OrgEmployees = toInt(org["number_of_employees"])
	rec.OrgIndustry = scalar(org["industry"])

	oloc := flattenLocation(org)
	rec.OrgCity, rec.OrgState, rec.OrgCountryCode, rec.OrgCountry, rec.OrgRegion =
		oloc.city, oloc.state, oloc.countryCode, oloc.country, oloc.region

	if rec.Emails, err = marshalOptional(payload["emails"]); err != nil {
		return nil, fmt.Errorf("encode emails: %w", err)
	}
	if rec.Phones, err = marshalOptional(payload["phones"]); err != nil {
		return nil, fmt.Errorf("encode phones: %w", err)
	}
	return rec, nil
}

type location struct {
	city, state, countryCode, country, region *string
}

func flattenLocation(obj map[string]any) location {
	l, _ := obj["location"].(map[string]any)
	return location{
		city:        scalar(l["city"]),
		state:       scalar(l["state"]),
		countryCode: scalar(l["country_code"]),
		country:     scalar(l["country"]),
		region:      scalar(l["region"]),
	}
}

// scalar renders strings, numbers and booleans (as "1"/"0") and returns nil
// for everything else.
func scalar(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case bool:
		s = "0"
		if t {
			s = "1"
		}
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil
	}
	return &s
}

// toInt accepts a bare number, a digit string with thousands separators, or
// an object carrying value, max, min or approx (first parseable key wins).
func toInt(v any) *int64 {
	if obj, ok := v.(map[string]any); ok {
		for _, k := range []string{"value", "max", "min", "approx"} {
			inner, present := obj[k]
			if !present {
				continue
			}
			if n := scalarInt(inner); n != nil {
				return n
			}
		}
		return nil
	}
	return scalarInt(v)
}

func scalarInt(v any) *int64 {
	var n int64
	switch t := v.(type) {
	case bool:
		if t {
			n = 1
		}
	case float64:
		return floatInt(t)
	case int:
		n = int64(t)
	case int64:
		n = t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			n = i
		} else if f, err := t.Float64(); err == nil {
			return floatInt(f)
		} else {
			return nil
		}
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// floatInt truncates f, or returns nil when f does not fit an int64.
func floatInt(f float64) *int64 {
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
