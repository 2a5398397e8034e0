package people

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func i64p(n int64) *int64   { return &n }

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalize_MapsPersonAndOrganization(t *testing.T) {
	payload := decode(t, `{
		"uuid": "p-1",
		"first_name": "Asha",
		"last_name": "Rao",
		"full_name": "Asha Rao",
		"title": "Staff Engineer",
		"headline": "Go | Kafka",
		"industry": "Software",
		"image": "https://img/x.png",
		"location": {"city": "Pune", "state": "MH", "country_code": "IN", "country": "India", "region": "APAC"},
		"organization": {
			"uuid": "o-1",
			"name": "Acme",
			"website": "https://acme.io",
			"website_domain": "acme.io",
			"linkedin_url": "https://linkedin.com/company/acme",
			"number_of_employees": "1,250",
			"industry": "SaaS",
			"location": {"city": "Bengaluru", "country": "India"}
		},
		"emails": [{"email": "asha@acme.io", "type": "work"}],
		"phones": [{"phone": "+91 1"}]
	}`)

	rec, err := Normalize(3, nil, "https://linkedin.com/in/asha", payload)
	require.NoError(t, err)

	assert.EqualValues(t, 3, rec.SearchBatchID)
	assert.Equal(t, "https://linkedin.com/in/asha", rec.LinkedInURL)
	assert.Equal(t, strp("p-1"), rec.PersonUUID)
	assert.Equal(t, strp("Asha Rao"), rec.FullName)
	assert.Equal(t, strp("Pune"), rec.PersonCity)
	assert.Equal(t, strp("IN"), rec.PersonCountryCode)
	assert.Equal(t, strp("APAC"), rec.PersonRegion)

	assert.Equal(t, strp("Acme"), rec.OrgName)
	assert.Equal(t, strp("acme.io"), rec.OrgDomain)
	assert.Equal(t, i64p(1250), rec.OrgEmployees)
	assert.Equal(t, strp("Bengaluru"), rec.OrgCity)
	assert.Nil(t, rec.OrgState)

	assert.JSONEq(t, `[{"email": "asha@acme.io", "type": "work"}]`, string(rec.Emails))
	assert.JSONEq(t, `[{"phone": "+91 1"}]`, string(rec.Phones))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Raw, &raw))
	assert.Equal(t, payload, raw)
}

func TestNormalize_DropsNestedAndMissing(t *testing.T) {
	payload := decode(t, `{
		"title": {"name": "nested"},
		"headline": ["a", "b"],
		"industry": true,
		"first_name": 42,
		"location": "Pune"
	}`)

	rec, err := Normalize(1, nil, "l", payload)
	require.NoError(t, err)

	assert.Nil(t, rec.Title)
	assert.Nil(t, rec.Headline)
	assert.Equal(t, strp("1"), rec.PersonIndustry)
	assert.Equal(t, strp("42"), rec.FirstName)
	assert.Nil(t, rec.PersonCity)
	assert.Nil(t, rec.OrgName)
	assert.Nil(t, rec.OrgEmployees)
	assert.Nil(t, rec.Emails)
	assert.Nil(t, rec.Phones)
}

func TestToInt(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want *int64
	}{
		{"nil", nil, nil},
		{"float", float64(200), i64p(200)},
		{"truncates", 12.9, i64p(12)},
		{"json number", json.Number("51"), i64p(51)},
		{"json number fraction", json.Number("51.7"), i64p(51)},
		{"json number too large", json.Number("1e30"), nil},
		{"json number too small", json.Number("-1e30"), nil},
		{"float too large", float64(1e30), nil},
		{"float at int64 bound", float64(math.MaxInt64), nil},
		{"float infinity", math.Inf(1), nil},
		{"float nan", math.NaN(), nil},
		{"value key too large", map[string]any{"value": float64(1e30), "max": float64(9)}, i64p(9)},
		{"digits", "1000", i64p(1000)},
		{"separators", " 10,001 ", i64p(10001)},
		{"range text", "11-50", nil},
		{"negative text", "-5", nil},
		{"empty", "", nil},
		{"bool", true, i64p(1)},
		{"value key", map[string]any{"value": float64(75)}, i64p(75)},
		{"value before max", map[string]any{"max": float64(500), "value": float64(75)}, i64p(75)},
		{"max when value unparseable", map[string]any{"value": "n/a", "max": "500"}, i64p(500)},
		{"min", map[string]any{"min": float64(10)}, i64p(10)},
		{"approx", map[string]any{"approx": "2,000"}, i64p(2000)},
		{"no known key", map[string]any{"count": float64(3)}, nil},
		{"list", []any{float64(1)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, toInt(tc.in))
		})
	}
}

func TestScalar(t *testing.T) {
	assert.Equal(t, strp("x"), scalar("x"))
	assert.Equal(t, strp("0"), scalar(false))
	assert.Equal(t, strp("1.5"), scalar(1.5))
	assert.Equal(t, strp("7"), scalar(float64(7)))
	assert.Nil(t, scalar(nil))
	assert.Nil(t, scalar(map[string]any{}))
	assert.Nil(t, scalar([]any{}))
}
