package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParserBareArray(t *testing.T) {
	input := `[
		{"fiscal_period":"2023-12-31","raw_field_name":"revenues","value":1500.5},
		{"fiscal_period":"2023-12-31","period_type":"quarterly","raw_field_name":"note","value":"restated"},
		{"fiscal_period":"2023-12-31","raw_field_name":"segments","value":["a","b"]}
	]`

	points, err := NewJSONParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, "revenues", points[0].RawFieldName)
	assert.Equal(t, "annual", points[0].PeriodType)
	assert.Equal(t, "number", points[0].ValueKind)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), points[0].FiscalPeriod)

	assert.Equal(t, "quarterly", points[1].PeriodType)
	assert.Equal(t, "string", points[1].ValueKind)

	assert.Equal(t, "list", points[2].ValueKind)
}

func TestJSONParserBatchObject(t *testing.T) {
	input := `{"entries":[{"fiscal_period":"2022-12-31","raw_field_name":"ni","value":42}]}`

	points, err := NewJSONParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "ni", points[0].RawFieldName)
}

func TestJSONParserRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not JSON", `revenues,100`},
		{"missing field name", `[{"fiscal_period":"2023-12-31","value":1}]`},
		{"bad fiscal period", `[{"fiscal_period":"31/12/2023","raw_field_name":"x","value":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJSONParser().Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestCSVParser(t *testing.T) {
	input := "fiscal_period,period_type,raw_field_name,value\n" +
		"2023-12-31,annual,revenues,1500.5\n" +
		"2023-12-31,,auditor,KPMG\n"

	points, err := NewCSVParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "number", points[0].ValueKind)
	assert.Equal(t, "1500.5", string(points[0].Value))

	assert.Equal(t, "annual", points[1].PeriodType)
	assert.Equal(t, "string", points[1].ValueKind)
	assert.Equal(t, `"KPMG"`, string(points[1].Value))
}

func TestCSVParserMissingColumn(t *testing.T) {
	input := "fiscal_period,period_type\n2023-12-31,annual\n"
	_, err := NewCSVParser().Parse(strings.NewReader(input))
	assert.Error(t, err)
}

func TestGetParser(t *testing.T) {
	for _, format := range []string{"json", "csv"} {
		parser, err := GetParser(format)
		require.NoError(t, err)
		assert.NotNil(t, parser)
	}
	_, err := GetParser("xml")
	assert.Error(t, err)
}
