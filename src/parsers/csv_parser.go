// src/parsers/csv_parser.go
package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/SagastaDev/equity-valuator/src/security/validation"
)

type csvParser struct{}

func NewCSVParser() Parser {
	return &csvParser{}
}

// Parse reads a CSV batch with the columns
// fiscal_period,period_type,raw_field_name,value. Values that parse as
// numbers are tagged number; everything else passes through as a string.
func (p *csvParser) Parse(file io.Reader) ([]RawDataPoint, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"fiscal_period", "raw_field_name", "value"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", required)
		}
	}

	var points []RawDataPoint
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line+1, err)
		}
		line++

		period, err := time.Parse("2006-01-02", record[columns["fiscal_period"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid fiscal_period: %w", line, err)
		}
		fieldName := strings.TrimSpace(record[columns["raw_field_name"]])
		if fieldName == "" {
			return nil, fmt.Errorf("line %d: empty raw_field_name", line)
		}

		periodType := "annual"
		if idx, ok := columns["period_type"]; ok && record[idx] != "" {
			periodType = strings.ToLower(strings.TrimSpace(record[idx]))
		}

		rawValue := validation.StripUnprintable(strings.TrimSpace(record[columns["value"]]))
		kind := "string"
		var encoded []byte
		if number, err := strconv.ParseFloat(rawValue, 64); err == nil {
			kind = "number"
			encoded, _ = json.Marshal(number)
		} else {
			encoded, _ = json.Marshal(rawValue)
		}

		points = append(points, RawDataPoint{
			FiscalPeriod: period,
			PeriodType:   periodType,
			RawFieldName: fieldName,
			ValueKind:    kind,
			Value:        encoded,
		})
	}
	return points, nil
}
