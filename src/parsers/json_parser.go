// src/parsers/json_parser.go
package parsers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// jsonEntry mirrors the fixture format test providers export: one object
// per data point, value left as raw JSON so numbers, strings, lists and
// objects all survive the round trip.
type jsonEntry struct {
	FiscalPeriod string          `json:"fiscal_period"`
	PeriodType   string          `json:"period_type"`
	RawFieldName string          `json:"raw_field_name"`
	ValueKind    string          `json:"value_kind"`
	Value        json.RawMessage `json:"value"`
}

type jsonBatch struct {
	Entries []jsonEntry `json:"entries"`
}

type jsonParser struct{}

func NewJSONParser() Parser {
	return &jsonParser{}
}

func (p *jsonParser) Parse(file io.Reader) ([]RawDataPoint, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	// Accept either a bare array of entries or an object wrapping one.
	var entries []jsonEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		var batch jsonBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("upload is neither an entry array nor a batch object: %w", err)
		}
		entries = batch.Entries
	}

	points := make([]RawDataPoint, 0, len(entries))
	for i, entry := range entries {
		point, err := entry.toPoint()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		points = append(points, point)
	}
	return points, nil
}

func (e jsonEntry) toPoint() (RawDataPoint, error) {
	if e.RawFieldName == "" {
		return RawDataPoint{}, fmt.Errorf("missing raw_field_name")
	}
	period, err := time.Parse("2006-01-02", e.FiscalPeriod)
	if err != nil {
		return RawDataPoint{}, fmt.Errorf("invalid fiscal_period %q: %w", e.FiscalPeriod, err)
	}
	periodType := e.PeriodType
	if periodType == "" {
		periodType = "annual"
	}
	kind := e.ValueKind
	if kind == "" {
		kind = inferValueKind(e.Value)
	}
	return RawDataPoint{
		FiscalPeriod: period,
		PeriodType:   periodType,
		RawFieldName: e.RawFieldName,
		ValueKind:    kind,
		Value:        e.Value,
	}, nil
}

func inferValueKind(raw json.RawMessage) string {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '"':
			return "string"
		case '[':
			return "list"
		case '{':
			return "object"
		default:
			return "number"
		}
	}
	return "string"
}
