package parsers

import (
	"encoding/json"
	"io"
	"time"
)

// RawDataPoint is one parsed value from an uploaded batch, before it is
// attached to a provider and company and persisted.
type RawDataPoint struct {
	FiscalPeriod time.Time
	PeriodType   string
	RawFieldName string
	ValueKind    string
	Value        json.RawMessage
}

// Parser turns an uploaded raw data batch into data points.
type Parser interface {
	Parse(file io.Reader) ([]RawDataPoint, error)
}
