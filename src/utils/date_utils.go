package utils

import (
	"fmt"
	"time"
)

// FiscalPeriodFormat is the wire format for fiscal period dates.
const FiscalPeriodFormat = "2006-01-02"

// ParseFiscalPeriod parses a YYYY-MM-DD fiscal period string.
func ParseFiscalPeriod(dateStr string) (time.Time, error) {
	t, err := time.Parse(FiscalPeriodFormat, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid fiscal period %q, expected YYYY-MM-DD: %w", dateStr, err)
	}
	return t, nil
}
