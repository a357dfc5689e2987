// src/parsers/factory.go
package parsers

import (
	"fmt"
)

func GetParser(format string) (Parser, error) {
	switch format {
	case "json":
		return NewJSONParser(), nil
	case "csv":
		return NewCSVParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for format: %s", format)
	}
}
