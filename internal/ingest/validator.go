package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxBatchRecords = 10000

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateRecords checks a request's records before anything is appended,
// so a batch is either accepted whole or rejected whole.
func ValidateRecords(records [][]byte) error {
	errs := make(map[string]string)
	switch {
	case len(records) == 0:
		errs["body"] = "at least one record is required"
	case len(records) > maxBatchRecords:
		errs["body"] = fmt.Sprintf("at most %d records per request", maxBatchRecords)
	}
	for i, rec := range records {
		if !utf8.Valid(rec) {
			errs[fmt.Sprintf("records[%d]", i)] = "record must be valid UTF-8"
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
