// Package parser turns one line of an input log into the text fields that
// get tokenized. Three formats are supported: newline-delimited JSON, Apache
// combined access logs and raw lines.
package parser

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// Parser extracts tokenizable fields from a single line. A line that does
// not match the format yields an error matching ErrMalformedRecord; callers
// log it and move on.
type Parser interface {
	Parse(line string) ([]string, error)
	Name() string
}

// New returns the parser for format: json, apache or raw.
func New(format string) (Parser, error) {
	switch format {
	case "json":
		return JSON{}, nil
	case "apache":
		return Apache{}, nil
	case "raw":
		return Raw{}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "unknown input format %q", format)
	}
}

// Raw passes the whole line through, minus its line ending.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Parse(line string) ([]string, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}
	return []string{line}, nil
}
