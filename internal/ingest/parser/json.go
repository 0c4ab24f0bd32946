package parser

import (
	"encoding/json"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// JSON reads one object per line and returns every string value in it,
// walking nested objects and arrays. Object keys are visited in sorted order
// so the output is deterministic. Numbers, booleans and nulls are ignored.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Parse(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedRecord, err, "decoding json line")
	}
	var out []string
	collectStrings(obj, &out)
	return out, nil
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(t[k], out)
		}
	case []any:
		for _, e := range t {
			collectStrings(e, out)
		}
	}
}
