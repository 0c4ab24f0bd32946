package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

const combinedSample = `68.99.50.249 - - [12/Mar/2021:19:56:00 +0530] "HEAD /scale/sticky/interfaces HTTP/1.1" 100 1688 "https://www.dynamicone-to-one.com/seize/grow/wireless" "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_8_2) AppleWebKit/5311 (KHTML, like Gecko) Chrome/40.0.890.0 Mobile Safari/5311"` + "\n"

func TestParseCombined(t *testing.T) {
	e, err := ParseCombined(combinedSample)
	require.NoError(t, err)
	assert.Equal(t, CombinedEntry{
		RemoteAddr: "68.99.50.249",
		User:       "-",
		Time:       "12/Mar/2021:19:56:00 +0530",
		Request:    "HEAD /scale/sticky/interfaces HTTP/1.1",
		Method:     "HEAD",
		Status:     "100",
		Size:       "1688",
		Referer:    "https://www.dynamicone-to-one.com/seize/grow/wireless",
		UserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_8_2) AppleWebKit/5311 (KHTML, like Gecko) Chrome/40.0.890.0 Mobile Safari/5311",
	}, e)
}

func TestApacheRejectsOtherLines(t *testing.T) {
	_, err := Apache{}.Parse(`{"msg":"not apache"}`)
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func TestApacheFields(t *testing.T) {
	fields, err := Apache{}.Parse(combinedSample)
	require.NoError(t, err)
	assert.Len(t, fields, 8)
	assert.Equal(t, "68.99.50.249", fields[0])
	assert.Equal(t, "HEAD /scale/sticky/interfaces HTTP/1.1", fields[3])
}

func TestJSONCollectsStringValues(t *testing.T) {
	fields, err := JSON{}.Parse(`{"msg":"disk full","level":"error","code":28,"ctx":{"host":"db-1","tags":["a",true,"b"]},"nil":null}`)
	require.NoError(t, err)
	// keys in sorted order: code, ctx{host, tags}, level, msg, nil
	assert.Equal(t, []string{"db-1", "a", "b", "error", "disk full"}, fields)
}

func TestJSONMalformed(t *testing.T) {
	for _, line := range []string{`{"msg":`, `not json`, `["array"]`} {
		_, err := JSON{}.Parse(line)
		assert.ErrorIs(t, err, apperrors.ErrMalformedRecord, line)
	}
	fields, err := JSON{}.Parse("   \n")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRaw(t *testing.T) {
	fields, err := Raw{}.Parse("hello world\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, fields)

	fields, err = Raw{}.Parse("\n")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestNew(t *testing.T) {
	for _, name := range []string{"json", "apache", "raw"} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := New("xml")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
