package parser

import (
	"regexp"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

var combinedLog = regexp.MustCompile(
	`^(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}) - ([-\w]+) \[(.+?)\] "(([A-Z]+) (.+?))" (\d{3}) (\d+) "(.+?)" "(.+?)"`,
)

// CombinedEntry is one parsed Apache combined log line.
type CombinedEntry struct {
	RemoteAddr string `json:"remote_addr"`
	User       string `json:"user"`
	Time       string `json:"time"`
	Request    string `json:"request"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	Size       string `json:"size"`
	Referer    string `json:"referer"`
	UserAgent  string `json:"user_agent"`
}

// ParseCombined matches line against the combined log format.
func ParseCombined(line string) (CombinedEntry, error) {
	m := combinedLog.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return CombinedEntry{}, apperrors.New(apperrors.ErrMalformedRecord, "line is not in combined log format")
	}
	return CombinedEntry{
		RemoteAddr: m[1],
		User:       m[2],
		Time:       m[3],
		Request:    m[4],
		Method:     m[5],
		Status:     m[7],
		Size:       m[8],
		Referer:    m[9],
		UserAgent:  m[10],
	}, nil
}

// Apache tokenizes the textual fields of a combined log line.
type Apache struct{}

func (Apache) Name() string { return "apache" }

func (Apache) Parse(line string) ([]string, error) {
	e, err := ParseCombined(line)
	if err != nil {
		return nil, err
	}
	return []string{e.RemoteAddr, e.User, e.Time, e.Request, e.Status, e.Size, e.Referer, e.UserAgent}, nil
}
