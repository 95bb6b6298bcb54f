package logparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/logscope/internal/model"
)

// TimeLayout is the bracketed local-time layout of the combined log format.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// timeParseLayout also accepts an unpadded or space-padded day of month.
const timeParseLayout = "_2/Jan/2006:15:04:05 -0700"

// CombinedRegex matches the Apache/Nginx combined log format, anchored at the
// start of the line. An optional request-time token after the user-agent is
// captured as latency; anything after it is ignored.
var CombinedRegex = regexp.MustCompile(
	`^(?P<remote_addr>\S+) \S+ (?P<remote_user>\S+) \[(?P<time_local>[^\]]+)\] ` +
		`"(?P<request>[^"]*)" (?P<status>\d{3}) (?P<body_bytes_sent>\S+) ` +
		`"(?P<http_referer>[^"]*)" "(?P<http_user_agent>[^"]*)"` +
		`(?: (?P<request_time>\d+(?:\.\d+)?)(?:\s|$))?`,
)

var (
	idxRemoteAddr  = CombinedRegex.SubexpIndex("remote_addr")
	idxTimeLocal   = CombinedRegex.SubexpIndex("time_local")
	idxRequest     = CombinedRegex.SubexpIndex("request")
	idxStatus      = CombinedRegex.SubexpIndex("status")
	idxBodyBytes   = CombinedRegex.SubexpIndex("body_bytes_sent")
	idxReferer     = CombinedRegex.SubexpIndex("http_referer")
	idxUserAgent   = CombinedRegex.SubexpIndex("http_user_agent")
	idxRequestTime = CombinedRegex.SubexpIndex("request_time")
)

// ParseLine converts one combined-format line into a LogRecord.
// It returns false when the line does not match the grammar. Malformed
// subfields (time, body size) are left nil and the record is still returned.
func ParseLine(line string) (*model.LogRecord, bool) {
	m := CombinedRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	method, path, proto := SplitRequest(m[idxRequest])
	status, _ := strconv.ParseInt(m[idxStatus], 10, 32)

	rec := &model.LogRecord{
		RemoteAddr: m[idxRemoteAddr],
		Time:       ParseTime(m[idxTimeLocal]),
		Method:     method,
		Path:       path,
		Protocol:   proto,
		Status:     int32(status),
		Bytes:      ParseBytes(m[idxBodyBytes]),
		Referer:    m[idxReferer],
		UserAgent:  m[idxUserAgent],
	}
	if raw := m[idxRequestTime]; raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			rec.Latency = &v
		}
	}
	return rec, true
}

// SplitRequest splits a request line into method, path and protocol.
// Anything other than exactly three whitespace-separated tokens keeps the
// whole request string as the path.
func SplitRequest(request string) (method *string, path string, proto *string) {
	parts := strings.Fields(request)
	if len(parts) != 3 {
		return nil, request, nil
	}
	return &parts[0], parts[1], &parts[2]
}

// ParseTime parses the bracketed local time. The day may be written as "1",
// " 1" or "01". Returns nil on failure.
func ParseTime(raw string) *time.Time {
	t, err := time.Parse(timeParseLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}

// ParseBytes returns the body size when raw is made only of decimal digits.
func ParseBytes(raw string) *int64 {
	if raw == "" {
		return nil
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
