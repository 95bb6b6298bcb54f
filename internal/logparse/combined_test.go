package logparse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_CombinedScenario(t *testing.T) {
	t.Parallel()
	line := `10.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET /a HTTP/1.1" 200 1024 "-" "Mozilla/5.0"`

	rec, ok := ParseLine(line)
	require.True(t, ok)
	require.NotNil(t, rec)

	assert.Equal(t, "10.0.0.1", rec.RemoteAddr)
	require.NotNil(t, rec.Time)
	assert.True(t, rec.Time.Equal(time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC)))
	_, offset := rec.Time.Zone()
	assert.Equal(t, 0, offset)
	require.NotNil(t, rec.Method)
	assert.Equal(t, "GET", *rec.Method)
	assert.Equal(t, "/a", rec.Path)
	require.NotNil(t, rec.Protocol)
	assert.Equal(t, "HTTP/1.1", *rec.Protocol)
	assert.Equal(t, int32(200), rec.Status)
	require.NotNil(t, rec.Bytes)
	assert.Equal(t, int64(1024), *rec.Bytes)
	assert.Equal(t, "-", rec.Referer)
	assert.Equal(t, "Mozilla/5.0", rec.UserAgent)
	assert.Nil(t, rec.Latency)
}

func TestParseLine_NoMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"plain text", "this is not an access log"},
		{"status not three digits", `1.2.3.4 - - [10/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 20 5 "-" "ua"`},
		{"missing user agent", `1.2.3.4 - - [10/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 200 5 "-"`},
		{"leading garbage", ` 1.2.3.4 - - [10/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 200 5 "-" "ua"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, ok := ParseLine(tt.line)
			assert.False(t, ok)
			assert.Nil(t, rec)
		})
	}
}

func TestParseLine_MalformedRequestKeepsWholeString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		request string
	}{
		{""},
		{"GET"},
		{"GET /a"},
		{"\\x16\\x03\\x01 garbage with four tokens"},
	}
	for _, tt := range tests {
		line := fmt.Sprintf(`1.2.3.4 - - [10/Oct/2023:13:55:36 +0000] "%s" 400 0 "-" "-"`, tt.request)
		rec, ok := ParseLine(line)
		require.True(t, ok, "line %q", line)
		assert.Nil(t, rec.Method)
		assert.Nil(t, rec.Protocol)
		assert.Equal(t, tt.request, rec.Path)
	}
}

func TestParseLine_BadTimeKeepsRow(t *testing.T) {
	t.Parallel()
	line := `1.2.3.4 - frank [not-a-time] "GET /x HTTP/1.0" 404 - "http://ref" "curl/7.64.1"`
	rec, ok := ParseLine(line)
	require.True(t, ok)
	assert.Nil(t, rec.Time)
	assert.Nil(t, rec.Bytes)
	assert.Equal(t, "/x", rec.Path)
	assert.Equal(t, int32(404), rec.Status)
	assert.Equal(t, "http://ref", rec.Referer)
	assert.Equal(t, "curl/7.64.1", rec.UserAgent)
}

func TestParseLine_RequestTime(t *testing.T) {
	t.Parallel()
	line := `1.2.3.4 - - [10/Oct/2023:13:55:36 -0700] "GET /slow HTTP/2.0" 200 12 "-" "ua" 0.250`
	rec, ok := ParseLine(line)
	require.True(t, ok)
	require.NotNil(t, rec.Latency)
	assert.InDelta(t, 0.25, *rec.Latency, 1e-9)
	require.NotNil(t, rec.Time)
	assert.Equal(t, time.Date(2023, 10, 10, 20, 55, 36, 0, time.UTC), rec.Time.UTC())

	// Non-numeric trailing text is ignored rather than failing the match.
	rec, ok = ParseLine(`1.2.3.4 - - [10/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 200 1 "-" "ua" upstream=abc`)
	require.True(t, ok)
	assert.Nil(t, rec.Latency)
}

func TestParseBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want *int64
	}{
		{"-", nil},
		{"", nil},
		{"12a", nil},
		{"-5", nil},
		{"1234", ptr(int64(1234))},
		{"0", ptr(int64(0))},
	}
	for _, tt := range tests {
		got := ParseBytes(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, "ParseBytes(%q)", tt.raw)
			continue
		}
		require.NotNil(t, got, "ParseBytes(%q)", tt.raw)
		assert.Equal(t, *tt.want, *got)
	}
}

func TestSplitRequest(t *testing.T) {
	t.Parallel()
	method, path, proto := SplitRequest("POST  /api/v1?q=1   HTTP/1.1")
	require.NotNil(t, method)
	require.NotNil(t, proto)
	assert.Equal(t, "POST", *method)
	assert.Equal(t, "/api/v1?q=1", path)
	assert.Equal(t, "HTTP/1.1", *proto)
}

func ptr[T any](v T) *T { return &v }

func TestParseTime_DayPadding(t *testing.T) {
	t.Parallel()
	want := time.Date(2023, time.October, 1, 13, 55, 36, 0, time.UTC)
	for _, raw := range []string{
		"01/Oct/2023:13:55:36 +0000",
		"1/Oct/2023:13:55:36 +0000",
		" 1/Oct/2023:13:55:36 +0000",
	} {
		got := ParseTime(raw)
		if assert.NotNil(t, got, raw) {
			assert.True(t, want.Equal(*got), "%q parsed as %v", raw, got)
		}
	}

	assert.Nil(t, ParseTime("32/Oct/2023:13:55:36 +0000"))
	assert.Nil(t, ParseTime("/Oct/2023:13:55:36 +0000"))

	r, ok := ParseLine(`10.0.0.1 - - [1/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 200 5 "-" "-"`)
	require.True(t, ok)
	require.NotNil(t, r.Time)
	assert.True(t, want.Equal(*r.Time))
}
