package logparse

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ParseLineExtractsFields formats generated combined-log lines and
// checks every field comes back exactly as written.
func TestProperty_ParseLineExtractsFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("well-formed lines round-trip through ParseLine", prop.ForAll(
		func(octet int, path string, status int, size int64, hasSize bool, unix int64, ua string) bool {
			addr := fmt.Sprintf("192.168.0.%d", octet)
			ts := time.Unix(unix, 0).UTC()
			sizeToken := "-"
			if hasSize {
				sizeToken = fmt.Sprintf("%d", size)
			}
			line := fmt.Sprintf(`%s - - [%s] "GET /%s HTTP/1.1" %d %s "-" "%s"`,
				addr, ts.Format(TimeLayout), path, status, sizeToken, ua)

			rec, ok := ParseLine(line)
			if !ok {
				return false
			}
			if rec.RemoteAddr != addr || rec.Path != "/"+path || rec.Status != int32(status) || rec.UserAgent != ua {
				return false
			}
			if rec.Method == nil || *rec.Method != "GET" {
				return false
			}
			if rec.Time == nil || !rec.Time.Equal(ts) {
				return false
			}
			if hasSize {
				return rec.Bytes != nil && *rec.Bytes == size
			}
			return rec.Bytes == nil
		},
		gen.IntRange(0, 255),
		gen.AlphaString(),
		gen.IntRange(100, 599),
		gen.Int64Range(0, 1<<40),
		gen.Bool(),
		gen.Int64Range(946684800, 2000000000),
		gen.AlphaString(),
	))

	properties.Property("lines without the quoted user agent never match", prop.ForAll(
		func(path string, status int) bool {
			line := fmt.Sprintf(`10.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET /%s HTTP/1.1" %d 10 "-"`, path, status)
			_, ok := ParseLine(line)
			return !ok
		},
		gen.AlphaString(),
		gen.IntRange(100, 599),
	))

	properties.TestingRun(t)
}
