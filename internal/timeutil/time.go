// Package timeutil decodes the session dates recorders write, either as
// RFC 3339 strings or as Unix timestamps.
package timeutil

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
)

// Time is encoded as RFC 3339. The zero value is encoded as null.
type Time time.Time

// Unix timestamps above this are taken as milliseconds.
const maxUnixSeconds = 1 << 35

func (t *Time) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` || string(b) == "{}" {
		*t = Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := gojson.Unmarshal(b, &s); err != nil {
			return err
		}
		tt, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timeutil: %w", err)
		}
		*t = Time(tt.UTC())
		return nil
	}
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timeutil: invalid timestamp %s: %w", b, err)
	}
	if i > maxUnixSeconds {
		*t = Time(time.UnixMilli(i).UTC())
	} else {
		*t = Time(time.Unix(i, 0).UTC())
	}
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return gojson.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t Time) Time() time.Time {
	return time.Time(t)
}

func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}
