// Package types holds JSON helpers shared by the wire formats.
package types

import (
	"fmt"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Uint64 decodes from a JSON number or a decimal string and always encodes
// as a number. Clients that cannot represent integers above 2^53 send keys
// as strings.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(u), 10), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := gojson.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("types: invalid unsigned integer %s", b)
	}
	*u = Uint64(v)
	return nil
}

func (u *Uint64) Value() uint64 {
	return uint64(*u)
}
