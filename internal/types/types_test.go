package types

import (
	"testing"

	gojson "github.com/goccy/go-json"
)

func TestUint64(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{input: `42`, want: 42},
		{input: `"18446744073709551615"`, want: 18446744073709551615},
		{input: `"-1"`, wantErr: true},
		{input: `1.5`, wantErr: true},
		{input: `"abc"`, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			var v struct {
				Key *Uint64 `json:"key"`
			}
			err := gojson.Unmarshal([]byte(`{"key":`+test.input+`}`), &v)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Key == nil || v.Key.Value() != test.want {
				t.Fatalf("expected %d, got %v", test.want, v.Key)
			}
		})
	}
}
