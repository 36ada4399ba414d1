package frame

import (
	"testing"

	"github.com/getsentry/hotspot/internal/testutil"
)

func TestFrameKey(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  Key
	}{
		{
			name:  "fully resolved",
			frame: Frame{Symbol: "main", Module: "app", File: "main.c", Line: 10},
			want:  Key{Symbol: "main", Module: "app"},
		},
		{
			name:  "missing module",
			frame: Frame{Symbol: "main"},
			want:  Key{Symbol: "main", Module: Unknown},
		},
		{
			name:  "placeholder",
			frame: Placeholder(0x1000),
			want:  Key{Symbol: Unknown, Module: Unknown},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := testutil.Diff(test.frame.Key(), test.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestKeyIgnoresLocation(t *testing.T) {
	a := Frame{Symbol: "foo", Module: "app", File: "a.c", Line: 1, InstructionAddr: 1}
	b := Frame{Symbol: "foo", Module: "app", File: "b.c", Line: 2, InstructionAddr: 2}
	if a.Key() != b.Key() {
		t.Fatal("frames with the same symbol and module should share a key")
	}
	if a.Key().Fingerprint() != b.Key().Fingerprint() {
		t.Fatal("frames with the same key should share a fingerprint")
	}
}

func TestFingerprintPlaceholders(t *testing.T) {
	if (Key{Module: "a"}).Fingerprint() == (Key{Symbol: "a"}).Fingerprint() {
		t.Fatal("module and symbol should not be interchangeable")
	}
}

func TestAddressString(t *testing.T) {
	if got := (Frame{InstructionAddr: 0xdeadbeef}).AddressString(); got != "0xdeadbeef" {
		t.Fatalf("unexpected address string %q", got)
	}
}

func TestHasLocation(t *testing.T) {
	if (Frame{Symbol: "a"}).HasLocation() {
		t.Fatal("frame without file should not have a location")
	}
	if !(Frame{File: "a.c"}).HasLocation() {
		t.Fatal("frame with file should have a location")
	}
	if Placeholder(1).IsResolved() {
		t.Fatal("placeholder should not be resolved")
	}
}
