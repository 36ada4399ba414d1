package trace

import (
	"fmt"
	"io"
	"os"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"

	"github.com/getsentry/hotspot/internal/errorutil"
)

// Decode reads a JSON trace document and indexes it.
func Decode(r io.Reader) (*Trace, error) {
	var t Trace
	if err := gojson.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("trace: %w: %s", errorutil.ErrInvalidRequest, err.Error())
	}
	if err := t.Index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeCompressed reads an lz4 compressed JSON trace document.
func DecodeCompressed(r io.Reader) (*Trace, error) {
	return Decode(lz4.NewReader(r))
}

func Encode(w io.Writer, t *Trace) error {
	return gojson.NewEncoder(w).Encode(t)
}

// EncodeCompressed writes t as lz4 compressed JSON.
func EncodeCompressed(w io.Writer, t *Trace) error {
	zw := lz4.NewWriter(w)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Level9))
	if err := Encode(zw, t); err != nil {
		return err
	}
	return zw.Close()
}

// IsCompressed reports whether a file name denotes an lz4 compressed
// trace.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, ".lz4")
}

// ReadFile reads a .json or .json.lz4 trace document from disk.
func ReadFile(name string) (*Trace, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if IsCompressed(name) {
		return DecodeCompressed(f)
	}
	return Decode(f)
}

// WriteFile writes t to disk, compressed when the name ends with .lz4.
func WriteFile(name string, t *Trace) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if IsCompressed(name) {
		err = EncodeCompressed(f, t)
	} else {
		err = Encode(f, t)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
