package httputil

import (
	"errors"
	"io"
	"net/http"
)

// ReadBody reads at most limit bytes of the request body. It writes the
// error status itself and returns false when the body can't be read or is
// too large.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return nil, false
		}
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return body, true
}
