// Package json holds the HTTP JSON helpers. Encoding goes through goccy/go-json.
package json

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	gojson "github.com/goccy/go-json"
)

const maxBodyBytes = 8 << 20

func Write(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(data)
}

// Read decodes a single JSON document from the request body into dst.
func Read(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	dec := gojson.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}
