// Package docs maps model types to remote documents and back.
//
// Field names are the wire format shared with every client, so they are
// kept verbatim. Decoding is tolerant: missing flags take their safe
// default, but a document without its required fields is rejected.
package docs

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/existflow/duetask/internal/remote"
)

// ErrMissingField is returned when a required field is absent or malformed
var ErrMissingField = errors.New("missing required field")

// Version is written to every document as "v"
const Version = 1

const (
	FieldVersion      = "v"
	FieldLastModified = "lastModified"
	FieldCreatedAt    = "createdAt"
)

// Digest fingerprints the content of a document. Server-maintained fields
// are left out, so a document digests the same before upload and after
// download. An empty string digests like a missing field: decoders read
// both as "".
func Digest(d remote.Data) string {
	content := make(map[string]any, len(d))
	for k, v := range d {
		if k == FieldLastModified || k == FieldCreatedAt || v == "" {
			continue
		}
		content[k] = v
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	raw, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func putTime(d remote.Data, key string, t *time.Time) {
	if t != nil {
		d[key] = formatTime(*t)
	}
}

func putString(d remote.Data, key, s string) {
	if s != "" {
		d[key] = s
	}
}

func getString(d remote.Data, key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

func getBool(d remote.Data, key string, def bool) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return def
}

func getFloat(d map[string]any, key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// getTime accepts time values and RFC3339 strings. ok is false when the key
// is absent; a present value that is not a time is an error.
func getTime(d remote.Data, key string) (t time.Time, ok bool, err error) {
	switch v := d[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v, true, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%s: %w", key, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

func getOptionalTime(d remote.Data, key string) (*time.Time, error) {
	t, ok, err := getTime(d, key)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}
