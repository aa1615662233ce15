package payload

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// DecodeError reports a malformed transport encoding (bad base64 or corrupt
// gzip stream). The payload carrying it is rejected with no state change.
type DecodeError struct {
	Stage string // "base64" or "gzip"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeBase64 decodes inline base64 content (icons and similar small
// media) without the gzip layer.
func DecodeBase64(encoded string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}
	return out, nil
}

// Decode converts a transport-encoded message body (standard base64 wrapping
// a gzip stream) into raw content bytes. Empty input yields empty bytes, not
// an error. No side effects.
func Decode(encoded string) ([]byte, error) {
	if encoded == "" {
		return []byte{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Stage: "gzip", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Stage: "gzip", Err: err}
	}
	return out, nil
}
