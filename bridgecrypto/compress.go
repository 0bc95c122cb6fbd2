package bridgecrypto

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
)

// ErrLegacyUncompressed signals that the inflate routine rejected the input
// as a malformed DEFLATE stream. Per spec §9's open question, older peers on
// the wire sometimes send an uncompressed single-part payload that the
// reference implementation detected by string-matching the inflate error
// message ("incorrect header check"). Go's flate reader reports the
// equivalent condition as flate.CorruptInputError; callers should treat this
// sentinel as "fall back to treating data as raw, uncompressed bytes"
// instead of a hard failure.
var ErrLegacyUncompressed = errors.New("bridgecrypto: input is not a valid deflate stream")

// Deflate compresses data with raw DEFLATE (no zlib/gzip wrapper), used for
// chunked payloads per spec §4.2.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a raw DEFLATE stream. If data is not a valid DEFLATE
// stream, it returns ErrLegacyUncompressed so callers can fall back to the
// legacy uncompressed-payload path instead of string-matching an error
// message.
func Inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		var corrupt flate.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, ErrLegacyUncompressed
		}
		return nil, err
	}
	return out, nil
}
