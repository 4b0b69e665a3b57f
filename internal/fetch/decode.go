package fetch

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DecodeText converts fetched bytes to a UTF-8 string. The encoding is
// taken from the Content-Type header when present, otherwise sniffed
// from the first bytes (BOM, <meta charset>, statistical detection).
// Bytes that still fail to decode are replaced rather than dropped so a
// stylesheet with one bad byte does not lose its remaining rules.
func DecodeText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	enc, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil || !utf8.Valid(decoded) {
		return string(bytes.ToValidUTF8(body, []byte(string(utf8.RuneError))))
	}
	return string(decoded)
}

// NewDecodingReader wraps r so reads produce UTF-8, using the same
// charset resolution as DecodeText. The html parser accepts a reader,
// so large documents can be decoded without an extra copy.
func NewDecodingReader(r io.Reader, contentType string) (io.Reader, error) {
	return charset.NewReader(r, contentType)
}
