// Package charset determines the character encoding of fetched payloads and
// converts them to and from UTF-8 text.
package charset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Default is the encoding assumed when neither the content type nor the
// payload declares one.
const Default = "utf-8"

// sniffLimit bounds how much of the payload is scanned for a declaration.
const sniffLimit = 200

var (
	contentTypeCharset = regexp.MustCompile(`(?i)charset\s*=\s*("[^"]*"|'[^']*'|[^;\s]+)`)
	xmlDeclCharset     = regexp.MustCompile(`(?i)<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)
	metaCharset        = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([\w.:-]+)`)
)

// ErrInvalidUTF8 reports a payload declared as UTF-8 that contains invalid byte sequences.
var ErrInvalidUTF8 = errors.New("invalid utf-8 byte sequence")

// DecodeError carries the encoding a failed decode attempted.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode as %s: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Resolve names the encoding of body. A charset parameter in contentType wins;
// otherwise the first bytes of the payload are scanned for an XML or HTML
// encoding declaration; otherwise Default is returned.
func Resolve(body []byte, contentType string) string {
	if m := contentTypeCharset.FindStringSubmatch(contentType); m != nil {
		if name := normalizeName(m[1]); name != "" {
			return name
		}
	}
	head := body
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}
	if len(head) > 0 {
		ascii := asciiOnly(head)
		if m := xmlDeclCharset.FindStringSubmatch(ascii); m != nil {
			return normalizeName(m[1])
		}
		if m := metaCharset.FindStringSubmatch(ascii); m != nil {
			return normalizeName(m[1])
		}
	}
	return Default
}

// Decode converts body to text using the resolved encoding. On failure the
// returned error is a *DecodeError and the caller should leave body untouched.
func Decode(body []byte, contentType string) (string, string, error) {
	name := Resolve(body, contentType)
	if isUTF8(name) {
		if !utf8.Valid(body) {
			return "", name, &DecodeError{Encoding: name, Err: ErrInvalidUTF8}
		}
		return string(body), name, nil
	}
	enc, err := lookup(name)
	if err != nil {
		return "", name, &DecodeError{Encoding: name, Err: err}
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", name, &DecodeError{Encoding: name, Err: err}
	}
	return string(decoded), name, nil
}

// Encode converts text back into the named encoding.
func Encode(text string, name string) ([]byte, error) {
	if isUTF8(name) {
		return []byte(text), nil
	}
	enc, err := lookup(name)
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", name, err)
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", name, err)
	}
	return out, nil
}

func lookup(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

func isUTF8(name string) bool {
	switch name {
	case "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}

func normalizeName(raw string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(raw), `"'`))
}

// asciiOnly drops non-ASCII bytes so the declaration scan is encoding agnostic.
func asciiOnly(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < utf8.RuneSelf {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
