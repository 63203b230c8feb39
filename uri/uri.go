// Package uri parses the driver connection URIs understood by the driver
// facade. The grammar is
//
//	scheme "://" host [":" port] ["?" key "=" value ("&" key "=" value)*]
//
// The host may be empty. The port must be a decimal integer with no trailing
// characters. A trailing "?", a trailing "&", or a key without a value is
// rejected.
package uri

import (
	"strings"

	"github.com/c360/iodriver/errors"
)

// URI is a parsed driver connection string.
type URI struct {
	Scheme  string
	Host    string
	Port    int
	Options map[string]string
}

// Parse parses a connection string.
func Parse(s string) (URI, error) {
	schemeEnd := strings.Index(s, ":")
	if schemeEnd < 0 || !strings.HasPrefix(s[schemeEnd:], "://") {
		return URI{}, errors.Invalidf("uri.Parse", "expected %s to start with SCHEME://", s)
	}
	scheme := s[:schemeEnd]
	rest := s[schemeEnd+3:]

	result := URI{Scheme: scheme, Options: map[string]string{}}

	hostEnd := strings.IndexAny(rest, "?:")
	if hostEnd < 0 {
		result.Host = rest
		return result, nil
	}
	result.Host = rest[:hostEnd]

	var query string
	switch rest[hostEnd] {
	case ':':
		portPart := rest[hostEnd+1:]
		digits := 0
		port := 0
		for digits < len(portPart) && portPart[digits] >= '0' && portPart[digits] <= '9' {
			port = port*10 + int(portPart[digits]-'0')
			digits++
		}
		if digits == 0 {
			return URI{}, errors.Invalidf("uri.Parse", "expected a port number in %s", s)
		}
		result.Port = port
		switch {
		case digits == len(portPart):
			return result, nil
		case portPart[digits] == '?':
			query = portPart[digits+1:]
		default:
			return URI{}, errors.NewInvalid("uri.Parse", "expected port field to be only numbers")
		}
	case '?':
		query = rest[hostEnd+1:]
	}

	if err := parseOptions(s, query, result.Options); err != nil {
		return URI{}, err
	}
	return result, nil
}

// parseOptions fills opts from a key=value&key=value query string. No full
// URI decoding is attempted: keys and values must not contain question marks
// or ampersands.
func parseOptions(uri, query string, opts map[string]string) error {
	for _, pair := range strings.Split(query, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return errors.Invalidf("uri.Parse",
				"invalid options syntax in %s, expected key=value pairs separated by &", uri)
		}
		opts[key] = value
	}
	return nil
}

// Option returns the value for key, or the given default when the key is not
// present.
func (u URI) Option(key, defaultValue string) string {
	if value, ok := u.Options[key]; ok {
		return value
	}
	return defaultValue
}
